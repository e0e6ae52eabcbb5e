// Package llm talks to the upstream completion provider and decodes its structured replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrUpstream is returned when the provider call fails or yields no usable content.
var ErrUpstream = errors.New("upstream completion failed")

// Completion is one system+user prompt pair sent to a model.
type Completion struct {
	System string
	User   string
	Model  string
	// Accept, when set, decides whether a reply is usable. Decorators that store replies only
	// keep accepted ones.
	Accept func(reply string) error
}

// Completer returns the raw text reply for a completion.
type Completer interface {
	Complete(ctx context.Context, req Completion) (string, error)
}

// Config for the OpenAI client.
type Config struct {
	APIKey      string
	BaseURL     string        // default: https://api.openai.com/v1
	Temperature float32       // default: 0.3
	Timeout     time.Duration // default: 60s
	HTTPClient  *http.Client
}

// OpenAIClient implements Completer with the OpenAI chat completions API.
type OpenAIClient struct {
	client      *openai.Client
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI-backed Completer.
func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// Complete sends the prompt pair and returns the trimmed content of the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Completion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: c.temperature,
	})
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("OpenAI chat failed", zap.String("model", req.Model), zap.Duration("duration", duration), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrUpstream)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content (finish reason %q)", ErrUpstream, resp.Choices[0].FinishReason)
	}

	c.logger.Debug("OpenAI chat completed",
		zap.String("model", req.Model),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", duration),
	)
	return content, nil
}
