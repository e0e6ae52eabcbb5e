package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/identity"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/llm"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/metrics"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/prompts"
)

// maxLoggedReply bounds how much of an unparseable reply ends up in the logs.
const maxLoggedReply = 2000

// GatewayConfig holds model routing settings.
type GatewayConfig struct {
	FreeModel       string
	PremiumModel    string
	AllowedModels   []string
	MeteringEnabled bool
}

type gatewayService struct {
	ledger    CreditLedger
	completer llm.Completer
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       GatewayConfig
	allowed   map[string]bool
}

// NewGatewayService creates a GatewayService. m may be nil.
func NewGatewayService(ledger CreditLedger, completer llm.Completer, m *metrics.Metrics, logger *zap.Logger, cfg GatewayConfig) GatewayService {
	if ledger == nil || completer == nil {
		panic("gatewayService: ledger and completer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(cfg.AllowedModels)+2)
	allowed[cfg.FreeModel] = true
	allowed[cfg.PremiumModel] = true
	for _, model := range cfg.AllowedModels {
		allowed[model] = true
	}
	return &gatewayService{
		ledger:    ledger,
		completer: completer,
		metrics:   m,
		logger:    logger.Named("gateway"),
		cfg:       cfg,
		allowed:   allowed,
	}
}

func (s *gatewayService) CompleteText(ctx context.Context, caller *identity.Identity, in TextInput) (string, error) {
	build, err := promptFor(in)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Text) == "" {
		return "", invalid("text is required")
	}
	if strings.TrimSpace(in.Language) == "" {
		return "", invalid("language is required")
	}
	if err := s.checkModel(in.Model); err != nil {
		return "", err
	}

	model, err := s.resolveModel(ctx, caller, in.Model)
	if err != nil {
		return "", err
	}

	s.logger.Info("Completion requested",
		zap.String("operation", string(in.Operation)),
		zap.String("uid", uidOf(caller)),
		zap.String("model", model),
		zap.String("language", in.Language),
		zap.Int("textLength", len(in.Text)),
		zap.Int("glossaryEntries", len(in.Glossary)),
	)

	return s.complete(ctx, in.Operation, llm.Completion{
		System: prompts.SystemMessage,
		User:   build(),
		Model:  model,
	})
}

func promptFor(in TextInput) (func() string, error) {
	switch in.Operation {
	case OpTranslate:
		return func() string { return prompts.Translate(in.Text, in.Language, in.Glossary) }, nil
	case OpExplain:
		return func() string { return prompts.ExplainPhrase(in.Text, in.Language) }, nil
	case OpEnhance:
		return func() string { return prompts.EnhanceText(in.Text) }, nil
	case OpSummarize:
		return func() string { return prompts.SummarizeWebpage(in.Text, in.Language) }, nil
	default:
		return nil, invalid(fmt.Sprintf("unsupported operation '%s'", in.Operation))
	}
}

func (s *gatewayService) TranslateBatch(ctx context.Context, caller *identity.Identity, in BatchInput) ([]string, error) {
	if len(in.IDs) != len(in.Texts) {
		return nil, invalid(fmt.Sprintf("ids and texts must have the same length (got %d ids, %d texts)", len(in.IDs), len(in.Texts)))
	}
	if strings.TrimSpace(in.Language) == "" {
		return nil, invalid("language is required")
	}
	if err := s.checkModel(in.Model); err != nil {
		return nil, err
	}
	if len(in.Texts) == 0 {
		return []string{}, nil
	}

	model, err := s.resolveModel(ctx, caller, in.Model)
	if err != nil {
		return nil, err
	}

	totalLen := 0
	for _, t := range in.Texts {
		totalLen += len(t)
	}
	s.logger.Info("Batch translation requested",
		zap.String("uid", uidOf(caller)),
		zap.String("model", model),
		zap.String("language", in.Language),
		zap.Int("items", len(in.Texts)),
		zap.Int("textLength", totalLen),
	)

	expected := len(in.Texts)
	raw, err := s.complete(ctx, OpTranslateWebpage, llm.Completion{
		System: prompts.SystemMessage,
		User:   prompts.TranslateWebpage(in.IDs, in.Texts, in.Language),
		Model:  model,
		Accept: func(reply string) error {
			_, err := llm.ParseBatchReply(reply, expected)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	reply, err := llm.ParseBatchReply(raw, expected)
	if err != nil {
		s.recordParseFailure(model, err)
		s.logger.Warn("Rejected batch reply",
			zap.String("model", model),
			zap.Int("expected", len(in.Texts)),
			zap.String("reply", truncate(raw, maxLoggedReply)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", llm.ErrUpstream, err)
	}
	if len(reply.IDs) > 0 && !sameIDs(reply.IDs, in.IDs) {
		s.logger.Warn("Batch reply ids differ from request ids; using positional order", zap.Int("items", len(in.IDs)))
	}
	return reply.Outputs, nil
}

func (s *gatewayService) complete(ctx context.Context, op Operation, req llm.Completion) (string, error) {
	model := req.Model
	start := time.Now()
	out, err := s.completer.Complete(ctx, req)
	if s.metrics != nil {
		s.metrics.UpstreamDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.countCompletion(op, model, "upstream_error")
		s.logger.Error("Upstream completion failed", zap.String("operation", string(op)), zap.String("model", model), zap.Error(err))
		if !errors.Is(err, llm.ErrUpstream) {
			err = fmt.Errorf("%w: %w", llm.ErrUpstream, err)
		}
		return "", err
	}
	s.countCompletion(op, model, "ok")
	return out, nil
}

func (s *gatewayService) checkModel(model string) error {
	if model != "" && !s.allowed[model] {
		return invalid(fmt.Sprintf("model '%s' is not allowed", model))
	}
	return nil
}

// resolveModel picks the model for a validated request. With metering on, only an
// authenticated caller that did not explicitly ask for the free model spends credit.
func (s *gatewayService) resolveModel(ctx context.Context, caller *identity.Identity, requested string) (string, error) {
	if s.cfg.MeteringEnabled {
		if caller == nil || requested == s.cfg.FreeModel {
			return s.cfg.FreeModel, nil
		}
		return s.ledger.SelectModelForRequest(ctx, caller.UserID)
	}

	if requested != "" {
		return requested, nil
	}
	if caller == nil {
		return s.cfg.FreeModel, nil
	}
	acct, err := s.ledger.GetUser(ctx, caller.UserID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.logger.Warn("Tier lookup failed, using free model", zap.String("uid", caller.UserID), zap.Error(err))
		}
		return s.cfg.FreeModel, nil
	}
	switch t, _ := NormalizeTier(acct.Tier); t {
	case models.TierPremium, models.TierTeam:
		return s.cfg.PremiumModel, nil
	default:
		return s.cfg.FreeModel, nil
	}
}

func (s *gatewayService) countCompletion(op Operation, model, outcome string) {
	if s.metrics != nil {
		s.metrics.CompletionsTotal.WithLabelValues(string(op), model, outcome).Inc()
	}
}

func (s *gatewayService) recordParseFailure(model string, err error) {
	reason := "shape"
	switch {
	case errors.Is(err, llm.ErrMalformedReply):
		reason = "malformed"
	case errors.Is(err, llm.ErrLengthMismatch):
		reason = "length"
	}
	if s.metrics != nil {
		s.metrics.BatchParseFailures.WithLabelValues(reason).Inc()
	}
	s.countCompletion(OpTranslateWebpage, model, "invalid_reply")
}

func uidOf(caller *identity.Identity) string {
	if caller == nil {
		return ""
	}
	return caller.UserID
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
