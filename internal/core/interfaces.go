package core

import (
	"context"
	"time"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/identity"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

// CreditLedger owns per-user credit and tier state.
type CreditLedger interface {
	// UpsertUser creates the account with the tier quota on first sight, or merges email, tier
	// and lastUpdated into an existing account without touching credit or createdAt.
	UpsertUser(ctx context.Context, userID, email, tier string, lastUpdated time.Time) (*models.Account, bool, error)
	GetUser(ctx context.Context, userID string) (*models.Account, error)
	// SelectModelForRequest spends one credit and returns the premium model when the balance is
	// positive, otherwise returns the free model without spending.
	SelectModelForRequest(ctx context.Context, userID string) (string, error)
	// Consume subtracts amount (minimum 1) if the balance covers it and returns the new balance.
	Consume(ctx context.Context, userID string, amount int64) (int64, error)
	// RollingRefresh restores the tier quota of every account idle for the refresh window.
	RollingRefresh(ctx context.Context) (int, error)
	// MonthlyReset sets every account's credit to its tier's monthly amount.
	MonthlyReset(ctx context.Context) (int, error)
}

// Operation names a single-text LLM route.
type Operation string

const (
	OpTranslate        Operation = "translate"
	OpExplain          Operation = "explain"
	OpEnhance          Operation = "enhance"
	OpSummarize        Operation = "summarize"
	OpTranslateWebpage Operation = "translate_webpage"
)

// TextInput is a validated-on-entry single-text request.
type TextInput struct {
	Operation Operation
	Text      string
	Language  string
	Model     string
	Glossary  []models.GlossaryEntry
}

// BatchInput is a webpage translation request with parallel ids and texts.
type BatchInput struct {
	IDs      []int64
	Texts    []string
	Language string
	Model    string
}

// GatewayService validates a request, resolves the model, builds the prompt and calls upstream.
// caller is nil for anonymous requests.
type GatewayService interface {
	CompleteText(ctx context.Context, caller *identity.Identity, in TextInput) (string, error)
	TranslateBatch(ctx context.Context, caller *identity.Identity, in BatchInput) ([]string, error)
}
