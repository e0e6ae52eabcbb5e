package db

import (
	"context"
	"time"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

// AccountMutator mutates an account inside an atomic read-modify-write. Returning an error
// aborts the write and is passed back to the caller unchanged.
type AccountMutator func(acct *models.Account) error

// BatchMutator is applied to every account of a batch. It reports whether the account changed;
// an error aborts the whole batch.
type BatchMutator func(acct *models.Account) (bool, error)

// AccountRepository defines the storage operations of the credit ledger. Every mutating method
// is atomic with respect to concurrent mutations of the same account.
type AccountRepository interface {
	GetByID(ctx context.Context, userID string) (*models.Account, error)
	// Upsert creates acct if no account exists for acct.ID, otherwise merges only Email, Tier
	// and LastUpdated into the stored account.
	Upsert(ctx context.Context, acct *models.Account) (created bool, err error)
	// Update applies fn to the current account and persists Credit and LastRefresh.
	Update(ctx context.Context, userID string, fn AccountMutator) (*models.Account, error)
	// UpdateBatch applies fn to every listed account and commits all changes or none.
	// Accounts that no longer exist are skipped. Returns the number of changed accounts.
	UpdateBatch(ctx context.Context, userIDs []string, fn BatchMutator) (int, error)
	// ListStaleIDs returns up to limit account IDs whose LastRefresh is at or before cutoff.
	ListStaleIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	// ListIDs returns up to limit account IDs ordered by ID, starting after startAfter.
	ListIDs(ctx context.Context, startAfter string, limit int) ([]string, error)
}

// JobRunRepository stores maintenance job executions.
type JobRunRepository interface {
	Create(ctx context.Context, run models.JobRun) error
}
