package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

// MemoryAccountRepository is an in-process AccountRepository for local development and tests.
// Its atomicity only holds within one process; multi-instance deployments use Firestore.
type MemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]models.Account
}

// NewMemoryAccountRepository creates an empty in-memory repository.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]models.Account)}
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, userID string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account '%s': %w", userID, ErrNotFound)
	}
	return &acct, nil
}

func (r *MemoryAccountRepository) Upsert(_ context.Context, acct *models.Account) (bool, error) {
	if acct == nil || acct.ID == "" {
		return false, fmt.Errorf("account ID cannot be empty for Upsert operation")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.accounts[acct.ID]
	if !ok {
		r.accounts[acct.ID] = *acct
		return true, nil
	}
	existing.Email = acct.Email
	existing.Tier = acct.Tier
	existing.LastUpdated = acct.LastUpdated
	r.accounts[acct.ID] = existing
	return false, nil
}

func (r *MemoryAccountRepository) Update(_ context.Context, userID string, fn AccountMutator) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account '%s': %w", userID, ErrNotFound)
	}
	if err := fn(&acct); err != nil {
		return nil, err
	}
	r.store(acct)
	return &acct, nil
}

// store persists only the ledger fields, like the Firestore implementation.
func (r *MemoryAccountRepository) store(acct models.Account) {
	current := r.accounts[acct.ID]
	current.Credit = acct.Credit
	current.LastRefresh = acct.LastRefresh
	r.accounts[acct.ID] = current
}

func (r *MemoryAccountRepository) UpdateBatch(_ context.Context, userIDs []string, fn BatchMutator) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := make([]models.Account, 0, len(userIDs))
	for _, id := range userIDs {
		acct, ok := r.accounts[id]
		if !ok {
			continue
		}
		changed, err := fn(&acct)
		if err != nil {
			return 0, fmt.Errorf("batch of %d accounts aborted: %w", len(userIDs), err)
		}
		if changed {
			staged = append(staged, acct)
		}
	}
	for _, acct := range staged {
		r.store(acct)
	}
	return len(staged), nil
}

func (r *MemoryAccountRepository) sortedIDs() []string {
	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *MemoryAccountRepository) ListStaleIDs(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, id := range r.sortedIDs() {
		if len(ids) == limit {
			break
		}
		if !r.accounts[id].LastRefresh.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryAccountRepository) ListIDs(_ context.Context, startAfter string, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, id := range r.sortedIDs() {
		if len(ids) == limit {
			break
		}
		if id > startAfter {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MemoryJobRunRepository keeps job runs in memory.
type MemoryJobRunRepository struct {
	mu   sync.Mutex
	runs []models.JobRun
}

// NewMemoryJobRunRepository creates an empty in-memory job run log.
func NewMemoryJobRunRepository() *MemoryJobRunRepository {
	return &MemoryJobRunRepository{}
}

func (r *MemoryJobRunRepository) Create(_ context.Context, run models.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = fmt.Sprintf("run-%d", len(r.runs)+1)
	r.runs = append(r.runs, run)
	return nil
}

// Runs returns a copy of the recorded runs.
func (r *MemoryJobRunRepository) Runs() []models.JobRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.JobRun(nil), r.runs...)
}
