package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/db"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/metrics"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

// Job names recorded in the jobRuns collection and on the job metrics.
const (
	JobRollingRefresh = "rolling_refresh"
	JobMonthlyReset   = "monthly_reset"
)

const defaultBatchSize = 200

var tierQuotas = map[string]int64{
	models.TierFree:    1000,
	models.TierPremium: 50000,
	models.TierTeam:    200000,
}

// NormalizeTier lowercases tier and folds aliases. ok is false for tiers the ledger does not know.
func NormalizeTier(tier string) (normalized string, ok bool) {
	t := strings.ToLower(strings.TrimSpace(tier))
	if t == models.TierPlus {
		t = models.TierPremium
	}
	_, ok = tierQuotas[t]
	return t, ok
}

// QuotaForTier returns the credit quota of tier. Unknown tiers get the free quota.
func QuotaForTier(tier string) int64 {
	t, ok := NormalizeTier(tier)
	if !ok {
		return tierQuotas[models.TierFree]
	}
	return tierQuotas[t]
}

// monthlyQuotaForTier is the amount granted by the monthly reset. It currently matches the
// rolling quota.
func monthlyQuotaForTier(tier string) int64 {
	return QuotaForTier(tier)
}

// LedgerConfig holds the knobs of the credit ledger.
type LedgerConfig struct {
	FreeModel     string
	PremiumModel  string
	RefreshWindow time.Duration
	BatchSize     int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// errNoCredit aborts a spend without writing.
var errNoCredit = errors.New("no credit left")

type creditLedger struct {
	accounts db.AccountRepository
	jobRuns  db.JobRunRepository
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      LedgerConfig
}

// NewCreditLedger creates a CreditLedger. jobRuns and m may be nil.
func NewCreditLedger(accounts db.AccountRepository, jobRuns db.JobRunRepository, m *metrics.Metrics, logger *zap.Logger, cfg LedgerConfig) CreditLedger {
	if accounts == nil {
		panic("creditLedger: account repository is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &creditLedger{
		accounts: accounts,
		jobRuns:  jobRuns,
		metrics:  m,
		logger:   logger.Named("ledger"),
		cfg:      cfg,
	}
}

func (l *creditLedger) now() time.Time {
	return l.cfg.Now().UTC()
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func (l *creditLedger) UpsertUser(ctx context.Context, userID, email, tier string, lastUpdated time.Time) (*models.Account, bool, error) {
	if userID == "" {
		return nil, false, invalid("user id is required")
	}
	normalized, ok := NormalizeTier(tier)
	if !ok {
		return nil, false, invalid(fmt.Sprintf("unknown tier '%s'", tier))
	}

	now := l.now()
	acct := &models.Account{
		ID:          userID,
		Email:       email,
		Tier:        normalized,
		Credit:      QuotaForTier(normalized),
		CreatedAt:   now,
		LastUpdated: lastUpdated.UTC(),
		LastRefresh: now,
	}
	created, err := l.accounts.Upsert(ctx, acct)
	if err != nil {
		return nil, false, storageErr("upsert user", err)
	}
	if created {
		l.logger.Info("Account created", zap.String("uid", userID), zap.String("tier", normalized), zap.Int64("credit", acct.Credit))
		return acct, true, nil
	}

	stored, err := l.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (l *creditLedger) GetUser(ctx context.Context, userID string) (*models.Account, error) {
	acct, err := l.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: '%s'", ErrUserNotFound, userID)
		}
		return nil, storageErr("get user", err)
	}
	return acct, nil
}

func (l *creditLedger) SelectModelForRequest(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		l.countSelection("free")
		return l.cfg.FreeModel, nil
	}

	_, err := l.accounts.Update(ctx, userID, func(acct *models.Account) error {
		if acct.Credit <= 0 {
			return errNoCredit
		}
		acct.Credit--
		return nil
	})
	switch {
	case err == nil:
		l.countSelection("premium")
		if l.metrics != nil {
			l.metrics.CreditsSpent.Inc()
		}
		return l.cfg.PremiumModel, nil
	case errors.Is(err, errNoCredit), errors.Is(err, db.ErrNotFound):
		l.countSelection("free")
		return l.cfg.FreeModel, nil
	default:
		return "", storageErr("select model", err)
	}
}

func (l *creditLedger) countSelection(tier string) {
	if l.metrics != nil {
		l.metrics.ModelSelections.WithLabelValues(tier).Inc()
	}
}

func (l *creditLedger) Consume(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount < 1 {
		amount = 1
	}
	acct, err := l.accounts.Update(ctx, userID, func(acct *models.Account) error {
		if acct.Credit < amount {
			return ErrInsufficientCredit
		}
		acct.Credit -= amount
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientCredit):
			return 0, err
		case errors.Is(err, db.ErrNotFound):
			return 0, fmt.Errorf("%w: '%s'", ErrUserNotFound, userID)
		default:
			return 0, storageErr("consume", err)
		}
	}
	if l.metrics != nil {
		l.metrics.CreditsSpent.Add(float64(amount))
	}
	return acct.Credit, nil
}

// RollingRefresh restores the quota of accounts whose last refresh is at least RefreshWindow
// old. The stale query is repeated until it comes back empty because refreshed accounts drop
// out of it. Each page is re-checked inside its transaction.
func (l *creditLedger) RollingRefresh(ctx context.Context) (int, error) {
	now := l.now()
	cutoff := now.Add(-l.cfg.RefreshWindow)

	total, err := l.runJob(ctx, JobRollingRefresh, now, func() (int, error) {
		total := 0
		for {
			ids, err := l.accounts.ListStaleIDs(ctx, cutoff, l.cfg.BatchSize)
			if err != nil {
				return total, storageErr("list stale accounts", err)
			}
			if len(ids) == 0 {
				return total, nil
			}
			n, err := l.accounts.UpdateBatch(ctx, ids, func(acct *models.Account) (bool, error) {
				if acct.LastRefresh.After(cutoff) {
					return false, nil
				}
				acct.Credit = QuotaForTier(acct.Tier)
				acct.LastRefresh = now
				return true, nil
			})
			if err != nil {
				return total, storageErr("refresh batch", err)
			}
			total += n
			if n == 0 || len(ids) < l.cfg.BatchSize {
				return total, nil
			}
		}
	})
	return total, err
}

// MonthlyReset sets every account's credit to its monthly amount, paging by document id.
func (l *creditLedger) MonthlyReset(ctx context.Context) (int, error) {
	now := l.now()
	total, err := l.runJob(ctx, JobMonthlyReset, now, func() (int, error) {
		total := 0
		after := ""
		for {
			ids, err := l.accounts.ListIDs(ctx, after, l.cfg.BatchSize)
			if err != nil {
				return total, storageErr("list accounts", err)
			}
			if len(ids) == 0 {
				return total, nil
			}
			n, err := l.accounts.UpdateBatch(ctx, ids, func(acct *models.Account) (bool, error) {
				acct.Credit = monthlyQuotaForTier(acct.Tier)
				return true, nil
			})
			if err != nil {
				return total, storageErr("reset batch", err)
			}
			total += n
			if len(ids) < l.cfg.BatchSize {
				return total, nil
			}
			after = ids[len(ids)-1]
		}
	})
	return total, err
}

// runJob executes a maintenance job and records its outcome. A failed record is only logged.
func (l *creditLedger) runJob(ctx context.Context, job string, started time.Time, fn func() (int, error)) (int, error) {
	l.logger.Info("Ledger job started", zap.String("job", job))
	updated, err := fn()

	run := models.JobRun{
		Job:        job,
		StartedAt:  started,
		FinishedAt: l.now(),
		Updated:    updated,
	}
	if err != nil {
		run.Error = err.Error()
		l.logger.Error("Ledger job failed", zap.String("job", job), zap.Int("updated", updated), zap.Error(err))
	} else {
		l.logger.Info("Ledger job finished", zap.String("job", job), zap.Int("updated", updated),
			zap.Duration("took", run.FinishedAt.Sub(started)))
	}

	if l.metrics != nil && updated > 0 {
		l.metrics.LedgerJobAccounts.WithLabelValues(job).Add(float64(updated))
	}
	if l.jobRuns != nil {
		if recErr := l.jobRuns.Create(ctx, run); recErr != nil {
			l.logger.Warn("Failed to record job run", zap.String("job", job), zap.Error(recErr))
		}
	}
	return updated, err
}
