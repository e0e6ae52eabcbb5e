package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

func TestMemoryAccountRepository_UpsertMergesProfileOnly(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := repo.Upsert(ctx, &models.Account{ID: "u1", Email: "a@x.io", Tier: "free", Credit: 1000, CreatedAt: created})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Upsert(ctx, &models.Account{ID: "u1", Email: "b@x.io", Tier: "premium", Credit: 50000, CreatedAt: created.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, ok)

	acct, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "b@x.io", acct.Email)
	assert.Equal(t, "premium", acct.Tier)
	assert.Equal(t, int64(1000), acct.Credit)
	assert.Equal(t, created, acct.CreatedAt)
}

func TestMemoryAccountRepository_UpdateAbortsOnError(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()
	_, _ = repo.Upsert(ctx, &models.Account{ID: "u1", Credit: 5})

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "u1", func(a *models.Account) error {
		a.Credit = 0
		return boom
	})
	require.ErrorIs(t, err, boom)

	acct, _ := repo.GetByID(ctx, "u1")
	assert.Equal(t, int64(5), acct.Credit)

	_, err = repo.Update(ctx, "missing", func(*models.Account) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAccountRepository_UpdateBatchAllOrNothing(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, _ = repo.Upsert(ctx, &models.Account{ID: id, Credit: 1})
	}

	_, err := repo.UpdateBatch(ctx, []string{"a", "b", "c"}, func(a *models.Account) (bool, error) {
		if a.ID == "c" {
			return false, errors.New("storage unavailable")
		}
		a.Credit = 99
		return true, nil
	})
	require.Error(t, err)
	for _, id := range []string{"a", "b", "c"} {
		acct, _ := repo.GetByID(ctx, id)
		assert.Equal(t, int64(1), acct.Credit, id)
	}

	n, err := repo.UpdateBatch(ctx, []string{"a", "missing", "c"}, func(a *models.Account) (bool, error) {
		a.Credit = 7
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryAccountRepository_Listing(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, _ = repo.Upsert(ctx, &models.Account{ID: "a", LastRefresh: cutoff.Add(-time.Hour)})
	_, _ = repo.Upsert(ctx, &models.Account{ID: "b", LastRefresh: cutoff})
	_, _ = repo.Upsert(ctx, &models.Account{ID: "c", LastRefresh: cutoff.Add(time.Hour)})

	stale, err := repo.ListStaleIDs(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stale)

	page, err := repo.ListIDs(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, page)

	page, err = repo.ListIDs(ctx, "b", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, page)
}
