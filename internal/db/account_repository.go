package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

const (
	usersCollection   = "users"
	jobRunsCollection = "jobRuns"

	// maxTxAttempts bounds retries of transactions aborted by contention on hot accounts.
	maxTxAttempts = 25
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// firestoreAccountRepository implements AccountRepository on Firestore transactions.
type firestoreAccountRepository struct {
	client *firestore.Client
}

// NewFirestoreAccountRepository creates an AccountRepository backed by the users collection.
func NewFirestoreAccountRepository(client *firestore.Client) AccountRepository {
	if client == nil {
		panic("Firestore client is not initialized for AccountRepository")
	}
	return &firestoreAccountRepository{client: client}
}

func (r *firestoreAccountRepository) doc(userID string) *firestore.DocumentRef {
	return r.client.Collection(usersCollection).Doc(userID)
}

func decodeAccount(snap *firestore.DocumentSnapshot) (*models.Account, error) {
	var acct models.Account
	if err := snap.DataTo(&acct); err != nil {
		return nil, fmt.Errorf("failed to decode account '%s': %w", snap.Ref.ID, err)
	}
	acct.ID = snap.Ref.ID
	return &acct, nil
}

// ledgerFields are the only fields written by Update and UpdateBatch.
func ledgerFields(acct *models.Account) map[string]interface{} {
	return map[string]interface{}{
		"credit":      acct.Credit,
		"lastRefresh": acct.LastRefresh,
	}
}

func (r *firestoreAccountRepository) GetByID(ctx context.Context, userID string) (*models.Account, error) {
	if userID == "" {
		return nil, errors.New("userID cannot be empty for GetByID operation")
	}
	snap, err := r.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("account '%s': %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account '%s': %w", userID, err)
	}
	return decodeAccount(snap)
}

func (r *firestoreAccountRepository) Upsert(ctx context.Context, acct *models.Account) (bool, error) {
	if acct == nil || acct.ID == "" {
		return false, errors.New("account ID cannot be empty for Upsert operation")
	}
	ref := r.doc(acct.ID)
	var created bool
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		_, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			created = true
			return tx.Create(ref, acct)
		}
		if err != nil {
			return err
		}
		return tx.Set(ref, map[string]interface{}{
			"email":       acct.Email,
			"tier":        acct.Tier,
			"lastUpdated": acct.LastUpdated,
		}, firestore.MergeAll)
	}, firestore.MaxAttempts(maxTxAttempts))
	if err != nil {
		return false, fmt.Errorf("failed to upsert account '%s': %w", acct.ID, err)
	}
	return created, nil
}

func (r *firestoreAccountRepository) Update(ctx context.Context, userID string, fn AccountMutator) (*models.Account, error) {
	if userID == "" {
		return nil, errors.New("userID cannot be empty for Update operation")
	}
	ref := r.doc(userID)
	var updated *models.Account
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("account '%s': %w", userID, ErrNotFound)
			}
			return err
		}
		acct, err := decodeAccount(snap)
		if err != nil {
			return err
		}
		if err := fn(acct); err != nil {
			return err
		}
		updated = acct
		return tx.Set(ref, ledgerFields(acct), firestore.MergeAll)
	}, firestore.MaxAttempts(maxTxAttempts))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *firestoreAccountRepository) UpdateBatch(ctx context.Context, userIDs []string, fn BatchMutator) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	refs := make([]*firestore.DocumentRef, len(userIDs))
	for i, id := range userIDs {
		refs[i] = r.doc(id)
	}

	var changed int
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = 0
		// Firestore requires every read of a transaction to happen before its first write.
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		type pending struct {
			ref  *firestore.DocumentRef
			acct *models.Account
		}
		writes := make([]pending, 0, len(snaps))
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			acct, err := decodeAccount(snap)
			if err != nil {
				return err
			}
			ok, err := fn(acct)
			if err != nil {
				return err
			}
			if ok {
				writes = append(writes, pending{ref: snap.Ref, acct: acct})
			}
		}
		for _, w := range writes {
			if err := tx.Set(w.ref, ledgerFields(w.acct), firestore.MergeAll); err != nil {
				return err
			}
		}
		changed = len(writes)
		return nil
	}, firestore.MaxAttempts(maxTxAttempts))
	if err != nil {
		return 0, fmt.Errorf("batch of %d accounts aborted: %w", len(userIDs), err)
	}
	return changed, nil
}

func collectIDs(iter *firestore.DocumentIterator) ([]string, error) {
	defer iter.Stop()
	var ids []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, doc.Ref.ID)
	}
}

func (r *firestoreAccountRepository) ListStaleIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := r.client.Collection(usersCollection).
		Where("lastRefresh", "<=", cutoff).
		Select().
		Limit(limit)
	ids, err := collectIDs(query.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts refreshed before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return ids, nil
}

func (r *firestoreAccountRepository) ListIDs(ctx context.Context, startAfter string, limit int) ([]string, error) {
	query := r.client.Collection(usersCollection).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Select().
		Limit(limit)
	if startAfter != "" {
		query = query.StartAfter(startAfter)
	}
	ids, err := collectIDs(query.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts after '%s': %w", startAfter, err)
	}
	return ids, nil
}

// firestoreJobRunRepository implements JobRunRepository using Firestore.
type firestoreJobRunRepository struct {
	client *firestore.Client
}

// NewFirestoreJobRunRepository creates a JobRunRepository backed by the jobRuns collection.
func NewFirestoreJobRunRepository(client *firestore.Client) JobRunRepository {
	if client == nil {
		panic("Firestore client is not initialized for JobRunRepository")
	}
	return &firestoreJobRunRepository{client: client}
}

// Create adds a job run with an auto-generated ID.
func (r *firestoreJobRunRepository) Create(ctx context.Context, run models.JobRun) error {
	docRef := r.client.Collection(jobRunsCollection).NewDoc()
	if _, err := docRef.Create(ctx, run); err != nil {
		return fmt.Errorf("failed to record %s job run: %w", run.Job, err)
	}
	return nil
}
