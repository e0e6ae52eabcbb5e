package models

import "time"

// Tier names stored on an account document.
const (
	TierFree    = "free"
	TierPremium = "premium"
	TierPlus    = "plus" // legacy synonym of premium used by older clients
	TierTeam    = "team"
)

// Account is the per-user credit record. The document ID is the identity provider's
// stable subject (`sub`) claim.
type Account struct {
	ID          string    `json:"uid" firestore:"-"`
	Email       string    `json:"email" firestore:"email"`
	Tier        string    `json:"tier" firestore:"tier"`
	Credit      int64     `json:"credit" firestore:"credit"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated" firestore:"lastUpdated"`
	LastRefresh time.Time `json:"lastRefresh" firestore:"lastRefresh"`
}

// JobRun records one execution of a ledger maintenance job.
type JobRun struct {
	ID         string    `json:"id" firestore:"-"`
	Job        string    `json:"job" firestore:"job"`
	StartedAt  time.Time `json:"startedAt" firestore:"startedAt"`
	FinishedAt time.Time `json:"finishedAt" firestore:"finishedAt"`
	Updated    int       `json:"updated" firestore:"updated"`
	Error      string    `json:"error,omitempty" firestore:"error,omitempty"`
}
