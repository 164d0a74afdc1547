package models

import "time"

// Trial grant statuses. A grant is never deleted, only flipped to expired.
const (
	TrialActive  = "active"
	TrialExpired = "expired"
)

// TrialGrant is the one-time, time-boxed free access for an account.
type TrialGrant struct {
	ID         int64     `json:"id"`
	AccountUID string    `json:"account_uid"`
	StartedAt  time.Time `json:"started_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Status     string    `json:"status"`
}
