package models

import "time"

// SessionStatus is the state of a checkout attempt. Transitions are
// forward-only: created -> pending -> succeeded | failed | expired.
type SessionStatus string

const (
	// SessionCreated — the row exists, no provider session yet.
	SessionCreated SessionStatus = "created"
	// SessionPending — the provider session is open, awaiting the webhook.
	SessionPending SessionStatus = "pending"
	// SessionSucceeded — payment confirmed, terminal.
	SessionSucceeded SessionStatus = "succeeded"
	// SessionFailed — payment declined or session creation failed, terminal.
	SessionFailed SessionStatus = "failed"
	// SessionExpired — the provider session timed out, terminal.
	SessionExpired SessionStatus = "expired"
)

// Terminal reports whether the status is absorbing.
func (s SessionStatus) Terminal() bool {
	return s == SessionSucceeded || s == SessionFailed || s == SessionExpired
}

// PaymentSession is a single checkout attempt against the gateway.
type PaymentSession struct {
	ID                string        `json:"id"`
	AccountUID        string        `json:"account_uid"`
	TierID            string        `json:"tier_id"`
	AmountFils        int64         `json:"amount_fils"`
	Currency          string        `json:"currency"`
	ProviderSessionID string        `json:"provider_session_id"`
	Status            SessionStatus `json:"status"`
	IdempotencyKey    string        `json:"idempotency_key"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
