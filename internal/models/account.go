package models

import "time"

// Account is the billing view of a builder account. Identity fields live in
// the account service; this row tracks only what billing mutates.
type Account struct {
	UID           string     `json:"uid"`
	TierID        string     `json:"tier_id"`
	CreditBalance int64      `json:"credit_balance"`
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	LastBonusDate *time.Time `json:"last_bonus_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
