package models

import "time"

// Ledger reasons. Every credit mutation appends exactly one entry with one
// of these.
const (
	ReasonGenerationDebit = "generation_debit"
	ReasonTierGrant       = "tier_grant"
	ReasonDailyBonus      = "daily_bonus"
	ReasonRolloverGrant   = "rollover_grant"
)

// LedgerEntry is an append-only record of a credit balance change.
// Delta is signed: negative for debits, positive for grants.
type LedgerEntry struct {
	ID         int64     `json:"id"`
	AccountUID string    `json:"account_uid"`
	Delta      int64     `json:"delta"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
