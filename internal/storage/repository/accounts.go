package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bunyanhq/billing/internal/models"
)

// EnsureAccount creates the billing row for an account if it does not exist
// yet. The account service owns identity; billing materializes its view
// lazily on the first billing-relevant request.
func (s *Storage) EnsureAccount(ctx context.Context, accountUID string) error {
	const op = "storage.EnsureAccount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO accounts (uid) VALUES ($1)
			  ON CONFLICT (uid) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, accountUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetAccount returns the billing state of one account.
func (s *Storage) GetAccount(ctx context.Context, accountUID string) (*models.Account, error) {
	const op = "storage.GetAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, tier_id, credit_balance, period_start, last_bonus_date, created_at
			  FROM accounts WHERE uid = $1`
	row := s.DB.QueryRowContext(ctx, query, accountUID)

	var result models.Account
	var tierID sql.NullString
	err := row.Scan(&result.UID, &tierID, &result.CreditBalance,
		&result.PeriodStart, &result.LastBonusDate, &result.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.TierID = tierID.String
	return &result, nil
}

// ListBonusEligibleAccounts returns the UIDs of accounts that have not yet
// received the daily bonus for the given day.
func (s *Storage) ListBonusEligibleAccounts(ctx context.Context, day time.Time) ([]string, error) {
	const op = "storage.ListBonusEligibleAccounts"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid FROM accounts
			  WHERE last_bonus_date IS NULL OR last_bonus_date < $1::date
			  ORDER BY uid`
	rows, err := s.DB.QueryContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GrantDailyBonus credits the bonus amount to one account, guarded by the
// last-granted date so a second run on the same day is a no-op. Returns
// false when the account was already granted today.
func (s *Storage) GrantDailyBonus(ctx context.Context, accountUID string, amount int64, day time.Time) (bool, error) {
	const op = "storage.GrantDailyBonus"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE accounts
			  SET credit_balance = credit_balance + $1, last_bonus_date = $2::date
			  WHERE uid = $3 AND (last_bonus_date IS NULL OR last_bonus_date < $2::date)`
	result, err := tx.ExecContext(ctx, query, amount, day, accountUID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	ledger := `INSERT INTO credit_ledger (account_uid, delta, reason) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, ledger, accountUID, amount, models.ReasonDailyBonus); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// ListRolloverDueAccounts returns accounts whose billing period boundary has
// passed. The exact number of elapsed periods is computed by the caller.
func (s *Storage) ListRolloverDueAccounts(ctx context.Context, now time.Time) ([]*models.Account, error) {
	const op = "storage.ListRolloverDueAccounts"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, tier_id, credit_balance, period_start, last_bonus_date, created_at
			  FROM accounts
			  WHERE tier_id IS NOT NULL AND period_start IS NOT NULL
			    AND period_start + INTERVAL '1 month' <= $1
			  ORDER BY uid`
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Account
	for rows.Next() {
		var item models.Account
		var tierID sql.NullString
		if err := rows.Scan(&item.UID, &tierID, &item.CreditBalance,
			&item.PeriodStart, &item.LastBonusDate, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		item.TierID = tierID.String
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ApplyRollover advances the account's period anchor and grants the rollover
// credits in one transaction. The compare-and-swap on period_start makes a
// concurrent second run a no-op: only the run that observed oldPeriodStart
// wins. Returns false when the anchor moved underneath us.
func (s *Storage) ApplyRollover(ctx context.Context, accountUID string, oldPeriodStart, newPeriodStart time.Time, credits int64) (bool, error) {
	const op = "storage.ApplyRollover"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE accounts
			  SET credit_balance = credit_balance + $1, period_start = $2
			  WHERE uid = $3 AND period_start = $4`
	result, err := tx.ExecContext(ctx, query, credits, newPeriodStart, accountUID, oldPeriodStart)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	ledger := `INSERT INTO credit_ledger (account_uid, delta, reason) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, ledger, accountUID, credits, models.ReasonRolloverGrant); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}
