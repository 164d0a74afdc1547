package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bunyanhq/billing/internal/models"
)

// DebitCredits decrements the account balance and appends the matching
// ledger entry in one transaction. The WHERE clause on the current balance
// is the per-account serialization point: two concurrent debits race on the
// row lock and the loser re-evaluates the condition, so the balance can
// never go negative. Returns the new balance, or ErrInsufficientCredits.
func (s *Storage) DebitCredits(ctx context.Context, accountUID string, amount int64, reason string) (int64, error) {
	const op = "storage.DebitCredits"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE accounts
			  SET credit_balance = credit_balance - $1
			  WHERE uid = $2 AND credit_balance >= $1
			  RETURNING credit_balance`
	var newBalance int64
	err = tx.QueryRowContext(ctx, query, amount, accountUID).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", op, ErrInsufficientCredits)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	ledger := `INSERT INTO credit_ledger (account_uid, delta, reason) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, ledger, accountUID, -amount, reason); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newBalance, nil
}

// CreditCredits increments the account balance and appends the matching
// ledger entry in one transaction. Returns the new balance.
func (s *Storage) CreditCredits(ctx context.Context, accountUID string, amount int64, reason string) (int64, error) {
	const op = "storage.CreditCredits"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE accounts
			  SET credit_balance = credit_balance + $1
			  WHERE uid = $2
			  RETURNING credit_balance`
	var newBalance int64
	if err := tx.QueryRowContext(ctx, query, amount, accountUID).Scan(&newBalance); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	ledger := `INSERT INTO credit_ledger (account_uid, delta, reason) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, ledger, accountUID, amount, reason); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newBalance, nil
}

// GetBalance returns the materialized credit balance for one account.
func (s *Storage) GetBalance(ctx context.Context, accountUID string) (int64, error) {
	const op = "storage.GetBalance"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var balance int64
	query := `SELECT credit_balance FROM accounts WHERE uid = $1`
	if err := s.DB.QueryRowContext(ctx, query, accountUID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return balance, nil
}

// ListLedgerEntries returns the most recent ledger entries for one account.
func (s *Storage) ListLedgerEntries(ctx context.Context, accountUID string, limit, offset int) ([]*models.LedgerEntry, error) {
	const op = "storage.ListLedgerEntries"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, account_uid, delta, reason, created_at
			  FROM credit_ledger
			  WHERE account_uid = $1
			  ORDER BY id DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, accountUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.LedgerEntry
	for rows.Next() {
		var item models.LedgerEntry
		if err := rows.Scan(&item.ID, &item.AccountUID, &item.Delta, &item.Reason, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
