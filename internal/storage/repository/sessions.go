package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bunyanhq/billing/internal/models"
)

// CreateSession inserts a new payment session in the created state.
func (s *Storage) CreateSession(ctx context.Context, session models.PaymentSession) error {
	const op = "storage.CreateSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payment_sessions (id, account_uid, tier_id, amount_fils, currency, status, idempotency_key)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.DB.ExecContext(ctx, query,
		session.ID, session.AccountUID, session.TierID, session.AmountFils,
		session.Currency, session.Status, session.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkSessionPending stores the provider session id and moves the session
// from created to pending. Returns the number of updated rows.
func (s *Storage) MarkSessionPending(ctx context.Context, id, providerSessionID string) (int, error) {
	const op = "storage.MarkSessionPending"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payment_sessions
			  SET provider_session_id = $1, status = $2, updated_at = NOW()
			  WHERE id = $3 AND status = $4`
	result, err := s.DB.ExecContext(ctx, query, providerSessionID, models.SessionPending, id, models.SessionCreated)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// GetSessionByProviderID looks a session up by the provider's id.
func (s *Storage) GetSessionByProviderID(ctx context.Context, providerSessionID string) (*models.PaymentSession, error) {
	const op = "storage.GetSessionByProviderID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, account_uid, tier_id, amount_fils, currency,
			     COALESCE(provider_session_id, ''), status, idempotency_key, created_at, updated_at
			  FROM payment_sessions WHERE provider_session_id = $1`
	row := s.DB.QueryRowContext(ctx, query, providerSessionID)

	var result models.PaymentSession
	err := row.Scan(&result.ID, &result.AccountUID, &result.TierID, &result.AmountFils,
		&result.Currency, &result.ProviderSessionID, &result.Status,
		&result.IdempotencyKey, &result.CreatedAt, &result.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// TransitionSession moves a session to a terminal state, guarded so that
// only non-terminal sessions transition. Returns false when the session was
// already terminal — the caller treats that as an idempotent duplicate.
func (s *Storage) TransitionSession(ctx context.Context, id string, to models.SessionStatus) (bool, error) {
	const op = "storage.TransitionSession"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payment_sessions
			  SET status = $1, updated_at = NOW()
			  WHERE id = $2 AND status IN ($3, $4)`
	result, err := s.DB.ExecContext(ctx, query, to, id, models.SessionCreated, models.SessionPending)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// ApplySuccessfulPayment finalizes a successful checkout in one transaction:
// the session flips to succeeded (compare-and-swap against non-terminal
// states), the account moves to the purchased tier with a fresh period
// anchor, and the tier's credit allotment is granted with its ledger entry.
// A duplicate webhook loses the CAS and the whole transaction rolls back,
// so the tier change and the grant happen exactly once. Returns false for
// that duplicate case.
func (s *Storage) ApplySuccessfulPayment(ctx context.Context, session *models.PaymentSession, credits int64) (bool, error) {
	const op = "storage.ApplySuccessfulPayment"
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

	cas := `UPDATE payment_sessions
			SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status IN ($3, $4)`
	result, err := tx.ExecContext(ctx, cas, models.SessionSucceeded, session.ID,
		models.SessionCreated, models.SessionPending)
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

	account := `UPDATE accounts
				SET tier_id = $1, period_start = NOW(), credit_balance = credit_balance + $2
				WHERE uid = $3`
	if _, err := tx.ExecContext(ctx, account, session.TierID, credits, session.AccountUID); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	ledger := `INSERT INTO credit_ledger (account_uid, delta, reason) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, ledger, session.AccountUID, credits, models.ReasonTierGrant); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}
