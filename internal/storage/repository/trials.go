package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bunyanhq/billing/internal/models"
)

const uniqueViolation = "23505"

// CreateTrialGrant inserts the one-time trial grant for an account. The
// UNIQUE constraint on account_uid enforces one grant ever; a second insert
// returns ErrAlreadyExists regardless of the first grant's status.
func (s *Storage) CreateTrialGrant(ctx context.Context, accountUID string, startedAt, expiresAt time.Time) (*models.TrialGrant, error) {
	const op = "storage.CreateTrialGrant"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO trial_grants (account_uid, started_at, expires_at, status)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id`
	grant := models.TrialGrant{
		AccountUID: accountUID,
		StartedAt:  startedAt,
		ExpiresAt:  expiresAt,
		Status:     models.TrialActive,
	}
	err := s.DB.QueryRowContext(ctx, query, accountUID, startedAt, expiresAt, models.TrialActive).Scan(&grant.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &grant, nil
}

// GetTrialGrant returns the trial grant for an account, if any.
func (s *Storage) GetTrialGrant(ctx context.Context, accountUID string) (*models.TrialGrant, error) {
	const op = "storage.GetTrialGrant"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, account_uid, started_at, expires_at, status
			  FROM trial_grants WHERE account_uid = $1`
	row := s.DB.QueryRowContext(ctx, query, accountUID)

	var result models.TrialGrant
	err := row.Scan(&result.ID, &result.AccountUID, &result.StartedAt, &result.ExpiresAt, &result.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// ExpireTrialGrant flips an active grant to expired. Expiring an already
// expired grant matches zero rows, which makes the operation idempotent.
func (s *Storage) ExpireTrialGrant(ctx context.Context, accountUID string) (int, error) {
	const op = "storage.ExpireTrialGrant"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE trial_grants SET status = $1
			  WHERE account_uid = $2 AND status = $3`
	result, err := s.DB.ExecContext(ctx, query, models.TrialExpired, accountUID, models.TrialActive)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// ListExpiredActiveTrials returns active grants whose expiry has passed.
func (s *Storage) ListExpiredActiveTrials(ctx context.Context, now time.Time) ([]*models.TrialGrant, error) {
	const op = "storage.ListExpiredActiveTrials"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, account_uid, started_at, expires_at, status
			  FROM trial_grants
			  WHERE status = $1 AND expires_at <= $2
			  ORDER BY expires_at`
	rows, err := s.DB.QueryContext(ctx, query, models.TrialActive, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.TrialGrant
	for rows.Next() {
		var item models.TrialGrant
		if err := rows.Scan(&item.ID, &item.AccountUID, &item.StartedAt, &item.ExpiresAt, &item.Status); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
