package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/bunyanhq/billing/internal/models"
)

// ListTiers returns the full tier catalog ordered by price.
func (s *Storage) ListTiers(ctx context.Context) ([]*models.Tier, error) {
	const op = "storage.ListTiers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, display_name, price_fils, currency, credits_per_period, features, purchasable
			  FROM subscription_tiers
			  ORDER BY price_fils`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Tier
	for rows.Next() {
		var item models.Tier
		if err := rows.Scan(&item.ID, &item.DisplayName, &item.PriceFils, &item.Currency,
			&item.CreditsPerPeriod, pq.Array(&item.Features), &item.Purchasable); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetTier returns one catalog entry by id.
func (s *Storage) GetTier(ctx context.Context, id string) (*models.Tier, error) {
	const op = "storage.GetTier"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, display_name, price_fils, currency, credits_per_period, features, purchasable
			  FROM subscription_tiers WHERE id = $1`
	row := s.DB.QueryRowContext(ctx, query, id)

	var result models.Tier
	err := row.Scan(&result.ID, &result.DisplayName, &result.PriceFils, &result.Currency,
		&result.CreditsPerPeriod, pq.Array(&result.Features), &result.Purchasable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}
