// Package catalog serves the subscription tier catalog. Entries are seeded
// by migration and immutable at runtime, so reads go through a long-lived
// redis cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/storage/repository"
)

// ErrTierNotFound — the tier id is unknown or not purchasable.
var ErrTierNotFound = errors.New("tier not found")

const (
	tiersCacheKey = "tiers:catalog"
	tiersCacheTTL = time.Hour
)

// TierRepository defines the catalog reads against storage.
type TierRepository interface {
	// ListTiers returns the full catalog ordered by price.
	ListTiers(ctx context.Context) ([]*models.Tier, error)
	// GetTier returns one entry by id.
	GetTier(ctx context.Context, id string) (*models.Tier, error)
}

// Cache describes the caching methods the service needs.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// CatalogService implements the tier catalog reads.
type CatalogService struct {
	repo  TierRepository
	cache Cache
	log   *slog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(repo TierRepository, cache Cache, log *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// ListTiers returns the catalog, via the cache when warm.
func (s *CatalogService) ListTiers(ctx context.Context) ([]*models.Tier, error) {
	var result []*models.Tier
	found, err := s.cache.Get(tiersCacheKey, &result)
	if err != nil {
		s.log.Warn("tier cache read failed", slog.Any("err", err))
	}
	if found {
		return result, nil
	}

	result, err = s.repo.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}

	if err := s.cache.Set(tiersCacheKey, result, tiersCacheTTL); err != nil {
		s.log.Warn("failed to cache tier catalog", slog.Any("err", err))
	}
	return result, nil
}

// GetTier returns one tier by id, purchasable or not. Retired tiers are
// still resolvable here because sessions opened before retirement must
// reconcile; checkout filters on Purchasable itself.
func (s *CatalogService) GetTier(ctx context.Context, id string) (*models.Tier, error) {
	tier, err := s.repo.GetTier(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tier: %w", err)
	}
	return tier, nil
}
