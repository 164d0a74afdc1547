// Package trial implements the one-time, time-boxed trial access.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/storage/repository"
)

// ErrAlreadyTrialed — the account already used its one trial, active or not.
var ErrAlreadyTrialed = errors.New("trial already used")

// TrialRepository defines the storage methods for trial grants.
type TrialRepository interface {
	EnsureAccount(ctx context.Context, accountUID string) error
	CreateTrialGrant(ctx context.Context, accountUID string, startedAt, expiresAt time.Time) (*models.TrialGrant, error)
	GetTrialGrant(ctx context.Context, accountUID string) (*models.TrialGrant, error)
	ExpireTrialGrant(ctx context.Context, accountUID string) (int, error)
}

// TrialService implements trial grants and expiry.
type TrialService struct {
	repo      TrialRepository
	trialDays int
	log       *slog.Logger
	now       func() time.Time
}

// NewTrialService creates a new TrialService with the configured trial
// length in days.
func NewTrialService(repo TrialRepository, trialDays int, log *slog.Logger) *TrialService {
	return &TrialService{
		repo:      repo,
		trialDays: trialDays,
		log:       log,
		now:       time.Now,
	}
}

// Start grants the one-time trial for an account. A prior grant in any
// state fails the call with ErrAlreadyTrialed and leaves state untouched.
func (s *TrialService) Start(ctx context.Context, accountUID string) (*models.TrialGrant, error) {
	if err := s.repo.EnsureAccount(ctx, accountUID); err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}

	now := s.now()
	grant, err := s.repo.CreateTrialGrant(ctx, accountUID, now, now.AddDate(0, 0, s.trialDays))
	if errors.Is(err, repository.ErrAlreadyExists) {
		return nil, ErrAlreadyTrialed
	}
	if err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}

	s.log.Info("trial started",
		slog.String("account_uid", accountUID),
		slog.Time("expires_at", grant.ExpiresAt))
	return grant, nil
}

// IsActive reports whether the account currently has a running trial.
func (s *TrialService) IsActive(ctx context.Context, accountUID string) (bool, error) {
	grant, err := s.repo.GetTrialGrant(ctx, accountUID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is trial active: %w", err)
	}
	return grant.Status == models.TrialActive && grant.ExpiresAt.After(s.now()), nil
}

// Expire flips the account's trial to expired. Expiring an already expired
// trial is a no-op, so concurrent expiry runs are safe.
func (s *TrialService) Expire(ctx context.Context, accountUID string) error {
	count, err := s.repo.ExpireTrialGrant(ctx, accountUID)
	if err != nil {
		return fmt.Errorf("expire trial: %w", err)
	}
	if count > 0 {
		s.log.Info("trial expired", slog.String("account_uid", accountUID))
	}
	return nil
}
