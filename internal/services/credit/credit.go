// Package credit implements the consumable credit balance. Every mutation
// pairs the balance change with an append-only ledger entry inside one
// storage transaction; the check-and-decrement for debits is a single
// conditional UPDATE, which is the per-account serialization point.
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/rabbitmq"
	"github.com/bunyanhq/billing/internal/storage/repository"
)

// ErrInsufficientCredits — the debit would drive the balance negative.
var ErrInsufficientCredits = errors.New("insufficient credits")

const (
	balanceCacheTTL = 10 * time.Second
)

func balanceCacheKey(accountUID string) string {
	return fmt.Sprintf("balance:%s", accountUID)
}

// CreditRepository defines the storage methods for balance mutations.
type CreditRepository interface {
	EnsureAccount(ctx context.Context, accountUID string) error
	DebitCredits(ctx context.Context, accountUID string, amount int64, reason string) (int64, error)
	CreditCredits(ctx context.Context, accountUID string, amount int64, reason string) (int64, error)
	GetBalance(ctx context.Context, accountUID string) (int64, error)
	ListLedgerEntries(ctx context.Context, accountUID string, limit, offset int) ([]*models.LedgerEntry, error)
}

// Cache describes the caching methods the service needs.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// CreditService implements debits, grants and balance reads.
type CreditService struct {
	repo         CreditRepository
	cache        Cache
	publisher    rabbitmq.Publisher
	lowThreshold int64
	log          *slog.Logger
}

// NewCreditService creates a new CreditService. lowThreshold is the balance
// under which a credits.low event is emitted after a debit.
func NewCreditService(repo CreditRepository, cache Cache, publisher rabbitmq.Publisher, lowThreshold int64, log *slog.Logger) *CreditService {
	return &CreditService{
		repo:         repo,
		cache:        cache,
		publisher:    publisher,
		lowThreshold: lowThreshold,
		log:          log,
	}
}

// LowBalanceEvent is published when a debit leaves the balance under the
// configured threshold.
type LowBalanceEvent struct {
	AccountUID string `json:"account_uid"`
	Balance    int64  `json:"balance"`
}

// Debit subtracts amount from the account balance. Fails with
// ErrInsufficientCredits when the balance cannot cover the amount; the
// account is never driven negative, even under concurrent debits.
func (s *CreditService) Debit(ctx context.Context, accountUID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	newBalance, err := s.repo.DebitCredits(ctx, accountUID, amount, reason)
	if errors.Is(err, repository.ErrInsufficientCredits) {
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("debit: %w", err)
	}

	if err := s.cache.Invalidate(balanceCacheKey(accountUID)); err != nil {
		s.log.Warn("failed to invalidate balance cache", slog.Any("err", err))
	}

	if newBalance < s.lowThreshold {
		event := LowBalanceEvent{AccountUID: accountUID, Balance: newBalance}
		if err := s.publisher.Publish(rabbitmq.KeyCreditsLow, event); err != nil {
			s.log.Warn("failed to publish credits.low event", slog.Any("err", err))
		}
	}

	s.log.Info("debited credits",
		slog.String("account_uid", accountUID),
		slog.Int64("amount", amount),
		slog.Int64("balance", newBalance))
	return newBalance, nil
}

// Credit adds amount to the account balance with a ledger entry.
func (s *CreditService) Credit(ctx context.Context, accountUID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if err := s.repo.EnsureAccount(ctx, accountUID); err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}

	newBalance, err := s.repo.CreditCredits(ctx, accountUID, amount, reason)
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}

	if err := s.cache.Invalidate(balanceCacheKey(accountUID)); err != nil {
		s.log.Warn("failed to invalidate balance cache", slog.Any("err", err))
	}

	s.log.Info("credited credits",
		slog.String("account_uid", accountUID),
		slog.Int64("amount", amount),
		slog.Int64("balance", newBalance))
	return newBalance, nil
}

// Balance returns the current balance, via a short-lived cache.
func (s *CreditService) Balance(ctx context.Context, accountUID string) (int64, error) {
	key := balanceCacheKey(accountUID)

	var cached int64
	found, err := s.cache.Get(key, &cached)
	if err != nil {
		s.log.Warn("balance cache read failed", slog.Any("err", err))
	}
	if found {
		return cached, nil
	}

	balance, err := s.repo.GetBalance(ctx, accountUID)
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	if err := s.cache.Set(key, balance, balanceCacheTTL); err != nil {
		s.log.Warn("failed to cache balance", slog.Any("err", err))
	}
	return balance, nil
}

// Ledger returns the most recent ledger entries for an account.
func (s *CreditService) Ledger(ctx context.Context, accountUID string, limit, offset int) ([]*models.LedgerEntry, error) {
	return s.repo.ListLedgerEntries(ctx, accountUID, limit, offset)
}
