package credit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/rabbitmq"
	"github.com/bunyanhq/billing/internal/storage/repository"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) EnsureAccount(ctx context.Context, accountUID string) error {
	args := m.Called(ctx, accountUID)
	return args.Error(0)
}

func (m *MockRepository) DebitCredits(ctx context.Context, accountUID string, amount int64, reason string) (int64, error) {
	args := m.Called(ctx, accountUID, amount, reason)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) CreditCredits(ctx context.Context, accountUID string, amount int64, reason string) (int64, error) {
	args := m.Called(ctx, accountUID, amount, reason)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetBalance(ctx context.Context, accountUID string) (int64, error) {
	args := m.Called(ctx, accountUID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) ListLedgerEntries(ctx context.Context, accountUID string, limit, offset int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, accountUID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Invalidate(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(routingKey string, message any) error {
	args := m.Called(routingKey, message)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestCreditService_Debit(t *testing.T) {
	tests := []struct {
		name            string
		accountUID      string
		amount          int64
		setupMocks      func(*MockRepository, *MockCache, *MockPublisher)
		expectedBalance int64
		expectedError   error
		expectAnyError  bool
	}{
		{
			name:       "success - balance stays above threshold",
			accountUID: "acc-1",
			amount:     10,
			setupMocks: func(r *MockRepository, c *MockCache, p *MockPublisher) {
				r.On("DebitCredits", mock.Anything, "acc-1", int64(10), models.ReasonGenerationDebit).Return(int64(90), nil).Once()
				c.On("Invalidate", "balance:acc-1").Return(nil).Once()
			},
			expectedBalance: 90,
		},
		{
			name:       "insufficient credits",
			accountUID: "acc-2",
			amount:     500,
			setupMocks: func(r *MockRepository, c *MockCache, p *MockPublisher) {
				r.On("DebitCredits", mock.Anything, "acc-2", int64(500), models.ReasonGenerationDebit).Return(int64(0), repository.ErrInsufficientCredits).Once()
			},
			expectedError: ErrInsufficientCredits,
		},
		{
			name:       "low balance emits event",
			accountUID: "acc-3",
			amount:     95,
			setupMocks: func(r *MockRepository, c *MockCache, p *MockPublisher) {
				r.On("DebitCredits", mock.Anything, "acc-3", int64(95), models.ReasonGenerationDebit).Return(int64(5), nil).Once()
				c.On("Invalidate", "balance:acc-3").Return(nil).Once()
				p.On("Publish", rabbitmq.KeyCreditsLow, LowBalanceEvent{AccountUID: "acc-3", Balance: 5}).Return(nil).Once()
			},
			expectedBalance: 5,
		},
		{
			name:           "non-positive amount rejected before storage",
			accountUID:     "acc-4",
			amount:         0,
			setupMocks:     func(r *MockRepository, c *MockCache, p *MockPublisher) {},
			expectAnyError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			cache := new(MockCache)
			publisher := new(MockPublisher)
			service := NewCreditService(repo, cache, publisher, 10, newNoopLogger())

			tt.setupMocks(repo, cache, publisher)

			balance, err := service.Debit(context.Background(), tt.accountUID, tt.amount, models.ReasonGenerationDebit)

			switch {
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
			case tt.expectAnyError:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedBalance, balance)
			}

			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
			publisher.AssertExpectations(t)
		})
	}
}

func TestCreditService_Credit(t *testing.T) {
	tests := []struct {
		name            string
		accountUID      string
		amount          int64
		setupMocks      func(*MockRepository, *MockCache)
		expectedBalance int64
		expectedError   bool
	}{
		{
			name:       "success",
			accountUID: "acc-1",
			amount:     50,
			setupMocks: func(r *MockRepository, c *MockCache) {
				r.On("EnsureAccount", mock.Anything, "acc-1").Return(nil).Once()
				r.On("CreditCredits", mock.Anything, "acc-1", int64(50), models.ReasonDailyBonus).Return(int64(150), nil).Once()
				c.On("Invalidate", "balance:acc-1").Return(nil).Once()
			},
			expectedBalance: 150,
		},
		{
			name:       "repository error",
			accountUID: "acc-2",
			amount:     50,
			setupMocks: func(r *MockRepository, c *MockCache) {
				r.On("EnsureAccount", mock.Anything, "acc-2").Return(nil).Once()
				r.On("CreditCredits", mock.Anything, "acc-2", int64(50), models.ReasonDailyBonus).Return(int64(0), errors.New("db error")).Once()
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			cache := new(MockCache)
			publisher := new(MockPublisher)
			service := NewCreditService(repo, cache, publisher, 10, newNoopLogger())

			tt.setupMocks(repo, cache)

			balance, err := service.Credit(context.Background(), tt.accountUID, tt.amount, models.ReasonDailyBonus)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedBalance, balance)
			}

			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestCreditService_Balance(t *testing.T) {
	tests := []struct {
		name            string
		accountUID      string
		setupMocks      func(*MockRepository, *MockCache)
		expectedBalance int64
	}{
		{
			name:       "cache hit skips storage",
			accountUID: "acc-1",
			setupMocks: func(r *MockRepository, c *MockCache) {
				c.On("Get", "balance:acc-1", mock.Anything).Run(func(args mock.Arguments) {
					*(args.Get(1).(*int64)) = 77
				}).Return(true, nil).Once()
			},
			expectedBalance: 77,
		},
		{
			name:       "cache miss reads storage and warms cache",
			accountUID: "acc-2",
			setupMocks: func(r *MockRepository, c *MockCache) {
				c.On("Get", "balance:acc-2", mock.Anything).Return(false, nil).Once()
				r.On("GetBalance", mock.Anything, "acc-2").Return(int64(42), nil).Once()
				c.On("Set", "balance:acc-2", int64(42), balanceCacheTTL).Return(nil).Once()
			},
			expectedBalance: 42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			cache := new(MockCache)
			publisher := new(MockPublisher)
			service := NewCreditService(repo, cache, publisher, 10, newNoopLogger())

			tt.setupMocks(repo, cache)

			balance, err := service.Balance(context.Background(), tt.accountUID)

			assert.NoError(t, err)
			assert.Equal(t, tt.expectedBalance, balance)

			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}
