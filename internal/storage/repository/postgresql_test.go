package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunyanhq/billing/internal/models"
)

func TestStorage_Tiers(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	tiers, err := storage.ListTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, "starter", tiers[0].ID)
	assert.Equal(t, int64(3000), tiers[0].PriceFils)
	assert.Equal(t, "KWD", tiers[0].Currency)
	assert.Contains(t, tiers[1].Features, "custom-domain")

	pro, err := storage.GetTier(ctx, "pro")
	require.NoError(t, err)
	assert.Equal(t, int64(500), pro.CreditsPerPeriod)
	assert.True(t, pro.Purchasable)

	_, err = storage.GetTier(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_DebitCredits(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestAccount(t, storage, 100)

	balance, err := storage.DebitCredits(ctx, uid, 30, models.ReasonGenerationDebit)
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)

	// The ledger mirrors the balance change with a negative delta.
	assert.Equal(t, int64(-30), ledgerSum(t, storage, uid))

	_, err = storage.DebitCredits(ctx, uid, 200, models.ReasonGenerationDebit)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	// The failed debit left balance and ledger untouched.
	got, err := storage.GetBalance(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(70), got)
	assert.Equal(t, int64(-30), ledgerSum(t, storage, uid))
}

func TestStorage_DebitCredits_Concurrent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	// 10 credits, 20 workers debiting 1 each: exactly 10 may win and the
	// balance must end at zero, never negative.
	uid := createTestAccount(t, storage, 10)

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.DebitCredits(ctx, uid, 1, models.ReasonGenerationDebit)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, ErrInsufficientCredits)
			rejected++
		}
	}

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)

	balance, err := storage.GetBalance(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(-10), ledgerSum(t, storage, uid))
}

func TestStorage_CreditCredits(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestAccount(t, storage, 0)

	balance, err := storage.CreditCredits(ctx, uid, 50, models.ReasonDailyBonus)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	entries, err := storage.ListLedgerEntries(ctx, uid, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(50), entries[0].Delta)
	assert.Equal(t, models.ReasonDailyBonus, entries[0].Reason)
}

func TestStorage_GrantDailyBonus(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestAccount(t, storage, 0)
	today := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	applied, err := storage.GrantDailyBonus(ctx, uid, 5, today)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second trigger on the same day is a no-op.
	applied, err = storage.GrantDailyBonus(ctx, uid, 5, today)
	require.NoError(t, err)
	assert.False(t, applied)

	balance, err := storage.GetBalance(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)

	// The next day grants again.
	applied, err = storage.GrantDailyBonus(ctx, uid, 5, today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, applied)

	eligible, err := storage.ListBonusEligibleAccounts(ctx, today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.NotContains(t, eligible, uid)
}

func TestStorage_ApplyRollover(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestAccount(t, storage, 0)
	anchor := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err := storage.DB.Exec(`UPDATE accounts SET tier_id = 'pro', period_start = $1 WHERE uid = $2`, anchor, uid)
	require.NoError(t, err)

	due, err := storage.ListRolloverDueAccounts(ctx, time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, uid, due[0].UID)

	newAnchor := anchor.AddDate(0, 2, 0)
	applied, err := storage.ApplyRollover(ctx, uid, anchor, newAnchor, 1000)
	require.NoError(t, err)
	assert.True(t, applied)

	// A concurrent run that observed the old anchor loses the CAS.
	applied, err = storage.ApplyRollover(ctx, uid, anchor, newAnchor, 1000)
	require.NoError(t, err)
	assert.False(t, applied)

	balance, err := storage.GetBalance(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, int64(1000), ledgerSum(t, storage, uid))
}

func TestStorage_SessionLifecycle(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestAccount(t, storage, 0)
	session := models.PaymentSession{
		ID:             uuid.New().String(),
		AccountUID:     uid,
		TierID:         "pro",
		AmountFils:     9000,
		Currency:       "KWD",
		Status:         models.SessionCreated,
		IdempotencyKey: uuid.New().String(),
	}
	require.NoError(t, storage.CreateSession(ctx, session))

	count, err := storage.MarkSessionPending(ctx, session.ID, "track-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	loaded, err := storage.GetSessionByProviderID(ctx, "track-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, models.SessionPending, loaded.Status)

	_, err = storage.GetSessionByProviderID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	applied, err := storage.ApplySuccessfulPayment(ctx, loaded, 500)
	require.NoError(t, err)
	assert.True(t, applied)

	// A replayed webhook loses the CAS; balance and tier stay unchanged.
	applied, err = storage.ApplySuccessfulPayment(ctx, loaded, 500)
	require.NoError(t, err)
	assert.False(t, applied)

	account, err := storage.GetAccount(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "pro", account.TierID)
	assert.Equal(t, int64(500), account.CreditBalance)
	require.NotNil(t, account.PeriodStart)
	assert.Equal(t, int64(500), ledgerSum(t, storage, uid))

	// Terminal sessions never transition again.
	moved, err := storage.TransitionSession(ctx, session.ID, models.SessionExpired)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestStorage_TrialGrants(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestAccount(t, storage, 0)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := started.AddDate(0, 0, 7)

	grant, err := storage.CreateTrialGrant(ctx, uid, started, expires)
	require.NoError(t, err)
	assert.Equal(t, models.TrialActive, grant.Status)

	// One trial per account, ever.
	_, err = storage.CreateTrialGrant(ctx, uid, started, expires)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	expired, err := storage.ListExpiredActiveTrials(ctx, expires.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, uid, expired[0].AccountUID)

	count, err := storage.ExpireTrialGrant(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Expiring again is a no-op.
	count, err = storage.ExpireTrialGrant(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	loaded, err := storage.GetTrialGrant(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, models.TrialExpired, loaded.Status)
}

func TestStorage_EnsureAccount(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	uid := uuid.New().String()
	require.NoError(t, storage.EnsureAccount(ctx, uid))
	// Idempotent for an existing row.
	require.NoError(t, storage.EnsureAccount(ctx, uid))

	account, err := storage.GetAccount(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.CreditBalance)
	assert.Empty(t, account.TierID)
}
