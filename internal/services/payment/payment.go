// Package payment orchestrates checkout against UPayments and reconciles
// webhook callbacks into subscription state.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bunyanhq/billing/internal/config"
	"github.com/bunyanhq/billing/internal/gateway/upayments"
	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/rabbitmq"
	"github.com/bunyanhq/billing/internal/services/catalog"
)

// Sentinel errors for the HTTP layer to map onto statuses.
var (
	// ErrInvalidSignature — the webhook signature did not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrSessionNotFound — no session matches the provider id.
	ErrSessionNotFound = errors.New("payment session not found")
	// ErrGateway — UPayments was unreachable or answered with an error.
	ErrGateway = errors.New("payment gateway unavailable")
)

// SessionRepository defines the storage methods for checkout and
// reconciliation.
type SessionRepository interface {
	EnsureAccount(ctx context.Context, accountUID string) error
	CreateSession(ctx context.Context, session models.PaymentSession) error
	MarkSessionPending(ctx context.Context, id, providerSessionID string) (int, error)
	GetSessionByProviderID(ctx context.Context, providerSessionID string) (*models.PaymentSession, error)
	TransitionSession(ctx context.Context, id string, to models.SessionStatus) (bool, error)
	ApplySuccessfulPayment(ctx context.Context, session *models.PaymentSession, credits int64) (bool, error)
}

// Catalog validates and resolves tiers for checkout.
type Catalog interface {
	GetTier(ctx context.Context, id string) (*models.Tier, error)
}

// Gateway is the slice of the UPayments client the service uses.
type Gateway interface {
	CreateSession(ctx context.Context, req upayments.CreateSessionRequest, idempotencyKey string) (*upayments.CreateSessionResponse, error)
	VerifySignature(body []byte, signature string) bool
}

// PaymentService implements checkout and webhook reconciliation.
type PaymentService struct {
	repo      SessionRepository
	catalog   Catalog
	gateway   Gateway
	publisher rabbitmq.Publisher
	urls      config.Gateway
	log       *slog.Logger
}

// New creates a new PaymentService.
func New(repo SessionRepository, catalog Catalog, gateway Gateway, publisher rabbitmq.Publisher, urls config.Gateway, log *slog.Logger) *PaymentService {
	return &PaymentService{
		repo:      repo,
		catalog:   catalog,
		gateway:   gateway,
		publisher: publisher,
		urls:      urls,
		log:       log,
	}
}

// CheckoutResult is returned to the caller so the UI can redirect the
// customer to the hosted payment page.
type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// StartCheckout validates the tier, opens a payment session with UPayments
// and returns the redirect URL. The tier is validated before any gateway
// call; a gateway failure marks the local session failed so it can never be
// reconciled later.
func (s *PaymentService) StartCheckout(ctx context.Context, accountUID, tierID string) (*CheckoutResult, error) {
	tier, err := s.catalog.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	if !tier.Purchasable {
		return nil, catalog.ErrTierNotFound
	}

	if err := s.repo.EnsureAccount(ctx, accountUID); err != nil {
		return nil, fmt.Errorf("start checkout: %w", err)
	}

	session := models.PaymentSession{
		ID:             uuid.New().String(),
		AccountUID:     accountUID,
		TierID:         tier.ID,
		AmountFils:     tier.PriceFils,
		Currency:       tier.Currency,
		Status:         models.SessionCreated,
		IdempotencyKey: uuid.New().String(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("start checkout: %w", err)
	}

	gwReq := upayments.CreateSessionRequest{
		Order: upayments.Order{
			ID:          session.ID,
			Reference:   session.ID,
			Description: fmt.Sprintf("Bunyan %s subscription", tier.DisplayName),
			Currency:    tier.Currency,
			Amount:      float64(tier.PriceFils) / 1000,
		},
		Customer:        upayments.Customer{UniqueID: accountUID},
		PaymentGateway:  upayments.Gateway{Src: "knet"},
		ReturnURL:       s.urls.ReturnURL,
		CancelURL:       s.urls.CancelURL,
		NotificationURL: s.urls.NotifyURL,
	}
	gwResp, err := s.gateway.CreateSession(ctx, gwReq, session.IdempotencyKey)
	if err != nil {
		if _, terr := s.repo.TransitionSession(ctx, session.ID, models.SessionFailed); terr != nil {
			s.log.Error("failed to mark session failed after gateway error", sl.Err(terr))
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if _, err := s.repo.MarkSessionPending(ctx, session.ID, gwResp.Data.TrackID); err != nil {
		return nil, fmt.Errorf("start checkout: %w", err)
	}

	s.log.Info("checkout started",
		slog.String("session_id", session.ID),
		slog.String("account_uid", accountUID),
		slog.String("tier_id", tier.ID),
		slog.String("track_id", gwResp.Data.TrackID))

	return &CheckoutResult{
		SessionID:   session.ID,
		RedirectURL: gwResp.Data.Link,
	}, nil
}
