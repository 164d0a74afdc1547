package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/rabbitmq"
	"github.com/bunyanhq/billing/internal/storage/repository"
)

// UPayments transaction statuses delivered in webhooks.
const (
	statusCaptured    = "CAPTURED"
	statusNotCaptured = "NOT CAPTURED"
	statusCanceled    = "CANCELED"
	statusDeclined    = "DECLINED"
	statusExpired     = "EXPIRED"
)

// WebhookPayload is the notification body UPayments posts after a payment
// attempt settles.
type WebhookPayload struct {
	PaymentStatus string `json:"payment_status"`
	TrackID       string `json:"track_id"`
	OrderID       string `json:"order_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ReceiptID     string `json:"receipt_id"`
}

// WebhookResult tells the handler how the callback was settled.
type WebhookResult struct {
	SessionID string
	Status    models.SessionStatus
	// Duplicate is true when the session was already terminal — the
	// delivery was a replay and nothing changed.
	Duplicate bool
	// Ignored is true for statuses the billing core does not act on.
	Ignored bool
}

// PaymentSucceededEvent is published once per successful checkout.
type PaymentSucceededEvent struct {
	SessionID  string `json:"session_id"`
	AccountUID string `json:"account_uid"`
	TierID     string `json:"tier_id"`
	AmountFils int64  `json:"amount_fils"`
	Currency   string `json:"currency"`
}

// HandleWebhook verifies the signature, parses the payload and applies the
// status transition. Providers deliver at-least-once, so a replayed
// notification against a terminal session is settled as a duplicate no-op,
// never an error. On success the tier change and the credit grant commit in
// one storage transaction.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	const op = "payment.HandleWebhook"

	if !s.gateway.VerifySignature(body, signature) {
		return nil, ErrInvalidSignature
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payload.TrackID == "" {
		return nil, fmt.Errorf("%s: missing track_id", op)
	}

	var target models.SessionStatus
	switch payload.PaymentStatus {
	case statusCaptured:
		target = models.SessionSucceeded
	case statusNotCaptured, statusCanceled, statusDeclined:
		target = models.SessionFailed
	case statusExpired:
		target = models.SessionExpired
	default:
		s.log.Info("ignored webhook status", slog.String("payment_status", payload.PaymentStatus))
		return &WebhookResult{Ignored: true}, nil
	}

	session, err := s.repo.GetSessionByProviderID(ctx, payload.TrackID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if target == models.SessionSucceeded {
		return s.settleSuccess(ctx, session)
	}

	applied, err := s.repo.TransitionSession(ctx, session.ID, target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		s.log.Info("duplicate webhook against terminal session",
			slog.String("session_id", session.ID),
			slog.String("status", string(session.Status)))
		return &WebhookResult{SessionID: session.ID, Status: session.Status, Duplicate: true}, nil
	}

	s.log.Info("payment session settled",
		slog.String("session_id", session.ID),
		slog.String("status", string(target)))
	return &WebhookResult{SessionID: session.ID, Status: target}, nil
}

// settleSuccess applies the succeeded transition together with the tier
// change and the credit grant. The compare-and-swap inside
// ApplySuccessfulPayment guarantees the grant happens exactly once no
// matter how many times the provider replays the notification.
func (s *PaymentService) settleSuccess(ctx context.Context, session *models.PaymentSession) (*WebhookResult, error) {
	const op = "payment.settleSuccess"

	tier, err := s.catalog.GetTier(ctx, session.TierID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	applied, err := s.repo.ApplySuccessfulPayment(ctx, session, tier.CreditsPerPeriod)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		s.log.Info("duplicate success webhook, already settled",
			slog.String("session_id", session.ID))
		return &WebhookResult{SessionID: session.ID, Status: models.SessionSucceeded, Duplicate: true}, nil
	}

	event := PaymentSucceededEvent{
		SessionID:  session.ID,
		AccountUID: session.AccountUID,
		TierID:     session.TierID,
		AmountFils: session.AmountFils,
		Currency:   session.Currency,
	}
	if err := s.publisher.Publish(rabbitmq.KeyPaymentSucceeded, event); err != nil {
		s.log.Warn("failed to publish payment.succeeded event", sl.Err(err))
	}

	s.log.Info("payment succeeded",
		slog.String("session_id", session.ID),
		slog.String("account_uid", session.AccountUID),
		slog.String("tier_id", session.TierID),
		slog.Int64("credits_granted", tier.CreditsPerPeriod))
	return &WebhookResult{SessionID: session.ID, Status: models.SessionSucceeded}, nil
}
