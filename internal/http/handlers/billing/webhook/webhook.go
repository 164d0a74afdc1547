// Package webhook implements the HTTP handler that receives UPayments
// payment notifications and reconciles them into session state.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/bunyanhq/billing/internal/http/response"
	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/services/payment"
)

// SignatureHeader carries the HMAC signature UPayments computes over the
// raw request body.
const SignatureHeader = "X-UPayments-Signature"

// Service describes the reconciliation operation the handler needs.
type Service interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*payment.WebhookResult, error)
}

// Handler receives provider callbacks.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New creates a new Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary UPayments webhook
// @Description Receives payment status notifications from UPayments. Replayed deliveries are acknowledged without side effects.
// @Tags Billing
// @Accept json
// @Produce json
// @Param X-UPayments-Signature header string true "HMAC-SHA256 signature of the body"
// @Success 200 {object} response.Response "Settled or duplicate"
// @Failure 400 {object} response.ErrorResponse "Malformed payload"
// @Failure 401 {object} response.ErrorResponse "Bad signature"
// @Failure 404 {object} response.ErrorResponse "Unknown session"
// @Router /billing/webhook/upayments [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		log.Error("security event: webhook with invalid signature",
			slog.String("remote_addr", r.RemoteAddr))
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	case errors.Is(err, payment.ErrSessionNotFound):
		log.Error("webhook for unknown session")
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("session not found"))
		return
	case err != nil:
		log.Error("failed to handle webhook", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid payload"))
		return
	}

	if result.Duplicate {
		log.Info("duplicate webhook acknowledged", slog.String("session_id", result.SessionID))
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"session_id": result.SessionID,
		"status":     result.Status,
		"duplicate":  result.Duplicate,
	}))
}
