// Package checkout implements the HTTP handler that starts a payment
// session for a tier purchase and returns the hosted payment page URL.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/bunyanhq/billing/internal/http/middlewarectx"
	"github.com/bunyanhq/billing/internal/http/response"
	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/services/catalog"
	"github.com/bunyanhq/billing/internal/services/payment"
)

// Request is the checkout request body.
type Request struct {
	TierID string `json:"tier_id" validate:"required"`
}

// Service describes the checkout operation the handler needs.
type Service interface {
	StartCheckout(ctx context.Context, accountUID, tierID string) (*payment.CheckoutResult, error)
}

// Handler starts checkouts.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New creates a new Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Start a checkout
// @Description Creates a payment session for the given tier and returns the redirect URL to the hosted payment page.
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body Request true "Tier to purchase"
// @Success 200 {object} map[string]any "Session id and redirect URL"
// @Failure 400 {object} response.ErrorResponse "Bad JSON or unknown tier"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Failure 422 {object} response.ErrorResponse "Validation error"
// @Failure 502 {object} response.ErrorResponse "Payment gateway unavailable"
// @Router /billing/checkout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkout"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	accountUID, ok := r.Context().Value(middlewarectx.AccountUID).(string)
	if !ok || accountUID == "" {
		log.Error("account uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	result, err := h.service.StartCheckout(r.Context(), accountUID, req.TierID)
	switch {
	case errors.Is(err, catalog.ErrTierNotFound):
		log.Info("checkout for unknown tier", slog.String("tier_id", req.TierID))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown tier"))
		return
	case errors.Is(err, payment.ErrGateway):
		log.Error("gateway failure during checkout", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error("payment gateway unavailable, try again"))
		return
	case err != nil:
		log.Error("failed to start checkout", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not start checkout"))
		return
	}

	log.Info("checkout started", slog.String("session_id", result.SessionID))
	render.JSON(w, r, response.OKWithData(result))
}
