// Package debit implements the HTTP handler that spends credits for a
// generation run. The debit is atomic: the balance can never go negative.
package debit

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
	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/services/credit"
)

// Request is the debit request body.
type Request struct {
	Amount int64 `json:"amount" validate:"required,min=1"`
}

// Service describes the debit operation the handler needs.
type Service interface {
	Debit(ctx context.Context, accountUID string, amount int64, reason string) (int64, error)
}

// Handler spends credits.
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
// @Summary Debit credits
// @Description Atomically deducts credits from the caller's balance. Fails with 402 when the balance is insufficient.
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body Request true "Amount to debit"
// @Success 200 {object} response.Response "New balance"
// @Failure 400 {object} response.ErrorResponse "Bad JSON"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Failure 402 {object} response.ErrorResponse "Insufficient credits"
// @Failure 422 {object} response.ErrorResponse "Validation error"
// @Router /billing/credits/debit [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.debit"
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

	newBalance, err := h.service.Debit(r.Context(), accountUID, req.Amount, models.ReasonGenerationDebit)
	switch {
	case errors.Is(err, credit.ErrInsufficientCredits):
		log.Info("debit rejected, insufficient credits",
			slog.String("account_uid", accountUID),
			slog.Int64("amount", req.Amount))
		w.WriteHeader(http.StatusPaymentRequired)
		render.JSON(w, r, response.Error("insufficient credits"))
		return
	case err != nil:
		log.Error("failed to debit credits", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not debit credits"))
		return
	}

	log.Info("credits debited",
		slog.String("account_uid", accountUID),
		slog.Int64("amount", req.Amount),
		slog.Int64("balance", newBalance))
	render.JSON(w, r, response.OKWithData(map[string]int64{"balance": newBalance}))
}
