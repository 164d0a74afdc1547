// Package balance implements the HTTP handler that reports the caller's
// credit balance and recent ledger entries.
package balance

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/bunyanhq/billing/internal/http/middlewarectx"
	"github.com/bunyanhq/billing/internal/http/response"
	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/models"
)

// Service describes the credit reads the handler needs.
type Service interface {
	Balance(ctx context.Context, accountUID string) (int64, error)
	Ledger(ctx context.Context, accountUID string, limit, offset int) ([]*models.LedgerEntry, error)
}

// Handler serves credit balances.
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

const ledgerLimit = 20

// ServeHTTP godoc
// @Summary Get credit balance
// @Description Returns the caller's credit balance and the most recent ledger entries.
// @Tags Billing
// @Produce json
// @Success 200 {object} response.Response "Balance and ledger"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Failure 500 {object} response.ErrorResponse "Internal error"
// @Router /billing/credits/balance [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.balance"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	accountUID, ok := r.Context().Value(middlewarectx.AccountUID).(string)
	if !ok || accountUID == "" {
		log.Error("account uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	bal, err := h.service.Balance(r.Context(), accountUID)
	if err != nil {
		log.Error("failed to get balance", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get balance"))
		return
	}

	entries, err := h.service.Ledger(r.Context(), accountUID, ledgerLimit, 0)
	if err != nil {
		log.Error("failed to get ledger", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get balance"))
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"balance": bal,
		"ledger":  entries,
	}))
}
