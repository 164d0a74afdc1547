// Package trialstart implements the HTTP handler that activates the
// one-time free trial for the calling account.
package trialstart

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/bunyanhq/billing/internal/http/middlewarectx"
	"github.com/bunyanhq/billing/internal/http/response"
	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/services/trial"
)

// Service describes the trial operation the handler needs.
type Service interface {
	Start(ctx context.Context, accountUID string) (*models.TrialGrant, error)
}

// Handler starts trials.
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
// @Summary Start free trial
// @Description Activates the one-time free trial. An account can ever hold a single trial; repeats are rejected.
// @Tags Billing
// @Produce json
// @Success 200 {object} response.Response "Trial grant"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Failure 409 {object} response.ErrorResponse "Trial already used"
// @Router /billing/trial/start [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.trialstart"
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

	grant, err := h.service.Start(r.Context(), accountUID)
	switch {
	case errors.Is(err, trial.ErrAlreadyTrialed):
		log.Info("repeat trial attempt", slog.String("account_uid", accountUID))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("trial already used"))
		return
	case err != nil:
		log.Error("failed to start trial", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not start trial"))
		return
	}

	log.Info("trial started",
		slog.String("account_uid", accountUID),
		slog.Time("expires_at", grant.ExpiresAt))
	render.JSON(w, r, response.OKWithData(grant))
}
