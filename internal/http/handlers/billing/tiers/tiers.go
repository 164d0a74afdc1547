// Package tiers implements the HTTP handler that lists the subscription
// tier catalog. The response shape is part of the UI contract:
// {"tiers": [...]} on success, {"error": "Internal server error"} on
// failure, with no internal detail leaking out.
package tiers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/models"
)

// Service describes the catalog read the handler needs.
type Service interface {
	ListTiers(ctx context.Context) ([]*models.Tier, error)
}

// Handler serves the tier catalog.
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
// @Summary List subscription tiers
// @Description Returns the catalog of purchasable subscription tiers.
// @Tags Billing
// @Produce json
// @Success 200 {object} map[string][]models.Tier "Tier catalog"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /billing/subscription/tiers [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.tiers"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	tiers, err := h.service.ListTiers(r.Context())
	if err != nil {
		log.Error("failed to list tiers", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Internal server error"})
		return
	}
	if tiers == nil {
		tiers = []*models.Tier{}
	}

	render.JSON(w, r, map[string]any{"tiers": tiers})
}
