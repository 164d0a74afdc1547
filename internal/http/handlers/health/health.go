// Package health implements the liveness probe.
package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/bunyanhq/billing/internal/http/response"
	"github.com/bunyanhq/billing/internal/lib/sl"
)

// Checker reports whether the storage is reachable.
type Checker interface {
	CheckDatabaseReady(ctx context.Context) error
}

// Handler answers health probes.
type Handler struct {
	log     *slog.Logger
	checker Checker
}

// New creates a new Handler.
func New(log *slog.Logger, checker Checker) *Handler {
	return &Handler{
		log:     log,
		checker: checker,
	}
}

// ServeHTTP godoc
// @Summary Health check
// @Description Reports whether the service and its storage are ready.
// @Tags Service
// @Produce json
// @Success 200 {object} response.Response "Healthy"
// @Failure 503 {object} response.ErrorResponse "Storage unreachable"
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.CheckDatabaseReady(r.Context()); err != nil {
		h.log.Error("health check failed", sl.Err(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("storage unreachable"))
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]string{"status": "healthy"}))
}
