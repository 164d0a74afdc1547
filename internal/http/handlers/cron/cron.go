// Package cron implements the HTTP triggers for the periodic billing
// jobs. The endpoints sit behind the cron-token middleware and exist for
// external schedulers and for operators re-running a job by hand; the
// jobs themselves are idempotent, so a manual trigger during a scheduled
// run is safe.
package cron

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/bunyanhq/billing/internal/http/response"
	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/services/jobs"
)

// Job is one runnable billing job.
type Job func(ctx context.Context) (*jobs.Report, error)

// Handler triggers a single job and reports its outcome.
type Handler struct {
	log *slog.Logger
	job Job
}

// New creates a Handler around one job.
func New(log *slog.Logger, job Job) *Handler {
	return &Handler{
		log: log,
		job: job,
	}
}

// ServeHTTP godoc
// @Summary Trigger a billing job
// @Description Runs one of the periodic billing jobs and returns its run report. Safe to call while a scheduled run is in flight.
// @Tags Cron
// @Produce json
// @Param X-Cron-Token header string true "Scheduler token"
// @Success 200 {object} response.Response "Run report"
// @Failure 401 {object} response.ErrorResponse "Bad token"
// @Failure 500 {object} response.ErrorResponse "Job failed"
// @Router /cron/{job} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cron"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	report, err := h.job(r.Context())
	if err != nil {
		log.Error("job run failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("job failed"))
		return
	}

	log.Info("job run finished",
		slog.String("job", report.Job),
		slog.Int("scanned", report.Scanned),
		slog.Int("applied", report.Applied),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
	render.JSON(w, r, response.OKWithData(report))
}
