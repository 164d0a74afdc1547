package billing

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/bunyanhq/billing/internal/config"
	"github.com/bunyanhq/billing/internal/http/handlers/billing/balance"
	"github.com/bunyanhq/billing/internal/http/handlers/billing/checkout"
	"github.com/bunyanhq/billing/internal/http/handlers/billing/debit"
	"github.com/bunyanhq/billing/internal/http/handlers/billing/tiers"
	"github.com/bunyanhq/billing/internal/http/handlers/billing/trialstart"
	"github.com/bunyanhq/billing/internal/http/handlers/billing/webhook"
	croncontrol "github.com/bunyanhq/billing/internal/http/handlers/cron"
	"github.com/bunyanhq/billing/internal/http/handlers/health"
	"github.com/bunyanhq/billing/internal/http/middlewarectx"
	"github.com/bunyanhq/billing/internal/lib/jwt"
	"github.com/bunyanhq/billing/internal/services/catalog"
	"github.com/bunyanhq/billing/internal/services/credit"
	"github.com/bunyanhq/billing/internal/services/jobs"
	"github.com/bunyanhq/billing/internal/services/payment"
	"github.com/bunyanhq/billing/internal/services/trial"
	"github.com/bunyanhq/billing/internal/storage/repository"
)

// RegisterRoutes registers all routes of the billing API.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, db *repository.Storage,
	tokenMaker jwt.Maker,
	catalogService *catalog.CatalogService,
	creditService *credit.CreditService,
	trialService *trial.TrialService,
	paymentService *payment.PaymentService,
	jobsService *jobs.JobsService,
) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/billing", func(r chi.Router) {
		// Public endpoints
		r.Get("/subscription/tiers", tiers.New(logger, catalogService).ServeHTTP)

		// Provider callback, authenticated by signature instead of JWT
		r.Post("/webhook/upayments", webhook.New(logger, paymentService).ServeHTTP)

		// JWT-authenticated group
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokenMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/checkout", checkout.New(logger, paymentService).ServeHTTP)
			r.Get("/credits/balance", balance.New(logger, creditService).ServeHTTP)
			r.Post("/credits/debit", debit.New(logger, creditService).ServeHTTP)
			r.Post("/trial/start", trialstart.New(logger, trialService).ServeHTTP)
		})
	})

	// Manual job triggers for operators and external schedulers
	r.Route("/api/cron", func(r chi.Router) {
		r.Use(middlewarectx.CronTokenMiddleware(cfg.CronTriggerTokenHash, logger))
		r.Post("/daily-bonus", croncontrol.New(logger, jobsService.RunDailyBonus).ServeHTTP)
		r.Post("/trial-expiry", croncontrol.New(logger, jobsService.RunTrialExpiry).ServeHTTP)
		r.Post("/period-rollover", croncontrol.New(logger, jobsService.RunPeriodRollover).ServeHTTP)
	})

	r.Get("/health", health.New(logger, db).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
