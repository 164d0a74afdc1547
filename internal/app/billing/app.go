// Package billing assembles the billing API: storage, cache, broker,
// gateway client and the HTTP server.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/bunyanhq/billing/internal/cache"
	"github.com/bunyanhq/billing/internal/config"
	"github.com/bunyanhq/billing/internal/gateway/upayments"
	"github.com/bunyanhq/billing/internal/lib/jwt"
	"github.com/bunyanhq/billing/internal/migrations"
	"github.com/bunyanhq/billing/internal/rabbitmq"
	"github.com/bunyanhq/billing/internal/services/catalog"
	"github.com/bunyanhq/billing/internal/services/credit"
	"github.com/bunyanhq/billing/internal/services/jobs"
	"github.com/bunyanhq/billing/internal/services/payment"
	"github.com/bunyanhq/billing/internal/services/trial"
	"github.com/bunyanhq/billing/internal/storage/repository"
)

// App owns the HTTP server and the connections it serves from.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	rabbitmq *amqp.Connection
}

// New connects to PostgreSQL, redis and RabbitMQ, runs the migrations,
// wires the services and builds the HTTP server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetBillingQueues())
	if err != nil {
		return nil, err
	}
	publisher := &rabbitmq.ChannelPublisher{Ch: ch}

	gatewayClient := upayments.NewClient(cfg.Gateway)
	tokenMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	catalogService := catalog.NewCatalogService(db, cacheRedis, logger)
	creditService := credit.NewCreditService(db, cacheRedis, publisher, cfg.LowBalanceThreshold, logger)
	trialService := trial.NewTrialService(db, cfg.TrialDays, logger)
	paymentService := payment.New(db, catalogService, gatewayClient, publisher, cfg.Gateway, logger)
	jobsService := jobs.NewJobsService(db, publisher, cfg.DailyBonusCredits, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, db, tokenMaker,
		catalogService, creditService, trialService, paymentService, jobsService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		rabbitmq: conn,
	}, nil
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.db.DB.Close()
		if cerr := a.rabbitmq.Close(); cerr != nil {
			a.logger.Warn("failed to close rabbitmq connection", slog.Any("err", cerr))
		}
		return err
	}
}
