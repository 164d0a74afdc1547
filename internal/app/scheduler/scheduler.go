// Package scheduler runs the periodic billing jobs on cron schedules:
// the daily bonus, trial expiry and the billing-period rollover.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/streadway/amqp"

	"github.com/bunyanhq/billing/internal/config"
	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/rabbitmq"
	"github.com/bunyanhq/billing/internal/services/jobs"
	"github.com/bunyanhq/billing/internal/storage/repository"
)

const jobTimeout = 10 * time.Minute

// App is the scheduler application.
type App struct {
	jobsService *jobs.JobsService
	cron        *cron.Cron
	cfg         config.Jobs
	conn        *amqp.Connection
	ch          *amqp.Channel
	db          *repository.Storage
	logger      *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		err := db.CheckDatabaseReady(ctx)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New connects to RabbitMQ and storage and prepares the cron runner. The
// API binary owns the migrations, so the scheduler only waits for the
// schema to appear.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetBillingQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(ctx, db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	publisher := &rabbitmq.ChannelPublisher{Ch: ch}
	jobsService := jobs.NewJobsService(db, publisher, cfg.DailyBonusCredits, logger)

	return &App{
		jobsService: jobsService,
		cron:        cron.New(),
		cfg:         cfg.Jobs,
		conn:        conn,
		ch:          ch,
		db:          db,
		logger:      logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run registers the cron entries and blocks until ctx is canceled. Every
// job is idempotent per account, so an overlap between a scheduled run
// and a manual trigger through the API is harmless.
func (a *App) Run(ctx context.Context) error {
	entries := []struct {
		spec string
		name string
		run  func(context.Context) (*jobs.Report, error)
	}{
		{a.cfg.DailyBonusSpec, "daily-bonus", a.jobsService.RunDailyBonus},
		{a.cfg.TrialExpirySpec, "trial-expiry", a.jobsService.RunTrialExpiry},
		{a.cfg.RolloverSpec, "period-rollover", a.jobsService.RunPeriodRollover},
	}

	for _, entry := range entries {
		run := entry.run
		name := entry.name
		_, err := a.cron.AddFunc(entry.spec, func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			if _, err := run(jobCtx); err != nil {
				a.logger.Error("scheduled job failed", slog.String("job", name), sl.Err(err))
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", name, err)
		}
		a.logger.Info("scheduled job", slog.String("job", name), slog.String("spec", entry.spec))
	}

	a.cron.Start()
	<-ctx.Done()

	a.logger.Info("shutting down scheduler")
	stopCtx := a.cron.Stop()
	<-stopCtx.Done()

	closeResources(a.ch, a.conn, a.logger)
	a.db.DB.Close()
	return nil
}
