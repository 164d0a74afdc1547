// Package jobs implements the periodic billing jobs: trial expiry, the
// daily bonus grant and the billing-period rollover. Every job is
// idempotent per account, so overlapping runs (two cron triggers, a manual
// trigger during a scheduled run) never double-apply.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/bunyanhq/billing/internal/lib/period"
	"github.com/bunyanhq/billing/internal/lib/sl"
	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/rabbitmq"
)

// JobsRepository defines the storage methods the jobs run against.
type JobsRepository interface {
	ListExpiredActiveTrials(ctx context.Context, now time.Time) ([]*models.TrialGrant, error)
	ExpireTrialGrant(ctx context.Context, accountUID string) (int, error)
	ListBonusEligibleAccounts(ctx context.Context, day time.Time) ([]string, error)
	GrantDailyBonus(ctx context.Context, accountUID string, amount int64, day time.Time) (bool, error)
	ListRolloverDueAccounts(ctx context.Context, now time.Time) ([]*models.Account, error)
	ApplyRollover(ctx context.Context, accountUID string, oldPeriodStart, newPeriodStart time.Time, credits int64) (bool, error)
	GetTier(ctx context.Context, id string) (*models.Tier, error)
}

// Report summarizes one job run for monitoring.
type Report struct {
	Job     string `json:"job"`
	Scanned int    `json:"scanned"`
	Applied int    `json:"applied"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// TrialExpiredEvent is published for each trial the expiry job closes.
type TrialExpiredEvent struct {
	AccountUID string    `json:"account_uid"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// JobsService runs the periodic billing jobs.
type JobsService struct {
	repo         JobsRepository
	publisher    rabbitmq.Publisher
	bonusCredits int64
	log          *slog.Logger
	now          func() time.Time
}

// NewJobsService creates a new JobsService. bonusCredits is the fixed
// daily-bonus amount.
func NewJobsService(repo JobsRepository, publisher rabbitmq.Publisher, bonusCredits int64, log *slog.Logger) *JobsService {
	return &JobsService{
		repo:         repo,
		publisher:    publisher,
		bonusCredits: bonusCredits,
		log:          log,
		now:          time.Now,
	}
}

// RunTrialExpiry expires every active trial past its expiry timestamp.
// Expiry is a conditional update, so a concurrent run of the same job
// settles each grant exactly once.
func (s *JobsService) RunTrialExpiry(ctx context.Context) (*Report, error) {
	const op = "jobs.RunTrialExpiry"
	log := s.log.With(slog.String("op", op))
	report := &Report{Job: "trial-expiry"}

	grants, err := s.repo.ListExpiredActiveTrials(ctx, s.now())
	if err != nil {
		log.Error("failed to list expired trials", sl.Err(err))
		return report, err
	}
	report.Scanned = len(grants)

	for _, grant := range grants {
		count, err := s.repo.ExpireTrialGrant(ctx, grant.AccountUID)
		if err != nil {
			log.Error("failed to expire trial", slog.String("account_uid", grant.AccountUID), sl.Err(err))
			report.Failed++
			continue
		}
		if count == 0 {
			// Another run got there first.
			report.Skipped++
			continue
		}
		report.Applied++

		event := TrialExpiredEvent{AccountUID: grant.AccountUID, ExpiresAt: grant.ExpiresAt}
		if err := s.publisher.Publish(rabbitmq.KeyTrialExpired, event); err != nil {
			log.Warn("failed to publish trial.expired event", sl.Err(err))
		}
	}

	log.Info("trial expiry finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("applied", report.Applied),
		slog.Int("failed", report.Failed))
	return report, nil
}

// RunDailyBonus grants the fixed bonus to every account that has not been
// granted today. The per-account last-granted date makes a second trigger
// on the same day a no-op.
func (s *JobsService) RunDailyBonus(ctx context.Context) (*Report, error) {
	const op = "jobs.RunDailyBonus"
	log := s.log.With(slog.String("op", op))
	report := &Report{Job: "daily-bonus"}

	today := s.now().UTC().Truncate(24 * time.Hour)
	accounts, err := s.repo.ListBonusEligibleAccounts(ctx, today)
	if err != nil {
		log.Error("failed to list bonus-eligible accounts", sl.Err(err))
		return report, err
	}
	report.Scanned = len(accounts)

	for _, uid := range accounts {
		applied, err := s.repo.GrantDailyBonus(ctx, uid, s.bonusCredits, today)
		if err != nil {
			log.Error("failed to grant daily bonus", slog.String("account_uid", uid), sl.Err(err))
			report.Failed++
			continue
		}
		if !applied {
			report.Skipped++
			continue
		}
		report.Applied++
	}

	log.Info("daily bonus finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("applied", report.Applied),
		slog.Int("failed", report.Failed))
	return report, nil
}

// RunPeriodRollover grants each due account its tier allotment for every
// whole period elapsed since its anchor — a missed run grants all the
// periods it skipped, never more. The compare-and-swap on the anchor keeps
// a concurrent run from granting the same periods twice.
func (s *JobsService) RunPeriodRollover(ctx context.Context) (*Report, error) {
	const op = "jobs.RunPeriodRollover"
	log := s.log.With(slog.String("op", op))
	report := &Report{Job: "period-rollover"}

	now := s.now()
	accounts, err := s.repo.ListRolloverDueAccounts(ctx, now)
	if err != nil {
		log.Error("failed to list rollover-due accounts", sl.Err(err))
		return report, err
	}
	report.Scanned = len(accounts)

	for _, account := range accounts {
		if account.PeriodStart == nil || account.TierID == "" {
			report.Skipped++
			continue
		}
		elapsed := period.Elapsed(*account.PeriodStart, now)
		if elapsed == 0 {
			report.Skipped++
			continue
		}

		tier, err := s.repo.GetTier(ctx, account.TierID)
		if err != nil {
			log.Error("failed to resolve tier", slog.String("account_uid", account.UID), sl.Err(err))
			report.Failed++
			continue
		}

		credits := tier.CreditsPerPeriod * int64(elapsed)
		newStart := period.Advance(*account.PeriodStart, elapsed)
		applied, err := s.repo.ApplyRollover(ctx, account.UID, *account.PeriodStart, newStart, credits)
		if err != nil {
			log.Error("failed to apply rollover", slog.String("account_uid", account.UID), sl.Err(err))
			report.Failed++
			continue
		}
		if !applied {
			report.Skipped++
			continue
		}
		report.Applied++

		log.Info("rolled over billing period",
			slog.String("account_uid", account.UID),
			slog.Int("periods", elapsed),
			slog.Int64("credits", credits))
	}

	log.Info("period rollover finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("applied", report.Applied),
		slog.Int("failed", report.Failed))
	return report, nil
}
