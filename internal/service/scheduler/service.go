// Package scheduler runs the periodic maintenance jobs: challenge window
// resets and badge evaluation.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ecorace/ecorace-backend/internal/catalog"
	"github.com/ecorace/ecorace-backend/internal/config"
	prommetrics "github.com/ecorace/ecorace-backend/internal/metrics"
	"github.com/ecorace/ecorace-backend/internal/repository"
	"github.com/ecorace/ecorace-backend/internal/service/badges"
	"github.com/ecorace/ecorace-backend/pkg/logger"
)

// ChallengeStore interface for bulk challenge progress resets.
type ChallengeStore interface {
	ResetByChallengeIDs(challengeIDs []string, expiresAt time.Time) (int64, error)
}

// SessionInvalidator drops live engine sessions after their persisted state
// has been rewritten underneath them.
type SessionInvalidator interface {
	InvalidateAll()
}

// Service handles periodic job scheduling.
type Service struct {
	config         *config.Config
	catalog        *catalog.Catalog
	challengeStore ChallengeStore
	badgeService   *badges.Service
	sessions       SessionInvalidator
	log            *logger.Logger
	cron           *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.Config,
	cat *catalog.Catalog,
	challengeRepo *repository.ChallengeRepository,
	badgeService *badges.Service,
	sessions SessionInvalidator,
	log *logger.Logger,
) *Service {
	return &Service{
		config:         cfg,
		catalog:        cat,
		challengeStore: challengeRepo,
		badgeService:   badgeService,
		sessions:       sessions,
		log:            log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	dailyExpr, err := buildDailyCronExpression(s.config.Scheduler.DailyResetTime)
	if err != nil {
		return fmt.Errorf("failed to build daily reset expression: %w", err)
	}
	if _, err := s.cron.AddFunc(dailyExpr, func() {
		s.runChallengeReset(catalog.ChallengeDaily)
	}); err != nil {
		return fmt.Errorf("failed to register daily reset job: %w", err)
	}

	if s.config.Scheduler.WeeklyResetTime != "" {
		if _, err := s.cron.AddFunc(s.config.Scheduler.WeeklyResetTime, func() {
			s.runChallengeReset(catalog.ChallengeWeekly)
		}); err != nil {
			return fmt.Errorf("failed to register weekly reset job: %w", err)
		}
	}

	if s.config.Scheduler.BadgeEvaluationTime != "" && s.badgeService != nil {
		if _, err := s.cron.AddFunc(s.config.Scheduler.BadgeEvaluationTime, func() {
			s.runBadgeEvaluation(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to register badge evaluation job: %w", err)
		}
		s.log.Info().
			Str("schedule", s.config.Scheduler.BadgeEvaluationTime).
			Msg("Badge evaluation job registered")
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("daily_reset", dailyExpr).
		Str("weekly_reset", s.config.Scheduler.WeeklyResetTime).
		Str("timezone", s.config.Scheduler.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// buildDailyCronExpression converts an "HH:MM" wall-clock time into a
// once-a-day cron expression.
func buildDailyCronExpression(at string) (string, error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", at)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// runChallengeReset zeroes progress on all challenges of one period type and
// opens a fresh window for them.
func (s *Service) runChallengeReset(challengeType string) {
	start := time.Now()
	job := challengeType + "_challenge_reset"

	s.log.Info().Str("type", challengeType).Msg("Running challenge reset job")

	templates := s.catalog.ChallengesByType(challengeType)
	if len(templates) == 0 {
		s.log.Debug().Str("type", challengeType).Msg("No challenges of this type to reset")
		prommetrics.RecordSchedulerJobRun(job, "success", time.Since(start).Seconds())
		return
	}

	ids := make([]string, 0, len(templates))
	for _, tpl := range templates {
		ids = append(ids, tpl.ID)
	}

	// All templates of one type share the same window length, so a single
	// expiry covers the batch.
	expiresAt := s.catalog.ExpiryFor(&templates[0], time.Now())

	affected, err := s.challengeStore.ResetByChallengeIDs(ids, expiresAt)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("type", challengeType).
			Msg("Challenge reset job failed")
		prommetrics.RecordSchedulerJobRun(job, "error", time.Since(start).Seconds())
		return
	}

	// Loaded sessions still hold the pre-reset progress and would write it
	// back; drop them so the next operation reloads the fresh rows.
	if s.sessions != nil {
		s.sessions.InvalidateAll()
	}

	prommetrics.RecordSchedulerJobRun(job, "success", time.Since(start).Seconds())

	s.log.Info().
		Str("type", challengeType).
		Int("challenges", len(ids)).
		Int64("rows_reset", affected).
		Dur("duration", time.Since(start)).
		Msg("Challenge reset job completed")
}

// runBadgeEvaluation executes the badge evaluation job for all users.
func (s *Service) runBadgeEvaluation(ctx context.Context) {
	start := time.Now()

	s.log.Info().Msg("Running badge evaluation job")

	awardsCount, err := s.badgeService.EvaluateAllUsers(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Badge evaluation job failed")
		prommetrics.RecordSchedulerJobRun("badge_evaluation", "error", time.Since(start).Seconds())
		return
	}

	prommetrics.RecordSchedulerJobRun("badge_evaluation", "success", time.Since(start).Seconds())

	s.log.Info().
		Int("badges_awarded", awardsCount).
		Dur("duration", time.Since(start)).
		Msg("Badge evaluation job completed successfully")
}
