// Package badges provides badge evaluation and awarding services.
package badges

import (
	"context"
	"fmt"
	"time"

	"github.com/ecorace/ecorace-backend/internal/catalog"
	prommetrics "github.com/ecorace/ecorace-backend/internal/metrics"
	"github.com/ecorace/ecorace-backend/internal/models"
	"github.com/ecorace/ecorace-backend/internal/repository"
	"github.com/ecorace/ecorace-backend/pkg/logger"
)

// BadgeStore interface for badge unlock persistence.
type BadgeStore interface {
	Award(userID, badgeID string) error
	HasUnlocked(userID, badgeID string) (bool, error)
	ListUnlocked(userID string) ([]models.UserBadge, error)
	HolderCount(badgeID string) (int64, error)
}

// ProfileStore interface for reading profile stats.
type ProfileStore interface {
	Get(userID string) (*models.Profile, error)
	ListIDs() ([]string, error)
}

// CommuteStore interface for time-windowed commute counts.
type CommuteStore interface {
	CountByUserSince(userID string, since time.Time) (int64, error)
}

// Notifier announces newly awarded badges.
type Notifier interface {
	NotifyBadgeAwarded(ctx context.Context, userID, badgeName string) error
}

// Service evaluates catalog badge criteria against user stats and awards
// unlocks.
type Service struct {
	catalog      *catalog.Catalog
	badgeStore   BadgeStore
	profileStore ProfileStore
	commuteStore CommuteStore
	notifier     Notifier
	log          *logger.Logger
	now          func() time.Time
}

// NewService creates a new badge service.
func NewService(
	cat *catalog.Catalog,
	badgeRepo *repository.BadgeRepository,
	profileRepo *repository.ProfileRepository,
	commuteRepo *repository.CommuteRepository,
	notifier Notifier,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(cat, badgeRepo, profileRepo, commuteRepo, notifier, log)
}

// NewServiceWithInterfaces creates a new badge service with interface
// dependencies (useful for testing).
func NewServiceWithInterfaces(
	cat *catalog.Catalog,
	badgeStore BadgeStore,
	profileStore ProfileStore,
	commuteStore CommuteStore,
	notifier Notifier,
	log *logger.Logger,
) *Service {
	return &Service{
		catalog:      cat,
		badgeStore:   badgeStore,
		profileStore: profileStore,
		commuteStore: commuteStore,
		notifier:     notifier,
		log:          log,
		now:          time.Now,
	}
}

// EvaluateAllUsers evaluates every catalog badge for every known user.
// This is typically run as a scheduled job.
// Returns the number of badges awarded.
func (s *Service) EvaluateAllUsers(ctx context.Context) (int, error) {
	s.log.Info().Msg("Starting badge evaluation for all users")
	start := time.Now()

	userIDs, err := s.profileStore.ListIDs()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list users")
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	awardsCount := 0
	for _, userID := range userIDs {
		awarded, err := s.EvaluateUser(ctx, userID)
		if err != nil {
			s.log.Error().
				Err(err).
				Str("user_id", userID).
				Msg("Failed to evaluate badges for user")
			continue
		}
		awardsCount += len(awarded)
	}

	s.log.Info().
		Int("badges_in_catalog", len(s.catalog.Badges)).
		Int("users_evaluated", len(userIDs)).
		Int("badges_awarded", awardsCount).
		Dur("duration", time.Since(start)).
		Msg("Badge evaluation complete")

	return awardsCount, nil
}

// EvaluateUser evaluates all catalog badges for one user and returns the
// newly awarded templates. Awarding is idempotent: badges the user already
// holds are skipped.
func (s *Service) EvaluateUser(ctx context.Context, userID string) ([]catalog.Badge, error) {
	s.log.Debug().Str("user_id", userID).Msg("Evaluating badges for user")

	stats, err := s.collectUserMetrics(userID)
	if err != nil {
		return nil, err
	}

	var newlyAwarded []catalog.Badge
	for _, badge := range s.catalog.Badges {
		hasUnlocked, err := s.badgeStore.HasUnlocked(userID, badge.ID)
		if err != nil {
			s.log.Error().
				Err(err).
				Str("user_id", userID).
				Str("badge_id", badge.ID).
				Msg("Failed to check badge unlock state")
			continue
		}
		if hasUnlocked {
			continue
		}

		qualifies, err := s.checkCriteria(&badge.Criteria, stats)
		if err != nil {
			s.log.Error().
				Err(err).
				Str("user_id", userID).
				Str("badge", badge.Name).
				Msg("Failed to evaluate badge criteria")
			continue
		}
		if !qualifies {
			continue
		}

		if err := s.award(ctx, userID, &badge); err != nil {
			s.log.Error().
				Err(err).
				Str("user_id", userID).
				Str("badge", badge.Name).
				Msg("Failed to award badge")
			continue
		}
		newlyAwarded = append(newlyAwarded, badge)
	}

	return newlyAwarded, nil
}

// ListUserBadges retrieves a user's unlocked badges.
func (s *Service) ListUserBadges(userID string) ([]models.UserBadge, error) {
	return s.badgeStore.ListUnlocked(userID)
}

// HolderCount retrieves how many users hold a badge.
func (s *Service) HolderCount(badgeID string) (int64, error) {
	return s.badgeStore.HolderCount(badgeID)
}

func (s *Service) award(ctx context.Context, userID string, badge *catalog.Badge) error {
	if err := s.badgeStore.Award(userID, badge.ID); err != nil {
		return err
	}

	prommetrics.RecordBadgeAwarded(badge.ID)

	s.log.Info().
		Str("user_id", userID).
		Str("badge", badge.Name).
		Msg("Badge awarded")

	if s.notifier != nil {
		if err := s.notifier.NotifyBadgeAwarded(ctx, userID, badge.Name); err != nil {
			s.log.Warn().
				Err(err).
				Str("badge", badge.Name).
				Msg("Failed to send badge notification")
		}
	}

	return nil
}
