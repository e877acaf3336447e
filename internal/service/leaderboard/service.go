// Package leaderboard provides point-ranked standings across all racers.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	prommetrics "github.com/ecorace/ecorace-backend/internal/metrics"
	"github.com/ecorace/ecorace-backend/internal/models"
	"github.com/ecorace/ecorace-backend/internal/repository"
	"github.com/ecorace/ecorace-backend/pkg/logger"
)

// ProfileStore interface for ranked profile reads.
type ProfileStore interface {
	ListTopByPoints(n int) ([]models.Profile, error)
}

// BadgeStore interface for badge counts on entries.
type BadgeStore interface {
	ListUnlockedIDs(userID string) ([]string, error)
}

// Entry represents a single entry in the leaderboard.
type Entry struct {
	UserID          string  `json:"user_id"`
	Name            string  `json:"name"`
	Avatar          string  `json:"avatar"`
	SelectedVehicle string  `json:"selected_vehicle"`
	TotalPoints     int     `json:"total_points"`
	Level           int     `json:"level"`
	CarbonSaved     float64 `json:"carbon_saved"`
	CurrentStreak   int     `json:"current_streak"`
	BadgeCount      int     `json:"badge_count"`
	Rank            int     `json:"rank"`
}

// Service builds the standings, ordered by total points with 1-based ranks
// assigned in result order. Results are cached in Redis for a short TTL;
// cache failures degrade to a direct store read.
type Service struct {
	profileStore ProfileStore
	badgeStore   BadgeStore
	cache        repository.Cache
	cacheTTL     time.Duration
	defaultLimit int
	log          *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
func NewService(
	profileRepo *repository.ProfileRepository,
	badgeRepo *repository.BadgeRepository,
	cache repository.Cache,
	cacheTTL time.Duration,
	defaultLimit int,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(profileRepo, badgeRepo, cache, cacheTTL, defaultLimit, log)
}

// NewServiceWithInterfaces creates a new leaderboard service with interface
// dependencies (useful for testing).
func NewServiceWithInterfaces(
	profileStore ProfileStore,
	badgeStore BadgeStore,
	cache repository.Cache,
	cacheTTL time.Duration,
	defaultLimit int,
	log *logger.Logger,
) *Service {
	return &Service{
		profileStore: profileStore,
		badgeStore:   badgeStore,
		cache:        cache,
		cacheTTL:     cacheTTL,
		defaultLimit: defaultLimit,
		log:          log,
	}
}

// GetStandings returns the top entries ordered by total points. A limit of
// zero falls back to the configured default; a negative limit returns the
// whole table.
func (s *Service) GetStandings(ctx context.Context, limit int) ([]Entry, error) {
	if limit == 0 {
		limit = s.defaultLimit
	}

	cacheKey := fmt.Sprintf("leaderboard:top:%d", limit)
	if cached := s.readCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	entries, err := s.buildStandings(limit)
	if err != nil {
		return nil, err
	}

	s.writeCache(ctx, cacheKey, entries)
	prommetrics.SetLeaderboardSize(len(entries))

	return entries, nil
}

// GetUserRank returns a user's standing, or nil when the user is not ranked.
// The scan covers the whole table, not just the default page.
func (s *Service) GetUserRank(ctx context.Context, userID string) (*Entry, error) {
	entries, err := s.GetStandings(ctx, -1)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].UserID == userID {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// Invalidate drops cached standings after writes that change ordering.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	keys := []string{
		fmt.Sprintf("leaderboard:top:%d", s.defaultLimit),
		"leaderboard:top:-1",
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate leaderboard cache")
	}
}

func (s *Service) buildStandings(limit int) ([]Entry, error) {
	profiles, err := s.profileStore.ListTopByPoints(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	entries := make([]Entry, 0, len(profiles))
	for i, p := range profiles {
		badgeCount := 0
		if ids, err := s.badgeStore.ListUnlockedIDs(p.ID); err != nil {
			s.log.Warn().Err(err).Str("user_id", p.ID).Msg("Failed to get badge count")
		} else {
			badgeCount = len(ids)
		}

		entries = append(entries, Entry{
			UserID:          p.ID,
			Name:            p.Name,
			Avatar:          p.Avatar,
			SelectedVehicle: p.SelectedVehicle,
			TotalPoints:     p.TotalPoints,
			Level:           p.Level,
			CarbonSaved:     p.TotalCarbonSaved,
			CurrentStreak:   p.CurrentStreak,
			BadgeCount:      badgeCount,
			Rank:            i + 1,
		})
	}

	return entries, nil
}

func (s *Service) readCache(ctx context.Context, key string) []Entry {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache read failed")
		return nil
	}
	if raw == "" {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Dropping malformed leaderboard cache entry")
		return nil
	}
	return entries
}

func (s *Service) writeCache(ctx context.Context, key string, entries []Entry) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache write failed")
	}
}
