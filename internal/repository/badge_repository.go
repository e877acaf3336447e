package repository

import (
	"fmt"
	"time"

	"github.com/ecorace/ecorace-backend/internal/models"
)

// BadgeRepository handles per-user badge unlock state. Badge templates are
// static catalog entries keyed by string id; only unlocks are persisted.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Award unlocks a badge for a user.
// Idempotent: awarding an already-unlocked badge is a successful no-op.
func (r *BadgeRepository) Award(userID, badgeID string) error {
	unlocked, err := r.HasUnlocked(userID, badgeID)
	if err != nil {
		return err
	}
	if unlocked {
		return nil
	}

	userBadge := &models.UserBadge{
		UserID:     userID,
		BadgeID:    badgeID,
		UnlockedAt: time.Now(),
	}
	if err := r.db.Create(userBadge).Error; err != nil {
		return fmt.Errorf("failed to award badge %s to %s: %w", badgeID, userID, err)
	}
	return nil
}

// HasUnlocked checks if a user has unlocked a specific badge.
func (r *BadgeRepository) HasUnlocked(userID, badgeID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check badge %s for %s: %w", badgeID, userID, err)
	}
	return count > 0, nil
}

// ListUnlocked retrieves a user's unlocks, most recent first.
func (r *BadgeRepository) ListUnlocked(userID string) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.
		Where("user_id = ?", userID).
		Order("unlocked_at DESC").
		Find(&userBadges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list badges for %s: %w", userID, err)
	}
	return userBadges, nil
}

// ListUnlockedIDs returns just the unlocked badge ids for a user, for merging
// onto the template catalog at session load.
func (r *BadgeRepository) ListUnlockedIDs(userID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Pluck("badge_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list badge ids for %s: %w", userID, err)
	}
	return ids, nil
}

// HolderCount returns the number of users who have unlocked a badge.
func (r *BadgeRepository) HolderCount(badgeID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("badge_id = ?", badgeID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count holders of %s: %w", badgeID, err)
	}
	return count, nil
}
