package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ecorace/ecorace-backend/internal/models"
)

// ChallengeRepository handles per-user challenge progress rows. Challenge
// templates are static catalog entries; rows track progress per period.
type ChallengeRepository struct {
	db *DB
}

// NewChallengeRepository creates a new challenge repository.
func NewChallengeRepository(db *DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// Get retrieves a user's progress row for a challenge template.
func (r *ChallengeRepository) Get(userID, challengeID string) (*models.UserChallenge, error) {
	var uc models.UserChallenge
	err := r.db.
		Where("user_id = ? AND challenge_id = ?", userID, challengeID).
		First(&uc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get challenge %s for %s: %w", challengeID, userID, err)
	}
	return &uc, nil
}

// ListByUser retrieves all of a user's challenge progress rows.
func (r *ChallengeRepository) ListByUser(userID string) ([]models.UserChallenge, error) {
	var rows []models.UserChallenge
	if err := r.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list challenges for %s: %w", userID, err)
	}
	return rows, nil
}

// Upsert writes a progress row, creating it if the user has none for the
// template yet.
func (r *ChallengeRepository) Upsert(uc *models.UserChallenge) error {
	existing, err := r.Get(uc.UserID, uc.ChallengeID)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := r.db.Create(uc).Error; err != nil {
			return fmt.Errorf("failed to create challenge row %s for %s: %w", uc.ChallengeID, uc.UserID, err)
		}
		return nil
	}

	updates := map[string]interface{}{
		"current":      uc.Current,
		"completed_at": uc.CompletedAt,
		"expires_at":   uc.ExpiresAt,
	}
	err = r.db.Model(&models.UserChallenge{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update challenge row %s for %s: %w", uc.ChallengeID, uc.UserID, err)
	}
	uc.ID = existing.ID
	return nil
}

// ResetByChallengeIDs zeroes progress and opens a new window for every user
// row belonging to the given templates. Used by the period-reset scheduler.
func (r *ChallengeRepository) ResetByChallengeIDs(challengeIDs []string, expiresAt time.Time) (int64, error) {
	if len(challengeIDs) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.UserChallenge{}).
		Where("challenge_id IN ?", challengeIDs).
		Updates(map[string]interface{}{
			"current":      0,
			"completed_at": nil,
			"expires_at":   expiresAt,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset challenges: %w", result.Error)
	}
	return result.RowsAffected, nil
}
