package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ecorace/ecorace-backend/internal/models"
)

// ErrProfileNotFound is returned when no profile document exists for a user id.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository handles the persistent per-user profile documents.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create creates a new profile document.
func (r *ProfileRepository) Create(profile *models.Profile) error {
	if err := r.db.Create(profile).Error; err != nil {
		return fmt.Errorf("failed to create profile %s: %w", profile.ID, err)
	}
	return nil
}

// Get retrieves the profile document for a user id.
func (r *ProfileRepository) Get(userID string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.First(&profile, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	return &profile, nil
}

// Write applies a partial update with merge semantics: only the given fields
// change, everything else on the document is preserved.
func (r *ProfileRepository) Write(userID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	result := r.db.Model(&models.Profile{}).Where("id = ?", userID).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to write profile %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// Exists reports whether a profile document exists for the user id.
func (r *ProfileRepository) Exists(userID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Profile{}).Where("id = ?", userID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check profile %s: %w", userID, err)
	}
	return count > 0, nil
}

// ListTopByPoints returns the highest-scoring profiles in descending point
// order, limited to n entries.
func (r *ProfileRepository) ListTopByPoints(n int) ([]models.Profile, error) {
	var profiles []models.Profile
	q := r.db.Order("total_points DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list top profiles: %w", err)
	}
	return profiles, nil
}

// ListIDs returns the ids of all profiles. Used by batch jobs such as badge
// evaluation.
func (r *ProfileRepository) ListIDs() ([]string, error) {
	var ids []string
	if err := r.db.Model(&models.Profile{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list profile ids: %w", err)
	}
	return ids, nil
}
