package repository

import (
	"fmt"
	"time"

	"github.com/ecorace/ecorace-backend/internal/models"
)

// CommuteRepository handles the append-only commute log.
type CommuteRepository struct {
	db *DB
}

// NewCommuteRepository creates a new commute repository.
func NewCommuteRepository(db *DB) *CommuteRepository {
	return &CommuteRepository{db: db}
}

// Append stores a new commute log entry. Entries are immutable once created.
func (r *CommuteRepository) Append(entry *models.CommuteLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append commute log for %s: %w", entry.UserID, err)
	}
	return nil
}

// ListByUser returns a user's commute log entries, most recent first.
func (r *CommuteRepository) ListByUser(userID string, limit int) ([]models.CommuteLog, error) {
	var logs []models.CommuteLog
	q := r.db.Where("user_id = ?", userID).Order("logged_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list commutes for %s: %w", userID, err)
	}
	return logs, nil
}

// CountByUserSince counts a user's commutes logged at or after the given time.
// Used by the badge evaluator for same-day metrics.
func (r *CommuteRepository) CountByUserSince(userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.CommuteLog{}).
		Where("user_id = ? AND logged_at >= ?", userID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count commutes for %s: %w", userID, err)
	}
	return count, nil
}
