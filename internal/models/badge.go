package models

import (
	"time"
)

// UserBadge records that a user has unlocked a badge from the static catalog.
// Badge templates themselves are immutable and live in the catalog package;
// only the unlock state is per-user and persisted.
type UserBadge struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"not null;index;size:128" json:"user_id"`
	BadgeID    string    `gorm:"not null;index;size:50" json:"badge_id"`
	UnlockedAt time.Time `gorm:"not null" json:"unlocked_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}
