package models

import (
	"time"
)

// UserChallenge tracks a user's progress against a challenge template from
// the static catalog. Progress is monotonically non-decreasing except when a
// period reset swaps in the next period's window.
type UserChallenge struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      string     `gorm:"not null;index;size:128" json:"user_id"`
	ChallengeID string     `gorm:"not null;index;size:50" json:"challenge_id"`
	Current     float64    `gorm:"not null;default:0" json:"current"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for UserChallenge model.
func (UserChallenge) TableName() string {
	return "user_challenges"
}

// IsComplete reports whether progress has reached the given target.
func (c *UserChallenge) IsComplete(target float64) bool {
	return c.Current >= target
}

// IsExpired reports whether the challenge window has passed. Expired rows are
// kept until the scheduler swaps in the next period; progress still
// accumulates against them in the meantime.
func (c *UserChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
