// Package models defines domain models for the EcoRace progression backend.
package models

import (
	"time"
)

// Profile is the persisted per-user document: identity plus the full set of
// progression stats. It is read once at session start and updated with
// partial merge writes after each mutating operation.
type Profile struct {
	ID               string     `gorm:"primaryKey;size:128" json:"id"`
	Name             string     `gorm:"not null;size:255" json:"name"`
	Avatar           string     `gorm:"size:50" json:"avatar"`
	SelectedVehicle  string     `gorm:"size:50" json:"selected_vehicle"`
	TotalPoints      int        `gorm:"not null;default:0" json:"total_points"`
	Level            int        `gorm:"not null;default:1" json:"level"`
	XP               int        `gorm:"column:xp;not null;default:0" json:"xp"`
	XPToNextLevel    int        `gorm:"column:xp_to_next_level;not null;default:1000" json:"xp_to_next_level"`
	TotalDistance    float64    `gorm:"not null;default:0" json:"total_distance"`
	TotalCarbonSaved float64    `gorm:"not null;default:0" json:"total_carbon_saved"`
	TotalCommutes    int        `gorm:"not null;default:0" json:"total_commutes"`
	CurrentStreak    int        `gorm:"not null;default:0" json:"current_streak"`
	BestLapTime      float64    `gorm:"not null;default:0" json:"best_lap_time"`
	LastCommuteAt    *time.Time `json:"last_commute_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Profile model.
func (Profile) TableName() string {
	return "profiles"
}

// UserStats is the progression-state slice of a profile. It is what the
// engine mutates and what the API exposes under "stats".
type UserStats struct {
	TotalPoints      int     `json:"total_points"`
	Level            int     `json:"level"`
	XP               int     `json:"xp"`
	XPToNextLevel    int     `json:"xp_to_next_level"`
	TotalDistance    float64 `json:"total_distance"`
	TotalCarbonSaved float64 `json:"total_carbon_saved"`
	TotalCommutes    int     `json:"total_commutes"`
	CurrentStreak    int     `json:"current_streak"`
	BestLapTime      float64 `json:"best_lap_time"`
	Rank             int     `json:"rank"`
}

// Stats extracts the progression stats from a profile. Rank is externally
// supplied by the leaderboard and left zero here.
func (p *Profile) Stats() UserStats {
	return UserStats{
		TotalPoints:      p.TotalPoints,
		Level:            p.Level,
		XP:               p.XP,
		XPToNextLevel:    p.XPToNextLevel,
		TotalDistance:    p.TotalDistance,
		TotalCarbonSaved: p.TotalCarbonSaved,
		TotalCommutes:    p.TotalCommutes,
		CurrentStreak:    p.CurrentStreak,
		BestLapTime:      p.BestLapTime,
	}
}
