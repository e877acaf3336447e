package models

import (
	"encoding/json"
	"time"
)

// RoutePoint is a single coordinate of an optional commute route.
type RoutePoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CommuteLog is an immutable record of a single logged commute. Points are
// computed once at creation and never revised.
type CommuteLog struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	UserID        string          `gorm:"not null;index;size:128" json:"user_id"`
	Mode          string          `gorm:"not null;size:50" json:"mode"`
	DistanceKm    float64         `gorm:"not null" json:"distance_km"`
	DurationMin   float64         `gorm:"not null" json:"duration_min"`
	CarbonSavedKg float64         `gorm:"not null" json:"carbon_saved_kg"`
	Points        int             `gorm:"not null" json:"points"`
	Route         json.RawMessage `gorm:"type:jsonb" json:"route,omitempty"`
	LoggedAt      time.Time       `gorm:"not null;index" json:"logged_at"`
}

// TableName specifies the table name for CommuteLog model.
func (CommuteLog) TableName() string {
	return "commute_logs"
}

// SetRoute serializes route points onto the log entry. A nil or empty route
// leaves the column empty.
func (c *CommuteLog) SetRoute(points []RoutePoint) error {
	if len(points) == 0 {
		c.Route = nil
		return nil
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return err
	}
	c.Route = raw
	return nil
}

// RoutePoints decodes the stored route. Returns nil for entries without one.
func (c *CommuteLog) RoutePoints() ([]RoutePoint, error) {
	if len(c.Route) == 0 {
		return nil, nil
	}
	var points []RoutePoint
	if err := json.Unmarshal(c.Route, &points); err != nil {
		return nil, err
	}
	return points, nil
}
