// Package catalog holds the immutable vehicle, badge and challenge template
// catalogs shared by all users. Definitions are data, not code: they are
// embedded as YAML and parsed once at startup.
package catalog

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Challenge period types.
const (
	ChallengeDaily   = "daily"
	ChallengeWeekly  = "weekly"
	ChallengeSpecial = "special"
)

// DefaultEcoFactor is applied when a commute's mode is not in the catalog.
const DefaultEcoFactor = 1.0

// Vehicle is a static catalog entry for a transport mode.
type Vehicle struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Icon        string  `yaml:"icon" json:"icon"`
	Description string  `yaml:"description" json:"description"`
	EcoFactor   float64 `yaml:"eco_factor" json:"eco_factor"`
	UnlockLevel int     `yaml:"unlock_level" json:"unlock_level"`
}

// BadgeCriteria is a threshold rule evaluated against a user metric.
type BadgeCriteria struct {
	Metric   string  `yaml:"metric" json:"metric"`
	Operator string  `yaml:"operator" json:"operator"` // "<", "<=", ">", ">=", "=="
	Value    float64 `yaml:"value" json:"value"`
}

// Badge is a static badge template. Unlock state is per-user and lives
// outside the catalog.
type Badge struct {
	ID          string        `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Icon        string        `yaml:"icon" json:"icon"`
	Criteria    BadgeCriteria `yaml:"criteria" json:"criteria"`
}

// Challenge is a static challenge template. Daily and weekly challenges
// expire with their period; special challenges run for LifetimeDays.
type Challenge struct {
	ID           string  `yaml:"id" json:"id"`
	Title        string  `yaml:"title" json:"title"`
	Description  string  `yaml:"description" json:"description"`
	Target       float64 `yaml:"target" json:"target"`
	Reward       int     `yaml:"reward" json:"reward"`
	Type         string  `yaml:"type" json:"type"`
	LifetimeDays int     `yaml:"lifetime_days" json:"lifetime_days,omitempty"`
}

// Catalog is the full parsed template set.
type Catalog struct {
	Vehicles   []Vehicle   `yaml:"vehicles"`
	Badges     []Badge     `yaml:"badges"`
	Challenges []Challenge `yaml:"challenges"`

	vehiclesByID   map[string]*Vehicle
	badgesByID     map[string]*Badge
	challengesByID map[string]*Challenge
}

// Load parses and validates the embedded catalog.
func Load() (*Catalog, error) {
	return parse(catalogYAML)
}

func parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c.vehiclesByID = make(map[string]*Vehicle, len(c.Vehicles))
	for i := range c.Vehicles {
		v := &c.Vehicles[i]
		if _, dup := c.vehiclesByID[v.ID]; dup {
			return nil, fmt.Errorf("duplicate vehicle id %q", v.ID)
		}
		if v.EcoFactor <= 0 {
			return nil, fmt.Errorf("vehicle %q: eco_factor must be positive", v.ID)
		}
		if v.UnlockLevel < 1 {
			return nil, fmt.Errorf("vehicle %q: unlock_level must be at least 1", v.ID)
		}
		c.vehiclesByID[v.ID] = v
	}

	c.badgesByID = make(map[string]*Badge, len(c.Badges))
	for i := range c.Badges {
		b := &c.Badges[i]
		if _, dup := c.badgesByID[b.ID]; dup {
			return nil, fmt.Errorf("duplicate badge id %q", b.ID)
		}
		c.badgesByID[b.ID] = b
	}

	c.challengesByID = make(map[string]*Challenge, len(c.Challenges))
	for i := range c.Challenges {
		ch := &c.Challenges[i]
		if _, dup := c.challengesByID[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate challenge id %q", ch.ID)
		}
		switch ch.Type {
		case ChallengeDaily, ChallengeWeekly, ChallengeSpecial:
		default:
			return nil, fmt.Errorf("challenge %q: unknown type %q", ch.ID, ch.Type)
		}
		if ch.Target <= 0 {
			return nil, fmt.Errorf("challenge %q: target must be positive", ch.ID)
		}
		c.challengesByID[ch.ID] = ch
	}

	return &c, nil
}

// Vehicle returns the vehicle with the given id.
func (c *Catalog) Vehicle(id string) (*Vehicle, bool) {
	v, ok := c.vehiclesByID[id]
	return v, ok
}

// EcoFactor returns the eco-factor for a transport mode, falling back to
// DefaultEcoFactor for modes not in the catalog.
func (c *Catalog) EcoFactor(mode string) float64 {
	if v, ok := c.vehiclesByID[mode]; ok {
		return v.EcoFactor
	}
	return DefaultEcoFactor
}

// Badge returns the badge template with the given id.
func (c *Catalog) Badge(id string) (*Badge, bool) {
	b, ok := c.badgesByID[id]
	return b, ok
}

// Challenge returns the challenge template with the given id.
func (c *Catalog) Challenge(id string) (*Challenge, bool) {
	ch, ok := c.challengesByID[id]
	return ch, ok
}

// ChallengesByType returns all challenge templates of a given type.
func (c *Catalog) ChallengesByType(challengeType string) []Challenge {
	var out []Challenge
	for _, ch := range c.Challenges {
		if ch.Type == challengeType {
			out = append(out, ch)
		}
	}
	return out
}

// ExpiryFor computes the expiry timestamp for a fresh challenge window
// starting at now.
func (c *Catalog) ExpiryFor(ch *Challenge, now time.Time) time.Time {
	switch ch.Type {
	case ChallengeDaily:
		return now.Add(24 * time.Hour)
	case ChallengeWeekly:
		return now.Add(7 * 24 * time.Hour)
	default:
		days := ch.LifetimeDays
		if days <= 0 {
			days = 7
		}
		return now.Add(time.Duration(days) * 24 * time.Hour)
	}
}
