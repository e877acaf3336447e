package catalog

import (
	"strings"
	"testing"
	"time"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(c.Vehicles) != 5 {
		t.Errorf("Expected 5 vehicles, got %d", len(c.Vehicles))
	}
	if len(c.Badges) != 6 {
		t.Errorf("Expected 6 badges, got %d", len(c.Badges))
	}
	if len(c.Challenges) != 3 {
		t.Errorf("Expected 3 challenges, got %d", len(c.Challenges))
	}

	walk, ok := c.Vehicle("walk")
	if !ok {
		t.Fatal("Expected walk vehicle in catalog")
	}
	if walk.EcoFactor != 2.0 {
		t.Errorf("Expected walk eco_factor 2.0, got %f", walk.EcoFactor)
	}
	if walk.UnlockLevel != 1 {
		t.Errorf("Expected walk unlock_level 1, got %d", walk.UnlockLevel)
	}

	ev, ok := c.Vehicle("electric_car")
	if !ok {
		t.Fatal("Expected electric_car vehicle in catalog")
	}
	if ev.UnlockLevel != 10 {
		t.Errorf("Expected electric_car unlock_level 10, got %d", ev.UnlockLevel)
	}
}

func TestEcoFactorFallback(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := c.EcoFactor("bike"); got != 1.8 {
		t.Errorf("Expected bike eco factor 1.8, got %f", got)
	}
	if got := c.EcoFactor("hoverboard"); got != DefaultEcoFactor {
		t.Errorf("Expected fallback %f for unknown mode, got %f", DefaultEcoFactor, got)
	}
}

func TestChallengesByType(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	daily := c.ChallengesByType(ChallengeDaily)
	if len(daily) != 2 {
		t.Errorf("Expected 2 daily challenges, got %d", len(daily))
	}
	special := c.ChallengesByType(ChallengeSpecial)
	if len(special) != 1 {
		t.Errorf("Expected 1 special challenge, got %d", len(special))
	}
	if len(c.ChallengesByType(ChallengeWeekly)) != 0 {
		t.Error("Expected no weekly challenges in the default catalog")
	}
}

func TestExpiryFor(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	now := time.Date(2025, 4, 20, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		challenge Challenge
		want      time.Time
	}{
		{
			name:      "Daily",
			challenge: Challenge{ID: "d", Type: ChallengeDaily},
			want:      now.Add(24 * time.Hour),
		},
		{
			name:      "Weekly",
			challenge: Challenge{ID: "w", Type: ChallengeWeekly},
			want:      now.Add(7 * 24 * time.Hour),
		},
		{
			name:      "Special with lifetime",
			challenge: Challenge{ID: "s", Type: ChallengeSpecial, LifetimeDays: 3},
			want:      now.Add(3 * 24 * time.Hour),
		},
		{
			name:      "Special without lifetime defaults to a week",
			challenge: Challenge{ID: "s", Type: ChallengeSpecial},
			want:      now.Add(7 * 24 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ExpiryFor(&tt.challenge, now)
			if !got.Equal(tt.want) {
				t.Errorf("ExpiryFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "Duplicate vehicle id",
			yaml: `vehicles:
  - id: walk
    name: Walking
    eco_factor: 2.0
    unlock_level: 1
  - id: walk
    name: Walking Again
    eco_factor: 1.5
    unlock_level: 1`,
			wantErr: "duplicate vehicle id",
		},
		{
			name: "Non-positive eco factor",
			yaml: `vehicles:
  - id: walk
    name: Walking
    eco_factor: 0
    unlock_level: 1`,
			wantErr: "eco_factor must be positive",
		},
		{
			name: "Unlock level below one",
			yaml: `vehicles:
  - id: walk
    name: Walking
    eco_factor: 2.0
    unlock_level: 0`,
			wantErr: "unlock_level must be at least 1",
		},
		{
			name: "Unknown challenge type",
			yaml: `challenges:
  - id: oddball
    title: Oddball
    target: 1
    type: hourly`,
			wantErr: "unknown type",
		},
		{
			name: "Non-positive challenge target",
			yaml: `challenges:
  - id: zero
    title: Zero
    target: 0
    type: daily`,
			wantErr: "target must be positive",
		},
		{
			name: "Duplicate badge id",
			yaml: `badges:
  - id: first_ride
    name: First Lap
  - id: first_ride
    name: First Lap Again`,
			wantErr: "duplicate badge id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected parse error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}
