package progression

import (
	"sync"
	"time"

	"github.com/ecorace/ecorace-backend/internal/catalog"
	"github.com/ecorace/ecorace-backend/internal/models"
)

// session is the in-memory state for one user: the authoritative copy during
// play. Mutations apply here first; the store write follows asynchronously,
// tracked on writes so callers can wait for this user alone.
type session struct {
	profile    *models.Profile
	badges     map[string]time.Time       // badge id -> unlocked at
	challenges map[string]*challengeState // challenge id -> progress
	commutes   []models.CommuteLog        // most recent first
	writes     sync.WaitGroup
}

// challengeState is a user's live progress against one catalog template.
type challengeState struct {
	Current     float64
	CompletedAt *time.Time
	ExpiresAt   time.Time
}

// BadgeStatus is a catalog badge template merged with the user's unlock state.
type BadgeStatus struct {
	catalog.Badge
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// ChallengeStatus is a catalog challenge template merged with the user's
// progress.
type ChallengeStatus struct {
	catalog.Challenge
	Current     float64    `json:"current"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// Snapshot is a read-only copy of a session for the API layer.
type Snapshot struct {
	UserID          string              `json:"user_id"`
	Name            string              `json:"name"`
	Avatar          string              `json:"avatar"`
	SelectedVehicle string              `json:"selected_vehicle"`
	Stats           models.UserStats    `json:"stats"`
	Badges          []BadgeStatus       `json:"badges"`
	Challenges      []ChallengeStatus   `json:"challenges"`
	Commutes        []models.CommuteLog `json:"commutes"`
}

// snapshot builds a copy of the session state merged onto the catalogs.
func (s *session) snapshot(cat *catalog.Catalog) Snapshot {
	snap := Snapshot{
		UserID:          s.profile.ID,
		Name:            s.profile.Name,
		Avatar:          s.profile.Avatar,
		SelectedVehicle: s.profile.SelectedVehicle,
		Stats:           s.profile.Stats(),
	}

	snap.Badges = make([]BadgeStatus, 0, len(cat.Badges))
	for _, tpl := range cat.Badges {
		status := BadgeStatus{Badge: tpl}
		if at, ok := s.badges[tpl.ID]; ok {
			status.Unlocked = true
			unlockedAt := at
			status.UnlockedAt = &unlockedAt
		}
		snap.Badges = append(snap.Badges, status)
	}

	snap.Challenges = make([]ChallengeStatus, 0, len(cat.Challenges))
	for _, tpl := range cat.Challenges {
		status := ChallengeStatus{Challenge: tpl}
		if st, ok := s.challenges[tpl.ID]; ok {
			status.Current = st.Current
			status.Completed = st.Current >= tpl.Target
			status.CompletedAt = st.CompletedAt
			status.ExpiresAt = st.ExpiresAt
		}
		snap.Challenges = append(snap.Challenges, status)
	}

	snap.Commutes = make([]models.CommuteLog, len(s.commutes))
	copy(snap.Commutes, s.commutes)

	return snap
}
