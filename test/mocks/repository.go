// Package mocks provides hand-rolled test doubles for the repository layer.
package mocks

import (
	"sort"
	"sync"
	"time"

	"github.com/ecorace/ecorace-backend/internal/models"
	"github.com/ecorace/ecorace-backend/internal/repository"
)

// MockProfileStore is an in-memory ProfileStore. Behavior can be overridden
// per test via the function fields; by default it acts as a map-backed store.
type MockProfileStore struct {
	CreateFunc func(profile *models.Profile) error
	GetFunc    func(userID string) (*models.Profile, error)
	WriteFunc  func(userID string, fields map[string]interface{}) error

	mu       sync.Mutex
	Profiles map[string]*models.Profile
	Writes   []map[string]interface{}
}

func NewMockProfileStore() *MockProfileStore {
	return &MockProfileStore{Profiles: make(map[string]*models.Profile)}
}

func (m *MockProfileStore) Create(profile *models.Profile) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(profile)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *profile
	m.Profiles[profile.ID] = &cp
	return nil
}

func (m *MockProfileStore) Get(userID string) (*models.Profile, error) {
	if m.GetFunc != nil {
		return m.GetFunc(userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Profiles[userID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockProfileStore) Write(userID string, fields map[string]interface{}) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(userID, fields)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Profiles[userID]
	if !ok {
		return repository.ErrProfileNotFound
	}
	applyFields(p, fields)
	m.Writes = append(m.Writes, fields)
	return nil
}

// applyFields mirrors the column-keyed merge write the real repository does.
func applyFields(p *models.Profile, fields map[string]interface{}) {
	for column, value := range fields {
		switch column {
		case "name":
			p.Name, _ = value.(string)
		case "avatar":
			p.Avatar, _ = value.(string)
		case "selected_vehicle":
			p.SelectedVehicle, _ = value.(string)
		case "total_points":
			p.TotalPoints, _ = value.(int)
		case "level":
			p.Level, _ = value.(int)
		case "xp":
			p.XP, _ = value.(int)
		case "xp_to_next_level":
			p.XPToNextLevel, _ = value.(int)
		case "total_distance":
			p.TotalDistance, _ = value.(float64)
		case "total_carbon_saved":
			p.TotalCarbonSaved, _ = value.(float64)
		case "total_commutes":
			p.TotalCommutes, _ = value.(int)
		case "current_streak":
			p.CurrentStreak, _ = value.(int)
		case "best_lap_time":
			p.BestLapTime, _ = value.(float64)
		case "last_commute_at":
			if t, ok := value.(time.Time); ok {
				p.LastCommuteAt = &t
			}
		}
	}
}

// WriteCount returns how many merge writes were recorded.
func (m *MockProfileStore) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Writes)
}

func (m *MockProfileStore) ListTopByPoints(n int) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Profile, 0, len(m.Profiles))
	for _, p := range m.Profiles {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPoints > out[j].TotalPoints })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MockProfileStore) ListIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.Profiles))
	for id := range m.Profiles {
		ids = append(ids, id)
	}
	return ids, nil
}

// MockCommuteStore is an in-memory CommuteStore.
type MockCommuteStore struct {
	AppendFunc     func(entry *models.CommuteLog) error
	ListByUserFunc func(userID string, limit int) ([]models.CommuteLog, error)

	mu      sync.Mutex
	Entries []models.CommuteLog
}

func NewMockCommuteStore() *MockCommuteStore {
	return &MockCommuteStore{}
}

func (m *MockCommuteStore) Append(entry *models.CommuteLog) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, *entry)
	return nil
}

func (m *MockCommuteStore) ListByUser(userID string, limit int) ([]models.CommuteLog, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(userID, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CommuteLog
	for i := len(m.Entries) - 1; i >= 0; i-- {
		if m.Entries[i].UserID != userID {
			continue
		}
		out = append(out, m.Entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockCommuteStore) CountByUserSince(userID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.Entries {
		if e.UserID == userID && !e.LoggedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// EntryCount returns how many log entries were appended.
func (m *MockCommuteStore) EntryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

// MockBadgeStore is an in-memory badge unlock store.
type MockBadgeStore struct {
	AwardFunc        func(userID, badgeID string) error
	ListUnlockedFunc func(userID string) ([]models.UserBadge, error)

	mu       sync.Mutex
	Unlocked map[string][]models.UserBadge
}

func NewMockBadgeStore() *MockBadgeStore {
	return &MockBadgeStore{Unlocked: make(map[string][]models.UserBadge)}
}

func (m *MockBadgeStore) Award(userID, badgeID string) error {
	if m.AwardFunc != nil {
		return m.AwardFunc(userID, badgeID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ub := range m.Unlocked[userID] {
		if ub.BadgeID == badgeID {
			return nil
		}
	}
	m.Unlocked[userID] = append(m.Unlocked[userID], models.UserBadge{
		UserID:     userID,
		BadgeID:    badgeID,
		UnlockedAt: time.Now(),
	})
	return nil
}

func (m *MockBadgeStore) HasUnlocked(userID, badgeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ub := range m.Unlocked[userID] {
		if ub.BadgeID == badgeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockBadgeStore) ListUnlocked(userID string) ([]models.UserBadge, error) {
	if m.ListUnlockedFunc != nil {
		return m.ListUnlockedFunc(userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.UserBadge(nil), m.Unlocked[userID]...), nil
}

func (m *MockBadgeStore) ListUnlockedIDs(userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, ub := range m.Unlocked[userID] {
		ids = append(ids, ub.BadgeID)
	}
	return ids, nil
}

func (m *MockBadgeStore) HolderCount(badgeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, badges := range m.Unlocked {
		for _, ub := range badges {
			if ub.BadgeID == badgeID {
				n++
			}
		}
	}
	return n, nil
}

// MockChallengeStore is an in-memory challenge progress store.
type MockChallengeStore struct {
	ListByUserFunc func(userID string) ([]models.UserChallenge, error)
	UpsertFunc     func(uc *models.UserChallenge) error

	mu   sync.Mutex
	Rows map[string]map[string]*models.UserChallenge
}

func NewMockChallengeStore() *MockChallengeStore {
	return &MockChallengeStore{Rows: make(map[string]map[string]*models.UserChallenge)}
}

func (m *MockChallengeStore) ListByUser(userID string) ([]models.UserChallenge, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserChallenge
	for _, uc := range m.Rows[userID] {
		out = append(out, *uc)
	}
	return out, nil
}

func (m *MockChallengeStore) Upsert(uc *models.UserChallenge) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(uc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Rows[uc.UserID] == nil {
		m.Rows[uc.UserID] = make(map[string]*models.UserChallenge)
	}
	cp := *uc
	m.Rows[uc.UserID][uc.ChallengeID] = &cp
	return nil
}

// Row returns a stored progress row, or nil when absent.
func (m *MockChallengeStore) Row(userID, challengeID string) *models.UserChallenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	uc, ok := m.Rows[userID][challengeID]
	if !ok {
		return nil
	}
	cp := *uc
	return &cp
}
