package progression

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ecorace/ecorace-backend/internal/catalog"
	"github.com/ecorace/ecorace-backend/internal/models"
	"github.com/ecorace/ecorace-backend/pkg/logger"
	"github.com/ecorace/ecorace-backend/test/mocks"
)

func setupTestService(t *testing.T) (*Service, *mocks.MockProfileStore, *mocks.MockCommuteStore, *mocks.MockChallengeStore) {
	t.Helper()

	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	profileStore := mocks.NewMockProfileStore()
	commuteStore := mocks.NewMockCommuteStore()
	badgeStore := mocks.NewMockBadgeStore()
	challengeStore := mocks.NewMockChallengeStore()
	log := logger.New("debug", "text", "stdout")

	service := NewServiceWithInterfaces(cat, profileStore, commuteStore, badgeStore, challengeStore, log)

	return service, profileStore, commuteStore, challengeStore
}

// seedProfile plants a profile directly in the store so tests can start from
// arbitrary progression state.
func seedProfile(t *testing.T, store *mocks.MockProfileStore, p *models.Profile) {
	t.Helper()
	if err := store.Create(p); err != nil {
		t.Fatalf("Failed to seed profile: %v", err)
	}
}

func TestCreateProfileDefaults(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	snap, err := service.CreateProfile("user-1", "Alex", "racer", "bike")
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	if snap.Stats.TotalPoints != 100 {
		t.Errorf("Expected starter bonus of 100 points, got %d", snap.Stats.TotalPoints)
	}
	if snap.Stats.Level != 1 {
		t.Errorf("Expected level 1, got %d", snap.Stats.Level)
	}
	if snap.Stats.XP != 0 {
		t.Errorf("Expected 0 xp, got %d", snap.Stats.XP)
	}
	if snap.Stats.XPToNextLevel != 1000 {
		t.Errorf("Expected xp threshold 1000, got %d", snap.Stats.XPToNextLevel)
	}
	if len(snap.Commutes) != 0 {
		t.Errorf("Expected empty commute log, got %d entries", len(snap.Commutes))
	}
	if snap.SelectedVehicle != "bike" {
		t.Errorf("Expected bike selected, got %q", snap.SelectedVehicle)
	}

	// Re-creating the same user must fail.
	if _, err := service.CreateProfile("user-1", "Alex", "racer", "bike"); !errors.Is(err, ErrProfileExists) {
		t.Errorf("Expected ErrProfileExists, got %v", err)
	}
}

func TestAddPointsLevelingInvariant(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "walk"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	// Award repeatedly and check the invariant holds after every step.
	amounts := []int{0, 50, 999, 1000, 1, 2500, 300, 7}
	prevLevel := 1
	for _, amount := range amounts {
		if err := service.AddPoints("user-1", amount); err != nil {
			t.Fatalf("AddPoints(%d) failed: %v", amount, err)
		}
		snap, err := service.Snapshot("user-1")
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if snap.Stats.XP < 0 || snap.Stats.XP >= snap.Stats.XPToNextLevel {
			t.Errorf("After AddPoints(%d): xp %d out of range [0, %d)",
				amount, snap.Stats.XP, snap.Stats.XPToNextLevel)
		}
		if snap.Stats.Level < prevLevel || snap.Stats.Level > prevLevel+1 {
			t.Errorf("After AddPoints(%d): level moved from %d to %d", amount, prevLevel, snap.Stats.Level)
		}
		prevLevel = snap.Stats.Level
	}
}

func TestAddPointsLevelUpCarryover(t *testing.T) {
	service, profileStore, _, _ := setupTestService(t)

	seedProfile(t, profileStore, &models.Profile{
		ID:              "user-1",
		Name:            "Alex",
		SelectedVehicle: "walk",
		TotalPoints:     2000,
		Level:           3,
		XP:              900,
		XPToNextLevel:   1000,
	})

	if err := service.AddPoints("user-1", 150); err != nil {
		t.Fatalf("AddPoints failed: %v", err)
	}

	snap, err := service.Snapshot("user-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Stats.Level != 4 {
		t.Errorf("Expected level 4, got %d", snap.Stats.Level)
	}
	if snap.Stats.XP != 50 {
		t.Errorf("Expected 50 xp carryover, got %d", snap.Stats.XP)
	}
	if snap.Stats.XPToNextLevel != 1200 {
		t.Errorf("Expected new threshold 1200, got %d", snap.Stats.XPToNextLevel)
	}
	if snap.Stats.TotalPoints != 2150 {
		t.Errorf("Expected total points 2150, got %d", snap.Stats.TotalPoints)
	}
}

func TestAddPointsExactThreshold(t *testing.T) {
	service, profileStore, _, _ := setupTestService(t)

	seedProfile(t, profileStore, &models.Profile{
		ID:            "user-1",
		Level:         1,
		XP:            0,
		XPToNextLevel: 1000,
	})

	if err := service.AddPoints("user-1", 1000); err != nil {
		t.Fatalf("AddPoints failed: %v", err)
	}

	snap, _ := service.Snapshot("user-1")
	if snap.Stats.Level != 2 {
		t.Errorf("Reaching the threshold exactly should level up, got level %d", snap.Stats.Level)
	}
	if snap.Stats.XP != 0 {
		t.Errorf("Expected 0 xp after exact threshold, got %d", snap.Stats.XP)
	}
}

func TestAddPointsRejectsNegative(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "walk"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	if err := service.AddPoints("user-1", -5); !errors.Is(err, ErrNegativePoints) {
		t.Errorf("Expected ErrNegativePoints, got %v", err)
	}
	snap, _ := service.Snapshot("user-1")
	if snap.Stats.TotalPoints != 100 {
		t.Errorf("Failed award must not mutate totals, got %d points", snap.Stats.TotalPoints)
	}
}

func TestLogCommutePointFormula(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "bike"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	entry, err := service.LogCommute("user-1", CommuteInput{
		DistanceKm:    10,
		Mode:          "bike",
		DurationMin:   35,
		CarbonSavedKg: 2.4,
	})
	if err != nil {
		t.Fatalf("LogCommute failed: %v", err)
	}

	// 10 km at eco-factor 1.8 is 180 points.
	if entry.Points != 180 {
		t.Errorf("Expected 180 points on the log entry, got %d", entry.Points)
	}

	snap, _ := service.Snapshot("user-1")
	if snap.Stats.TotalPoints != 100+180 {
		t.Errorf("Expected 280 total points, got %d", snap.Stats.TotalPoints)
	}
	if len(snap.Commutes) != 1 || snap.Commutes[0].Points != 180 {
		t.Errorf("Expected the entry at the head of the log with 180 points, got %+v", snap.Commutes)
	}
}

func TestLogCommuteUnknownModeFallback(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "walk"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	entry, err := service.LogCommute("user-1", CommuteInput{
		DistanceKm: 10,
		Mode:       "hoverboard",
	})
	if err != nil {
		t.Fatalf("LogCommute failed: %v", err)
	}
	if entry.Points != 100 {
		t.Errorf("Unknown mode should fall back to eco-factor 1 (100 points), got %d", entry.Points)
	}
}

func TestLogCommuteAggregates(t *testing.T) {
	service, _, commuteStore, _ := setupTestService(t)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "bike"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	inputs := []CommuteInput{
		{DistanceKm: 5, Mode: "bike", DurationMin: 20, CarbonSavedKg: 1.2},
		{DistanceKm: 3.5, Mode: "walk", DurationMin: 45, CarbonSavedKg: 0.8},
		{DistanceKm: 12, Mode: "bus", DurationMin: 30, CarbonSavedKg: 2.1},
	}

	wantDistance, wantCarbon, wantPoints := 0.0, 0.0, 100
	wantBest := 0.0
	for _, in := range inputs {
		entry, err := service.LogCommute("user-1", in)
		if err != nil {
			t.Fatalf("LogCommute failed: %v", err)
		}
		wantDistance += in.DistanceKm
		wantCarbon += in.CarbonSavedKg
		wantPoints += entry.Points
		if wantBest == 0 || in.DurationMin < wantBest {
			wantBest = in.DurationMin
		}
	}

	snap, _ := service.Snapshot("user-1")
	if snap.Stats.TotalCommutes != len(inputs) {
		t.Errorf("Expected %d commutes, got %d", len(inputs), snap.Stats.TotalCommutes)
	}
	if snap.Stats.TotalDistance != wantDistance {
		t.Errorf("Expected total distance %v, got %v", wantDistance, snap.Stats.TotalDistance)
	}
	if snap.Stats.TotalCarbonSaved != wantCarbon {
		t.Errorf("Expected total carbon %v, got %v", wantCarbon, snap.Stats.TotalCarbonSaved)
	}
	if snap.Stats.TotalPoints != wantPoints {
		t.Errorf("Expected total points %d, got %d", wantPoints, snap.Stats.TotalPoints)
	}
	if snap.Stats.BestLapTime != wantBest {
		t.Errorf("Expected best lap %v, got %v", wantBest, snap.Stats.BestLapTime)
	}
	if len(snap.Commutes) != len(inputs) {
		t.Errorf("Expected %d log entries, got %d", len(inputs), len(snap.Commutes))
	}
	// Most recent first.
	if snap.Commutes[0].Mode != "bus" {
		t.Errorf("Expected the newest entry first, got mode %q", snap.Commutes[0].Mode)
	}

	service.Flush()
	if commuteStore.EntryCount() != len(inputs) {
		t.Errorf("Expected %d persisted entries after flush, got %d", len(inputs), commuteStore.EntryCount())
	}
}

func TestLogCommuteStreak(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "walk"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	log := func() {
		t.Helper()
		if _, err := service.LogCommute("user-1", CommuteInput{DistanceKm: 1, Mode: "walk"}); err != nil {
			t.Fatalf("LogCommute failed: %v", err)
		}
	}
	streak := func() int {
		t.Helper()
		snap, err := service.Snapshot("user-1")
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		return snap.Stats.CurrentStreak
	}

	log()
	if got := streak(); got != 1 {
		t.Errorf("First commute should start a streak of 1, got %d", got)
	}

	// Second commute the same day leaves the streak alone.
	now = now.Add(2 * time.Hour)
	log()
	if got := streak(); got != 1 {
		t.Errorf("Same-day commute should keep the streak at 1, got %d", got)
	}

	// Next day extends it.
	now = now.Add(24 * time.Hour)
	log()
	if got := streak(); got != 2 {
		t.Errorf("Next-day commute should extend the streak to 2, got %d", got)
	}

	// A gap resets to 1.
	now = now.Add(72 * time.Hour)
	log()
	if got := streak(); got != 1 {
		t.Errorf("Commute after a gap should reset the streak to 1, got %d", got)
	}
}

func TestSelectVehicleLockGating(t *testing.T) {
	service, profileStore, _, _ := setupTestService(t)

	seedProfile(t, profileStore, &models.Profile{
		ID:              "user-1",
		SelectedVehicle: "walk",
		Level:           2,
		XPToNextLevel:   1000,
	})

	// Scooter unlocks at level 3; a level 2 user must be refused.
	if err := service.SelectVehicle("user-1", "scooter"); !errors.Is(err, ErrVehicleLocked) {
		t.Errorf("Expected ErrVehicleLocked, got %v", err)
	}
	snap, _ := service.Snapshot("user-1")
	if snap.SelectedVehicle != "walk" {
		t.Errorf("Failed selection must not change the vehicle, got %q", snap.SelectedVehicle)
	}

	// Bike unlocks at level 1 and is allowed.
	if err := service.SelectVehicle("user-1", "bike"); err != nil {
		t.Errorf("Expected bike selection to succeed, got %v", err)
	}
	snap, _ = service.Snapshot("user-1")
	if snap.SelectedVehicle != "bike" {
		t.Errorf("Expected bike selected, got %q", snap.SelectedVehicle)
	}

	if err := service.SelectVehicle("user-1", "jetpack"); !errors.Is(err, ErrUnknownVehicle) {
		t.Errorf("Expected ErrUnknownVehicle, got %v", err)
	}
}

func TestCompleteChallengeIdempotent(t *testing.T) {
	service, profileStore, _, challengeStore := setupTestService(t)

	seedProfile(t, profileStore, &models.Profile{
		ID:            "user-1",
		Level:         1,
		XPToNextLevel: 1000,
	})
	// Partial progress already in the store.
	if err := challengeStore.Upsert(&models.UserChallenge{
		UserID:      "user-1",
		ChallengeID: "green_miles",
		Current:     3,
		ExpiresAt:   time.Now().Add(12 * time.Hour),
	}); err != nil {
		t.Fatalf("Failed to seed challenge progress: %v", err)
	}

	find := func(snap Snapshot, id string) *ChallengeStatus {
		for i := range snap.Challenges {
			if snap.Challenges[i].ID == id {
				return &snap.Challenges[i]
			}
		}
		return nil
	}

	if err := service.CompleteChallenge("user-1", "green_miles"); err != nil {
		t.Fatalf("CompleteChallenge failed: %v", err)
	}
	snap, _ := service.Snapshot("user-1")
	st := find(snap, "green_miles")
	if st == nil {
		t.Fatal("green_miles missing from snapshot")
	}
	if !st.Completed || st.Current != st.Target {
		t.Errorf("Expected progress forced to target %v, got %v (completed=%v)", st.Target, st.Current, st.Completed)
	}
	firstCompletedAt := st.CompletedAt

	// Completing again changes nothing.
	if err := service.CompleteChallenge("user-1", "green_miles"); err != nil {
		t.Fatalf("Repeat CompleteChallenge failed: %v", err)
	}
	snap, _ = service.Snapshot("user-1")
	st = find(snap, "green_miles")
	if st.Current != st.Target {
		t.Errorf("Repeat completion moved progress to %v", st.Current)
	}
	if firstCompletedAt != nil && st.CompletedAt != nil && !st.CompletedAt.Equal(*firstCompletedAt) {
		t.Errorf("Repeat completion changed the completion timestamp")
	}

	service.Flush()
	if row := challengeStore.Row("user-1", "green_miles"); row == nil || row.Current != st.Target {
		t.Errorf("Expected persisted progress at target, got %+v", row)
	}
}

func TestCompleteChallengeDoesNotCreditReward(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "walk"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	before, _ := service.Snapshot("user-1")
	if err := service.CompleteChallenge("user-1", "morning_rush"); err != nil {
		t.Fatalf("CompleteChallenge failed: %v", err)
	}
	after, _ := service.Snapshot("user-1")

	if after.Stats.TotalPoints != before.Stats.TotalPoints {
		t.Errorf("Completing a challenge must not credit points: %d -> %d",
			before.Stats.TotalPoints, after.Stats.TotalPoints)
	}
}

func TestCompleteChallengeUnknownIDIsNoOp(t *testing.T) {
	service, _, _, challengeStore := setupTestService(t)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "walk"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	if err := service.CompleteChallenge("user-1", "no-such-challenge"); err != nil {
		t.Errorf("Unknown challenge id must not be an error, got %v", err)
	}

	service.Flush()
	if row := challengeStore.Row("user-1", "no-such-challenge"); row != nil {
		t.Errorf("Unknown challenge id must not persist anything, got %+v", row)
	}
}

func TestAsyncPersistenceSurvivesWriteFailure(t *testing.T) {
	service, profileStore, _, _ := setupTestService(t)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "walk"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	profileStore.WriteFunc = func(userID string, fields map[string]interface{}) error {
		return errors.New("store unavailable")
	}

	if err := service.AddPoints("user-1", 50); err != nil {
		t.Fatalf("AddPoints must not surface the async write failure, got %v", err)
	}
	service.Flush()

	// The in-memory state keeps the award despite the failed write.
	snap, _ := service.Snapshot("user-1")
	if snap.Stats.TotalPoints != 150 {
		t.Errorf("Expected in-memory total of 150 after failed write, got %d", snap.Stats.TotalPoints)
	}
}

func TestSessionReloadAfterInvalidate(t *testing.T) {
	service, profileStore, _, _ := setupTestService(t)

	seedProfile(t, profileStore, &models.Profile{
		ID:            "user-1",
		Name:          "Alex",
		TotalPoints:   700,
		Level:         2,
		XP:            300,
		XPToNextLevel: 1200,
	})

	snap, err := service.Snapshot("user-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Stats.TotalPoints != 700 || snap.Stats.Level != 2 {
		t.Errorf("Expected seeded state loaded, got %+v", snap.Stats)
	}

	service.Invalidate("user-1")
	if _, err := service.Snapshot("user-1"); err != nil {
		t.Errorf("Snapshot after invalidate should reload from the store, got %v", err)
	}

	if _, err := service.Snapshot("nobody"); err == nil {
		t.Error("Expected an error for an unknown user")
	}
}

type recordingLevelNotifier struct {
	mu     sync.Mutex
	levels []int
}

func (r *recordingLevelNotifier) NotifyLevelUp(_ context.Context, _ string, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, level)
	return nil
}

func TestLevelUpAnnounced(t *testing.T) {
	service, _, _, _ := setupTestService(t)
	notifier := &recordingLevelNotifier{}
	service.SetNotifier(notifier)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "bike"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	if err := service.AddPoints("user-1", 500); err != nil {
		t.Fatalf("AddPoints failed: %v", err)
	}
	if err := service.AddPoints("user-1", 1000); err != nil {
		t.Fatalf("AddPoints failed: %v", err)
	}
	service.Flush()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.levels) != 1 {
		t.Fatalf("Expected 1 announcement, got %d", len(notifier.levels))
	}
	if notifier.levels[0] != 2 {
		t.Errorf("Expected announcement for level 2, got %d", notifier.levels[0])
	}
}

func TestInvalidateAllReloadsResetChallenges(t *testing.T) {
	service, _, _, challengeStore := setupTestService(t)

	if _, err := service.CreateProfile("user-1", "Alex", "racer", "bike"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	if err := service.CompleteChallenge("user-1", "morning_rush"); err != nil {
		t.Fatalf("CompleteChallenge failed: %v", err)
	}
	service.Flush()

	// The period reset rewrites the store rows underneath the session.
	newExpiry := time.Now().Add(24 * time.Hour)
	if err := challengeStore.Upsert(&models.UserChallenge{
		UserID:      "user-1",
		ChallengeID: "morning_rush",
		Current:     0,
		CompletedAt: nil,
		ExpiresAt:   newExpiry,
	}); err != nil {
		t.Fatalf("Failed to reset store row: %v", err)
	}
	service.InvalidateAll()

	snap, err := service.Snapshot("user-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	for _, ch := range snap.Challenges {
		if ch.ID != "morning_rush" {
			continue
		}
		if ch.Completed {
			t.Error("Expected the reset challenge to show incomplete after invalidation")
		}
		if ch.Current != 0 {
			t.Errorf("Expected progress 0 after reset, got %f", ch.Current)
		}
	}
}

func TestFlushUserScopedToOneUser(t *testing.T) {
	service, profileStore, _, _ := setupTestService(t)

	block := make(chan struct{})
	profileStore.WriteFunc = func(userID string, fields map[string]interface{}) error {
		if userID == "user-2" {
			<-block
		}
		return nil
	}

	for _, user := range []string{"user-1", "user-2"} {
		if _, err := service.CreateProfile(user, "Alex", "racer", "bike"); err != nil {
			t.Fatalf("CreateProfile failed: %v", err)
		}
	}
	if err := service.AddPoints("user-2", 50); err != nil {
		t.Fatalf("AddPoints failed: %v", err)
	}
	if err := service.AddPoints("user-1", 50); err != nil {
		t.Fatalf("AddPoints failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		service.FlushUser("user-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("FlushUser blocked on another user's pending write")
	}

	close(block)
	service.Flush()
}
