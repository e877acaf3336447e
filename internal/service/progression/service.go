// Package progression implements the EcoRace progression and reward engine:
// points, leveling, commute logging, vehicle selection and challenge
// completion. State lives in an in-memory session per user, loaded from the
// profile store on first use; mutations apply optimistically and the store
// write follows asynchronously with no rollback on failure.
package progression

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecorace/ecorace-backend/internal/catalog"
	prommetrics "github.com/ecorace/ecorace-backend/internal/metrics"
	"github.com/ecorace/ecorace-backend/internal/models"
	"github.com/ecorace/ecorace-backend/internal/repository"
	"github.com/ecorace/ecorace-backend/pkg/logger"
)

// Onboarding defaults for a fresh profile.
const (
	starterPoints        = 100
	startingLevel        = 1
	startingXPToNext     = 1000
	levelThresholdFactor = 1.2
	pointsPerEcoKm       = 10
)

// Sentinel errors for precondition violations. Callers are expected to have
// already disabled the offending control; none of these mutate state.
var (
	ErrUnknownVehicle = errors.New("unknown vehicle")
	ErrVehicleLocked  = errors.New("vehicle locked")
	ErrNegativePoints = errors.New("points must be non-negative")
	ErrInvalidCommute = errors.New("commute distance, duration and carbon saved must be non-negative")
	ErrProfileExists  = errors.New("profile already exists")
)

// ProfileStore is the persistent profile document interface.
type ProfileStore interface {
	Create(profile *models.Profile) error
	Get(userID string) (*models.Profile, error)
	Write(userID string, fields map[string]interface{}) error
}

// CommuteStore is the append-only commute log interface.
type CommuteStore interface {
	Append(entry *models.CommuteLog) error
	ListByUser(userID string, limit int) ([]models.CommuteLog, error)
}

// BadgeStore exposes unlocked badge state for session loading.
type BadgeStore interface {
	ListUnlocked(userID string) ([]models.UserBadge, error)
}

// ChallengeStore persists per-user challenge progress.
type ChallengeStore interface {
	ListByUser(userID string) ([]models.UserChallenge, error)
	Upsert(uc *models.UserChallenge) error
}

// commuteHistoryLimit bounds how much of the log a session keeps in memory.
const commuteHistoryLimit = 50

// Notifier announces level-ups to an external channel. Optional; a nil
// notifier disables announcements.
type Notifier interface {
	NotifyLevelUp(ctx context.Context, userID string, level int) error
}

// Service is the progression engine. All operations serialize on one mutex,
// the equivalent of the original single-threaded event loop.
type Service struct {
	catalog        *catalog.Catalog
	profileStore   ProfileStore
	commuteStore   CommuteStore
	badgeStore     BadgeStore
	challengeStore ChallengeStore
	notifier       Notifier
	log            *logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
	writes   sync.WaitGroup
	now      func() time.Time
}

// NewService creates a new progression service with concrete repository types.
func NewService(
	cat *catalog.Catalog,
	profileRepo *repository.ProfileRepository,
	commuteRepo *repository.CommuteRepository,
	badgeRepo *repository.BadgeRepository,
	challengeRepo *repository.ChallengeRepository,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(cat, profileRepo, commuteRepo, badgeRepo, challengeRepo, log)
}

// NewServiceWithInterfaces creates a new progression service with interface
// dependencies (useful for testing).
func NewServiceWithInterfaces(
	cat *catalog.Catalog,
	profileStore ProfileStore,
	commuteStore CommuteStore,
	badgeStore BadgeStore,
	challengeStore ChallengeStore,
	log *logger.Logger,
) *Service {
	return &Service{
		catalog:        cat,
		profileStore:   profileStore,
		commuteStore:   commuteStore,
		badgeStore:     badgeStore,
		challengeStore: challengeStore,
		log:            log,
		sessions:       make(map[string]*session),
		now:            time.Now,
	}
}

// SetNotifier enables level-up announcements through the given notifier.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// announceLevelUp dispatches a level-up announcement without blocking the
// critical section. Failures are logged, never propagated.
func (s *Service) announceLevelUp(userID string, level int) {
	if s.notifier == nil {
		return
	}
	s.dispatch(userID, func() {
		if err := s.notifier.NotifyLevelUp(context.Background(), userID, level); err != nil {
			s.log.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("Failed to announce level up")
		}
	})
}

// CreateProfile creates a new profile with onboarding defaults: a 100 point
// starter bonus at level 1 with an empty log. The profile row is written
// synchronously; the session is cached for subsequent operations.
func (s *Service) CreateProfile(userID, name, avatar, vehicleID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, loaded := s.sessions[userID]; loaded {
		return Snapshot{}, ErrProfileExists
	}
	if existing, err := s.profileStore.Get(userID); err != nil && !errors.Is(err, repository.ErrProfileNotFound) {
		return Snapshot{}, err
	} else if existing != nil {
		return Snapshot{}, ErrProfileExists
	}

	if _, ok := s.catalog.Vehicle(vehicleID); !ok {
		return Snapshot{}, ErrUnknownVehicle
	}

	profile := &models.Profile{
		ID:              userID,
		Name:            name,
		Avatar:          avatar,
		SelectedVehicle: vehicleID,
		TotalPoints:     starterPoints,
		Level:           startingLevel,
		XP:              0,
		XPToNextLevel:   startingXPToNext,
	}
	if err := s.profileStore.Create(profile); err != nil {
		return Snapshot{}, err
	}

	sess := &session{
		profile:    profile,
		badges:     make(map[string]time.Time),
		challenges: s.freshChallengeStates(),
	}
	s.sessions[userID] = sess
	prommetrics.SetActiveSessions(len(s.sessions))

	s.log.Info().
		Str("user_id", userID).
		Str("vehicle", vehicleID).
		Msg("Profile created")

	return sess.snapshot(s.catalog), nil
}

// SelectVehicle updates the selected vehicle. A vehicle whose unlock level
// exceeds the user's current level must not change the selection; the engine
// guards even though the UI disables the control.
func (s *Service) SelectVehicle(userID, vehicleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ensureSession(userID)
	if err != nil {
		return err
	}

	vehicle, ok := s.catalog.Vehicle(vehicleID)
	if !ok {
		return ErrUnknownVehicle
	}
	if vehicle.UnlockLevel > sess.profile.Level {
		return ErrVehicleLocked
	}

	sess.profile.SelectedVehicle = vehicleID
	s.persistProfile(userID, map[string]interface{}{
		"selected_vehicle": vehicleID,
	})
	return nil
}

// AddPoints credits points toward totals and XP, applying at most one
// level-up per call. Reaching the threshold exactly counts as a level-up
// with zero carryover.
func (s *Service) AddPoints(userID string, points int) error {
	if points < 0 {
		return ErrNegativePoints
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ensureSession(userID)
	if err != nil {
		return err
	}

	leveledUp := applyPoints(sess.profile, points)
	prommetrics.RecordPointsAwarded(points)
	if leveledUp {
		prommetrics.RecordLevelUp()
		s.announceLevelUp(userID, sess.profile.Level)
		s.log.Info().
			Str("user_id", userID).
			Int("level", sess.profile.Level).
			Msg("Level up")
	}

	s.persistProfile(userID, statsFields(sess.profile))
	return nil
}

// CommuteInput is the caller-supplied portion of a commute log entry.
type CommuteInput struct {
	DistanceKm    float64
	Mode          string
	DurationMin   float64
	CarbonSavedKg float64
	Route         []models.RoutePoint
}

// LogCommute records a commute: it appends an immutable log entry, awards
// points derived from distance and the mode's eco-factor, and updates the
// aggregate totals. The point award and the stat updates are applied in one
// critical section; no observer sees one without the other.
func (s *Service) LogCommute(userID string, in CommuteInput) (*models.CommuteLog, error) {
	if in.DistanceKm < 0 || in.DurationMin < 0 || in.CarbonSavedKg < 0 {
		return nil, ErrInvalidCommute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ensureSession(userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	// Unknown modes fall back to eco-factor 1 rather than erroring.
	points := int(math.Floor(in.DistanceKm * s.catalog.EcoFactor(in.Mode) * pointsPerEcoKm))

	entry := &models.CommuteLog{
		ID:            uuid.NewString(),
		UserID:        userID,
		Mode:          in.Mode,
		DistanceKm:    in.DistanceKm,
		DurationMin:   in.DurationMin,
		CarbonSavedKg: in.CarbonSavedKg,
		Points:        points,
		LoggedAt:      now,
	}
	if err := entry.SetRoute(in.Route); err != nil {
		return nil, err
	}

	// Most recent first.
	sess.commutes = append([]models.CommuteLog{*entry}, sess.commutes...)
	if len(sess.commutes) > commuteHistoryLimit {
		sess.commutes = sess.commutes[:commuteHistoryLimit]
	}

	profile := sess.profile
	leveledUp := applyPoints(profile, points)
	profile.TotalDistance += in.DistanceKm
	profile.TotalCarbonSaved += in.CarbonSavedKg
	profile.TotalCommutes++
	updateStreak(profile, now)
	if in.DurationMin > 0 && (profile.BestLapTime == 0 || in.DurationMin < profile.BestLapTime) {
		profile.BestLapTime = in.DurationMin
	}
	lastCommuteAt := now
	profile.LastCommuteAt = &lastCommuteAt

	prommetrics.RecordCommuteLogged(in.Mode, in.DistanceKm)
	prommetrics.RecordPointsAwarded(points)
	if leveledUp {
		prommetrics.RecordLevelUp()
		s.announceLevelUp(userID, profile.Level)
	}

	fields := statsFields(profile)
	fields["total_distance"] = profile.TotalDistance
	fields["total_carbon_saved"] = profile.TotalCarbonSaved
	fields["total_commutes"] = profile.TotalCommutes
	fields["current_streak"] = profile.CurrentStreak
	fields["best_lap_time"] = profile.BestLapTime
	fields["last_commute_at"] = lastCommuteAt
	s.persistProfile(userID, fields)
	s.persistCommute(entry)

	s.log.Info().
		Str("user_id", userID).
		Str("mode", in.Mode).
		Float64("distance_km", in.DistanceKm).
		Int("points", points).
		Msg("Commute logged")

	return entry, nil
}

// CompleteChallenge forces a challenge's progress to its target. Idempotent.
// An unknown challenge id mutates nothing and is not an error; the original
// design ignores it silently and that behavior is preserved. Reward points
// are NOT credited here: point crediting stays a separate caller-driven
// AddPoints, as in the observed design.
func (s *Service) CompleteChallenge(userID, challengeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ensureSession(userID)
	if err != nil {
		return err
	}

	tpl, ok := s.catalog.Challenge(challengeID)
	if !ok {
		s.log.Debug().
			Str("user_id", userID).
			Str("challenge_id", challengeID).
			Msg("Ignoring completion of unknown challenge")
		return nil
	}

	st, ok := sess.challenges[challengeID]
	if !ok {
		st = &challengeState{ExpiresAt: s.catalog.ExpiryFor(tpl, s.now())}
		sess.challenges[challengeID] = st
	}

	alreadyComplete := st.Current >= tpl.Target
	st.Current = tpl.Target
	if st.CompletedAt == nil {
		completedAt := s.now()
		st.CompletedAt = &completedAt
	}

	if !alreadyComplete {
		prommetrics.RecordChallengeCompleted(tpl.Type)
	}

	s.persistChallenge(userID, challengeID, st)
	return nil
}

// Snapshot returns a read-only copy of the user's session state, loading it
// from the store first if needed.
func (s *Service) Snapshot(userID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ensureSession(userID)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.snapshot(s.catalog), nil
}

// Invalidate drops a user's in-memory session, forcing the next operation to
// reload from the store. Used after external jobs rewrite persisted state.
func (s *Service) Invalidate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	prommetrics.SetActiveSessions(len(s.sessions))
}

// InvalidateAll drops every loaded session so the next operation reloads
// from the store. Used after jobs rewrite persisted state in bulk, such as
// the challenge period reset.
func (s *Service) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*session)
	prommetrics.SetActiveSessions(0)
}

// Flush blocks until all dispatched store writes have settled. Shutdown and
// tests use it; the hot path never waits.
func (s *Service) Flush() {
	s.writes.Wait()
}

// FlushUser blocks until one user's dispatched store writes have settled,
// leaving other users' pending writes alone.
func (s *Service) FlushUser(userID string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if ok {
		sess.writes.Wait()
	}
}

// ensureSession returns the loaded session for a user, reading the profile
// document, badge unlocks, challenge progress and recent commutes from the
// store on first access. Callers hold the mutex.
func (s *Service) ensureSession(userID string) (*session, error) {
	if sess, ok := s.sessions[userID]; ok {
		return sess, nil
	}

	profile, err := s.profileStore.Get(userID)
	if err != nil {
		return nil, err
	}

	sess := &session{
		profile:    profile,
		badges:     make(map[string]time.Time),
		challenges: s.freshChallengeStates(),
	}

	unlocked, err := s.badgeStore.ListUnlocked(userID)
	if err != nil {
		return nil, err
	}
	for _, ub := range unlocked {
		sess.badges[ub.BadgeID] = ub.UnlockedAt
	}

	rows, err := s.challengeStore.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		row := rows[i]
		if _, ok := s.catalog.Challenge(row.ChallengeID); !ok {
			continue // stale template, dropped from the catalog
		}
		sess.challenges[row.ChallengeID] = &challengeState{
			Current:     row.Current,
			CompletedAt: row.CompletedAt,
			ExpiresAt:   row.ExpiresAt,
		}
	}

	commutes, err := s.commuteStore.ListByUser(userID, commuteHistoryLimit)
	if err != nil {
		return nil, err
	}
	sess.commutes = commutes

	s.sessions[userID] = sess
	prommetrics.SetActiveSessions(len(s.sessions))

	s.log.Debug().
		Str("user_id", userID).
		Int("badges", len(sess.badges)).
		Int("commutes", len(sess.commutes)).
		Msg("Session loaded")

	return sess, nil
}

// freshChallengeStates seeds zero-progress state for every catalog template.
func (s *Service) freshChallengeStates() map[string]*challengeState {
	now := s.now()
	states := make(map[string]*challengeState, len(s.catalog.Challenges))
	for i := range s.catalog.Challenges {
		tpl := &s.catalog.Challenges[i]
		states[tpl.ID] = &challengeState{ExpiresAt: s.catalog.ExpiryFor(tpl, now)}
	}
	return states
}

// applyPoints runs the leveling transition on a profile. At most one level-up
// per call even if the amount would cross two thresholds; reaching the
// threshold exactly levels up with xp reset to zero. Returns whether a
// level-up happened.
func applyPoints(p *models.Profile, points int) bool {
	newXP := p.XP + points
	p.TotalPoints += points
	if newXP >= p.XPToNextLevel {
		p.XP = newXP - p.XPToNextLevel
		p.Level++
		p.XPToNextLevel = int(math.Floor(float64(p.XPToNextLevel) * levelThresholdFactor))
		return true
	}
	p.XP = newXP
	return false
}

// updateStreak maintains the consecutive-day commute streak: unchanged within
// the same day, incremented when the previous commute was yesterday, reset to
// one after a gap.
func updateStreak(p *models.Profile, now time.Time) {
	if p.LastCommuteAt == nil {
		p.CurrentStreak = 1
		return
	}
	last := p.LastCommuteAt.UTC()
	today := now.UTC().Truncate(24 * time.Hour)
	lastDay := last.Truncate(24 * time.Hour)
	switch today.Sub(lastDay) {
	case 0:
		// Same day, streak unchanged.
	case 24 * time.Hour:
		p.CurrentStreak++
	default:
		p.CurrentStreak = 1
	}
}

// statsFields builds the partial-update field map for the leveling stats.
func statsFields(p *models.Profile) map[string]interface{} {
	return map[string]interface{}{
		"total_points":     p.TotalPoints,
		"level":            p.Level,
		"xp":               p.XP,
		"xp_to_next_level": p.XPToNextLevel,
	}
}

// dispatch runs a store write in the background, tracked globally for
// shutdown and on the user's session for per-user flushes. Must be called
// with the mutex held.
func (s *Service) dispatch(userID string, fn func()) {
	s.writes.Add(1)
	var sessWrites *sync.WaitGroup
	if sess, ok := s.sessions[userID]; ok {
		sess.writes.Add(1)
		sessWrites = &sess.writes
	}
	go func() {
		defer s.writes.Done()
		if sessWrites != nil {
			defer sessWrites.Done()
		}
		fn()
	}()
}

// persistProfile dispatches an asynchronous merge write of the given fields.
// The in-memory state is already applied; a failed write is logged and
// counted but never rolled back or retried.
func (s *Service) persistProfile(userID string, fields map[string]interface{}) {
	s.dispatch(userID, func() {
		if err := s.profileStore.Write(userID, fields); err != nil {
			prommetrics.RecordProfileWriteFailure()
			s.log.Error().
				Err(err).
				Str("user_id", userID).
				Msg("Failed to persist profile update")
		}
	})
}

// persistCommute dispatches an asynchronous append of a log entry.
func (s *Service) persistCommute(entry *models.CommuteLog) {
	s.dispatch(entry.UserID, func() {
		if err := s.commuteStore.Append(entry); err != nil {
			prommetrics.RecordProfileWriteFailure()
			s.log.Error().
				Err(err).
				Str("user_id", entry.UserID).
				Str("commute_id", entry.ID).
				Msg("Failed to persist commute log entry")
		}
	})
}

// persistChallenge dispatches an asynchronous upsert of challenge progress.
func (s *Service) persistChallenge(userID, challengeID string, st *challengeState) {
	row := &models.UserChallenge{
		UserID:      userID,
		ChallengeID: challengeID,
		Current:     st.Current,
		CompletedAt: st.CompletedAt,
		ExpiresAt:   st.ExpiresAt,
	}
	s.dispatch(userID, func() {
		if err := s.challengeStore.Upsert(row); err != nil {
			prommetrics.RecordProfileWriteFailure()
			s.log.Error().
				Err(err).
				Str("user_id", userID).
				Str("challenge_id", challengeID).
				Msg("Failed to persist challenge progress")
		}
	})
}
