// Package game provides the REST API for the commute progression engine:
// profiles, commutes, points, vehicles, challenges, badges and the
// leaderboard.
package game

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecorace/ecorace-backend/internal/catalog"
	"github.com/ecorace/ecorace-backend/internal/models"
	"github.com/ecorace/ecorace-backend/internal/repository"
	"github.com/ecorace/ecorace-backend/internal/service/badges"
	"github.com/ecorace/ecorace-backend/internal/service/leaderboard"
	"github.com/ecorace/ecorace-backend/internal/service/progression"
	"github.com/ecorace/ecorace-backend/pkg/logger"
)

// ProgressionService interface for engine operations.
type ProgressionService interface {
	CreateProfile(userID, name, avatar, vehicleID string) (progression.Snapshot, error)
	Snapshot(userID string) (progression.Snapshot, error)
	SelectVehicle(userID, vehicleID string) error
	AddPoints(userID string, points int) error
	LogCommute(userID string, in progression.CommuteInput) (*models.CommuteLog, error)
	CompleteChallenge(userID, challengeID string) error
	FlushUser(userID string)
}

// LeaderboardService interface for standings operations.
type LeaderboardService interface {
	GetStandings(ctx context.Context, limit int) ([]leaderboard.Entry, error)
	GetUserRank(ctx context.Context, userID string) (*leaderboard.Entry, error)
	Invalidate(ctx context.Context)
}

// BadgeService interface for badge queries.
type BadgeService interface {
	ListUserBadges(userID string) ([]models.UserBadge, error)
	EvaluateUser(ctx context.Context, userID string) ([]catalog.Badge, error)
}

// Handler handles game API requests.
type Handler struct {
	progression ProgressionService
	leaderboard LeaderboardService
	badges      BadgeService
	catalog     *catalog.Catalog
	log         *logger.Logger
}

// NewHandler creates a new game handler.
func NewHandler(
	progressionService *progression.Service,
	leaderboardService *leaderboard.Service,
	badgeService *badges.Service,
	cat *catalog.Catalog,
	log *logger.Logger,
) *Handler {
	return NewHandlerWithInterfaces(progressionService, leaderboardService, badgeService, cat, log)
}

// NewHandlerWithInterfaces creates a new game handler with interface
// dependencies (useful for testing).
func NewHandlerWithInterfaces(
	progressionService ProgressionService,
	leaderboardService LeaderboardService,
	badgeService BadgeService,
	cat *catalog.Catalog,
	log *logger.Logger,
) *Handler {
	return &Handler{
		progression: progressionService,
		leaderboard: leaderboardService,
		badges:      badgeService,
		catalog:     cat,
		log:         log,
	}
}

type createProfileRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Avatar  string `json:"avatar"`
	Vehicle string `json:"vehicle"`
}

// CreateProfile onboards a new racer.
// POST /api/v1/profiles.
func (h *Handler) CreateProfile(c *gin.Context) {
	var req createProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Vehicle == "" {
		req.Vehicle = "walk"
	}

	snap, err := h.progression.CreateProfile(req.UserID, req.Name, req.Avatar, req.Vehicle)
	if err != nil {
		switch {
		case errors.Is(err, progression.ErrProfileExists):
			h.errorResponse(c, http.StatusConflict, "profile already exists")
		case errors.Is(err, progression.ErrUnknownVehicle):
			h.errorResponse(c, http.StatusBadRequest, "unknown vehicle")
		default:
			h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to create profile")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to create profile")
		}
		return
	}

	c.JSON(http.StatusCreated, snap)
}

// GetProfile returns the full progression snapshot for a racer.
// GET /api/v1/profiles/:id.
func (h *Handler) GetProfile(c *gin.Context) {
	userID := c.Param("id")

	snap, err := h.progression.Snapshot(userID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			h.errorResponse(c, http.StatusNotFound, "profile not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get profile")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve profile")
		return
	}

	// The engine does not rank; the standings supply it. An unranked or
	// failed lookup leaves rank at zero.
	if entry, err := h.leaderboard.GetUserRank(c.Request.Context(), userID); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("Rank lookup failed")
	} else if entry != nil {
		snap.Stats.Rank = entry.Rank
	}

	c.JSON(http.StatusOK, snap)
}

type selectVehicleRequest struct {
	Vehicle string `json:"vehicle" binding:"required"`
}

// SelectVehicle changes the racer's selected vehicle.
// PUT /api/v1/profiles/:id/vehicle.
func (h *Handler) SelectVehicle(c *gin.Context) {
	userID := c.Param("id")

	var req selectVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.progression.SelectVehicle(userID, req.Vehicle); err != nil {
		switch {
		case errors.Is(err, repository.ErrProfileNotFound):
			h.errorResponse(c, http.StatusNotFound, "profile not found")
		case errors.Is(err, progression.ErrUnknownVehicle):
			h.errorResponse(c, http.StatusBadRequest, "unknown vehicle")
		case errors.Is(err, progression.ErrVehicleLocked):
			h.errorResponse(c, http.StatusConflict, "vehicle is locked")
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to select vehicle")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to select vehicle")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"vehicle": req.Vehicle})
}

type logCommuteRequest struct {
	DistanceKm    float64             `json:"distance_km" binding:"min=0"`
	Mode          string              `json:"mode" binding:"required"`
	DurationMin   float64             `json:"duration_min"`
	CarbonSavedKg float64             `json:"carbon_saved_kg"`
	Route         []models.RoutePoint `json:"route"`
}

// LogCommute records a commute and awards points.
// POST /api/v1/profiles/:id/commutes.
func (h *Handler) LogCommute(c *gin.Context) {
	userID := c.Param("id")

	var req logCommuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.progression.LogCommute(userID, progression.CommuteInput{
		DistanceKm:    req.DistanceKm,
		Mode:          req.Mode,
		DurationMin:   req.DurationMin,
		CarbonSavedKg: req.CarbonSavedKg,
		Route:         req.Route,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProfileNotFound):
			h.errorResponse(c, http.StatusNotFound, "profile not found")
		case errors.Is(err, progression.ErrInvalidCommute):
			h.errorResponse(c, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to log commute")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to log commute")
		}
		return
	}

	// Commutes reshuffle the standings and may unlock badges. Badge
	// evaluation reads the store, so this user's pending writes must settle
	// first; other users' writes are not waited on.
	h.leaderboard.Invalidate(c.Request.Context())
	h.progression.FlushUser(userID)
	if newBadges, err := h.badges.EvaluateUser(c.Request.Context(), userID); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("Badge evaluation after commute failed")
	} else if len(newBadges) > 0 {
		c.JSON(http.StatusCreated, gin.H{"commute": entry, "new_badges": newBadges})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"commute": entry})
}

// Zero is a valid award, so the binding must not use "required".
type addPointsRequest struct {
	Points int `json:"points" binding:"min=0"`
}

// AddPoints credits points directly, outside of commute logging.
// POST /api/v1/profiles/:id/points.
func (h *Handler) AddPoints(c *gin.Context) {
	userID := c.Param("id")

	var req addPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.progression.AddPoints(userID, req.Points); err != nil {
		switch {
		case errors.Is(err, repository.ErrProfileNotFound):
			h.errorResponse(c, http.StatusNotFound, "profile not found")
		case errors.Is(err, progression.ErrNegativePoints):
			h.errorResponse(c, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to add points")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to add points")
		}
		return
	}

	h.leaderboard.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"points": req.Points})
}

// CompleteChallenge forces a challenge to its target. Unknown challenge ids
// are accepted and ignored.
// POST /api/v1/profiles/:id/challenges/:challengeId/complete.
func (h *Handler) CompleteChallenge(c *gin.Context) {
	userID := c.Param("id")
	challengeID := c.Param("challengeId")

	if err := h.progression.CompleteChallenge(userID, challengeID); err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			h.errorResponse(c, http.StatusNotFound, "profile not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Str("challenge_id", challengeID).Msg("Failed to complete challenge")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to complete challenge")
		return
	}

	c.JSON(http.StatusOK, gin.H{"challenge_id": challengeID})
}

// GetUserBadges lists a racer's unlocked badges.
// GET /api/v1/profiles/:id/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userID := c.Param("id")

	unlocked, err := h.badges.ListUserBadges(userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user badges")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve badges")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"badges":  unlocked,
		"count":   len(unlocked),
	})
}

// GetLeaderboard returns the point standings.
// GET /api/v1/leaderboard?limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, 0)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboard.GetStandings(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetUserRank returns one racer's standing.
// GET /api/v1/leaderboard/:id.
func (h *Handler) GetUserRank(c *gin.Context) {
	userID := c.Param("id")

	entry, err := h.leaderboard.GetUserRank(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user rank")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve rank")
		return
	}
	if entry == nil {
		h.errorResponse(c, http.StatusNotFound, "user not ranked")
		return
	}

	c.JSON(http.StatusOK, entry)
}

// GetVehicles returns the static vehicle catalog.
// GET /api/v1/vehicles.
func (h *Handler) GetVehicles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"vehicles": h.catalog.Vehicles})
}

// GetChallenges returns the static challenge catalog.
// GET /api/v1/challenges.
func (h *Handler) GetChallenges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"challenges": h.catalog.Challenges})
}

func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, errors.New("invalid limit parameter: " + limitStr)
	}
	if limit < 1 {
		return 0, errors.New("limit must be greater than 0")
	}
	if limit > 1000 {
		return 0, errors.New("limit cannot exceed 1000")
	}

	return limit, nil
}

func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
