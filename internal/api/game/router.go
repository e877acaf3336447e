package game

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ecorace/ecorace-backend/internal/repository"
)

// NewRouter builds the gin engine with all game routes and the health check.
// The Prometheus exporter listens on its own port, wired in cmd/server.
func NewRouter(h *Handler, db *repository.DB, cache *repository.RedisCache) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/profiles", h.CreateProfile)
		v1.GET("/profiles/:id", h.GetProfile)
		v1.PUT("/profiles/:id/vehicle", h.SelectVehicle)
		v1.POST("/profiles/:id/commutes", h.LogCommute)
		v1.POST("/profiles/:id/points", h.AddPoints)
		v1.POST("/profiles/:id/challenges/:challengeId/complete", h.CompleteChallenge)
		v1.GET("/profiles/:id/badges", h.GetUserBadges)

		v1.GET("/leaderboard", h.GetLeaderboard)
		v1.GET("/leaderboard/:id", h.GetUserRank)

		v1.GET("/vehicles", h.GetVehicles)
		v1.GET("/challenges", h.GetChallenges)
	}

	r.GET("/healthz", func(c *gin.Context) {
		dbStatus := "ok"
		cacheStatus := "ok"

		if db != nil {
			if err := db.Health(); err != nil {
				dbStatus = "error"
			}
		} else {
			dbStatus = "not configured"
		}
		if cache == nil {
			cacheStatus = "not configured"
		}

		status := "ok"
		if dbStatus == "error" {
			status = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"status": status,
			"checks": gin.H{
				"database": dbStatus,
				"cache":    cacheStatus,
			},
		})
	})

	return r
}
