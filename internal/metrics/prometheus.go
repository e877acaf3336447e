// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the exporter for the metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Prometheus metrics for the progression backend.
var (
	// Counters.
	CommutesLoggedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commutes_logged_total",
			Help: "Total number of commutes logged",
		},
		[]string{"mode"},
	)

	PointsAwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "points_awarded_total",
			Help: "Total points awarded across all users",
		},
	)

	LevelUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "level_ups_total",
			Help: "Total number of level-ups",
		},
	)

	ChallengesCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenges_completed_total",
			Help: "Total number of challenges completed",
		},
		[]string{"type"},
	)

	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge"},
	)

	ProfileWritesFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_writes_failed_total",
			Help: "Total number of failed asynchronous profile store writes",
		},
	)

	SchedulerJobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total scheduler job runs by job and status",
		},
		[]string{"job", "status"},
	)

	// Gauges.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Current number of loaded progression sessions",
		},
	)

	LeaderboardSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leaderboard_size",
			Help: "Number of entries in the last generated leaderboard",
		},
	)

	SchedulerLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed scheduler job",
		},
	)

	// Histograms.
	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of scheduler jobs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	CommuteDistanceKm = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commute_distance_km",
			Help:    "Distance per logged commute in kilometers",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 500m to ~256km
		},
		[]string{"mode"},
	)
)

// RecordCommuteLogged increments commute counters for a transport mode.
func RecordCommuteLogged(mode string, distanceKm float64) {
	CommutesLoggedTotal.WithLabelValues(mode).Inc()
	CommuteDistanceKm.WithLabelValues(mode).Observe(distanceKm)
}

// RecordPointsAwarded adds awarded points to the running total.
func RecordPointsAwarded(points int) {
	PointsAwardedTotal.Add(float64(points))
}

// RecordLevelUp increments the level-up counter.
func RecordLevelUp() {
	LevelUpsTotal.Inc()
}

// RecordChallengeCompleted increments the completion counter for a challenge type.
func RecordChallengeCompleted(challengeType string) {
	ChallengesCompletedTotal.WithLabelValues(challengeType).Inc()
}

// RecordBadgeAwarded increments the award counter for a badge.
func RecordBadgeAwarded(badge string) {
	BadgesAwardedTotal.WithLabelValues(badge).Inc()
}

// RecordProfileWriteFailure increments the failed-write counter.
func RecordProfileWriteFailure() {
	ProfileWritesFailedTotal.Inc()
}

// SetActiveSessions sets the loaded-session gauge.
func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
}

// SetLeaderboardSize sets the leaderboard size gauge.
func SetLeaderboardSize(n int) {
	LeaderboardSize.Set(float64(n))
}

// RecordSchedulerJobRun records a scheduler job outcome and duration.
func RecordSchedulerJobRun(job, status string, seconds float64) {
	SchedulerJobRunsTotal.WithLabelValues(job, status).Inc()
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
	SchedulerLastRun.SetToCurrentTime()
}
