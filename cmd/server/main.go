package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecorace/ecorace-backend/internal/api/game"
	"github.com/ecorace/ecorace-backend/internal/catalog"
	"github.com/ecorace/ecorace-backend/internal/config"
	"github.com/ecorace/ecorace-backend/internal/metrics"
	"github.com/ecorace/ecorace-backend/internal/notify"
	"github.com/ecorace/ecorace-backend/internal/repository"
	"github.com/ecorace/ecorace-backend/internal/service/badges"
	"github.com/ecorace/ecorace-backend/internal/service/leaderboard"
	"github.com/ecorace/ecorace-backend/internal/service/progression"
	"github.com/ecorace/ecorace-backend/internal/service/scheduler"
	"github.com/ecorace/ecorace-backend/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("info", "json", "stdout")
		logger.Get().Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.Get()

	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting EcoRace backend")

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	cat, err := catalog.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load catalog")
	}
	log.Info().
		Int("vehicles", len(cat.Vehicles)).
		Int("badges", len(cat.Badges)).
		Int("challenges", len(cat.Challenges)).
		Msg("Catalog loaded")

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}
	log.Info().Msg("Database migrations complete")

	var cache *repository.RedisCache
	if cfg.Database.Redis.Enabled {
		cache, err = repository.NewRedisCache(&cfg.Database.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer cache.Close()
	} else {
		log.Info().Msg("Redis cache disabled, leaderboard reads go straight to the database")
	}

	profileRepo := repository.NewProfileRepository(db)
	commuteRepo := repository.NewCommuteRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)

	notifier := notify.NewClient(&cfg.Notifier, log)

	progressionService := progression.NewService(cat, profileRepo, commuteRepo, badgeRepo, challengeRepo, log)
	progressionService.SetNotifier(notifier)
	badgeService := badges.NewService(cat, badgeRepo, profileRepo, commuteRepo, notifier, log)

	var lbCache repository.Cache
	if cache != nil {
		lbCache = cache
	}
	leaderboardService := leaderboard.NewService(
		profileRepo, badgeRepo, lbCache,
		cfg.Leaderboard.CacheTTLDuration(), cfg.Leaderboard.DefaultLimit, log)

	schedulerService := scheduler.NewService(cfg, cat, challengeRepo, badgeService, progressionService, log)
	if err := schedulerService.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer schedulerService.Stop()

	handler := game.NewHandler(progressionService, leaderboardService, badgeService, cat, log)
	router := game.NewRouter(handler, db, cache)

	var metricsSrv *http.Server
	if cfg.Metrics.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Prometheus.Path, metrics.Handler())
		metricsSrv = &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Metrics.Prometheus.Port),
			Handler:     mux,
			ReadTimeout: 15 * time.Second,
		}
		go func() {
			log.Info().Str("addr", metricsSrv.Addr).Str("path", cfg.Metrics.Prometheus.Path).Msg("Metrics exporter listening")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics exporter failed")
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics exporter forced to shutdown")
		}
	}

	// Let dispatched store writes settle before the DB handle closes.
	progressionService.Flush()

	log.Info().Msg("Server exited")
}
