package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/titlepulse/titlepulse-api/internal/config"
	"github.com/titlepulse/titlepulse-api/internal/domain/account"
	"github.com/titlepulse/titlepulse-api/internal/domain/campaign"
	"github.com/titlepulse/titlepulse-api/internal/domain/lock"
	"github.com/titlepulse/titlepulse-api/internal/domain/quota"
	"github.com/titlepulse/titlepulse-api/internal/domain/rotation"
	"github.com/titlepulse/titlepulse-api/internal/domain/video"
	"github.com/titlepulse/titlepulse-api/internal/middleware"
	"github.com/titlepulse/titlepulse-api/internal/pkg/database"
	"github.com/titlepulse/titlepulse-api/internal/pkg/logger"
	"github.com/titlepulse/titlepulse-api/internal/pkg/metrics"
	"github.com/titlepulse/titlepulse-api/internal/pkg/tokencipher"
	"github.com/titlepulse/titlepulse-api/internal/pkg/youtube"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting TitlePulse API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	cipher, err := tokencipher.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token cipher")
	}

	m := metrics.New()

	// ---------- Repositories ----------
	accountRepo := account.NewRepository(db)
	campaignRepo := campaign.NewRepository(db)
	rotationRepo := rotation.NewRepository(db)
	quotaRepo := quota.NewRepository(db)

	// ---------- Services ----------
	quotaService := quota.NewService(quota.NewRedisCache(redis), quotaRepo, quota.Config{
		DailyQuota:              int64(cfg.DailyQuota),
		WarningThreshold:        int64(cfg.QuotaWarningThreshold),
		CircuitBreakerThreshold: int64(cfg.CircuitBreakerThreshold),
	})

	lockService := lock.NewService(lock.NewRedisStore(redis), lock.Config{
		TTL:        cfg.LockTTL,
		MaxRetries: cfg.LockMaxRetries,
		RetryDelay: cfg.LockRetryDelay,
	})

	ytClient := youtube.NewClient(youtube.Config{
		APIBaseURL:   cfg.YouTubeAPIBaseURL,
		TokenURL:     cfg.YouTubeTokenURL,
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
	}, cipher, accountRepo, quotaService, m)

	campaignService := campaign.NewService(campaignRepo, accountRepo, ytClient, rotationRepo, campaign.Config{
		MaxActiveCampaigns:    cfg.MaxActiveCampaigns,
		MaxTitleChangesPerDay: cfg.MaxTitleChangesPerDay,
	})

	finalizer := rotation.NewFinalizer(rotationRepo, campaignRepo, ytClient)
	engine := rotation.NewEngine(campaignRepo, rotationRepo, lockService, quotaService, ytClient, accountRepo, finalizer, m)

	// ---------- Handlers ----------
	campaignHandler := campaign.NewHandler(campaignService)
	rotationHandler := rotation.NewHandler(engine, rotationRepo, campaignService)
	quotaHandler := quota.NewHandler(quotaService)
	videoHandler := video.NewHandler(ytClient)

	cronAuth := middleware.CronAuth(cfg.CronSecret)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Identity)
			r.Mount("/campaigns", campaignHandler.Routes())
			r.Get("/campaigns/{id}/rotations", rotationHandler.History)
			r.Mount("/videos", videoHandler.Routes())
		})

		r.Mount("/quota", quotaHandler.Routes(cronAuth))

		r.Group(func(r chi.Router) {
			r.Use(cronAuth)
			r.Post("/cron/rotate", rotationHandler.Rotate)
		})
	})

	// ---------- Background worker ----------
	if cfg.RotationCronEnabled {
		worker := rotation.NewWorker(engine, cfg.RotationCronSpec, cfg.RotationCycleTimeout)
		if err := worker.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start rotation worker")
		}
		defer worker.Stop()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
