package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/genstudio/server/internal/artifact"
	"github.com/genstudio/server/internal/auth"
	"github.com/genstudio/server/internal/billing"
	"github.com/genstudio/server/internal/comfy"
	"github.com/genstudio/server/internal/config"
	"github.com/genstudio/server/internal/handler"
	"github.com/genstudio/server/internal/mail"
	"github.com/genstudio/server/internal/middleware"
	"github.com/genstudio/server/internal/service"
	"github.com/genstudio/server/internal/store"
	"github.com/genstudio/server/internal/workflow"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	// ── Configuration ──
	cfg := config.Load()

	// ── Redis ──
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	// ── SQL Store ──
	dbDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
	st, err := store.NewStore(dbDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init store")
	}
	log.Info().
		Str("host", cfg.DBHost).
		Str("db", cfg.DBName).
		Msg("database initialised")

	// ── Engine Client ──
	engine := comfy.NewClient(cfg.ComfyAddr)

	// ── Workflow Templates ──
	templates := workflow.NewStore(cfg.TemplateDir)

	// ── Artifact Pipeline ──
	resolver := artifact.NewResolver(engine, cfg.ComfyOutputDir)
	relocator := artifact.NewRelocator(cfg.OutputDir)
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.OutputDir).Msg("failed to create output dir")
	}

	// ── User, Billing & Mail Services ──
	mailer := mail.New(cfg)
	userSvc := auth.NewUserService(st.DB(), mailer, cfg.JWTSecret, cfg.BaseURL)
	billingSvc := billing.NewCreditService(st.DB(), cfg.DailyFreeLimit)

	// ── Generation Orchestrator ──
	generator := service.NewGenerator(templates, engine, resolver, relocator, st, billingSvc, cfg)
	uploads := service.NewPendingUploads(rdb, cfg.PendingUploadTTL)

	// ── Gin Router ──
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.Logger())

	h := handler.New(cfg, generator, uploads, st, billingSvc, userSvc, engine, rdb)
	h.RegisterRoutes(r)

	// ── HTTP Server with graceful shutdown ──
	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	rdb.Close()
	log.Info().Msg("server exited cleanly")
}
