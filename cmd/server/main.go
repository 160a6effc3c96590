package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	echoapi "go.homestash.io/api/api/echo"
	redisstore "go.homestash.io/api/cache/redis"
	"go.homestash.io/api/config"
	"go.homestash.io/api/internal/clerk"
	"go.homestash.io/api/internal/identity"
	"go.homestash.io/api/log"
	"go.homestash.io/api/middleware"
	"go.homestash.io/api/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	logger := log.NewZerologAdapter(logLevel, cfg.LogPretty)
	ctx := context.Background()
	if parseErr != nil {
		logger.Warn(ctx, "invalid LOG_LEVEL configured, defaulting to info", map[string]interface{}{
			"configured_log_level": cfg.LogLevel,
		})
	}
	logger.Info(ctx, "starting homestash api server")

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal(ctx, "failed to connect to postgres", err)
	}
	defer db.Close()

	userStore := postgres.NewUserStore(db)
	if err := userStore.EnsureSchema(ctx); err != nil {
		logger.Fatal(ctx, "failed to ensure database schema", err)
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal(ctx, "failed to connect to redis", err)
	}
	defer redisClient.Close()

	verifier, err := clerk.NewWebhookVerifier(cfg.ClerkWebhookSecret)
	if err != nil {
		logger.Fatal(ctx, "invalid webhook signing secret", err)
	}

	idp := clerk.NewClient(cfg.ClerkAPIURL, cfg.ClerkSecretKey)
	engine := identity.NewUpsertEngine(userStore, logger.With(map[string]interface{}{"component": "upsert_engine"}))
	syncer := identity.NewSyncer(userStore, idp, engine, logger.With(map[string]interface{}{"component": "request_sync"}))
	webhookSyncer := identity.NewWebhookSyncer(userStore, engine, logger.With(map[string]interface{}{"component": "webhook_sync"}))

	reservations := redisstore.NewIdempotencyStore(redisClient, "homestash")
	authn := middleware.NewAuthenticator([]byte(cfg.SessionSigningKey), syncer, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	echoapi.NewAPI(authn).RegisterRoutes(e)
	echoapi.NewWebhookAPI(
		verifier,
		reservations,
		webhookSyncer,
		time.Duration(cfg.WebhookDedupTTLHours)*time.Hour,
		logger.With(map[string]interface{}{"component": "webhook_api"}),
	).RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil {
			logger.Info(ctx, "http server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	logger.Info(ctx, "http server listening", map[string]interface{}{"port": cfg.HTTPPort})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "graceful shutdown failed", err)
	}
}
