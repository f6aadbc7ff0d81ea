package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"debatechat/backend/internal/api/handler"
	"debatechat/backend/internal/api/middleware"
	"debatechat/backend/internal/chathub"
	"debatechat/backend/internal/config"
	"debatechat/backend/internal/moderation"
	"debatechat/backend/internal/rephrasing"
	"debatechat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	return logger
}

func setupDependencies(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres pool unavailable")
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}

	if err := storage.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	logger.Info().Msg("database and redis connections established, migrations complete")
	return db, rdb
}

func newCompleter(cfg config.RephrasingConfig, logger zerolog.Logger) rephrasing.Completer {
	if cfg.Provider == "mock" {
		logger.Warn().Dur("latency", cfg.MockLatency).Float64("failure_rate", cfg.MockFailureRate).Msg("using mock rephrasing provider")
		return rephrasing.NewMockCompleter(cfg.MockLatency, cfg.MockFailureRate)
	}
	return rephrasing.NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.TopP, cfg.Timeout)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	logger.Info().Str("env", cfg.Environment).Msg("starting debatechat backend")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, rdb := setupDependencies(ctx, cfg, logger)
	defer rdb.Close()
	s := storage.NewStorageService(db, rdb, logger)

	templates, err := rephrasing.NewTemplates(cfg.Rephrasing.TemplatesDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Rephrasing.TemplatesDir).Msg("failed to load prompt templates")
	}
	requester := rephrasing.NewRequester(newCompleter(cfg.Rephrasing, logger), templates, cfg.Rephrasing, logger)

	hub := chathub.NewManagerService(s, logger)
	matcher := chathub.NewMatcherService(s, cfg.Matching.WaitingRoomTimeout, logger)
	coordinator := chathub.NewCoordinator(s, hub, matcher, requester, cfg.Chat, cfg.Survey, logger)
	sweeper := chathub.NewSweeper(coordinator, cfg.Matching.SweepInterval, logger)

	go hub.Run(ctx)
	hub.StartPubSubListener(ctx, s)
	go sweeper.Run(ctx)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(logger), middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handler.NewHandler(s, hub, coordinator, moderation.NewService(s, logger), cfg.Auth, cfg.Survey, logger)
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	// Stops the sweeper and the pubsub listener, and closes every websocket.
	stop()

	logger.Info().Msg("server stopped")
}
