package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tcche/orderbump/internal/config"
	"github.com/tcche/orderbump/internal/database"
	"github.com/tcche/orderbump/internal/httpserver"
	"github.com/tcche/orderbump/internal/metrics"
	"github.com/tcche/orderbump/internal/middleware"
	"github.com/tcche/orderbump/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting orderbumpd",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("analytics_driver", cfg.Analytics.Driver),
	)

	ctx := context.Background()

	// Connect to PostgreSQL; degrade to in-memory storage when absent.
	db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
	}

	// Connect to Redis; degrade to in-memory carts/nonces when absent.
	rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis not available, carts and dedup cache are in-memory", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	// Analytics backend. The clickhouse driver replaces the Postgres event
	// store; a failed connection falls back to whatever DB provides.
	var analytics storage.AnalyticsStore
	if cfg.Analytics.Driver == "clickhouse" {
		ch, err := storage.NewClickHouseAnalyticsStore(ctx, storage.ClickHouseOptions{
			Addr:     cfg.Analytics.ClickHouseAddr,
			Database: cfg.Analytics.ClickHouseDatabase,
			User:     cfg.Analytics.ClickHouseUser,
			Password: cfg.Analytics.ClickHousePassword,
		})
		if err != nil {
			logger.Warn("ClickHouse not available, falling back to default event store", zap.Error(err))
		} else {
			defer ch.Close()
			analytics = ch
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics("orderbump")
	}

	handler := httpserver.NewServer(&httpserver.Dependencies{
		DB:        db,
		Redis:     rdb,
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Analytics: analytics,
	})

	// Middleware chain, outermost first: recovery, logging, rate limit, auth.
	rateLimit := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimit.SetMetrics(m)
	handler = middleware.NewAuthMiddleware(cfg.Auth, logger).Handler(handler)
	handler = rateLimit.Handler(handler)
	handler = middleware.NewLoggingMiddleware(logger, m).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(logger).Handler(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	return logger
}
