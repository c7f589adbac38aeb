package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"farm-analytics/internal/config"
	"farm-analytics/internal/controller"
	"farm-analytics/internal/gemini"
	"farm-analytics/internal/middleware"
	"farm-analytics/internal/repository"
	"farm-analytics/internal/service"
	"farm-analytics/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting farm-analytics",
		"environment", cfg.App.Environment,
		"port", cfg.HTTP.Port,
	)

	farmerStore := store.NewMemoryStore()

	// Optional Postgres mirror: histories survive restarts when a
	// database is configured, but the in-memory store stays the source
	// of truth for analytics.
	var sink service.HistorySink
	if cfg.Database.URL != "" {
		db, err := repository.Connect(cfg.Database.URL, cfg.Database.AutoMigrate, logger)
		if err != nil {
			logger.Error("database unavailable, continuing without persistence", "error", err.Error())
		} else {
			repo := repository.NewHistoryRepository(db, logger)
			sink = repo
			warmStart(farmerStore, repo, logger)
		}
	}

	var generative service.Generator
	if cfg.Gemini.APIKey != "" {
		client := gemini.NewClient(cfg.Gemini, logger)
		generative = service.NewGenerativeGenerator(client, cfg.Gemini.Timeout, logger)
		logger.Info("generative variant enabled", "model", cfg.Gemini.Model)
	} else {
		logger.Warn("no gemini api key configured, running deterministic-only")
	}

	validator := service.NewRecordValidator(service.ValidatorOptions{
		RejectOversold: cfg.Analytics.RejectOversold,
	})
	analyticsService := service.NewAnalyticsService(
		farmerStore,
		validator,
		generative,
		sink,
		service.Options{
			PreferGenerative: cfg.Analytics.PreferredSource != "deterministic",
			DefaultWeeks:     cfg.Analytics.DefaultWeeks,
		},
		logger,
	)

	if cfg.Database.SeedDemo {
		if err := repository.SeedDemoData(context.Background(), analyticsService, logger); err != nil {
			logger.Error("demo seed failed", "error", err.Error())
		}
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.StructuredLoggingMiddleware(logger))
	router.GET("/api/metrics", middleware.MetricsHandler)

	analyticsController := controller.NewAnalyticsController(analyticsService, logger)
	analyticsController.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()
	logger.Info("server listening", "addr", srv.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err.Error())
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// warmStart reloads mirrored histories into the in-memory store.
func warmStart(farmerStore store.FarmerStore, repo *repository.HistoryRepository, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	histories, err := repo.LoadAll(ctx)
	if err != nil {
		logger.Error("failed to reload mirrored histories", "error", err.Error())
		return
	}
	for farmerID, history := range histories {
		if err := farmerStore.Upsert(farmerID, history.FarmerName, history.Records, history.Metadata); err != nil {
			logger.Error("failed to restore history", "farmer_id", farmerID, "error", err.Error())
		}
	}
	logger.Info("restored mirrored histories", "farmers", len(histories))
}
