// Sommelier - session-scoped drink recommendation feed server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/sommelier/internal/api"
	"github.com/ashureev/sommelier/internal/config"
	"github.com/ashureev/sommelier/internal/export"
	"github.com/ashureev/sommelier/internal/feed"
	"github.com/ashureev/sommelier/internal/identity"
	"github.com/ashureev/sommelier/internal/middleware"
	"github.com/ashureev/sommelier/internal/retention"
	"github.com/ashureev/sommelier/internal/shared"
	"github.com/ashureev/sommelier/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DBDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	db, err := store.Open(ctx, store.Options{
		Driver:      store.Driver(cfg.DBDriver),
		SQLitePath:  cfg.DBPath,
		PostgresDSN: cfg.DatabaseURL,
		Retry: shared.RetryPolicy{
			MaxRetries: cfg.DBMaxRetries,
			BaseDelay:  cfg.DBRetryBaseDelay,
		},
	})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	slog.Info("Database connected")

	repo := store.WithBreaker(db, store.BreakerSettings{
		Name:             "store",
		FailureThreshold: uint32(cfg.BreakerThreshold),
		OpenTimeout:      cfg.BreakerOpenTimeout,
	})

	feedCfg := feed.DefaultConfig()
	feedCfg.DefaultPageSize = cfg.FeedDefaultPageSize
	feedCfg.MaxPageSize = cfg.FeedMaxPageSize

	var engineOpts []feed.Option
	if cfg.Export.Enabled() {
		exporter, err := export.New(ctx, cfg.Export)
		if err != nil {
			slog.Error("Failed to initialize cart export", "error", err)
			os.Exit(1)
		}
		engineOpts = append(engineOpts, feed.WithExporter(exporter))
		slog.Info("Cart export enabled", "bucket", cfg.Export.Bucket, "prefix", cfg.Export.Prefix)
	}

	engine, err := feed.NewEngine(repo, feedCfg, engineOpts...)
	if err != nil {
		slog.Error("Failed to initialize feed engine", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	handler := api.NewHandler(engine)
	healthHandler := api.NewHealthHandler(repo, 5*time.Second)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		handler.RegisterRoutes(r)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start retention worker.
	retentionDone := retention.StartWorker(ctx, repo, cfg.SessionRetention, cfg.RetentionSweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	<-retentionDone

	slog.Info("Server stopped successfully")
}
