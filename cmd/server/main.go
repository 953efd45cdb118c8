// Package main is the entrypoint for the job tracking API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kiranshivaraju/jobtrack/internal/api"
	"github.com/kiranshivaraju/jobtrack/internal/api/handler"
	mw "github.com/kiranshivaraju/jobtrack/internal/api/middleware"
	"github.com/kiranshivaraju/jobtrack/internal/appspec"
	"github.com/kiranshivaraju/jobtrack/internal/binding"
	"github.com/kiranshivaraju/jobtrack/internal/cache"
	"github.com/kiranshivaraju/jobtrack/internal/config"
	"github.com/kiranshivaraju/jobtrack/internal/events"
	"github.com/kiranshivaraju/jobtrack/internal/execsvc"
	"github.com/kiranshivaraju/jobtrack/internal/observability"
	"github.com/kiranshivaraju/jobtrack/internal/store"
	"github.com/kiranshivaraju/jobtrack/internal/tracker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "execsvc", cfg.ExecService.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		publisher = nc
		slog.Info("nats connected", "url", cfg.NATS.URL)
	}
	defer publisher.Close()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	specs, err := appspec.LoadDir(cfg.AppSpecs.Dir)
	if err != nil {
		return fmt.Errorf("load app specs: %w", err)
	}
	slog.Info("app specs loaded", "dir", cfg.AppSpecs.Dir, "count", specs.Len())

	client := execsvc.NewHTTPClient(cfg.ExecService.BaseURL, cfg.ExecService.Token, cfg.ExecService.Timeout, metrics)
	pgStore := store.NewPostgresStore(pool)

	trk := tracker.New(tracker.Deps{
		Client:    client,
		Store:     pgStore,
		Cache:     redisCache,
		Events:    publisher,
		Specs:     specs,
		Vars:      systemVars(cfg.SystemVars),
		Metrics:   metrics,
		StatusTTL: cfg.Redis.StatusTTL,
	})

	deps := routes(handler.NewJobs(trk))
	deps.RateLimit = mw.NewRateLimit(redisCache, cfg.Server.RateLimit)
	deps.Metrics = metrics
	deps.MetricsHandler = metricsHandler
	deps.HealthHandler = handler.Health(
		handler.Check{Name: "database", Ping: pgStore.Ping},
		handler.Check{Name: "cache", Ping: redisCache.Ping},
		handler.Check{Name: "execution_service", Ping: client.Ready},
	)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ExecService.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully", "jobs_tracked", trk.Tracked())
	return nil
}

// routes binds every job endpoint to h.
func routes(h *handler.Jobs) api.Dependencies {
	return api.Dependencies{
		ListJobs:    h.List,
		RegisterJob: h.Register,
		AdoptJob:    h.Adopt,
		BatchStatus: h.BatchStatus,
		JobInfo:     h.Info,
		JobStatus:   h.Status,
		JobLog:      h.Log,
		JobOutput:   h.Output,
		JobParams:   h.Params,
		CancelJob:   h.Cancel,
	}
}

// systemVars exposes the configured session variables to output bindings.
func systemVars(vars map[string]string) binding.LookupFunc {
	v := make(binding.Vars, len(vars))
	for k, val := range vars {
		v[k] = val
	}
	return v.Lookup
}
