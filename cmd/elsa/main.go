package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"elsa/internal/aggregate"
	"elsa/internal/backend"
	"elsa/internal/cache"
	"elsa/internal/config"
	"elsa/internal/export"
	apphttp "elsa/internal/http"
	applog "elsa/internal/log"
	"elsa/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logConfig := applog.DefaultConfig()
	logConfig.Level = applog.ParseLevel(cfg.LogLevel)
	logger := applog.New(logConfig)
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	factory := backend.NewFactory(logger)
	be, err := factory.CreateBackend(ctx, backendConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	archive, err := factory.CreateSink(ctx, backendConfig)
	if err != nil {
		return err
	}

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	hub := services.NewHub(hubCtx, be.Store, be.Broker, services.HubConfig{
		MaxSessions: cfg.SessionCacheSize,
		SessionTTL:  cfg.SessionTTL,
		Colors:      aggregate.ColorsByName(cfg.ChartColors),
	}, logger)
	defer hub.Close()

	cacheManager := cache.NewManager(logger)
	cacheManager.Register(hub.Cache())
	cacheManager.StartCleanup(cfg.CleanupInterval)
	defer cacheManager.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Hub:     hub,
		Exports: services.NewExportService(be.Store, logger, export.WithLegacyCSV(cfg.ExportLegacyCSV)),
		Records: services.NewRecordService(be.Store, logger),
		Archive: archive,
	}, logger, apphttp.DefaultOptions())

	// Configure server timeouts and limits. WriteTimeout stays unset so
	// chart sockets are not cut off.
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting elsa server",
			"port", cfg.Port,
			"notify_backend", cfg.NotifyBackend,
			"export_dest", cfg.ExportDest)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		return nil
	})
	return g.Wait()
}
