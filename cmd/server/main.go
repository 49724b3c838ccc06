package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afroash/serverroom-monitor/internal/app"
	"github.com/afroash/serverroom-monitor/internal/config"
	"github.com/afroash/serverroom-monitor/internal/repository"
	"github.com/afroash/serverroom-monitor/internal/sensor"
	"github.com/afroash/serverroom-monitor/internal/server"
)

const version = "v0.3.0"

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := cfg.Logging.NewLogger(os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Strs("backends", cfg.Storage.Backends).
		Msg("Starting Server Room Monitor")
	logger.Debug().Str("config", cfg.String()).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(logger, server.DefaultRecentEvents, cfg.Server.AllowedOrigins...)

	repo, err := app.OpenRepository(ctx, cfg.Storage, logger, repository.WithNotifier(hub))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}

	if cfg.Storage.SeedSampleData {
		n, err := repo.SeedSampleData(ctx, time.Now())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to seed sample data")
		} else if n > 0 {
			logger.Info().Int("records", n).Msg("Sample data seeded")
		}
	}

	retentionCleaner := repository.NewRetentionCleaner(repo, repository.RetentionCleanerConfig{
		RetentionDays: cfg.Storage.RetentionDays,
		CleanupPeriod: cfg.Storage.CleanupPeriod,
	}, logger)

	// Optional DHT11 sampler pre-fills the entry form
	var drafts server.DraftSource
	var sampler *sensor.Sampler
	if cfg.Sensor.Enabled {
		reader, err := sensor.NewDHT11Reader(cfg.Sensor.GPIOPin, cfg.Sensor.MaxRetries)
		if err != nil {
			logger.Warn().Err(err).Int("gpio_pin", cfg.Sensor.GPIOPin).Msg("Sensor unavailable, entry form will not be pre-filled")
		} else {
			sampler = sensor.NewSampler(reader, cfg.Sensor.Interval, logger)
			drafts = sampler
			go func() {
				if err := sampler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("Sampler stopped")
				}
			}()
			logger.Info().Int("gpio_pin", cfg.Sensor.GPIOPin).Dur("interval", cfg.Sensor.Interval).Msg("Sensor sampler started")
		}
	}

	api := server.New(repo, hub, drafts, server.Options{
		Version:        version,
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StaticDir:      cfg.Server.StaticDir,
		DefaultPeriod:  cfg.Dashboard.DefaultPeriod,
		PageSize:       cfg.Dashboard.PageSize,
	}, logger)

	if cfg.Server.AuthToken == "" {
		logger.Warn().Msg("No auth token configured, record changes are not protected")
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
	hub.Close()

	if retentionCleaner != nil {
		retentionCleaner.Stop()
		logger.Info().Msg("RetentionCleaner stopped")
	}
	if sampler != nil {
		if err := sampler.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release sensor")
		}
	}
	if err := repo.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close storage")
	}

	logger.Info().Msg("Server stopped")
}
