package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afroash/serverroom-monitor/internal/app"
	"github.com/afroash/serverroom-monitor/internal/config"
	"github.com/afroash/serverroom-monitor/internal/models"
	"github.com/afroash/serverroom-monitor/internal/sensor"
)

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	ac := flag.String("ac", "normal", "AC status: normal, maintenance, broken")
	ups := flag.String("ups", "normal", "UPS status: normal, low_battery, maintenance, broken")
	fire := flag.String("fire", "ready", "fire extinguisher status: ready, expired, needs_maintenance")
	racks := flag.Int("racks", 0, "number of racks")
	servers := flag.Int("servers", 0, "number of active servers")
	power := flag.Float64("power", 0, "power usage in kW")
	notes := flag.String("notes", "", "free-text notes")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := cfg.Logging.NewLogger(os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	opts := captureOptions{
		ACStatus:         *ac,
		UPSStatus:        *ups,
		FireExtinguisher: *fire,
		RackCount:        *racks,
		ActiveServers:    *servers,
		PowerUsage:       *power,
		Notes:            *notes,
	}
	if err := opts.validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid flags")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader, err := sensor.NewDHT11Reader(cfg.Sensor.GPIOPin, cfg.Sensor.MaxRetries)
	if err != nil {
		logger.Fatal().Err(err).Int("gpio_pin", cfg.Sensor.GPIOPin).Msg("Failed to open sensor")
	}
	defer reader.Close()

	repo, err := app.OpenRepository(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repo.Close()

	record, err := capture(ctx, repo, sensor.NewSampler(reader, time.Minute, logger), opts, time.Now())
	if err != nil {
		logger.Fatal().Err(err).Msg("Capture failed")
	}
	if record == nil {
		logger.Info().Str("date", time.Now().Format(models.DateLayout)).Msg("Today is already recorded, nothing to do")
		return
	}

	logger.Info().
		Str("id", record.ID).
		Str("backend", repo.Backend()).
		Float64("temperature", record.Temperature).
		Float64("humidity", record.Humidity).
		Msg("Reading recorded")
}
