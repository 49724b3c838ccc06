package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/afroash/serverroom-monitor/internal/models"
	"github.com/afroash/serverroom-monitor/internal/sensor"
	"github.com/afroash/serverroom-monitor/internal/storage"
)

// captureOptions holds the fields the sensor cannot measure
type captureOptions struct {
	ACStatus         string
	UPSStatus        string
	FireExtinguisher string
	RackCount        int
	ActiveServers    int
	PowerUsage       float64
	Notes            string
}

func (o captureOptions) validate() error {
	if !models.ACStatus(o.ACStatus).IsValid() {
		return fmt.Errorf("unknown AC status %q", o.ACStatus)
	}
	if !models.UPSStatus(o.UPSStatus).IsValid() {
		return fmt.Errorf("unknown UPS status %q", o.UPSStatus)
	}
	if !models.FireExtinguisherStatus(o.FireExtinguisher).IsValid() {
		return fmt.Errorf("unknown fire extinguisher status %q", o.FireExtinguisher)
	}
	return nil
}

// recordInserter is the part of the repository capture needs
type recordInserter interface {
	Insert(ctx context.Context, record *models.MonitoringRecord) (*models.MonitoringRecord, error)
}

// capture reads the sensor once and stores today's record. A record that
// already exists for today is not an error: capture returns nil, nil.
func capture(ctx context.Context, records recordInserter, sampler *sensor.Sampler, opts captureOptions, now time.Time) (*models.MonitoringRecord, error) {
	if _, err := sampler.ReadOnce(); err != nil {
		return nil, fmt.Errorf("failed to read sensor: %w", err)
	}

	record := sampler.Draft(now)
	record.ACStatus = models.ACStatus(opts.ACStatus)
	record.UPSStatus = models.UPSStatus(opts.UPSStatus)
	record.FireExtinguisher = models.FireExtinguisherStatus(opts.FireExtinguisher)
	record.RackCount = opts.RackCount
	record.ActiveServers = opts.ActiveServers
	record.PowerUsage = opts.PowerUsage
	record.Notes = opts.Notes

	stored, err := records.Insert(ctx, record)
	if errors.Is(err, storage.ErrDuplicateDate) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store record: %w", err)
	}
	return stored, nil
}
