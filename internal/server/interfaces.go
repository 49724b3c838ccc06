package server

import (
	"context"
	"time"

	"github.com/afroash/serverroom-monitor/internal/models"
	"github.com/afroash/serverroom-monitor/internal/repository"
)

// RecordService defines the record operations the HTTP API needs.
// repository.Repository implements this interface.
type RecordService interface {
	// Insert validates and stores one record, assigning an ID when absent
	Insert(ctx context.Context, record *models.MonitoringRecord) (*models.MonitoringRecord, error)

	// BulkInsert stores all records or none
	BulkInsert(ctx context.Context, records []*models.MonitoringRecord) ([]*models.MonitoringRecord, error)

	// Get returns one record by ID
	Get(ctx context.Context, id string) (*models.MonitoringRecord, error)

	// List returns every record newest first
	List(ctx context.Context) ([]*models.MonitoringRecord, error)

	// QueryByMonth returns the records of one YYYY-MM month newest first
	QueryByMonth(ctx context.Context, monthYear string) ([]*models.MonitoringRecord, error)

	// Update merges a partial update into a stored record
	Update(ctx context.Context, id string, patch *models.RecordPatch) (*models.MonitoringRecord, error)

	// Delete removes a record; false means no record had that ID
	Delete(ctx context.Context, id string) (bool, error)

	// Aggregate returns one month's aggregate, nil when the month is empty
	Aggregate(ctx context.Context, monthYear string) (*models.MonthlyAggregate, error)

	// Aggregates returns every month's aggregate newest first
	Aggregates(ctx context.Context) ([]*models.MonthlyAggregate, error)

	// Stats describes the storage session
	Stats(ctx context.Context) (repository.Stats, error)
}

// DraftSource pre-fills the entry form
// sensor.Sampler implements this interface
type DraftSource interface {
	Draft(now time.Time) *models.MonitoringRecord
}

var _ RecordService = (*repository.Repository)(nil)
