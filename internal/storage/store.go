package storage

import (
	"context"
	"errors"

	"github.com/afroash/serverroom-monitor/internal/models"
)

var (
	// ErrDuplicateDate is returned when a backend that keeps one record per
	// date already holds a record for that date.
	ErrDuplicateDate = errors.New("a record already exists for this date")
	// ErrDuplicateID is returned when a record with the same id is already stored
	ErrDuplicateID = errors.New("a record with this id already exists")
	// ErrNotFound is returned when no record has the requested id
	ErrNotFound = errors.New("record not found")
	// ErrBackendUnavailable marks a backend that failed to open or serve a call
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)

// Backend defines the record persistence contract.
//
// List and ListByMonth return records newest first by (date, time); ties
// resolve with the most recently inserted record first.
type Backend interface {
	// Name identifies the backend in logs and status output
	Name() string

	// Insert stores a record whose ID is already assigned
	Insert(ctx context.Context, record *models.MonitoringRecord) error

	// InsertBatch stores all records in one transaction, or none of them
	InsertBatch(ctx context.Context, records []*models.MonitoringRecord) error

	// Get returns the record with the given id or ErrNotFound
	Get(ctx context.Context, id string) (*models.MonitoringRecord, error)

	// List returns all records
	List(ctx context.Context) ([]*models.MonitoringRecord, error)

	// ListByMonth returns the records whose date starts with monthYear
	ListByMonth(ctx context.Context, monthYear string) ([]*models.MonitoringRecord, error)

	// Update replaces a stored record or returns ErrNotFound
	Update(ctx context.Context, record *models.MonitoringRecord) error

	// Delete removes a record and reports whether it existed
	Delete(ctx context.Context, id string) (bool, error)

	// Close releases backend resources
	Close() error
}

// AggregateStore is implemented by backends that persist monthly aggregates
type AggregateStore interface {
	PutAggregate(ctx context.Context, agg *models.MonthlyAggregate) error

	// GetAggregate returns nil, nil when the month has no aggregate
	GetAggregate(ctx context.Context, monthYear string) (*models.MonthlyAggregate, error)

	DeleteAggregate(ctx context.Context, monthYear string) error

	// ListAggregates returns aggregates newest month first
	ListAggregates(ctx context.Context) ([]*models.MonthlyAggregate, error)
}

// IsDomainError reports whether err is an expected outcome of a call rather
// than a backend failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrDuplicateDate) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrNotFound) ||
		models.IsValidation(err)
}
