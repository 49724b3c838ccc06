// Package repository owns the monitoring record set. It selects one storage
// backend per session from a ranked provider list, degrades to the last
// provider when the active backend fails, and keeps monthly aggregates in
// step with every mutation.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/aggregate"
	"github.com/afroash/serverroom-monitor/internal/models"
	"github.com/afroash/serverroom-monitor/internal/storage"
)

// Provider opens one storage backend
type Provider struct {
	Name string
	Open func(ctx context.Context) (storage.Backend, error)
}

// Notifier receives live events for every completed mutation
type Notifier interface {
	Notify(msg *models.Message)
}

// Option configures a Repository
type Option func(*Repository)

// WithNotifier sets the event sink
func WithNotifier(n Notifier) Option {
	return func(r *Repository) {
		r.notifier = n
	}
}

// WithClock overrides the clock used for aggregate timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// Stats describes the current session
type Stats struct {
	Backend        string `json:"backend"`
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degraded_reason,omitempty"`
	Records        int    `json:"records"`
	Recomputations int64  `json:"recomputations"`
	PersistentAggs bool   `json:"persistent_aggregates"`

	// Database is filled in by backends that can describe their files
	Database *storage.StorageStats `json:"database,omitempty"`
}

// storageStatter is implemented by backends that report database statistics
type storageStatter interface {
	GetStorageStats(ctx context.Context) (*storage.StorageStats, error)
}

// Repository is the record store adapter used by every caller
type Repository struct {
	logger   zerolog.Logger
	notifier Notifier
	now      func() time.Time

	// mu serializes mutations so the duplicate check, the write and the
	// aggregate recompute happen as one step
	mu sync.Mutex

	backendMu      sync.RWMutex
	active         storage.Backend
	fallback       Provider
	onFallback     bool
	degraded       bool
	degradedReason string

	recomputations atomic.Int64
}

// Open tries the providers in order and keeps the first that opens. The last
// provider is the fallback for the rest of the session.
func Open(ctx context.Context, providers []Provider, logger zerolog.Logger, opts ...Option) (*Repository, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no storage providers configured: %w", storage.ErrBackendUnavailable)
	}

	r := &Repository{
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		fallback: providers[len(providers)-1],
	}
	for _, opt := range opts {
		opt(r)
	}

	var errs []error
	for i, p := range providers {
		backend, err := p.Open(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("backend", p.Name).Msg("Storage backend failed to open, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}

		r.active = backend
		r.onFallback = i == len(providers)-1
		if i > 0 {
			r.degraded = true
			r.degradedReason = errors.Join(errs...).Error()
		}

		logger.Info().
			Str("backend", backend.Name()).
			Bool("degraded", r.degraded).
			Msg("Storage backend selected")
		return r, nil
	}

	return nil, fmt.Errorf("%w: %w", storage.ErrBackendUnavailable, errors.Join(errs...))
}

// Close releases the active backend
func (r *Repository) Close() error {
	r.backendMu.Lock()
	defer r.backendMu.Unlock()
	if r.active == nil {
		return nil
	}
	return r.active.Close()
}

// Backend returns the name of the active backend
func (r *Repository) Backend() string {
	return r.backend().Name()
}

func (r *Repository) backend() storage.Backend {
	r.backendMu.RLock()
	defer r.backendMu.RUnlock()
	return r.active
}

// run executes fn against the active backend. A failure that is not a domain
// error or a cancelled call switches the session to the fallback and runs fn
// there once.
func (r *Repository) run(ctx context.Context, op string, fn func(storage.Backend) error) error {
	b := r.backend()
	err := fn(b)
	if err == nil || storage.IsDomainError(err) {
		return err
	}
	if isCancellation(ctx, err) {
		return err
	}

	fb, switchErr := r.degrade(ctx, b, op, err)
	if switchErr != nil {
		return switchErr
	}

	err = fn(fb)
	if err == nil || storage.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%s on %s: %w: %w", op, fb.Name(), storage.ErrBackendUnavailable, err)
}

// isCancellation reports whether err came from the caller giving up rather
// than the backend failing
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// degrade swaps failed for the fallback backend
func (r *Repository) degrade(ctx context.Context, failed storage.Backend, op string, cause error) (storage.Backend, error) {
	r.backendMu.Lock()

	if r.active != failed {
		// Another caller already switched
		active := r.active
		r.backendMu.Unlock()
		return active, nil
	}
	if r.onFallback {
		r.backendMu.Unlock()
		return nil, fmt.Errorf("%s on %s: %w: %w", op, failed.Name(), storage.ErrBackendUnavailable, cause)
	}

	fb, err := r.fallback.Open(ctx)
	if err != nil {
		r.backendMu.Unlock()
		r.logger.Error().Err(err).Str("backend", r.fallback.Name).Msg("Fallback backend failed to open")
		return nil, fmt.Errorf("%s on %s: %w: %w", op, failed.Name(), storage.ErrBackendUnavailable, cause)
	}

	if closeErr := failed.Close(); closeErr != nil {
		r.logger.Debug().Err(closeErr).Str("backend", failed.Name()).Msg("Error closing failed backend")
	}

	r.active = fb
	r.onFallback = true
	r.degraded = true
	r.degradedReason = cause.Error()
	r.backendMu.Unlock()

	r.logger.Warn().
		Err(cause).
		Str("operation", op).
		Str("from", failed.Name()).
		Str("to", fb.Name()).
		Msg("Storage backend failed, continuing on fallback")

	r.emit(models.MessageTypeBackendDegraded, models.BackendDegradedMessage{
		From:   failed.Name(),
		To:     fb.Name(),
		Reason: cause.Error(),
	})
	return fb, nil
}

// Insert validates and stores a record, assigning an id when absent
func (r *Repository) Insert(ctx context.Context, record *models.MonitoringRecord) (*models.MonitoringRecord, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	stored := record.Copy()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.run(ctx, "insert", func(b storage.Backend) error {
		return b.Insert(ctx, stored)
	}); err != nil {
		return nil, err
	}

	r.logger.Debug().Str("id", stored.ID).Str("date", stored.Date).Msg("Record inserted")
	r.emit(models.MessageTypeRecordCreated, stored)
	r.recompute(ctx, stored.MonthYear())
	return stored, nil
}

// BulkInsert stores all records in one transaction and recomputes each
// affected month once
func (r *Repository) BulkInsert(ctx context.Context, records []*models.MonitoringRecord) ([]*models.MonitoringRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	batch := make([]*models.MonitoringRecord, len(records))
	for i, record := range records {
		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		batch[i] = record.Copy()
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.run(ctx, "bulk insert", func(b storage.Backend) error {
		return b.InsertBatch(ctx, batch)
	}); err != nil {
		return nil, err
	}

	months := distinctMonths(batch)
	r.logger.Info().Int("count", len(batch)).Strs("months", months).Msg("Records imported")
	r.emit(models.MessageTypeRecordsImported, models.RecordsImportedMessage{
		Count:  len(batch),
		Months: months,
	})
	r.recompute(ctx, months...)
	return batch, nil
}

// Get returns one record
func (r *Repository) Get(ctx context.Context, id string) (*models.MonitoringRecord, error) {
	var record *models.MonitoringRecord
	err := r.run(ctx, "get", func(b storage.Backend) error {
		var err error
		record, err = b.Get(ctx, id)
		return err
	})
	return record, err
}

// List returns all records newest first
func (r *Repository) List(ctx context.Context) ([]*models.MonitoringRecord, error) {
	var records []*models.MonitoringRecord
	err := r.run(ctx, "list", func(b storage.Backend) error {
		var err error
		records, err = b.List(ctx)
		return err
	})
	return records, err
}

// QueryByMonth returns the records of one YYYY-MM month newest first
func (r *Repository) QueryByMonth(ctx context.Context, monthYear string) ([]*models.MonitoringRecord, error) {
	if err := validateMonth(monthYear); err != nil {
		return nil, err
	}

	var records []*models.MonitoringRecord
	err := r.run(ctx, "query by month", func(b storage.Backend) error {
		var err error
		records, err = b.ListByMonth(ctx, monthYear)
		return err
	})
	return records, err
}

// Update merges patch into the stored record. When the date moves to
// another month both months are recomputed.
func (r *Repository) Update(ctx context.Context, id string, patch *models.RecordPatch) (*models.MonitoringRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var existing *models.MonitoringRecord
	if err := r.run(ctx, "get", func(b storage.Backend) error {
		var err error
		existing, err = b.Get(ctx, id)
		return err
	}); err != nil {
		return nil, err
	}

	updated := patch.Apply(existing)
	updated.ID = existing.ID
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if err := r.run(ctx, "update", func(b storage.Backend) error {
		return b.Update(ctx, updated)
	}); err != nil {
		return nil, err
	}

	r.logger.Debug().Str("id", id).Str("date", updated.Date).Msg("Record updated")
	r.emit(models.MessageTypeRecordUpdated, updated)

	months := []string{existing.MonthYear()}
	if updated.MonthYear() != existing.MonthYear() {
		months = append(months, updated.MonthYear())
	}
	r.recompute(ctx, months...)
	return updated, nil
}

// Delete removes a record. A missing id is a no-op and reports false.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var existing *models.MonitoringRecord
	err := r.run(ctx, "get", func(b storage.Backend) error {
		var err error
		existing, err = b.Get(ctx, id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var deleted bool
	if err := r.run(ctx, "delete", func(b storage.Backend) error {
		var err error
		deleted, err = b.Delete(ctx, id)
		return err
	}); err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	r.logger.Debug().Str("id", id).Msg("Record deleted")
	r.emit(models.MessageTypeRecordDeleted, models.RecordDeletedMessage{
		ID:        id,
		MonthYear: existing.MonthYear(),
	})
	r.recompute(ctx, existing.MonthYear())
	return true, nil
}

// PruneBefore deletes every record dated before date and returns how many
// were removed
func (r *Repository) PruneBefore(ctx context.Context, date string) (int, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return 0, models.NewValidationError("date", "must be a YYYY-MM-DD date")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var records []*models.MonitoringRecord
	if err := r.run(ctx, "list", func(b storage.Backend) error {
		var err error
		records, err = b.List(ctx)
		return err
	}); err != nil {
		return 0, err
	}

	var pruned []*models.MonitoringRecord
	for _, record := range records {
		if record.Date >= date {
			continue
		}
		var deleted bool
		if err := r.run(ctx, "delete", func(b storage.Backend) error {
			var err error
			deleted, err = b.Delete(ctx, record.ID)
			return err
		}); err != nil {
			return len(pruned), err
		}
		if deleted {
			pruned = append(pruned, record)
		}
	}

	if len(pruned) > 0 {
		months := distinctMonths(pruned)
		r.logger.Info().Int("count", len(pruned)).Str("before", date).Msg("Old records pruned")
		for _, record := range pruned {
			r.emit(models.MessageTypeRecordDeleted, models.RecordDeletedMessage{
				ID:        record.ID,
				MonthYear: record.MonthYear(),
			})
		}
		r.recompute(ctx, months...)
	}
	return len(pruned), nil
}

// Aggregate returns the full-precision aggregate for one month, or nil when
// the month has no records
func (r *Repository) Aggregate(ctx context.Context, monthYear string) (*models.MonthlyAggregate, error) {
	if err := validateMonth(monthYear); err != nil {
		return nil, err
	}

	if aggStore, ok := r.backend().(storage.AggregateStore); ok {
		agg, err := aggStore.GetAggregate(ctx, monthYear)
		if err == nil {
			return agg, nil
		}
		r.logger.Warn().Err(err).Str("month", monthYear).Msg("Stored aggregate unavailable, computing on demand")
	}

	records, err := r.QueryByMonth(ctx, monthYear)
	if err != nil {
		return nil, err
	}
	agg, _ := aggregate.Recompute(monthYear, records, r.now())
	return agg, nil
}

// Aggregates returns one aggregate per month that has records, newest first
func (r *Repository) Aggregates(ctx context.Context) ([]*models.MonthlyAggregate, error) {
	if aggStore, ok := r.backend().(storage.AggregateStore); ok {
		aggs, err := aggStore.ListAggregates(ctx)
		if err == nil {
			return aggs, nil
		}
		r.logger.Warn().Err(err).Msg("Stored aggregates unavailable, computing on demand")
	}

	records, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	aggs := make([]*models.MonthlyAggregate, 0)
	for month, group := range aggregate.GroupByMonth(records) {
		if agg, ok := aggregate.Recompute(month, group, now); ok {
			aggs = append(aggs, agg)
		}
	}
	sort.Slice(aggs, func(i, j int) bool {
		return aggs[i].MonthYear > aggs[j].MonthYear
	})
	return aggs, nil
}

// Stats reports the session state
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	records, err := r.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	r.backendMu.RLock()
	defer r.backendMu.RUnlock()

	_, persistent := r.active.(storage.AggregateStore)
	stats := Stats{
		Backend:        r.active.Name(),
		Degraded:       r.degraded,
		DegradedReason: r.degradedReason,
		Records:        len(records),
		Recomputations: r.recomputations.Load(),
		PersistentAggs: persistent,
	}
	if statter, ok := r.active.(storageStatter); ok {
		db, err := statter.GetStorageStats(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("backend", stats.Backend).Msg("Failed to read database statistics")
		} else {
			stats.Database = db
		}
	}
	return stats, nil
}

// recompute refreshes stored aggregates for the given months. The mutation
// has already succeeded, so failures are logged and not returned.
// Caller holds r.mu.
func (r *Repository) recompute(ctx context.Context, months ...string) {
	// The write already committed; finish the aggregate even if the caller left
	ctx = context.WithoutCancel(ctx)
	b := r.backend()
	aggStore, ok := b.(storage.AggregateStore)
	if !ok {
		return
	}

	for _, month := range months {
		records, err := b.ListByMonth(ctx, month)
		if err != nil {
			r.logger.Error().Err(err).Str("month", month).Msg("Failed to load records for aggregate")
			continue
		}

		r.recomputations.Add(1)
		agg, ok := aggregate.Recompute(month, records, r.now())
		if !ok {
			if err := aggStore.DeleteAggregate(ctx, month); err != nil {
				r.logger.Error().Err(err).Str("month", month).Msg("Failed to delete aggregate")
				continue
			}
			r.logger.Debug().Str("month", month).Msg("Aggregate removed")
			r.emit(models.MessageTypeAggregateRemoved, models.AggregateRemovedMessage{MonthYear: month})
			continue
		}

		if err := aggStore.PutAggregate(ctx, agg); err != nil {
			r.logger.Error().Err(err).Str("month", month).Msg("Failed to store aggregate")
			continue
		}
		r.logger.Debug().
			Str("month", month).
			Int("records", agg.RecordCount).
			Msg("Aggregate recomputed")
		r.emit(models.MessageTypeAggregateUpdated, agg.Rounded())
	}
}

func (r *Repository) emit(msgType models.MessageType, payload interface{}) {
	if r.notifier == nil {
		return
	}
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		r.logger.Error().Err(err).Str("type", string(msgType)).Msg("Failed to build event")
		return
	}
	r.notifier.Notify(msg)
}

func validateMonth(monthYear string) error {
	if _, err := time.Parse(models.MonthLayout, monthYear); err != nil {
		return models.NewValidationError("month", "must be a YYYY-MM month")
	}
	return nil
}

// distinctMonths returns the sorted set of months covered by records
func distinctMonths(records []*models.MonitoringRecord) []string {
	seen := make(map[string]bool)
	months := make([]string, 0)
	for _, record := range records {
		month := record.MonthYear()
		if !seen[month] {
			seen[month] = true
			months = append(months, month)
		}
	}
	sort.Strings(months)
	return months
}
