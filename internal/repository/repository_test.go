package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/serverroom-monitor/internal/models"
	"github.com/afroash/serverroom-monitor/internal/storage"
)

var errDisk = errors.New("disk I/O error")

// flakyBackend wraps a file store and fails every call once broken is set
type flakyBackend struct {
	*storage.FileStore
	mu     sync.Mutex
	broken bool
	calls  int
	closed bool
}

func (f *flakyBackend) Name() string { return "flaky" }

func (f *flakyBackend) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.broken {
		return errDisk
	}
	return nil
}

func (f *flakyBackend) Insert(ctx context.Context, r *models.MonitoringRecord) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.FileStore.Insert(ctx, r)
}

func (f *flakyBackend) List(ctx context.Context) ([]*models.MonitoringRecord, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.FileStore.List(ctx)
}

func (f *flakyBackend) Get(ctx context.Context, id string) (*models.MonitoringRecord, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.FileStore.Get(ctx, id)
}

func (f *flakyBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// recorder collects events
type recorder struct {
	mu       sync.Mutex
	messages []*models.Message
}

func (r *recorder) Notify(msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) types() []models.MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.MessageType, len(r.messages))
	for i, m := range r.messages {
		out[i] = m.Type
	}
	return out
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func memoryProvider(t *testing.T) Provider {
	t.Helper()
	return Provider{
		Name: "file",
		Open: func(ctx context.Context) (storage.Backend, error) {
			return storage.NewFileStore(storage.FileStoreConfig{}, testLogger())
		},
	}
}

func sqliteProvider(t *testing.T) Provider {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.db")
	return Provider{
		Name: "sqlite",
		Open: func(ctx context.Context) (storage.Backend, error) {
			return storage.NewSQLiteStore(path, testLogger())
		},
	}
}

func failingProvider(name string) Provider {
	return Provider{
		Name: name,
		Open: func(ctx context.Context) (storage.Backend, error) {
			return nil, errors.New("connection refused")
		},
	}
}

func openSQLite(t *testing.T, opts ...Option) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), []Provider{sqliteProvider(t), memoryProvider(t)}, testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newRecord(date string, temp, humidity float64) *models.MonitoringRecord {
	return &models.MonitoringRecord{
		Date:             date,
		Time:             "08:00",
		Temperature:      temp,
		Humidity:         humidity,
		ACStatus:         models.ACNormal,
		UPSStatus:        models.UPSNormal,
		RackCount:        5,
		ActiveServers:    15,
		PowerUsage:       4.5,
		FireExtinguisher: models.FireExtinguisherReady,
	}
}

func TestOpen_FirstProviderWins(t *testing.T) {
	repo := openSQLite(t)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", stats.Backend)
	assert.False(t, stats.Degraded)
	assert.True(t, stats.PersistentAggs)
	require.NotNil(t, stats.Database)
	assert.Equal(t, int64(0), stats.Database.TotalRecords)
}

func TestOpen_SkipsFailingProvider(t *testing.T) {
	repo, err := Open(context.Background(), []Provider{failingProvider("postgres"), memoryProvider(t)}, testLogger())
	require.NoError(t, err)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "file", stats.Backend)
	assert.True(t, stats.Degraded)
	assert.Contains(t, stats.DegradedReason, "connection refused")
}

func TestOpen_AllProvidersFail(t *testing.T) {
	_, err := Open(context.Background(), []Provider{failingProvider("postgres"), failingProvider("file")}, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)

	_, err = Open(context.Background(), nil, testLogger())
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
}

func TestInsert_AssignsID(t *testing.T) {
	repo := openSQLite(t)

	stored, err := repo.Insert(context.Background(), newRecord("2024-01-15", 22, 50))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	got, err := repo.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Date, got.Date)
}

func TestInsert_KeepsGivenID(t *testing.T) {
	repo := openSQLite(t)

	record := newRecord("2024-01-15", 22, 50)
	record.ID = "fixed-id"
	stored, err := repo.Insert(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", stored.ID)
}

func TestInsert_ValidationError(t *testing.T) {
	repo := openSQLite(t)

	record := newRecord("2024-13-40", 22, 50)
	_, err := repo.Insert(context.Background(), record)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	records, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInsert_DuplicateDateLeavesSetUnchanged(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	first, err := repo.Insert(ctx, newRecord("2024-01-15", 22, 50))
	require.NoError(t, err)

	_, err = repo.Insert(ctx, newRecord("2024-01-15", 26, 65))
	assert.ErrorIs(t, err, storage.ErrDuplicateDate)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, first.ID, records[0].ID)

	// A domain error never degrades the session
	stats, _ := repo.Stats(ctx)
	assert.Equal(t, "sqlite", stats.Backend)
	assert.False(t, stats.Degraded)
}

func TestInsert_ConcurrentSameDate(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Insert(ctx, newRecord("2024-06-01", 22, 50))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, storage.ErrDuplicateDate):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, dup)
}

func TestList_NewestFirst(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	for _, date := range []string{"2024-01-01", "2024-01-03", "2024-01-02"} {
		_, err := repo.Insert(ctx, newRecord(date, 22, 50))
		require.NoError(t, err)
	}

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2024-01-03", records[0].Date)
	assert.Equal(t, "2024-01-02", records[1].Date)
	assert.Equal(t, "2024-01-01", records[2].Date)
}

func TestList_TiesLatestInsertFirst(t *testing.T) {
	repo, err := Open(context.Background(), []Provider{memoryProvider(t)}, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	first, _ := repo.Insert(ctx, newRecord("2024-01-01", 22, 50))
	second, _ := repo.Insert(ctx, newRecord("2024-01-01", 23, 50))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID)
	assert.Equal(t, first.ID, records[1].ID)
}

func TestQueryByMonth(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	repo.Insert(ctx, newRecord("2024-01-31", 22, 50))
	repo.Insert(ctx, newRecord("2024-02-01", 22, 50))

	records, err := repo.QueryByMonth(ctx, "2024-02")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-02-01", records[0].Date)

	_, err = repo.QueryByMonth(ctx, "February")
	assert.True(t, models.IsValidation(err))
}

func TestAggregate_RecomputedOnInsert(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, newRecord("2024-01-01", 20, 50))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newRecord("2024-01-02", 30, 75))
	require.NoError(t, err)

	agg, err := repo.Aggregate(ctx, "2024-01")
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, 25.0, agg.AvgTemperature)
	assert.Equal(t, 1, agg.DangerDays)
	assert.Equal(t, 1, agg.NormalDays)
	assert.Equal(t, 2, agg.RecordCount)
}

func TestDelete_MissingIsNoop(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	repo.Insert(ctx, newRecord("2024-01-01", 22, 50))
	before, _ := repo.Stats(ctx)
	aggBefore, _ := repo.Aggregate(ctx, "2024-01")

	deleted, err := repo.Delete(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.False(t, deleted)

	after, _ := repo.Stats(ctx)
	aggAfter, _ := repo.Aggregate(ctx, "2024-01")
	assert.Equal(t, before.Records, after.Records)
	assert.Equal(t, before.Recomputations, after.Recomputations)
	assert.Equal(t, aggBefore, aggAfter)
}

func TestDelete_LastRecordRemovesAggregate(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	var ids []string
	for _, date := range []string{"2024-03-01", "2024-03-02", "2024-03-03"} {
		stored, err := repo.Insert(ctx, newRecord(date, 22, 50))
		require.NoError(t, err)
		ids = append(ids, stored.ID)
	}

	for _, id := range ids {
		deleted, err := repo.Delete(ctx, id)
		require.NoError(t, err)
		assert.True(t, deleted)
	}

	agg, err := repo.Aggregate(ctx, "2024-03")
	require.NoError(t, err)
	assert.Nil(t, agg)

	aggs, err := repo.Aggregates(ctx)
	require.NoError(t, err)
	assert.Empty(t, aggs)
}

func TestUpdate_MergesPatch(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	record := newRecord("2024-01-10", 22, 50)
	record.Notes = "initial"
	stored, _ := repo.Insert(ctx, record)

	temp := 27.5
	updated, err := repo.Update(ctx, stored.ID, &models.RecordPatch{Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, 27.5, updated.Temperature)
	assert.Equal(t, 50.0, updated.Humidity)
	assert.Equal(t, "initial", updated.Notes)
	assert.Equal(t, stored.ID, updated.ID)

	agg, _ := repo.Aggregate(ctx, "2024-01")
	require.NotNil(t, agg)
	assert.Equal(t, 27.5, agg.AvgTemperature)
	assert.Equal(t, 1, agg.WarningDays)
}

func TestUpdate_NotFound(t *testing.T) {
	repo := openSQLite(t)

	temp := 22.0
	_, err := repo.Update(context.Background(), "missing", &models.RecordPatch{Temperature: &temp})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdate_InvalidPatch(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	stored, _ := repo.Insert(ctx, newRecord("2024-01-10", 22, 50))
	humidity := 140.0
	_, err := repo.Update(ctx, stored.ID, &models.RecordPatch{Humidity: &humidity})
	assert.True(t, models.IsValidation(err))

	got, _ := repo.Get(ctx, stored.ID)
	assert.Equal(t, 50.0, got.Humidity)
}

func TestUpdate_DateChangeRecomputesBothMonths(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	moving, _ := repo.Insert(ctx, newRecord("2024-01-31", 22, 50))
	repo.Insert(ctx, newRecord("2024-02-10", 30, 50))

	date := "2024-02-01"
	_, err := repo.Update(ctx, moving.ID, &models.RecordPatch{Date: &date})
	require.NoError(t, err)

	jan, err := repo.Aggregate(ctx, "2024-01")
	require.NoError(t, err)
	assert.Nil(t, jan)

	feb, err := repo.Aggregate(ctx, "2024-02")
	require.NoError(t, err)
	require.NotNil(t, feb)
	assert.Equal(t, 2, feb.RecordCount)
	assert.Equal(t, 26.0, feb.AvgTemperature)
}

func TestBulkInsert_OneRecomputePerMonth(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	records := make([]*models.MonitoringRecord, 31)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range records {
		records[i] = newRecord(base.AddDate(0, 0, i).Format(models.DateLayout), 22, 50)
	}

	before, _ := repo.Stats(ctx)
	stored, err := repo.BulkInsert(ctx, records)
	require.NoError(t, err)
	assert.Len(t, stored, 31)

	after, _ := repo.Stats(ctx)
	assert.Equal(t, int64(1), after.Recomputations-before.Recomputations)
	assert.Equal(t, 31, after.Records)

	agg, _ := repo.Aggregate(ctx, "2024-01")
	require.NotNil(t, agg)
	assert.Equal(t, 31, agg.RecordCount)
}

func TestBulkInsert_SpanningMonths(t *testing.T) {
	rec := &recorder{}
	repo := openSQLite(t, WithNotifier(rec))
	ctx := context.Background()

	records := []*models.MonitoringRecord{
		newRecord("2024-01-30", 22, 50),
		newRecord("2024-01-31", 22, 50),
		newRecord("2024-02-01", 22, 50),
	}
	_, err := repo.BulkInsert(ctx, records)
	require.NoError(t, err)

	stats, _ := repo.Stats(ctx)
	assert.Equal(t, int64(2), stats.Recomputations)

	var imported *models.Message
	for _, m := range rec.messages {
		if m.Type == models.MessageTypeRecordsImported {
			imported = m
		}
	}
	require.NotNil(t, imported)
	var payload models.RecordsImportedMessage
	require.NoError(t, imported.UnmarshalPayload(&payload))
	assert.Equal(t, 3, payload.Count)
	assert.Equal(t, []string{"2024-01", "2024-02"}, payload.Months)
}

func TestBulkInsert_InvalidRecordStoresNothing(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	bad := newRecord("2024-01-02", 22, 50)
	bad.ACStatus = "exploded"
	_, err := repo.BulkInsert(ctx, []*models.MonitoringRecord{newRecord("2024-01-01", 22, 50), bad})
	assert.True(t, models.IsValidation(err))

	records, _ := repo.List(ctx)
	assert.Empty(t, records)
}

func TestAggregates_ComputedOnDemandWithoutStore(t *testing.T) {
	repo, err := Open(context.Background(), []Provider{memoryProvider(t)}, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	repo.Insert(ctx, newRecord("2024-01-01", 20, 50))
	repo.Insert(ctx, newRecord("2024-01-02", 30, 75))
	repo.Insert(ctx, newRecord("2024-02-01", 22, 50))

	aggs, err := repo.Aggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "2024-02", aggs[0].MonthYear)
	assert.Equal(t, 25.0, aggs[1].AvgTemperature)

	stats, _ := repo.Stats(ctx)
	assert.False(t, stats.PersistentAggs)
	assert.Zero(t, stats.Recomputations)
}

func TestFallback_SwitchesOnceAndNeverRetries(t *testing.T) {
	flakyStore, err := storage.NewFileStore(storage.FileStoreConfig{}, testLogger())
	require.NoError(t, err)
	flaky := &flakyBackend{FileStore: flakyStore}

	rec := &recorder{}
	repo, err := Open(context.Background(), []Provider{
		{Name: "flaky", Open: func(ctx context.Context) (storage.Backend, error) { return flaky, nil }},
		memoryProvider(t),
	}, testLogger(), WithNotifier(rec))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Insert(ctx, newRecord("2024-01-01", 22, 50))
	require.NoError(t, err)
	assert.Equal(t, "flaky", repo.Backend())

	flaky.mu.Lock()
	flaky.broken = true
	flaky.mu.Unlock()

	// The failing insert runs once more on the fallback and succeeds there
	stored, err := repo.Insert(ctx, newRecord("2024-01-02", 22, 50))
	require.NoError(t, err)
	assert.Equal(t, "file", repo.Backend())

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, stored.ID, records[0].ID)

	flaky.mu.Lock()
	callsAfterSwitch := flaky.calls
	closed := flaky.closed
	flaky.broken = false
	flaky.mu.Unlock()
	assert.True(t, closed)

	repo.List(ctx)
	repo.Insert(ctx, newRecord("2024-01-03", 22, 50))

	flaky.mu.Lock()
	assert.Equal(t, callsAfterSwitch, flaky.calls, "richer backend must not be retried")
	flaky.mu.Unlock()

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Degraded)
	assert.Contains(t, stats.DegradedReason, "disk I/O error")
	assert.Contains(t, rec.types(), models.MessageTypeBackendDegraded)
}

func TestFallback_NotTriggeredByCallerErrors(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Minute))
	defer cancelExpired()

	tests := []struct {
		name    string
		primary func(t *testing.T) Provider
		ctx     context.Context
		reuseID bool
		wantErr error
	}{
		{
			name:    "reused id on sqlite",
			primary: sqliteProvider,
			ctx:     context.Background(),
			reuseID: true,
			wantErr: storage.ErrDuplicateID,
		},
		{
			name:    "reused id on file",
			primary: memoryProvider,
			ctx:     context.Background(),
			reuseID: true,
			wantErr: storage.ErrDuplicateID,
		},
		{
			name:    "cancelled request",
			primary: sqliteProvider,
			ctx:     cancelled,
			wantErr: context.Canceled,
		},
		{
			name:    "expired request",
			primary: sqliteProvider,
			ctx:     expired,
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := tt.primary(t)
			rec := &recorder{}
			repo, err := Open(context.Background(), []Provider{primary, memoryProvider(t)}, testLogger(), WithNotifier(rec))
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close() })

			first, err := repo.Insert(context.Background(), newRecord("2024-01-01", 22, 50))
			require.NoError(t, err)

			second := newRecord("2024-01-02", 23, 55)
			if tt.reuseID {
				second.ID = first.ID
			}
			_, err = repo.Insert(tt.ctx, second)
			require.ErrorIs(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, storage.ErrBackendUnavailable)

			ctx := context.Background()
			stats, err := repo.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, primary.Name, stats.Backend)
			assert.False(t, stats.Degraded)
			assert.NotContains(t, rec.types(), models.MessageTypeBackendDegraded)

			records, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, first.ID, records[0].ID)
		})
	}
}

func TestFallback_FailureOnFallbackIsUnavailable(t *testing.T) {
	flakyStore, err := storage.NewFileStore(storage.FileStoreConfig{}, testLogger())
	require.NoError(t, err)
	flaky := &flakyBackend{FileStore: flakyStore, broken: true}

	repo, err := Open(context.Background(), []Provider{
		{Name: "flaky", Open: func(ctx context.Context) (storage.Backend, error) { return flaky, nil }},
	}, testLogger())
	require.NoError(t, err)

	_, err = repo.List(context.Background())
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
	assert.ErrorIs(t, err, errDisk)
}

func TestNotifier_ReceivesMutationEvents(t *testing.T) {
	rec := &recorder{}
	repo := openSQLite(t, WithNotifier(rec))
	ctx := context.Background()

	stored, _ := repo.Insert(ctx, newRecord("2024-01-01", 22, 50))
	repo.Delete(ctx, stored.ID)

	assert.Equal(t, []models.MessageType{
		models.MessageTypeRecordCreated,
		models.MessageTypeAggregateUpdated,
		models.MessageTypeRecordDeleted,
		models.MessageTypeAggregateRemoved,
	}, rec.types())
}

func TestPruneBefore(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	for _, date := range []string{"2023-12-30", "2023-12-31", "2024-01-01", "2024-01-02"} {
		_, err := repo.Insert(ctx, newRecord(date, 22, 50))
		require.NoError(t, err)
	}

	pruned, err := repo.PruneBefore(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	records, _ := repo.List(ctx)
	assert.Len(t, records, 2)

	dec, _ := repo.Aggregate(ctx, "2023-12")
	assert.Nil(t, dec)

	_, err = repo.PruneBefore(ctx, "yesterday")
	assert.True(t, models.IsValidation(err))
}

func TestSeedSampleData(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	n, err := repo.SeedSampleData(ctx, end)
	require.NoError(t, err)
	assert.Equal(t, SampleDays, n)

	records, _ := repo.List(ctx)
	require.Len(t, records, SampleDays)
	assert.Equal(t, "2024-03-31", records[0].Date)
	assert.Equal(t, "2024-03-01", records[SampleDays-1].Date)
	for _, r := range records {
		assert.NoError(t, r.Validate())
		assert.GreaterOrEqual(t, r.Temperature, 22.0)
		assert.LessOrEqual(t, r.Temperature, 26.0)
		assert.GreaterOrEqual(t, r.Humidity, 45.0)
		assert.LessOrEqual(t, r.Humidity, 65.0)
		assert.GreaterOrEqual(t, r.RackCount, 3)
		assert.LessOrEqual(t, r.RackCount, 7)
		assert.GreaterOrEqual(t, r.ActiveServers, 10)
		assert.LessOrEqual(t, r.ActiveServers, 29)
	}

	// Seeding never touches a store that has records
	n, err = repo.SeedSampleData(ctx, end)
	require.NoError(t, err)
	assert.Zero(t, n)
}
