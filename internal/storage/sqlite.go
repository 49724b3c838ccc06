package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// Compile-time interface checks
var (
	_ Backend        = (*SQLiteStore)(nil)
	_ AggregateStore = (*SQLiteStore)(nil)
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// SQLiteStore is the indexed backend: records carry secondary indices on
// date and month, and monthly aggregates are persisted alongside them.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalRecords   int64   `json:"total_records"`
	OldestDate     string  `json:"oldest_date,omitempty"`
	NewestDate     string  `json:"newest_date,omitempty"`
	Months         int     `json:"months"`
	DatabaseSizeMB float64 `json:"database_size_mb"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Apply performance pragmas for SQLite
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	// Auto-migrate schema
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Name identifies the backend
func (s *SQLiteStore) Name() string {
	return "sqlite"
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		record_date TEXT NOT NULL,
		record_time TEXT NOT NULL,
		month_year TEXT NOT NULL,
		temperature REAL NOT NULL,
		humidity REAL NOT NULL,
		ac_status TEXT NOT NULL,
		ups_status TEXT NOT NULL,
		rack_count INTEGER NOT NULL DEFAULT 0,
		active_servers INTEGER NOT NULL DEFAULT 0,
		power_usage REAL NOT NULL DEFAULT 0,
		fire_extinguisher TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_date ON records(record_date);
	CREATE INDEX IF NOT EXISTS idx_records_month ON records(month_year);

	CREATE TABLE IF NOT EXISTS monthly_aggregates (
		month_year TEXT PRIMARY KEY,
		avg_temperature REAL NOT NULL,
		min_temperature REAL NOT NULL,
		max_temperature REAL NOT NULL,
		avg_humidity REAL NOT NULL,
		min_humidity REAL NOT NULL,
		max_humidity REAL NOT NULL,
		avg_power_usage REAL NOT NULL,
		record_count INTEGER NOT NULL,
		normal_days INTEGER NOT NULL,
		warning_days INTEGER NOT NULL,
		danger_days INTEGER NOT NULL,
		ac_issues INTEGER NOT NULL,
		ups_issues INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

const insertRecordSQL = `
	INSERT INTO records (
		id, record_date, record_time, month_year, temperature, humidity,
		ac_status, ups_status, rack_count, active_servers, power_usage,
		fire_extinguisher, notes, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectRecordSQL = `
	SELECT id, record_date, record_time, temperature, humidity, ac_status, ups_status,
		rack_count, active_servers, power_usage, fire_extinguisher, notes,
		created_at, updated_at
	FROM records
`

const orderNewestFirst = ` ORDER BY record_date DESC, record_time DESC, seq DESC`

// Insert stores a single record. The unique date index makes the
// duplicate check and the write one atomic statement.
func (s *SQLiteStore) Insert(ctx context.Context, record *models.MonitoringRecord) error {
	now := time.Now().UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx, insertRecordSQL, recordArgs(record, now, now)...)
	if err != nil {
		return s.translateError("failed to insert record", record, err)
	}
	record.CreatedAt, record.UpdatedAt = now, now
	return nil
}

// InsertBatch inserts multiple records in a single transaction
func (s *SQLiteStore) InsertBatch(ctx context.Context, records []*models.MonitoringRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Truncate(time.Second)
	for _, record := range records {
		if _, err := stmt.ExecContext(ctx, recordArgs(record, now, now)...); err != nil {
			return s.translateError("failed to insert record in batch", record, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, record := range records {
		record.CreatedAt, record.UpdatedAt = now, now
	}

	s.logger.Debug().Int("count", len(records)).Msg("Batch insert completed")
	return nil
}

// Get returns the record with the given id
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.MonitoringRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRecordSQL+` WHERE id = ?`, id)
	record, err := s.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// List returns all records newest first
func (s *SQLiteStore) List(ctx context.Context) ([]*models.MonitoringRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRecordSQL+orderNewestFirst)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// ListByMonth uses the month index
func (s *SQLiteStore) ListByMonth(ctx context.Context, monthYear string) ([]*models.MonitoringRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRecordSQL+` WHERE month_year = ?`+orderNewestFirst, monthYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by month: %w", err)
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// Update replaces a stored record
func (s *SQLiteStore) Update(ctx context.Context, record *models.MonitoringRecord) error {
	now := time.Now().UTC().Truncate(time.Second)
	result, err := s.db.ExecContext(ctx, `
		UPDATE records SET
			record_date = ?, record_time = ?, month_year = ?, temperature = ?, humidity = ?,
			ac_status = ?, ups_status = ?, rack_count = ?, active_servers = ?, power_usage = ?,
			fire_extinguisher = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`,
		record.Date,
		record.Time,
		record.MonthYear(),
		record.Temperature,
		record.Humidity,
		string(record.ACStatus),
		string(record.UPSStatus),
		record.RackCount,
		record.ActiveServers,
		record.PowerUsage,
		string(record.FireExtinguisher),
		record.Notes,
		now.Format(sqliteTimeLayout),
		record.ID,
	)
	if err != nil {
		return s.translateError("failed to update record", record, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	record.UpdatedAt = now
	return nil
}

// Delete removes a record
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted > 0, nil
}

// PutAggregate inserts or replaces the aggregate for its month
func (s *SQLiteStore) PutAggregate(ctx context.Context, agg *models.MonthlyAggregate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO monthly_aggregates (
			month_year, avg_temperature, min_temperature, max_temperature,
			avg_humidity, min_humidity, max_humidity, avg_power_usage,
			record_count, normal_days, warning_days, danger_days,
			ac_issues, ups_issues, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		agg.MonthYear,
		agg.AvgTemperature,
		agg.MinTemperature,
		agg.MaxTemperature,
		agg.AvgHumidity,
		agg.MinHumidity,
		agg.MaxHumidity,
		agg.AvgPowerUsage,
		agg.RecordCount,
		agg.NormalDays,
		agg.WarningDays,
		agg.DangerDays,
		agg.ACIssues,
		agg.UPSIssues,
		agg.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to store aggregate: %w", err)
	}
	return nil
}

const selectAggregateSQL = `
	SELECT month_year, avg_temperature, min_temperature, max_temperature,
		avg_humidity, min_humidity, max_humidity, avg_power_usage,
		record_count, normal_days, warning_days, danger_days,
		ac_issues, ups_issues, updated_at
	FROM monthly_aggregates
`

// GetAggregate returns the stored aggregate for a month, or nil
func (s *SQLiteStore) GetAggregate(ctx context.Context, monthYear string) (*models.MonthlyAggregate, error) {
	row := s.db.QueryRowContext(ctx, selectAggregateSQL+` WHERE month_year = ?`, monthYear)
	agg, err := s.scanAggregate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	return agg, nil
}

// DeleteAggregate removes the aggregate for a month
func (s *SQLiteStore) DeleteAggregate(ctx context.Context, monthYear string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM monthly_aggregates WHERE month_year = ?", monthYear); err != nil {
		return fmt.Errorf("failed to delete aggregate: %w", err)
	}
	return nil
}

// ListAggregates returns all stored aggregates newest month first
func (s *SQLiteStore) ListAggregates(ctx context.Context) ([]*models.MonthlyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, selectAggregateSQL+` ORDER BY month_year DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []*models.MonthlyAggregate
	for rows.Next() {
		agg, err := s.scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggs = append(aggs, agg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return aggs, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&stats.TotalRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	// If no records, return early with zero values
	if stats.TotalRecords == 0 {
		return stats, nil
	}

	err = s.db.QueryRowContext(ctx, "SELECT MIN(record_date), MAX(record_date), COUNT(DISTINCT month_year) FROM records").
		Scan(&stats.OldestDate, &stats.NewestDate, &stats.Months)
	if err != nil {
		return nil, fmt.Errorf("failed to get date range: %w", err)
	}

	// Get database size using PRAGMA
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page size: %w", err)
	}
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// translateError maps unique violations on the date and id columns to
// ErrDuplicateDate and ErrDuplicateID
func (s *SQLiteStore) translateError(msg string, record *models.MonitoringRecord, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		switch {
		case strings.Contains(sqliteErr.Error(), "records.record_date"):
			return fmt.Errorf("%s: %w", record.Date, ErrDuplicateDate)
		case strings.Contains(sqliteErr.Error(), "records.id"):
			return fmt.Errorf("%s: %w", record.ID, ErrDuplicateID)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func recordArgs(r *models.MonitoringRecord, createdAt, updatedAt time.Time) []interface{} {
	return []interface{}{
		r.ID,
		r.Date,
		r.Time,
		r.MonthYear(),
		r.Temperature,
		r.Humidity,
		string(r.ACStatus),
		string(r.UPSStatus),
		r.RackCount,
		r.ActiveServers,
		r.PowerUsage,
		string(r.FireExtinguisher),
		r.Notes,
		createdAt.Format(sqliteTimeLayout),
		updatedAt.Format(sqliteTimeLayout),
	}
}

// scanRecord is a helper to scan a row into a MonitoringRecord
func (s *SQLiteStore) scanRecord(row interface{ Scan(...interface{}) error }) (*models.MonitoringRecord, error) {
	var r models.MonitoringRecord
	var ac, ups, fire string
	var createdAt, updatedAt string

	err := row.Scan(
		&r.ID,
		&r.Date,
		&r.Time,
		&r.Temperature,
		&r.Humidity,
		&ac,
		&ups,
		&r.RackCount,
		&r.ActiveServers,
		&r.PowerUsage,
		&fire,
		&r.Notes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.ACStatus = models.ACStatus(ac)
	r.UPSStatus = models.UPSStatus(ups)
	r.FireExtinguisher = models.FireExtinguisherStatus(fire)

	if r.CreatedAt, err = s.parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if r.UpdatedAt, err = s.parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &r, nil
}

// scanRecords scans multiple rows into a slice of records
func (s *SQLiteStore) scanRecords(rows *sql.Rows) ([]*models.MonitoringRecord, error) {
	records := make([]*models.MonitoringRecord, 0)

	for rows.Next() {
		r, err := s.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

func (s *SQLiteStore) scanAggregate(row interface{ Scan(...interface{}) error }) (*models.MonthlyAggregate, error) {
	var agg models.MonthlyAggregate
	var updatedAt string

	err := row.Scan(
		&agg.MonthYear,
		&agg.AvgTemperature,
		&agg.MinTemperature,
		&agg.MaxTemperature,
		&agg.AvgHumidity,
		&agg.MinHumidity,
		&agg.MaxHumidity,
		&agg.AvgPowerUsage,
		&agg.RecordCount,
		&agg.NormalDays,
		&agg.WarningDays,
		&agg.DangerDays,
		&agg.ACIssues,
		&agg.UPSIssues,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if agg.UpdatedAt, err = s.parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &agg, nil
}

// parseTimestamp tries multiple formats to parse a SQLite timestamp
func (s *SQLiteStore) parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		sqliteTimeLayout,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
