package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// Compile-time interface check
var _ Backend = (*PostgresStore)(nil)

// PostgresStore is the remote document backend. Each record is kept as a
// JSONB document next to the indexed columns it is queried by; created_at
// and updated_at are assigned by the database server.
type PostgresStore struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// documentRow is the row shape read back from the records collection
type documentRow struct {
	Seq       int64     `db:"seq"`
	Doc       []byte    `db:"doc"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NewPostgresStore connects to the remote collection and migrates it
func NewPostgresStore(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty: %w", ErrBackendUnavailable)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db, logger: logger}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Msg("Postgres document store initialized")
	return store, nil
}

// Name identifies the backend
func (s *PostgresStore) Name() string {
	return "postgres"
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate creates the collection if it doesn't exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS monitoring_records (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		record_date TEXT NOT NULL,
		record_time TEXT NOT NULL,
		month_year TEXT NOT NULL,
		doc JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_monitoring_records_date ON monitoring_records(record_date);
	CREATE INDEX IF NOT EXISTS idx_monitoring_records_month ON monitoring_records(month_year);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const insertDocumentSQL = `
	INSERT INTO monitoring_records (id, record_date, record_time, month_year, doc)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at, updated_at
`

// Insert stores a document; the unique date index rejects duplicates atomically
func (s *PostgresStore) Insert(ctx context.Context, record *models.MonitoringRecord) error {
	return s.insert(ctx, s.db, record)
}

// InsertBatch stores all documents in one transaction
func (s *PostgresStore) InsertBatch(ctx context.Context, records []*models.MonitoringRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		if err := s.insert(ctx, tx, record); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(records)).Msg("Batch insert completed")
	return nil
}

func (s *PostgresStore) insert(ctx context.Context, q sqlx.QueryerContext, record *models.MonitoringRecord) error {
	doc, err := encodeDocument(record)
	if err != nil {
		return err
	}

	row := q.QueryRowxContext(ctx, insertDocumentSQL, record.ID, record.Date, record.Time, record.MonthYear(), doc)
	if err := row.Scan(&record.CreatedAt, &record.UpdatedAt); err != nil {
		return translatePostgresError("failed to insert record", record, err)
	}
	return nil
}

// Get returns the document with the given id
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.MonitoringRecord, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, `SELECT seq, doc, created_at, updated_at FROM monitoring_records WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decodeDocument(row)
}

// List returns all documents newest first
func (s *PostgresStore) List(ctx context.Context) ([]*models.MonitoringRecord, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, doc, created_at, updated_at FROM monitoring_records
		ORDER BY record_date DESC, record_time DESC, seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	return decodeDocuments(rows)
}

// ListByMonth returns one month of documents newest first
func (s *PostgresStore) ListByMonth(ctx context.Context, monthYear string) ([]*models.MonitoringRecord, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, doc, created_at, updated_at FROM monitoring_records
		WHERE month_year = $1
		ORDER BY record_date DESC, record_time DESC, seq DESC
	`, monthYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by month: %w", err)
	}
	return decodeDocuments(rows)
}

// Update replaces a document; updated_at is refreshed by the server
func (s *PostgresStore) Update(ctx context.Context, record *models.MonitoringRecord) error {
	doc, err := encodeDocument(record)
	if err != nil {
		return err
	}

	row := s.db.QueryRowxContext(ctx, `
		UPDATE monitoring_records
		SET record_date = $2, record_time = $3, month_year = $4, doc = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, record.ID, record.Date, record.Time, record.MonthYear(), doc)

	if err := row.Scan(&record.CreatedAt, &record.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return translatePostgresError("failed to update record", record, err)
	}
	return nil
}

// Delete removes a document
func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM monitoring_records WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted > 0, nil
}

// Names Postgres gives the unique constraints on monitoring_records
const (
	postgresDateConstraint = "idx_monitoring_records_date"
	postgresIDConstraint   = "monitoring_records_id_key"
)

// translatePostgresError maps unique_violation on the date index and the id
// column
func translatePostgresError(msg string, record *models.MonitoringRecord, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case postgresDateConstraint:
			return fmt.Errorf("%s: %w", record.Date, ErrDuplicateDate)
		case postgresIDConstraint:
			return fmt.Errorf("%s: %w", record.ID, ErrDuplicateID)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func encodeDocument(r *models.MonitoringRecord) ([]byte, error) {
	doc := r.Copy()
	// Timestamps live in their own server-assigned columns
	doc.CreatedAt = time.Time{}
	doc.UpdatedAt = time.Time{}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

func decodeDocument(row documentRow) (*models.MonitoringRecord, error) {
	var r models.MonitoringRecord
	if err := json.Unmarshal(row.Doc, &r); err != nil {
		return nil, fmt.Errorf("failed to decode document %d: %w", row.Seq, err)
	}
	r.CreatedAt = row.CreatedAt
	r.UpdatedAt = row.UpdatedAt
	return &r, nil
}

func decodeDocuments(rows []documentRow) ([]*models.MonitoringRecord, error) {
	records := make([]*models.MonitoringRecord, 0, len(rows))
	for _, row := range rows {
		r, err := decodeDocument(row)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
