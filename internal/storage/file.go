package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// Compile-time interface check
var _ Backend = (*FileStore)(nil)

// FileStore keeps the record collection in memory and serializes the whole
// collection to a single JSON file after every mutation. With an empty path
// it is memory only.
type FileStore struct {
	path        string
	uniqueDates bool
	logger      zerolog.Logger

	mutex   sync.RWMutex
	records []*models.MonitoringRecord // insertion order
}

// FileStoreConfig holds configuration for the file backend
type FileStoreConfig struct {
	Path        string // JSON file; empty keeps records in memory only
	UniqueDates bool   // reject a second record for an existing date
}

// NewFileStore loads the collection from disk, creating the file on first write
func NewFileStore(config FileStoreConfig, logger zerolog.Logger) (*FileStore, error) {
	s := &FileStore{
		path:        config.Path,
		uniqueDates: config.UniqueDates,
		logger:      logger,
		records:     make([]*models.MonitoringRecord, 0),
	}

	if s.path == "" {
		logger.Info().Msg("File store running in memory-only mode")
		return s, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		logger.Info().Str("path", s.path).Msg("File store initialized (new)")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
		}
	}

	logger.Info().Str("path", s.path).Int("records", len(s.records)).Msg("File store initialized")
	return s, nil
}

// Name identifies the backend
func (s *FileStore) Name() string {
	return "file"
}

// Insert appends a record
func (s *FileStore) Insert(ctx context.Context, record *models.MonitoringRecord) error {
	return s.InsertBatch(ctx, []*models.MonitoringRecord{record})
}

// InsertBatch appends all records or none
func (s *FileStore) InsertBatch(ctx context.Context, records []*models.MonitoringRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	seen := make(map[string]bool, len(s.records)+len(records))
	ids := make(map[string]bool, len(s.records)+len(records))
	for _, r := range s.records {
		seen[r.Date] = true
		ids[r.ID] = true
	}
	for _, r := range records {
		if ids[r.ID] {
			return fmt.Errorf("%s: %w", r.ID, ErrDuplicateID)
		}
		if s.uniqueDates && seen[r.Date] {
			return fmt.Errorf("%s: %w", r.Date, ErrDuplicateDate)
		}
		seen[r.Date] = true
		ids[r.ID] = true
	}

	now := time.Now().UTC()
	previous := s.records
	for _, r := range records {
		stored := r.Copy()
		stored.CreatedAt = now
		stored.UpdatedAt = now
		r.CreatedAt, r.UpdatedAt = now, now
		s.records = append(s.records, stored)
	}

	if err := s.persist(); err != nil {
		s.records = previous
		return err
	}
	return nil
}

// Get returns the record with the given id
func (s *FileStore) Get(ctx context.Context, id string) (*models.MonitoringRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, r := range s.records {
		if r.ID == id {
			return r.Copy(), nil
		}
	}
	return nil, ErrNotFound
}

// List returns all records newest first
func (s *FileStore) List(ctx context.Context) ([]*models.MonitoringRecord, error) {
	return s.filter(func(*models.MonitoringRecord) bool { return true }), nil
}

// ListByMonth returns the records of one month newest first
func (s *FileStore) ListByMonth(ctx context.Context, monthYear string) ([]*models.MonitoringRecord, error) {
	return s.filter(func(r *models.MonitoringRecord) bool {
		return strings.HasPrefix(r.Date, monthYear)
	}), nil
}

// Update replaces a stored record
func (s *FileStore) Update(ctx context.Context, record *models.MonitoringRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	index := -1
	for i, r := range s.records {
		if r.ID == record.ID {
			index = i
		} else if s.uniqueDates && r.Date == record.Date {
			return fmt.Errorf("%s: %w", record.Date, ErrDuplicateDate)
		}
	}
	if index == -1 {
		return ErrNotFound
	}

	previous := s.records[index]
	updated := record.Copy()
	updated.CreatedAt = previous.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	s.records[index] = updated

	if err := s.persist(); err != nil {
		s.records[index] = previous
		return err
	}
	record.CreatedAt, record.UpdatedAt = updated.CreatedAt, updated.UpdatedAt
	return nil
}

// Delete removes a record
func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, r := range s.records {
		if r.ID != id {
			continue
		}
		previous := s.records
		remaining := make([]*models.MonitoringRecord, 0, len(s.records)-1)
		remaining = append(remaining, s.records[:i]...)
		remaining = append(remaining, s.records[i+1:]...)
		s.records = remaining

		if err := s.persist(); err != nil {
			s.records = previous
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Close flushes nothing; every mutation is already on disk
func (s *FileStore) Close() error {
	return nil
}

// filter returns copies of matching records, newest first
func (s *FileStore) filter(keep func(*models.MonitoringRecord) bool) []*models.MonitoringRecord {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]*models.MonitoringRecord, 0, len(s.records))
	// Walk backwards so equal (date, time) keys keep the latest insert first
	for i := len(s.records) - 1; i >= 0; i-- {
		if keep(s.records[i]) {
			result = append(result, s.records[i].Copy())
		}
	}
	models.SortNewestFirst(result)
	return result
}

// persist writes the collection atomically. Caller holds the write lock.
func (s *FileStore) persist() error {
	if s.path == "" {
		return nil
	}

	data, err := json.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	s.logger.Debug().Int("records", len(s.records)).Msg("File store persisted")
	return nil
}
