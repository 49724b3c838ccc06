package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// Pruner deletes records dated before a cutoff
type Pruner interface {
	PruneBefore(ctx context.Context, date string) (int, error)
}

// RetentionCleaner periodically removes old records through the repository,
// so aggregates for the pruned months are recomputed
type RetentionCleaner struct {
	pruner        Pruner
	logger        zerolog.Logger
	retentionDays int
	cleanupPeriod time.Duration
	now           func() time.Time
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	// Stats
	mu              sync.RWMutex
	totalDeleted    int64
	totalCleanups   int64
	lastCleanup     time.Time
	lastDeleteCount int64
}

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	RetentionDays int           // Days of records to keep; 0 disables the cleaner
	CleanupPeriod time.Duration // How often to run cleanup (default: 24 hours)
}

// DefaultRetentionCleanerConfig returns sensible defaults
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		RetentionDays: 365,
		CleanupPeriod: 24 * time.Hour,
	}
}

// RetentionCleanerStats contains statistics about the cleaner
type RetentionCleanerStats struct {
	TotalDeleted    int64     `json:"total_deleted"`
	TotalCleanups   int64     `json:"total_cleanups"`
	LastCleanup     time.Time `json:"last_cleanup,omitempty"`
	LastDeleteCount int64     `json:"last_delete_count"`
	RetentionDays   int       `json:"retention_days"`
}

// NewRetentionCleaner creates and starts a new retention cleaner. It returns
// nil when retention is disabled.
func NewRetentionCleaner(pruner Pruner, config RetentionCleanerConfig, logger zerolog.Logger) *RetentionCleaner {
	if config.RetentionDays <= 0 {
		logger.Info().Msg("Retention disabled, records are kept indefinitely")
		return nil
	}

	cleanupPeriod := config.CleanupPeriod

	// Validate CleanupPeriod to prevent time.NewTicker panic
	if cleanupPeriod <= 0 {
		defaultPeriod := DefaultRetentionCleanerConfig().CleanupPeriod
		logger.Warn().
			Dur("provided_period", cleanupPeriod).
			Dur("default_period", defaultPeriod).
			Msg("Invalid CleanupPeriod provided (zero or negative), using default")
		cleanupPeriod = defaultPeriod
	}

	c := &RetentionCleaner{
		pruner:        pruner,
		logger:        logger,
		retentionDays: config.RetentionDays,
		cleanupPeriod: cleanupPeriod,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	logger.Info().
		Int("retention_days", config.RetentionDays).
		Dur("cleanup_period", cleanupPeriod).
		Msg("RetentionCleaner started")

	return c
}

// cleanupLoop runs the periodic cleanup
func (c *RetentionCleaner) cleanupLoop() {
	defer c.wg.Done()

	// Run initial cleanup
	c.runCleanup()

	ticker := time.NewTicker(c.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.stopChan:
			c.logger.Info().Msg("RetentionCleaner stopped")
			return
		}
	}
}

// Cutoff returns the oldest date that is kept
func (c *RetentionCleaner) Cutoff() string {
	return c.now().AddDate(0, 0, -c.retentionDays).Format(models.DateLayout)
}

// runCleanup performs the actual cleanup operation
func (c *RetentionCleaner) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := c.Cutoff()
	deleted, err := c.pruner.PruneBefore(ctx, cutoff)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCleanups++
	c.lastCleanup = time.Now()

	if err != nil {
		c.logger.Error().Err(err).Msg("Retention cleanup failed")
		return
	}

	c.totalDeleted += int64(deleted)
	c.lastDeleteCount = int64(deleted)
	if deleted > 0 {
		c.logger.Info().
			Int("deleted", deleted).
			Str("cutoff", cutoff).
			Msg("Retention cleanup completed")
	} else {
		c.logger.Debug().
			Str("cutoff", cutoff).
			Msg("Retention cleanup completed, no old records to delete")
	}
}

// Stop gracefully stops the cleaner
func (c *RetentionCleaner) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
}

// Stats returns current cleaner statistics
func (c *RetentionCleaner) Stats() RetentionCleanerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return RetentionCleanerStats{
		TotalDeleted:    c.totalDeleted,
		TotalCleanups:   c.totalCleanups,
		LastCleanup:     c.lastCleanup,
		LastDeleteCount: c.lastDeleteCount,
		RetentionDays:   c.retentionDays,
	}
}

// RunNow triggers an immediate cleanup
func (c *RetentionCleaner) RunNow() {
	c.runCleanup()
}
