package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// fakePruner records cutoffs and returns a fixed result
type fakePruner struct {
	mu      sync.Mutex
	cutoffs []string
	deleted int
	err     error
}

func (f *fakePruner) PruneBefore(ctx context.Context, date string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, date)
	return f.deleted, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestNewRetentionCleaner_DisabledWithZeroDays(t *testing.T) {
	pruner := &fakePruner{}
	cleaner := NewRetentionCleaner(pruner, RetentionCleanerConfig{RetentionDays: 0}, testLogger())
	assert.Nil(t, cleaner)

	// Stop on a disabled cleaner is safe
	cleaner.Stop()
	assert.Zero(t, pruner.calls())
}

func TestRetentionCleaner_InitialRunAndStats(t *testing.T) {
	pruner := &fakePruner{deleted: 3}
	cleaner := NewRetentionCleaner(pruner, RetentionCleanerConfig{
		RetentionDays: 30,
		CleanupPeriod: time.Hour,
	}, testLogger())
	require.NotNil(t, cleaner)
	defer cleaner.Stop()

	require.Eventually(t, func() bool { return cleaner.Stats().TotalCleanups >= 1 }, time.Second, 10*time.Millisecond)

	cleaner.RunNow()

	stats := cleaner.Stats()
	assert.Equal(t, int64(2), stats.TotalCleanups)
	assert.Equal(t, int64(6), stats.TotalDeleted)
	assert.Equal(t, int64(3), stats.LastDeleteCount)
	assert.Equal(t, 30, stats.RetentionDays)

	want := time.Now().AddDate(0, 0, -30).Format(models.DateLayout)
	pruner.mu.Lock()
	assert.Equal(t, want, pruner.cutoffs[len(pruner.cutoffs)-1])
	pruner.mu.Unlock()
}

func TestRetentionCleaner_ErrorKeepsTotals(t *testing.T) {
	pruner := &fakePruner{err: errors.New("backend down")}
	cleaner := NewRetentionCleaner(pruner, RetentionCleanerConfig{
		RetentionDays: 7,
		CleanupPeriod: -time.Second,
	}, testLogger())
	require.NotNil(t, cleaner)
	defer cleaner.Stop()

	require.Eventually(t, func() bool { return cleaner.Stats().TotalCleanups >= 1 }, time.Second, 10*time.Millisecond)

	stats := cleaner.Stats()
	assert.Zero(t, stats.TotalDeleted)
	assert.Equal(t, 24*time.Hour, cleaner.cleanupPeriod)
}

func TestRetentionCleaner_PrunesRepository(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -40).Format(models.DateLayout)
	recent := time.Now().AddDate(0, 0, -1).Format(models.DateLayout)
	_, err := repo.Insert(ctx, newRecord(old, 22, 50))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newRecord(recent, 22, 50))
	require.NoError(t, err)

	cleaner := NewRetentionCleaner(repo, RetentionCleanerConfig{
		RetentionDays: 30,
		CleanupPeriod: time.Hour,
	}, testLogger())
	require.NotNil(t, cleaner)
	defer cleaner.Stop()

	require.Eventually(t, func() bool { return cleaner.Stats().TotalCleanups >= 1 }, time.Second, 10*time.Millisecond)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, recent, records[0].Date)
	assert.Equal(t, int64(1), cleaner.Stats().TotalDeleted)
}
