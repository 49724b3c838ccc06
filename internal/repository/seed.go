package repository

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// SampleDays is the number of days of demonstration data seeded into an
// empty store
const SampleDays = 31

// SeedSampleData fills an empty store with one morning check per day for
// the SampleDays days ending at end. It does nothing when records exist.
func (r *Repository) SeedSampleData(ctx context.Context, end time.Time) (int, error) {
	existing, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	rng := rand.New(rand.NewPCG(uint64(end.UnixNano()), uint64(SampleDays)))
	records := SampleRecords(rng, end, SampleDays)

	stored, err := r.BulkInsert(ctx, records)
	if err != nil {
		return 0, err
	}

	r.logger.Info().Int("count", len(stored)).Msg("Seeded sample data into empty store")
	return len(stored), nil
}

// SampleRecords generates days records ending at end, newest first
func SampleRecords(rng *rand.Rand, end time.Time, days int) []*models.MonitoringRecord {
	acStatuses := []models.ACStatus{models.ACNormal, models.ACMaintenance, models.ACBroken}
	upsStatuses := []models.UPSStatus{models.UPSNormal, models.UPSLowBattery, models.UPSMaintenance, models.UPSBroken}

	records := make([]*models.MonitoringRecord, 0, days)
	for i := 0; i < days; i++ {
		date := end.AddDate(0, 0, -i)
		records = append(records, &models.MonitoringRecord{
			Date:             date.Format(models.DateLayout),
			Time:             "08:00",
			Temperature:      models.Round(22+rng.Float64()*4, 1),
			Humidity:         models.Round(45+rng.Float64()*20, 1),
			ACStatus:         acStatuses[rng.IntN(len(acStatuses))],
			UPSStatus:        upsStatuses[rng.IntN(len(upsStatuses))],
			RackCount:        rng.IntN(5) + 3,
			ActiveServers:    rng.IntN(20) + 10,
			PowerUsage:       models.Round(3+rng.Float64()*5, 2),
			FireExtinguisher: models.FireExtinguisherReady,
			Notes:            "Routine check",
		})
	}
	return records
}
