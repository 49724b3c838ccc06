// Package aggregate derives monthly summary statistics from a month's records.
package aggregate

import (
	"time"

	"github.com/afroash/serverroom-monitor/internal/models"
	"github.com/afroash/serverroom-monitor/internal/status"
)

// Recompute builds the monthly summary for monthYear from the records of that
// month. It returns false for an empty set; callers must not store a
// degenerate aggregate in that case.
//
// Values are kept at full precision; use MonthlyAggregate.Rounded for display.
func Recompute(monthYear string, records []*models.MonitoringRecord, now time.Time) (*models.MonthlyAggregate, bool) {
	if len(records) == 0 {
		return nil, false
	}

	agg := &models.MonthlyAggregate{
		MonthYear:      monthYear,
		MinTemperature: records[0].Temperature,
		MaxTemperature: records[0].Temperature,
		MinHumidity:    records[0].Humidity,
		MaxHumidity:    records[0].Humidity,
		RecordCount:    len(records),
		UpdatedAt:      now,
	}

	var sumTemp, sumHumidity, sumPower float64
	for _, r := range records {
		sumTemp += r.Temperature
		sumHumidity += r.Humidity
		sumPower += r.PowerUsage

		agg.MinTemperature = min(agg.MinTemperature, r.Temperature)
		agg.MaxTemperature = max(agg.MaxTemperature, r.Temperature)
		agg.MinHumidity = min(agg.MinHumidity, r.Humidity)
		agg.MaxHumidity = max(agg.MaxHumidity, r.Humidity)

		switch status.ClassifyRecord(r.Temperature, r.Humidity) {
		case status.Danger:
			agg.DangerDays++
		case status.Warning:
			agg.WarningDays++
		default:
			agg.NormalDays++
		}

		if status.IsACIssue(r.ACStatus) {
			agg.ACIssues++
		}
		if status.IsUPSIssue(r.UPSStatus) {
			agg.UPSIssues++
		}
	}

	n := float64(len(records))
	agg.AvgTemperature = sumTemp / n
	agg.AvgHumidity = sumHumidity / n
	agg.AvgPowerUsage = sumPower / n

	return agg, true
}

// GroupByMonth buckets records by their YYYY-MM prefix
func GroupByMonth(records []*models.MonitoringRecord) map[string][]*models.MonitoringRecord {
	groups := make(map[string][]*models.MonitoringRecord)
	for _, r := range records {
		month := r.MonthYear()
		groups[month] = append(groups[month], r)
	}
	return groups
}
