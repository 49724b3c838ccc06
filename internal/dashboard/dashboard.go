// Package dashboard turns records into the summary figures and chart series
// shown on the overview page.
package dashboard

import (
	"math"

	"github.com/afroash/serverroom-monitor/internal/models"
	"github.com/afroash/serverroom-monitor/internal/status"
)

// DefaultPeriod is used when no period is requested
const DefaultPeriod = 7

// Summary holds the headline figures. Averages are nil when there are no
// records, which the page renders as "--".
type Summary struct {
	Period            int          `json:"period"`
	AvgTemperature    *float64     `json:"avg_temperature"`
	AvgHumidity       *float64     `json:"avg_humidity"`
	AvgPowerUsage     *float64     `json:"avg_power_usage"`
	AvgActiveServers  *int         `json:"avg_active_servers"`
	TemperatureStatus status.Level `json:"temperature_status,omitempty"`
	HumidityStatus    status.Level `json:"humidity_status,omitempty"`
	ActiveAlerts      int          `json:"active_alerts"`
	TotalRecords      int          `json:"total_records"`
	LastUpdateDate    string       `json:"last_update_date,omitempty"`
	LastUpdateTime    string       `json:"last_update_time,omitempty"`
}

// Trend is the temperature and humidity line chart, oldest point first
type Trend struct {
	Labels      []string  `json:"labels"`
	Dates       []string  `json:"dates"`
	Temperature []float64 `json:"temperature"`
	Humidity    []float64 `json:"humidity"`
}

// Distribution is the status doughnut chart
type Distribution struct {
	Normal  int `json:"normal"`
	Warning int `json:"warning"`
	Danger  int `json:"danger"`
}

// Overview bundles everything the dashboard page needs in one response
type Overview struct {
	Summary      Summary      `json:"summary"`
	Trend        Trend        `json:"trend"`
	Distribution Distribution `json:"distribution"`
}

// Recent returns the first period records of a newest-first slice
func Recent(records []*models.MonitoringRecord, period int) []*models.MonitoringRecord {
	if period <= 0 {
		period = DefaultPeriod
	}
	if period > len(records) {
		period = len(records)
	}
	return records[:period]
}

// BuildSummary computes the headline figures. records must be newest first.
// Averages cover the period most recent records; alerts and totals cover all.
func BuildSummary(records []*models.MonitoringRecord, period int) Summary {
	if period <= 0 {
		period = DefaultPeriod
	}
	summary := Summary{
		Period:       period,
		TotalRecords: len(records),
	}
	if len(records) == 0 {
		return summary
	}

	recent := Recent(records, period)
	var temp, humidity, power float64
	var servers int
	for _, r := range recent {
		temp += r.Temperature
		humidity += r.Humidity
		power += r.PowerUsage
		servers += r.ActiveServers
	}

	n := float64(len(recent))
	avgTemp := temp / n
	avgHumidity := humidity / n
	avgPower := power / n
	avgServers := int(math.Round(float64(servers) / n))

	summary.AvgTemperature = &avgTemp
	summary.AvgHumidity = &avgHumidity
	summary.AvgPowerUsage = &avgPower
	summary.AvgActiveServers = &avgServers
	summary.TemperatureStatus = status.ClassifyMetric(avgTemp, status.Temperature)
	summary.HumidityStatus = status.ClassifyMetric(avgHumidity, status.Humidity)

	for _, r := range records {
		if status.IsAlert(r) {
			summary.ActiveAlerts++
		}
	}

	summary.LastUpdateDate = records[0].Date
	summary.LastUpdateTime = records[0].Time
	return summary
}

// BuildTrend reverses newest-first records into chronological chart series
func BuildTrend(records []*models.MonitoringRecord) Trend {
	trend := Trend{
		Labels:      make([]string, 0, len(records)),
		Dates:       make([]string, 0, len(records)),
		Temperature: make([]float64, 0, len(records)),
		Humidity:    make([]float64, 0, len(records)),
	}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		trend.Labels = append(trend.Labels, models.DisplayDate(r.Date))
		trend.Dates = append(trend.Dates, r.Date)
		trend.Temperature = append(trend.Temperature, r.Temperature)
		trend.Humidity = append(trend.Humidity, r.Humidity)
	}
	return trend
}

// BuildDistribution counts records per tier of the whole-record rule
func BuildDistribution(records []*models.MonitoringRecord) Distribution {
	var d Distribution
	for _, r := range records {
		switch status.ClassifyRecord(r.Temperature, r.Humidity) {
		case status.Danger:
			d.Danger++
		case status.Warning:
			d.Warning++
		default:
			d.Normal++
		}
	}
	return d
}

// Build assembles the overview for the given period
func Build(records []*models.MonitoringRecord, period int) Overview {
	recent := Recent(records, period)
	return Overview{
		Summary:      BuildSummary(records, period),
		Trend:        BuildTrend(recent),
		Distribution: BuildDistribution(recent),
	}
}
