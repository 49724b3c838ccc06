// Package status classifies readings into Normal, Warning and Danger tiers.
//
// Two rules live here and they intentionally disagree at the edges:
// ClassifyMetric grades a single metric against its comfort band, while
// ClassifyRecord grades a whole record by upper thresholds only. Dashboard
// status badges use the first; alert counts, chart distributions and monthly
// aggregates use the second.
package status

import "github.com/afroash/serverroom-monitor/internal/models"

// Level is a three-tier status
type Level string

const (
	Normal  Level = "normal"
	Warning Level = "warning"
	Danger  Level = "danger"
)

// Metric selects the band used by ClassifyMetric
type Metric int

const (
	Temperature Metric = iota
	Humidity
)

func (m Metric) String() string {
	switch m {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	default:
		return "unknown"
	}
}

// Text returns the capitalised label shown on badges
func (l Level) Text() string {
	switch l {
	case Warning:
		return "Warning"
	case Danger:
		return "Danger"
	default:
		return "Normal"
	}
}

// ClassifyMetric grades one value against the band for its metric.
//
//	temperature: normal 18..25, warning (25,28], danger otherwise
//	humidity:    normal 40..60, warning (30,40) or (60,70], danger otherwise
func ClassifyMetric(value float64, metric Metric) Level {
	switch metric {
	case Temperature:
		if value >= 18 && value <= 25 {
			return Normal
		}
		if value > 25 && value <= 28 {
			return Warning
		}
		return Danger
	case Humidity:
		if value >= 40 && value <= 60 {
			return Normal
		}
		if (value > 30 && value < 40) || (value > 60 && value <= 70) {
			return Warning
		}
		return Danger
	}
	return Normal
}

// ClassifyRecord grades a record by its upper thresholds only:
// danger when temperature > 28 or humidity > 70, warning when
// temperature > 25 or humidity > 60.
func ClassifyRecord(temperature, humidity float64) Level {
	if temperature > 28 || humidity > 70 {
		return Danger
	}
	if temperature > 25 || humidity > 60 {
		return Warning
	}
	return Normal
}

// ACLevel maps an AC status to a badge tier
func ACLevel(s models.ACStatus) Level {
	if s == models.ACNormal {
		return Normal
	}
	return Danger
}

// UPSLevel maps a UPS status to a badge tier
func UPSLevel(s models.UPSStatus) Level {
	switch s {
	case models.UPSNormal:
		return Normal
	case models.UPSLowBattery:
		return Warning
	default:
		return Danger
	}
}

// IsAlert reports whether a record counts toward the active alerts figure
func IsAlert(r *models.MonitoringRecord) bool {
	return ClassifyRecord(r.Temperature, r.Humidity) != Normal ||
		r.ACStatus == models.ACBroken ||
		r.UPSStatus == models.UPSBroken
}

// IsACIssue reports whether the AC needs attention (broken or in maintenance)
func IsACIssue(s models.ACStatus) bool {
	return s == models.ACBroken || s == models.ACMaintenance
}

// IsUPSIssue reports whether the UPS needs attention
func IsUPSIssue(s models.UPSStatus) bool {
	return s == models.UPSBroken || s == models.UPSMaintenance || s == models.UPSLowBattery
}
