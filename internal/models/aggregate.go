package models

import (
	"math"
	"time"
)

// MonthlyAggregate is the derived summary for one YYYY-MM bucket.
// It is a cache over the record set and is never edited directly.
type MonthlyAggregate struct {
	MonthYear      string    `json:"month_year"`
	AvgTemperature float64   `json:"avg_temperature"`
	MinTemperature float64   `json:"min_temperature"`
	MaxTemperature float64   `json:"max_temperature"`
	AvgHumidity    float64   `json:"avg_humidity"`
	MinHumidity    float64   `json:"min_humidity"`
	MaxHumidity    float64   `json:"max_humidity"`
	AvgPowerUsage  float64   `json:"avg_power_usage"`
	RecordCount    int       `json:"record_count"`
	NormalDays     int       `json:"normal_days"`
	WarningDays    int       `json:"warning_days"`
	DangerDays     int       `json:"danger_days"`
	ACIssues       int       `json:"ac_issues"`
	UPSIssues      int       `json:"ups_issues"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Rounded returns the display copy: 1 decimal for temperature and
// humidity, 2 for power.
func (a *MonthlyAggregate) Rounded() *MonthlyAggregate {
	if a == nil {
		return nil
	}
	out := *a
	out.AvgTemperature = Round(a.AvgTemperature, 1)
	out.MinTemperature = Round(a.MinTemperature, 1)
	out.MaxTemperature = Round(a.MaxTemperature, 1)
	out.AvgHumidity = Round(a.AvgHumidity, 1)
	out.MinHumidity = Round(a.MinHumidity, 1)
	out.MaxHumidity = Round(a.MaxHumidity, 1)
	out.AvgPowerUsage = Round(a.AvgPowerUsage, 2)
	return &out
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
