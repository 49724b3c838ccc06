package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Date and time layouts used by the entry form
const (
	DateLayout  = "2006-01-02"
	TimeLayout  = "15:04"
	MonthLayout = "2006-01"

	DisplayDateLayout = "2 January 2006"
)

// ACStatus is the condition of the room air conditioning
type ACStatus string

const (
	ACNormal      ACStatus = "normal"
	ACMaintenance ACStatus = "maintenance"
	ACBroken      ACStatus = "broken"
)

// IsValid reports whether s is a known AC status
func (s ACStatus) IsValid() bool {
	switch s {
	case ACNormal, ACMaintenance, ACBroken:
		return true
	}
	return false
}

// Label returns the human-readable status
func (s ACStatus) Label() string {
	switch s {
	case ACNormal:
		return "Normal"
	case ACMaintenance:
		return "Maintenance"
	default:
		return "Broken"
	}
}

// UPSStatus is the condition of the uninterruptible power supply
type UPSStatus string

const (
	UPSNormal      UPSStatus = "normal"
	UPSLowBattery  UPSStatus = "low_battery"
	UPSMaintenance UPSStatus = "maintenance"
	UPSBroken      UPSStatus = "broken"
)

// IsValid reports whether s is a known UPS status
func (s UPSStatus) IsValid() bool {
	switch s {
	case UPSNormal, UPSLowBattery, UPSMaintenance, UPSBroken:
		return true
	}
	return false
}

// Label returns the human-readable status
func (s UPSStatus) Label() string {
	switch s {
	case UPSNormal:
		return "Normal"
	case UPSLowBattery:
		return "Low Battery"
	case UPSMaintenance:
		return "Maintenance"
	default:
		return "Broken"
	}
}

// FireExtinguisherStatus is the condition of the room fire extinguisher
type FireExtinguisherStatus string

const (
	FireExtinguisherReady            FireExtinguisherStatus = "ready"
	FireExtinguisherExpired          FireExtinguisherStatus = "expired"
	FireExtinguisherNeedsMaintenance FireExtinguisherStatus = "needs_maintenance"
)

// IsValid reports whether s is a known extinguisher status
func (s FireExtinguisherStatus) IsValid() bool {
	switch s {
	case FireExtinguisherReady, FireExtinguisherExpired, FireExtinguisherNeedsMaintenance:
		return true
	}
	return false
}

// Label returns the human-readable status
func (s FireExtinguisherStatus) Label() string {
	switch s {
	case FireExtinguisherReady:
		return "Ready"
	case FireExtinguisherExpired:
		return "Expired"
	default:
		return "Needs Maintenance"
	}
}

// MonitoringRecord is one environmental log entry for the server room.
type MonitoringRecord struct {
	ID               string                 `json:"id"`
	Date             string                 `json:"date"`
	Time             string                 `json:"time"`
	Temperature      float64                `json:"temperature"`
	Humidity         float64                `json:"humidity"`
	ACStatus         ACStatus               `json:"ac_status"`
	UPSStatus        UPSStatus              `json:"ups_status"`
	RackCount        int                    `json:"rack_count"`
	ActiveServers    int                    `json:"active_servers"`
	PowerUsage       float64                `json:"power_usage"`
	FireExtinguisher FireExtinguisherStatus `json:"fire_extinguisher"`
	Notes            string                 `json:"notes,omitempty"`
	CreatedAt        time.Time              `json:"created_at,omitempty"`
	UpdatedAt        time.Time              `json:"updated_at,omitempty"`
}

// MonthYear returns the YYYY-MM bucket the record belongs to
func (r *MonitoringRecord) MonthYear() string {
	if len(r.Date) < 7 {
		return r.Date
	}
	return r.Date[:7]
}

// Accepted reading ranges. DHT-class sensors and handheld thermometers stay within these.
const (
	MinTemperature = -20.0
	MaxTemperature = 60.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// Validate checks the record the same way the entry form does
func (r *MonitoringRecord) Validate() error {
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return NewValidationError("date", "must be a YYYY-MM-DD date")
	}
	if _, err := time.Parse(TimeLayout, r.Time); err != nil {
		return NewValidationError("time", "must be an HH:MM time")
	}
	if !isFinite(r.Temperature) || r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return NewValidationError("temperature", fmt.Sprintf("must be between %.0f and %.0f °C", MinTemperature, MaxTemperature))
	}
	if !isFinite(r.Humidity) || r.Humidity < MinHumidity || r.Humidity > MaxHumidity {
		return NewValidationError("humidity", fmt.Sprintf("must be between %.0f and %.0f %%", MinHumidity, MaxHumidity))
	}
	if !r.ACStatus.IsValid() {
		return NewValidationError("ac_status", fmt.Sprintf("unknown status %q", r.ACStatus))
	}
	if !r.UPSStatus.IsValid() {
		return NewValidationError("ups_status", fmt.Sprintf("unknown status %q", r.UPSStatus))
	}
	if !r.FireExtinguisher.IsValid() {
		return NewValidationError("fire_extinguisher", fmt.Sprintf("unknown status %q", r.FireExtinguisher))
	}
	if r.RackCount < 0 {
		return NewValidationError("rack_count", "must not be negative")
	}
	if r.ActiveServers < 0 {
		return NewValidationError("active_servers", "must not be negative")
	}
	if !isFinite(r.PowerUsage) || r.PowerUsage < 0 {
		return NewValidationError("power_usage", "must be a non-negative number")
	}
	return nil
}

// String returns the record as a short log line
func (r *MonitoringRecord) String() string {
	return fmt.Sprintf("ID: %s, Date: %s %s, Temperature: %.1f°C, Humidity: %.1f%%, AC: %s, UPS: %s, Power: %.2fkW",
		r.ID,
		r.Date,
		r.Time,
		r.Temperature,
		r.Humidity,
		r.ACStatus,
		r.UPSStatus,
		r.PowerUsage)
}

// Copy returns a copy of the record
func (r *MonitoringRecord) Copy() *MonitoringRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// RecordPatch carries a partial update. Nil fields are left untouched.
type RecordPatch struct {
	Date             *string                 `json:"date,omitempty"`
	Time             *string                 `json:"time,omitempty"`
	Temperature      *float64                `json:"temperature,omitempty"`
	Humidity         *float64                `json:"humidity,omitempty"`
	ACStatus         *ACStatus               `json:"ac_status,omitempty"`
	UPSStatus        *UPSStatus              `json:"ups_status,omitempty"`
	RackCount        *int                    `json:"rack_count,omitempty"`
	ActiveServers    *int                    `json:"active_servers,omitempty"`
	PowerUsage       *float64                `json:"power_usage,omitempty"`
	FireExtinguisher *FireExtinguisherStatus `json:"fire_extinguisher,omitempty"`
	Notes            *string                 `json:"notes,omitempty"`
}

// Apply returns a copy of r with the patch merged in
func (p *RecordPatch) Apply(r *MonitoringRecord) *MonitoringRecord {
	out := r.Copy()
	if p == nil {
		return out
	}
	if p.Date != nil {
		out.Date = strings.TrimSpace(*p.Date)
	}
	if p.Time != nil {
		out.Time = strings.TrimSpace(*p.Time)
	}
	if p.Temperature != nil {
		out.Temperature = *p.Temperature
	}
	if p.Humidity != nil {
		out.Humidity = *p.Humidity
	}
	if p.ACStatus != nil {
		out.ACStatus = *p.ACStatus
	}
	if p.UPSStatus != nil {
		out.UPSStatus = *p.UPSStatus
	}
	if p.RackCount != nil {
		out.RackCount = *p.RackCount
	}
	if p.ActiveServers != nil {
		out.ActiveServers = *p.ActiveServers
	}
	if p.PowerUsage != nil {
		out.PowerUsage = *p.PowerUsage
	}
	if p.FireExtinguisher != nil {
		out.FireExtinguisher = *p.FireExtinguisher
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	return out
}

// SortNewestFirst orders records by descending (date, time).
// The sort is stable so callers control how ties resolve.
func SortNewestFirst(records []*MonitoringRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].Time > records[j].Time
	})
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// DisplayDate formats a YYYY-MM-DD date as "2 January 2006". Unparseable
// input is returned unchanged.
func DisplayDate(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(DisplayDateLayout)
}
