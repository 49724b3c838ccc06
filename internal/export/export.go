// Package export writes the record log as CSV, XLSX or PDF reports.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// Format is an export file type
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ErrUnknownFormat is returned for an unsupported export format
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts csv, xlsx (or excel) and pdf
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type served for the format
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// FileName returns monitoring_server_YYYY-MM-DD.<ext>
func FileName(f Format, now time.Time) string {
	return fmt.Sprintf("monitoring_server_%s.%s", now.Format(models.DateLayout), f)
}

// Row is one flattened, labelled report line
type Row struct {
	No               int
	Date             string
	Time             string
	Temperature      float64
	Humidity         float64
	AC               string
	UPS              string
	ActiveServers    int
	PowerUsage       float64
	FireExtinguisher string
	Notes            string

	// Short labels for the narrow PDF columns
	ACShort  string
	UPSShort string
}

// Rows flattens newest-first records into numbered report rows. With
// onePerDate only the newest record of each date is kept.
func Rows(records []*models.MonitoringRecord, onePerDate bool) []Row {
	seen := make(map[string]bool)
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		if onePerDate {
			if seen[r.Date] {
				continue
			}
			seen[r.Date] = true
		}

		notes := r.Notes
		if notes == "" {
			notes = "-"
		}
		rows = append(rows, Row{
			No:               len(rows) + 1,
			Date:             models.DisplayDate(r.Date),
			Time:             r.Time,
			Temperature:      r.Temperature,
			Humidity:         r.Humidity,
			AC:               r.ACStatus.Label(),
			UPS:              r.UPSStatus.Label(),
			ActiveServers:    r.ActiveServers,
			PowerUsage:       r.PowerUsage,
			FireExtinguisher: r.FireExtinguisher.Label(),
			Notes:            notes,
			ACShort:          acShort(r.ACStatus),
			UPSShort:         upsShort(r.UPSStatus),
		})
	}
	return rows
}

// Headers are the spreadsheet column titles
var Headers = []string{
	"No",
	"Date",
	"Time",
	"Temperature (°C)",
	"Humidity (%)",
	"AC Status",
	"UPS Status",
	"Active Servers",
	"Power (kW)",
	"Fire Extinguisher",
	"Notes",
}

// Strings returns the row as spreadsheet cells in Headers order
func (r Row) Strings() []string {
	return []string{
		strconv.Itoa(r.No),
		r.Date,
		r.Time,
		formatFloat(r.Temperature),
		formatFloat(r.Humidity),
		r.AC,
		r.UPS,
		strconv.Itoa(r.ActiveServers),
		formatFloat(r.PowerUsage),
		r.FireExtinguisher,
		r.Notes,
	}
}

// Write renders rows in the given format
func Write(w io.Writer, f Format, rows []Row, now time.Time) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, rows)
	case FormatPDF:
		return WritePDF(w, rows, now)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func acShort(s models.ACStatus) string {
	switch s {
	case models.ACNormal:
		return "Normal"
	case models.ACMaintenance:
		return "Mtn"
	default:
		return "Broken"
	}
}

func upsShort(s models.UPSStatus) string {
	switch s {
	case models.UPSNormal:
		return "Normal"
	case models.UPSLowBattery:
		return "Low"
	case models.UPSMaintenance:
		return "Mtn"
	default:
		return "Broken"
	}
}
