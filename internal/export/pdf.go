package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// ReportTitle heads the PDF report
const ReportTitle = "Server Room Monitoring Report"

type pdfColumn struct {
	title string
	width float64
	align string
	value func(Row) string
}

var pdfColumns = []pdfColumn{
	{"No", 10, "C", func(r Row) string { return strconv.Itoa(r.No) }},
	{"Date", 34, "L", func(r Row) string { return r.Date }},
	{"Time", 14, "C", func(r Row) string { return r.Time }},
	{"Temp", 16, "R", func(r Row) string { return formatFloat(r.Temperature) }},
	{"Humidity", 20, "R", func(r Row) string { return formatFloat(r.Humidity) }},
	{"AC", 18, "C", func(r Row) string { return r.ACShort }},
	{"UPS", 18, "C", func(r Row) string { return r.UPSShort }},
	{"Servers", 16, "R", func(r Row) string { return strconv.Itoa(r.ActiveServers) }},
	{"Power (kW)", 20, "R", func(r Row) string { return formatFloat(r.PowerUsage) }},
}

// WritePDF writes an A4 report: title, print date, a striped table with a
// blue header row repeated on every page, and a page counter footer
func WritePDF(w io.Writer, rows []Row, now time.Time) error {
	const (
		marginLeft = 14.0
		rowHeight  = 6.0
		pageBottom = 297.0 - 20.0
	)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginLeft, 14, marginLeft)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "L", false, 0, "")
	})

	header := func() {
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(37, 99, 235)
		pdf.SetTextColor(255, 255, 255)
		for _, col := range pdfColumns {
			pdf.CellFormat(col.width, rowHeight+1, col.title, "", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Text(marginLeft, 20, ReportTitle)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(marginLeft, 28, "Printed on: "+now.Format(models.DisplayDateLayout))
	pdf.SetY(35)
	header()

	for i, row := range rows {
		if pdf.GetY()+rowHeight > pageBottom {
			pdf.AddPage()
			header()
		}
		// Alternate rows are shaded
		fill := i%2 == 1
		pdf.SetFillColor(241, 245, 249)
		for _, col := range pdfColumns {
			pdf.CellFormat(col.width, rowHeight, tr(col.value(row)), "", 0, col.align, fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}
