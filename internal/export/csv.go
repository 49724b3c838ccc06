package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes a header line and one line per row
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.Strings()); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", row.No, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
