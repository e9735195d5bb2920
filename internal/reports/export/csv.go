package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// renderCSV writes a header row of column labels followed by one record
// per row. encoding/csv handles RFC 4180 quoting for commas, quotes and
// newlines inside cells.
func renderCSV(result Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col.Label
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i, col := range result.Columns {
			record[i] = cell(row, col.Label)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
