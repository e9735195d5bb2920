// Package export renders shaped report results into downloadable
// artifacts. It is deliberately independent of the report engine: it sees
// only labeled columns and label-keyed rows.
package export

import (
	"fmt"
)

// Column is one labeled result column in declaration order
type Column struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Result is the renderable form of a report run
type Result struct {
	Columns []Column
	Rows    []map[string]interface{}
}

// Supported artifact formats
const (
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatExcel = "xlsx"
	FormatPDF   = "pdf"
)

// Render serializes a result in the requested format
func Render(format string, result Result) ([]byte, error) {
	switch format {
	case FormatCSV:
		return renderCSV(result)
	case FormatJSON:
		return renderJSON(result)
	case FormatExcel:
		return renderExcel(result)
	case FormatPDF:
		return renderPDF(result)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// FileName names an artifact after the execution that produced it, so the
// download path needs nothing but the execution id
func FileName(executionID, format string) string {
	return fmt.Sprintf("%s.%s", executionID, format)
}

// cell renders one value for text-oriented formats; absent cells become
// empty strings
func cell(row map[string]interface{}, label string) string {
	val, ok := row[label]
	if !ok || val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}
