package export

import (
	"encoding/json"
	"fmt"
	"time"
)

type jsonEnvelope struct {
	Columns    []Column                 `json:"columns"`
	Rows       []map[string]interface{} `json:"rows"`
	ExportedAt string                   `json:"exportedAt"`
	TotalRows  int                      `json:"totalRows"`
}

// renderJSON wraps the rows in a self-describing envelope
func renderJSON(result Result) ([]byte, error) {
	rows := result.Rows
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	envelope := jsonEnvelope{
		Columns:    result.Columns,
		Rows:       rows,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		TotalRows:  len(rows),
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json export: %w", err)
	}
	return data, nil
}
