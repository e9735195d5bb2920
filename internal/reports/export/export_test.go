package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() Result {
	return Result{
		Columns: []Column{
			{ID: "agent", Label: "Agent, Name"},
			{ID: "calls", Label: "Calls"},
		},
		Rows: []map[string]interface{}{
			{"Agent, Name": `Dana "Ace" Reyes`, "Calls": int64(37)},
			{"Agent, Name": "Lee\nNguyen", "Calls": int64(12)},
			{"Calls": int64(3)},
		},
	}
}

func TestRenderCSVQuoting(t *testing.T) {
	data, err := Render(FormatCSV, sampleResult())
	require.NoError(t, err)

	out := string(data)
	// Labels and cells with commas, quotes or newlines must be quoted.
	assert.Contains(t, out, `"Agent, Name",Calls`)
	assert.Contains(t, out, `"Dana ""Ace"" Reyes",37`)
	assert.Contains(t, out, "\"Lee\nNguyen\",12")
	// Absent cells render as empty fields.
	assert.Contains(t, out, ",3\n")
}

func TestRenderJSONEnvelope(t *testing.T) {
	data, err := Render(FormatJSON, sampleResult())
	require.NoError(t, err)

	var envelope struct {
		Columns    []Column                 `json:"columns"`
		Rows       []map[string]interface{} `json:"rows"`
		ExportedAt string                   `json:"exportedAt"`
		TotalRows  int                      `json:"totalRows"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))

	assert.Len(t, envelope.Columns, 2)
	assert.Equal(t, 3, envelope.TotalRows)
	assert.NotEmpty(t, envelope.ExportedAt)
	assert.Equal(t, `Dana "Ace" Reyes`, envelope.Rows[0]["Agent, Name"])
}

func TestRenderJSONEmptyResult(t *testing.T) {
	data, err := Render(FormatJSON, Result{Columns: []Column{{ID: "a", Label: "A"}}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rows": []`)
	assert.Contains(t, string(data), `"totalRows": 0`)
}

func TestRenderExcelProducesWorkbook(t *testing.T) {
	data, err := Render(FormatExcel, sampleResult())
	require.NoError(t, err)
	// xlsx files are zip archives.
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}

func TestRenderPDFProducesDocument(t *testing.T) {
	data, err := Render(FormatPDF, sampleResult())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestRenderUnsupportedFormat(t *testing.T) {
	_, err := Render("parquet", sampleResult())
	assert.Error(t, err)
}

func TestFileNameUsesExecutionID(t *testing.T) {
	assert.Equal(t, "3f2a.csv", FileName("3f2a", FormatCSV))
}
