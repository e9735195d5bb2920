package reports

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	rows     []map[string]interface{}
	summary  []map[string]interface{}
	count    int
	queries  []string
	countSQL string
}

func (f *fakeRunner) RunQuery(_ context.Context, query string, _ []interface{}) ([]map[string]interface{}, error) {
	f.queries = append(f.queries, query)
	if strings.HasPrefix(query, "SELECT SUM") || strings.HasPrefix(query, "SELECT COUNT(c.id) AS agg_0") {
		return f.summary, nil
	}
	return f.rows, nil
}

func (f *fakeRunner) RunCount(_ context.Context, query string, _ []interface{}) (int, error) {
	f.countSQL = query
	return f.count, nil
}

func TestRunPaginatedKeysRowsByLabel(t *testing.T) {
	def := callReport(nil)
	plan, err := BuildPlan(def, PlanOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)

	runner := &fakeRunner{
		count: 42,
		rows: []map[string]interface{}{
			{"col_0": time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC), "col_1": "completed", "col_2": int64(182)},
		},
	}
	exec := NewExecutor(runner, zap.NewNop())

	result, err := exec.RunPaginated(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 42, result.TotalRows)
	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	assert.Equal(t, "2026-03-14", row["Created At"])
	assert.Equal(t, "completed", row["Status"])
	assert.Equal(t, int64(182), row["Duration (s)"])
	assert.Contains(t, runner.countSQL, "SELECT COUNT(*)")
}

func TestRunPaginatedOmitsNullCells(t *testing.T) {
	def := callReport(nil)
	plan, err := BuildPlan(def, PlanOptions{})
	require.NoError(t, err)

	runner := &fakeRunner{
		count: 1,
		rows: []map[string]interface{}{
			{"col_0": time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "col_1": nil, "col_2": int64(5)},
		},
	}
	result, err := NewExecutor(runner, zap.NewNop()).RunPaginated(context.Background(), plan)
	require.NoError(t, err)

	row := result.Rows[0]
	_, present := row["Status"]
	assert.False(t, present)
	assert.Equal(t, int64(5), row["Duration (s)"])
}

func TestRunFullAttachesSummaryAggregates(t *testing.T) {
	agg := AggregateSum
	cur := FormatCurrency
	def := callReport(func(d *ReportDefinition) {
		d.Columns = ColumnList{
			{ID: "c1", Field: "campaignId", Label: "Campaign", Type: "string", IsVisible: true},
			{ID: "c2", Field: "cost", Label: "Total Cost", Type: "number", Aggregate: &agg, Format: &cur, IsVisible: true},
		}
		d.Groupings = GroupingList{{Field: "campaignId", Label: "Campaign"}}
	})
	plan, err := BuildPlan(def, PlanOptions{})
	require.NoError(t, err)

	runner := &fakeRunner{
		rows: []map[string]interface{}{
			{"col_0": "f2b6", "col_1": "12.5"},
		},
		summary: []map[string]interface{}{
			{"agg_0": "137.905"},
		},
	}
	result, err := NewExecutor(runner, zap.NewNop()).RunFull(context.Background(), plan)
	require.NoError(t, err)

	require.NotNil(t, result.Aggregates)
	assert.Equal(t, "$137.91", result.Aggregates["Total Cost"])
	assert.Equal(t, "$12.50", result.Rows[0]["Total Cost"])
	assert.Equal(t, 1, result.TotalRows)
}

func TestFormatValueCurrencyAndPercent(t *testing.T) {
	cur := FormatCurrency
	pct := FormatPercent

	assert.Equal(t, "$3.50", formatValue(3.5, ReportColumn{Format: &cur}))
	assert.Equal(t, "$10.00", formatValue(int64(10), ReportColumn{Format: &cur}))
	assert.Equal(t, "$0.25", formatValue("0.249999", ReportColumn{Format: &cur, Type: "number"}))
	assert.Equal(t, "87.50%", formatValue(0.875, ReportColumn{Format: &pct}))
	// non-numeric cells pass through untouched
	assert.Equal(t, "n/a", formatValue("n/a", ReportColumn{Format: &cur}))
}

func TestFormatDateTruncatesDriverStrings(t *testing.T) {
	assert.Equal(t, "2026-07-09", formatDate("2026-07-09T23:59:59Z"))
	assert.Equal(t, "2026-07-09", formatDate("2026-07-09 23:59:59"))
	assert.Equal(t, "2026-07-09", formatDate(time.Date(2026, 7, 9, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, "not a date", formatDate("not a date"))
}
