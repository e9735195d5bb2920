package reports

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// QueryRunner is the slice of the repository the executor needs
type QueryRunner interface {
	RunQuery(ctx context.Context, query string, args []interface{}) ([]map[string]interface{}, error)
	RunCount(ctx context.Context, query string, args []interface{}) (int, error)
}

// Executor runs validated query plans and shapes the raw rows into
// presentation form
type Executor struct {
	runner QueryRunner
	logger *zap.Logger
}

// NewExecutor creates a plan executor
func NewExecutor(runner QueryRunner, logger *zap.Logger) *Executor {
	return &Executor{runner: runner, logger: logger}
}

// ResultSet is the shaped outcome of running a plan. Rows are keyed by
// column label; null values are omitted from each row.
type ResultSet struct {
	Columns    []ColumnInfo
	Rows       []map[string]interface{}
	Aggregates map[string]interface{}
	TotalRows  int
}

// RunPaginated executes the count query and one page of results
func (e *Executor) RunPaginated(ctx context.Context, plan *QueryPlan) (*ResultSet, error) {
	countSQL, countArgs := plan.CountSQL()
	total, err := e.runner.RunCount(ctx, countSQL, countArgs)
	if err != nil {
		return nil, &ExecutionError{Err: fmt.Errorf("count query: %w", err)}
	}

	pageSQL, pageArgs := plan.PageSQL()
	rawRows, err := e.runner.RunQuery(ctx, pageSQL, pageArgs)
	if err != nil {
		return nil, &ExecutionError{Err: fmt.Errorf("page query: %w", err)}
	}

	result := &ResultSet{
		Columns:   plan.ColumnInfos(),
		Rows:      e.shapeRows(plan, rawRows),
		TotalRows: total,
	}
	if err := e.attachAggregates(ctx, plan, result); err != nil {
		return nil, err
	}
	return result, nil
}

// RunFull executes the complete, unpaginated query for export
func (e *Executor) RunFull(ctx context.Context, plan *QueryPlan) (*ResultSet, error) {
	fullSQL, args := plan.FullSQL()
	rawRows, err := e.runner.RunQuery(ctx, fullSQL, args)
	if err != nil {
		return nil, &ExecutionError{Err: fmt.Errorf("full query: %w", err)}
	}

	result := &ResultSet{
		Columns:   plan.ColumnInfos(),
		Rows:      e.shapeRows(plan, rawRows),
		TotalRows: len(rawRows),
	}
	if err := e.attachAggregates(ctx, plan, result); err != nil {
		return nil, err
	}
	return result, nil
}

// attachAggregates runs the one-row summary query for grouped plans and
// keys each value by the aggregate column's label
func (e *Executor) attachAggregates(ctx context.Context, plan *QueryPlan, result *ResultSet) error {
	if !plan.Grouped || len(plan.Aggregates) == 0 {
		return nil
	}
	summarySQL, args := plan.SummarySQL()
	rows, err := e.runner.RunQuery(ctx, summarySQL, args)
	if err != nil {
		return &ExecutionError{Err: fmt.Errorf("summary query: %w", err)}
	}
	if len(rows) == 0 {
		return nil
	}
	result.Aggregates = make(map[string]interface{}, len(plan.Aggregates))
	for _, agg := range plan.Aggregates {
		if val, ok := rows[0][agg.Alias]; ok && val != nil {
			result.Aggregates[agg.Spec.Label] = formatValue(val, agg.Spec)
		}
	}
	return nil
}

// shapeRows remaps generated result aliases back to column labels and
// applies each column's display formatting. Null cells are dropped.
func (e *Executor) shapeRows(plan *QueryPlan, rawRows []map[string]interface{}) []map[string]interface{} {
	shaped := make([]map[string]interface{}, 0, len(rawRows))
	for _, raw := range rawRows {
		row := make(map[string]interface{}, len(plan.Columns))
		for _, pc := range plan.Columns {
			val, ok := raw[pc.Alias]
			if !ok || val == nil {
				continue
			}
			row[pc.Spec.Label] = formatValue(val, pc.Spec)
		}
		shaped = append(shaped, row)
	}
	return shaped
}

// formatValue applies a column's type and format hints to one cell
func formatValue(val interface{}, spec ReportColumn) interface{} {
	if spec.Format != nil {
		switch *spec.Format {
		case FormatCurrency:
			if f, ok := toFloat(val); ok {
				return fmt.Sprintf("$%.2f", f)
			}
		case FormatPercent:
			if f, ok := toFloat(val); ok {
				return fmt.Sprintf("%.2f%%", f*100)
			}
		}
		return val
	}
	if spec.Type == "date" {
		return formatDate(val)
	}
	return val
}

// formatDate truncates a timestamp cell to its calendar day
func formatDate(val interface{}) interface{} {
	switch v := val.(type) {
	case time.Time:
		return v.Format("2006-01-02")
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.Format("2006-01-02")
			}
		}
	}
	return val
}

func toFloat(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		// numeric columns arrive as strings from the driver
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
