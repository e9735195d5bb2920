package reports

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callReport(mutate func(*ReportDefinition)) *ReportDefinition {
	def := &ReportDefinition{
		Name:          "Call Detail",
		EntityType:    EntityTypeCalls,
		PrimaryEntity: "call",
		Columns: ColumnList{
			{ID: "created", Field: "createdAt", Label: "Created At", Type: "date", IsVisible: true},
			{ID: "status", Field: "status", Label: "Status", Type: "string", IsVisible: true},
			{ID: "duration", Field: "durationSeconds", Label: "Duration (s)", Type: "number", IsVisible: true},
		},
	}
	if mutate != nil {
		mutate(def)
	}
	return def
}

func assertDefinitionCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var de *DefinitionError
	require.True(t, errors.As(err, &de), "expected DefinitionError, got %v", err)
	assert.Equal(t, code, de.Code)
}

func TestBuildPlanBasic(t *testing.T) {
	plan, err := BuildPlan(callReport(nil), PlanOptions{})
	require.NoError(t, err)

	sql, args := plan.FullSQL()
	assert.Contains(t, sql, "FROM calls c")
	assert.Contains(t, sql, "c.created_at AS col_0")
	assert.Contains(t, sql, "c.status AS col_1")
	assert.NotContains(t, sql, "WHERE")
	assert.Empty(t, args)
	// Deterministic tiebreak keeps pagination stable.
	assert.Contains(t, sql, "ORDER BY c.id ASC")
}

func TestBuildPlanUnknownEntity(t *testing.T) {
	def := callReport(func(d *ReportDefinition) { d.PrimaryEntity = "invoices" })
	_, err := BuildPlan(def, PlanOptions{})
	assertDefinitionCode(t, err, CodeUnknownEntity)
}

func TestBuildPlanUnknownField(t *testing.T) {
	def := callReport(func(d *ReportDefinition) {
		d.Columns = append(d.Columns, ReportColumn{ID: "x", Field: "sentiment", Label: "Sentiment", IsVisible: true})
	})
	_, err := BuildPlan(def, PlanOptions{})
	assertDefinitionCode(t, err, CodeUnknownField)
}

func TestBuildPlanJoinedColumn(t *testing.T) {
	def := callReport(func(d *ReportDefinition) {
		d.Joins = StringList{"campaign"}
		d.Columns = append(d.Columns, ReportColumn{ID: "camp", Field: "campaign.name", Label: "Campaign Name", IsVisible: true})
	})
	plan, err := BuildPlan(def, PlanOptions{})
	require.NoError(t, err)

	sql, _ := plan.FullSQL()
	assert.Contains(t, sql, "LEFT JOIN campaigns cp ON cp.id = c.campaign_id")
	assert.Contains(t, sql, "cp.name AS col_3")
}

func TestBuildPlanColumnOutsideJoinSet(t *testing.T) {
	def := callReport(func(d *ReportDefinition) {
		d.Columns = append(d.Columns, ReportColumn{ID: "camp", Field: "campaign.name", Label: "Campaign Name", IsVisible: true})
	})
	_, err := BuildPlan(def, PlanOptions{})
	assertDefinitionCode(t, err, CodeUnknownRelation)
}

func TestBuildPlanDateRangeInclusive(t *testing.T) {
	dateField := "createdAt"
	def := callReport(func(d *ReportDefinition) { d.DateField = &dateField })

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC)
	plan, err := BuildPlan(def, PlanOptions{StartDate: &start, EndDate: &end})
	require.NoError(t, err)

	sql, args := plan.FullSQL()
	assert.Contains(t, sql, "c.created_at >= $1")
	assert.Contains(t, sql, "c.created_at <= $2")
	require.Len(t, args, 2)
	assert.Equal(t, start, args[0])
	assert.Equal(t, end, args[1])
}

func TestBuildPlanFilterValuesAreParameterized(t *testing.T) {
	def := callReport(func(d *ReportDefinition) {
		d.Filters = FilterList{
			{ID: "f1", Field: "status", Operator: OperatorEquals, Value: "completed'; DROP TABLE calls;--"},
		}
	})
	plan, err := BuildPlan(def, PlanOptions{})
	require.NoError(t, err)

	sql, args := plan.FullSQL()
	assert.Contains(t, sql, "c.status = $1")
	assert.NotContains(t, sql, "DROP TABLE")
	require.Len(t, args, 1)
}

func TestBuildPlanBetweenArity(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value interface{}
		valid bool
	}{
		{"one value", []interface{}{10}, false},
		{"two values", []interface{}{10, 20}, true},
		{"three values", []interface{}{10, 20, 30}, false},
		{"scalar", 10, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			def := callReport(func(d *ReportDefinition) {
				d.Filters = FilterList{{ID: "f1", Field: "durationSeconds", Operator: OperatorBetween, Value: tc.value}}
			})
			plan, err := BuildPlan(def, PlanOptions{})
			if tc.valid {
				require.NoError(t, err)
				sql, args := plan.FullSQL()
				assert.Contains(t, sql, "c.duration_seconds >= $1")
				assert.Contains(t, sql, "c.duration_seconds <= $2")
				assert.Len(t, args, 2)
			} else {
				assertDefinitionCode(t, err, CodeMalformedFilterValue)
			}
		})
	}
}

func TestBuildPlanInRequiresNonEmptyArray(t *testing.T) {
	for _, op := range []FilterOperator{OperatorIn, OperatorNotIn} {
		def := callReport(func(d *ReportDefinition) {
			d.Filters = FilterList{{ID: "f1", Field: "status", Operator: op, Value: []interface{}{}}}
		})
		_, err := BuildPlan(def, PlanOptions{})
		assertDefinitionCode(t, err, CodeMalformedFilterValue)
	}
}

func TestBuildPlanScalarOperatorRejectsArray(t *testing.T) {
	def := callReport(func(d *ReportDefinition) {
		d.Filters = FilterList{{ID: "f1", Field: "status", Operator: OperatorEquals, Value: []interface{}{"a", "b"}}}
	})
	_, err := BuildPlan(def, PlanOptions{})
	assertDefinitionCode(t, err, CodeMalformedFilterValue)
}

func TestBuildPlanUnsupportedOperator(t *testing.T) {
	def := callReport(func(d *ReportDefinition) {
		d.Filters = FilterList{{ID: "f1", Field: "status", Operator: FilterOperator("regex"), Value: ".*"}}
	})
	_, err := BuildPlan(def, PlanOptions{})
	assertDefinitionCode(t, err, CodeUnsupportedOperator)
}

func TestBuildPlanAdHocFiltersDeterministic(t *testing.T) {
	def := callReport(nil)
	opts := PlanOptions{Filters: map[string]interface{}{
		"status":     "completed",
		"campaignId": "abc",
		"direction":  "outbound",
	}}

	first, err := BuildPlan(def, opts)
	require.NoError(t, err)
	second, err := BuildPlan(def, opts)
	require.NoError(t, err)

	firstSQL, _ := first.FullSQL()
	secondSQL, _ := second.FullSQL()
	assert.Equal(t, firstSQL, secondSQL)
	// Sorted by field reference: campaignId, direction, status.
	assert.Contains(t, firstSQL, "c.campaign_id = $1")
	assert.Contains(t, firstSQL, "c.direction = $2")
	assert.Contains(t, firstSQL, "c.status = $3")
}

func TestBuildPlanGrouped(t *testing.T) {
	agg := AggregateCount
	def := callReport(func(d *ReportDefinition) {
		d.Columns = ColumnList{
			{ID: "camp", Field: "campaignId", Label: "Campaign", Type: "string", IsVisible: true},
			{ID: "calls", Field: "id", Label: "Call Count", Type: "number", Aggregate: &agg, IsVisible: true},
			{ID: "created", Field: "createdAt", Label: "Created At", Type: "date", IsVisible: true},
		}
		d.Groupings = GroupingList{{Field: "campaignId", Label: "Campaign"}}
	})
	plan, err := BuildPlan(def, PlanOptions{})
	require.NoError(t, err)
	assert.True(t, plan.Grouped)

	sql, _ := plan.FullSQL()
	assert.Contains(t, sql, "GROUP BY c.campaign_id")
	assert.Contains(t, sql, "COUNT(c.id) AS col_1")
	// Non-aggregated columns outside the group keys collapse to one row.
	assert.Contains(t, sql, "MIN(c.created_at) AS col_2")
	// The group key itself stays bare.
	assert.Contains(t, sql, "c.campaign_id AS col_0")

	countSQL, _ := plan.CountSQL()
	assert.True(t, strings.HasPrefix(countSQL, "SELECT COUNT(*) FROM (SELECT"))
	assert.Contains(t, countSQL, "AS count_query")
}

func TestBuildPlanUngroupedAggregateSummary(t *testing.T) {
	agg := AggregateCount
	def := callReport(func(d *ReportDefinition) {
		d.Columns = ColumnList{
			{ID: "calls", Field: "id", Label: "Total Calls", Type: "number", Aggregate: &agg, IsVisible: true},
		}
	})
	plan, err := BuildPlan(def, PlanOptions{})
	require.NoError(t, err)
	assert.False(t, plan.Grouped)

	sql, _ := plan.FullSQL()
	assert.Contains(t, sql, "COUNT(c.id) AS col_0")
	// An ungrouped aggregate query collapses to one row; a bare primary-key
	// tiebreak would be rejected by the store.
	assert.NotContains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "c.id ASC")
}

func TestBuildPlanUngroupedAggregateWithPlainColumnRejected(t *testing.T) {
	agg := AggregateCount
	def := callReport(func(d *ReportDefinition) {
		d.Columns = ColumnList{
			{ID: "calls", Field: "id", Label: "Total Calls", Type: "number", Aggregate: &agg, IsVisible: true},
			{ID: "status", Field: "status", Label: "Status", Type: "string", IsVisible: true},
		}
	})
	_, err := BuildPlan(def, PlanOptions{})
	assertDefinitionCode(t, err, CodeInvalidGrouping)
}

func TestBuildPlanGroupingOnJoinedFieldRejected(t *testing.T) {
	def := callReport(func(d *ReportDefinition) {
		d.Joins = StringList{"campaign"}
		d.Groupings = GroupingList{{Field: "campaign.name", Label: "Campaign"}}
	})
	_, err := BuildPlan(def, PlanOptions{})
	assertDefinitionCode(t, err, CodeInvalidGrouping)
}

func TestBuildPlanOrderingPriorityThenDeclaration(t *testing.T) {
	asc := SortAsc
	desc := SortDesc
	one := 1
	two := 2
	def := callReport(func(d *ReportDefinition) {
		d.Columns = ColumnList{
			{ID: "a", Field: "status", Label: "Status", IsVisible: true, SortDirection: &asc, SortPriority: &two},
			{ID: "b", Field: "createdAt", Label: "Created", IsVisible: true, SortDirection: &desc, SortPriority: &one},
			{ID: "c", Field: "direction", Label: "Direction", IsVisible: true, SortDirection: &asc},
		}
	})
	plan, err := BuildPlan(def, PlanOptions{})
	require.NoError(t, err)

	sql, _ := plan.FullSQL()
	idx := strings.Index(sql, "ORDER BY")
	require.GreaterOrEqual(t, idx, 0)
	order := sql[idx:]
	// Priority 1 first, then priority 2, then the unprioritized column,
	// then the stable tiebreak.
	assert.Equal(t, "ORDER BY c.created_at DESC, c.status ASC, c.direction ASC, c.id ASC", order)
}

func TestBuildPlanPageSQL(t *testing.T) {
	def := callReport(func(d *ReportDefinition) {
		d.Filters = FilterList{{ID: "f1", Field: "status", Operator: OperatorEquals, Value: "completed"}}
	})
	plan, err := BuildPlan(def, PlanOptions{Page: 3, PageSize: 25})
	require.NoError(t, err)

	sql, args := plan.PageSQL()
	assert.Contains(t, sql, "LIMIT $2 OFFSET $3")
	require.Len(t, args, 3)
	assert.Equal(t, 25, args[1])
	assert.Equal(t, 50, args[2])
}

func TestBuildPlanSummarySQL(t *testing.T) {
	sum := AggregateSum
	def := callReport(func(d *ReportDefinition) {
		d.Columns = append(d.Columns, ReportColumn{
			ID: "total", Field: "cost", Label: "Total Cost", Type: "number", Aggregate: &sum, IsVisible: true,
		})
		d.Groupings = GroupingList{{Field: "campaignId", Label: "Campaign"}}
	})
	plan, err := BuildPlan(def, PlanOptions{})
	require.NoError(t, err)

	sql, _ := plan.SummarySQL()
	assert.Contains(t, sql, "SUM(c.cost) AS agg_0")
	assert.NotContains(t, sql, "GROUP BY")
}

func TestBuildPlanHiddenColumnsExcluded(t *testing.T) {
	def := callReport(func(d *ReportDefinition) {
		d.Columns[1].IsVisible = false
	})
	plan, err := BuildPlan(def, PlanOptions{})
	require.NoError(t, err)

	sql, _ := plan.FullSQL()
	assert.NotContains(t, sql, "c.status AS")
	assert.Len(t, plan.Columns, 2)
}
