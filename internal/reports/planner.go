package reports

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/catalog"
)

// PlanOptions are the runtime overrides applied on top of a definition
type PlanOptions struct {
	StartDate *time.Time
	EndDate   *time.Time
	// Filters are ad-hoc equality predicates for drill-down, keyed by
	// field reference
	Filters  map[string]interface{}
	Page     int
	PageSize int
}

// PlanColumn is one projected column of a validated plan
type PlanColumn struct {
	Spec  ReportColumn
	Expr  string
	Alias string
}

// QueryPlan is the validated, executable form of a report definition.
// Every predicate carries a numbered placeholder; literal values travel
// only in Args.
type QueryPlan struct {
	Primary    *catalog.Entity
	Columns    []PlanColumn
	Aggregates []PlanColumn
	joins      []string
	predicates []string
	Args       []interface{}
	groupBy    []string
	orderBy    []string
	Grouped    bool
	summary    bool
	Page       int
	PageSize   int
}

const defaultPageSize = 50

// BuildPlan validates a report definition plus runtime overrides against
// the entity catalog and produces an executable plan. All validation
// failures surface here as DefinitionError; nothing malformed reaches the
// data store.
func BuildPlan(def *ReportDefinition, opts PlanOptions) (*QueryPlan, error) {
	primary, err := catalog.Lookup(def.PrimaryEntity)
	if err != nil {
		return nil, wrapCatalogErr(err)
	}

	plan := &QueryPlan{
		Primary:  primary,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	}
	if plan.Page < 1 {
		plan.Page = 1
	}
	if plan.PageSize < 1 {
		plan.PageSize = defaultPageSize
	}

	// Declared relations become left joins so a missing related row never
	// drops the primary row.
	joined := map[string]*catalog.Entity{}
	for _, relName := range def.Joins {
		rel, err := primary.ResolveRelation(relName)
		if err != nil {
			return nil, wrapCatalogErr(err)
		}
		target, err := catalog.Lookup(rel.Target)
		if err != nil {
			return nil, wrapCatalogErr(err)
		}
		joined[relName] = target
		plan.joins = append(plan.joins, fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = %s.%s",
			target.Table, target.Alias, target.Alias, rel.ForeignKey, primary.Alias, rel.LocalKey))
	}

	resolveRef := func(ref string) (string, catalog.Field, error) {
		parts := strings.Split(ref, ".")
		switch len(parts) {
		case 1:
			field, err := primary.ResolveField(parts[0])
			if err != nil {
				return "", catalog.Field{}, wrapCatalogErr(err)
			}
			return primary.Alias, field, nil
		case 2:
			target, ok := joined[parts[0]]
			if !ok {
				return "", catalog.Field{}, definitionErr(CodeUnknownRelation, ref,
					"relation %q is not in the report's join set", parts[0])
			}
			field, err := target.ResolveField(parts[1])
			if err != nil {
				return "", catalog.Field{}, wrapCatalogErr(err)
			}
			return target.Alias, field, nil
		default:
			return "", catalog.Field{}, definitionErr(CodeInvalidColumn, ref,
				"field references support at most one relation hop")
		}
	}

	// Grouping keys resolve against the primary entity only; grouping on a
	// joined field would make aggregate semantics ambiguous.
	groupExprs := map[string]bool{}
	for _, g := range def.Groupings {
		if strings.Contains(g.Field, ".") {
			return nil, definitionErr(CodeInvalidGrouping, g.Field,
				"grouping is only supported on fields of the primary entity")
		}
		field, err := primary.ResolveField(g.Field)
		if err != nil {
			return nil, wrapCatalogErr(err)
		}
		if !field.Groupable {
			return nil, definitionErr(CodeInvalidGrouping, g.Field,
				"field %q is not groupable", g.Field)
		}
		expr := primary.Alias + "." + field.Column
		plan.groupBy = append(plan.groupBy, expr)
		groupExprs[expr] = true
	}
	plan.Grouped = len(plan.groupBy) > 0

	for i, col := range def.Columns {
		if !col.IsVisible {
			continue
		}
		tableAlias, field, err := resolveRef(col.Field)
		if err != nil {
			return nil, err
		}
		expr := tableAlias + "." + field.Column
		if col.Aggregate != nil {
			fn, err := col.Aggregate.SQLExpr()
			if err != nil {
				return nil, definitionErr(CodeInvalidColumn, col.Field, "%v", err)
			}
			expr = fmt.Sprintf("%s(%s)", fn, expr)
			plan.Aggregates = append(plan.Aggregates, PlanColumn{
				Spec:  col,
				Expr:  expr,
				Alias: fmt.Sprintf("agg_%d", len(plan.Aggregates)),
			})
		} else if plan.Grouped && !groupExprs[expr] {
			// Non-aggregated columns outside the group keys collapse with
			// MIN so a grouped query still yields one row per group.
			expr = fmt.Sprintf("MIN(%s)", expr)
		}
		plan.Columns = append(plan.Columns, PlanColumn{
			Spec:  col,
			Expr:  expr,
			Alias: fmt.Sprintf("col_%d", i),
		})
	}
	if len(plan.Columns) == 0 {
		return nil, definitionErr(CodeInvalidColumn, "", "report has no visible columns")
	}
	if len(plan.Aggregates) > 0 && !plan.Grouped {
		// Without group keys an aggregate query collapses to one row, so a
		// plain column alongside an aggregate has no well-defined value.
		for _, pc := range plan.Columns {
			if pc.Spec.Aggregate == nil {
				return nil, definitionErr(CodeInvalidGrouping, pc.Spec.Field,
					"column %q requires a grouping when combined with aggregated columns", pc.Spec.Field)
			}
		}
		plan.summary = true
	}

	// Inclusive date-range bound on the declared date field.
	if def.DateField != nil && *def.DateField != "" && (opts.StartDate != nil || opts.EndDate != nil) {
		tableAlias, field, err := resolveRef(*def.DateField)
		if err != nil {
			return nil, err
		}
		expr := tableAlias + "." + field.Column
		if opts.StartDate != nil {
			plan.addPredicate(expr+" >= $%d", *opts.StartDate)
		}
		if opts.EndDate != nil {
			plan.addPredicate(expr+" <= $%d", *opts.EndDate)
		}
	}

	for _, filter := range def.Filters {
		tableAlias, field, err := resolveRef(filter.Field)
		if err != nil {
			return nil, err
		}
		if !field.Filterable {
			return nil, definitionErr(CodeMalformedFilterValue, filter.Field,
				"field %q is not filterable", filter.Field)
		}
		if err := plan.applyFilter(tableAlias+"."+field.Column, filter); err != nil {
			return nil, err
		}
	}

	// Ad-hoc filters are additional equality predicates; keys are sorted
	// so placeholder numbering stays deterministic.
	adhocFields := make([]string, 0, len(opts.Filters))
	for fieldRef := range opts.Filters {
		adhocFields = append(adhocFields, fieldRef)
	}
	sort.Strings(adhocFields)
	for _, fieldRef := range adhocFields {
		tableAlias, field, err := resolveRef(fieldRef)
		if err != nil {
			return nil, err
		}
		plan.addPredicate(tableAlias+"."+field.Column+" = $%d", opts.Filters[fieldRef])
	}

	plan.buildOrdering(def, groupExprs)

	return plan, nil
}

func (p *QueryPlan) addPredicate(format string, value interface{}) {
	p.Args = append(p.Args, value)
	p.predicates = append(p.predicates, fmt.Sprintf(format, len(p.Args)))
}

// applyFilter matches the closed operator set explicitly. Each arm emits a
// parameterized predicate; an operator outside the set or a value of the
// wrong arity is rejected before any store call.
func (p *QueryPlan) applyFilter(expr string, filter ReportFilter) error {
	switch filter.Operator {
	case OperatorEquals:
		return p.scalarPredicate(expr+" = $%d", filter)
	case OperatorNotEquals:
		return p.scalarPredicate(expr+" <> $%d", filter)
	case OperatorGreaterThan:
		return p.scalarPredicate(expr+" > $%d", filter)
	case OperatorGreaterEqual:
		return p.scalarPredicate(expr+" >= $%d", filter)
	case OperatorLessThan:
		return p.scalarPredicate(expr+" < $%d", filter)
	case OperatorLessEqual:
		return p.scalarPredicate(expr+" <= $%d", filter)
	case OperatorLike:
		if _, ok := toSlice(filter.Value); ok {
			return definitionErr(CodeMalformedFilterValue, filter.Field,
				"operator %q requires a scalar value", filter.Operator)
		}
		p.addPredicate(expr+" ILIKE $%d", fmt.Sprintf("%%%v%%", filter.Value))
		return nil
	case OperatorIn:
		values, ok := toSlice(filter.Value)
		if !ok || len(values) == 0 {
			return definitionErr(CodeMalformedFilterValue, filter.Field,
				"operator %q requires a non-empty array", filter.Operator)
		}
		p.addPredicate(expr+" = ANY($%d)", pq.Array(values))
		return nil
	case OperatorNotIn:
		values, ok := toSlice(filter.Value)
		if !ok || len(values) == 0 {
			return definitionErr(CodeMalformedFilterValue, filter.Field,
				"operator %q requires a non-empty array", filter.Operator)
		}
		p.addPredicate(expr+" <> ALL($%d)", pq.Array(values))
		return nil
	case OperatorBetween:
		values, ok := toSlice(filter.Value)
		if !ok || len(values) != 2 {
			return definitionErr(CodeMalformedFilterValue, filter.Field,
				"operator %q requires exactly two values", filter.Operator)
		}
		p.addPredicate(expr+" >= $%d", values[0])
		p.addPredicate(expr+" <= $%d", values[1])
		return nil
	default:
		return definitionErr(CodeUnsupportedOperator, filter.Field,
			"unsupported operator %q", filter.Operator)
	}
}

func (p *QueryPlan) scalarPredicate(format string, filter ReportFilter) error {
	if _, ok := toSlice(filter.Value); ok {
		return definitionErr(CodeMalformedFilterValue, filter.Field,
			"operator %q requires a scalar value", filter.Operator)
	}
	p.addPredicate(format, filter.Value)
	return nil
}

// buildOrdering applies the declared sorts: columns with a direction in
// ascending sort priority, ties broken by declaration order, then a fixed
// tiebreak so pagination never duplicates or skips a row.
func (p *QueryPlan) buildOrdering(def *ReportDefinition, groupExprs map[string]bool) {
	type sortEntry struct {
		priority int
		clause   string
	}
	var entries []sortEntry
	for _, pc := range p.Columns {
		if pc.Spec.SortDirection == nil {
			continue
		}
		dir := "ASC"
		if *pc.Spec.SortDirection == SortDesc {
			dir = "DESC"
		}
		priority := int(^uint(0) >> 1)
		if pc.Spec.SortPriority != nil {
			priority = *pc.Spec.SortPriority
		}
		entries = append(entries, sortEntry{
			priority: priority,
			clause:   pc.Expr + " " + dir,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	for _, e := range entries {
		p.orderBy = append(p.orderBy, e.clause)
	}

	for i, g := range def.Groupings {
		if g.SortDirection == nil || i >= len(p.groupBy) {
			continue
		}
		dir := "ASC"
		if *g.SortDirection == SortDesc {
			dir = "DESC"
		}
		p.orderBy = append(p.orderBy, p.groupBy[i]+" "+dir)
	}

	if p.Grouped {
		for _, expr := range p.groupBy {
			p.orderBy = append(p.orderBy, expr+" ASC")
		}
	} else if !p.summary {
		// No tiebreak on summary plans: one row comes back, and the bare
		// primary key is not legal in an ungrouped aggregate query.
		p.orderBy = append(p.orderBy, p.Primary.Alias+"."+p.Primary.PrimaryKey+" ASC")
	}
}

// =====================================================
// SQL assembly
// =====================================================

func (p *QueryPlan) fromClause() string {
	var b strings.Builder
	b.WriteString("FROM ")
	b.WriteString(p.Primary.Table)
	b.WriteString(" ")
	b.WriteString(p.Primary.Alias)
	for _, join := range p.joins {
		b.WriteString(" ")
		b.WriteString(join)
	}
	return b.String()
}

func (p *QueryPlan) whereClause() string {
	if len(p.predicates) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.predicates, " AND ")
}

func (p *QueryPlan) groupClause() string {
	if len(p.groupBy) == 0 {
		return ""
	}
	return " GROUP BY " + strings.Join(p.groupBy, ", ")
}

func (p *QueryPlan) orderClause() string {
	if len(p.orderBy) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(p.orderBy, ", ")
}

func (p *QueryPlan) selectList() string {
	parts := make([]string, len(p.Columns))
	for i, pc := range p.Columns {
		parts[i] = pc.Expr + " AS " + pc.Alias
	}
	return strings.Join(parts, ", ")
}

// PageSQL returns the projected, ordered query for one page plus its
// argument list
func (p *QueryPlan) PageSQL() (string, []interface{}) {
	offset := (p.Page - 1) * p.PageSize
	sql := fmt.Sprintf("SELECT %s %s%s%s%s LIMIT $%d OFFSET $%d",
		p.selectList(), p.fromClause(), p.whereClause(), p.groupClause(), p.orderClause(),
		len(p.Args)+1, len(p.Args)+2)
	args := make([]interface{}, 0, len(p.Args)+2)
	args = append(args, p.Args...)
	args = append(args, p.PageSize, offset)
	return sql, args
}

// FullSQL returns the complete, unpaginated query for export
func (p *QueryPlan) FullSQL() (string, []interface{}) {
	sql := fmt.Sprintf("SELECT %s %s%s%s%s",
		p.selectList(), p.fromClause(), p.whereClause(), p.groupClause(), p.orderClause())
	return sql, p.Args
}

// CountSQL returns the row-count query over the same frozen predicates
func (p *QueryPlan) CountSQL() (string, []interface{}) {
	if p.Grouped {
		inner := fmt.Sprintf("SELECT %s %s%s%s",
			strings.Join(p.groupBy, ", "), p.fromClause(), p.whereClause(), p.groupClause())
		return fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_query", inner), p.Args
	}
	return fmt.Sprintf("SELECT COUNT(*) %s%s", p.fromClause(), p.whereClause()), p.Args
}

// SummarySQL returns the aggregate-only query: one row, one value per
// requested aggregate function, over the same predicates with no grouping.
// Empty when the plan carries no aggregates.
func (p *QueryPlan) SummarySQL() (string, []interface{}) {
	if len(p.Aggregates) == 0 {
		return "", nil
	}
	parts := make([]string, len(p.Aggregates))
	for i, pc := range p.Aggregates {
		parts[i] = pc.Expr + " AS " + pc.Alias
	}
	sql := fmt.Sprintf("SELECT %s %s%s", strings.Join(parts, ", "), p.fromClause(), p.whereClause())
	return sql, p.Args
}

// ColumnInfos describes the plan's visible columns by id, label and type
func (p *QueryPlan) ColumnInfos() []ColumnInfo {
	infos := make([]ColumnInfo, len(p.Columns))
	for i, pc := range p.Columns {
		infos[i] = ColumnInfo{ID: pc.Spec.ID, Label: pc.Spec.Label, Type: pc.Spec.Type}
	}
	return infos
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch vals := v.(type) {
	case []interface{}:
		return vals, true
	case []string:
		out := make([]interface{}, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(vals))
		for i, n := range vals {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(vals))
		for i, f := range vals {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func wrapCatalogErr(err error) error {
	var unknownEntity *catalog.UnknownEntityError
	if errors.As(err, &unknownEntity) {
		return definitionErr(CodeUnknownEntity, unknownEntity.Entity, "%v", err)
	}
	var unknownField *catalog.UnknownFieldError
	if errors.As(err, &unknownField) {
		return definitionErr(CodeUnknownField, unknownField.Field, "%v", err)
	}
	var unknownRelation *catalog.UnknownRelationError
	if errors.As(err, &unknownRelation) {
		return definitionErr(CodeUnknownRelation, unknownRelation.Relation, "%v", err)
	}
	return err
}
