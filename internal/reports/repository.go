package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines data access for the reporting engine
type Repository interface {
	// Report definitions
	CreateDefinition(ctx context.Context, def *ReportDefinition) error
	GetDefinition(ctx context.Context, id uuid.UUID) (*ReportDefinition, error)
	GetSystemDefinitionByName(ctx context.Context, name string) (*ReportDefinition, error)
	ListDefinitions(ctx context.Context, filters *ReportListFilters) ([]*ReportDefinition, int, error)
	UpdateDefinition(ctx context.Context, def *ReportDefinition) error
	DeleteDefinition(ctx context.Context, id uuid.UUID) error

	// Executions
	CreateExecution(ctx context.Context, exec *ReportExecution) error
	FinalizeExecution(ctx context.Context, exec *ReportExecution) error
	GetExecution(ctx context.Context, id uuid.UUID) (*ReportExecution, error)
	ListExecutions(ctx context.Context, filters *ExecutionListFilters) ([]*ReportExecution, int, error)
	GetExpiredArtifacts(ctx context.Context) ([]*ReportExecution, error)
	ClearArtifact(ctx context.Context, id uuid.UUID) error

	// Schedules
	CreateSchedule(ctx context.Context, schedule *ReportSchedule) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*ReportSchedule, error)
	ListSchedules(ctx context.Context, filters *ScheduleListFilters) ([]*ReportSchedule, int, error)
	UpdateSchedule(ctx context.Context, schedule *ReportSchedule) error
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*ReportSchedule, error)
	RecordRunSuccess(ctx context.Context, id uuid.UUID, ranAt time.Time, nextRunAt time.Time) error
	RecordRunFailure(ctx context.Context, id uuid.UUID, ranAt time.Time, runErr string, nextRunAt time.Time) error

	// Plan execution
	RunQuery(ctx context.Context, query string, args []interface{}) ([]map[string]interface{}, error)
	RunCount(ctx context.Context, query string, args []interface{}) (int, error)
}

// PostgresRepository implements Repository backed by PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// =====================================================
// Report Definitions
// =====================================================

const definitionColumns = `id, name, description, entity_type, primary_entity, joins, columns,
	filters, groupings, date_field, default_date_range, chart_options,
	is_public, is_system, created_by, tenant_id, created_at, updated_at`

// CreateDefinition creates a new report definition
func (r *PostgresRepository) CreateDefinition(ctx context.Context, def *ReportDefinition) error {
	query := `
		INSERT INTO report_definitions (` + definitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.ExecContext(ctx, query,
		def.ID, def.Name, def.Description, def.EntityType, def.PrimaryEntity,
		def.Joins, def.Columns, def.Filters, def.Groupings,
		def.DateField, def.DefaultDateRange, def.ChartOptions,
		def.IsPublic, def.IsSystem, def.CreatedBy, def.TenantID,
		def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create report definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a report definition by ID
func (r *PostgresRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*ReportDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM report_definitions WHERE id = $1`

	var def ReportDefinition
	if err := r.db.GetContext(ctx, &def, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report definition %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get report definition: %w", err)
	}
	return &def, nil
}

// GetSystemDefinitionByName retrieves a system report by its name. Used by
// the idempotent seeding path.
func (r *PostgresRepository) GetSystemDefinitionByName(ctx context.Context, name string) (*ReportDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM report_definitions WHERE name = $1 AND is_system = true`

	var def ReportDefinition
	if err := r.db.GetContext(ctx, &def, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("system report %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get system report: %w", err)
	}
	return &def, nil
}

// ListDefinitions lists report definitions with filtering and pagination
func (r *PostgresRepository) ListDefinitions(ctx context.Context, filters *ReportListFilters) ([]*ReportDefinition, int, error) {
	var conditions []string
	var args []interface{}
	argCount := 0

	if filters.EntityType != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", argCount))
		args = append(args, *filters.EntityType)
	}
	if filters.IsPublic != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("is_public = $%d", argCount))
		args = append(args, *filters.IsPublic)
	}
	if filters.IsSystem != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("is_system = $%d", argCount))
		args = append(args, *filters.IsSystem)
	}
	if filters.CreatedBy != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", argCount))
		args = append(args, *filters.CreatedBy)
	}
	if filters.SearchTerm != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argCount))
		args = append(args, "%"+*filters.SearchTerm+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM report_definitions" + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count report definitions: %w", err)
	}

	page, pageSize := normalizePage(filters.Page, filters.PageSize)
	query := fmt.Sprintf(`SELECT `+definitionColumns+` FROM report_definitions%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, whereClause, argCount+1, argCount+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var defs []*ReportDefinition
	if err := r.db.SelectContext(ctx, &defs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list report definitions: %w", err)
	}
	return defs, total, nil
}

// UpdateDefinition updates a report definition. The primary entity column
// is deliberately not part of the SET list.
func (r *PostgresRepository) UpdateDefinition(ctx context.Context, def *ReportDefinition) error {
	query := `
		UPDATE report_definitions
		SET name = $2, description = $3, joins = $4, columns = $5, filters = $6,
		    groupings = $7, date_field = $8, default_date_range = $9,
		    chart_options = $10, is_public = $11, updated_at = $12
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		def.ID, def.Name, def.Description, def.Joins, def.Columns, def.Filters,
		def.Groupings, def.DateField, def.DefaultDateRange,
		def.ChartOptions, def.IsPublic, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update report definition: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("report definition %s: %w", def.ID, ErrNotFound)
	}
	return nil
}

// DeleteDefinition deletes a report definition
func (r *PostgresRepository) DeleteDefinition(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM report_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report definition: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("report definition %s: %w", id, ErrNotFound)
	}
	return nil
}

// =====================================================
// Executions
// =====================================================

const executionColumns = `id, report_id, schedule_id, status, trigger_type, triggered_by,
	parameters, row_count, file_path, file_size_bytes, result_preview,
	error_message, error_detail, started_at, completed_at, duration_ms, created_at`

// CreateExecution inserts a new execution record
func (r *PostgresRepository) CreateExecution(ctx context.Context, exec *ReportExecution) error {
	query := `
		INSERT INTO report_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.ExecContext(ctx, query,
		exec.ID, exec.ReportID, exec.ScheduleID, exec.Status, exec.TriggerType,
		exec.TriggeredBy, exec.Parameters, exec.RowCount, exec.FilePath,
		exec.FileSizeBytes, exec.ResultPreview, exec.ErrorMessage, exec.ErrorDetail,
		exec.StartedAt, exec.CompletedAt, exec.DurationMs, exec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// FinalizeExecution writes the one and only finalization of an execution
// record. The status guard makes a second finalization an error instead of
// an overwrite.
func (r *PostgresRepository) FinalizeExecution(ctx context.Context, exec *ReportExecution) error {
	query := `
		UPDATE report_executions
		SET status = $2, row_count = $3, file_path = $4, file_size_bytes = $5,
		    result_preview = $6, error_message = $7, error_detail = $8,
		    completed_at = $9, duration_ms = $10
		WHERE id = $1 AND status = 'running'`

	result, err := r.db.ExecContext(ctx, query,
		exec.ID, exec.Status, exec.RowCount, exec.FilePath, exec.FileSizeBytes,
		exec.ResultPreview, exec.ErrorMessage, exec.ErrorDetail,
		exec.CompletedAt, exec.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to finalize execution: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("execution %s is not running, refusing second finalization", exec.ID)
	}
	return nil
}

// GetExecution retrieves an execution by ID
func (r *PostgresRepository) GetExecution(ctx context.Context, id uuid.UUID) (*ReportExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM report_executions WHERE id = $1`

	var exec ReportExecution
	if err := r.db.GetContext(ctx, &exec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return &exec, nil
}

// ListExecutions lists executions with filtering and pagination
func (r *PostgresRepository) ListExecutions(ctx context.Context, filters *ExecutionListFilters) ([]*ReportExecution, int, error) {
	var conditions []string
	var args []interface{}
	argCount := 0

	if filters.ReportID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("report_id = $%d", argCount))
		args = append(args, *filters.ReportID)
	}
	if filters.ScheduleID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("schedule_id = $%d", argCount))
		args = append(args, *filters.ScheduleID)
	}
	if filters.Status != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filters.Status)
	}
	if filters.TriggeredBy != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("triggered_by = $%d", argCount))
		args = append(args, *filters.TriggeredBy)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM report_executions" + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	page, pageSize := normalizePage(filters.Page, filters.PageSize)
	query := fmt.Sprintf(`SELECT `+executionColumns+` FROM report_executions%s
		ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, whereClause, argCount+1, argCount+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var execs []*ReportExecution
	if err := r.db.SelectContext(ctx, &execs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	return execs, total, nil
}

// GetExpiredArtifacts returns executions whose stored artifact has outlived
// the owning schedule's retention period
func (r *PostgresRepository) GetExpiredArtifacts(ctx context.Context) ([]*ReportExecution, error) {
	query := `
		SELECT e.id, e.report_id, e.schedule_id, e.status, e.trigger_type, e.triggered_by,
		       e.parameters, e.row_count, e.file_path, e.file_size_bytes, e.result_preview,
		       e.error_message, e.error_detail, e.started_at, e.completed_at, e.duration_ms, e.created_at
		FROM report_executions e
		JOIN report_schedules s ON s.id = e.schedule_id
		WHERE s.retention_days > 0
		  AND e.file_path IS NOT NULL
		  AND e.completed_at < NOW() - (s.retention_days * INTERVAL '1 day')`

	var execs []*ReportExecution
	if err := r.db.SelectContext(ctx, &execs, query); err != nil {
		return nil, fmt.Errorf("failed to list expired artifacts: %w", err)
	}
	return execs, nil
}

// ClearArtifact removes the artifact reference from an execution after the
// underlying file is purged
func (r *PostgresRepository) ClearArtifact(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE report_executions SET file_path = NULL, file_size_bytes = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to clear artifact: %w", err)
	}
	return nil
}

// =====================================================
// Schedules
// =====================================================

const scheduleColumns = `id, report_id, name, is_active, cadence, time_of_day, day_of_week,
	day_of_month, timezone, cron_expression, delivery_method, format,
	delivery_config, date_range, retention_days, last_run_at, last_run_status,
	last_run_error, next_run_at, total_runs, failed_runs, created_by,
	created_at, updated_at`

// CreateSchedule creates a new report schedule
func (r *PostgresRepository) CreateSchedule(ctx context.Context, schedule *ReportSchedule) error {
	query := `
		INSERT INTO report_schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24)`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID, schedule.ReportID, schedule.Name, schedule.IsActive,
		schedule.Cadence, schedule.TimeOfDay, schedule.DayOfWeek, schedule.DayOfMonth,
		schedule.Timezone, schedule.CronExpression, schedule.DeliveryMethod,
		schedule.Format, schedule.DeliveryConfig, schedule.DateRange,
		schedule.RetentionDays, schedule.LastRunAt, schedule.LastRunStatus,
		schedule.LastRunError, schedule.NextRunAt, schedule.TotalRuns,
		schedule.FailedRuns, schedule.CreatedBy, schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID
func (r *PostgresRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*ReportSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM report_schedules WHERE id = $1`

	var schedule ReportSchedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

// ListSchedules lists schedules with filtering and pagination
func (r *PostgresRepository) ListSchedules(ctx context.Context, filters *ScheduleListFilters) ([]*ReportSchedule, int, error) {
	var conditions []string
	var args []interface{}
	argCount := 0

	if filters.ReportID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("report_id = $%d", argCount))
		args = append(args, *filters.ReportID)
	}
	if filters.IsActive != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argCount))
		args = append(args, *filters.IsActive)
	}
	if filters.DeliveryMethod != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("delivery_method = $%d", argCount))
		args = append(args, *filters.DeliveryMethod)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM report_schedules" + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count schedules: %w", err)
	}

	page, pageSize := normalizePage(filters.Page, filters.PageSize)
	query := fmt.Sprintf(`SELECT `+scheduleColumns+` FROM report_schedules%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, whereClause, argCount+1, argCount+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var schedules []*ReportSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, total, nil
}

// UpdateSchedule updates a schedule's configuration and its materialized
// next-run timestamp
func (r *PostgresRepository) UpdateSchedule(ctx context.Context, schedule *ReportSchedule) error {
	query := `
		UPDATE report_schedules
		SET name = $2, is_active = $3, cadence = $4, time_of_day = $5, day_of_week = $6,
		    day_of_month = $7, timezone = $8, cron_expression = $9, delivery_method = $10,
		    format = $11, delivery_config = $12, date_range = $13, retention_days = $14,
		    next_run_at = $15, updated_at = $16
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		schedule.ID, schedule.Name, schedule.IsActive, schedule.Cadence,
		schedule.TimeOfDay, schedule.DayOfWeek, schedule.DayOfMonth, schedule.Timezone,
		schedule.CronExpression, schedule.DeliveryMethod, schedule.Format,
		schedule.DeliveryConfig, schedule.DateRange, schedule.RetentionDays,
		schedule.NextRunAt, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("schedule %s: %w", schedule.ID, ErrNotFound)
	}
	return nil
}

// DeleteSchedule deletes a schedule
func (r *PostgresRepository) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM report_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetDueSchedules returns active schedules whose materialized next-run
// timestamp has passed
func (r *PostgresRepository) GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*ReportSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM report_schedules
		WHERE is_active = true AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT $2`

	var schedules []*ReportSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to get due schedules: %w", err)
	}
	return schedules, nil
}

// RecordRunSuccess persists the bookkeeping for a successful run. The new
// next-run timestamp is written in the same statement so a restart between
// run and update cannot double-fire the schedule.
func (r *PostgresRepository) RecordRunSuccess(ctx context.Context, id uuid.UUID, ranAt time.Time, nextRunAt time.Time) error {
	query := `
		UPDATE report_schedules
		SET last_run_at = $2, last_run_status = 'success', last_run_error = NULL,
		    total_runs = total_runs + 1, next_run_at = $3, updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, ranAt, nextRunAt); err != nil {
		return fmt.Errorf("failed to record schedule success: %w", err)
	}
	return nil
}

// RecordRunFailure persists the bookkeeping for a failed run. The next-run
// timestamp still advances so one failure never wedges a schedule.
func (r *PostgresRepository) RecordRunFailure(ctx context.Context, id uuid.UUID, ranAt time.Time, runErr string, nextRunAt time.Time) error {
	query := `
		UPDATE report_schedules
		SET last_run_at = $2, last_run_status = 'failed', last_run_error = $3,
		    total_runs = total_runs + 1, failed_runs = failed_runs + 1,
		    next_run_at = $4, updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, ranAt, runErr, nextRunAt); err != nil {
		return fmt.Errorf("failed to record schedule failure: %w", err)
	}
	return nil
}

// =====================================================
// Plan execution
// =====================================================

// RunQuery executes a planned query and scans every row into a generic map
// keyed by result column alias
func (r *PostgresRepository) RunQuery(ctx context.Context, query string, args []interface{}) ([]map[string]interface{}, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			row[col] = val
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return results, nil
}

// RunCount executes a count query
func (r *PostgresRepository) RunCount(ctx context.Context, query string, args []interface{}) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return count, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
