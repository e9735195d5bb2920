package reports

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =====================================================
// Enums and Constants
// =====================================================

// EntityType tags a report definition with the domain area it covers
type EntityType string

const (
	EntityTypeCalls        EntityType = "calls"
	EntityTypeCampaigns    EntityType = "campaigns"
	EntityTypeLeads        EntityType = "leads"
	EntityTypeAgents       EntityType = "agents"
	EntityTypeDispositions EntityType = "dispositions"
	EntityTypeCustom       EntityType = "custom"
)

// ExportFormat represents supported export formats
type ExportFormat string

const (
	ExportFormatCSV   ExportFormat = "csv"
	ExportFormatJSON  ExportFormat = "json"
	ExportFormatExcel ExportFormat = "xlsx"
	ExportFormatPDF   ExportFormat = "pdf"
)

// DeliveryMethod represents scheduled report delivery methods
type DeliveryMethod string

const (
	DeliveryMethodEmail   DeliveryMethod = "email"
	DeliveryMethodWebhook DeliveryMethod = "webhook"
	DeliveryMethodSFTP    DeliveryMethod = "sftp"
	DeliveryMethodStorage DeliveryMethod = "storage"
)

// ExecutionStatus represents the status of a report execution
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// TriggerType records what initiated an execution
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeScheduled TriggerType = "scheduled"
	TriggerTypeAPI       TriggerType = "api"
)

// ScheduleCadence is the closed set of recurrence patterns
type ScheduleCadence string

const (
	CadenceDaily     ScheduleCadence = "daily"
	CadenceWeekly    ScheduleCadence = "weekly"
	CadenceMonthly   ScheduleCadence = "monthly"
	CadenceQuarterly ScheduleCadence = "quarterly"
)

// AggregateFunc represents the supported aggregation functions
type AggregateFunc string

const (
	AggregateCount AggregateFunc = "count"
	AggregateSum   AggregateFunc = "sum"
	AggregateAvg   AggregateFunc = "avg"
	AggregateMin   AggregateFunc = "min"
	AggregateMax   AggregateFunc = "max"
)

// SQLExpr returns the SQL function name for an aggregate, or an error for
// anything outside the closed set
func (a AggregateFunc) SQLExpr() (string, error) {
	switch a {
	case AggregateCount:
		return "COUNT", nil
	case AggregateSum:
		return "SUM", nil
	case AggregateAvg:
		return "AVG", nil
	case AggregateMin:
		return "MIN", nil
	case AggregateMax:
		return "MAX", nil
	default:
		return "", fmt.Errorf("unsupported aggregate function %q", string(a))
	}
}

// ColumnFormat is an optional display format hint for a column
type ColumnFormat string

const (
	FormatCurrency ColumnFormat = "currency"
	FormatPercent  ColumnFormat = "percent"
)

// FilterOperator represents the closed set of filter comparison operators
type FilterOperator string

const (
	OperatorEquals       FilterOperator = "eq"
	OperatorNotEquals    FilterOperator = "neq"
	OperatorGreaterThan  FilterOperator = "gt"
	OperatorGreaterEqual FilterOperator = "gte"
	OperatorLessThan     FilterOperator = "lt"
	OperatorLessEqual    FilterOperator = "lte"
	OperatorIn           FilterOperator = "in"
	OperatorNotIn        FilterOperator = "not_in"
	OperatorLike         FilterOperator = "like"
	OperatorBetween      FilterOperator = "between"
)

// SortDirection for column ordering
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// =====================================================
// JSON Types for JSONB columns
// =====================================================

// JSONB is a wrapper for JSONB columns
type JSONB map[string]interface{}

// Value implements driver.Valuer
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ColumnList stores a report's column specs as a JSONB array
type ColumnList []ReportColumn

// Value implements driver.Valuer
func (l ColumnList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]ReportColumn{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *ColumnList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// FilterList stores a report's filter specs as a JSONB array
type FilterList []ReportFilter

// Value implements driver.Valuer
func (l FilterList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]ReportFilter{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *FilterList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// GroupingList stores a report's grouping specs as a JSONB array
type GroupingList []ReportGrouping

// Value implements driver.Valuer
func (l GroupingList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]ReportGrouping{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *GroupingList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// StringList stores a string array as a JSONB array
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// =====================================================
// Report Configuration Types
// =====================================================

// ReportColumn represents one column of a report definition. The column ID
// is stable within the report and is the key under which results are
// returned; Field may be "relation.field" for a joined entity.
type ReportColumn struct {
	ID            string         `json:"id"`
	Field         string         `json:"field"`
	Label         string         `json:"label"`
	Type          string         `json:"type"`
	Aggregate     *AggregateFunc `json:"aggregate,omitempty"`
	Format        *ColumnFormat  `json:"format,omitempty"`
	IsVisible     bool           `json:"is_visible"`
	Sortable      bool           `json:"sortable"`
	SortDirection *SortDirection `json:"sort_direction,omitempty"`
	SortPriority  *int           `json:"sort_priority,omitempty"`
}

// ReportFilter represents a declared filter condition. Value is a scalar,
// an array for in/not_in, or a 2-element array for between.
type ReportFilter struct {
	ID       string         `json:"id"`
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    interface{}    `json:"value"`
}

// ReportGrouping represents a grouping key on the primary entity
type ReportGrouping struct {
	Field         string         `json:"field"`
	Label         string         `json:"label"`
	SortDirection *SortDirection `json:"sort_direction,omitempty"`
}

// =====================================================
// Core Models
// =====================================================

// ReportDefinition represents a saved report configuration. PrimaryEntity
// is immutable after creation; changing it would invalidate the semantics
// of historical executions.
type ReportDefinition struct {
	ID               uuid.UUID    `json:"id" db:"id"`
	Name             string       `json:"name" db:"name"`
	Description      *string      `json:"description,omitempty" db:"description"`
	EntityType       EntityType   `json:"entity_type" db:"entity_type"`
	PrimaryEntity    string       `json:"primary_entity" db:"primary_entity"`
	Joins            StringList   `json:"joins,omitempty" db:"joins"`
	Columns          ColumnList   `json:"columns" db:"columns"`
	Filters          FilterList   `json:"filters,omitempty" db:"filters"`
	Groupings        GroupingList `json:"groupings,omitempty" db:"groupings"`
	DateField        *string      `json:"date_field,omitempty" db:"date_field"`
	DefaultDateRange *string      `json:"default_date_range,omitempty" db:"default_date_range"`
	ChartOptions     JSONB        `json:"chart_options,omitempty" db:"chart_options"`
	IsPublic         bool         `json:"is_public" db:"is_public"`
	IsSystem         bool         `json:"is_system" db:"is_system"`
	CreatedBy        *uuid.UUID   `json:"created_by,omitempty" db:"created_by"`
	TenantID         *uuid.UUID   `json:"tenant_id,omitempty" db:"tenant_id"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// ReportExecution represents a single run attempt of a report. Records are
// written exactly twice: once on creation, once on finalization. A retry is
// a new record, never an update in place.
type ReportExecution struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	ReportID      uuid.UUID       `json:"report_id" db:"report_id"`
	ScheduleID    *uuid.UUID      `json:"schedule_id,omitempty" db:"schedule_id"`
	Status        ExecutionStatus `json:"status" db:"status"`
	TriggerType   TriggerType     `json:"trigger_type" db:"trigger_type"`
	TriggeredBy   *uuid.UUID      `json:"triggered_by,omitempty" db:"triggered_by"`
	Parameters    JSONB           `json:"parameters,omitempty" db:"parameters"`
	RowCount      *int            `json:"row_count,omitempty" db:"row_count"`
	FilePath      *string         `json:"file_path,omitempty" db:"file_path"`
	FileSizeBytes *int64          `json:"file_size_bytes,omitempty" db:"file_size_bytes"`
	ResultPreview JSONB           `json:"result_preview,omitempty" db:"result_preview"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
	ErrorDetail   *string         `json:"error_detail,omitempty" db:"error_detail"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs    *int64          `json:"duration_ms,omitempty" db:"duration_ms"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// ReportSchedule represents a recurring-trigger configuration bound to one
// report definition. NextRunAt is the materialized field the scheduler
// polls; it is recomputed every time the schedule fires or is edited and
// is null while the schedule is inactive.
type ReportSchedule struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	ReportID       uuid.UUID       `json:"report_id" db:"report_id"`
	Name           string          `json:"name" db:"name"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	Cadence        ScheduleCadence `json:"cadence" db:"cadence"`
	TimeOfDay      string          `json:"time_of_day" db:"time_of_day"`
	DayOfWeek      *int            `json:"day_of_week,omitempty" db:"day_of_week"`
	DayOfMonth     *int            `json:"day_of_month,omitempty" db:"day_of_month"`
	Timezone       string          `json:"timezone" db:"timezone"`
	CronExpression *string         `json:"cron_expression,omitempty" db:"cron_expression"`
	DeliveryMethod DeliveryMethod  `json:"delivery_method" db:"delivery_method"`
	Format         ExportFormat    `json:"format" db:"format"`
	DeliveryConfig JSONB           `json:"delivery_config,omitempty" db:"delivery_config"`
	DateRange      *string         `json:"date_range,omitempty" db:"date_range"`
	RetentionDays  int             `json:"retention_days" db:"retention_days"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty" db:"last_run_at"`
	LastRunStatus  *string         `json:"last_run_status,omitempty" db:"last_run_status"`
	LastRunError   *string         `json:"last_run_error,omitempty" db:"last_run_error"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty" db:"next_run_at"`
	TotalRuns      int             `json:"total_runs" db:"total_runs"`
	FailedRuns     int             `json:"failed_runs" db:"failed_runs"`
	CreatedBy      *uuid.UUID      `json:"created_by,omitempty" db:"created_by"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// =====================================================
// Request/Response Types
// =====================================================

// CreateReportRequest represents the request to create a report
type CreateReportRequest struct {
	Name             string           `json:"name" binding:"required,min=1,max=255"`
	Description      *string          `json:"description,omitempty"`
	EntityType       EntityType       `json:"entity_type" binding:"required"`
	PrimaryEntity    string           `json:"primary_entity" binding:"required"`
	Joins            []string         `json:"joins,omitempty"`
	Columns          []ReportColumn   `json:"columns" binding:"required"`
	Filters          []ReportFilter   `json:"filters,omitempty"`
	Groupings        []ReportGrouping `json:"groupings,omitempty"`
	DateField        *string          `json:"date_field,omitempty"`
	DefaultDateRange *string          `json:"default_date_range,omitempty"`
	ChartOptions     JSONB            `json:"chart_options,omitempty"`
	IsPublic         bool             `json:"is_public,omitempty"`
}

// UpdateReportRequest represents the request to update a report. The
// primary entity is intentionally absent: it cannot change after creation.
type UpdateReportRequest struct {
	Name             *string          `json:"name,omitempty"`
	Description      *string          `json:"description,omitempty"`
	Joins            []string         `json:"joins,omitempty"`
	Columns          []ReportColumn   `json:"columns,omitempty"`
	Filters          []ReportFilter   `json:"filters,omitempty"`
	Groupings        []ReportGrouping `json:"groupings,omitempty"`
	DateField        *string          `json:"date_field,omitempty"`
	DefaultDateRange *string          `json:"default_date_range,omitempty"`
	ChartOptions     JSONB            `json:"chart_options,omitempty"`
	IsPublic         *bool            `json:"is_public,omitempty"`
}

// RunReportRequest represents the request to run a report interactively
type RunReportRequest struct {
	StartDate *time.Time             `json:"start_date,omitempty"`
	EndDate   *time.Time             `json:"end_date,omitempty"`
	DateRange *string                `json:"date_range,omitempty"`
	Filters   map[string]interface{} `json:"filters,omitempty"`
	Page      int                    `json:"page,omitempty"`
	PageSize  int                    `json:"page_size,omitempty"`
}

// ExportReportRequest represents the request to export a report to a file
type ExportReportRequest struct {
	Format    ExportFormat           `json:"format" binding:"required"`
	StartDate *time.Time             `json:"start_date,omitempty"`
	EndDate   *time.Time             `json:"end_date,omitempty"`
	DateRange *string                `json:"date_range,omitempty"`
	Filters   map[string]interface{} `json:"filters,omitempty"`
}

// ColumnInfo describes one result column by its stable id and label
type ColumnInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// RunReportResponse is the synchronous execution result: rows keyed by
// column label, plus summary aggregates when the report groups.
type RunReportResponse struct {
	ExecutionID uuid.UUID                `json:"execution_id"`
	Columns     []ColumnInfo             `json:"columns"`
	Rows        []map[string]interface{} `json:"rows"`
	Aggregates  map[string]interface{}   `json:"aggregates,omitempty"`
	TotalRows   int                      `json:"total_rows"`
	Page        int                      `json:"page"`
	PageSize    int                      `json:"page_size"`
}

// ExportResponse represents the response for a report export
type ExportResponse struct {
	ExecutionID   uuid.UUID       `json:"execution_id"`
	Status        ExecutionStatus `json:"status"`
	RowCount      *int            `json:"row_count,omitempty"`
	FileSizeBytes *int64          `json:"file_size_bytes,omitempty"`
	DownloadURL   string          `json:"download_url"`
}

// CreateScheduleRequest represents the request to create a schedule
type CreateScheduleRequest struct {
	ReportID       uuid.UUID       `json:"report_id" binding:"required"`
	Name           string          `json:"name" binding:"required,min=1,max=255"`
	Cadence        ScheduleCadence `json:"cadence" binding:"required"`
	TimeOfDay      string          `json:"time_of_day" binding:"required"`
	DayOfWeek      *int            `json:"day_of_week,omitempty"`
	DayOfMonth     *int            `json:"day_of_month,omitempty"`
	Timezone       string          `json:"timezone,omitempty"`
	CronExpression *string         `json:"cron_expression,omitempty"`
	DeliveryMethod DeliveryMethod  `json:"delivery_method" binding:"required"`
	Format         ExportFormat    `json:"format" binding:"required"`
	DeliveryConfig JSONB           `json:"delivery_config,omitempty"`
	DateRange      *string         `json:"date_range,omitempty"`
	RetentionDays  int             `json:"retention_days,omitempty"`
}

// UpdateScheduleRequest represents the request to update a schedule
type UpdateScheduleRequest struct {
	Name           *string          `json:"name,omitempty"`
	IsActive       *bool            `json:"is_active,omitempty"`
	Cadence        *ScheduleCadence `json:"cadence,omitempty"`
	TimeOfDay      *string          `json:"time_of_day,omitempty"`
	DayOfWeek      *int             `json:"day_of_week,omitempty"`
	DayOfMonth     *int             `json:"day_of_month,omitempty"`
	Timezone       *string          `json:"timezone,omitempty"`
	CronExpression *string          `json:"cron_expression,omitempty"`
	DeliveryMethod *DeliveryMethod  `json:"delivery_method,omitempty"`
	Format         *ExportFormat    `json:"format,omitempty"`
	DeliveryConfig JSONB            `json:"delivery_config,omitempty"`
	DateRange      *string          `json:"date_range,omitempty"`
	RetentionDays  *int             `json:"retention_days,omitempty"`
}

// ValidationError describes one problem found while validating a definition
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating a report definition
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// =====================================================
// Filter Types
// =====================================================

// ReportListFilters represents filters for listing report definitions
type ReportListFilters struct {
	EntityType *EntityType `json:"entity_type,omitempty"`
	IsPublic   *bool       `json:"is_public,omitempty"`
	IsSystem   *bool       `json:"is_system,omitempty"`
	CreatedBy  *uuid.UUID  `json:"created_by,omitempty"`
	SearchTerm *string     `json:"search_term,omitempty"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}

// ScheduleListFilters represents filters for listing schedules
type ScheduleListFilters struct {
	ReportID       *uuid.UUID      `json:"report_id,omitempty"`
	IsActive       *bool           `json:"is_active,omitempty"`
	DeliveryMethod *DeliveryMethod `json:"delivery_method,omitempty"`
	Page           int             `json:"page"`
	PageSize       int             `json:"page_size"`
}

// ExecutionListFilters represents filters for listing executions
type ExecutionListFilters struct {
	ReportID    *uuid.UUID       `json:"report_id,omitempty"`
	ScheduleID  *uuid.UUID       `json:"schedule_id,omitempty"`
	Status      *ExecutionStatus `json:"status,omitempty"`
	TriggeredBy *uuid.UUID       `json:"triggered_by,omitempty"`
	Page        int              `json:"page"`
	PageSize    int              `json:"page_size"`
}
