package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/reports/export"
	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/storage"
)

// previewRowLimit caps the inline result preview stored on an execution
const previewRowLimit = 10

// Service provides business logic for reporting operations
type Service struct {
	repo     Repository
	executor *Executor
	ledger   *Ledger
	store    storage.Store
	logger   *zap.Logger
}

// NewService creates a new reports service
func NewService(repo Repository, store storage.Store, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		executor: NewExecutor(repo, logger),
		ledger:   NewLedger(repo, logger),
		store:    store,
		logger:   logger,
	}
}

// =====================================================
// Report Definition Operations
// =====================================================

// CreateReport validates and persists a new report definition
func (s *Service) CreateReport(ctx context.Context, userID *uuid.UUID, req *CreateReportRequest) (*ReportDefinition, error) {
	now := time.Now().UTC()
	def := &ReportDefinition{
		ID:               uuid.New(),
		Name:             req.Name,
		Description:      req.Description,
		EntityType:       req.EntityType,
		PrimaryEntity:    req.PrimaryEntity,
		Joins:            StringList(req.Joins),
		Columns:          ColumnList(req.Columns),
		Filters:          FilterList(req.Filters),
		Groupings:        GroupingList(req.Groupings),
		DateField:        req.DateField,
		DefaultDateRange: req.DefaultDateRange,
		ChartOptions:     req.ChartOptions,
		IsPublic:         req.IsPublic,
		CreatedBy:        userID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// A definition that cannot produce a plan is rejected at creation.
	if _, err := BuildPlan(def, PlanOptions{}); err != nil {
		return nil, err
	}

	if err := s.repo.CreateDefinition(ctx, def); err != nil {
		return nil, err
	}
	s.logger.Info("report created",
		zap.String("report_id", def.ID.String()),
		zap.String("name", def.Name))
	return def, nil
}

// GetReport retrieves a report definition by ID
func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*ReportDefinition, error) {
	return s.repo.GetDefinition(ctx, id)
}

// ListReports lists report definitions
func (s *Service) ListReports(ctx context.Context, filters *ReportListFilters) ([]*ReportDefinition, int, error) {
	return s.repo.ListDefinitions(ctx, filters)
}

// UpdateReport applies a partial update to a report definition. The
// primary entity is immutable; the request type cannot carry it.
func (s *Service) UpdateReport(ctx context.Context, id uuid.UUID, req *UpdateReportRequest) (*ReportDefinition, error) {
	def, err := s.repo.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.IsSystem {
		return nil, definitionErr(CodeImmutableField, "is_system", "system reports cannot be modified")
	}

	if req.Name != nil {
		def.Name = *req.Name
	}
	if req.Description != nil {
		def.Description = req.Description
	}
	if req.Joins != nil {
		def.Joins = StringList(req.Joins)
	}
	if req.Columns != nil {
		def.Columns = ColumnList(req.Columns)
	}
	if req.Filters != nil {
		def.Filters = FilterList(req.Filters)
	}
	if req.Groupings != nil {
		def.Groupings = GroupingList(req.Groupings)
	}
	if req.DateField != nil {
		def.DateField = req.DateField
	}
	if req.DefaultDateRange != nil {
		def.DefaultDateRange = req.DefaultDateRange
	}
	if req.ChartOptions != nil {
		def.ChartOptions = req.ChartOptions
	}
	if req.IsPublic != nil {
		def.IsPublic = *req.IsPublic
	}
	def.UpdatedAt = time.Now().UTC()

	if _, err := BuildPlan(def, PlanOptions{}); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDefinition(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// DeleteReport deletes a report definition
func (s *Service) DeleteReport(ctx context.Context, id uuid.UUID) error {
	def, err := s.repo.GetDefinition(ctx, id)
	if err != nil {
		return err
	}
	if def.IsSystem {
		return definitionErr(CodeImmutableField, "is_system", "system reports cannot be deleted")
	}
	return s.repo.DeleteDefinition(ctx, id)
}

// ValidateReport dry-runs plan building against a definition without
// persisting anything
func (s *Service) ValidateReport(req *CreateReportRequest) *ValidationResult {
	def := &ReportDefinition{
		Name:          req.Name,
		EntityType:    req.EntityType,
		PrimaryEntity: req.PrimaryEntity,
		Joins:         StringList(req.Joins),
		Columns:       ColumnList(req.Columns),
		Filters:       FilterList(req.Filters),
		Groupings:     GroupingList(req.Groupings),
		DateField:     req.DateField,
	}
	if _, err := BuildPlan(def, PlanOptions{}); err != nil {
		var de *DefinitionError
		if errors.As(err, &de) {
			return &ValidationResult{Valid: false, Errors: []ValidationError{
				{Field: de.Field, Code: de.Code, Message: de.Message},
			}}
		}
		return &ValidationResult{Valid: false, Errors: []ValidationError{
			{Code: "invalid_definition", Message: err.Error()},
		}}
	}
	return &ValidationResult{Valid: true}
}

// =====================================================
// Interactive Execution
// =====================================================

// RunReport executes a report synchronously and returns one page of
// shaped results. Every run, successful or not, leaves a finalized
// execution record.
func (s *Service) RunReport(ctx context.Context, reportID uuid.UUID, userID *uuid.UUID, req *RunReportRequest) (*RunReportResponse, error) {
	def, err := s.repo.GetDefinition(ctx, reportID)
	if err != nil {
		return nil, err
	}

	opts, err := s.planOptions(def, req.StartDate, req.EndDate, req.DateRange, req.Filters, req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}
	plan, err := BuildPlan(def, opts)
	if err != nil {
		return nil, err
	}

	exec, err := s.ledger.Begin(ctx, reportID, triggerFor(userID), userID, nil, runParameters(opts))
	if err != nil {
		return nil, err
	}

	result, err := s.executor.RunPaginated(ctx, plan)
	if err != nil {
		if ferr := s.ledger.Fail(ctx, exec, err); ferr != nil {
			s.logger.Error("failed to record execution failure", zap.Error(ferr))
		}
		return nil, err
	}

	preview := resultPreview(result)
	if err := s.ledger.Complete(ctx, exec, result.TotalRows, nil, nil, preview); err != nil {
		return nil, err
	}

	return &RunReportResponse{
		ExecutionID: exec.ID,
		Columns:     result.Columns,
		Rows:        result.Rows,
		Aggregates:  result.Aggregates,
		TotalRows:   result.TotalRows,
		Page:        plan.Page,
		PageSize:    plan.PageSize,
	}, nil
}

// ExportReport runs a report to completion and stores the rendered
// artifact under the execution's id
func (s *Service) ExportReport(ctx context.Context, reportID uuid.UUID, userID *uuid.UUID, req *ExportReportRequest) (*ExportResponse, error) {
	def, err := s.repo.GetDefinition(ctx, reportID)
	if err != nil {
		return nil, err
	}

	opts, err := s.planOptions(def, req.StartDate, req.EndDate, req.DateRange, req.Filters, 0, 0)
	if err != nil {
		return nil, err
	}
	plan, err := BuildPlan(def, opts)
	if err != nil {
		return nil, err
	}

	exec, err := s.ledger.Begin(ctx, reportID, triggerFor(userID), userID, nil, runParameters(opts))
	if err != nil {
		return nil, err
	}

	filePath, fileSize, rowCount, err := s.renderAndStore(ctx, plan, exec, string(req.Format))
	if err != nil {
		if ferr := s.ledger.Fail(ctx, exec, err); ferr != nil {
			s.logger.Error("failed to record execution failure", zap.Error(ferr))
		}
		return nil, err
	}

	if err := s.ledger.Complete(ctx, exec, rowCount, &filePath, &fileSize, nil); err != nil {
		return nil, err
	}

	return &ExportResponse{
		ExecutionID:   exec.ID,
		Status:        ExecutionStatusCompleted,
		RowCount:      &rowCount,
		FileSizeBytes: &fileSize,
		DownloadURL:   fmt.Sprintf("/api/v1/reports/executions/%s/download", exec.ID),
	}, nil
}

// renderAndStore runs the full query, renders the requested format and
// writes the artifact to the store
func (s *Service) renderAndStore(ctx context.Context, plan *QueryPlan, exec *ReportExecution, format string) (string, int64, int, error) {
	result, err := s.executor.RunFull(ctx, plan)
	if err != nil {
		return "", 0, 0, err
	}

	columns := make([]export.Column, len(result.Columns))
	for i, c := range result.Columns {
		columns[i] = export.Column{ID: c.ID, Label: c.Label}
	}
	data, err := export.Render(format, export.Result{Columns: columns, Rows: result.Rows})
	if err != nil {
		return "", 0, 0, &ExportError{Format: format, Err: err}
	}

	filePath := export.FileName(exec.ID.String(), format)
	if err := s.store.Write(ctx, filePath, data); err != nil {
		return "", 0, 0, &ExportError{Format: format, Err: err}
	}
	return filePath, int64(len(data)), result.TotalRows, nil
}

// GetExecution retrieves an execution by ID
func (s *Service) GetExecution(ctx context.Context, id uuid.UUID) (*ReportExecution, error) {
	return s.repo.GetExecution(ctx, id)
}

// ListExecutions lists executions
func (s *Service) ListExecutions(ctx context.Context, filters *ExecutionListFilters) ([]*ReportExecution, int, error) {
	return s.repo.ListExecutions(ctx, filters)
}

// DownloadExecution returns the stored artifact for a completed
// execution. The execution id is the only handle; there is no path-based
// access.
func (s *Service) DownloadExecution(ctx context.Context, id uuid.UUID) (string, []byte, error) {
	exec, err := s.repo.GetExecution(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if exec.Status != ExecutionStatusCompleted || exec.FilePath == nil {
		return "", nil, fmt.Errorf("execution %s has no artifact: %w", id, ErrNotFound)
	}
	data, err := s.store.Read(ctx, *exec.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, fmt.Errorf("artifact for execution %s: %w", id, ErrNotFound)
		}
		return "", nil, err
	}
	return *exec.FilePath, data, nil
}

// CleanupExpiredArtifacts purges stored artifacts that have outlived
// their schedule's retention window
func (s *Service) CleanupExpiredArtifacts(ctx context.Context) (int, error) {
	expired, err := s.repo.GetExpiredArtifacts(ctx)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, exec := range expired {
		if err := s.store.Delete(ctx, *exec.FilePath); err != nil {
			s.logger.Warn("failed to delete expired artifact",
				zap.String("execution_id", exec.ID.String()), zap.Error(err))
			continue
		}
		if err := s.repo.ClearArtifact(ctx, exec.ID); err != nil {
			s.logger.Warn("failed to clear artifact reference",
				zap.String("execution_id", exec.ID.String()), zap.Error(err))
			continue
		}
		purged++
	}
	return purged, nil
}

// =====================================================
// Schedule Operations
// =====================================================

// CreateSchedule validates and persists a schedule, materializing its
// first next-run timestamp
func (s *Service) CreateSchedule(ctx context.Context, userID *uuid.UUID, req *CreateScheduleRequest) (*ReportSchedule, error) {
	if _, err := s.repo.GetDefinition(ctx, req.ReportID); err != nil {
		return nil, err
	}
	if err := validateCadenceFields(req.Cadence, req.DayOfWeek, req.DayOfMonth); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	schedule := &ReportSchedule{
		ID:             uuid.New(),
		ReportID:       req.ReportID,
		Name:           req.Name,
		IsActive:       true,
		Cadence:        req.Cadence,
		TimeOfDay:      req.TimeOfDay,
		DayOfWeek:      req.DayOfWeek,
		DayOfMonth:     req.DayOfMonth,
		Timezone:       timezone,
		CronExpression: req.CronExpression,
		DeliveryMethod: req.DeliveryMethod,
		Format:         req.Format,
		DeliveryConfig: req.DeliveryConfig,
		DateRange:      req.DateRange,
		RetentionDays:  req.RetentionDays,
		CreatedBy:      userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	next, err := NextRunAt(schedule, now)
	if err != nil {
		return nil, err
	}
	schedule.NextRunAt = &next

	if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	s.logger.Info("schedule created",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("report_id", schedule.ReportID.String()),
		zap.Time("next_run_at", next))
	return schedule, nil
}

// GetSchedule retrieves a schedule by ID
func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (*ReportSchedule, error) {
	return s.repo.GetSchedule(ctx, id)
}

// ListSchedules lists schedules
func (s *Service) ListSchedules(ctx context.Context, filters *ScheduleListFilters) ([]*ReportSchedule, int, error) {
	return s.repo.ListSchedules(ctx, filters)
}

// UpdateSchedule applies a partial update and recomputes the next-run
// timestamp under the new recurrence
func (s *Service) UpdateSchedule(ctx context.Context, id uuid.UUID, req *UpdateScheduleRequest) (*ReportSchedule, error) {
	schedule, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.IsActive != nil {
		schedule.IsActive = *req.IsActive
	}
	if req.Cadence != nil {
		schedule.Cadence = *req.Cadence
	}
	if req.TimeOfDay != nil {
		schedule.TimeOfDay = *req.TimeOfDay
	}
	if req.DayOfWeek != nil {
		schedule.DayOfWeek = req.DayOfWeek
	}
	if req.DayOfMonth != nil {
		schedule.DayOfMonth = req.DayOfMonth
	}
	if req.Timezone != nil {
		schedule.Timezone = *req.Timezone
	}
	if req.CronExpression != nil {
		schedule.CronExpression = req.CronExpression
	}
	if req.DeliveryMethod != nil {
		schedule.DeliveryMethod = *req.DeliveryMethod
	}
	if req.Format != nil {
		schedule.Format = *req.Format
	}
	if req.DeliveryConfig != nil {
		schedule.DeliveryConfig = req.DeliveryConfig
	}
	if req.DateRange != nil {
		schedule.DateRange = req.DateRange
	}
	if req.RetentionDays != nil {
		schedule.RetentionDays = *req.RetentionDays
	}
	if err := validateCadenceFields(schedule.Cadence, schedule.DayOfWeek, schedule.DayOfMonth); err != nil {
		return nil, err
	}
	schedule.UpdatedAt = time.Now().UTC()

	if schedule.IsActive {
		next, err := NextRunAt(schedule, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		schedule.NextRunAt = &next
	} else {
		schedule.NextRunAt = nil
	}

	if err := s.repo.UpdateSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// ToggleSchedule activates or pauses a schedule. Pausing nulls the
// next-run timestamp so the poll never sees it.
func (s *Service) ToggleSchedule(ctx context.Context, id uuid.UUID, active bool) (*ReportSchedule, error) {
	return s.UpdateSchedule(ctx, id, &UpdateScheduleRequest{IsActive: &active})
}

// DeleteSchedule deletes a schedule
func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteSchedule(ctx, id)
}

// =====================================================
// Scheduled Runs
// =====================================================

// ScheduledRunResult carries everything the delivery step needs from a
// scheduled execution
type ScheduledRunResult struct {
	Execution  *ReportExecution
	Definition *ReportDefinition
	FileName   string
	Data       []byte
}

// RunScheduledExport executes one scheduled firing: full query, rendered
// artifact, stored under the execution id. The caller handles delivery
// and schedule bookkeeping.
func (s *Service) RunScheduledExport(ctx context.Context, schedule *ReportSchedule) (*ScheduledRunResult, error) {
	def, err := s.repo.GetDefinition(ctx, schedule.ReportID)
	if err != nil {
		return nil, err
	}

	dateRange := schedule.DateRange
	if dateRange == nil {
		dateRange = def.DefaultDateRange
	}
	opts, err := s.planOptions(def, nil, nil, dateRange, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	plan, err := BuildPlan(def, opts)
	if err != nil {
		return nil, err
	}

	scheduleID := schedule.ID
	exec, err := s.ledger.Begin(ctx, def.ID, TriggerTypeScheduled, nil, &scheduleID, runParameters(opts))
	if err != nil {
		return nil, err
	}

	filePath, fileSize, rowCount, err := s.renderAndStore(ctx, plan, exec, string(schedule.Format))
	if err != nil {
		if ferr := s.ledger.Fail(ctx, exec, err); ferr != nil {
			s.logger.Error("failed to record execution failure", zap.Error(ferr))
		}
		return nil, err
	}

	if err := s.ledger.Complete(ctx, exec, rowCount, &filePath, &fileSize, nil); err != nil {
		return nil, err
	}

	data, err := s.store.Read(ctx, filePath)
	if err != nil {
		return nil, err
	}
	return &ScheduledRunResult{
		Execution:  exec,
		Definition: def,
		FileName:   filePath,
		Data:       data,
	}, nil
}

// =====================================================
// Helpers
// =====================================================

// planOptions merges explicit dates, a keyword range and the definition's
// default range into plan options. Explicit dates win.
func (s *Service) planOptions(def *ReportDefinition, start, end *time.Time, dateRange *string, filters map[string]interface{}, page, pageSize int) (PlanOptions, error) {
	opts := PlanOptions{
		StartDate: start,
		EndDate:   end,
		Filters:   filters,
		Page:      page,
		PageSize:  pageSize,
	}
	if opts.StartDate == nil && opts.EndDate == nil {
		keyword := dateRange
		if keyword == nil {
			keyword = def.DefaultDateRange
		}
		if keyword != nil && *keyword != "" {
			rangeStart, rangeEnd, err := resolveDateRange(*keyword, time.Now().UTC())
			if err != nil {
				return PlanOptions{}, err
			}
			opts.StartDate = &rangeStart
			opts.EndDate = &rangeEnd
		}
	}
	return opts, nil
}

// resolveDateRange turns a keyword into an inclusive [start, end] window
// anchored at now
func resolveDateRange(keyword string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := func(t time.Time) time.Time { return t.AddDate(0, 0, 1).Add(-time.Second) }

	switch keyword {
	case "today":
		return today, endOfDay(today), nil
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		return y, endOfDay(y), nil
	case "last_7_days":
		return today.AddDate(0, 0, -6), endOfDay(today), nil
	case "last_30_days":
		return today.AddDate(0, 0, -29), endOfDay(today), nil
	case "last_90_days":
		return today.AddDate(0, 0, -89), endOfDay(today), nil
	case "this_week":
		// Weeks open on Monday.
		offset := (int(today.Weekday()) + 6) % 7
		start := today.AddDate(0, 0, -offset)
		return start, endOfDay(start.AddDate(0, 0, 6)), nil
	case "this_month":
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, endOfDay(start.AddDate(0, 1, -1)), nil
	case "last_month":
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return start, endOfDay(start.AddDate(0, 1, -1)), nil
	case "this_quarter":
		start := time.Date(today.Year(), firstMonthOfQuarter(today.Month()), 1, 0, 0, 0, 0, time.UTC)
		return start, endOfDay(start.AddDate(0, 3, -1)), nil
	case "this_year":
		start := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, endOfDay(start.AddDate(1, 0, -1)), nil
	default:
		return time.Time{}, time.Time{}, definitionErr(CodeMalformedFilterValue, "date_range",
			"unknown date range keyword %q", keyword)
	}
}

func validateCadenceFields(cadence ScheduleCadence, dayOfWeek, dayOfMonth *int) error {
	switch cadence {
	case CadenceDaily:
		return nil
	case CadenceWeekly:
		if dayOfWeek == nil || *dayOfWeek < 0 || *dayOfWeek > 6 {
			return fmt.Errorf("weekly schedules require day_of_week between 0 and 6")
		}
		return nil
	case CadenceMonthly, CadenceQuarterly:
		if dayOfMonth == nil || *dayOfMonth < 1 || *dayOfMonth > 31 {
			return fmt.Errorf("%s schedules require day_of_month between 1 and 31", cadence)
		}
		return nil
	default:
		return fmt.Errorf("unsupported cadence %q", string(cadence))
	}
}

func runParameters(opts PlanOptions) JSONB {
	params := JSONB{}
	if opts.StartDate != nil {
		params["start_date"] = opts.StartDate.Format(time.RFC3339)
	}
	if opts.EndDate != nil {
		params["end_date"] = opts.EndDate.Format(time.RFC3339)
	}
	if len(opts.Filters) > 0 {
		params["filters"] = opts.Filters
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// triggerFor classifies an interactive run by who asked for it: requests
// attributed to a user are manual, actorless machine calls are api.
func triggerFor(userID *uuid.UUID) TriggerType {
	if userID == nil {
		return TriggerTypeAPI
	}
	return TriggerTypeManual
}

// resultPreview captures column labels, the first rows, the total row
// count and any aggregates so the stored execution is self-describing.
func resultPreview(result *ResultSet) JSONB {
	labels := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		labels[i] = c.Label
	}
	rows := result.Rows
	if len(rows) > previewRowLimit {
		rows = rows[:previewRowLimit]
	}
	preview := make([]interface{}, len(rows))
	for i, r := range rows {
		preview[i] = r
	}
	out := JSONB{
		"columns":    labels,
		"rows":       preview,
		"total_rows": result.TotalRows,
	}
	if len(result.Aggregates) > 0 {
		out["aggregates"] = result.Aggregates
	}
	return out
}
