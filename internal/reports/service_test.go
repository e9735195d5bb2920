package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/storage"
)

// mockRepository mocks the full Repository surface
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) CreateDefinition(ctx context.Context, def *ReportDefinition) error {
	return m.Called(ctx, def).Error(0)
}

func (m *mockRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*ReportDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReportDefinition), args.Error(1)
}

func (m *mockRepository) GetSystemDefinitionByName(ctx context.Context, name string) (*ReportDefinition, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReportDefinition), args.Error(1)
}

func (m *mockRepository) ListDefinitions(ctx context.Context, filters *ReportListFilters) ([]*ReportDefinition, int, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*ReportDefinition), args.Int(1), args.Error(2)
}

func (m *mockRepository) UpdateDefinition(ctx context.Context, def *ReportDefinition) error {
	return m.Called(ctx, def).Error(0)
}

func (m *mockRepository) DeleteDefinition(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepository) CreateExecution(ctx context.Context, exec *ReportExecution) error {
	return m.Called(ctx, exec).Error(0)
}

func (m *mockRepository) FinalizeExecution(ctx context.Context, exec *ReportExecution) error {
	return m.Called(ctx, exec).Error(0)
}

func (m *mockRepository) GetExecution(ctx context.Context, id uuid.UUID) (*ReportExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReportExecution), args.Error(1)
}

func (m *mockRepository) ListExecutions(ctx context.Context, filters *ExecutionListFilters) ([]*ReportExecution, int, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*ReportExecution), args.Int(1), args.Error(2)
}

func (m *mockRepository) GetExpiredArtifacts(ctx context.Context) ([]*ReportExecution, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*ReportExecution), args.Error(1)
}

func (m *mockRepository) ClearArtifact(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepository) CreateSchedule(ctx context.Context, schedule *ReportSchedule) error {
	return m.Called(ctx, schedule).Error(0)
}

func (m *mockRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*ReportSchedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReportSchedule), args.Error(1)
}

func (m *mockRepository) ListSchedules(ctx context.Context, filters *ScheduleListFilters) ([]*ReportSchedule, int, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*ReportSchedule), args.Int(1), args.Error(2)
}

func (m *mockRepository) UpdateSchedule(ctx context.Context, schedule *ReportSchedule) error {
	return m.Called(ctx, schedule).Error(0)
}

func (m *mockRepository) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepository) GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*ReportSchedule, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]*ReportSchedule), args.Error(1)
}

func (m *mockRepository) RecordRunSuccess(ctx context.Context, id uuid.UUID, ranAt time.Time, nextRunAt time.Time) error {
	return m.Called(ctx, id, ranAt, nextRunAt).Error(0)
}

func (m *mockRepository) RecordRunFailure(ctx context.Context, id uuid.UUID, ranAt time.Time, runErr string, nextRunAt time.Time) error {
	return m.Called(ctx, id, ranAt, runErr, nextRunAt).Error(0)
}

func (m *mockRepository) RunQuery(ctx context.Context, query string, args []interface{}) ([]map[string]interface{}, error) {
	res := m.Called(ctx, query, args)
	if res.Get(0) == nil {
		return nil, res.Error(1)
	}
	return res.Get(0).([]map[string]interface{}), res.Error(1)
}

func (m *mockRepository) RunCount(ctx context.Context, query string, args []interface{}) (int, error) {
	res := m.Called(ctx, query, args)
	return res.Int(0), res.Error(1)
}

// memStore is an in-memory artifact store for tests
type memStore struct {
	files map[string][]byte
}

func newMemStore() *memStore { return &memStore{files: map[string][]byte{}} }

func (s *memStore) Write(_ context.Context, key string, data []byte) error {
	s.files[key] = data
	return nil
}

func (s *memStore) Read(_ context.Context, key string) ([]byte, error) {
	data, ok := s.files[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.files[key]
	return ok, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	delete(s.files, key)
	return nil
}

func newTestService(repo *mockRepository) (*Service, *memStore) {
	store := newMemStore()
	return NewService(repo, store, zap.NewNop()), store
}

func TestCreateReportRejectsInvalidDefinition(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newTestService(repo)

	_, err := svc.CreateReport(context.Background(), nil, &CreateReportRequest{
		Name:          "Broken",
		EntityType:    EntityTypeCalls,
		PrimaryEntity: "call",
		Columns: []ReportColumn{
			{ID: "x", Field: "noSuchField", Label: "X", IsVisible: true},
		},
	})
	assertDefinitionCode(t, err, CodeUnknownField)
	repo.AssertNotCalled(t, "CreateDefinition", mock.Anything, mock.Anything)
}

func TestRunReportFinalizesExecution(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newTestService(repo)
	def := callReport(nil)
	def.ID = uuid.New()
	actor := uuid.New()

	repo.On("GetDefinition", mock.Anything, def.ID).Return(def, nil)
	repo.On("CreateExecution", mock.Anything, mock.MatchedBy(func(e *ReportExecution) bool {
		return e.Status == ExecutionStatusRunning && e.TriggerType == TriggerTypeManual
	})).Return(nil)
	repo.On("RunCount", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)
	repo.On("RunQuery", mock.Anything, mock.Anything, mock.Anything).Return([]map[string]interface{}{
		{"col_0": time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), "col_1": "completed", "col_2": int64(60)},
	}, nil)
	repo.On("FinalizeExecution", mock.Anything, mock.MatchedBy(func(e *ReportExecution) bool {
		if e.Status != ExecutionStatusCompleted || e.CompletedAt == nil || e.DurationMs == nil {
			return false
		}
		// The stored preview carries labels, rows and the total so the
		// ledger record reads on its own.
		labels, _ := e.ResultPreview["columns"].([]string)
		return len(labels) == 3 && labels[0] == "Created At" &&
			e.ResultPreview["total_rows"] == 1 &&
			len(e.ResultPreview["rows"].([]interface{})) == 1
	})).Return(nil)

	resp, err := svc.RunReport(context.Background(), def.ID, &actor, &RunReportRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalRows)
	assert.Equal(t, "2026-05-01", resp.Rows[0]["Created At"])
	repo.AssertExpectations(t)
}

func TestRunReportWithoutActorRecordsAPITrigger(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newTestService(repo)
	def := callReport(nil)
	def.ID = uuid.New()

	repo.On("GetDefinition", mock.Anything, def.ID).Return(def, nil)
	repo.On("CreateExecution", mock.Anything, mock.MatchedBy(func(e *ReportExecution) bool {
		return e.TriggerType == TriggerTypeAPI && e.TriggeredBy == nil
	})).Return(nil)
	repo.On("RunCount", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	repo.On("RunQuery", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	repo.On("FinalizeExecution", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.RunReport(context.Background(), def.ID, nil, &RunReportRequest{})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRunReportFailureFinalizesAsFailed(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newTestService(repo)
	def := callReport(nil)
	def.ID = uuid.New()
	boom := errors.New("connection reset")

	repo.On("GetDefinition", mock.Anything, def.ID).Return(def, nil)
	repo.On("CreateExecution", mock.Anything, mock.Anything).Return(nil)
	repo.On("RunCount", mock.Anything, mock.Anything, mock.Anything).Return(0, boom)
	repo.On("FinalizeExecution", mock.Anything, mock.MatchedBy(func(e *ReportExecution) bool {
		return e.Status == ExecutionStatusFailed && e.ErrorMessage != nil
	})).Return(nil)

	_, err := svc.RunReport(context.Background(), def.ID, nil, &RunReportRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	repo.AssertExpectations(t)
}

func TestExportReportStoresArtifactByExecutionID(t *testing.T) {
	repo := new(mockRepository)
	svc, store := newTestService(repo)
	def := callReport(nil)
	def.ID = uuid.New()

	var execID uuid.UUID
	repo.On("GetDefinition", mock.Anything, def.ID).Return(def, nil)
	repo.On("CreateExecution", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		execID = args.Get(1).(*ReportExecution).ID
	}).Return(nil)
	repo.On("RunQuery", mock.Anything, mock.Anything, mock.Anything).Return([]map[string]interface{}{
		{"col_0": time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), "col_1": "completed", "col_2": int64(60)},
	}, nil)
	repo.On("FinalizeExecution", mock.Anything, mock.MatchedBy(func(e *ReportExecution) bool {
		return e.Status == ExecutionStatusCompleted && e.FilePath != nil
	})).Return(nil)

	resp, err := svc.ExportReport(context.Background(), def.ID, nil, &ExportReportRequest{Format: ExportFormatCSV})
	require.NoError(t, err)
	assert.Equal(t, execID, resp.ExecutionID)
	assert.Contains(t, resp.DownloadURL, execID.String())

	data, ok := store.files[execID.String()+".csv"]
	require.True(t, ok, "artifact should be stored under the execution id")
	assert.Contains(t, string(data), "Created At,Status")
}

func TestDownloadExecutionRequiresArtifact(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newTestService(repo)
	id := uuid.New()

	repo.On("GetExecution", mock.Anything, id).Return(&ReportExecution{
		ID:     id,
		Status: ExecutionStatusFailed,
	}, nil)

	_, _, err := svc.DownloadExecution(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeedSystemReportsIsIdempotent(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newTestService(repo)

	existing := systemReports()[0]
	repo.On("GetSystemDefinitionByName", mock.Anything, existing.Name).Return(existing, nil)
	repo.On("GetSystemDefinitionByName", mock.Anything, mock.Anything).Return(nil, ErrNotFound)
	repo.On("CreateDefinition", mock.Anything, mock.MatchedBy(func(d *ReportDefinition) bool {
		return d.IsSystem && d.Name != existing.Name
	})).Return(nil)

	require.NoError(t, svc.SeedSystemReports(context.Background()))
	repo.AssertNumberOfCalls(t, "CreateDefinition", len(systemReports())-1)
}

func TestCreateScheduleValidatesCadenceFields(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newTestService(repo)
	reportID := uuid.New()

	repo.On("GetDefinition", mock.Anything, reportID).Return(callReport(nil), nil)

	_, err := svc.CreateSchedule(context.Background(), nil, &CreateScheduleRequest{
		ReportID:       reportID,
		Name:           "Weekly digest",
		Cadence:        CadenceWeekly,
		TimeOfDay:      "08:00",
		DeliveryMethod: DeliveryMethodEmail,
		Format:         ExportFormatCSV,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "day_of_week")
}

func TestCreateScheduleMaterializesNextRun(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newTestService(repo)
	reportID := uuid.New()

	repo.On("GetDefinition", mock.Anything, reportID).Return(callReport(nil), nil)
	repo.On("CreateSchedule", mock.Anything, mock.MatchedBy(func(s *ReportSchedule) bool {
		return s.IsActive && s.NextRunAt != nil && s.NextRunAt.After(time.Now().UTC())
	})).Return(nil)

	schedule, err := svc.CreateSchedule(context.Background(), nil, &CreateScheduleRequest{
		ReportID:       reportID,
		Name:           "Nightly export",
		Cadence:        CadenceDaily,
		TimeOfDay:      "02:00",
		DeliveryMethod: DeliveryMethodStorage,
		Format:         ExportFormatJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, "UTC", schedule.Timezone)
	repo.AssertExpectations(t)
}

func TestToggleScheduleOffClearsNextRun(t *testing.T) {
	repo := new(mockRepository)
	svc, _ := newTestService(repo)
	id := uuid.New()
	next := time.Now().UTC().Add(time.Hour)

	repo.On("GetSchedule", mock.Anything, id).Return(&ReportSchedule{
		ID:        id,
		IsActive:  true,
		Cadence:   CadenceDaily,
		TimeOfDay: "08:00",
		Timezone:  "UTC",
		NextRunAt: &next,
	}, nil)
	repo.On("UpdateSchedule", mock.Anything, mock.MatchedBy(func(s *ReportSchedule) bool {
		return !s.IsActive && s.NextRunAt == nil
	})).Return(nil)

	schedule, err := svc.ToggleSchedule(context.Background(), id, false)
	require.NoError(t, err)
	assert.Nil(t, schedule.NextRunAt)
	repo.AssertExpectations(t)
}

func TestResolveDateRangeKeywords(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC) // a Friday

	start, end, err := resolveDateRange("today", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 28, 23, 59, 59, 0, time.UTC), end)

	start, _, err = resolveDateRange("last_7_days", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC), start)

	start, end, err = resolveDateRange("last_month", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 7, 31, 23, 59, 59, 0, time.UTC), end)

	_, _, err = resolveDateRange("fortnight", now)
	assertDefinitionCode(t, err, CodeMalformedFilterValue)
}
