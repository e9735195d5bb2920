package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger records the lifecycle of report executions. Every run writes
// exactly two states: a running record up front, then exactly one
// finalization as completed, failed or cancelled.
type Ledger struct {
	repo   Repository
	logger *zap.Logger
}

// NewLedger creates an execution ledger
func NewLedger(repo Repository, logger *zap.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// Begin opens a running execution record. The returned record carries its
// start timestamp; duration is always measured from it.
func (l *Ledger) Begin(ctx context.Context, reportID uuid.UUID, trigger TriggerType, triggeredBy *uuid.UUID, scheduleID *uuid.UUID, params JSONB) (*ReportExecution, error) {
	now := time.Now().UTC()
	exec := &ReportExecution{
		ID:          uuid.New(),
		ReportID:    reportID,
		ScheduleID:  scheduleID,
		Status:      ExecutionStatusRunning,
		TriggerType: trigger,
		TriggeredBy: triggeredBy,
		Parameters:  params,
		StartedAt:   now,
		CreatedAt:   now,
	}
	if err := l.repo.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	l.logger.Debug("execution started",
		zap.String("execution_id", exec.ID.String()),
		zap.String("report_id", reportID.String()),
		zap.String("trigger", string(trigger)))
	return exec, nil
}

// Complete finalizes an execution as successful
func (l *Ledger) Complete(ctx context.Context, exec *ReportExecution, rowCount int, filePath *string, fileSize *int64, preview JSONB) error {
	l.finalize(exec, ExecutionStatusCompleted)
	exec.RowCount = &rowCount
	exec.FilePath = filePath
	exec.FileSizeBytes = fileSize
	exec.ResultPreview = preview
	if err := l.repo.FinalizeExecution(ctx, exec); err != nil {
		return err
	}
	l.logger.Info("execution completed",
		zap.String("execution_id", exec.ID.String()),
		zap.Int("row_count", rowCount),
		zap.Int64p("duration_ms", exec.DurationMs))
	return nil
}

// Fail finalizes an execution as failed, keeping the failure cause on the
// record
func (l *Ledger) Fail(ctx context.Context, exec *ReportExecution, runErr error) error {
	l.finalize(exec, ExecutionStatusFailed)
	msg := runErr.Error()
	exec.ErrorMessage = &msg
	detail := fmt.Sprintf("%+v", runErr)
	if detail != msg {
		exec.ErrorDetail = &detail
	}
	if err := l.repo.FinalizeExecution(ctx, exec); err != nil {
		return err
	}
	l.logger.Warn("execution failed",
		zap.String("execution_id", exec.ID.String()),
		zap.String("error", msg))
	return nil
}

// Cancel finalizes an execution as cancelled
func (l *Ledger) Cancel(ctx context.Context, exec *ReportExecution) error {
	l.finalize(exec, ExecutionStatusCancelled)
	if err := l.repo.FinalizeExecution(ctx, exec); err != nil {
		return err
	}
	l.logger.Info("execution cancelled", zap.String("execution_id", exec.ID.String()))
	return nil
}

func (l *Ledger) finalize(exec *ReportExecution, status ExecutionStatus) {
	now := time.Now().UTC()
	duration := now.Sub(exec.StartedAt).Milliseconds()
	exec.Status = status
	exec.CompletedAt = &now
	exec.DurationMs = &duration
}
