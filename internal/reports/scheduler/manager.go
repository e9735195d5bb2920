// Package scheduler fires report schedules and delivers their artifacts.
// One manager polls for due schedules on a fixed tick and runs them
// sequentially; a tick that is still working is never re-entered.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/reports"
)

// ReportService is the slice of the reports service the manager needs
type ReportService interface {
	RunScheduledExport(ctx context.Context, schedule *reports.ReportSchedule) (*reports.ScheduledRunResult, error)
	CleanupExpiredArtifacts(ctx context.Context) (int, error)
}

// ScheduleStore is the slice of the repository the manager needs
type ScheduleStore interface {
	GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*reports.ReportSchedule, error)
	RecordRunSuccess(ctx context.Context, id uuid.UUID, ranAt time.Time, nextRunAt time.Time) error
	RecordRunFailure(ctx context.Context, id uuid.UUID, ranAt time.Time, runErr string, nextRunAt time.Time) error
}

// Config tunes the manager's polling behavior
type Config struct {
	TickInterval time.Duration
	BatchSize    int
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Minute,
		BatchSize:    10,
	}
}

// Manager polls for due schedules and fires them
type Manager struct {
	service   ReportService
	store     ScheduleStore
	deliverer Deliverer
	config    Config
	logger    *zap.Logger
	inTick    atomic.Bool
	running   atomic.Bool
}

// NewManager creates a schedule manager
func NewManager(service ReportService, store ScheduleStore, deliverer Deliverer, config Config, logger *zap.Logger) *Manager {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	return &Manager{
		service:   service,
		store:     store,
		deliverer: deliverer,
		config:    config,
		logger:    logger,
	}
}

// Start runs the poll loop until the context is cancelled
func (m *Manager) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("schedule manager already running")
	}
	defer m.running.Store(false)

	m.logger.Info("starting schedule manager",
		zap.Duration("tick_interval", m.config.TickInterval),
		zap.Int("batch_size", m.config.BatchSize))

	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	m.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schedule manager stopped")
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick processes one polling cycle. A cycle still in flight makes this a
// no-op, so a slow batch never overlaps the next one.
func (m *Manager) Tick(ctx context.Context) {
	if !m.inTick.CompareAndSwap(false, true) {
		m.logger.Warn("previous tick still running, skipping")
		return
	}
	defer m.inTick.Store(false)

	now := time.Now().UTC()
	due, err := m.store.GetDueSchedules(ctx, now, m.config.BatchSize)
	if err != nil {
		m.logger.Error("failed to poll due schedules", zap.Error(err))
		return
	}

	for _, schedule := range due {
		m.fire(ctx, schedule, now)
	}

	if purged, err := m.service.CleanupExpiredArtifacts(ctx); err != nil {
		m.logger.Warn("artifact cleanup failed", zap.Error(err))
	} else if purged > 0 {
		m.logger.Info("purged expired artifacts", zap.Int("count", purged))
	}
}

// fire runs one due schedule. Any outcome advances the next-run
// timestamp; a failing schedule fires again at its next slot rather than
// every tick.
func (m *Manager) fire(ctx context.Context, schedule *reports.ReportSchedule, now time.Time) {
	ranAt := time.Now().UTC()
	next, err := reports.NextRunAt(schedule, ranAt)
	if err != nil {
		// Without a computable next slot the schedule would fire every
		// tick forever. Push it out a day and record the problem.
		m.logger.Error("failed to compute next run",
			zap.String("schedule_id", schedule.ID.String()), zap.Error(err))
		next = ranAt.Add(24 * time.Hour)
	}

	result, err := m.service.RunScheduledExport(ctx, schedule)
	if err != nil {
		m.recordFailure(ctx, schedule, ranAt, next, err)
		return
	}

	if err := m.deliverer.Deliver(ctx, schedule, result); err != nil {
		// The execution stays completed; only the delivery leg failed.
		m.recordFailure(ctx, schedule, ranAt, next, err)
		return
	}

	if err := m.store.RecordRunSuccess(ctx, schedule.ID, ranAt, next); err != nil {
		m.logger.Error("failed to record schedule success",
			zap.String("schedule_id", schedule.ID.String()), zap.Error(err))
		return
	}
	m.logger.Info("schedule fired",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("execution_id", result.Execution.ID.String()),
		zap.Time("next_run_at", next))
}

func (m *Manager) recordFailure(ctx context.Context, schedule *reports.ReportSchedule, ranAt, next time.Time, runErr error) {
	m.logger.Error("scheduled run failed",
		zap.String("schedule_id", schedule.ID.String()),
		zap.Error(runErr))
	if err := m.store.RecordRunFailure(ctx, schedule.ID, ranAt, runErr.Error(), next); err != nil {
		m.logger.Error("failed to record schedule failure",
			zap.String("schedule_id", schedule.ID.String()), zap.Error(err))
	}
}
