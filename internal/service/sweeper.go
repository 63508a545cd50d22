package service

import (
	"context"
	"fmt"
	"time"

	"kairos/internal/clock"
	"kairos/internal/domain"
	"kairos/internal/logger"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"
)

// SweepReport counts what one timeout sweep did. Abandoned runs never got past
// pending, so they are failed with dispatch_error instead of timed out.
type SweepReport struct {
	Overdue   int
	TimedOut  int
	Abandoned int
	Conflicts int
	Errors    int
}

// Sweeper settles runs that stayed pending, dispatched or running past the staleness window
type Sweeper struct {
	runs       iface.RunRepository
	completion *completionTracker
	alerter    *Alerter
	clock      clock.Clock
	staleAfter time.Duration
	batchSize  int
	logger     logger.Logger
}

func NewSweeper(
	runs iface.RunRepository,
	schedules iface.ScheduleRepository,
	alerter *Alerter,
	clk clock.Clock,
	staleAfter time.Duration,
	batchSize int,
	log logger.Logger,
) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	log = log.With(logger.String("component", "sweeper"))
	return &Sweeper{
		runs:       runs,
		completion: newCompletionTracker(schedules, clk, 0, log),
		alerter:    alerter,
		clock:      clk,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		logger:     log,
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.clock.Now()

	overdue, err := s.runs.ListOverdueRunning(ctx, now, s.staleAfter, s.batchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list overdue runs: %w", err)
	}
	report.Overdue = len(overdue)

	for _, run := range overdue {
		pending := run.Status == domain.RunStatusPending
		settled, err := s.settle(ctx, run, now)
		switch {
		case err != nil:
			report.Errors++
			s.logger.Error("failed to settle overdue run",
				logger.String("run_id", run.ID),
				logger.Error(err))
		case !settled:
			report.Conflicts++
		case pending:
			report.Abandoned++
		default:
			report.TimedOut++
		}
	}

	if report.Overdue > 0 {
		s.logger.Info("timeout sweep finished",
			logger.Int("overdue", report.Overdue),
			logger.Int("timed_out", report.TimedOut),
			logger.Int("abandoned", report.Abandoned),
			logger.Int("conflicts", report.Conflicts),
			logger.Int("errors", report.Errors))
	}
	return report, nil
}

// settle reports false when the run was settled by someone else first
func (s *Sweeper) settle(ctx context.Context, run *domain.ScheduledJobRun, now time.Time) (bool, error) {
	expected := run.Version
	status, code, summary := domain.RunStatusTimedOut, domain.ErrorCodeRunTimeout, "run timed out"
	detail := fmt.Sprintf("no outcome within %s of start (status %s)", s.staleAfter, run.Status)
	if run.Status == domain.RunStatusPending {
		// pending cannot time out; the enqueue was never recorded
		status, code, summary = domain.RunStatusFailed, domain.ErrorCodeDispatch, "run never dispatched"
		detail = fmt.Sprintf("still pending %s after creation", s.staleAfter)
	}

	if err := run.MarkFinished(status, now, code, summary, detail, now); err != nil {
		if domain.IsRunTerminal(err) {
			return false, nil
		}
		return false, err
	}

	if err := s.runs.Update(ctx, run, expected); err != nil {
		if repository.IsOptimisticLockError(err) {
			s.logger.Debug("run changed before it could be settled", logger.String("run_id", run.ID))
			return false, nil
		}
		return false, err
	}

	s.logger.Warn("overdue run settled",
		logger.String("run_id", run.ID),
		logger.String("schedule_id", run.JobID),
		logger.String("status", string(run.Status)))
	s.alerter.RunFailed(ctx, run)

	if err := s.completion.RunCompleted(ctx, run, now); err != nil {
		s.logger.Warn("failed to reschedule after sweep",
			logger.String("run_id", run.ID),
			logger.Error(err))
	}
	return true, nil
}
