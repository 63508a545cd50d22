package service

import (
	"context"
	"fmt"
	"time"

	"kairos/internal/clock"
	"kairos/internal/domain"
	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"
)

// OutcomeHandler applies handler-reported status changes to runs
type OutcomeHandler struct {
	runs       iface.RunRepository
	completion *completionTracker
	alerter    *Alerter
	clock      clock.Clock
	maxRetries int
	logger     logger.Logger
}

func NewOutcomeHandler(
	runs iface.RunRepository,
	schedules iface.ScheduleRepository,
	alerter *Alerter,
	clk clock.Clock,
	maxRetries int,
	log logger.Logger,
) *OutcomeHandler {
	if maxRetries <= 0 {
		maxRetries = defaultMaxCASRetries
	}
	log = log.With(logger.String("component", "outcome_handler"))
	return &OutcomeHandler{
		runs:       runs,
		completion: newCompletionTracker(schedules, clk, maxRetries, log),
		alerter:    alerter,
		clock:      clk,
		maxRetries: maxRetries,
		logger:     log,
	}
}

// OnOutcome applies an outcome reported against a queue job id
func (h *OutcomeHandler) OnOutcome(ctx context.Context, queueJobID string, status domain.RunStatus, errorDetail string, finishedAt time.Time) (*domain.ScheduledJobRun, error) {
	return h.Apply(ctx, queue.OutcomeMessage{
		QueueJobID:  queueJobID,
		Status:      string(status),
		ErrorDetail: errorDetail,
		FinishedAt:  unixMillis(finishedAt),
	})
}

// Apply looks the run up by queue job id, falling back to the run id. Reports
// against a terminal run are ignored and return the run unchanged. Finish times
// in the future are clamped to now.
func (h *OutcomeHandler) Apply(ctx context.Context, msg queue.OutcomeMessage) (*domain.ScheduledJobRun, error) {
	status := domain.RunStatus(msg.Status)
	if status != domain.RunStatusRunning && !status.Terminal() {
		return nil, fmt.Errorf("status %q: %w", msg.Status, ErrInvalidOutcome)
	}
	if msg.QueueJobID == "" && msg.RunID == "" {
		return nil, fmt.Errorf("queue_job_id or run_id is required: %w", ErrInvalidOutcome)
	}

	for attempt := 1; attempt <= h.maxRetries; attempt++ {
		run, err := h.lookup(ctx, msg)
		if err != nil {
			return nil, err
		}

		if run.Status.Terminal() {
			h.logger.Debug("outcome for finished run ignored",
				logger.String("run_id", run.ID),
				logger.String("run_status", string(run.Status)),
				logger.String("reported_status", msg.Status))
			return run, nil
		}
		if status == domain.RunStatusRunning && run.Status == domain.RunStatusRunning {
			return run, nil
		}

		now := h.clock.Now()
		finishedAt := now
		if msg.FinishedAt > 0 {
			finishedAt = time.UnixMilli(msg.FinishedAt)
		}
		if finishedAt.After(now) {
			finishedAt = now
		}

		expected := run.Version
		if run.Status == domain.RunStatusPending {
			// the handler picked the job up before its dispatch was recorded
			if err := run.MarkDispatched(msg.QueueJobID, run.QueueName, now); err != nil {
				return nil, err
			}
		}
		if err := h.transition(run, status, msg.ErrorDetail, finishedAt, now); err != nil {
			return nil, err
		}

		err = h.runs.Update(ctx, run, expected)
		if repository.IsOptimisticLockError(err) {
			h.logger.Debug("run changed underneath, retrying",
				logger.String("run_id", run.ID),
				logger.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record outcome for run %s: %w", run.ID, err)
		}

		h.logger.Info("run outcome recorded",
			logger.String("run_id", run.ID),
			logger.String("schedule_id", run.JobID),
			logger.String("status", string(run.Status)))

		if status.Terminal() {
			if status == domain.RunStatusFailed || status == domain.RunStatusTimedOut {
				h.alerter.RunFailed(ctx, run)
			}
			if err := h.completion.RunCompleted(ctx, run, finishedAt); err != nil {
				h.logger.Warn("failed to reschedule after outcome",
					logger.String("run_id", run.ID),
					logger.Error(err))
			}
		}
		return run, nil
	}

	return nil, fmt.Errorf("outcome for %s%s: gave up after %d attempts: %w", msg.QueueJobID, msg.RunID, h.maxRetries, repository.ErrOptimisticLockFailed)
}

func (h *OutcomeHandler) lookup(ctx context.Context, msg queue.OutcomeMessage) (*domain.ScheduledJobRun, error) {
	if msg.QueueJobID != "" {
		run, err := h.runs.GetByQueueJobID(ctx, msg.QueueJobID)
		if msg.RunID == "" || !repository.IsNotFound(err) {
			return run, err
		}
	}
	return h.runs.GetByID(ctx, msg.RunID)
}

func (h *OutcomeHandler) transition(run *domain.ScheduledJobRun, status domain.RunStatus, detail string, finishedAt, now time.Time) error {
	if status == domain.RunStatusRunning {
		return run.MarkRunning(now)
	}

	code := ""
	switch status {
	case domain.RunStatusFailed:
		code = domain.ErrorCodeJobFailed
	case domain.RunStatusTimedOut:
		code = domain.ErrorCodeRunTimeout
	}
	return run.MarkFinished(status, finishedAt, code, domain.Summarize(detail, maxErrorSummary), detail, now)
}

// ProcessMessage lets queue consumers feed outcomes in. It returns false only
// for failures worth redelivering.
func (h *OutcomeHandler) ProcessMessage(ctx context.Context, msg queue.OutcomeMessage) bool {
	_, err := h.Apply(ctx, msg)
	switch {
	case err == nil:
		return true
	case IsValidationError(err), repository.IsNotFound(err):
		h.logger.Warn("dropping outcome",
			logger.String("queue_job_id", msg.QueueJobID),
			logger.String("run_id", msg.RunID),
			logger.Error(err))
		return true
	default:
		h.logger.Error("failed to apply outcome",
			logger.String("queue_job_id", msg.QueueJobID),
			logger.String("run_id", msg.RunID),
			logger.Error(err))
		return false
	}
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
