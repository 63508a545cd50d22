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
	"kairos/internal/trigger"
)

const defaultMaxCASRetries = 5

// completionTracker moves a skip-policy schedule's next_run once its run is complete
type completionTracker struct {
	schedules  iface.ScheduleRepository
	clock      clock.Clock
	maxRetries int
	logger     logger.Logger
}

func newCompletionTracker(schedules iface.ScheduleRepository, clk clock.Clock, maxRetries int, log logger.Logger) *completionTracker {
	if maxRetries <= 0 {
		maxRetries = defaultMaxCASRetries
	}
	return &completionTracker{
		schedules:  schedules,
		clock:      clk,
		maxRetries: maxRetries,
		logger:     log,
	}
}

// RunCompleted recomputes next_run from completedAt. Manual runs, disabled
// schedules and fixed-cadence policies are left alone.
func (c *completionTracker) RunCompleted(ctx context.Context, run *domain.ScheduledJobRun, completedAt time.Time) error {
	if run.Trigger != domain.RunTriggerScheduled {
		return nil
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		job, err := c.schedules.GetByID(ctx, run.JobID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to load schedule %s: %w", run.JobID, err)
		}
		if !job.Enabled || job.ConcurrencyPolicy != domain.ConcurrencyPolicySkip {
			return nil
		}

		now := c.clock.Now()
		next, err := trigger.RecalculateNextRun(job, run, completedAt)
		if err != nil {
			return fmt.Errorf("failed to recalculate next run for %s: %w", job.ID, err)
		}
		if next.Before(now) {
			next = now
		}

		_, err = c.schedules.Claim(ctx, iface.ClaimRequest{
			JobID:           job.ID,
			ExpectedVersion: job.Version,
			NextRun:         next,
			Now:             now,
		})
		if err == nil {
			c.logger.Debug("next run recomputed after completion",
				logger.String("schedule_id", job.ID),
				logger.String("run_id", run.ID),
				logger.Time("next_run", next))
			return nil
		}
		if !repository.IsClaimConflict(err) {
			return fmt.Errorf("failed to advance schedule %s: %w", job.ID, err)
		}

		c.logger.Debug("schedule changed underneath, retrying",
			logger.String("schedule_id", job.ID),
			logger.Int("attempt", attempt))
	}

	return fmt.Errorf("schedule %s: gave up after %d attempts: %w", run.JobID, c.maxRetries, repository.ErrClaimConflict)
}
