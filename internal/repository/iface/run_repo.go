package repository

import (
	"context"
	"time"

	"kairos/internal/domain"
)

// RunPage contains paginated results
type RunPage struct {
	Runs      []*domain.ScheduledJobRun
	NextToken string // opaque, empty on the last page
}

// RunRepository persists run history. Runs are never deleted.
type RunRepository interface {
	// Create records a new run (recordRunStart)
	Create(ctx context.Context, run *domain.ScheduledJobRun) error
	// Update stores run if the persisted version equals expectedVersion (recordRunOutcome).
	// The stored version becomes expectedVersion+1.
	Update(ctx context.Context, run *domain.ScheduledJobRun, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledJobRun, error)
	GetByQueueJobID(ctx context.Context, queueJobID string) (*domain.ScheduledJobRun, error)
	// ListByJobID returns a schedule's runs newest first
	ListByJobID(ctx context.Context, jobID string, limit int, nextToken string) (*RunPage, error)
	// ListActiveByJobID returns the schedule's runs that are not terminal
	ListActiveByJobID(ctx context.Context, jobID string) ([]*domain.ScheduledJobRun, error)
	// ListOverdueRunning returns non-terminal runs (pending, dispatched or running)
	// started at or before now-staleness, oldest first
	ListOverdueRunning(ctx context.Context, now time.Time, staleness time.Duration, limit int) ([]*domain.ScheduledJobRun, error)
}
