package repository

import (
	"context"
	"time"

	"kairos/internal/domain"
)

// ClaimRequest is a version-checked advance of a schedule's next fire time
type ClaimRequest struct {
	JobID           string
	ExpectedVersion int64
	// NextRun is the new next fire time; the zero value clears it
	NextRun time.Time
	// LastRun is set when the claim fires the schedule; the zero value leaves it unchanged
	LastRun time.Time
	Now     time.Time
}

// SchedulePage is one page of schedules
type SchedulePage struct {
	Schedules []*domain.ScheduledJob
	NextToken string // opaque, empty on the last page
}

// ScheduleRepository persists schedule definitions
type ScheduleRepository interface {
	Create(ctx context.Context, job *domain.ScheduledJob) error
	// Update replaces the definition if the stored version equals expectedVersion and bumps the version
	Update(ctx context.Context, job *domain.ScheduledJob, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error)
	List(ctx context.Context, limit int, nextToken string) (*SchedulePage, error)
	// ListDue returns enabled schedules whose next_run is unset or <= now.
	// Unset first, then next_run ascending, ties by id ascending.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledJob, error)
	// Claim returns ErrClaimConflict when the version moved and ErrNotFound for unknown ids
	Claim(ctx context.Context, req ClaimRequest) (*domain.ScheduledJob, error)
}
