// Package memory keeps schedules and runs in process memory. It backs tests and
// single-node development setups; state is lost on restart.
package memory

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"kairos/internal/domain"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"
)

type ScheduleRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ScheduledJob
}

func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{jobs: make(map[string]*domain.ScheduledJob)}
}

func (r *ScheduleRepository) Create(ctx context.Context, job *domain.ScheduledJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("schedule %s: %w", job.ID, repository.ErrAlreadyExists)
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *ScheduleRepository) Update(ctx context.Context, job *domain.ScheduledJob, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return fmt.Errorf("schedule %s: %w", job.ID, repository.ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("schedule %s at version %d, expected %d: %w", job.ID, stored.Version, expectedVersion, repository.ErrOptimisticLockFailed)
	}
	job.Version = expectedVersion + 1
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, repository.ErrNotFound)
	}
	return stored.Clone(), nil
}

func (r *ScheduleRepository) List(ctx context.Context, limit int, nextToken string) (*iface.SchedulePage, error) {
	offset, err := decodeOffset(nextToken)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	all := make([]*domain.ScheduledJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		all = append(all, j.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, k int) bool {
		if all[i].CreatedAt != all[k].CreatedAt {
			return all[i].CreatedAt < all[k].CreatedAt
		}
		return all[i].ID < all[k].ID
	})
	page, next := paginate(all, offset, limit)
	return &iface.SchedulePage{Schedules: page, NextToken: next}, nil
}

func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledJob, error) {
	r.mu.RLock()
	due := make([]*domain.ScheduledJob, 0)
	for _, j := range r.jobs {
		if j.IsDue(now) {
			due = append(due, j.Clone())
		}
	}
	r.mu.RUnlock()

	repository.SortDue(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *ScheduleRepository) Claim(ctx context.Context, req iface.ClaimRequest) (*domain.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[req.JobID]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", req.JobID, repository.ErrNotFound)
	}
	if stored.Version != req.ExpectedVersion {
		return nil, fmt.Errorf("schedule %s at version %d, expected %d: %w", req.JobID, stored.Version, req.ExpectedVersion, repository.ErrClaimConflict)
	}
	repository.ApplyClaim(stored, req)
	return stored.Clone(), nil
}

type RunRepository struct {
	mu   sync.RWMutex
	runs map[string]*domain.ScheduledJobRun
}

func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[string]*domain.ScheduledJobRun)}
}

func (r *RunRepository) Create(ctx context.Context, run *domain.ScheduledJobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; ok {
		return fmt.Errorf("run %s: %w", run.ID, repository.ErrAlreadyExists)
	}
	r.runs[run.ID] = run.Clone()
	return nil
}

func (r *RunRepository) Update(ctx context.Context, run *domain.ScheduledJobRun, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s: %w", run.ID, repository.ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("run %s at version %d, expected %d: %w", run.ID, stored.Version, expectedVersion, repository.ErrOptimisticLockFailed)
	}
	run.Version = expectedVersion + 1
	r.runs[run.ID] = run.Clone()
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledJobRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	return stored.Clone(), nil
}

func (r *RunRepository) GetByQueueJobID(ctx context.Context, queueJobID string) (*domain.ScheduledJobRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if queueJobID != "" && run.QueueJobID == queueJobID {
			return run.Clone(), nil
		}
	}
	return nil, fmt.Errorf("run with queue job %s: %w", queueJobID, repository.ErrNotFound)
}

func (r *RunRepository) ListByJobID(ctx context.Context, jobID string, limit int, nextToken string) (*iface.RunPage, error) {
	offset, err := decodeOffset(nextToken)
	if err != nil {
		return nil, err
	}
	runs := r.filter(func(run *domain.ScheduledJobRun) bool { return run.JobID == jobID })
	sort.Slice(runs, func(i, k int) bool {
		if runs[i].CreatedAt != runs[k].CreatedAt {
			return runs[i].CreatedAt > runs[k].CreatedAt
		}
		return runs[i].ID > runs[k].ID
	})
	page, next := paginate(runs, offset, limit)
	return &iface.RunPage{Runs: page, NextToken: next}, nil
}

func (r *RunRepository) ListActiveByJobID(ctx context.Context, jobID string) ([]*domain.ScheduledJobRun, error) {
	runs := r.filter(func(run *domain.ScheduledJobRun) bool {
		return run.JobID == jobID && run.Status.Active()
	})
	sort.Slice(runs, func(i, k int) bool { return runs[i].CreatedAt < runs[k].CreatedAt })
	return runs, nil
}

func (r *RunRepository) ListOverdueRunning(ctx context.Context, now time.Time, staleness time.Duration, limit int) ([]*domain.ScheduledJobRun, error) {
	cutoff := now.Add(-staleness).UnixMilli()
	runs := r.filter(func(run *domain.ScheduledJobRun) bool {
		return run.Status.Active() && run.StartedAt <= cutoff
	})
	sort.Slice(runs, func(i, k int) bool {
		if runs[i].StartedAt != runs[k].StartedAt {
			return runs[i].StartedAt < runs[k].StartedAt
		}
		return runs[i].ID < runs[k].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *RunRepository) filter(keep func(*domain.ScheduledJobRun) bool) []*domain.ScheduledJobRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.ScheduledJobRun, 0)
	for _, run := range r.runs {
		if keep(run) {
			out = append(out, run.Clone())
		}
	}
	return out
}

func paginate[T any](items []T, offset, limit int) ([]T, string) {
	if offset >= len(items) {
		return []T{}, ""
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	next := ""
	if end < len(items) {
		next = base64.URLEncoding.EncodeToString([]byte(strconv.Itoa(end)))
	}
	return items[offset:end], next
}

func decodeOffset(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("failed to decode next token: %w", err)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid next token %q", token)
	}
	return offset, nil
}
