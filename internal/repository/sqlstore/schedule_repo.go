package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kairos/internal/domain"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"

	"github.com/lib/pq"
)

const scheduleColumns = `id, name, trigger_kind, trigger_expression, job_type, payload, enabled,
	next_run, last_run, concurrency_policy, timezone, version, created_at, updated_at`

type ScheduleRepository struct {
	*DB
}

func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{DB: db}
}

func scanSchedule(row rowScanner) (*domain.ScheduledJob, error) {
	var (
		job              domain.ScheduledJob
		payload          []byte
		nextRun, lastRun sql.NullInt64
	)
	err := row.Scan(&job.ID, &job.Name, &job.TriggerKind, &job.TriggerExpression, &job.JobType, &payload, &job.Enabled,
		&nextRun, &lastRun, &job.ConcurrencyPolicy, &job.Timezone, &job.Version, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if job.Payload, err = decodeJSON(payload); err != nil {
		return nil, err
	}
	job.NextRun = nextRun.Int64
	job.LastRun = lastRun.Int64
	return &job, nil
}

func (r *ScheduleRepository) Create(ctx context.Context, job *domain.ScheduledJob) error {
	payload, err := encodeJSON(job.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.rebind(`INSERT INTO scheduled_jobs (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID, job.Name, string(job.TriggerKind), job.TriggerExpression, job.JobType, payload, job.Enabled,
		nullMillis(job.NextRun), nullMillis(job.LastRun), string(job.ConcurrencyPolicy), job.Timezone,
		job.Version, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("schedule %s: %w", job.ID, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) Update(ctx context.Context, job *domain.ScheduledJob, expectedVersion int64) error {
	payload, err := encodeJSON(job.Payload)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE scheduled_jobs SET
		name = ?, trigger_kind = ?, trigger_expression = ?, job_type = ?, payload = ?, enabled = ?,
		next_run = ?, last_run = ?, concurrency_policy = ?, timezone = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`),
		job.Name, string(job.TriggerKind), job.TriggerExpression, job.JobType, payload, job.Enabled,
		nullMillis(job.NextRun), nullMillis(job.LastRun), string(job.ConcurrencyPolicy), job.Timezone,
		expectedVersion+1, job.UpdatedAt, job.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		if err := r.exists(ctx, job.ID); err != nil {
			return err
		}
		return fmt.Errorf("schedule %s expected version %d: %w", job.ID, expectedVersion, repository.ErrOptimisticLockFailed)
	}
	job.Version = expectedVersion + 1
	return nil
}

func (r *ScheduleRepository) exists(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM scheduled_jobs WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("schedule %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+scheduleColumns+` FROM scheduled_jobs WHERE id = ?`), id)
	job, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return job, nil
}

func (r *ScheduleRepository) List(ctx context.Context, limit int, nextToken string) (*iface.SchedulePage, error) {
	key, err := decodeNextToken(nextToken)
	if err != nil {
		return nil, err
	}
	limit = pageLimit(limit)

	query := `SELECT ` + scheduleColumns + ` FROM scheduled_jobs`
	args := []interface{}{}
	if key != nil {
		query += ` WHERE created_at > ? OR (created_at = ? AND id > ?)`
		args = append(args, key.CreatedAt, key.CreatedAt, key.ID)
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit+1)

	jobs, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	page := &iface.SchedulePage{Schedules: jobs}
	if len(jobs) > limit {
		page.Schedules = jobs[:limit]
		last := page.Schedules[limit-1]
		page.NextToken = encodeNextToken(pageKey{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledJob, error) {
	query := `SELECT ` + scheduleColumns + ` FROM scheduled_jobs
		WHERE enabled = ? AND (next_run IS NULL OR next_run <= ?)
		ORDER BY CASE WHEN next_run IS NULL THEN 0 ELSE 1 END, next_run ASC, id ASC`
	args := []interface{}{true, now.UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

func (r *ScheduleRepository) Claim(ctx context.Context, req iface.ClaimRequest) (*domain.ScheduledJob, error) {
	var nextRun, lastRun interface{}
	if !req.NextRun.IsZero() {
		nextRun = req.NextRun.UnixMilli()
	}
	if !req.LastRun.IsZero() {
		lastRun = req.LastRun.UnixMilli()
	}

	row := r.db.QueryRowContext(ctx, r.rebind(`UPDATE scheduled_jobs
		SET next_run = ?, last_run = COALESCE(?, last_run), version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
		RETURNING `+scheduleColumns),
		nextRun, lastRun, req.Now.UnixMilli(), req.JobID, req.ExpectedVersion)
	job, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		if err := r.exists(ctx, req.JobID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("schedule %s expected version %d: %w", req.JobID, req.ExpectedVersion, repository.ErrClaimConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim schedule: %w", err)
	}
	return job, nil
}

func (r *ScheduleRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.ScheduledJob, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.ScheduledJob, 0)
	for rows.Next() {
		job, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	return jobs, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed: unique")
}
