package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kairos/internal/domain"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"
)

const runColumns = `id, job_id, status, run_trigger, scheduled_for, queue_job_id, queue_name, payload_snapshot,
	started_at, finished_at, duration_ms, error_code, error_summary, error_detail, version, created_at, updated_at`

type RunRepository struct {
	*DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{DB: db}
}

func scanRun(row rowScanner) (*domain.ScheduledJobRun, error) {
	var (
		run                                  domain.ScheduledJobRun
		payload                              []byte
		queueJobID, queueName                sql.NullString
		errorCode, errorSummary, errorDetail sql.NullString
		startedAt, finishedAt, durationMs    sql.NullInt64
	)
	err := row.Scan(&run.ID, &run.JobID, &run.Status, &run.Trigger, &run.ScheduledFor, &queueJobID, &queueName, &payload,
		&startedAt, &finishedAt, &durationMs, &errorCode, &errorSummary, &errorDetail, &run.Version, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if run.PayloadSnapshot, err = decodeJSON(payload); err != nil {
		return nil, err
	}
	run.QueueJobID = queueJobID.String
	run.QueueName = queueName.String
	run.StartedAt = startedAt.Int64
	run.FinishedAt = finishedAt.Int64
	if durationMs.Valid {
		d := durationMs.Int64
		run.DurationMs = &d
	}
	run.ErrorCode = errorCode.String
	run.ErrorSummary = errorSummary.String
	run.ErrorDetail = errorDetail.String
	return &run, nil
}

func durationArg(d *int64) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func (r *RunRepository) Create(ctx context.Context, run *domain.ScheduledJobRun) error {
	payload, err := encodeJSON(run.PayloadSnapshot)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.rebind(`INSERT INTO scheduled_job_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.JobID, string(run.Status), string(run.Trigger), run.ScheduledFor,
		nullString(run.QueueJobID), nullString(run.QueueName), payload,
		nullMillis(run.StartedAt), nullMillis(run.FinishedAt), durationArg(run.DurationMs),
		nullString(run.ErrorCode), nullString(run.ErrorSummary), nullString(run.ErrorDetail),
		run.Version, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s: %w", run.ID, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Update never rewrites payload_snapshot; it is immutable once the run exists
func (r *RunRepository) Update(ctx context.Context, run *domain.ScheduledJobRun, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE scheduled_job_runs SET
		status = ?, queue_job_id = ?, queue_name = ?, started_at = ?, finished_at = ?, duration_ms = ?,
		error_code = ?, error_summary = ?, error_detail = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`),
		string(run.Status), nullString(run.QueueJobID), nullString(run.QueueName),
		nullMillis(run.StartedAt), nullMillis(run.FinishedAt), durationArg(run.DurationMs),
		nullString(run.ErrorCode), nullString(run.ErrorSummary), nullString(run.ErrorDetail),
		expectedVersion+1, run.UpdatedAt, run.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, run.ID); err != nil {
			return err
		}
		return fmt.Errorf("run %s expected version %d: %w", run.ID, expectedVersion, repository.ErrOptimisticLockFailed)
	}
	run.Version = expectedVersion + 1
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledJobRun, error) {
	return r.getOne(ctx, `SELECT `+runColumns+` FROM scheduled_job_runs WHERE id = ?`, id)
}

func (r *RunRepository) GetByQueueJobID(ctx context.Context, queueJobID string) (*domain.ScheduledJobRun, error) {
	return r.getOne(ctx, `SELECT `+runColumns+` FROM scheduled_job_runs WHERE queue_job_id = ? LIMIT 1`, queueJobID)
}

func (r *RunRepository) getOne(ctx context.Context, query string, arg string) (*domain.ScheduledJobRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, r.rebind(query), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", arg, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) ListByJobID(ctx context.Context, jobID string, limit int, nextToken string) (*iface.RunPage, error) {
	key, err := decodeNextToken(nextToken)
	if err != nil {
		return nil, err
	}
	limit = pageLimit(limit)

	query := `SELECT ` + runColumns + ` FROM scheduled_job_runs WHERE job_id = ?`
	args := []interface{}{jobID}
	if key != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, key.CreatedAt, key.CreatedAt, key.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	runs, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	page := &iface.RunPage{Runs: runs}
	if len(runs) > limit {
		page.Runs = runs[:limit]
		last := page.Runs[limit-1]
		page.NextToken = encodeNextToken(pageKey{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func (r *RunRepository) ListActiveByJobID(ctx context.Context, jobID string) ([]*domain.ScheduledJobRun, error) {
	return r.query(ctx, `SELECT `+runColumns+` FROM scheduled_job_runs
		WHERE job_id = ? AND status IN (?, ?, ?)
		ORDER BY created_at ASC, id ASC`,
		jobID, string(domain.RunStatusPending), string(domain.RunStatusDispatched), string(domain.RunStatusRunning))
}

func (r *RunRepository) ListOverdueRunning(ctx context.Context, now time.Time, staleness time.Duration, limit int) ([]*domain.ScheduledJobRun, error) {
	query := `SELECT ` + runColumns + ` FROM scheduled_job_runs
		WHERE status IN (?, ?, ?) AND started_at <= ?
		ORDER BY started_at ASC, id ASC`
	args := []interface{}{
		string(domain.RunStatusPending),
		string(domain.RunStatusDispatched),
		string(domain.RunStatusRunning),
		now.Add(-staleness).UnixMilli(),
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

func (r *RunRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.ScheduledJobRun, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.ScheduledJobRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}
