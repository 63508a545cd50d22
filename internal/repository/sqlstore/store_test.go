package sqlstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"kairos/internal/domain"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"
	"kairos/internal/repository/repotest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteScheduleRepository(t *testing.T) {
	repotest.ScheduleRepository(t, func(t *testing.T) iface.ScheduleRepository {
		return NewScheduleRepository(openSQLite(t))
	})
}

func TestSQLiteRunRepository(t *testing.T) {
	repotest.RunRepository(t, func(t *testing.T) iface.RunRepository {
		return NewRunRepository(openSQLite(t))
	})
}

func TestSQLiteDuplicateCreate(t *testing.T) {
	repo := NewScheduleRepository(openSQLite(t))
	job := domain.NewScheduledJob("dup", domain.TriggerKindCron, "* * * * *", "t", nil, "", "", time.Now())
	require.NoError(t, repo.Create(context.Background(), job))
	err := repo.Create(context.Background(), job)
	assert.True(t, repository.IsAlreadyExists(err))
}

func TestRebind(t *testing.T) {
	pg := New(nil, DialectPostgres)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)", pg.rebind("SELECT a FROM t WHERE x = ? AND y IN (?, ?)"))

	lite := New(nil, DialectSQLite)
	assert.Equal(t, "SELECT ? ", lite.rebind("SELECT ? "))
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "")
	assert.Error(t, err)
}

func newMockRepo(t *testing.T) (*ScheduleRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewScheduleRepository(New(db, DialectPostgres)), mock
}

var scheduleCols = []string{"id", "name", "trigger_kind", "trigger_expression", "job_type", "payload", "enabled",
	"next_run", "last_run", "concurrency_policy", "timezone", "version", "created_at", "updated_at"}

func TestPostgresClaim(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(5 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE scheduled_jobs")).
		WithArgs(next.UnixMilli(), now.UnixMilli(), now.UnixMilli(), "job-1", int64(3)).
		WillReturnRows(sqlmock.NewRows(scheduleCols).AddRow(
			"job-1", "report", "interval", "5 minutes", "reports.build", []byte(`{"a":1}`), true,
			next.UnixMilli(), now.UnixMilli(), "skip", "UTC", int64(4), now.UnixMilli(), now.UnixMilli()))

	job, err := repo.Claim(context.Background(), iface.ClaimRequest{JobID: "job-1", ExpectedVersion: 3, NextRun: next, LastRun: now, Now: now})
	require.NoError(t, err)
	assert.Equal(t, int64(4), job.Version)
	assert.Equal(t, next.UnixMilli(), job.NextRun)
	assert.Equal(t, float64(1), job.Payload["a"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE scheduled_jobs")).
		WillReturnRows(sqlmock.NewRows(scheduleCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM scheduled_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	_, err := repo.Claim(context.Background(), iface.ClaimRequest{JobID: "job-1", ExpectedVersion: 3, NextRun: now, Now: now})
	assert.True(t, repository.IsClaimConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE scheduled_jobs")).
		WillReturnRows(sqlmock.NewRows(scheduleCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM scheduled_jobs")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"one"}))

	_, err := repo.Claim(context.Background(), iface.ClaimRequest{JobID: "ghost", ExpectedVersion: 1, NextRun: now, Now: now})
	assert.True(t, repository.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListDueQuery(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE enabled = \$1 AND \(next_run IS NULL OR next_run <= \$2\)\s+ORDER BY CASE WHEN next_run IS NULL THEN 0 ELSE 1 END, next_run ASC, id ASC LIMIT \$3`).
		WithArgs(true, now.UnixMilli(), 10).
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow("a", "fresh", "cron", "* * * * *", "t", []byte(`{}`), true, nil, nil, "skip", "UTC", int64(1), int64(1), int64(1)).
			AddRow("b", "due", "cron", "* * * * *", "t", []byte(`{}`), true, now.UnixMilli(), nil, "queue", "UTC", int64(2), int64(1), int64(1)))

	jobs, err := repo.ListDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Zero(t, jobs[0].NextRun)
	assert.Equal(t, domain.ConcurrencyPolicyQueue, jobs[1].ConcurrencyPolicy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunUpdateConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRunRepository(New(db, DialectPostgres))

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	job := domain.NewScheduledJob("r", domain.TriggerKindInterval, "1 minute", "t", nil, "", "", now)
	run := domain.NewScheduledJobRun(job, domain.RunTriggerScheduled, now, now)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduled_job_runs SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduled_job_runs WHERE id = $1")).
		WithArgs(run.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "status", "run_trigger", "scheduled_for", "queue_job_id",
			"queue_name", "payload_snapshot", "started_at", "finished_at", "duration_ms", "error_code", "error_summary",
			"error_detail", "version", "created_at", "updated_at"}).
			AddRow(run.ID, job.ID, "dispatched", "scheduled", now.UnixMilli(), "q1", "default", []byte(`{}`),
				now.UnixMilli(), nil, nil, nil, nil, nil, int64(2), now.UnixMilli(), now.UnixMilli()))

	err = repo.Update(context.Background(), run, 1)
	assert.True(t, repository.IsOptimisticLockError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
