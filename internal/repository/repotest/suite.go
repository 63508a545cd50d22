// Package repotest holds behaviour checks shared by every repository backend.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"kairos/internal/domain"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newJob(name string) *domain.ScheduledJob {
	return domain.NewScheduledJob(name, domain.TriggerKindInterval, "5 minutes", "reports.build",
		map[string]interface{}{"tenant": "acme", "limit": float64(10)}, domain.ConcurrencyPolicySkip, "UTC", base)
}

// ScheduleRepository exercises a fresh, empty ScheduleRepository
func ScheduleRepository(t *testing.T, newRepo func(t *testing.T) iface.ScheduleRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		job := newJob("create")
		require.NoError(t, repo.Create(ctx, job))

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.Name, got.Name)
		assert.Equal(t, job.TriggerKind, got.TriggerKind)
		assert.Equal(t, job.TriggerExpression, got.TriggerExpression)
		assert.Equal(t, job.ConcurrencyPolicy, got.ConcurrencyPolicy)
		assert.Equal(t, "acme", got.Payload["tenant"])
		assert.True(t, got.Enabled)
		assert.Zero(t, got.NextRun)
		assert.Equal(t, int64(1), got.Version)

		_, err = repo.GetByID(ctx, "missing")
		assert.True(t, repository.IsNotFound(err))
	})

	t.Run("update checks version", func(t *testing.T) {
		repo := newRepo(t)
		job := newJob("update")
		require.NoError(t, repo.Create(ctx, job))

		job.Name = "renamed"
		job.Enabled = false
		require.NoError(t, repo.Update(ctx, job, 1))
		assert.Equal(t, int64(2), job.Version)

		stale := job.Clone()
		stale.Name = "stale"
		err := repo.Update(ctx, stale, 1)
		assert.True(t, repository.IsOptimisticLockError(err))

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.False(t, got.Enabled)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("list due ordering", func(t *testing.T) {
		repo := newRepo(t)
		now := base.Add(time.Hour)

		mk := func(id string, nextRun time.Time, enabled bool) {
			job := newJob(id)
			job.ID = id
			job.Enabled = enabled
			if !nextRun.IsZero() {
				job.NextRun = nextRun.UnixMilli()
			}
			require.NoError(t, repo.Create(ctx, job))
		}
		mk("b-tie", now.Add(-time.Minute), true)
		mk("a-tie", now.Add(-time.Minute), true)
		mk("early", now.Add(-time.Hour), true)
		mk("exact", now, true)
		mk("future", now.Add(time.Second), true)
		mk("fresh", time.Time{}, true)
		mk("disabled", now.Add(-2*time.Hour), false)

		due, err := repo.ListDue(ctx, now, 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(due))
		for _, j := range due {
			ids = append(ids, j.ID)
		}
		assert.Equal(t, []string{"fresh", "early", "a-tie", "b-tie", "exact"}, ids)

		limited, err := repo.ListDue(ctx, now, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "fresh", limited[0].ID)
		assert.Equal(t, "early", limited[1].ID)
	})

	t.Run("claim", func(t *testing.T) {
		repo := newRepo(t)
		job := newJob("claim")
		require.NoError(t, repo.Create(ctx, job))

		now := base.Add(time.Minute)
		next := now.Add(5 * time.Minute)
		claimed, err := repo.Claim(ctx, iface.ClaimRequest{JobID: job.ID, ExpectedVersion: 1, NextRun: next, LastRun: now, Now: now})
		require.NoError(t, err)
		assert.Equal(t, int64(2), claimed.Version)
		assert.Equal(t, next.UnixMilli(), claimed.NextRun)
		assert.Equal(t, now.UnixMilli(), claimed.LastRun)
		assert.Equal(t, now.UnixMilli(), claimed.UpdatedAt)

		_, err = repo.Claim(ctx, iface.ClaimRequest{JobID: job.ID, ExpectedVersion: 1, NextRun: next, Now: now})
		assert.True(t, repository.IsClaimConflict(err))

		_, err = repo.Claim(ctx, iface.ClaimRequest{JobID: "missing", ExpectedVersion: 1, NextRun: next, Now: now})
		assert.True(t, repository.IsNotFound(err))

		// a claim without LastRun leaves it untouched
		claimed, err = repo.Claim(ctx, iface.ClaimRequest{JobID: job.ID, ExpectedVersion: 2, NextRun: next.Add(time.Minute), Now: now})
		require.NoError(t, err)
		assert.Equal(t, now.UnixMilli(), claimed.LastRun)
		assert.Equal(t, int64(3), claimed.Version)
	})

	t.Run("concurrent claims exactly one wins", func(t *testing.T) {
		repo := newRepo(t)
		job := newJob("race")
		require.NoError(t, repo.Create(ctx, job))

		const contenders = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Claim(ctx, iface.ClaimRequest{
					JobID:           job.ID,
					ExpectedVersion: 1,
					NextRun:         base.Add(time.Duration(i+1) * time.Minute),
					Now:             base,
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case repository.IsClaimConflict(err):
					conflicts++
				default:
					t.Errorf("unexpected claim error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, contenders-1, conflicts)
	})

	t.Run("list pages", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 5; i++ {
			job := newJob("page")
			job.CreatedAt = base.Add(time.Duration(i) * time.Second).UnixMilli()
			require.NoError(t, repo.Create(ctx, job))
		}
		seen := map[string]bool{}
		token := ""
		pages := 0
		for {
			page, err := repo.List(ctx, 2, token)
			require.NoError(t, err)
			for _, j := range page.Schedules {
				seen[j.ID] = true
			}
			pages++
			if page.NextToken == "" {
				break
			}
			token = page.NextToken
			require.Less(t, pages, 10)
		}
		assert.Len(t, seen, 5)
		assert.GreaterOrEqual(t, pages, 3)
	})
}

func newRun(job *domain.ScheduledJob, startedAt time.Time) *domain.ScheduledJobRun {
	return domain.NewScheduledJobRun(job, domain.RunTriggerScheduled, startedAt, startedAt)
}

// RunRepository exercises a fresh, empty RunRepository
func RunRepository(t *testing.T, newRepo func(t *testing.T) iface.RunRepository) {
	ctx := context.Background()
	job := newJob("runs")

	t.Run("create get update", func(t *testing.T) {
		repo := newRepo(t)
		run := newRun(job, base)
		require.NoError(t, repo.Create(ctx, run))

		got, err := repo.GetByID(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusPending, got.Status)
		assert.Equal(t, job.ID, got.JobID)
		assert.Equal(t, "acme", got.PayloadSnapshot["tenant"])
		assert.Nil(t, got.DurationMs)

		require.NoError(t, run.MarkDispatched("queue-msg-1", "reports", base))
		require.NoError(t, repo.Update(ctx, run, 1))
		assert.Equal(t, int64(2), run.Version)

		byQueue, err := repo.GetByQueueJobID(ctx, "queue-msg-1")
		require.NoError(t, err)
		assert.Equal(t, run.ID, byQueue.ID)
		assert.Equal(t, "reports", byQueue.QueueName)

		finished := base.Add(7 * time.Minute)
		require.NoError(t, run.MarkFinished(domain.RunStatusFailed, finished, domain.ErrorCodeJobFailed, "boom", "boom\ntrace", finished))
		require.NoError(t, repo.Update(ctx, run, 2))

		got, err = repo.GetByID(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusFailed, got.Status)
		require.NotNil(t, got.DurationMs)
		assert.Equal(t, int64(7*60*1000), *got.DurationMs)
		assert.Equal(t, "boom\ntrace", got.ErrorDetail)
		assert.Equal(t, domain.ErrorCodeJobFailed, got.ErrorCode)

		err = repo.Update(ctx, run, 2)
		assert.True(t, repository.IsOptimisticLockError(err))

		_, err = repo.GetByQueueJobID(ctx, "nope")
		assert.True(t, repository.IsNotFound(err))
	})

	t.Run("list by job newest first and active", func(t *testing.T) {
		repo := newRepo(t)
		var ids []string
		for i := 0; i < 3; i++ {
			run := newRun(job, base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, repo.Create(ctx, run))
			ids = append(ids, run.ID)
		}
		other := newRun(newJob("other"), base)
		require.NoError(t, repo.Create(ctx, other))

		page, err := repo.ListByJobID(ctx, job.ID, 2, "")
		require.NoError(t, err)
		require.Len(t, page.Runs, 2)
		assert.Equal(t, ids[2], page.Runs[0].ID)
		assert.Equal(t, ids[1], page.Runs[1].ID)
		require.NotEmpty(t, page.NextToken)

		page, err = repo.ListByJobID(ctx, job.ID, 2, page.NextToken)
		require.NoError(t, err)
		require.Len(t, page.Runs, 1)
		assert.Equal(t, ids[0], page.Runs[0].ID)

		active, err := repo.ListActiveByJobID(ctx, job.ID)
		require.NoError(t, err)
		assert.Len(t, active, 3)
	})

	t.Run("overdue", func(t *testing.T) {
		repo := newRepo(t)
		now := base.Add(time.Hour)

		stale := newRun(job, now.Add(-30*time.Minute))
		require.NoError(t, stale.MarkDispatched("q-stale", "default", now))
		require.NoError(t, repo.Create(ctx, stale))

		running := newRun(job, now.Add(-20*time.Minute))
		require.NoError(t, running.MarkDispatched("q-running", "default", now))
		require.NoError(t, running.MarkRunning(now))
		require.NoError(t, repo.Create(ctx, running))

		fresh := newRun(job, now.Add(-time.Minute))
		require.NoError(t, fresh.MarkDispatched("q-fresh", "default", now))
		require.NoError(t, repo.Create(ctx, fresh))

		pending := newRun(job, now.Add(-time.Hour))
		require.NoError(t, repo.Create(ctx, pending))

		freshPending := newRun(job, now.Add(-time.Minute))
		require.NoError(t, repo.Create(ctx, freshPending))

		done := newRun(job, now.Add(-time.Hour))
		require.NoError(t, done.MarkDispatched("q-done", "default", now))
		require.NoError(t, done.MarkFinished(domain.RunStatusSucceeded, now, "", "", "", now))
		require.NoError(t, repo.Create(ctx, done))

		overdue, err := repo.ListOverdueRunning(ctx, now, 10*time.Minute, 0)
		require.NoError(t, err)
		got := map[string]bool{}
		for _, r := range overdue {
			got[r.ID] = true
		}
		assert.Equal(t, map[string]bool{stale.ID: true, running.ID: true, pending.ID: true}, got)
		require.Len(t, overdue, 3)
		assert.Equal(t, pending.ID, overdue[0].ID)
	})
}
