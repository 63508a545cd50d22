package service

import (
	"context"
	"testing"
	"time"

	"kairos/internal/domain"
	queue "kairos/internal/queue/iface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnce_TimesOutExactlyOnce(t *testing.T) {
	h := newHarness(t)
	job, run := dispatchFirst(t, h, domain.ConcurrencyPolicySkip)
	ctx := context.Background()

	// within the staleness window nothing happens
	h.clock.Set(t0.Add(14 * time.Minute))
	report, err := h.scheduler.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Overdue)

	h.clock.Set(t0.Add(16 * time.Minute))
	report, err = h.scheduler.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Overdue: 1, TimedOut: 1}, report)

	got, err := h.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusTimedOut, got.Status)
	assert.Equal(t, domain.ErrorCodeRunTimeout, got.ErrorCode)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, (11 * time.Minute).Milliseconds(), *got.DurationMs)
	assert.Equal(t, 1, h.slack.count())
	assert.Equal(t, ms(t0.Add(21*time.Minute)), h.job(t, job.ID).NextRun)

	report, err = h.scheduler.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)

	// the handler reports success after the timeout: ignored
	late, err := h.outcomes.OnOutcome(ctx, run.QueueJobID, domain.RunStatusSucceeded, "", h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusTimedOut, late.Status)
	assert.Equal(t, got.Version, late.Version)
	assert.Equal(t, 1, h.slack.count())
}

func TestSweepOnce_RunSettledConcurrently(t *testing.T) {
	h := newHarness(t)
	_, run := dispatchFirst(t, h, domain.ConcurrencyPolicySkip)
	ctx := context.Background()

	h.clock.Set(t0.Add(16 * time.Minute))
	overdue, err := h.runs.ListOverdueRunning(ctx, h.clock.Now(), 10*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	// the outcome lands between the sweep's read and its write
	_, err = h.outcomes.OnOutcome(ctx, run.QueueJobID, domain.RunStatusSucceeded, "", h.clock.Now())
	require.NoError(t, err)

	settled, err := h.sweeper.settle(ctx, overdue[0], h.clock.Now())
	require.NoError(t, err)
	assert.False(t, settled)

	got, err := h.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, got.Status)
}

func TestSweepOnce_FailsStalePendingRun(t *testing.T) {
	h := newHarness(t)
	job := h.create(t, domain.TriggerKindInterval, "5 minutes", domain.ConcurrencyPolicySkip)
	ctx := context.Background()
	h.poll(t)

	// a run left pending by an instance that died between recording it and enqueueing
	h.clock.Set(t0.Add(5 * time.Minute))
	stuck := domain.NewScheduledJobRun(job, domain.RunTriggerScheduled, t0.Add(5*time.Minute), h.clock.Now())
	require.NoError(t, h.runs.Create(ctx, stuck))

	report := h.poll(t)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Dispatched)

	h.clock.Set(t0.Add(16 * time.Minute))
	sweep, err := h.scheduler.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Overdue: 1, Abandoned: 1}, sweep)

	got, err := h.runs.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.Equal(t, domain.ErrorCodeDispatch, got.ErrorCode)
	assert.Equal(t, 1, h.slack.count())
	assert.Equal(t, ms(t0.Add(21*time.Minute)), h.job(t, job.ID).NextRun)

	// the schedule fires again
	h.clock.Set(t0.Add(21 * time.Minute))
	assert.Equal(t, 1, h.poll(t).Dispatched)
	assert.Len(t, h.runsOf(t, job.ID), 2)

	// a late report for the failed run changes nothing
	late, err := h.outcomes.Apply(ctx, queue.OutcomeMessage{RunID: stuck.ID, Status: "succeeded"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, late.Status)
}
