package service

import (
	"context"
	"testing"
	"time"

	"kairos/internal/domain"
	queue "kairos/internal/queue/iface"
	"kairos/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatchFirst creates a schedule and fires it once at t0+5m
func dispatchFirst(t *testing.T, h *harness, policy domain.ConcurrencyPolicy) (*domain.ScheduledJob, *domain.ScheduledJobRun) {
	t.Helper()
	job := h.create(t, domain.TriggerKindInterval, "5 minutes", policy)
	h.poll(t)
	h.clock.Set(t0.Add(5 * time.Minute))
	require.Equal(t, 1, h.poll(t).Dispatched)
	runs := h.runsOf(t, job.ID)
	require.Len(t, runs, 1)
	return job, runs[0]
}

func TestOnOutcome_DriftBySkipPolicy(t *testing.T) {
	tests := []struct {
		name     string
		policy   domain.ConcurrencyPolicy
		wantNext time.Time
	}{
		{"skip measures from completion", domain.ConcurrencyPolicySkip, t0.Add(12 * time.Minute)},
		{"queue keeps the cadence", domain.ConcurrencyPolicyQueue, t0.Add(10 * time.Minute)},
		{"allow-overlap keeps the cadence", domain.ConcurrencyPolicyAllowOverlap, t0.Add(10 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			job, run := dispatchFirst(t, h, tt.policy)

			finished := t0.Add(7 * time.Minute)
			h.clock.Set(finished)
			got, err := h.outcomes.OnOutcome(context.Background(), run.QueueJobID, domain.RunStatusSucceeded, "", finished)
			require.NoError(t, err)

			assert.Equal(t, domain.RunStatusSucceeded, got.Status)
			require.NotNil(t, got.DurationMs)
			assert.Equal(t, (2 * time.Minute).Milliseconds(), *got.DurationMs)
			assert.Empty(t, got.ErrorCode)

			assert.Equal(t, ms(tt.wantNext), h.job(t, job.ID).NextRun)
		})
	}
}

func TestOnOutcome_RunningThenFailed(t *testing.T) {
	h := newHarness(t)
	_, run := dispatchFirst(t, h, domain.ConcurrencyPolicySkip)

	h.clock.Advance(30 * time.Second)
	got, err := h.outcomes.Apply(context.Background(), queue.OutcomeMessage{RunID: run.ID, Status: "running"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)

	// repeated running reports are idempotent
	again, err := h.outcomes.Apply(context.Background(), queue.OutcomeMessage{RunID: run.ID, Status: "running"})
	require.NoError(t, err)
	assert.Equal(t, got.Version, again.Version)

	h.clock.Advance(time.Minute)
	got, err = h.outcomes.Apply(context.Background(), queue.OutcomeMessage{
		QueueJobID:  run.QueueJobID,
		Status:      "failed",
		ErrorDetail: "connection refused\nstack trace here",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.Equal(t, domain.ErrorCodeJobFailed, got.ErrorCode)
	assert.Equal(t, "connection refused", got.ErrorSummary)
	assert.Contains(t, got.ErrorDetail, "stack trace")
	assert.Equal(t, ms(h.clock.Now()), got.FinishedAt)
	assert.Equal(t, 1, h.slack.count())
}

func TestOnOutcome_TerminalRunIsNoop(t *testing.T) {
	h := newHarness(t)
	job, run := dispatchFirst(t, h, domain.ConcurrencyPolicySkip)

	h.clock.Set(t0.Add(6 * time.Minute))
	first, err := h.outcomes.OnOutcome(context.Background(), run.QueueJobID, domain.RunStatusSucceeded, "", h.clock.Now())
	require.NoError(t, err)
	next := h.job(t, job.ID).NextRun

	h.clock.Set(t0.Add(9 * time.Minute))
	second, err := h.outcomes.OnOutcome(context.Background(), run.QueueJobID, domain.RunStatusFailed, "late", h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, second.Status)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, next, h.job(t, job.ID).NextRun)
	assert.Equal(t, 0, h.slack.count())
}

func TestOnOutcome_LateFinishIsClampedToNow(t *testing.T) {
	h := newHarness(t)
	job, run := dispatchFirst(t, h, domain.ConcurrencyPolicySkip)

	// the report arrives long after the handler finished
	h.clock.Set(t0.Add(30 * time.Minute))
	_, err := h.outcomes.OnOutcome(context.Background(), run.QueueJobID, domain.RunStatusSucceeded, "", t0.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ms(t0.Add(30*time.Minute)), h.job(t, job.ID).NextRun)
}

func TestOnOutcome_Rejections(t *testing.T) {
	h := newHarness(t)
	_, run := dispatchFirst(t, h, domain.ConcurrencyPolicySkip)
	ctx := context.Background()

	_, err := h.outcomes.Apply(ctx, queue.OutcomeMessage{RunID: run.ID, Status: "dispatched"})
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = h.outcomes.Apply(ctx, queue.OutcomeMessage{Status: "succeeded"})
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = h.outcomes.Apply(ctx, queue.OutcomeMessage{QueueJobID: "missing", Status: "succeeded"})
	assert.True(t, repository.IsNotFound(err))
}

func TestOutcomeHandler_ProcessMessage(t *testing.T) {
	h := newHarness(t)
	_, run := dispatchFirst(t, h, domain.ConcurrencyPolicySkip)
	ctx := context.Background()

	assert.True(t, h.outcomes.ProcessMessage(ctx, queue.OutcomeMessage{QueueJobID: run.QueueJobID, Status: "succeeded"}))
	// unknown runs and bad statuses are dropped rather than redelivered
	assert.True(t, h.outcomes.ProcessMessage(ctx, queue.OutcomeMessage{QueueJobID: "nope", Status: "succeeded"}))
	assert.True(t, h.outcomes.ProcessMessage(ctx, queue.OutcomeMessage{RunID: run.ID, Status: "bogus"}))

	// a report for a run whose dispatch was never recorded adopts it
	job := h.create(t, domain.TriggerKindInterval, "1h", domain.ConcurrencyPolicySkip)
	pending := domain.NewScheduledJobRun(job, domain.RunTriggerManual, h.clock.Now(), h.clock.Now())
	require.NoError(t, h.runs.Create(ctx, pending))
	assert.True(t, h.outcomes.ProcessMessage(ctx, queue.OutcomeMessage{QueueJobID: "q-late", RunID: pending.ID, Status: "running"}))

	got, err := h.runs.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
	assert.Equal(t, "q-late", got.QueueJobID)
}

func TestOnOutcome_FutureFinishIsClampedToNow(t *testing.T) {
	h := newHarness(t)
	job, run := dispatchFirst(t, h, domain.ConcurrencyPolicySkip)

	h.clock.Set(t0.Add(7 * time.Minute))
	got, err := h.outcomes.OnOutcome(context.Background(), run.QueueJobID, domain.RunStatusSucceeded, "", t0.AddDate(1, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, ms(t0.Add(7*time.Minute)), got.FinishedAt)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, (2 * time.Minute).Milliseconds(), *got.DurationMs)
	assert.Equal(t, ms(t0.Add(12*time.Minute)), h.job(t, job.ID).NextRun)
}

func TestOnOutcome_AdoptsRunStillPending(t *testing.T) {
	h := newHarness(t)
	job := h.create(t, domain.TriggerKindInterval, "5 minutes", domain.ConcurrencyPolicySkip)
	ctx := context.Background()

	// enqueued, but the process died before the dispatch was written
	run := domain.NewScheduledJobRun(job, domain.RunTriggerScheduled, t0, t0)
	require.NoError(t, h.runs.Create(ctx, run))

	h.clock.Set(t0.Add(3 * time.Minute))
	got, err := h.outcomes.Apply(ctx, queue.OutcomeMessage{
		QueueJobID: "q-unrecorded",
		RunID:      run.ID,
		Status:     "succeeded",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, got.Status)
	assert.Equal(t, "q-unrecorded", got.QueueJobID)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, (3 * time.Minute).Milliseconds(), *got.DurationMs)
	assert.Equal(t, ms(t0.Add(8*time.Minute)), h.job(t, job.ID).NextRun)
}
