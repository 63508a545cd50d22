package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"kairos/internal/clock"
	"kairos/internal/coordinator/noop"
	"kairos/internal/domain"
	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"
	"kairos/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type fakeQueue struct {
	mu       sync.Mutex
	requests []queue.EnqueueRequest
	err      error
	delay    time.Duration
	inFlight int
	maxSeen  int
}

func (f *fakeQueue) Enqueue(ctx context.Context, req queue.EnqueueRequest) (queue.EnqueueResult, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.err != nil {
		return queue.EnqueueResult{}, f.err
	}
	f.requests = append(f.requests, req)
	return queue.EnqueueResult{QueueJobID: fmt.Sprintf("q-%d", len(f.requests)), QueueName: "test"}, nil
}

func (f *fakeQueue) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeQueue) sent() []queue.EnqueueRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.EnqueueRequest(nil), f.requests...)
}

type fakeSlack struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeSlack) SendMessage(ctx context.Context, channel, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, channel+": "+message)
	return nil
}

func (f *fakeSlack) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type harness struct {
	clock      *clock.Fake
	schedules  *memory.ScheduleRepository
	runs       *memory.RunRepository
	queue      *fakeQueue
	slack      *fakeSlack
	dispatcher *Dispatcher
	sweeper    *Sweeper
	outcomes   *OutcomeHandler
	scheduler  *Scheduler
	manager    *ScheduleManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     clock.NewFake(t0),
		schedules: memory.NewScheduleRepository(),
		runs:      memory.NewRunRepository(),
		queue:     &fakeQueue{},
		slack:     &fakeSlack{},
	}
	log := logger.NewNopLogger()
	alerter := NewAlerter(h.slack, "#alerts", log)

	h.dispatcher = NewDispatcher(h.runs, h.schedules, h.queue, alerter, h.clock, DispatcherConfig{Timeout: time.Second, MaxConcurrent: 4}, log)
	h.sweeper = NewSweeper(h.runs, h.schedules, alerter, h.clock, 10*time.Minute, 100, log)
	h.outcomes = NewOutcomeHandler(h.runs, h.schedules, alerter, h.clock, 3, log)
	h.scheduler = h.newScheduler()
	h.manager = NewScheduleManager(h.schedules, h.runs, h.dispatcher, h.clock, log)
	return h
}

// newScheduler builds another instance over the same store, as a second node would
func (h *harness) newScheduler() *Scheduler {
	return NewScheduler(h.schedules, h.runs, h.dispatcher, h.sweeper, noop.NewLocker(), h.clock,
		Config{PollInterval: time.Second, SweepInterval: time.Second, BatchSize: 50}, logger.NewNopLogger())
}

func (h *harness) create(t *testing.T, kind domain.TriggerKind, expr string, policy domain.ConcurrencyPolicy) *domain.ScheduledJob {
	t.Helper()
	job, err := h.manager.CreateSchedule(context.Background(), CreateScheduleInput{
		Name:              "job-" + expr,
		TriggerKind:       kind,
		TriggerExpression: expr,
		JobType:           "report",
		Payload:           map[string]interface{}{"tenant": "acme"},
		ConcurrencyPolicy: policy,
	})
	require.NoError(t, err)
	return job
}

func (h *harness) poll(t *testing.T) CycleReport {
	t.Helper()
	report, err := h.scheduler.PollOnce(context.Background())
	require.NoError(t, err)
	return report
}

func (h *harness) job(t *testing.T, id string) *domain.ScheduledJob {
	t.Helper()
	job, err := h.schedules.GetByID(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (h *harness) runsOf(t *testing.T, jobID string) []*domain.ScheduledJobRun {
	t.Helper()
	page, err := h.runs.ListByJobID(context.Background(), jobID, 100, "")
	require.NoError(t, err)
	return page.Runs
}

func ms(t time.Time) int64 {
	return t.UnixMilli()
}
