package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kairos/internal/clock"
	"kairos/internal/domain"
	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"
	iface "kairos/internal/repository/iface"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const maxErrorSummary = 200

// DispatcherConfig bounds how dispatches hit the queue
type DispatcherConfig struct {
	Timeout       time.Duration
	MaxConcurrent int
	// Rate is the enqueue limit per second; zero disables throttling
	Rate  float64
	Burst int
}

// DispatchTask is one claimed firing waiting to become a run
type DispatchTask struct {
	Job          *domain.ScheduledJob
	Trigger      domain.RunTrigger
	ScheduledFor time.Time
}

// DispatchResult is the run a task produced. Run is nil when the run could not be recorded.
type DispatchResult struct {
	Run *domain.ScheduledJobRun
	Err error
}

// Dispatcher creates a run for a firing and hands it to the work queue
type Dispatcher struct {
	runs       iface.RunRepository
	queue      queue.Client
	completion *completionTracker
	alerter    *Alerter
	clock      clock.Clock
	config     DispatcherConfig
	limiter    *rate.Limiter
	logger     logger.Logger
}

func NewDispatcher(
	runs iface.RunRepository,
	schedules iface.ScheduleRepository,
	client queue.Client,
	alerter *Alerter,
	clk clock.Clock,
	config DispatcherConfig,
	log logger.Logger,
) *Dispatcher {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}

	var limiter *rate.Limiter
	if config.Rate > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.Rate), burst)
	}

	log = log.With(logger.String("component", "dispatcher"))
	return &Dispatcher{
		runs:       runs,
		queue:      client,
		completion: newCompletionTracker(schedules, clk, 0, log),
		alerter:    alerter,
		clock:      clk,
		config:     config,
		limiter:    limiter,
		logger:     log,
	}
}

// Dispatch records a pending run, enqueues it and records the result. A failed
// enqueue still returns the run, marked failed with dispatch_error, alongside the error.
func (d *Dispatcher) Dispatch(ctx context.Context, task DispatchTask) (*domain.ScheduledJobRun, error) {
	job := task.Job
	run := domain.NewScheduledJobRun(job, task.Trigger, task.ScheduledFor, d.clock.Now())
	if err := d.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run for schedule %s: %w", job.ID, err)
	}

	log := d.logger.With(
		logger.String("schedule_id", job.ID),
		logger.String("run_id", run.ID),
		logger.String("job_type", job.JobType))

	result, err := d.enqueue(ctx, job, run)
	if err != nil {
		log.Warn("dispatch failed", logger.Error(err))
		return run, d.recordDispatchFailure(ctx, run, err)
	}

	expected := run.Version
	if err := run.MarkDispatched(result.QueueJobID, result.QueueName, d.clock.Now()); err != nil {
		return run, err
	}
	if err := d.runs.Update(ctx, run, expected); err != nil {
		// the job is on the queue but the run is still pending: the first outcome
		// report adopts it, otherwise the sweep fails it after the staleness window
		log.Error("failed to record dispatch", logger.Error(err))
		return run, fmt.Errorf("failed to record dispatch of run %s: %w", run.ID, err)
	}

	log.Info("job dispatched",
		logger.String("queue_job_id", result.QueueJobID),
		logger.String("queue_name", result.QueueName))
	return run, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, job *domain.ScheduledJob, run *domain.ScheduledJobRun) (queue.EnqueueResult, error) {
	enqueueCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(enqueueCtx); err != nil {
			return queue.EnqueueResult{}, fmt.Errorf("dispatch throttled: %w", err)
		}
	}

	req := queue.EnqueueRequest{
		JobType:      job.JobType,
		Payload:      run.PayloadSnapshot,
		RunID:        run.ID,
		ScheduleID:   job.ID,
		ScheduledFor: time.UnixMilli(run.ScheduledFor),
	}
	if job.ConcurrencyPolicy == domain.ConcurrencyPolicyQueue {
		req.OrderingKey = job.ID
	}

	return d.queue.Enqueue(enqueueCtx, req)
}

func (d *Dispatcher) recordDispatchFailure(ctx context.Context, run *domain.ScheduledJobRun, cause error) error {
	now := d.clock.Now()
	expected := run.Version
	detail := cause.Error()
	if err := run.MarkFinished(domain.RunStatusFailed, now, domain.ErrorCodeDispatch, domain.Summarize(detail, maxErrorSummary), detail, now); err != nil {
		return err
	}
	if err := d.runs.Update(ctx, run, expected); err != nil {
		d.logger.Error("failed to record dispatch failure",
			logger.String("run_id", run.ID),
			logger.Error(err))
		return fmt.Errorf("dispatch failed: %v; recording failed: %w", cause, err)
	}

	d.alerter.RunFailed(ctx, run)

	if err := d.completion.RunCompleted(ctx, run, now); err != nil {
		d.logger.Warn("failed to reschedule after dispatch failure",
			logger.String("run_id", run.ID),
			logger.Error(err))
	}
	return fmt.Errorf("dispatch failed: %w", cause)
}

// DispatchAll runs tasks concurrently, at most MaxConcurrent at a time, and
// waits for all of them. Results line up with tasks.
func (d *Dispatcher) DispatchAll(ctx context.Context, tasks []DispatchTask) []DispatchResult {
	results := make([]DispatchResult, len(tasks))
	sem := semaphore.NewWeighted(int64(d.config.MaxConcurrent))

	var wg sync.WaitGroup
	for i := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			for k := i; k < len(tasks); k++ {
				run, abandonErr := d.abandon(ctx, tasks[k], err)
				results[k] = DispatchResult{Run: run, Err: abandonErr}
			}
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			run, err := d.Dispatch(ctx, tasks[i])
			results[i] = DispatchResult{Run: run, Err: err}
		}(i)
	}
	wg.Wait()

	return results
}

// abandon records a claimed firing that was never handed to the queue as a
// failed run, so the claim that advanced next_run leaves a trace
func (d *Dispatcher) abandon(ctx context.Context, task DispatchTask, cause error) (*domain.ScheduledJobRun, error) {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.Timeout)
	defer cancel()

	d.logger.Warn("claimed firing dropped before dispatch",
		logger.String("schedule_id", task.Job.ID),
		logger.Time("scheduled_for", task.ScheduledFor),
		logger.Error(cause))

	run := domain.NewScheduledJobRun(task.Job, task.Trigger, task.ScheduledFor, d.clock.Now())
	if err := d.runs.Create(recordCtx, run); err != nil {
		return nil, fmt.Errorf("dispatch not started: %v; recording run failed: %w", cause, err)
	}
	return run, d.recordDispatchFailure(recordCtx, run, fmt.Errorf("dispatch not started: %w", cause))
}
