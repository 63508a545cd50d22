package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kairos/internal/clock"
	coordinator "kairos/internal/coordinator/iface"
	"kairos/internal/domain"
	"kairos/internal/logger"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"
	"kairos/internal/trigger"

	"github.com/robfig/cron/v3"
)

const (
	pollLockKey  = "poll"
	sweepLockKey = "sweep"
)

type IScheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	PollOnce(ctx context.Context) (CycleReport, error)
	SweepOnce(ctx context.Context) (SweepReport, error)
}

// Config drives the polling loop
type Config struct {
	PollInterval  time.Duration
	SweepInterval time.Duration
	BatchSize     int
	// LockTTL bounds how long a crashed instance can hold the poll lock
	LockTTL time.Duration
}

// CycleReport counts what one poll did
type CycleReport struct {
	LockHeld       bool
	Due            int
	Initialized    int
	Claimed        int
	Conflicts      int
	Skipped        int
	Dispatched     int
	DispatchFailed int
	Errors         int
}

// Scheduler polls for due schedules, claims them and hands firings to the dispatcher
type Scheduler struct {
	schedules  iface.ScheduleRepository
	runs       iface.RunRepository
	dispatcher *Dispatcher
	sweeper    *Sweeper
	locker     coordinator.Locker
	clock      clock.Clock
	config     Config
	logger     logger.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(
	schedules iface.ScheduleRepository,
	runs iface.RunRepository,
	dispatcher *Dispatcher,
	sweeper *Sweeper,
	locker coordinator.Locker,
	clk clock.Clock,
	config Config,
	log logger.Logger,
) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 4 * config.PollInterval
	}

	log = log.With(logger.String("component", "scheduler"))
	return &Scheduler{
		schedules:  schedules,
		runs:       runs,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		locker:     locker,
		clock:      clk,
		config:     config,
		logger:     log,
	}
}

// Start registers the poll and sweep ticks. A tick that is still running when
// the next one fires is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	cronLog := logger.CronLogger(s.logger)
	s.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc("@every "+s.config.PollInterval.String(), s.pollTick); err != nil {
		return fmt.Errorf("failed to add poll tick: %w", err)
	}
	if _, err := s.cron.AddFunc("@every "+s.config.SweepInterval.String(), s.sweepTick); err != nil {
		return fmt.Errorf("failed to add sweep tick: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started",
		logger.Duration("poll_interval", s.config.PollInterval),
		logger.Duration("sweep_interval", s.config.SweepInterval))
	return nil
}

// Stop waits for in-flight ticks until ctx expires, then cancels them
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	stopped := s.cron.Stop()
	defer s.cancel()

	select {
	case <-stopped.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out, cancelling in-flight work")
		return ctx.Err()
	}
}

func (s *Scheduler) pollTick() {
	report, err := s.PollOnce(s.ctx)
	if err != nil {
		s.logger.Error("poll failed", logger.Error(err))
		return
	}
	if report.Due > 0 {
		s.logger.Info("poll finished",
			logger.Int("due", report.Due),
			logger.Int("initialized", report.Initialized),
			logger.Int("claimed", report.Claimed),
			logger.Int("conflicts", report.Conflicts),
			logger.Int("skipped", report.Skipped),
			logger.Int("dispatched", report.Dispatched),
			logger.Int("dispatch_failed", report.DispatchFailed),
			logger.Int("errors", report.Errors))
	}
}

func (s *Scheduler) sweepTick() {
	if _, err := s.SweepOnce(s.ctx); err != nil {
		s.logger.Error("timeout sweep failed", logger.Error(err))
	}
}

// SweepOnce runs one timeout sweep under the sweep lock
func (s *Scheduler) SweepOnce(ctx context.Context) (SweepReport, error) {
	lock, err := s.locker.TryAcquire(ctx, sweepLockKey, s.config.LockTTL)
	if coordinator.IsLockHeld(err) {
		return SweepReport{}, nil
	}
	if err != nil {
		return SweepReport{}, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	defer s.release(lock)

	return s.sweeper.SweepOnce(ctx)
}

// PollOnce runs one poll cycle: claim every due schedule, then dispatch the
// claimed firings concurrently and wait for them.
func (s *Scheduler) PollOnce(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	lock, err := s.locker.TryAcquire(ctx, pollLockKey, s.config.LockTTL)
	if coordinator.IsLockHeld(err) {
		s.logger.Debug("poll lock held elsewhere, skipping cycle")
		report.LockHeld = true
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("failed to acquire poll lock: %w", err)
	}
	defer s.release(lock)

	now := s.clock.Now()
	due, err := s.schedules.ListDue(ctx, now, s.config.BatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list due schedules: %w", err)
	}
	report.Due = len(due)

	tasks := make([]DispatchTask, 0, len(due))
	for _, job := range due {
		task, err := s.claim(ctx, job, now, &report)
		if err != nil {
			report.Errors++
			s.logger.Error("failed to process due schedule",
				logger.String("schedule_id", job.ID),
				logger.Error(err))
			continue
		}
		if task != nil {
			tasks = append(tasks, *task)
		}
	}

	for _, result := range s.dispatcher.DispatchAll(ctx, tasks) {
		switch {
		case result.Err == nil:
			report.Dispatched++
		case result.Run != nil && result.Run.Status == domain.RunStatusFailed:
			report.DispatchFailed++
		default:
			report.Errors++
			s.logger.Error("dispatch error", logger.Error(result.Err))
		}
	}

	return report, nil
}

// claim advances one due schedule and returns the firing to dispatch, if any
func (s *Scheduler) claim(ctx context.Context, job *domain.ScheduledJob, now time.Time, report *CycleReport) (*DispatchTask, error) {
	log := s.logger.With(logger.String("schedule_id", job.ID))
	trig := trigger.Of(job)

	if !job.HasNextRun() {
		next, err := trigger.CalculateNextRun(trig, now, job.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to compute first run: %w", err)
		}
		if _, ok := s.tryClaim(ctx, job, next, time.Time{}, now, report); ok {
			report.Initialized++
			log.Debug("schedule initialized", logger.Time("next_run", next))
		}
		return nil, nil
	}

	firedAt := job.NextRunTime()

	if job.ConcurrencyPolicy == domain.ConcurrencyPolicySkip {
		active, err := s.runs.ListActiveByJobID(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check active runs: %w", err)
		}
		if len(active) > 0 {
			next, err := trigger.CalculateNextRun(trig, now, job.Timezone)
			if err != nil {
				return nil, fmt.Errorf("failed to compute next run: %w", err)
			}
			if _, ok := s.tryClaim(ctx, job, next, time.Time{}, now, report); ok {
				report.Skipped++
				log.Info("skipped: previous run still active",
					logger.String("active_run_id", active[0].ID),
					logger.Time("next_run", next))
			}
			return nil, nil
		}
	}

	var next time.Time
	var err error
	if job.ConcurrencyPolicy.FixedCadence() {
		next, err = trigger.NextOnCadence(trig, firedAt, now, job.Timezone)
	} else {
		next, err = trigger.CalculateNextRun(trig, now, job.Timezone)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compute next run: %w", err)
	}

	claimed, ok := s.tryClaim(ctx, job, next, now, now, report)
	if !ok {
		return nil, nil
	}
	report.Claimed++
	return &DispatchTask{Job: claimed, Trigger: domain.RunTriggerScheduled, ScheduledFor: firedAt}, nil
}

// tryClaim reports false when another instance won the claim
func (s *Scheduler) tryClaim(ctx context.Context, job *domain.ScheduledJob, next, lastRun, now time.Time, report *CycleReport) (*domain.ScheduledJob, bool) {
	claimed, err := s.schedules.Claim(ctx, iface.ClaimRequest{
		JobID:           job.ID,
		ExpectedVersion: job.Version,
		NextRun:         next,
		LastRun:         lastRun,
		Now:             now,
	})
	if err == nil {
		return claimed, true
	}

	if repository.IsClaimConflict(err) || repository.IsNotFound(err) {
		report.Conflicts++
		s.logger.Debug("claim lost", logger.String("schedule_id", job.ID))
		return nil, false
	}

	report.Errors++
	s.logger.Error("claim failed", logger.String("schedule_id", job.ID), logger.Error(err))
	return nil, false
}

func (s *Scheduler) release(lock coordinator.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		s.logger.Warn("failed to release lock", logger.Error(err))
	}
}
