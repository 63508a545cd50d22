package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kairos/internal/clock"
	"kairos/internal/domain"
	"kairos/internal/logger"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"
	"kairos/internal/trigger"
)

const (
	defaultPreviewCount = 5
	maxPreviewCount     = 50
)

type IScheduleManager interface {
	CreateSchedule(ctx context.Context, input CreateScheduleInput) (*domain.ScheduledJob, error)
	UpdateSchedule(ctx context.Context, id string, input UpdateScheduleInput) (*domain.ScheduledJob, error)
	DisableSchedule(ctx context.Context, id string) (*domain.ScheduledJob, error)
	EnableSchedule(ctx context.Context, id string) (*domain.ScheduledJob, error)
	GetSchedule(ctx context.Context, id string) (*domain.ScheduledJob, error)
	ListSchedules(ctx context.Context, limit int, nextToken string) (*iface.SchedulePage, error)
	ListRuns(ctx context.Context, scheduleID string, limit int, nextToken string) (*iface.RunPage, error)
	GetRun(ctx context.Context, runID string) (*domain.ScheduledJobRun, error)
	TriggerNow(ctx context.Context, id string) (*domain.ScheduledJobRun, error)
	ValidateTrigger(ctx context.Context, input ValidateTriggerInput) (*TriggerPreview, error)
}

type CreateScheduleInput struct {
	Name              string
	TriggerKind       domain.TriggerKind
	TriggerExpression string
	JobType           string
	Payload           map[string]interface{}
	ConcurrencyPolicy domain.ConcurrencyPolicy
	Timezone          string
	Enabled           *bool
}

// UpdateScheduleInput changes only the fields that are set. ExpectedVersion,
// when set, must match the stored version.
type UpdateScheduleInput struct {
	Name              *string
	TriggerKind       *domain.TriggerKind
	TriggerExpression *string
	JobType           *string
	Payload           map[string]interface{}
	ConcurrencyPolicy *domain.ConcurrencyPolicy
	Timezone          *string
	ExpectedVersion   *int64
}

type ValidateTriggerInput struct {
	TriggerKind       domain.TriggerKind
	TriggerExpression string
	Timezone          string
	Count             int
}

// TriggerPreview is the result of validating a trigger; Error is set when it is invalid
type TriggerPreview struct {
	Valid       bool
	Error       string
	Description string
	NextRuns    []time.Time
}

type ScheduleManager struct {
	schedules  iface.ScheduleRepository
	runs       iface.RunRepository
	dispatcher *Dispatcher
	clock      clock.Clock
	logger     logger.Logger
}

func NewScheduleManager(
	schedules iface.ScheduleRepository,
	runs iface.RunRepository,
	dispatcher *Dispatcher,
	clk clock.Clock,
	log logger.Logger,
) *ScheduleManager {
	return &ScheduleManager{
		schedules:  schedules,
		runs:       runs,
		dispatcher: dispatcher,
		clock:      clk,
		logger:     log.With(logger.String("component", "schedule_manager")),
	}
}

// CreateSchedule stores a new schedule with no next_run; the first poll that sees it computes one
func (m *ScheduleManager) CreateSchedule(ctx context.Context, input CreateScheduleInput) (*domain.ScheduledJob, error) {
	now := m.clock.Now()
	job := domain.NewScheduledJob(
		strings.TrimSpace(input.Name),
		input.TriggerKind,
		strings.TrimSpace(input.TriggerExpression),
		strings.TrimSpace(input.JobType),
		domain.CopyPayload(input.Payload),
		input.ConcurrencyPolicy,
		strings.TrimSpace(input.Timezone),
		now,
	)
	if input.Enabled != nil {
		job.Enabled = *input.Enabled
	}

	if err := validateSchedule(job, now); err != nil {
		return nil, err
	}

	if err := m.schedules.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	m.logger.Info("schedule created",
		logger.String("schedule_id", job.ID),
		logger.String("name", job.Name),
		logger.String("trigger_kind", string(job.TriggerKind)),
		logger.String("trigger_expression", job.TriggerExpression))
	return job, nil
}

func (m *ScheduleManager) UpdateSchedule(ctx context.Context, id string, input UpdateScheduleInput) (*domain.ScheduledJob, error) {
	job, err := m.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.ExpectedVersion != nil && *input.ExpectedVersion != job.Version {
		return nil, fmt.Errorf("schedule %s is at version %d, not %d: %w", id, job.Version, *input.ExpectedVersion, repository.ErrOptimisticLockFailed)
	}

	timingChanged := false
	if input.Name != nil {
		job.Name = strings.TrimSpace(*input.Name)
	}
	if input.TriggerKind != nil && *input.TriggerKind != job.TriggerKind {
		job.TriggerKind = *input.TriggerKind
		timingChanged = true
	}
	if input.TriggerExpression != nil && strings.TrimSpace(*input.TriggerExpression) != job.TriggerExpression {
		job.TriggerExpression = strings.TrimSpace(*input.TriggerExpression)
		timingChanged = true
	}
	if input.Timezone != nil {
		tz := strings.TrimSpace(*input.Timezone)
		if tz == "" {
			tz = domain.DefaultTimezone
		}
		if tz != job.Timezone {
			job.Timezone = tz
			timingChanged = true
		}
	}
	if input.JobType != nil {
		job.JobType = strings.TrimSpace(*input.JobType)
	}
	if input.Payload != nil {
		job.Payload = domain.CopyPayload(input.Payload)
	}
	if input.ConcurrencyPolicy != nil {
		job.ConcurrencyPolicy = *input.ConcurrencyPolicy
	}

	now := m.clock.Now()
	if err := validateSchedule(job, now); err != nil {
		return nil, err
	}

	// recomputed by the next poll
	if timingChanged {
		job.NextRun = 0
	}
	job.UpdatedAt = now.UnixMilli()

	if err := m.schedules.Update(ctx, job, job.Version); err != nil {
		return nil, err
	}

	m.logger.Info("schedule updated",
		logger.String("schedule_id", job.ID),
		logger.Bool("timing_changed", timingChanged),
		logger.Int64("version", job.Version))
	return job, nil
}

// DisableSchedule stops future firings; runs already dispatched are left alone
func (m *ScheduleManager) DisableSchedule(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	return m.setEnabled(ctx, id, false)
}

// EnableSchedule re-enables a schedule and clears next_run so firings missed
// while it was disabled are not replayed
func (m *ScheduleManager) EnableSchedule(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	return m.setEnabled(ctx, id, true)
}

func (m *ScheduleManager) setEnabled(ctx context.Context, id string, enabled bool) (*domain.ScheduledJob, error) {
	for attempt := 1; attempt <= defaultMaxCASRetries; attempt++ {
		job, err := m.schedules.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Enabled == enabled {
			return job, nil
		}

		job.Enabled = enabled
		if enabled {
			job.NextRun = 0
		}
		job.UpdatedAt = m.clock.Now().UnixMilli()

		err = m.schedules.Update(ctx, job, job.Version)
		if repository.IsOptimisticLockError(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		m.logger.Info("schedule enabled state changed",
			logger.String("schedule_id", id),
			logger.Bool("enabled", enabled))
		return job, nil
	}
	return nil, fmt.Errorf("schedule %s: %w", id, repository.ErrOptimisticLockFailed)
}

func (m *ScheduleManager) GetSchedule(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	return m.schedules.GetByID(ctx, id)
}

func (m *ScheduleManager) ListSchedules(ctx context.Context, limit int, nextToken string) (*iface.SchedulePage, error) {
	return m.schedules.List(ctx, limit, nextToken)
}

// ListRuns returns a schedule's runs newest first
func (m *ScheduleManager) ListRuns(ctx context.Context, scheduleID string, limit int, nextToken string) (*iface.RunPage, error) {
	if _, err := m.schedules.GetByID(ctx, scheduleID); err != nil {
		return nil, err
	}
	return m.runs.ListByJobID(ctx, scheduleID, limit, nextToken)
}

func (m *ScheduleManager) GetRun(ctx context.Context, runID string) (*domain.ScheduledJobRun, error) {
	return m.runs.GetByID(ctx, runID)
}

// TriggerNow dispatches a manual run immediately without touching next_run.
// A failed enqueue is reported through the returned run's status.
func (m *ScheduleManager) TriggerNow(ctx context.Context, id string) (*domain.ScheduledJobRun, error) {
	job, err := m.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	run, err := m.dispatcher.Dispatch(ctx, DispatchTask{
		Job:          job,
		Trigger:      domain.RunTriggerManual,
		ScheduledFor: m.clock.Now(),
	})
	if run == nil {
		return nil, err
	}
	if err != nil {
		m.logger.Warn("manual run not dispatched",
			logger.String("schedule_id", id),
			logger.String("run_id", run.ID),
			logger.Error(err))
	}
	return run, nil
}

// ValidateTrigger checks an expression and previews its next fire times
func (m *ScheduleManager) ValidateTrigger(ctx context.Context, input ValidateTriggerInput) (*TriggerPreview, error) {
	count := input.Count
	if count <= 0 {
		count = defaultPreviewCount
	}
	if count > maxPreviewCount {
		count = maxPreviewCount
	}

	t := trigger.Trigger{Kind: input.TriggerKind, Expression: strings.TrimSpace(input.TriggerExpression)}
	tz := strings.TrimSpace(input.Timezone)
	now := m.clock.Now()

	if err := trigger.ValidateTrigger(t, tz, now); err != nil {
		if !trigger.IsDefinitionError(err) {
			return nil, err
		}
		return &TriggerPreview{Valid: false, Error: err.Error()}, nil
	}

	next, err := trigger.Upcoming(t, now, tz, count)
	if err != nil {
		return nil, err
	}

	return &TriggerPreview{
		Valid:       true,
		Description: describe(t, tz),
		NextRuns:    next,
	}, nil
}

func describe(t trigger.Trigger, tz string) string {
	if t.Kind == domain.TriggerKindInterval {
		d, err := trigger.ParseInterval(t.Expression)
		if err == nil {
			return "every " + trigger.IntervalToHuman(d)
		}
	}
	if tz == "" {
		tz = domain.DefaultTimezone
	}
	return fmt.Sprintf("cron %q in %s", t.Expression, tz)
}

func validateSchedule(job *domain.ScheduledJob, now time.Time) error {
	if job.Name == "" {
		return fmt.Errorf("name is required: %w", ErrInvalidSchedule)
	}
	if job.JobType == "" {
		return fmt.Errorf("job_type is required: %w", ErrInvalidSchedule)
	}
	if !job.TriggerKind.Valid() {
		return fmt.Errorf("trigger_kind %q must be cron or interval: %w", job.TriggerKind, ErrInvalidSchedule)
	}
	if !job.ConcurrencyPolicy.Valid() {
		return fmt.Errorf("concurrency_policy %q must be skip, queue or allow-overlap: %w", job.ConcurrencyPolicy, ErrInvalidSchedule)
	}
	return trigger.ValidateTrigger(trigger.Of(job), job.Timezone, now)
}
