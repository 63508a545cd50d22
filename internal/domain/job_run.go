package domain

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle status of a ScheduledJobRun
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusDispatched RunStatus = "dispatched"
	RunStatusRunning    RunStatus = "running"
	RunStatusSucceeded  RunStatus = "succeeded"
	RunStatusFailed     RunStatus = "failed"
	RunStatusTimedOut   RunStatus = "timed_out"
	RunStatusCancelled  RunStatus = "cancelled"
)

var runTransitions = map[RunStatus][]RunStatus{
	RunStatusPending:    {RunStatusDispatched, RunStatusFailed, RunStatusCancelled},
	RunStatusDispatched: {RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusTimedOut, RunStatusCancelled},
	RunStatusRunning:    {RunStatusSucceeded, RunStatusFailed, RunStatusTimedOut, RunStatusCancelled},
}

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusDispatched, RunStatusRunning,
		RunStatusSucceeded, RunStatusFailed, RunStatusTimedOut, RunStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusTimedOut, RunStatusCancelled:
		return true
	}
	return false
}

// Active reports whether the run still occupies its schedule
func (s RunStatus) Active() bool {
	return s.Valid() && !s.Terminal()
}

func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ActiveRunStatuses lists every non-terminal status
var ActiveRunStatuses = []RunStatus{RunStatusPending, RunStatusDispatched, RunStatusRunning}

// RunTrigger records why a run was created
type RunTrigger string

const (
	RunTriggerScheduled RunTrigger = "scheduled"
	RunTriggerManual    RunTrigger = "manual"
)

// Error codes recorded on failed runs
const (
	ErrorCodeDispatch   = "dispatch_error"
	ErrorCodeRunTimeout = "run_timeout"
	ErrorCodeJobFailed  = "job_failed"
)

// ScheduledJobRun is one execution attempt of a schedule
type ScheduledJobRun struct {
	ID              string                 `json:"id" dynamodbav:"id"`
	JobID           string                 `json:"job_id" dynamodbav:"job_id"`
	Status          RunStatus              `json:"status" dynamodbav:"status"`
	Trigger         RunTrigger             `json:"trigger" dynamodbav:"trigger"`
	ScheduledFor    int64                  `json:"scheduled_for" dynamodbav:"scheduled_for"`
	QueueJobID      string                 `json:"queue_job_id,omitempty" dynamodbav:"queue_job_id,omitempty"`
	QueueName       string                 `json:"queue_name,omitempty" dynamodbav:"queue_name,omitempty"`
	PayloadSnapshot map[string]interface{} `json:"payload_snapshot" dynamodbav:"payload_snapshot"`
	StartedAt       int64                  `json:"started_at,omitempty" dynamodbav:"started_at,omitempty"`
	FinishedAt      int64                  `json:"finished_at,omitempty" dynamodbav:"finished_at,omitempty"`
	DurationMs      *int64                 `json:"duration_ms,omitempty" dynamodbav:"duration_ms,omitempty"`
	ErrorCode       string                 `json:"error_code,omitempty" dynamodbav:"error_code,omitempty"`
	ErrorSummary    string                 `json:"error_summary,omitempty" dynamodbav:"error_summary,omitempty"`
	ErrorDetail     string                 `json:"error_detail,omitempty" dynamodbav:"error_detail,omitempty"`
	Version         int64                  `json:"version" dynamodbav:"version"`
	CreatedAt       int64                  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt       int64                  `json:"updated_at" dynamodbav:"updated_at"`
}

// NewScheduledJobRun creates a pending run for job, snapshotting its current payload
func NewScheduledJobRun(job *ScheduledJob, trigger RunTrigger, scheduledFor, now time.Time) *ScheduledJobRun {
	ts := now.UnixMilli()
	return &ScheduledJobRun{
		ID:              uuid.New().String(),
		JobID:           job.ID,
		Status:          RunStatusPending,
		Trigger:         trigger,
		ScheduledFor:    scheduledFor.UnixMilli(),
		PayloadSnapshot: CopyPayload(job.Payload),
		StartedAt:       ts,
		Version:         1,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
}

func (r *ScheduledJobRun) transition(next RunStatus, at time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("run %s is %s: %w", r.ID, r.Status, ErrRunTerminal)
	}
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("run %s %s -> %s: %w", r.ID, r.Status, next, ErrInvalidTransition)
	}
	r.Status = next
	r.UpdatedAt = at.UnixMilli()
	return nil
}

// MarkDispatched records that the queue accepted the job
func (r *ScheduledJobRun) MarkDispatched(queueJobID, queueName string, at time.Time) error {
	if err := r.transition(RunStatusDispatched, at); err != nil {
		return err
	}
	r.QueueJobID = queueJobID
	r.QueueName = queueName
	return nil
}

// MarkRunning records that a worker picked the job up
func (r *ScheduledJobRun) MarkRunning(at time.Time) error {
	return r.transition(RunStatusRunning, at)
}

// MarkFinished moves the run into a terminal status and fills in duration and error capture
func (r *ScheduledJobRun) MarkFinished(status RunStatus, finishedAt time.Time, errorCode, errorSummary, errorDetail string, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("run %s -> %s is not terminal: %w", r.ID, status, ErrInvalidTransition)
	}
	if err := r.transition(status, now); err != nil {
		return err
	}
	r.FinishedAt = finishedAt.UnixMilli()
	if r.StartedAt > 0 {
		if r.FinishedAt < r.StartedAt {
			r.FinishedAt = r.StartedAt
		}
		d := r.FinishedAt - r.StartedAt
		r.DurationMs = &d
	}
	if status == RunStatusFailed || status == RunStatusTimedOut {
		r.ErrorCode = errorCode
		r.ErrorSummary = errorSummary
		r.ErrorDetail = errorDetail
	}
	return nil
}

// Clone returns a deep copy of the run
func (r *ScheduledJobRun) Clone() *ScheduledJobRun {
	if r == nil {
		return nil
	}
	c := *r
	c.PayloadSnapshot = CopyPayload(r.PayloadSnapshot)
	if r.DurationMs != nil {
		d := *r.DurationMs
		c.DurationMs = &d
	}
	return &c
}

// Summarize trims an error message to a single line suitable for error_summary
func Summarize(msg string, max int) string {
	for i, c := range msg {
		if c == '\n' {
			msg = msg[:i]
			break
		}
	}
	if max > 0 && len(msg) > max {
		for max > 0 && !utf8.RuneStart(msg[max]) {
			max--
		}
		return msg[:max]
	}
	return msg
}
