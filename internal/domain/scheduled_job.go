package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerKind selects how a schedule's trigger expression is interpreted
type TriggerKind string

const (
	TriggerKindCron     TriggerKind = "cron"
	TriggerKindInterval TriggerKind = "interval"
)

func (k TriggerKind) Valid() bool {
	return k == TriggerKindCron || k == TriggerKindInterval
}

// ConcurrencyPolicy controls what happens when a schedule fires while an earlier run is still active
type ConcurrencyPolicy string

const (
	// ConcurrencyPolicySkip never overlaps runs; the next fire time is measured from completion
	ConcurrencyPolicySkip ConcurrencyPolicy = "skip"
	// ConcurrencyPolicyQueue keeps a fixed cadence and serialises runs on the queue side
	ConcurrencyPolicyQueue ConcurrencyPolicy = "queue"
	// ConcurrencyPolicyAllowOverlap keeps a fixed cadence and lets runs overlap freely
	ConcurrencyPolicyAllowOverlap ConcurrencyPolicy = "allow-overlap"
)

func (p ConcurrencyPolicy) Valid() bool {
	switch p {
	case ConcurrencyPolicySkip, ConcurrencyPolicyQueue, ConcurrencyPolicyAllowOverlap:
		return true
	}
	return false
}

// FixedCadence reports whether fire times are anchored to the previous scheduled time
func (p ConcurrencyPolicy) FixedCadence() bool {
	return p == ConcurrencyPolicyQueue || p == ConcurrencyPolicyAllowOverlap
}

const DefaultTimezone = "UTC"

// ScheduledJob is a persisted schedule definition.
// NextRun and LastRun are unix milliseconds; zero means unset.
type ScheduledJob struct {
	ID                string                 `json:"id" dynamodbav:"id"`
	Name              string                 `json:"name" dynamodbav:"name"`
	TriggerKind       TriggerKind            `json:"trigger_kind" dynamodbav:"trigger_kind"`
	TriggerExpression string                 `json:"trigger_expression" dynamodbav:"trigger_expression"`
	JobType           string                 `json:"job_type" dynamodbav:"job_type"`
	Payload           map[string]interface{} `json:"payload" dynamodbav:"payload"`
	Enabled           bool                   `json:"enabled" dynamodbav:"enabled"`
	NextRun           int64                  `json:"next_run,omitempty" dynamodbav:"next_run,omitempty"`
	LastRun           int64                  `json:"last_run,omitempty" dynamodbav:"last_run,omitempty"`
	ConcurrencyPolicy ConcurrencyPolicy      `json:"concurrency_policy" dynamodbav:"concurrency_policy"`
	Timezone          string                 `json:"timezone" dynamodbav:"timezone"`
	Version           int64                  `json:"version" dynamodbav:"version"`
	CreatedAt         int64                  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt         int64                  `json:"updated_at" dynamodbav:"updated_at"`
}

// NewScheduledJob creates an enabled schedule whose first fire time is computed on first observation
func NewScheduledJob(name string, kind TriggerKind, expression, jobType string, payload map[string]interface{}, policy ConcurrencyPolicy, timezone string, now time.Time) *ScheduledJob {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	if policy == "" {
		policy = ConcurrencyPolicySkip
	}
	if timezone == "" {
		timezone = DefaultTimezone
	}
	ts := now.UnixMilli()
	return &ScheduledJob{
		ID:                uuid.New().String(),
		Name:              name,
		TriggerKind:       kind,
		TriggerExpression: expression,
		JobType:           jobType,
		Payload:           payload,
		Enabled:           true,
		ConcurrencyPolicy: policy,
		Timezone:          timezone,
		Version:           1,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}
}

// HasNextRun reports whether the first fire time has been computed
func (j *ScheduledJob) HasNextRun() bool {
	return j.NextRun > 0
}

// IsDue reports whether the schedule should be looked at by a poll at now
func (j *ScheduledJob) IsDue(now time.Time) bool {
	return j.Enabled && (j.NextRun == 0 || j.NextRun <= now.UnixMilli())
}

func (j *ScheduledJob) NextRunTime() time.Time {
	if j.NextRun == 0 {
		return time.Time{}
	}
	return time.UnixMilli(j.NextRun).UTC()
}

// Clone returns a deep copy so stores never share payload maps with callers
func (j *ScheduledJob) Clone() *ScheduledJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Payload = CopyPayload(j.Payload)
	return &c
}

// CopyPayload deep-copies a JSON object
func CopyPayload(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return CopyPayload(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	default:
		return v
	}
}
