package queue

import (
	"context"
	"time"
)

// EnqueueRequest is one job handed to the work queue
type EnqueueRequest struct {
	JobType      string
	Payload      map[string]interface{}
	RunID        string
	ScheduleID   string
	ScheduledFor time.Time
	// OrderingKey serialises delivery of jobs that share it; empty means no ordering
	OrderingKey string
}

// EnqueueResult correlates a run with the queue's own job id
type EnqueueResult struct {
	QueueJobID string
	QueueName  string
}

// Client is the outbound side of the work queue
type Client interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error)
}

// Job is the envelope written to the work queue for handlers to consume
type Job struct {
	RunID        string                 `json:"run_id"`
	ScheduleID   string                 `json:"schedule_id"`
	JobType      string                 `json:"job_type"`
	Payload      map[string]interface{} `json:"payload"`
	ScheduledFor int64                  `json:"scheduled_for"`
	EnqueuedAt   int64                  `json:"enqueued_at"`
}

// NewJob builds the envelope for req
func NewJob(req EnqueueRequest, now time.Time) Job {
	return Job{
		RunID:        req.RunID,
		ScheduleID:   req.ScheduleID,
		JobType:      req.JobType,
		Payload:      req.Payload,
		ScheduledFor: req.ScheduledFor.UnixMilli(),
		EnqueuedAt:   now.UnixMilli(),
	}
}

// OutcomeMessage is what handlers report back once a job starts or finishes.
// Either QueueJobID or RunID identifies the run.
type OutcomeMessage struct {
	QueueJobID  string `json:"queue_job_id,omitempty"`
	RunID       string `json:"run_id,omitempty"`
	Status      string `json:"status"`
	ErrorDetail string `json:"error_detail,omitempty"`
	FinishedAt  int64  `json:"finished_at,omitempty"`
}

// MessageProcessor processes a message and returns true if successful (for deletion)
type MessageProcessor[T any] interface {
	ProcessMessage(ctx context.Context, message T) bool
}

// MessageProcessorFunc allows functions to implement MessageProcessor
type MessageProcessorFunc[T any] func(ctx context.Context, message T) bool

func (f MessageProcessorFunc[T]) ProcessMessage(ctx context.Context, message T) bool {
	return f(ctx, message)
}

// Consumer is the inbound side: a long-running subscription feeding a MessageProcessor
type Consumer interface {
	StartConsumer(ctx context.Context) error
	StopConsumer(ctx context.Context) error
}
