// Package logqueue is a queue client for local development: jobs are logged
// instead of being sent anywhere.
package logqueue

import (
	"context"

	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"

	"github.com/google/uuid"
)

const QueueName = "log"

type Client struct {
	logger logger.Logger
}

func NewClient(log logger.Logger) *Client {
	return &Client{logger: log.With(logger.String("component", "log_queue"))}
}

func (c *Client) Enqueue(ctx context.Context, req queue.EnqueueRequest) (queue.EnqueueResult, error) {
	if err := ctx.Err(); err != nil {
		return queue.EnqueueResult{}, err
	}

	id := uuid.NewString()
	c.logger.Info("job enqueued",
		logger.String("queue_job_id", id),
		logger.String("job_type", req.JobType),
		logger.String("run_id", req.RunID),
		logger.String("schedule_id", req.ScheduleID),
		logger.String("ordering_key", req.OrderingKey),
		logger.Any("payload", req.Payload))

	return queue.EnqueueResult{QueueJobID: id, QueueName: QueueName}, nil
}
