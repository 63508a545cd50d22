package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"kairos/internal/clock"
	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// API is the subset of *sqs.Client used by this package
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// ClientConfig routes job types to queues. A queue URL is URLPrefix + "/" + queue name.
type ClientConfig struct {
	URLPrefix    string
	DefaultQueue string
	Routes       map[string]string
}

// Client enqueues scheduled jobs onto SQS
type Client struct {
	api    API
	config ClientConfig
	clock  clock.Clock
	logger logger.Logger
}

func NewClient(api API, config ClientConfig, clk clock.Clock, log logger.Logger) *Client {
	if config.DefaultQueue == "" {
		config.DefaultQueue = "default"
	}
	return &Client{
		api:    api,
		config: config,
		clock:  clk,
		logger: log.With(logger.String("component", "sqs_client")),
	}
}

// QueueFor returns the queue name for a job type
func (c *Client) QueueFor(jobType string) string {
	if name, ok := c.config.Routes[jobType]; ok && name != "" {
		return name
	}
	return c.config.DefaultQueue
}

func (c *Client) queueURL(name string) string {
	return strings.TrimRight(c.config.URLPrefix, "/") + "/" + name
}

func (c *Client) Enqueue(ctx context.Context, req queue.EnqueueRequest) (queue.EnqueueResult, error) {
	body, err := json.Marshal(queue.NewJob(req, c.clock.Now()))
	if err != nil {
		return queue.EnqueueResult{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	name := c.QueueFor(req.JobType)
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.queueURL(name)),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"job_type":    stringAttribute(req.JobType),
			"run_id":      stringAttribute(req.RunID),
			"schedule_id": stringAttribute(req.ScheduleID),
		},
	}

	if strings.HasSuffix(name, ".fifo") {
		group := req.OrderingKey
		if group == "" {
			group = req.RunID
		}
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(req.RunID)
	}

	out, err := c.api.SendMessage(ctx, input)
	if err != nil {
		c.logger.Error("failed to send job to SQS",
			logger.String("queue", name),
			logger.String("run_id", req.RunID),
			logger.Error(err))
		return queue.EnqueueResult{}, fmt.Errorf("failed to send message: %w", err)
	}

	c.logger.Debug("job enqueued",
		logger.String("queue", name),
		logger.String("run_id", req.RunID),
		logger.String("message_id", aws.ToString(out.MessageId)))

	return queue.EnqueueResult{QueueJobID: aws.ToString(out.MessageId), QueueName: name}, nil
}

func stringAttribute(value string) types.MessageAttributeValue {
	if value == "" {
		value = "-"
	}
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(value),
	}
}
