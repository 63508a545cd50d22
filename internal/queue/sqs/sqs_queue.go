package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// QueueConfig holds configuration for an SQS consumer
type QueueConfig struct {
	QueueURL          string
	WorkerCount       int
	MaxMessages       int32
	WaitTimeSeconds   int32
	VisibilityTimeout int32
}

// SQSQueue is a generic SQS consumer. Messages are JSON-decoded into T and
// deleted once the processor reports success; undecodable messages are dropped.
type SQSQueue[T any] struct {
	client    API
	config    QueueConfig
	logger    logger.Logger
	processor queue.MessageProcessor[T]
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
}

// NewSQSQueue creates a consumer feeding processor
func NewSQSQueue[T any](
	client API,
	config QueueConfig,
	processor queue.MessageProcessor[T],
	log logger.Logger,
) *SQSQueue[T] {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.MaxMessages <= 0 {
		config.MaxMessages = 10
	}
	if config.WaitTimeSeconds <= 0 {
		config.WaitTimeSeconds = 20
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 60
	}

	return &SQSQueue[T]{
		client:    client,
		config:    config,
		logger:    log.With(logger.String("component", "sqs_consumer"), logger.String("queue_url", config.QueueURL)),
		processor: processor,
	}
}

func (q *SQSQueue[T]) StartConsumer(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("consumer already running")
	}
	q.running = true
	q.stopCh = make(chan struct{})

	// workers outlive the startup context
	var workerCtx context.Context
	workerCtx, q.cancel = context.WithCancel(context.Background())

	q.logger.Info("starting SQS consumer", logger.Int("worker_count", q.config.WorkerCount))

	for i := 0; i < q.config.WorkerCount; i++ {
		q.wg.Add(1)
		go q.worker(workerCtx, i+1)
	}
	return nil
}

func (q *SQSQueue[T]) StopConsumer(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return fmt.Errorf("consumer not running")
	}
	q.running = false
	q.cancel()
	close(q.stopCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("SQS consumer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SQSQueue[T]) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			q.logger.Debug("worker stopping", logger.Int("worker_id", workerID))
			return
		default:
			q.processMessages(ctx, workerID)
		}
	}
}

func (q *SQSQueue[T]) processMessages(ctx context.Context, workerID int) {
	// must outlast the long poll
	receiveTimeout := time.Duration(q.config.WaitTimeSeconds+5) * time.Second
	receiveCtx, cancel := context.WithTimeout(ctx, receiveTimeout)
	defer cancel()

	result, err := q.client.ReceiveMessage(receiveCtx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.config.QueueURL),
		MaxNumberOfMessages: q.config.MaxMessages,
		WaitTimeSeconds:     q.config.WaitTimeSeconds,
		VisibilityTimeout:   q.config.VisibilityTimeout,
	})
	if err != nil {
		select {
		case <-q.stopCh:
		default:
			q.logger.Error("failed to receive messages",
				logger.Int("worker_id", workerID),
				logger.Error(err))
			select {
			case <-q.stopCh:
			case <-time.After(time.Second):
			}
		}
		return
	}

	for _, msg := range result.Messages {
		select {
		case <-q.stopCh:
			return
		default:
			q.processMessage(ctx, msg, workerID)
		}
	}
}

func (q *SQSQueue[T]) processMessage(ctx context.Context, msg types.Message, workerID int) {
	messageID := aws.ToString(msg.MessageId)

	var message T
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &message); err != nil {
		q.logger.Error("failed to unmarshal message, dropping",
			logger.Int("worker_id", workerID),
			logger.String("message_id", messageID),
			logger.Error(err))
		q.deleteMessage(ctx, msg)
		return
	}

	if q.processor.ProcessMessage(ctx, message) {
		q.deleteMessage(ctx, msg)
		q.logger.Debug("message processed",
			logger.Int("worker_id", workerID),
			logger.String("message_id", messageID))
		return
	}

	q.logger.Warn("message processing failed, will retry",
		logger.Int("worker_id", workerID),
		logger.String("message_id", messageID))
}

func (q *SQSQueue[T]) deleteMessage(ctx context.Context, msg types.Message) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.config.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		q.logger.Error("failed to delete message", logger.Error(err))
	}
}
