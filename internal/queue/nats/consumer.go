package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"

	"github.com/nats-io/nats.go/jetstream"
)

type consumerSource interface {
	CreateOrUpdateConsumer(ctx context.Context, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
}

// JetStreamConsumer is a durable pull consumer decoding JSON messages into T.
// Successful messages are acked, failed ones are nak'd for redelivery, and
// undecodable ones are terminated.
type JetStreamConsumer[T any] struct {
	source    consumerSource
	config    jetstream.ConsumerConfig
	processor queue.MessageProcessor[T]
	logger    logger.Logger

	mu      sync.Mutex
	cc      jetstream.ConsumeContext
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

func NewJetStreamConsumer[T any](
	source consumerSource,
	durable string,
	filterSubject string,
	processor queue.MessageProcessor[T],
	log logger.Logger,
) *JetStreamConsumer[T] {
	return &JetStreamConsumer[T]{
		source: source,
		config: jetstream.ConsumerConfig{
			Durable:       durable,
			FilterSubject: filterSubject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			MaxDeliver:    10,
		},
		processor: processor,
		logger: log.With(
			logger.String("component", "nats_consumer"),
			logger.String("durable", durable)),
	}
}

func (c *JetStreamConsumer[T]) StartConsumer(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("consumer already running")
	}

	consumer, err := c.source.CreateOrUpdateConsumer(ctx, c.config)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	cc, err := consumer.Consume(c.handle)
	if err != nil {
		c.cancel()
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.cc = cc
	c.running = true

	c.logger.Info("NATS consumer started", logger.String("subject", c.config.FilterSubject))
	return nil
}

func (c *JetStreamConsumer[T]) StopConsumer(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return fmt.Errorf("consumer not running")
	}
	c.cc.Stop()
	c.cancel()
	c.running = false
	c.logger.Info("NATS consumer stopped")
	return nil
}

func (c *JetStreamConsumer[T]) handle(msg jetstream.Msg) {
	var message T
	if err := json.Unmarshal(msg.Data(), &message); err != nil {
		c.logger.Error("failed to unmarshal message, terminating", logger.Error(err))
		if err := msg.Term(); err != nil {
			c.logger.Warn("failed to terminate message", logger.Error(err))
		}
		return
	}

	if c.processor.ProcessMessage(c.ctx, message) {
		if err := msg.Ack(); err != nil {
			c.logger.Warn("failed to ack message", logger.Error(err))
		}
		return
	}

	c.logger.Warn("message processing failed, will retry")
	if err := msg.Nak(); err != nil {
		c.logger.Warn("failed to nak message", logger.Error(err))
	}
}
