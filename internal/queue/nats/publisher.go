package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"kairos/internal/clock"
	"kairos/internal/logger"
	queue "kairos/internal/queue/iface"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	HeaderRunID       = "Kairos-Run-Id"
	HeaderScheduleID  = "Kairos-Schedule-Id"
	HeaderOrderingKey = "Kairos-Ordering-Key"
)

type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher enqueues scheduled jobs onto JetStream
type Publisher struct {
	js            msgPublisher
	subjectPrefix string
	clock         clock.Clock
	logger        logger.Logger
}

func NewPublisher(js msgPublisher, subjectPrefix string, clk clock.Clock, log logger.Logger) *Publisher {
	if subjectPrefix == "" {
		subjectPrefix = "jobs"
	}
	return &Publisher{
		js:            js,
		subjectPrefix: subjectPrefix,
		clock:         clk,
		logger:        log.With(logger.String("component", "nats_publisher")),
	}
}

// Subject maps a job type to its subject; characters NATS treats as separators or wildcards become "_"
func (p *Publisher) Subject(jobType string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, jobType)
	if token == "" {
		token = "default"
	}
	return p.subjectPrefix + "." + token
}

func (p *Publisher) Enqueue(ctx context.Context, req queue.EnqueueRequest) (queue.EnqueueResult, error) {
	data, err := json.Marshal(queue.NewJob(req, p.clock.Now()))
	if err != nil {
		return queue.EnqueueResult{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	subject := p.Subject(req.JobType)
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderRunID, req.RunID)
	msg.Header.Set(HeaderScheduleID, req.ScheduleID)
	if req.OrderingKey != "" {
		msg.Header.Set(HeaderOrderingKey, req.OrderingKey)
	}

	// the run id doubles as the JetStream dedup key
	ack, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(req.RunID))
	if err != nil {
		p.logger.Error("failed to publish job",
			logger.String("subject", subject),
			logger.String("run_id", req.RunID),
			logger.Error(err))
		return queue.EnqueueResult{}, fmt.Errorf("failed to publish job: %w", err)
	}

	p.logger.Debug("job published",
		logger.String("subject", subject),
		logger.String("stream", ack.Stream),
		logger.Int64("sequence", int64(ack.Sequence)),
		logger.Bool("duplicate", ack.Duplicate))

	return queue.EnqueueResult{
		QueueJobID: fmt.Sprintf("%s:%d", ack.Stream, ack.Sequence),
		QueueName:  subject,
	}, nil
}
