package nats

import (
	"context"
	"fmt"
	"time"

	"kairos/internal/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config describes the JetStream layout used for scheduled jobs and their outcomes
type Config struct {
	URL string
	// JobStream holds "<SubjectPrefix>.<job_type>" messages
	JobStream     string
	SubjectPrefix string
	// OutcomeStream holds handler reports on OutcomeSubject
	OutcomeStream  string
	OutcomeSubject string
	Durable        string
	MaxAge         time.Duration
}

func (c *Config) setDefaults() {
	if c.JobStream == "" {
		c.JobStream = "SCHEDULED_JOBS"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "jobs"
	}
	if c.OutcomeStream == "" {
		c.OutcomeStream = "JOB_OUTCOMES"
	}
	if c.OutcomeSubject == "" {
		c.OutcomeSubject = "jobs.outcomes"
	}
	if c.Durable == "" {
		c.Durable = "kairos-scheduler"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
}

// Conn wraps a NATS connection with its JetStream context and the two streams
type Conn struct {
	nc            *nats.Conn
	js            jetstream.JetStream
	config        Config
	jobStream     jetstream.Stream
	outcomeStream jetstream.Stream
}

// Connect dials NATS and creates or updates the job and outcome streams
func Connect(ctx context.Context, config Config, log logger.Logger) (*Conn, error) {
	config.setDefaults()
	log = log.With(logger.String("component", "nats"))

	nc, err := nats.Connect(config.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c := &Conn{nc: nc, js: js, config: config}

	c.jobStream, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        config.JobStream,
		Subjects:    []string{config.SubjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      config.MaxAge,
		Description: "Scheduled job dispatches",
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create/update job stream: %w", err)
	}

	c.outcomeStream, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        config.OutcomeStream,
		Subjects:    []string{config.OutcomeSubject},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      config.MaxAge,
		Description: "Scheduled job outcomes",
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create/update outcome stream: %w", err)
	}

	log.Info("NATS JetStream ready",
		logger.String("url", config.URL),
		logger.String("job_stream", config.JobStream),
		logger.String("outcome_stream", config.OutcomeStream))

	return c, nil
}

func (c *Conn) JetStream() jetstream.JetStream {
	return c.js
}

func (c *Conn) Config() Config {
	return c.config
}

func (c *Conn) OutcomeStream() jetstream.Stream {
	return c.outcomeStream
}

func (c *Conn) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}
