package slack

import (
	"context"

	"kairos/internal/logger"
)

type logClient struct {
	logger logger.Logger
}

// NewLogClient writes alerts to the log instead of Slack; used when no webhook is configured
func NewLogClient(log logger.Logger) Client {
	return &logClient{
		logger: log.With(logger.String("component", "slack_log")),
	}
}

func (m *logClient) SendMessage(ctx context.Context, channel, message string) error {
	m.logger.WithContext(ctx).Warn("alert",
		logger.String("channel", channel),
		logger.String("message", message),
	)
	return nil
}
