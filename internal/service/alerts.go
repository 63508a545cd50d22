package service

import (
	"context"
	"fmt"
	"time"

	"kairos/internal/domain"
	"kairos/internal/logger"
	"kairos/internal/slack"
)

// Alerter posts a message when a run fails or times out. A nil client disables alerts.
type Alerter struct {
	client  slack.Client
	channel string
	logger  logger.Logger
}

func NewAlerter(client slack.Client, channel string, log logger.Logger) *Alerter {
	return &Alerter{
		client:  client,
		channel: channel,
		logger:  log.With(logger.String("component", "alerter")),
	}
}

// RunFailed never returns an error; delivery problems are only logged
func (a *Alerter) RunFailed(ctx context.Context, run *domain.ScheduledJobRun) {
	if a == nil || a.client == nil {
		return
	}

	message := fmt.Sprintf("scheduled job %s run %s %s (%s) at %s: %s",
		run.JobID, run.ID, run.Status, run.ErrorCode,
		time.UnixMilli(run.FinishedAt).UTC().Format(time.RFC3339),
		run.ErrorSummary)

	if err := a.client.SendMessage(ctx, a.channel, message); err != nil {
		a.logger.Warn("failed to send failure alert",
			logger.String("run_id", run.ID),
			logger.Error(err))
	}
}
