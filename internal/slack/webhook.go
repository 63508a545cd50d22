package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kairos/internal/logger"
)

const defaultWebhookTimeout = 5 * time.Second

type webhookMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

type webhookClient struct {
	url        string
	httpClient *http.Client
	logger     logger.Logger
}

// NewWebhookClient posts messages to a Slack incoming webhook
func NewWebhookClient(url string, httpClient *http.Client, log logger.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &webhookClient{
		url:        url,
		httpClient: httpClient,
		logger:     log.With(logger.String("component", "slack_webhook")),
	}
}

func (c *webhookClient) SendMessage(ctx context.Context, channel, message string) error {
	body, err := json.Marshal(webhookMessage{Channel: channel, Text: message})
	if err != nil {
		return fmt.Errorf("failed to encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		c.logger.Warn("slack webhook rejected message",
			logger.Int("status_code", resp.StatusCode),
			logger.String("channel", channel))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}
