// Package slack delivers run failure alerts, either to an incoming webhook or to the log.
package slack

import "context"

// Client sends one message to a channel. An empty channel means the webhook's default.
type Client interface {
	SendMessage(ctx context.Context, channel, message string) error
}
