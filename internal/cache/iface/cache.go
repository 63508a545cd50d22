package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the key/value operations the lock and heartbeat code needs (Redis)
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error

	// Script execution (for compare-and-delete style atomic operations)
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)

	Close() error
}
