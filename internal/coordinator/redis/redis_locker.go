package redis

import (
	"context"
	"fmt"
	"time"

	cache "kairos/internal/cache/iface"
	coordinator "kairos/internal/coordinator/iface"
	"kairos/internal/logger"

	"github.com/google/uuid"
)

// releaseScript deletes the key only while it still carries our token
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type redisLocker struct {
	cache  cache.Cache
	prefix string
	logger logger.Logger
}

// NewRedisLocker builds a Locker on SET NX PX with a token-checked release
func NewRedisLocker(c cache.Cache, prefix string, log logger.Logger) coordinator.Locker {
	return &redisLocker{
		cache:  c,
		prefix: prefix,
		logger: log.With(logger.String("component", "redis_locker")),
	}
}

func (l *redisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (coordinator.Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}

	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, fullKey, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, coordinator.ErrLockHeld
	}

	l.logger.Debug("lock acquired", logger.String("key", fullKey))
	return &redisLock{locker: l, key: fullKey, token: token}, nil
}

func (l *redisLocker) Close() error {
	return l.cache.Close()
}

type redisLock struct {
	locker *redisLocker
	key    string
	token  string
}

func (k *redisLock) Release(ctx context.Context) error {
	res, err := k.locker.cache.Eval(ctx, releaseScript, []string{k.key}, k.token)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", k.key, err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		k.locker.logger.Warn("lock expired before release", logger.String("key", k.key))
	}
	return nil
}
