package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	cache "kairos/internal/cache/iface"
	coordinator "kairos/internal/coordinator/iface"
	"kairos/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache emulates the Redis commands the locker uses
type memCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	closed bool
}

func newMemCache() *memCache {
	return &memCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memCache) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[keys[0]] == args[0].(string) {
		delete(m.values, keys[0])
		return int64(1), nil
	}
	return int64(0), nil
}

func (m *memCache) Close() error {
	m.closed = true
	return nil
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	c := newMemCache()
	locker := NewRedisLocker(c, "kairos:lock:", logger.NewNopLogger())

	first, err := locker.TryAcquire(ctx, "poll", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.ttls["kairos:lock:poll"])

	_, err = locker.TryAcquire(ctx, "poll", 30*time.Second)
	assert.True(t, coordinator.IsLockHeld(err))

	other, err := locker.TryAcquire(ctx, "sweep", 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	second, err := locker.TryAcquire(ctx, "poll", 30*time.Second)
	require.NoError(t, err)

	// a stale holder cannot release someone else's lock
	require.NoError(t, first.Release(ctx))
	_, err = locker.TryAcquire(ctx, "poll", 30*time.Second)
	assert.True(t, coordinator.IsLockHeld(err))

	require.NoError(t, second.Release(ctx))
	require.NoError(t, locker.Close())
	assert.True(t, c.closed)
}

func TestRedisLocker_RejectsZeroTTL(t *testing.T) {
	locker := NewRedisLocker(newMemCache(), "", logger.NewNopLogger())
	_, err := locker.TryAcquire(context.Background(), "poll", 0)
	assert.Error(t, err)
}
