package redis

import (
	"context"
	"os"
	"testing"
	"time"

	cache "kairos/internal/cache/iface"
	"kairos/internal/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) cache.Cache {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	c, err := NewRedisCache(addr, "", 0, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBasicOperations(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()
	prefix := "test:kairos:" + uuid.NewString() + ":"

	t.Run("Set and Get", func(t *testing.T) {
		key := prefix + "key1"
		require.NoError(t, c.Set(ctx, key, "value", 0))

		got, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "value", got)

		require.NoError(t, c.Delete(ctx, key))
		_, err = c.Get(ctx, key)
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	})

	t.Run("SetNX only once", func(t *testing.T) {
		key := prefix + "nx"
		ok, err := c.SetNX(ctx, key, "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.SetNX(ctx, key, "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "a", got)
		_ = c.Delete(ctx, key)
	})

	t.Run("SetNX with TTL expires", func(t *testing.T) {
		key := prefix + "ttl"
		ok, err := c.SetNX(ctx, key, "a", 200*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(400 * time.Millisecond)
		_, err = c.Get(ctx, key)
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	})

	t.Run("Eval", func(t *testing.T) {
		key := prefix + "eval"
		require.NoError(t, c.Set(ctx, key, "owner", 0))

		res, err := c.Eval(ctx, `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`, []string{key}, "owner")
		require.NoError(t, err)
		assert.EqualValues(t, 1, res)

		_, err = c.Get(ctx, key)
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	})
}
