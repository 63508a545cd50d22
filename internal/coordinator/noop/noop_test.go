package noop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockerAlwaysGrants(t *testing.T) {
	l := NewLocker()
	a, err := l.TryAcquire(context.Background(), "poll", time.Second)
	require.NoError(t, err)
	b, err := l.TryAcquire(context.Background(), "poll", time.Second)
	require.NoError(t, err)
	require.NoError(t, a.Release(context.Background()))
	require.NoError(t, b.Release(context.Background()))
	require.NoError(t, l.Close())
}
