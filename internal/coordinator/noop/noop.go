// Package noop is the single-instance Locker: every acquire succeeds.
package noop

import (
	"context"
	"time"

	coordinator "kairos/internal/coordinator/iface"
)

type locker struct{}

type lock struct{}

func NewLocker() coordinator.Locker {
	return locker{}
}

func (locker) TryAcquire(context.Context, string, time.Duration) (coordinator.Lock, error) {
	return lock{}, nil
}

func (locker) Close() error { return nil }

func (lock) Release(context.Context) error { return nil }
