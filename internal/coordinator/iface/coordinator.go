package coordinator

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by TryAcquire when another holder owns the lock
var ErrLockHeld = errors.New("lock held by another instance")

// Lock is a held lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out mutually exclusive locks across scheduler instances.
// ttl bounds how long a crashed holder can block others; backends with
// session-scoped locks may ignore it.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
	Close() error
}

func IsLockHeld(err error) bool {
	return errors.Is(err, ErrLockHeld)
}
