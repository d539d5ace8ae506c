package kvstore

import (
	"context"
	"time"
)

// Lock is the persistence lock shared by every subsystem that writes to the
// same Store. It is not reentrant.
type Lock struct {
	ch      chan struct{}
	timeout time.Duration
}

// NewLock creates a Lock whose Acquire waits at most timeout.
// A zero or negative timeout waits until the context is done.
func NewLock(timeout time.Duration) *Lock {
	return &Lock{
		ch:      make(chan struct{}, 1),
		timeout: timeout,
	}
}

// Acquire takes the lock. It returns ErrLockTimeout when the configured
// timeout elapses first, or the context error if ctx ends first.
func (l *Lock) Acquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	default:
	}

	var timeout <-chan time.Time
	if l.timeout > 0 {
		t := time.NewTimer(l.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timeout:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release gives the lock back. Releasing an unheld lock is a no-op.
func (l *Lock) Release() {
	select {
	case <-l.ch:
	default:
	}
}
