package manager

import (
	"sync"
	"time"
)

// DefaultRetryInterval is the delay before a reconnect attempt.
const DefaultRetryInterval = 5 * time.Second

// retryTimer is a single-shot timer. Arming it again restarts the
// countdown, so at most one fire is ever pending. A fire that lost a race
// with Stop or a newer Arm is discarded.
type retryTimer struct {
	interval time.Duration
	fire     func()

	mu         sync.Mutex
	t          *time.Timer
	generation uint64
	closed     bool
}

func newRetryTimer(interval time.Duration, fire func()) *retryTimer {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return &retryTimer{interval: interval, fire: fire}
}

// Arm starts or restarts the countdown.
func (r *retryTimer) Arm() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.t != nil {
		r.t.Stop()
	}
	r.generation++
	gen := r.generation
	r.t = time.AfterFunc(r.interval, func() { r.expire(gen) })
}

// Stop cancels a pending fire.
func (r *retryTimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

// Close stops the timer for good; later Arm calls do nothing.
func (r *retryTimer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.closed = true
}

// Armed reports whether a fire is pending.
func (r *retryTimer) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t != nil
}

func (r *retryTimer) stopLocked() {
	if r.t != nil {
		r.t.Stop()
		r.t = nil
	}
	r.generation++
}

// expire disarms the timer before calling fire, so fire may re-arm it.
func (r *retryTimer) expire(gen uint64) {
	r.mu.Lock()
	if r.closed || gen != r.generation {
		r.mu.Unlock()
		return
	}
	r.t = nil
	r.mu.Unlock()

	r.fire()
}
