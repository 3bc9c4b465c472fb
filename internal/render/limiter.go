package render

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLimiterClosed is returned by Acquire after Close.
var ErrLimiterClosed = errors.New("session limiter closed")

// Limiter bounds the number of concurrently open sessions. Slots are tokens in
// a buffered channel; Acquire takes one, the returned release puts it back.
type Limiter struct {
	sem       chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewLimiter returns a limiter with capacity slots (minimum 1).
func NewLimiter(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	l := &Limiter{sem: make(chan struct{}, capacity), done: make(chan struct{})}
	for i := 0; i < capacity; i++ {
		l.sem <- struct{}{}
	}
	return l
}

// Acquire waits up to wait (0 means no bound beyond ctx) for a free slot. The
// returned release is safe to call more than once. Waiters parked when the
// limiter closes get ErrLimiterClosed.
func (l *Limiter) Acquire(ctx context.Context, wait time.Duration) (func(), error) {
	select {
	case <-l.done:
		return nil, ErrLimiterClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	select {
	case <-l.sem:
		var once sync.Once
		return func() {
			once.Do(func() { l.sem <- struct{}{} })
		}, nil
	case <-l.done:
		return nil, ErrLimiterClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Capacity returns the total number of slots.
func (l *Limiter) Capacity() int { return cap(l.sem) }

// Idle returns the number of free slots.
func (l *Limiter) Idle() int { return len(l.sem) }

// Close fails pending and future Acquire calls. Held slots can still be
// released.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
