package content

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter is a bounded-parallelism gate for upstream fetches. Waiters
// are granted slots in FIFO order. It has no knowledge of what a slot
// is used for; callers must pair every successful Acquire with a
// deferred Release so a failing fetch cannot leak its slot.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a limiter admitting at most n concurrent holders.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks until a slot is free. Cancellation is the caller's
// responsibility: a cancelled context abandons the wait.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release returns the slot and wakes the next waiter.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
