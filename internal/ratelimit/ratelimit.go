// Package ratelimit is the indexing pipeline's token-bucket limiter
// (spec.md §4.J). Callers borrow a token before an embedding call;
// refundable failures (network/timeout/5xx) return it, non-refundable
// failures (4xx/429) do not. Waiters queue FIFO with an optional deadline.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultCapacity and DefaultRefill match spec.md §4.J's "default e.g.
// 50/10 s" published rate.
const (
	DefaultCapacity   = 50
	DefaultRefillStep = 10 * time.Second
)

// waiter is a single pending Acquire call in the FIFO queue.
type waiter struct {
	ready chan struct{}
}

// Limiter is a token-bucket with an explicit Refund, distinct from
// golang.org/x/time/rate (which has no way to give a token back).
type Limiter struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	refillStep time.Duration
	waiters    []*waiter
	stopRefill chan struct{}
	stopped    bool
}

// New starts a Limiter with the given capacity, refilling to capacity
// every refillStep. A zero refillStep disables the background refill
// (useful in tests that drive it manually via Refund).
func New(capacity int, refillStep time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Limiter{
		capacity:   capacity,
		tokens:     capacity,
		refillStep: refillStep,
		stopRefill: make(chan struct{}),
	}
	if refillStep > 0 {
		go l.refillLoop()
	}
	return l
}

func (l *Limiter) refillLoop() {
	ticker := time.NewTicker(l.refillStep)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			l.tokens = l.capacity
			l.wakeWaitersLocked()
			l.mu.Unlock()
		case <-l.stopRefill:
			return
		}
	}
}

// Stop halts the background refill goroutine. Safe to call multiple
// times.
func (l *Limiter) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()
	close(l.stopRefill)
}

// Acquire blocks, FIFO, until a token is available, ctx is cancelled, or
// the optional deadline elapses (deadline <= 0 means no deadline beyond
// ctx).
func (l *Limiter) Acquire(ctx context.Context, deadline time.Duration) error {
	l.mu.Lock()
	if l.tokens > 0 && len(l.waiters) == 0 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	var timeoutCh <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.removeWaiter(w)
		return ctx.Err()
	case <-timeoutCh:
		l.removeWaiter(w)
		return context.DeadlineExceeded
	}
}

func (l *Limiter) removeWaiter(target *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.waiters {
		if w == target {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

// wakeWaitersLocked hands out tokens to queued waiters in FIFO order.
// Caller holds l.mu.
func (l *Limiter) wakeWaitersLocked() {
	for l.tokens > 0 && len(l.waiters) > 0 {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.tokens--
		close(w.ready)
	}
}

// Refund returns a borrowed token, used after a refundable failure
// (network/timeout/5xx per spec.md §4.B, §4.J). Non-refundable failures
// (429/4xx) must not call this.
func (l *Limiter) Refund() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tokens < l.capacity {
		l.tokens++
	}
	l.wakeWaitersLocked()
}

// Available returns the current token count, for tests and diagnostics.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens
}
