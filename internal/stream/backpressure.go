package stream

import (
	"context"
	"sync"
)

// Backpressure is a bounded semaphore with a FIFO waiter queue. Acquire
// grants immediately while fewer than maxPending permits are out; further
// callers queue and are woken in arrival order. Release hands the permit
// directly to the oldest waiter, so capacity is never exceeded and a freed
// slot never sits idle while waiters exist. No built-in timeout: compose
// with context deadlines.
type Backpressure struct {
	mu      sync.Mutex
	max     int
	pending int
	waiters []chan struct{}
}

// NewBackpressure returns a handler allowing maxPending concurrent permits.
func NewBackpressure(maxPending int) *Backpressure {
	if maxPending < 1 {
		maxPending = 1
	}
	return &Backpressure{max: maxPending}
}

// Acquire takes a permit, blocking in FIFO order when none is free.
func (b *Backpressure) Acquire(ctx context.Context) error {
	b.mu.Lock()
	if b.pending < b.max {
		b.pending++
		b.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()

	select {
	case <-w:
		// Permit handed over by Release; pending already accounts for us.
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		for i, q := range b.waiters {
			if q == w {
				b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
				b.mu.Unlock()
				return ctx.Err()
			}
		}
		b.mu.Unlock()
		// Release already granted us the permit; give it back.
		b.Release()
		return ctx.Err()
	}
}

// Release frees a permit. If waiters are queued the permit transfers to the
// oldest one without the pending count ever dipping below capacity demand.
func (b *Backpressure) Release() {
	b.mu.Lock()
	if len(b.waiters) > 0 {
		w := b.waiters[0]
		b.waiters = b.waiters[1:]
		b.mu.Unlock()
		close(w)
		return
	}
	if b.pending > 0 {
		b.pending--
	}
	b.mu.Unlock()
}

// Pending returns the number of permits currently held.
func (b *Backpressure) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Waiting returns the number of queued acquirers.
func (b *Backpressure) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}
