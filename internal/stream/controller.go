// Package stream provides the flow-control primitives used for token
// delivery: a single-producer single-consumer push queue, a FIFO-fair
// bounded semaphore, a recent-token ring buffer, one-shot cancellation, and
// per-step timeout/transform/batch source wrappers.
package stream

import (
	"context"
	"io"
	"sync"
)

// Source is the pull side of a stream: one item per Recv call. End of
// stream is reported as io.EOF.
type Source[T any] interface {
	Recv(ctx context.Context) (T, error)
}

type state int

const (
	stateOpen state = iota
	stateClosed
	stateErrored
)

// Controller is a single-producer, single-consumer push queue with explicit
// close/error/cancel states. Push after close or error is a silent no-op
// returning false. Close and Fail are idempotent once the stream left the
// open state. When the consumer cancels, the controller transitions to
// closed and further pushes are dropped.
type Controller[T any] struct {
	mu    sync.Mutex
	items []T
	st    state
	err   error
	wake  chan struct{}
}

// NewController returns an open controller.
func NewController[T any]() *Controller[T] {
	return &Controller[T]{wake: make(chan struct{}, 1)}
}

// Push enqueues an item for the consumer. Returns false without enqueueing
// when the stream is no longer open.
func (c *Controller[T]) Push(v T) bool {
	c.mu.Lock()
	if c.st != stateOpen {
		c.mu.Unlock()
		return false
	}
	c.items = append(c.items, v)
	c.mu.Unlock()
	c.signal()
	return true
}

// Close marks the stream complete. The consumer drains buffered items and
// then observes io.EOF. Idempotent.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.st == stateOpen {
		c.st = stateClosed
	}
	c.mu.Unlock()
	c.signal()
}

// Fail marks the stream errored. The consumer drains buffered items and
// then observes err. No effect after the stream already left the open state.
func (c *Controller[T]) Fail(err error) {
	c.mu.Lock()
	if c.st == stateOpen {
		c.st = stateErrored
		c.err = err
	}
	c.mu.Unlock()
	c.signal()
}

// Cancel is the consumer-side abort: the stream transitions to closed and
// buffered items are discarded. Idempotent.
func (c *Controller[T]) Cancel() {
	c.mu.Lock()
	if c.st == stateOpen {
		c.st = stateClosed
	}
	c.items = nil
	c.mu.Unlock()
	c.signal()
}

// Recv returns the next item. It blocks until an item is pushed, the stream
// closes (io.EOF), fails (the producer's error), or ctx is done (the
// controller is cancelled and ctx.Err() returned).
func (c *Controller[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		c.mu.Lock()
		if len(c.items) > 0 {
			v := c.items[0]
			c.items = c.items[1:]
			c.mu.Unlock()
			return v, nil
		}
		switch c.st {
		case stateErrored:
			err := c.err
			c.mu.Unlock()
			return zero, err
		case stateClosed:
			c.mu.Unlock()
			return zero, io.EOF
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-ctx.Done():
			c.Cancel()
			return zero, ctx.Err()
		}
	}
}

// Closed reports whether the stream has left the open state.
func (c *Controller[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st != stateOpen
}

func (c *Controller[T]) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
