package stream

import (
	"errors"
	"sync"
)

// ErrCancelled is returned by Cancellation.Err after Cancel.
var ErrCancelled = errors.New("operation cancelled")

// Cancellation is a one-shot cancellation token. Cancelling twice is a
// no-op; callbacks registered after cancellation fire immediately, so no
// notification is ever missed. Producers poll Err or select on Done to stop
// promptly; nothing preempts an in-flight native call.
type Cancellation struct {
	mu        sync.Mutex
	done      chan struct{}
	cancelled bool
	callbacks []func()
}

// NewCancellation returns an un-cancelled token.
func NewCancellation() *Cancellation {
	return &Cancellation{done: make(chan struct{})}
}

// Cancel fires the token. Registered callbacks run once, in registration
// order, on the caller's goroutine.
func (c *Cancellation) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	cbs := c.callbacks
	c.callbacks = nil
	close(c.done)
	c.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

// OnCancel registers fn to run on cancellation. If the token is already
// cancelled, fn runs immediately.
func (c *Cancellation) OnCancel(fn func()) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		fn()
		return
	}
	c.callbacks = append(c.callbacks, fn)
	c.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (c *Cancellation) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Err returns ErrCancelled once cancelled, nil otherwise. Producers call it
// as a synchronous check inside their loops.
func (c *Cancellation) Err() error {
	if c.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// Done returns a channel closed on cancellation.
func (c *Cancellation) Done() <-chan struct{} { return c.done }
