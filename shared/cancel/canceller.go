// Package cancel provides a minimal, dependency-free cancellation
// signal used by the async protocol engine (internal/engine) to mark a
// stream as stopped (spec.md §4.5.1, §4.5.6).
// It mirrors context.Context's Done()/Err() pair without requiring a
// context.Context at every call site, since the engine's stop signal is
// not itself a deadline or a request-scoped value bag.
package cancel

import (
	"context"
	"sync"
)

// Canceller is a one-shot, idempotent cancellation signal.
type Canceller struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
}

// New returns a Canceller that has not yet been cancelled.
func New() *Canceller {
	return &Canceller{done: make(chan struct{})}
}

// Cancel marks c as cancelled. Subsequent calls are no-ops.
func (c *Canceller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
	}

	c.err = context.Canceled
	close(c.done)
}

// Done returns a channel that is closed once Cancel has been called.
func (c *Canceller) Done() <-chan struct{} {
	return c.done
}

// Err returns context.Canceled once Cancel has been called, nil until
// then.
func (c *Canceller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// IsCancelled reports whether Cancel has been called.
func (c *Canceller) IsCancelled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
