package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/cubeice/ice/internal/engine"
)

// Controller carries cooperative suspend and cancel requests into a running
// transaction. Requests take effect at the next progress checkpoint.
type Controller struct {
	mu        sync.Mutex
	suspended bool
	cancelled bool
	resume    chan struct{}
}

func NewController() *Controller {
	return &Controller{resume: make(chan struct{})}
}

// Suspend pauses the transaction at its next checkpoint.
func (c *Controller) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suspended || c.cancelled {
		return
	}
	c.suspended = true
	c.resume = make(chan struct{})
}

// Resume releases a suspended transaction.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.suspended {
		return
	}
	c.suspended = false
	close(c.resume)
}

// Toggle suspends a running transaction or resumes a suspended one and
// reports whether it is now suspended.
func (c *Controller) Toggle() bool {
	if c.Suspended() {
		c.Resume()
		return false
	}
	c.Suspend()
	return c.Suspended()
}

// Cancel stops the transaction at its next checkpoint, waking it if it is
// suspended.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	if c.suspended {
		c.suspended = false
		close(c.resume)
	}
}

func (c *Controller) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

func (c *Controller) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Checkpoint blocks while the transaction is suspended and returns
// ErrCancelled once it is cancelled or ctx is done. A nil Controller only
// observes ctx.
func (c *Controller) Checkpoint(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", engine.ErrCancelled, err)
		}
		if c == nil {
			return nil
		}

		c.mu.Lock()
		cancelled, suspended, resume := c.cancelled, c.suspended, c.resume
		c.mu.Unlock()

		if cancelled {
			return engine.ErrCancelled
		}
		if !suspended {
			return nil
		}
		select {
		case <-resume:
		case <-ctx.Done():
		}
	}
}

// ProgressSink receives byte-level progress of a transaction.
type ProgressSink interface {
	Report(done, total int64)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(done, total int64)

func (f ProgressFunc) Report(done, total int64) {
	f(done, total)
}

type nopProgress struct{}

func (nopProgress) Report(int64, int64) {}

func progressOrNop(sink ProgressSink) ProgressSink {
	if sink == nil {
		return nopProgress{}
	}
	return sink
}
