package downloader

import (
	"context"
	"sync/atomic"
	"time"
)

// How often paused workers re-check the flags
const pausePollInterval = 500 * time.Millisecond

// Control carries the session's cancel and pause flags. Workers poll it at
// defined suspension points; in-flight requests are never forcibly aborted.
type Control struct {
	cancelled atomic.Bool
	paused    atomic.Bool
}

// NewControl creates a control block with both flags clear
func NewControl() *Control {
	return &Control{}
}

// Cancel sets the cancellation flag. It cannot be cleared.
func (c *Control) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether the session has been cancelled
func (c *Control) Cancelled() bool {
	return c.cancelled.Load()
}

// Pause sets the pause flag
func (c *Control) Pause() {
	c.paused.Store(true)
}

// Resume clears the pause flag
func (c *Control) Resume() {
	c.paused.Store(false)
}

// Paused reports whether the session is paused
func (c *Control) Paused() bool {
	return c.paused.Load()
}

// Wait blocks while paused, polling twice a second. It returns an error
// when the context ends or the session is cancelled while waiting.
func (c *Control) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Cancelled() {
			return context.Canceled
		}
		if !c.Paused() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pausePollInterval):
		}
	}
}
