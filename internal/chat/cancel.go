package chat

import (
	"context"
	"sync"
	"time"
)

// DefaultCancelTimeout bounds how long a cancel waits for the transport to
// acknowledge before the session force-finalizes the turn.
const DefaultCancelTimeout = 3 * time.Second

// CancellationController owns the lifecycle of one outstanding stream
// request: start, signal-cancel, observe terminal outcome. Signalling is
// idempotent and a bounded timer guarantees the session never gets stuck in
// cancelling if the transport goes silent.
type CancellationController struct {
	mu         sync.Mutex
	cancel     context.CancelFunc
	timer      *time.Timer
	active     bool
	cancelling bool
}

func NewCancellationController() *CancellationController {
	return &CancellationController{}
}

// Begin derives the request context for a new stream. Any previous request
// state is discarded.
func (c *CancellationController) Begin(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancel = cancel
	c.active = true
	c.cancelling = false
	c.mu.Unlock()
	return ctx
}

// Signal aborts the in-flight request and arms the force-finalize timer.
// Returns false when there is no active request or a cancel was already
// signalled (the repeat is a no-op).
func (c *CancellationController) Signal(timeout time.Duration, onTimeout func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.cancelling {
		return false
	}
	c.cancelling = true
	if c.cancel != nil {
		c.cancel()
	}
	if timeout <= 0 {
		timeout = DefaultCancelTimeout
	}
	c.timer = time.AfterFunc(timeout, onTimeout)
	return true
}

// Finish records the terminal outcome of the request: stops the pending
// timer and releases the context.
func (c *CancellationController) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.active = false
	c.cancelling = false
}

// Cancelling reports whether a cancel has been signalled for the active
// request.
func (c *CancellationController) Cancelling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelling
}
