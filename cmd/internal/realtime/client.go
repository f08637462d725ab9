package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ConnState is the lifecycle state of one relay connection.
type ConnState uint32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client represents one connected websocket session.
//
// Send is never closed; done signals shutdown. This keeps Deliver safe to
// call from any goroutine at any time. Close is idempotent.
type Client struct {
	UserID    string
	SessionID string
	Send      chan []byte

	state     atomic.Uint32
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(userID, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize < minSendQueueSize {
		sendQueueSize = minSendQueueSize
	}
	return &Client{
		UserID:    userID,
		SessionID: sessionID,
		Send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) setState(s ConnState) {
	c.state.Store(uint32(s))
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.done)
	})
}

// Deliver queues msg for this client. It waits at most timeout for queue
// space. The returned error, if any, is a DeliveryError.
func (c *Client) Deliver(ctx context.Context, msg []byte, timeout time.Duration) error {
	select {
	case <-c.done:
		return DeliveryError{UserID: c.UserID, Reason: ReasonClosed}
	default:
	}

	select {
	case c.Send <- msg:
		return nil
	default:
	}
	if timeout <= 0 {
		return DeliveryError{UserID: c.UserID, Reason: ReasonQueueFull}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case c.Send <- msg:
		return nil
	case <-c.done:
		return DeliveryError{UserID: c.UserID, Reason: ReasonClosed}
	case <-ctx.Done():
		return DeliveryError{UserID: c.UserID, Reason: ReasonCanceled}
	case <-t.C:
		return DeliveryError{UserID: c.UserID, Reason: ReasonQueueFull}
	}
}
