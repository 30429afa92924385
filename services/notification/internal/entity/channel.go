package entity

import "sync"

// Channel is the delivery endpoint for one connected session of one user.
// It is never persisted; the subscription registry owns it for its lifetime.
type Channel struct {
	UserID    string
	SessionID string

	mu     sync.Mutex
	events chan Event
	closed bool
}

func NewChannel(userID, sessionID string, buffer int) *Channel {
	return &Channel{
		UserID:    userID,
		SessionID: sessionID,
		events:    make(chan Event, buffer),
	}
}

// Events exposes the receive side of the channel to the streaming handler.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// TrySend enqueues an event without blocking. It reports false when the
// channel is closed or its buffer is full; the caller treats either as a
// dead session and evicts it.
func (c *Channel) TrySend(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// Close is idempotent. After Close, TrySend fails and the events channel is
// drained to its end by the reader.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// Closed reports whether the channel has been torn down.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
