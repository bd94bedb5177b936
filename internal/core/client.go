package core

import (
	"context"
	"sync"
)

// Client is the outbound handle of one connection as seen by the core layer.
// Events are consumed by the connection's single write loop, which makes it
// the only writer of the underlying socket.
type Client struct {
	ID     string
	Events chan *Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with an outbound queue of the given size.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Deliver queues ev for the connection. It blocks while the queue is full and
// fails once the client is closed or ctx is done.
func (c *Client) Deliver(ctx context.Context, ev *Event) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.Events <- ev:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the client gone. Events is left open; writers select on Done.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
