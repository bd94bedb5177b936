package client

import (
	"context"
	"sync"
)

// inbox is an unbounded FIFO of received messages.
type inbox struct {
	mu     sync.Mutex
	items  []Message
	notify chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (q *inbox) push(m Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *inbox) poll() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Message{}, false
	}
	m := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	return m, true
}

func (q *inbox) peek() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Message{}, false
	}
	return q.items[0], true
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// next blocks until a message is available, ctx is done, or closed fires.
// Queued messages are still returned after closed fires.
func (q *inbox) next(ctx context.Context, closed <-chan struct{}) (Message, bool, error) {
	for {
		if m, ok := q.poll(); ok {
			return m, true, nil
		}
		select {
		case <-q.notify:
		case <-closed:
			m, ok := q.poll()
			return m, ok, nil
		case <-ctx.Done():
			return Message{}, false, ctx.Err()
		}
	}
}
