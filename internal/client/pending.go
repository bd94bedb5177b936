package client

import (
	"context"
	"sync"
)

// pendingSet is the multiset of bodies sent but not yet echoed by the server.
type pendingSet struct {
	mu      sync.Mutex
	counts  map[string]int
	total   int
	changed chan struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{
		counts:  make(map[string]int),
		changed: make(chan struct{}),
	}
}

func (p *pendingSet) add(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[body]++
	p.total++
}

// remove drops one occurrence of body and reports whether one was present.
func (p *pendingSet) remove(body string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.counts[body]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(p.counts, body)
	} else {
		p.counts[body] = n - 1
	}
	p.total--

	close(p.changed)
	p.changed = make(chan struct{})
	return true
}

func (p *pendingSet) contains(body string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.counts[body] > 0
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.total
}

// wait blocks until body is no longer pending.
func (p *pendingSet) wait(ctx context.Context, body string, closed <-chan struct{}) error {
	for {
		p.mu.Lock()
		if p.counts[body] == 0 {
			p.mu.Unlock()
			return nil
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
