package docstore

import (
	"context"
	"sync"
)

// Coalescer feeds snapshots to a callback on its own goroutine, keeping only
// the newest pending snapshot per document id. Writers never block on a slow
// callback; the callback may skip intermediate states.
type Coalescer struct {
	fn func(*Document)

	mu      sync.Mutex
	pending map[string]*Document
	order   []string

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewCoalescer(fn func(*Document)) *Coalescer {
	return &Coalescer{
		fn:      fn,
		pending: make(map[string]*Document),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Offer queues doc, replacing any undelivered snapshot of the same document.
func (c *Coalescer) Offer(doc *Document) {
	if doc == nil {
		return
	}
	c.mu.Lock()
	if _, ok := c.pending[doc.ID]; !ok {
		c.order = append(c.order, doc.ID)
	}
	c.pending[doc.ID] = doc
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued snapshots until ctx ends or Stop is called.
func (c *Coalescer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.wake:
		}
		c.mu.Lock()
		batch := make([]*Document, 0, len(c.order))
		for _, id := range c.order {
			batch = append(batch, c.pending[id])
		}
		c.pending = make(map[string]*Document)
		c.order = nil
		c.mu.Unlock()
		for _, doc := range batch {
			if c.stopped() {
				return
			}
			c.fn(doc)
		}
	}
}

func (c *Coalescer) Stop() { c.stopOnce.Do(func() { close(c.done) }) }

// Done is closed once Stop has been called.
func (c *Coalescer) Done() <-chan struct{} { return c.done }

func (c *Coalescer) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
