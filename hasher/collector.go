package hasher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/wiring"
)

// collector is the post-hash collector: it re-establishes the input order
// that the Concurrent hasher workers may have scrambled, emitting events to
// Out one at a time, strictly in admission order (spec.md §4.2).
type collector struct {
	nextTicket int64 // atomic: next ticket to hand out at admit time

	mu      sync.Mutex
	nextOut int64 // next ticket to emit
	pending map[int64]*events.Event

	out     *wiring.Wire[*events.Event]
	metrics *metrics.Metrics
}

func newCollector(out *wiring.Wire[*events.Event], m *metrics.Metrics) *collector {
	return &collector{
		pending: make(map[int64]*events.Event),
		out:     out,
		metrics: m,
	}
}

// admit reserves the next admission ticket for an event entering the
// hasher. Called from the hasher's Submit path before hashing begins, so
// tickets reflect input order even though hashing itself runs concurrently
// and may finish out of order.
func (c *collector) admit() int64 {
	return atomic.AddInt64(&c.nextTicket, 1) - 1
}

// deliver hands a hashed event to the collector under its admission
// ticket. It emits downstream every contiguous run of tickets starting at
// the current output cursor, so events.leave in exactly the order they
// were admitted.
func (c *collector) deliver(ctx context.Context, ticket int64, e *events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[ticket] = e
	for {
		next, ok := c.pending[c.nextOut]
		if !ok {
			return
		}
		delete(c.pending, c.nextOut)
		c.nextOut++
		if c.metrics != nil {
			c.metrics.EventsProcessed.WithLabelValues("post-hash-collector").Inc()
		}
		c.out.Emit(ctx, next)
	}
}
