// Package orphan implements the orphan buffer: the stage that holds back
// events whose parents have not yet arrived and releases them, in arrival
// order, once their ancestry resolves or falls ancient (spec.md §4.6).
package orphan

import (
	"context"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/pipelineerr"
	"github.com/virtualvote/consensus/wiring"
	"github.com/virtualvote/consensus/window"
)

type envEvent = wiring.Envelope[*events.Event]

// ParentKey identifies a missing parent by its creator and generation, the
// index spec.md §4.6 keys pending orphans on.
type ParentKey struct {
	Creator    ids.NodeID
	Generation uint64
}

// Buffer holds events whose declared parents are not yet known, releasing
// them — and recursively, their waiting descendants — in arrival order once
// the missing ancestry resolves or falls ancient (spec.md §4.6, invariant 5).
type Buffer struct {
	sched *wiring.Scheduler[envEvent]
	Out   *wiring.Wire[*events.Event]

	win window.Window

	knownRecent map[ids.ID]struct{}
	byKey       map[ParentKey][]ids.ID
	missing     map[ids.ID]map[ParentKey]events.Descriptor
	pending     map[ids.ID]*events.Event
}

// Config configures the stage.
type Config struct {
	Capacity      int
	InitialWindow window.Window
	Logger        log.Logger
	Metrics       *metrics.Metrics
}

// New constructs and starts the stage.
func New(cfg Config) *Buffer {
	b := &Buffer{
		Out:         wiring.NewWire[*events.Event]("orphan-buffer.out"),
		win:         cfg.InitialWindow,
		knownRecent: make(map[ids.ID]struct{}),
		byKey:       make(map[ParentKey][]ids.ID),
		missing:     make(map[ids.ID]map[ParentKey]events.Descriptor),
		pending:     make(map[ids.ID]*events.Event),
	}

	b.sched = wiring.New(wiring.Config[envEvent]{
		Name:     "orphan-buffer",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, env envEvent) {
			if env.WindowUpdate != nil {
				b.win = *env.WindowUpdate
				b.releaseAncientOrphans(ctx)
				return
			}
			e := env.Item
			if b.win.IsAncientEvent(e) {
				if cfg.Metrics != nil {
					cfg.Metrics.EventsDropped.WithLabelValues("orphan-buffer", pipelineerr.ErrAncient.Error()).Inc()
				}
				return
			}

			missing := b.computeMissing(e)
			if len(missing) == 0 {
				b.release(ctx, e, cfg.Metrics)
				return
			}
			b.missing[e.Hash] = missing
			b.pending[e.Hash] = e
			for key := range missing {
				b.byKey[key] = append(b.byKey[key], e.Hash)
			}
		},
	})

	return b
}

// computeMissing returns the set of declared parents (keyed by creator and
// generation) that are neither ancient nor already known. A parent below
// the ancient threshold is treated as present immediately.
func (b *Buffer) computeMissing(e *events.Event) map[ParentKey]events.Descriptor {
	out := make(map[ParentKey]events.Descriptor, 2)
	for _, d := range []*events.Descriptor{e.SelfParent, e.OtherParent} {
		if d == nil || d.IsEmpty() {
			continue
		}
		if b.win.IsAncientDescriptor(*d) {
			continue
		}
		if _, known := b.knownRecent[d.Hash]; known {
			continue
		}
		out[ParentKey{Creator: d.CreatorID, Generation: d.Generation}] = *d
	}
	return out
}

// release emits e and then recursively releases any orphans waiting on e as
// their missing parent, in the order they arrived.
func (b *Buffer) release(ctx context.Context, e *events.Event, m *metrics.Metrics) {
	b.knownRecent[e.Hash] = struct{}{}
	delete(b.pending, e.Hash)
	delete(b.missing, e.Hash)
	if m != nil {
		m.EventsProcessed.WithLabelValues("orphan-buffer").Inc()
	}
	b.Out.Emit(ctx, e)

	key := ParentKey{Creator: e.CreatorID, Generation: e.Generation}
	waiting := b.byKey[key]
	delete(b.byKey, key)
	for _, hash := range waiting {
		rem, ok := b.missing[hash]
		if !ok {
			continue
		}
		delete(rem, key)
		if len(rem) == 0 {
			child := b.pending[hash]
			b.release(ctx, child, m)
		}
	}
}

// releaseAncientOrphans emits every pending orphan whose still-missing
// parent has just fallen ancient: it can never be satisfied, and consensus
// will treat the orphan as having only its known parent (spec.md §4.6,
// invariant 5).
func (b *Buffer) releaseAncientOrphans(ctx context.Context) {
	var resolved []ids.ID
	for hash, rem := range b.missing {
		for key, d := range rem {
			if b.win.IsAncientDescriptor(d) {
				delete(rem, key)
			}
		}
		if len(rem) == 0 {
			resolved = append(resolved, hash)
		}
	}
	for _, hash := range resolved {
		if e, ok := b.pending[hash]; ok {
			b.release(ctx, e, nil)
		}
	}
}

// Submit enqueues a signature-validated event.
func (b *Buffer) Submit(ctx context.Context, e *events.Event) error {
	return b.sched.Submit(ctx, wiring.Item(e))
}

// ApplyWindow enqueues a window update in order with events.
func (b *Buffer) ApplyWindow(w window.Window) {
	b.sched.Inject(wiring.WindowUpdateOf[*events.Event](w))
}

// Flush blocks until every enqueued event has been resolved or buffered.
func (b *Buffer) Flush(ctx context.Context) error {
	return b.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (b *Buffer) Stop() {
	b.sched.Stop()
}

// Len reports the number of orphans currently held, for tests/metrics.
func (b *Buffer) Len() int {
	return len(b.pending)
}
