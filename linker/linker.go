// Package linker implements the in-order linker: the stage that resolves
// declared parent hashes to in-memory event references, producing the
// linked events the consensus engine operates on (spec.md §4.8).
package linker

import (
	"context"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/pipelineerr"
	"github.com/virtualvote/consensus/wiring"
	"github.com/virtualvote/consensus/window"
	"go.uber.org/zap"
)

// LinkedEvent augments an event with resolved references to its parents,
// once both are known. Non-ancient only; the linker owns the graph and no
// other stage mutates it (spec.md §3).
type LinkedEvent struct {
	*events.Event
	SelfParent  *LinkedEvent
	OtherParent *LinkedEvent
}

type envEvent = wiring.Envelope[*events.Event]

// Linker resolves parent hashes to in-memory references. An event whose
// declared parent is neither ancient nor resolvable is an invariant
// violation — the orphan buffer guarantees every non-ancient parent it
// releases is already linked, so this should never happen in a correct
// deployment; the linker logs, counts, and drops rather than crashing
// (spec.md §7).
type Linker struct {
	sched *wiring.Scheduler[envEvent]
	Out   *wiring.Wire[*LinkedEvent]

	win    window.Window
	logger log.Logger

	byHash map[ids.ID]*LinkedEvent
}

// Config configures the stage.
type Config struct {
	Capacity      int
	InitialWindow window.Window
	Logger        log.Logger
	Metrics       *metrics.Metrics
}

// New constructs and starts the stage.
func New(cfg Config) *Linker {
	l := &Linker{
		Out:    wiring.NewWire[*LinkedEvent]("linker.out"),
		win:    cfg.InitialWindow,
		logger: cfg.Logger,
		byHash: make(map[ids.ID]*LinkedEvent),
	}

	l.sched = wiring.New(wiring.Config[envEvent]{
		Name:     "in-order-linker",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, env envEvent) {
			if env.WindowUpdate != nil {
				l.win = *env.WindowUpdate
				l.evictAncient()
				return
			}
			e := env.Item
			self, selfOK := l.resolve(e.SelfParent)
			other, otherOK := l.resolve(e.OtherParent)
			if !selfOK || !otherOK {
				if l.logger != nil {
					l.logger.Error("unresolvable non-ancient parent, dropping event",
						zap.Stringer("hash", e.Hash),
						zap.Stringer("creator", e.CreatorID),
					)
				}
				if cfg.Metrics != nil {
					cfg.Metrics.EventsDropped.WithLabelValues("in-order-linker", pipelineerr.ErrInvariantViolation.Error()).Inc()
				}
				return
			}

			le := &LinkedEvent{Event: e, SelfParent: self, OtherParent: other}
			l.byHash[e.Hash] = le
			if cfg.Metrics != nil {
				cfg.Metrics.EventsProcessed.WithLabelValues("in-order-linker").Inc()
			}
			l.Out.Emit(ctx, le)
		},
	})

	return l
}

// resolve looks up a declared parent descriptor. A nil or empty descriptor
// resolves to (nil, true) — no parent declared. An ancient descriptor
// resolves to (nil, true) — no longer tracked, and not required to be.
// Otherwise it must already be linked, or resolution fails.
func (l *Linker) resolve(d *events.Descriptor) (*LinkedEvent, bool) {
	if d == nil || d.IsEmpty() {
		return nil, true
	}
	if l.win.IsAncientDescriptor(*d) {
		return nil, true
	}
	le, ok := l.byHash[d.Hash]
	return le, ok
}

func (l *Linker) evictAncient() {
	for hash, le := range l.byHash {
		if l.win.IsAncientEvent(le.Event) {
			delete(l.byHash, hash)
		}
	}
}

// Submit enqueues an orphan-resolved event for linking.
func (l *Linker) Submit(ctx context.Context, e *events.Event) error {
	return l.sched.Submit(ctx, wiring.Item(e))
}

// ApplyWindow enqueues a window update in order with events.
func (l *Linker) ApplyWindow(w window.Window) {
	l.sched.Inject(wiring.WindowUpdateOf[*events.Event](w))
}

// Flush blocks until every enqueued event has been linked or dropped.
func (l *Linker) Flush(ctx context.Context) error {
	return l.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (l *Linker) Stop() {
	l.sched.Stop()
}

// Len reports the number of linked events currently tracked.
func (l *Linker) Len() int {
	return len(l.byHash)
}

// Lookup returns the linked event for hash, if still tracked.
func (l *Linker) Lookup(hash ids.ID) (*LinkedEvent, bool) {
	le, ok := l.byHash[hash]
	return le, ok
}
