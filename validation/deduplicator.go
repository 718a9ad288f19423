package validation

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

// Deduplicator maintains a bounded map of event hashes seen within the
// non-ancient window and drops repeats, guaranteeing invariant 6
// (spec.md §8): it never emits two events with the same hash. Entries are
// evicted as the window advances past their ancient threshold.
type Deduplicator struct {
	sched *wiring.Scheduler[envEvent]
	Out   *wiring.Wire[*events.Event]

	win  window.Window
	seen map[ids.ID]seenEntry
}

type seenEntry struct {
	ancientValue uint64
}

// DeduplicatorConfig configures the stage.
type DeduplicatorConfig struct {
	Capacity      int
	InitialWindow window.Window
	Logger        log.Logger
	Metrics       *metrics.Metrics
}

// NewDeduplicator constructs and starts the stage.
func NewDeduplicator(cfg DeduplicatorConfig) *Deduplicator {
	d := &Deduplicator{
		Out:  wiring.NewWire[*events.Event]("deduplicator.out"),
		win:  cfg.InitialWindow,
		seen: make(map[ids.ID]seenEntry),
	}

	d.sched = wiring.New(wiring.Config[envEvent]{
		Name:     "deduplicator",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, env envEvent) {
			if env.WindowUpdate != nil {
				d.win = *env.WindowUpdate
				d.evictAncient()
				return
			}
			e := env.Item
			if _, dup := d.seen[e.Hash]; dup {
				if cfg.Metrics != nil {
					cfg.Metrics.EventsDropped.WithLabelValues("deduplicator", pipelineerr.ErrDuplicateEvent.Error()).Inc()
				}
				return
			}
			d.seen[e.Hash] = seenEntry{ancientValue: d.win.Value(e)}
			if cfg.Metrics != nil {
				cfg.Metrics.EventsProcessed.WithLabelValues("deduplicator").Inc()
			}
			d.Out.Emit(ctx, e)
		},
	})

	return d
}

func (d *Deduplicator) evictAncient() {
	min := d.win.MinNonAncientValue
	for h, v := range d.seen {
		if v.ancientValue < min {
			delete(d.seen, h)
		}
	}
}

// Submit enqueues a validated event for deduplication.
func (d *Deduplicator) Submit(ctx context.Context, e *events.Event) error {
	return d.sched.Submit(ctx, wiring.Item(e))
}

// ApplyWindow enqueues a window update in order with events.
func (d *Deduplicator) ApplyWindow(w window.Window) {
	d.sched.Inject(wiring.WindowUpdateOf[*events.Event](w))
}

// Flush blocks until every enqueued event has been deduplicated.
func (d *Deduplicator) Flush(ctx context.Context) error {
	return d.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (d *Deduplicator) Stop() {
	d.sched.Stop()
}

// Len reports the number of hashes currently tracked, for tests/metrics.
func (d *Deduplicator) Len() int {
	return len(d.seen)
}
