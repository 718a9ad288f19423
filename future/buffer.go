// Package future implements the future event buffer: the stage that holds
// events slightly ahead of the node's own clock of rounds, releasing them
// once the window catches up (spec.md §4.13).
package future

import (
	"context"

	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/pipelineerr"
	"github.com/virtualvote/consensus/wiring"
	"github.com/virtualvote/consensus/window"
)

type envEvent = wiring.Envelope[*events.Event]

// Buffer holds events whose birthRound is exactly one round ahead of the
// window's latest consensus round, releasing them to the event-creation
// manager once the window advances to catch up. An event more than one
// round ahead is dropped as malformed/malicious (spec.md §4.13).
type Buffer struct {
	sched *wiring.Scheduler[envEvent]
	Out   *wiring.Wire[*events.Event]

	win     window.Window
	pending []*events.Event
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
		Out: wiring.NewWire[*events.Event]("future-event-buffer.out"),
		win: cfg.InitialWindow,
	}

	b.sched = wiring.New(wiring.Config[envEvent]{
		Name:     "future-event-buffer",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, env envEvent) {
			if env.WindowUpdate != nil {
				b.win = *env.WindowUpdate
				b.release(ctx, cfg.Metrics)
				return
			}
			e := env.Item
			switch {
			case e.BirthRound <= b.win.LatestConsensusRound:
				if cfg.Metrics != nil {
					cfg.Metrics.EventsProcessed.WithLabelValues("future-event-buffer").Inc()
				}
				b.Out.Emit(ctx, e)
			case e.BirthRound == b.win.LatestConsensusRound+1:
				b.pending = append(b.pending, e)
			default:
				if cfg.Metrics != nil {
					cfg.Metrics.EventsDropped.WithLabelValues("future-event-buffer", pipelineerr.ErrMalformedEvent.Error()).Inc()
				}
			}
		},
	})

	return b
}

// release emits every pending event whose birthRound is no longer ahead of
// the current window, preserving arrival order.
func (b *Buffer) release(ctx context.Context, m *metrics.Metrics) {
	kept := b.pending[:0]
	for _, e := range b.pending {
		if e.BirthRound <= b.win.LatestConsensusRound {
			if m != nil {
				m.EventsProcessed.WithLabelValues("future-event-buffer").Inc()
			}
			b.Out.Emit(ctx, e)
		} else {
			kept = append(kept, e)
		}
	}
	b.pending = kept
}

// Submit enqueues an event whose birthRound may be ahead of the window.
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

// Len reports the number of events currently held, for tests/metrics.
func (b *Buffer) Len() int {
	return len(b.pending)
}
