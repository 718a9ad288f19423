package pces

import (
	"context"

	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/wiring"
)

// Sequencer assigns each event a strictly monotone global stream sequence
// number, then fans the stamped event out to the consensus path (the
// in-order linker) and the durability path (the PCES writer), in that
// order so both sides observe the same number (spec.md §4.7).
type Sequencer struct {
	sched *wiring.Scheduler[*events.Event]

	ToLinker *wiring.Wire[*events.Event]
	ToWriter *wiring.Wire[*events.Event]

	next uint64
}

// Config configures the stage.
type Config struct {
	Capacity int
	// FirstSeqNum resumes numbering after a restart (spec.md §4.7: the
	// counter persists in the segment header across rotations).
	FirstSeqNum uint64
	Logger      log.Logger
	Metrics     *metrics.Metrics
}

// NewSequencer constructs and starts the stage.
func NewSequencer(cfg Config) *Sequencer {
	s := &Sequencer{
		ToLinker: wiring.NewWire[*events.Event]("pces-sequencer.to-linker"),
		ToWriter: wiring.NewWire[*events.Event]("pces-sequencer.to-writer"),
		next:     cfg.FirstSeqNum,
	}

	s.sched = wiring.New(wiring.Config[*events.Event]{
		Name:     "pces-sequencer",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, e *events.Event) {
			e.SequenceNumber = s.next
			s.next++
			if cfg.Metrics != nil {
				cfg.Metrics.LatestStreamSequence.Set(float64(e.SequenceNumber))
				cfg.Metrics.EventsProcessed.WithLabelValues("pces-sequencer").Inc()
			}
			s.ToLinker.Emit(ctx, e)
			s.ToWriter.Emit(ctx, e)
		},
	})

	return s
}

// Submit enqueues a released, non-orphan event for sequencing.
func (s *Sequencer) Submit(ctx context.Context, e *events.Event) error {
	return s.sched.Submit(ctx, e)
}

// Flush blocks until every enqueued event has been sequenced.
func (s *Sequencer) Flush(ctx context.Context) error {
	return s.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (s *Sequencer) Stop() {
	s.sched.Stop()
}
