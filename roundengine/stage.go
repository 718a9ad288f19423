package roundengine

import (
	"context"

	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/linker"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/validators"
	"github.com/virtualvote/consensus/wiring"
)

// WitnessObservation reports whether a just-processed linked event is a
// witness in its round, consumed by the event-creation manager's
// other-parent selection heuristic (spec.md §4.14).
type WitnessObservation struct {
	Descriptor events.Descriptor
	IsWitness  bool
}

// Stage wraps Engine in a Sequential scheduler, feeding linked events into
// the virtual-voting algorithm and emitting decided consensus rounds
// (spec.md §4.9: "Linked Event Intake & Consensus Engine").
type Stage struct {
	sched      *wiring.Scheduler[*linker.LinkedEvent]
	Out        *wiring.Wire[*ConsensusRound]
	WitnessOut *wiring.Wire[WitnessObservation]
	engine     *Engine
}

// StageConfig configures the stage.
type StageConfig struct {
	Capacity      int
	Book          *validators.AddressBook
	CoinFreq      uint64
	ElectionDepth uint64
	Logger        log.Logger
	Metrics       *metrics.Metrics
}

// NewStage constructs and starts the stage.
func NewStage(cfg StageConfig) *Stage {
	s := &Stage{
		Out:        wiring.NewWire[*ConsensusRound]("consensus-engine.out"),
		WitnessOut: wiring.NewWire[WitnessObservation]("consensus-engine.witness-out"),
		engine: New(Config{
			Book:          cfg.Book,
			CoinFreq:      cfg.CoinFreq,
			ElectionDepth: cfg.ElectionDepth,
		}),
	}

	s.sched = wiring.New(wiring.Config[*linker.LinkedEvent]{
		Name:     "linked-event-intake",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, le *linker.LinkedEvent) {
			isWitness, rounds := s.engine.ProcessLinkedEvent(le)
			s.WitnessOut.Emit(ctx, WitnessObservation{Descriptor: le.Event.Descriptor(), IsWitness: isWitness})
			for _, r := range rounds {
				if cfg.Metrics != nil {
					cfg.Metrics.LatestConsensusRound.Set(float64(r.RoundNumber))
				}
				s.Out.Emit(ctx, r)
			}
		},
	})

	return s
}

// Submit enqueues a linked event for consensus processing.
func (s *Stage) Submit(ctx context.Context, le *linker.LinkedEvent) error {
	return s.sched.Submit(ctx, le)
}

// Flush blocks until every enqueued event has been processed.
func (s *Stage) Flush(ctx context.Context) error {
	return s.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (s *Stage) Stop() {
	s.sched.Stop()
}
