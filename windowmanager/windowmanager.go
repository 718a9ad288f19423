// Package windowmanager owns the single non-ancient event window value and
// broadcasts its updates to every window-consuming stage (spec.md §3's
// "Non-Ancient Event Window", §5's topology). It is the window's sole
// writer; every other stage only reads.
package windowmanager

import (
	"context"

	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/roundengine"
	"github.com/virtualvote/consensus/wiring"
	"github.com/virtualvote/consensus/window"
)

// Manager is the window-manager stage: Sequential, consumes decided
// consensus rounds and produces Window updates, fanned out via INJECT to
// every registered downstream wire (spec.md §5: "Global window updates:
// single-writer ... many-reader via INJECT broadcast").
type Manager struct {
	sched *wiring.Scheduler[*roundengine.ConsensusRound]

	mode             events.AncientMode
	roundsNonAncient uint64

	cur     window.Window
	history []roundValue // ring of the last roundsNonAncient rounds' minimum values

	// Out broadcasts every window update. The platform coordinator solders
	// one consumer per window-reading stage via SolderToFunc, each
	// wrapping that stage's ApplyWindow method (spec.md §5).
	Out *wiring.Wire[window.Window]
}

type roundValue struct {
	round uint64
	min   uint64
}

// Config configures the stage.
type Config struct {
	Capacity int
	Mode     events.AncientMode
	// RoundsNonAncient is how many trailing consensus rounds remain
	// non-ancient: the window's minNonAncientValue lags the latest round
	// by this many rounds' worth of events. Not discoverable from the
	// provided spec slice (spec.md Open Questions); defaulted and
	// recorded as a decision in DESIGN.md.
	RoundsNonAncient uint64
	Logger           log.Logger
	Metrics          *metrics.Metrics
}

// New constructs and starts the stage.
func New(cfg Config) *Manager {
	roundsNonAncient := cfg.RoundsNonAncient
	if roundsNonAncient == 0 {
		roundsNonAncient = 26 // matches the Swirlds-lineage default recovered via original_source/
	}

	m := &Manager{
		mode:             cfg.Mode,
		roundsNonAncient: roundsNonAncient,
		cur:              window.Genesis(cfg.Mode),
		Out:              wiring.NewWire[window.Window]("window-manager.out"),
	}

	m.sched = wiring.New(wiring.Config[*roundengine.ConsensusRound]{
		Name:     "window-manager",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, round *roundengine.ConsensusRound) {
			m.advance(round)
			if cfg.Metrics != nil {
				cfg.Metrics.NonAncientWindowMin.Set(float64(m.cur.MinNonAncientValue))
				cfg.Metrics.EventsProcessed.WithLabelValues("window-manager").Inc()
			}
			m.Out.Emit(ctx, m.cur)
		},
	})

	return m
}

func (m *Manager) advance(round *roundengine.ConsensusRound) {
	min := m.roundMinValue(round)
	m.history = append(m.history, roundValue{round: round.RoundNumber, min: min})
	if uint64(len(m.history)) > m.roundsNonAncient {
		m.history = m.history[uint64(len(m.history))-m.roundsNonAncient:]
	}

	minNonAncient := m.cur.MinNonAncientValue
	if uint64(len(m.history)) >= m.roundsNonAncient {
		floor := m.history[0].min
		for _, h := range m.history[1:] {
			if h.min < floor {
				floor = h.min
			}
		}
		if floor > minNonAncient {
			minNonAncient = floor
		}
	}

	m.cur = m.cur.Advance(round.RoundNumber, minNonAncient, round.Snapshot.MinRoundGeneration)
}

func (m *Manager) roundMinValue(round *roundengine.ConsensusRound) uint64 {
	if len(round.Events) == 0 {
		return m.cur.MinNonAncientValue
	}
	min := m.value(round.Events[0])
	for _, e := range round.Events[1:] {
		if v := m.value(e); v < min {
			min = v
		}
	}
	return min
}

func (m *Manager) value(e *events.Event) uint64 {
	if m.mode == events.BirthRoundMode {
		return e.BirthRound
	}
	return e.Generation
}

// Submit enqueues a newly decided consensus round for window advancement.
func (m *Manager) Submit(ctx context.Context, round *roundengine.ConsensusRound) error {
	return m.sched.Submit(ctx, round)
}

// Current returns the most recently published window. Safe to call only
// from the scheduler's own handler goroutine or after Flush — callers
// needing a live read-mostly view should instead consume the registered
// output wire, per spec.md's window-propagation contract.
func (m *Manager) Current() window.Window {
	return m.cur
}

// Flush blocks until every enqueued round has been applied.
func (m *Manager) Flush(ctx context.Context) error {
	return m.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (m *Manager) Stop() {
	m.sched.Stop()
}
