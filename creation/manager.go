// Package creation implements the event-creation manager: the stage that
// builds, signs, and re-injects this node's own events, closing the loop
// back into the internal validator (spec.md §4.14).
package creation

import (
	"context"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/roundengine"
	"github.com/virtualvote/consensus/wiring"
	"github.com/virtualvote/consensus/window"
)

// TransactionSource supplies the next batch of transactions to embed in a
// newly created event, rate-limited and backpressured by the caller's own
// pool (the transaction pool itself is an external collaborator, out of
// scope per spec.md §1).
type TransactionSource func() [][]byte

// Injector delivers a freshly created, hashed, and signed event back into
// the internal validator, bypassing backpressure (spec.md §9: cycles are
// realized as INJECT edges).
type Injector func(*events.Event)

type candidate struct {
	descriptor   events.Descriptor
	isWitness    bool
	lastChosenAt uint64
}

type item struct {
	trigger   bool
	witness   *roundengine.WitnessObservation
	winUpdate *window.Window
}

// Manager creates new events for this node: it selects a self-parent (the
// node's own latest created event) and an other-parent (the
// least-recently-chosen non-ancient creator with a non-ancient witness),
// assigns birthRound from the current window, signs, and re-injects the
// result into the internal validator.
type Manager struct {
	sched *wiring.Scheduler[item]

	self       ids.NodeID
	hasher     events.Hasher
	signer     events.Signer
	txSource   TransactionSource
	inject     Injector
	bucket     *tokenBucket

	win        window.Window
	selfParent *events.Descriptor
	selfGen    uint64
	tick       uint64
	candidates map[ids.NodeID]*candidate
}

// Config configures the stage.
type Config struct {
	Capacity        int
	SelfNodeID      ids.NodeID
	Hasher          events.Hasher
	Signer          events.Signer
	TransactionSrc  TransactionSource
	Inject          Injector
	InitialWindow   window.Window
	RateLimitPerSec float64
	RateLimitBurst  float64
	Logger          log.Logger
	Metrics         *metrics.Metrics
}

// New constructs and starts the stage.
func New(cfg Config) *Manager {
	txSrc := cfg.TransactionSrc
	if txSrc == nil {
		txSrc = func() [][]byte { return nil }
	}

	m := &Manager{
		self:       cfg.SelfNodeID,
		hasher:     cfg.Hasher,
		signer:     cfg.Signer,
		txSource:   txSrc,
		inject:     cfg.Inject,
		bucket:     newTokenBucket(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		win:        cfg.InitialWindow,
		candidates: make(map[ids.NodeID]*candidate),
	}

	m.sched = wiring.New(wiring.Config[item]{
		Name:     "event-creation-manager",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, it item) {
			switch {
			case it.winUpdate != nil:
				m.win = *it.winUpdate
				m.evictAncientCandidates()
			case it.witness != nil:
				m.observeWitness(*it.witness)
			case it.trigger:
				m.tryCreate(cfg.Metrics)
			}
		},
	})

	return m
}

func (m *Manager) observeWitness(obs roundengine.WitnessObservation) {
	d := obs.Descriptor
	if d.CreatorID == m.self {
		return
	}
	c, ok := m.candidates[d.CreatorID]
	if !ok {
		c = &candidate{}
		m.candidates[d.CreatorID] = c
	}
	if d.Generation >= c.descriptor.Generation {
		c.descriptor = d
		c.isWitness = obs.IsWitness
	}
}

func (m *Manager) evictAncientCandidates() {
	for creator, c := range m.candidates {
		if m.win.IsAncientDescriptor(c.descriptor) {
			delete(m.candidates, creator)
		}
	}
}

// tryCreate attempts to build and emit one new self-created event, subject
// to the rate limiter and the availability of a viable other-parent.
func (m *Manager) tryCreate(metricsSink *metrics.Metrics) {
	if !m.bucket.Allow() {
		return
	}

	other, ok := m.chooseOtherParent()
	if !ok {
		return
	}

	gen := m.selfGen + 1
	if other.Generation+1 > gen {
		gen = other.Generation + 1
	}

	e := &events.Event{
		CreatorID:    m.self,
		SelfParent:   m.selfParent,
		OtherParent:  &other,
		Generation:   gen,
		BirthRound:   m.win.LatestConsensusRound,
		TimeCreated:  time.Now().UTC(),
		Transactions: m.txSource(),
	}

	canonical := e.CanonicalEncoding()
	sig, err := m.signer.Sign(canonical)
	if err != nil {
		return
	}
	e.Signature = sig
	e.Hash = m.hasher.Hash(canonical)

	m.selfParent = &events.Descriptor{
		Hash:       e.Hash,
		Generation: e.Generation,
		BirthRound: e.BirthRound,
		CreatorID:  e.CreatorID,
	}
	m.selfGen = e.Generation

	if metricsSink != nil {
		metricsSink.EventsProcessed.WithLabelValues("event-creation-manager").Inc()
	}
	m.inject(e)
}

// chooseOtherParent picks the least-recently-chosen non-ancient creator
// with a known non-ancient witness (spec.md §4.14).
func (m *Manager) chooseOtherParent() (events.Descriptor, bool) {
	var best *candidate
	var bestCreator ids.NodeID
	for creator, c := range m.candidates {
		if !c.isWitness || m.win.IsAncientDescriptor(c.descriptor) {
			continue
		}
		if best == nil || c.lastChosenAt < best.lastChosenAt ||
			(c.lastChosenAt == best.lastChosenAt && creator.Compare(bestCreator) < 0) {
			best = c
			bestCreator = creator
		}
	}
	if best == nil {
		return events.Descriptor{}, false
	}
	m.tick++
	best.lastChosenAt = m.tick
	return best.descriptor, true
}

// Trigger signals the manager that a new non-ancient event has been
// observed and it may attempt to create one of its own (fed by the
// future-event-buffer, spec.md §2).
func (m *Manager) Trigger(ctx context.Context) error {
	return m.sched.Submit(ctx, item{trigger: true})
}

// ObserveWitness feeds a witness determination from the consensus engine,
// bypassing backpressure like other control signals.
func (m *Manager) ObserveWitness(obs roundengine.WitnessObservation) {
	m.sched.Inject(item{witness: &obs})
}

// ApplyWindow enqueues a window update in order with triggers and
// observations.
func (m *Manager) ApplyWindow(w window.Window) {
	m.sched.Inject(item{winUpdate: &w})
}

// Flush blocks until every enqueued trigger/observation has been handled.
func (m *Manager) Flush(ctx context.Context) error {
	return m.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (m *Manager) Stop() {
	m.sched.Stop()
}
