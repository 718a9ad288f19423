// Package validation implements the three sequential gatekeeper stages
// between hashing and orphan buffering: the internal structural validator,
// the deduplicator, and the signature validator (spec.md §4.3-§4.5).
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

type envEvent = wiring.Envelope[*events.Event]

// InternalValidator rejects events that violate structural invariants
// independent of any external state (address book, dedup set): a
// self-referential parent, a parent whose generation is not strictly
// behind the child's, a non-monotone creator timestamp, an
// oversized transaction payload, or a birth round too far in the future of
// the current window (spec.md §4.3). It is a window-update consumer: the
// window travels through its input queue alongside events (spec.md §4.1).
type InternalValidator struct {
	sched *wiring.Scheduler[envEvent]
	Out   *wiring.Wire[*events.Event]

	win           window.Window
	maxPayload    int
	futureTol     uint64
	lastByCreator map[ids.NodeID]events.Event
}

// InternalValidatorConfig configures the stage.
type InternalValidatorConfig struct {
	Capacity        int
	MaxPayloadBytes int
	FutureTolerance uint64
	InitialWindow   window.Window
	Logger          log.Logger
	Metrics         *metrics.Metrics
}

// NewInternalValidator constructs and starts the stage.
func NewInternalValidator(cfg InternalValidatorConfig) *InternalValidator {
	v := &InternalValidator{
		Out:           wiring.NewWire[*events.Event]("internal-validator.out"),
		win:           cfg.InitialWindow,
		maxPayload:    cfg.MaxPayloadBytes,
		futureTol:     cfg.FutureTolerance,
		lastByCreator: make(map[ids.NodeID]events.Event),
	}

	v.sched = wiring.New(wiring.Config[envEvent]{
		Name:     "internal-validator",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, env envEvent) {
			if env.WindowUpdate != nil {
				v.win = *env.WindowUpdate
				return
			}
			e := env.Item
			if err := v.check(e); err != nil {
				if cfg.Metrics != nil {
					cfg.Metrics.EventsDropped.WithLabelValues("internal-validator", err.Error()).Inc()
				}
				return
			}
			if cfg.Metrics != nil {
				cfg.Metrics.EventsProcessed.WithLabelValues("internal-validator").Inc()
			}
			v.Out.Emit(ctx, e)
		},
	})

	return v
}

func (v *InternalValidator) check(e *events.Event) error {
	if e.SelfParent != nil && e.SelfParent.Hash == e.Hash {
		return pipelineerr.ErrMalformedEvent
	}
	if e.SelfParent != nil && e.OtherParent != nil &&
		!e.SelfParent.IsEmpty() && e.SelfParent.Hash == e.OtherParent.Hash {
		return pipelineerr.ErrMalformedEvent
	}
	if e.SelfParent != nil && e.SelfParent.Generation >= e.Generation {
		return pipelineerr.ErrMalformedEvent
	}
	if e.OtherParent != nil && e.OtherParent.Generation >= e.Generation {
		return pipelineerr.ErrMalformedEvent
	}

	total := 0
	for _, tx := range e.Transactions {
		total += len(tx)
	}
	if v.maxPayload > 0 && total > v.maxPayload {
		return pipelineerr.ErrMalformedEvent
	}

	if last, ok := v.lastByCreator[e.CreatorID]; ok {
		if !e.TimeCreated.After(last.TimeCreated) {
			return pipelineerr.ErrMalformedEvent
		}
	}

	if v.win.Mode == events.BirthRoundMode {
		limit := v.win.LatestConsensusRound + v.futureTol
		if e.BirthRound > limit {
			return pipelineerr.ErrMalformedEvent
		}
	}

	v.lastByCreator[e.CreatorID] = *e
	return nil
}

// Submit enqueues a hashed event for structural validation.
func (v *InternalValidator) Submit(ctx context.Context, e *events.Event) error {
	return v.sched.Submit(ctx, wiring.Item(e))
}

// Inject enqueues e bypassing backpressure — used for self-created events
// re-entering through the event-creation feedback loop (spec.md §4.14).
func (v *InternalValidator) Inject(e *events.Event) {
	v.sched.Inject(wiring.Item(e))
}

// ApplyWindow enqueues a window update through the same ordered queue as
// events, so it is applied between events rather than concurrently with
// one (spec.md §5).
func (v *InternalValidator) ApplyWindow(w window.Window) {
	v.sched.Inject(wiring.WindowUpdateOf[*events.Event](w))
}

// Flush blocks until every enqueued event has been validated.
func (v *InternalValidator) Flush(ctx context.Context) error {
	return v.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (v *InternalValidator) Stop() {
	v.sched.Stop()
}
