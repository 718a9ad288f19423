// Package hasher implements the "parallel hash, serial emit" pair from
// spec.md §4.2: a Concurrent hasher stage stamps events with their
// identity hash, and a Sequential-ordered post-hash collector restores
// input order before any downstream validator sees the events, so every
// stage after this one may assume end-to-end FIFO (spec.md §5,
// invariant 1).
package hasher

import (
	"context"

	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/wiring"
)

// Stage is the hasher + post-hash collector pair, wired together through a
// shared BackpressureObjectCounter.
type Stage struct {
	hasherSched    *wiring.Scheduler[*events.Event]
	collector      *collector
	Out            *wiring.Wire[*events.Event]
}

// Config configures the hasher stage.
type Config struct {
	Hasher   events.Hasher
	Capacity int64 // BackpressureObjectCounter capacity (eventHasherUnhandledCapacity)
	Workers  int
	Logger   log.Logger
	Metrics  *metrics.Metrics
}

// New constructs and starts the hasher/collector pair.
func New(cfg Config) *Stage {
	if cfg.Hasher == nil {
		cfg.Hasher = events.Sha256Hasher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoOpLogger()
	}

	counter := wiring.NewBackpressureObjectCounter(cfg.Capacity)
	out := wiring.NewWire[*events.Event]("hasher.out")

	col := newCollector(out, cfg.Metrics)

	s := &Stage{Out: out}
	s.collector = col

	s.hasherSched = wiring.New(wiring.Config[*events.Event]{
		Name:     "hasher",
		Policy:   wiring.Concurrent,
		Workers:  cfg.Workers,
		Counter:  counter,
		Logger:   logger,
		Handler: func(ctx context.Context, e *events.Event) {
			seq := col.admit()
			e.Hash = cfg.Hasher.Hash(e.CanonicalEncoding())
			if cfg.Metrics != nil {
				cfg.Metrics.EventsProcessed.WithLabelValues("hasher").Inc()
			}
			col.deliver(ctx, seq, e)
		},
	})

	return s
}

// Submit enqueues a raw gossip (or replayed) event for hashing. Blocks
// per the shared BackpressureObjectCounter once it reaches capacity
// (spec.md §8, S4).
func (s *Stage) Submit(ctx context.Context, e *events.Event) error {
	return s.hasherSched.Submit(ctx, e)
}

// Flush blocks until every event submitted before this call has been
// hashed and re-ordered out of the collector.
func (s *Stage) Flush(ctx context.Context) error {
	return s.hasherSched.Flush(ctx)
}

// Stop shuts down the hasher workers.
func (s *Stage) Stop() {
	s.hasherSched.Stop()
}
