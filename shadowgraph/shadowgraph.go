// Package shadowgraph mirrors the linker's accepted events for the gossip
// sync protocol: lookups and ancestor queries peers need to figure out
// what to send each other must never contend with the consensus-critical
// path, so this keeps its own copy rather than reading the linker's state
// directly (spec.md §4.12).
package shadowgraph

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/linker"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/wiring"
)

// node is one event's shadow-graph bookkeeping: its ancestor bitset
// (indices into the graph's insertion-ordered event list) plus the
// generation/birthRound values the expiry scan keys on.
type node struct {
	index      uint
	generation uint64
	birthRound uint64
	ancestors  *bitset.BitSet
}

// Graph is the shadow-graph stage: Sequential, off the consensus critical
// path (spec.md §4.12). It is safe for concurrent read access from the
// gossip layer via the exported query methods, guarded by an internal
// mutex rather than routed through its own scheduler — reads must never
// wait behind the scheduler's write queue.
type Graph struct {
	sched *wiring.Scheduler[*linker.LinkedEvent]

	mu      sync.RWMutex
	byHash  map[ids.ID]*node
	order   []ids.ID // index -> hash, insertion order
	mode    events.AncientMode
}

// Config configures the stage.
type Config struct {
	Capacity int
	Mode     events.AncientMode
	Logger   log.Logger
	Metrics  *metrics.Metrics
}

// New constructs and starts the stage.
func New(cfg Config) *Graph {
	g := &Graph{
		byHash: make(map[ids.ID]*node),
		mode:   cfg.Mode,
	}

	g.sched = wiring.New(wiring.Config[*linker.LinkedEvent]{
		Name:     "shadowgraph",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, le *linker.LinkedEvent) {
			g.insert(le)
			if cfg.Metrics != nil {
				cfg.Metrics.EventsProcessed.WithLabelValues("shadowgraph").Inc()
			}
		},
	})

	return g
}

func (g *Graph) insert(le *linker.LinkedEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.byHash[le.Hash]; exists {
		return
	}

	idx := uint(len(g.order))
	anc := bitset.New(idx + 1)
	if le.SelfParent != nil {
		if p, ok := g.byHash[le.SelfParent.Hash]; ok {
			anc.InPlaceUnion(p.ancestors)
			anc.Set(p.index)
		}
	}
	if le.OtherParent != nil {
		if p, ok := g.byHash[le.OtherParent.Hash]; ok {
			anc.InPlaceUnion(p.ancestors)
			anc.Set(p.index)
		}
	}

	g.byHash[le.Hash] = &node{
		index:      idx,
		generation: le.Generation,
		birthRound: le.BirthRound,
		ancestors:  anc,
	}
	g.order = append(g.order, le.Hash)
}

// Submit enqueues a linker-accepted event for mirroring.
func (g *Graph) Submit(ctx context.Context, le *linker.LinkedEvent) error {
	return g.sched.Submit(ctx, le)
}

// Lookup reports whether hash has been mirrored into the shadow graph.
func (g *Graph) Lookup(hash ids.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.byHash[hash]
	return ok
}

// IsAncestor reports whether ancestor is a transitive self/other-parent
// ancestor of descendant, answering the gossip sync protocol's "does my
// peer already have this" question without a graph walk per query.
func (g *Graph) IsAncestor(ancestor, descendant ids.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	d, ok := g.byHash[descendant]
	if !ok {
		return false
	}
	a, ok := g.byHash[ancestor]
	if !ok {
		return false
	}
	return d.ancestors.Test(a.index)
}

// AncestorBitset returns a copy of hash's ancestor bitset, indexed by each
// event's insertion order in the graph — the representation the gossip
// sync protocol exchanges to compute what a peer is missing.
func (g *Graph) AncestorBitset(hash ids.ID) (*bitset.BitSet, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.byHash[hash]
	if !ok {
		return nil, false
	}
	return n.ancestors.Clone(), true
}

// ExpireBelow removes every mirrored event whose ancient-comparison value
// (generation or birth round, per mode) is below threshold. The bitset
// indices of expired events are left as permanent gaps rather than
// compacted, so surviving events' ancestor bitsets remain valid without
// re-indexing.
func (g *Graph) ExpireBelow(threshold uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for hash, n := range g.byHash {
		value := n.generation
		if g.mode == events.BirthRoundMode {
			value = n.birthRound
		}
		if value < threshold {
			delete(g.byHash, hash)
		}
	}
}

// Len reports the number of currently mirrored events.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byHash)
}

// Flush blocks until every enqueued event has been mirrored.
func (g *Graph) Flush(ctx context.Context) error {
	return g.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (g *Graph) Stop() {
	g.sched.Stop()
}
