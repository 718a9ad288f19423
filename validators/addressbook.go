// Package validators holds the address book: the versioned mapping from
// node identifier to public key, weight, and activity used by the
// signature validator and event-creation manager (spec.md §3). Adapted
// from the teacher's validators/state.go and validators/types.go, which
// define the same State/weight-lookup shape for a different consensus
// family.
package validators

import (
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/ids"
)

// Entry is one node's address-book record.
type Entry struct {
	NodeID    ids.NodeID
	PublicKey []byte
	Weight    uint64
	Active    bool
}

// AddressBook is the active, versioned mapping read by the signature
// validator and event-creation manager. Updates are applied between
// consensus rounds only, and upstream must order an address-book update
// ahead of the first event signed under the new epoch (spec.md §4.5).
type AddressBook struct {
	mu           sync.RWMutex
	entries      map[ids.NodeID]Entry
	totalWeight  uint64
	effectiveRnd uint64
}

// New creates an address book from an initial entry set.
func New(entries []Entry) *AddressBook {
	ab := &AddressBook{entries: make(map[ids.NodeID]Entry, len(entries))}
	ab.apply(entries)
	return ab
}

// Update replaces the address book wholesale, as the platform's
// address-book-update wire delivers (spec.md §6: effectiveRound + full
// entry set).
func (ab *AddressBook) Update(effectiveRound uint64, entries []Entry) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.effectiveRnd = effectiveRound
	ab.entries = make(map[ids.NodeID]Entry, len(entries))
	ab.apply(entries)
}

func (ab *AddressBook) apply(entries []Entry) {
	var total uint64
	for _, e := range entries {
		ab.entries[e.NodeID] = e
		if e.Active {
			total += e.Weight
		}
	}
	ab.totalWeight = total
}

// Lookup returns the entry for nodeID, if present and active.
func (ab *AddressBook) Lookup(nodeID ids.NodeID) (Entry, bool) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	e, ok := ab.entries[nodeID]
	if !ok || !e.Active {
		return Entry{}, false
	}
	return e, true
}

// TotalWeight returns the sum of active validators' weight, the
// denominator for fame-election supermajority thresholds.
func (ab *AddressBook) TotalWeight() uint64 {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	return ab.totalWeight
}

// Weight returns nodeID's voting weight, or 0 if absent/inactive.
func (ab *AddressBook) Weight(nodeID ids.NodeID) uint64 {
	e, ok := ab.Lookup(nodeID)
	if !ok {
		return 0
	}
	return e.Weight
}

// EffectiveRound returns the round this address book became effective at.
func (ab *AddressBook) EffectiveRound() uint64 {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	return ab.effectiveRnd
}

// Snapshot returns a stable copy of all active entries, sorted by NodeID,
// for deterministic iteration (e.g. computing a supermajority over a fixed
// order).
func (ab *AddressBook) Snapshot() []Entry {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	out := make([]Entry, 0, len(ab.entries))
	for _, e := range ab.entries {
		if e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID.Compare(out[j].NodeID) < 0 })
	return out
}

// IsSupermajority reports whether weight represents a strict 2/3
// supermajority of the book's total active weight — the threshold
// spec.md §4.9's strongly-seeing and fame-election rules use throughout.
func (ab *AddressBook) IsSupermajority(weight uint64) bool {
	total := ab.TotalWeight()
	if total == 0 {
		return false
	}
	return 3*weight > 2*total
}

// String satisfies fmt.Stringer for logging.
func (ab *AddressBook) String() string {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	return fmt.Sprintf("AddressBook{round=%d, validators=%d, totalWeight=%d}", ab.effectiveRnd, len(ab.entries), ab.totalWeight)
}
