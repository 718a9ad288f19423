package pces

import "sync/atomic"

// DurabilityNexus tracks the highest PCES stream sequence number known to
// be fsynced to disk. Consensus rounds may be computed ahead of durability;
// application-facing release of a round must wait until its keystone event
// is covered (spec.md §4.10, §4.11: "durability gates release, never
// computation").
type DurabilityNexus struct {
	latest atomic.Uint64
}

// NewDurabilityNexus constructs an empty nexus.
func NewDurabilityNexus() *DurabilityNexus {
	return &DurabilityNexus{}
}

// Advance records seqNum as durable, if it is newer than what's recorded.
func (n *DurabilityNexus) Advance(seqNum uint64) {
	for {
		cur := n.latest.Load()
		if seqNum <= cur {
			return
		}
		if n.latest.CompareAndSwap(cur, seqNum) {
			return
		}
	}
}

// LatestDurable returns the highest sequence number known fsynced.
func (n *DurabilityNexus) LatestDurable() uint64 {
	return n.latest.Load()
}

// CanRelease reports whether the round's keystone event has been made
// durable and is therefore safe to hand to the application.
func (n *DurabilityNexus) CanRelease(keystoneSeqNum uint64) bool {
	return n.latest.Load() >= keystoneSeqNum
}
