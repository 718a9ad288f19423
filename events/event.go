// Package events defines the immutable event type that flows through the
// intake pipeline, along with the small set of capabilities (Hasher, Signer,
// Verifier) the pipeline treats as external collaborators.
package events

import (
	"time"

	"github.com/luxfi/ids"
)

// AncientMode selects which field of an EventDescriptor the non-ancient
// window compares against. Fixed at genesis; never changes at runtime
// (spec forbids a runtime switchover).
type AncientMode uint8

const (
	// GenerationMode ages events out by generation.
	GenerationMode AncientMode = iota
	// BirthRoundMode ages events out by birth round.
	BirthRoundMode
)

func (m AncientMode) String() string {
	switch m {
	case GenerationMode:
		return "generation"
	case BirthRoundMode:
		return "birth-round"
	default:
		return "unknown"
	}
}

// Descriptor is the minimal identity of a parent reference: enough to
// resolve ancestry and to test ancientness without loading the full event.
type Descriptor struct {
	Hash       ids.ID
	Generation uint64
	BirthRound uint64
	CreatorID  ids.NodeID
}

// IsEmpty reports whether the descriptor refers to no event (the root of a
// creator's event chain).
func (d Descriptor) IsEmpty() bool {
	return d.Hash == ids.Empty
}

// Event is immutable once Hash is set by the hasher stage. No stage may
// mutate an Event after that point; every downstream stage treats it as a
// shared, reference-counted value.
type Event struct {
	CreatorID    ids.NodeID
	SelfParent   *Descriptor
	OtherParent  *Descriptor
	Generation   uint64
	BirthRound   uint64
	TimeCreated  time.Time
	Transactions [][]byte
	Signature    []byte

	// Hash is the identity of the event. Zero until the hasher stage runs.
	Hash ids.ID

	// SequenceNumber is the global monotone streamSequenceNumber assigned by
	// the PCES sequencer (spec.md §4.7). It is not part of the canonical
	// encoding: it is stamped after hashing, so it cannot be part of the
	// value the signature commits to.
	SequenceNumber uint64

	// TxConsensusTimestamps holds one timestamp per entry in Transactions,
	// assigned by the consensus engine when the event receives its round
	// (spec.md §4.9). Nil until then; not part of the canonical encoding.
	TxConsensusTimestamps []time.Time
}

// Descriptor returns this event's own descriptor, usable as a parent
// reference by its children. Panics if the hash has not been assigned yet;
// callers must only call this after the hasher stage.
func (e *Event) Descriptor() Descriptor {
	if e.Hash == ids.Empty {
		panic("events: Descriptor() called before hashing")
	}
	return Descriptor{
		Hash:       e.Hash,
		Generation: e.Generation,
		BirthRound: e.BirthRound,
		CreatorID:  e.CreatorID,
	}
}

// IsAncient reports whether the event falls below the given window
// threshold under mode.
func (e *Event) IsAncient(mode AncientMode, minGeneration, minBirthRound uint64) bool {
	switch mode {
	case BirthRoundMode:
		return e.BirthRound < minBirthRound
	default:
		return e.Generation < minGeneration
	}
}

// DescendantGeneration computes the generation a new event would have given
// its two parents (0 if both are nil).
func DescendantGeneration(selfParent, otherParent *Event) uint64 {
	var gen uint64
	if selfParent != nil && selfParent.Generation+1 > gen {
		gen = selfParent.Generation + 1
	}
	if otherParent != nil && otherParent.Generation+1 > gen {
		gen = otherParent.Generation + 1
	}
	return gen
}

// CanonicalEncoding returns the byte sequence the hasher stage digests to
// produce Hash. It excludes the Hash and Signature fields (the signature is
// computed over this same encoding; the hash is derived from it).
func (e *Event) CanonicalEncoding() []byte {
	return EncodeEvent(e)
}
