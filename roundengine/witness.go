package roundengine

import (
	"github.com/luxfi/ids"
	"github.com/virtualvote/consensus/linker"
	"github.com/virtualvote/consensus/validators"
)

// witnessState tracks per-event bookkeeping the virtual-voting algorithm
// needs beyond the linked event itself: its round, whether it is a witness,
// and — for witnesses — the ancestry summary used for strongly-seeing
// checks and, while undecided, the fame election's in-flight votes
// (spec.md §4.9).
type witnessState struct {
	linked *linker.LinkedEvent

	// selfParentState is the witnessState for this event's self-parent, if
	// it is still tracked (nil once evicted past the non-ancient window, or
	// for a creator's first event).
	selfParentState *witnessState

	roundCreated uint64
	isWitness    bool

	// seenByCreator maps each creator to the highest-generation ancestor of
	// this event created by them (this event included for its own
	// creator). It is the basis for both "sees" (generation compare) and
	// "strongly sees" (supermajority of per-creator representatives that
	// themselves see the target).
	seenByCreator map[ids.NodeID]*witnessState

	// roundReceived is 0 until the consensus algorithm assigns one.
	roundReceived uint64

	// Fame-election state, populated only for witnesses.
	famous      *bool
	votesByNode map[ids.NodeID]bool
}

func newWitnessState(le *linker.LinkedEvent) *witnessState {
	return &witnessState{linked: le}
}

// sees reports whether w has, as an ancestor, an event created by target's
// creator at a generation at or beyond target's — i.e. target or a
// descendant of target on target's own (fork-free) self-parent chain.
func (w *witnessState) sees(target *witnessState) bool {
	ref, ok := w.seenByCreator[target.linked.CreatorID]
	if !ok {
		return false
	}
	return ref.linked.Generation >= target.linked.Generation
}

// stronglySees reports whether w sees target through ancestors spanning a
// supermajority of the address book's total voting weight (spec.md §4.9).
func (w *witnessState) stronglySees(target *witnessState, book *validators.AddressBook) bool {
	var weight uint64
	for creator, rep := range w.seenByCreator {
		if rep.sees(target) {
			weight += book.Weight(creator)
		}
	}
	return book.IsSupermajority(weight)
}
