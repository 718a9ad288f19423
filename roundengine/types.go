package roundengine

import (
	"time"

	"github.com/luxfi/ids"
	"github.com/virtualvote/consensus/events"
)

// Judge is one famous witness of a decided round, recorded in the round's
// snapshot (spec.md §6: Snapshot.judges).
type Judge struct {
	Creator ids.NodeID
	Hash    ids.ID
}

// Snapshot accompanies a ConsensusRound with the data a restart needs to
// resume the virtual-voting algorithm without replaying the whole
// non-ancient window: the round's famous witnesses and the generation
// floor below which events are no longer tracked.
type Snapshot struct {
	Judges             []Judge
	MinRoundGeneration uint64
}

// ConsensusRound is the consensus engine's sole output: an immutable,
// ordered batch of events that have received the same round, plus the
// round's consensus timestamp and keystone event (spec.md §3).
type ConsensusRound struct {
	RoundNumber         uint64
	ConsensusTimestamp  time.Time
	KeystoneEventHash   ids.ID
	KeystoneSequenceNum uint64
	Events              []*events.Event
	Snapshot            Snapshot
}
