// Package roundengine implements the Hashgraph-style virtual-voting
// consensus engine: witness determination, strongly-seeing, fame election
// with coin rounds, and round-received/consensus-timestamp computation
// (spec.md §4.9). Its tables are single-owner, touched only by the
// in-order-linker's downstream worker; external readers only ever observe
// the immutable ConsensusRound values it emits, following the ownership
// discipline of the teacher's engine/dag.DAGConsensus.
package roundengine

import (
	"crypto/sha256"
	"sort"
	"time"

	"github.com/luxfi/ids"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/linker"
	"github.com/virtualvote/consensus/validators"
)

// Config configures the engine.
type Config struct {
	Book            *validators.AddressBook
	CoinFreq        uint64 // rounds between coin-round fallback votes
	ElectionDepth   uint64 // rounds an election may run before forcing a coin flip
	MaxTxSpacingNs  int64  // interval spread over an event's transactions; each gap is this divided by the count
}

// Engine holds the virtual-voting algorithm's tables. It is not safe for
// concurrent use: exactly one goroutine (the consensus stage's worker) may
// call ProcessLinkedEvent.
type Engine struct {
	cfg Config

	byHash     map[ids.ID]*witnessState
	allEvents  map[ids.ID]*witnessState // every tracked event, witness or not
	byRound    map[uint64][]*witnessState
	maxDecided uint64 // highest round whose witnesses are all decided and received

	// minRoundGeneration is the lowest generation still tracked; advanced
	// as rounds are decided and reported in each round's Snapshot.
	minRoundGeneration uint64
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	if cfg.CoinFreq == 0 {
		cfg.CoinFreq = 10
	}
	if cfg.ElectionDepth == 0 {
		cfg.ElectionDepth = 50
	}
	if cfg.MaxTxSpacingNs == 0 {
		cfg.MaxTxSpacingNs = int64(1 * 1_000_000) // 1ms default interval budget
	}
	return &Engine{
		cfg:       cfg,
		byHash:    make(map[ids.ID]*witnessState),
		allEvents: make(map[ids.ID]*witnessState),
		byRound:   make(map[uint64][]*witnessState),
	}
}

// ProcessLinkedEvent admits a newly linked event into the witness graph,
// runs fame election for any witnesses whose vote set just changed, and
// returns whether the event is a witness in its round plus any consensus
// rounds that became fully decided as a result. The linker guarantees both
// parents (if any) were already processed, so the event's ancestry is
// always resolvable here.
func (e *Engine) ProcessLinkedEvent(le *linker.LinkedEvent) (isWitness bool, rounds []*ConsensusRound) {
	ws := newWitnessState(le)
	e.computeAncestry(ws)
	e.allEvents[le.Hash] = ws

	if ws.isWitness {
		e.byHash[le.Hash] = ws
		e.byRound[ws.roundCreated] = append(e.byRound[ws.roundCreated], ws)
		e.castVotes(ws)
	}

	return ws.isWitness, e.decideRounds()
}

// computeAncestry fills in ws.seenByCreator, ws.roundCreated and
// ws.isWitness from the (already-processed) parents.
func (e *Engine) computeAncestry(ws *witnessState) {
	le := ws.linked
	seen := make(map[ids.NodeID]*witnessState)

	var selfRound, otherRound uint64
	var hasParent bool
	if le.SelfParent != nil {
		if sp := e.allEvents[le.SelfParent.Hash]; sp != nil {
			mergeSeen(seen, sp.seenByCreator)
			selfRound = sp.roundCreated
			hasParent = true
			ws.selfParentState = sp
		}
	}
	if le.OtherParent != nil {
		if op := e.allEvents[le.OtherParent.Hash]; op != nil {
			mergeSeen(seen, op.seenByCreator)
			otherRound = op.roundCreated
			hasParent = true
		}
	}
	seen[le.CreatorID] = ws

	base := selfRound
	if otherRound > base {
		base = otherRound
	}

	round := base
	if hasParent && e.stronglySeesSupermajorityOfRound(seen, base) {
		round = base + 1
	}

	ws.seenByCreator = seen
	ws.roundCreated = round
	ws.isWitness = !hasParent || round > selfRound
}

func mergeSeen(dst, src map[ids.NodeID]*witnessState) {
	for creator, rep := range src {
		cur, ok := dst[creator]
		if !ok || rep.linked.Generation > cur.linked.Generation {
			dst[creator] = rep
		}
	}
}

// stronglySeesSupermajorityOfRound reports whether the ancestry summary
// `seen` strongly-sees a supermajority (by weight) of round `round`'s
// witnesses.
func (e *Engine) stronglySeesSupermajorityOfRound(seen map[ids.NodeID]*witnessState, round uint64) bool {
	witnesses := e.byRound[round]
	if len(witnesses) == 0 {
		return false
	}
	var weight uint64
	for _, w := range witnesses {
		if stronglySeesFrom(seen, w, e.cfg.Book) {
			weight += e.cfg.Book.Weight(w.linked.CreatorID)
		}
	}
	return e.cfg.Book.IsSupermajority(weight)
}

// stronglySeesFrom evaluates strongly-sees for an ancestry summary that
// does not yet belong to a constructed witnessState (used while computing
// a not-yet-finalized event's own round).
func stronglySeesFrom(seen map[ids.NodeID]*witnessState, target *witnessState, book *validators.AddressBook) bool {
	var weight uint64
	for creator, rep := range seen {
		if rep.sees(target) {
			weight += book.Weight(creator)
		}
	}
	return book.IsSupermajority(weight)
}

// castVotes has the newly admitted witness vote on every still-undecided
// earlier witness it can evaluate, then checks whether any of those
// witnesses' fame is now decided.
func (e *Engine) castVotes(voter *witnessState) {
	for _, target := range e.byHash {
		if target.famous != nil || target.roundCreated >= voter.roundCreated {
			continue
		}
		vote := e.vote(voter, target)
		if target.votesByNode == nil {
			target.votesByNode = make(map[ids.NodeID]bool)
		}
		target.votesByNode[voter.linked.CreatorID] = vote
	}
}

// vote computes the vote witness `voter` casts on witness `target`'s fame
// (spec.md §4.9).
func (e *Engine) vote(voter, target *witnessState) bool {
	r := target.roundCreated
	v := voter.roundCreated

	if v == r+1 {
		return voter.sees(target)
	}

	if (v-r)%e.cfg.CoinFreq == 0 && v-r >= e.cfg.ElectionDepth {
		return coinFlip(voter.linked.Signature)
	}

	prevRound := v - 1
	var yes, no uint64
	for _, pw := range e.byRound[prevRound] {
		if !voter.stronglySees(pw, e.cfg.Book) {
			continue
		}
		cast, ok := target.votesByNode[pw.linked.CreatorID]
		if !ok {
			continue
		}
		weight := e.cfg.Book.Weight(pw.linked.CreatorID)
		if cast {
			yes += weight
		} else {
			no += weight
		}
	}
	return yes >= no
}

func coinFlip(signature []byte) bool {
	if len(signature) == 0 {
		return false
	}
	sum := sha256.Sum256(signature)
	return sum[0]&1 == 1
}

// decideRounds checks every witness round with undecided members for
// completed fame election, and for each round whose witnesses are now all
// decided, assigns round-received to newly-eligible events and emits the
// resulting ConsensusRound.
func (e *Engine) decideRounds() []*ConsensusRound {
	var out []*ConsensusRound

	for {
		round := e.maxDecided + 1
		witnesses, ok := e.byRound[round]
		if !ok || len(witnesses) == 0 {
			break
		}

		allDecided := true
		for _, w := range witnesses {
			if w.famous == nil {
				if !e.tryDecide(w, round) {
					allDecided = false
				}
			}
		}
		if !allDecided {
			break
		}

		cr := e.finalizeRound(round, witnesses)
		e.maxDecided = round
		if cr != nil {
			out = append(out, cr)
		}
	}

	return out
}

// tryDecide checks whether w's fame is decided by the votes cast so far,
// returning true if so. Voting rounds round+1 through
// round+ElectionDepth+1 are checked in ascending order, and the first one
// whose recorded votes reach a supermajority for one side decides w.
func (e *Engine) tryDecide(w *witnessState, round uint64) bool {
	if w.famous != nil {
		return true
	}
	if len(w.votesByNode) == 0 {
		return false
	}
	// Walk the voting rounds upward, skipping rounds with no recorded votes,
	// and stop at the first one with supermajority agreement.
	for v := round + 1; v <= round+e.cfg.ElectionDepth+1; v++ {
		voters, ok := e.byRound[v]
		if !ok || len(voters) == 0 {
			continue
		}
		var yes, no, total uint64
		for _, voter := range voters {
			cast, ok := w.votesByNode[voter.linked.CreatorID]
			if !ok {
				continue
			}
			weight := e.cfg.Book.Weight(voter.linked.CreatorID)
			total += weight
			if cast {
				yes += weight
			} else {
				no += weight
			}
		}
		if total == 0 {
			continue
		}
		if e.cfg.Book.IsSupermajority(yes) {
			famous := true
			w.famous = &famous
			return true
		}
		if e.cfg.Book.IsSupermajority(no) {
			famous := false
			w.famous = &famous
			return true
		}
	}
	return false
}

// finalizeRound assigns round-received to every not-yet-received event seen
// by all of round's famous witnesses, computes consensus order and
// timestamps, and builds the emitted ConsensusRound. Returns nil if round
// has no famous witnesses (nothing can be received against it).
func (e *Engine) finalizeRound(round uint64, witnesses []*witnessState) *ConsensusRound {
	var famous []*witnessState
	for _, w := range witnesses {
		if w.famous != nil && *w.famous {
			famous = append(famous, w)
		}
	}
	if len(famous) == 0 {
		return nil
	}

	type received struct {
		ws        *witnessState
		timestamp int64 // unix nanos, median across famous-witness paths
	}
	var newlyReceived []received

	for _, ws := range e.allEvents {
		if ws.roundReceived != 0 || ws.roundCreated > round {
			continue
		}
		times := make([]int64, 0, len(famous))
		seenByAll := true
		for _, fw := range famous {
			t, ok := earliestSelfAncestorSeeing(fw, ws)
			if !ok {
				seenByAll = false
				break
			}
			times = append(times, t)
		}
		if !seenByAll {
			continue
		}
		ws.roundReceived = round
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		newlyReceived = append(newlyReceived, received{ws: ws, timestamp: times[len(times)/2]})
	}

	if len(newlyReceived) == 0 {
		return nil
	}

	sort.Slice(newlyReceived, func(i, j int) bool {
		if newlyReceived[i].timestamp != newlyReceived[j].timestamp {
			return newlyReceived[i].timestamp < newlyReceived[j].timestamp
		}
		return whitenedLess(newlyReceived[i].ws.linked.Hash, newlyReceived[j].ws.linked.Hash)
	})

	out := make([]*events.Event, len(newlyReceived))
	for i, r := range newlyReceived {
		out[i] = r.ws.linked.Event
		stampTransactionTimestamps(out[i], r.timestamp, e.cfg.MaxTxSpacingNs)
	}
	consensusTime := newlyReceived[len(newlyReceived)-1].timestamp
	keystone := newlyReceived[len(newlyReceived)-1].ws.linked

	judges := make([]Judge, len(famous))
	for i, fw := range famous {
		judges[i] = Judge{Creator: fw.linked.CreatorID, Hash: fw.linked.Hash}
	}
	sort.Slice(judges, func(i, j int) bool { return judges[i].Hash.Compare(judges[j].Hash) < 0 })

	minGen := e.advanceMinRoundGeneration(round)
	e.pruneBelow(minGen)

	return &ConsensusRound{
		RoundNumber:         round,
		ConsensusTimestamp:  time.Unix(0, consensusTime).UTC(),
		KeystoneEventHash:   keystone.Hash,
		KeystoneSequenceNum: keystone.SequenceNumber,
		Events:              out,
		Snapshot:            Snapshot{Judges: judges, MinRoundGeneration: minGen},
	}
}

// earliestSelfAncestorSeeing walks witness's self-parent chain backward,
// returning the creation time of the earliest (lowest-generation) ancestor
// that still sees target — the "received time" that witness contributes to
// target's median consensus timestamp.
func earliestSelfAncestorSeeing(witness *witnessState, target *witnessState) (int64, bool) {
	cur := witness
	var earliest *witnessState
	for cur != nil {
		if !cur.sees(target) {
			break
		}
		earliest = cur
		cur = cur.selfParentState
	}
	if earliest == nil {
		return 0, false
	}
	return earliest.linked.TimeCreated.UnixNano(), true
}

// advanceMinRoundGeneration computes the new generation floor reported in a
// decided round's snapshot: the minimum generation among that round's
// witnesses, clamped to never move backward.
func (e *Engine) advanceMinRoundGeneration(round uint64) uint64 {
	witnesses := e.byRound[round]
	if len(witnesses) == 0 {
		return e.minRoundGeneration
	}
	min := witnesses[0].linked.Generation
	for _, w := range witnesses[1:] {
		if w.linked.Generation < min {
			min = w.linked.Generation
		}
	}
	if min > e.minRoundGeneration {
		e.minRoundGeneration = min
	}
	return e.minRoundGeneration
}

// pruneBelow drops tracked events whose round is already received and whose
// generation has fallen below floor, bounding the tables' memory to
// roughly the non-ancient window. Events are never removed while still
// reachable as an undecided witness's seenByCreator representative for a
// live creator chain; pruning only a fully-received event's bookkeeping
// entries is safe because later ancestry lookups always resolve through
// selfParentState pointers already captured at computeAncestry time.
func (e *Engine) pruneBelow(floor uint64) {
	for hash, ws := range e.allEvents {
		if ws.roundReceived != 0 && ws.linked.Generation < floor {
			delete(e.allEvents, hash)
			delete(e.byHash, hash)
		}
	}
	for round, witnesses := range e.byRound {
		kept := witnesses[:0]
		for _, w := range witnesses {
			if w.roundReceived != 0 && w.linked.Generation < floor {
				continue
			}
			kept = append(kept, w)
		}
		if len(kept) == 0 {
			delete(e.byRound, round)
		} else {
			e.byRound[round] = kept
		}
	}
}

func whitenedLess(a, b ids.ID) bool {
	ha := sha256.Sum256(a[:])
	hb := sha256.Sum256(b[:])
	for i := range ha {
		if ha[i] != hb[i] {
			return ha[i] < hb[i]
		}
	}
	return false
}

// stampTransactionTimestamps assigns each of e's transactions a consensus
// timestamp spreading forward from the event's own, spaced by at least 1ns
// and at most maxSpacingNs/len(Transactions) (spec.md §4.9).
func stampTransactionTimestamps(e *events.Event, consensusNanos int64, maxSpacingNs int64) {
	n := len(e.Transactions)
	if n == 0 {
		return
	}
	spacing := maxSpacingNs / int64(n)
	if spacing < 1 {
		spacing = 1
	}
	e.TxConsensusTimestamps = make([]time.Time, n)
	base := time.Unix(0, consensusNanos).UTC()
	for i := 0; i < n; i++ {
		e.TxConsensusTimestamps[i] = base.Add(time.Duration(int64(i) * spacing))
	}
}
