// Package config holds every tunable knob the intake pipeline reads,
// adapted from the teacher's config/types.go and config/parameters.go:
// a flat struct with a Valid() method that returns a descriptive error
// for bad combinations, rather than panicking or silently clamping.
package config

import (
	"fmt"
	"time"

	"github.com/virtualvote/consensus/events"
)

// Config collects spec.md §6's enumerated knobs plus the ambient knobs
// (worker-pool sizing, per-stage queue capacities) the distilled spec
// leaves implicit.
type Config struct {
	// AncientMode is fixed at genesis; the spec forbids changing it at
	// runtime.
	AncientMode events.AncientMode

	// EventHasherUnhandledCapacity bounds the hasher/post-hash-collector
	// BackpressureObjectCounter.
	EventHasherUnhandledCapacity int64

	// OrphanBufferCapacity is the orphan buffer stage's input queue
	// capacity; it does not cap how many orphans the buffer holds.
	OrphanBufferCapacity int
	// FutureEventBufferCapacity is the future-event buffer stage's input
	// queue capacity; it does not cap how many events the buffer holds.
	FutureEventBufferCapacity int

	// DeduplicatorCapacity is the deduplicator stage's input queue
	// capacity. The seen-hash map is neither presized nor capped by it;
	// entries leave the map only as the non-ancient window advances.
	DeduplicatorCapacity int

	// ConsensusCoinFreq is the number of rounds between coin-round votes
	// in fame election (spec.md §4.9).
	ConsensusCoinFreq uint64
	// ConsensusElectionDepthCap bounds how many rounds a fame election may
	// run before falling back to a coin round, preventing an unbounded
	// election when witnesses disagree indefinitely.
	ConsensusElectionDepthCap uint64

	// PCESMaxSegmentSpan is the max birthRound/generation span per PCES
	// file before rotation.
	PCESMaxSegmentSpan uint64
	// PCESMinFreeSpaceBytes is the free-disk threshold below which the
	// writer signals fatal (spec.md §7).
	PCESMinFreeSpaceBytes int64
	// PCESWriteRetryAttempts bounds the writer's bounded backoff on I/O
	// error before halting the node (spec.md §7: 3 attempts).
	PCESWriteRetryAttempts int
	// PCESWriteRetryBaseDelay is the first retry delay; subsequent
	// attempts double it.
	PCESWriteRetryBaseDelay time.Duration

	// MaxTransactionPayloadBytes bounds a single event's transaction
	// payload size (internal validator, spec.md §4.3).
	MaxTransactionPayloadBytes int
	// FutureBirthRoundTolerance bounds how far beyond the current
	// window's latest round a birth round may be before the internal
	// validator rejects it outright (distinct from the future-event
	// buffer's one-round grace, spec.md §4.13).
	FutureBirthRoundTolerance uint64

	// DefaultPoolMultiplier and DefaultPoolConstant size Concurrent
	// stages' worker pools as multiplier*NumCPU + constant.
	DefaultPoolMultiplier float64
	DefaultPoolConstant   int

	// StageQueueCapacity is the default bounded-queue capacity for
	// Sequential stages that don't need a bespoke value.
	StageQueueCapacity int

	// WindowRoundsNonAncient is how many trailing consensus rounds remain
	// non-ancient (spec.md Open Questions: not discoverable from the
	// provided slice; recovered from the Swirlds lineage via
	// original_source/ and recorded as a decision in DESIGN.md).
	WindowRoundsNonAncient uint64

	// PCESDir is the directory holding durable PCES segment files.
	PCESDir string
	// PCESFirstSeqNum resumes stream numbering after a restart.
	PCESFirstSeqNum uint64

	// CreationRateLimitPerSec and CreationRateLimitBurst bound how often
	// the event-creation manager may emit a self-created event.
	CreationRateLimitPerSec float64
	CreationRateLimitBurst  float64
}

// Default returns a configuration suitable for tests and small-scale runs.
func Default() Config {
	return Config{
		AncientMode:                   events.BirthRoundMode,
		EventHasherUnhandledCapacity:  256,
		OrphanBufferCapacity:          1024,
		FutureEventBufferCapacity:     256,
		DeduplicatorCapacity:          4096,
		ConsensusCoinFreq:             10,
		ConsensusElectionDepthCap:     50,
		PCESMaxSegmentSpan:            1000,
		PCESMinFreeSpaceBytes:         64 << 20,
		PCESWriteRetryAttempts:        3,
		PCESWriteRetryBaseDelay:       50 * time.Millisecond,
		MaxTransactionPayloadBytes:    6 * 1024 * 1024,
		FutureBirthRoundTolerance:     26,
		DefaultPoolMultiplier:         1.0,
		DefaultPoolConstant:           2,
		StageQueueCapacity:            256,
		WindowRoundsNonAncient:        26,
		PCESDir:                       "pces-data",
		CreationRateLimitPerSec:       5,
		CreationRateLimitBurst:        5,
	}
}

// Valid returns a descriptive error if c contains an invalid combination
// of values, in the style of the teacher's Parameters.Valid().
func (c Config) Valid() error {
	switch {
	case c.EventHasherUnhandledCapacity <= 0:
		return fmt.Errorf("config: eventHasherUnhandledCapacity = %d: must be > 0", c.EventHasherUnhandledCapacity)
	case c.OrphanBufferCapacity <= 0:
		return fmt.Errorf("config: orphanBufferCapacity = %d: must be > 0", c.OrphanBufferCapacity)
	case c.FutureEventBufferCapacity <= 0:
		return fmt.Errorf("config: futureEventBufferCapacity = %d: must be > 0", c.FutureEventBufferCapacity)
	case c.ConsensusCoinFreq == 0:
		return fmt.Errorf("config: consensus.coinFreq = %d: must be > 0", c.ConsensusCoinFreq)
	case c.PCESMaxSegmentSpan == 0:
		return fmt.Errorf("config: pces.maxSegmentSpan = %d: must be > 0", c.PCESMaxSegmentSpan)
	case c.PCESWriteRetryAttempts <= 0:
		return fmt.Errorf("config: pces write retry attempts = %d: must be > 0", c.PCESWriteRetryAttempts)
	case c.MaxTransactionPayloadBytes <= 0:
		return fmt.Errorf("config: maxTransactionPayloadBytes = %d: must be > 0", c.MaxTransactionPayloadBytes)
	case c.DefaultPoolConstant < 0:
		return fmt.Errorf("config: defaultPoolConstant = %d: must be >= 0", c.DefaultPoolConstant)
	case c.StageQueueCapacity <= 0:
		return fmt.Errorf("config: stageQueueCapacity = %d: must be > 0", c.StageQueueCapacity)
	}
	return nil
}

// PoolSize computes a Concurrent stage's worker count from the configured
// multiplier/constant and the number of available CPUs, following the
// teacher's runtime/orbit.Parameters sizing idiom.
func (c Config) PoolSize(numCPU int) int {
	n := int(c.DefaultPoolMultiplier*float64(numCPU)) + c.DefaultPoolConstant
	if n < 1 {
		return 1
	}
	return n
}
