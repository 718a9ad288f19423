// Package wiring provides the stage and wire framework the intake pipeline
// is built from: schedulers with a worker policy and bounded input queue,
// and wires that solder one stage's output to another's input, either
// honoring backpressure or bypassing it (Inject).
//
// Grounded on the teacher's runtime/chain.Stage enum and the
// start/health-check/shutdown lifecycle shape of engine/core.core.
package wiring

// Policy selects a scheduler's concurrency and ordering behavior.
type Policy int

const (
	// Sequential processes one item at a time, FIFO, on the scheduler's
	// own single worker goroutine.
	Sequential Policy = iota
	// SequentialThread is scheduled exactly like Sequential: one dedicated
	// goroutine for the scheduler's lifetime (used by the PCES writer, which
	// owns an open file handle that must only ever be touched by one
	// goroutine).
	SequentialThread
	// Concurrent runs up to N workers with no ordering guarantee between
	// them; a downstream Sequential stage re-establishes order.
	Concurrent
	// Direct runs the handler inline on the caller's goroutine for Submit
	// (Inject runs it on a new goroutine). No pipeline stage uses it.
	Direct
)

func (p Policy) String() string {
	switch p {
	case Sequential:
		return "sequential"
	case SequentialThread:
		return "sequential-thread"
	case Concurrent:
		return "concurrent"
	case Direct:
		return "direct"
	default:
		return "unknown"
	}
}
