// Package pipelineerr defines the sentinel errors shared across intake
// stages, following the teacher's config/errors.go style of small,
// wrapped, errors.Is-comparable sentinels rather than a generic error
// framework.
package pipelineerr

import "errors"

var (
	// ErrAncient means the event (or its referenced parent) fell below the
	// non-ancient window and was dropped rather than processed further.
	ErrAncient = errors.New("pipelineerr: event is ancient")

	// ErrDuplicateEvent means the deduplicator has already seen this hash.
	ErrDuplicateEvent = errors.New("pipelineerr: duplicate event hash")

	// ErrOrphaned means the event is buffered awaiting a missing parent.
	ErrOrphaned = errors.New("pipelineerr: event is orphaned")

	// ErrMalformedEvent means a structural invariant was violated
	// (self-referential parent, non-monotone timestamp, oversized payload,
	// generation not ahead of parents, far-future birth round).
	ErrMalformedEvent = errors.New("pipelineerr: malformed event")

	// ErrSignatureInvalid means the event's signature did not verify under
	// the creator's current address-book entry.
	ErrSignatureInvalid = errors.New("pipelineerr: invalid signature")

	// ErrUnknownCreator means the creator has no entry in the active
	// address book.
	ErrUnknownCreator = errors.New("pipelineerr: unknown creator")

	// ErrInvariantViolation marks a logic-bug-class condition (e.g. the
	// linker cannot resolve a parent the orphan buffer guaranteed was
	// present). Never halts the node; the offending event is dropped and
	// the condition is logged at Fatal/metric per spec.md §7.
	ErrInvariantViolation = errors.New("pipelineerr: consensus invariant violation")

	// ErrDurabilityHalted means a PCES I/O error exhausted its retry
	// budget, or free disk space fell below the configured minimum. The
	// node transitions to a halted status; this error is not retryable.
	ErrDurabilityHalted = errors.New("pipelineerr: durability halted, node must stop")

	// ErrStopped means the operation was rejected because the owning
	// stage has been shut down.
	ErrStopped = errors.New("pipelineerr: stage stopped")
)
