package validation

import (
	"context"

	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/pipelineerr"
	"github.com/virtualvote/consensus/validators"
	"github.com/virtualvote/consensus/wiring"
)

// SignatureValidator looks up the creator's public key in the active
// address book and verifies the event's signature, dropping on mismatch
// (spec.md §4.5). Address-book updates arrive on a separate wire and are
// Injected — upstream (the platform coordinator) is responsible for
// ordering an address-book update ahead of the first event signed under
// the new epoch.
type SignatureValidator struct {
	sched *wiring.Scheduler[sigItem]
	Out   *wiring.Wire[*events.Event]

	book     *validators.AddressBook
	verifier events.Verifier
}

type sigItem struct {
	event         *events.Event
	addressUpdate *addressUpdate
}

type addressUpdate struct {
	effectiveRound uint64
	entries        []validators.Entry
}

// SignatureValidatorConfig configures the stage.
type SignatureValidatorConfig struct {
	Capacity int
	Book     *validators.AddressBook
	Verifier events.Verifier
	Logger   log.Logger
	Metrics  *metrics.Metrics
}

// NewSignatureValidator constructs and starts the stage.
func NewSignatureValidator(cfg SignatureValidatorConfig) *SignatureValidator {
	s := &SignatureValidator{
		Out:      wiring.NewWire[*events.Event]("signature-validator.out"),
		book:     cfg.Book,
		verifier: cfg.Verifier,
	}

	s.sched = wiring.New(wiring.Config[sigItem]{
		Name:     "signature-validator",
		Policy:   wiring.Sequential,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, item sigItem) {
			if item.addressUpdate != nil {
				s.book.Update(item.addressUpdate.effectiveRound, item.addressUpdate.entries)
				return
			}
			e := item.event
			entry, ok := s.book.Lookup(e.CreatorID)
			if !ok {
				if cfg.Metrics != nil {
					cfg.Metrics.EventsDropped.WithLabelValues("signature-validator", pipelineerr.ErrUnknownCreator.Error()).Inc()
				}
				return
			}
			if s.verifier != nil && !s.verifier.Verify(e.CreatorID, entry.PublicKey, e.CanonicalEncoding(), e.Signature) {
				if cfg.Metrics != nil {
					cfg.Metrics.EventsDropped.WithLabelValues("signature-validator", pipelineerr.ErrSignatureInvalid.Error()).Inc()
				}
				return
			}
			if cfg.Metrics != nil {
				cfg.Metrics.EventsProcessed.WithLabelValues("signature-validator").Inc()
			}
			s.Out.Emit(ctx, e)
		},
	})

	return s
}

// Submit enqueues a deduplicated event for signature verification.
func (s *SignatureValidator) Submit(ctx context.Context, e *events.Event) error {
	return s.sched.Submit(ctx, sigItem{event: e})
}

// ApplyAddressBookUpdate enqueues an address-book update through the same
// ordered queue as events, in front of the first event it must apply to
// (spec.md §4.5).
func (s *SignatureValidator) ApplyAddressBookUpdate(effectiveRound uint64, entries []validators.Entry) {
	s.sched.Inject(sigItem{addressUpdate: &addressUpdate{effectiveRound: effectiveRound, entries: entries}})
}

// Flush blocks until every enqueued event has been signature-checked.
func (s *SignatureValidator) Flush(ctx context.Context) error {
	return s.sched.Flush(ctx)
}

// Stop shuts down the stage.
func (s *SignatureValidator) Stop() {
	s.sched.Stop()
}
