// Package platform wires every intake stage into the end-to-end topology
// spec.md §2 diagrams, and exposes the root-level facade a node process
// drives: submit a gossip event, apply an address-book update, flush the
// pipeline to quiescence, replay durable history at startup, shut down.
// Grounded on the teacher's root consensus.go, which plays the same
// facade-over-engines role for a different consensus family.
package platform

import (
	"context"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/config"
	"github.com/virtualvote/consensus/creation"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/future"
	"github.com/virtualvote/consensus/hasher"
	"github.com/virtualvote/consensus/linker"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/orphan"
	"github.com/virtualvote/consensus/pces"
	"github.com/virtualvote/consensus/roundengine"
	"github.com/virtualvote/consensus/shadowgraph"
	"github.com/virtualvote/consensus/validation"
	"github.com/virtualvote/consensus/validators"
	"github.com/virtualvote/consensus/window"
	"github.com/virtualvote/consensus/windowmanager"
)

// AppPrehandle is the out-of-scope application-side prehandle collaborator
// (spec.md §1): it observes every orphan-resolved event before consensus,
// outside this module's boundary.
type AppPrehandle interface {
	Prehandle(ctx context.Context, e *events.Event)
}

// PreConsensusSignatureCollector is the out-of-scope pre-consensus
// signature-collector collaborator (spec.md §2).
type PreConsensusSignatureCollector interface {
	CollectPreConsensus(ctx context.Context, e *events.Event)
}

// StateMachine is the out-of-scope application state machine (spec.md §1):
// it receives decided consensus rounds once their keystone event is durable.
type StateMachine interface {
	SubmitRound(ctx context.Context, round *roundengine.ConsensusRound)
}

// Coordinator owns every stage in the intake pipeline and the wires
// between them (spec.md §2, §5).
type Coordinator struct {
	cfg    config.Config
	logger log.Logger
	m      *metrics.Metrics

	Hasher            *hasher.Stage
	InternalValidator *validation.InternalValidator
	Deduplicator      *validation.Deduplicator
	SignatureValidator *validation.SignatureValidator
	OrphanBuffer      *orphan.Buffer
	Sequencer         *pces.Sequencer
	Linker            *linker.Linker
	RoundEngine       *roundengine.Stage
	Writer            *pces.Writer
	Durability        *pces.DurabilityNexus
	Shadowgraph       *shadowgraph.Graph
	WindowManager     *windowmanager.Manager
	FutureBuffer      *future.Buffer
	CreationManager   *creation.Manager

	stateMachine StateMachine

	// order lists every stage in topological (upstream-first) order, the
	// sequence FlushIntakePipeline drains in.
	order []flushable
}

type flushable struct {
	name  string
	flush func(ctx context.Context) error
}

// Dependencies collects the external capabilities and collaborators the
// coordinator wires in (spec.md §1's out-of-scope interfaces).
type Dependencies struct {
	SelfNodeID ids.NodeID
	Hasher     events.Hasher
	Signer     events.Signer
	Verifier   events.Verifier

	InitialAddressBook []validators.Entry
	TransactionSource  creation.TransactionSource

	AppPrehandle       AppPrehandle
	SignatureCollector PreConsensusSignatureCollector
	StateMachine       StateMachine
}

// New builds and wires the full intake pipeline per spec.md §2's topology.
func New(cfg config.Config, logger log.Logger, m *metrics.Metrics, deps Dependencies) *Coordinator {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	if deps.Hasher == nil {
		deps.Hasher = events.Sha256Hasher{}
	}

	initialWindow := window.Genesis(cfg.AncientMode)
	book := validators.New(deps.InitialAddressBook)

	c := &Coordinator{cfg: cfg, logger: logger, m: m, stateMachine: deps.StateMachine}

	c.Hasher = hasher.New(hasher.Config{
		Hasher:   deps.Hasher,
		Capacity: cfg.EventHasherUnhandledCapacity,
		Workers:  cfg.PoolSize(numCPU()),
		Logger:   logger,
		Metrics:  m,
	})

	c.InternalValidator = validation.NewInternalValidator(validation.InternalValidatorConfig{
		Capacity:        cfg.StageQueueCapacity,
		MaxPayloadBytes: cfg.MaxTransactionPayloadBytes,
		FutureTolerance: cfg.FutureBirthRoundTolerance,
		InitialWindow:   initialWindow,
		Logger:          logger,
		Metrics:         m,
	})
	c.Hasher.Out.SolderToFunc(func(ctx context.Context, e *events.Event) {
		_ = c.InternalValidator.Submit(ctx, e)
	})

	c.Deduplicator = validation.NewDeduplicator(validation.DeduplicatorConfig{
		Capacity:      cfg.DeduplicatorCapacity,
		InitialWindow: initialWindow,
		Logger:        logger,
		Metrics:       m,
	})
	c.InternalValidator.Out.SolderToFunc(func(ctx context.Context, e *events.Event) {
		_ = c.Deduplicator.Submit(ctx, e)
	})

	c.SignatureValidator = validation.NewSignatureValidator(validation.SignatureValidatorConfig{
		Capacity: cfg.StageQueueCapacity,
		Book:     book,
		Verifier: deps.Verifier,
		Logger:   logger,
		Metrics:  m,
	})
	c.Deduplicator.Out.SolderToFunc(func(ctx context.Context, e *events.Event) {
		_ = c.SignatureValidator.Submit(ctx, e)
	})

	c.OrphanBuffer = orphan.New(orphan.Config{
		Capacity:      cfg.OrphanBufferCapacity,
		InitialWindow: initialWindow,
		Logger:        logger,
		Metrics:       m,
	})
	c.SignatureValidator.Out.SolderToFunc(func(ctx context.Context, e *events.Event) {
		_ = c.OrphanBuffer.Submit(ctx, e)
	})

	c.Sequencer = pces.NewSequencer(pces.Config{
		Capacity:    cfg.StageQueueCapacity,
		FirstSeqNum: cfg.PCESFirstSeqNum,
		Logger:      logger,
		Metrics:     m,
	})
	c.OrphanBuffer.Out.SolderToFunc(func(ctx context.Context, e *events.Event) {
		_ = c.Sequencer.Submit(ctx, e)
	})
	if deps.AppPrehandle != nil {
		c.OrphanBuffer.Out.SolderToFunc(deps.AppPrehandle.Prehandle)
	}
	if deps.SignatureCollector != nil {
		c.OrphanBuffer.Out.SolderToFunc(deps.SignatureCollector.CollectPreConsensus)
	}

	c.Linker = linker.New(linker.Config{
		Capacity:      cfg.StageQueueCapacity,
		InitialWindow: initialWindow,
		Logger:        logger,
		Metrics:       m,
	})
	c.Sequencer.ToLinker.SolderToFunc(func(ctx context.Context, e *events.Event) {
		_ = c.Linker.Submit(ctx, e)
	})

	c.Durability = pces.NewDurabilityNexus()
	c.Writer = pces.NewWriter(pces.WriterConfig{
		Capacity:       cfg.StageQueueCapacity,
		Dir:            cfg.PCESDir,
		MaxSegmentSpan: cfg.PCESMaxSegmentSpan,
		MinFreeSpace:   cfg.PCESMinFreeSpaceBytes,
		RetryAttempts:  cfg.PCESWriteRetryAttempts,
		RetryBaseDelay: cfg.PCESWriteRetryBaseDelay,
		Mode:           cfg.AncientMode,
		Nexus:          c.Durability,
		Logger:         logger,
		Metrics:        m,
	})
	c.Sequencer.ToWriter.SolderToFunc(func(ctx context.Context, e *events.Event) {
		_ = c.Writer.Submit(ctx, e)
	})

	c.RoundEngine = roundengine.NewStage(roundengine.StageConfig{
		Capacity:      cfg.StageQueueCapacity,
		Book:          book,
		CoinFreq:      cfg.ConsensusCoinFreq,
		ElectionDepth: cfg.ConsensusElectionDepthCap,
		Logger:        logger,
		Metrics:       m,
	})
	c.Linker.Out.SolderToFunc(func(ctx context.Context, le *linker.LinkedEvent) {
		_ = c.RoundEngine.Submit(ctx, le)
	})

	c.Shadowgraph = shadowgraph.New(shadowgraph.Config{
		Capacity: cfg.StageQueueCapacity,
		Mode:     cfg.AncientMode,
		Logger:   logger,
		Metrics:  m,
	})
	c.Linker.Out.SolderToFunc(func(ctx context.Context, le *linker.LinkedEvent) {
		_ = c.Shadowgraph.Submit(ctx, le)
	})

	c.WindowManager = windowmanager.New(windowmanager.Config{
		Capacity:         cfg.StageQueueCapacity,
		Mode:             cfg.AncientMode,
		RoundsNonAncient: cfg.WindowRoundsNonAncient,
		Logger:           logger,
		Metrics:          m,
	})
	c.RoundEngine.Out.SolderToFunc(func(ctx context.Context, r *roundengine.ConsensusRound) {
		c.Writer.RequestFlush(r.KeystoneSequenceNum)
		_ = c.WindowManager.Submit(ctx, r)
		c.releaseWhenDurable(ctx, r)
	})

	c.FutureBuffer = future.New(future.Config{
		Capacity:      cfg.FutureEventBufferCapacity,
		InitialWindow: initialWindow,
		Logger:        logger,
		Metrics:       m,
	})
	c.OrphanBuffer.Out.SolderToFunc(func(ctx context.Context, e *events.Event) {
		_ = c.FutureBuffer.Submit(ctx, e)
	})

	c.CreationManager = creation.New(creation.Config{
		Capacity:        cfg.StageQueueCapacity,
		SelfNodeID:      deps.SelfNodeID,
		Hasher:          deps.Hasher,
		Signer:          deps.Signer,
		TransactionSrc:  deps.TransactionSource,
		Inject:          c.InternalValidator.Inject,
		InitialWindow:   initialWindow,
		RateLimitPerSec: cfg.CreationRateLimitPerSec,
		RateLimitBurst:  cfg.CreationRateLimitBurst,
		Logger:          logger,
		Metrics:         m,
	})
	c.FutureBuffer.Out.SolderToFunc(func(ctx context.Context, e *events.Event) {
		_ = c.CreationManager.Trigger(ctx)
	})
	c.RoundEngine.WitnessOut.SolderToFunc(func(_ context.Context, obs roundengine.WitnessObservation) {
		c.CreationManager.ObserveWitness(obs)
	})

	// Window updates fan out via INJECT to every window-consuming stage
	// (spec.md §2: "INJECTed to 8 downstream stages").
	c.WindowManager.Out.SolderToFunc(func(_ context.Context, w window.Window) {
		c.InternalValidator.ApplyWindow(w)
		c.Deduplicator.ApplyWindow(w)
		c.OrphanBuffer.ApplyWindow(w)
		c.Linker.ApplyWindow(w)
		c.FutureBuffer.ApplyWindow(w)
		c.CreationManager.ApplyWindow(w)
	})

	c.order = []flushable{
		{"hasher", c.Hasher.Flush},
		{"internal-validator", c.InternalValidator.Flush},
		{"deduplicator", c.Deduplicator.Flush},
		{"signature-validator", c.SignatureValidator.Flush},
		{"orphan-buffer", c.OrphanBuffer.Flush},
		{"pces-sequencer", c.Sequencer.Flush},
		{"in-order-linker", c.Linker.Flush},
		{"pces-writer", c.Writer.Flush},
		{"linked-event-intake", c.RoundEngine.Flush},
		{"shadowgraph", c.Shadowgraph.Flush},
		{"window-manager", c.WindowManager.Flush},
		{"future-event-buffer", c.FutureBuffer.Flush},
		{"event-creation-manager", c.CreationManager.Flush},
	}

	return c
}

// releaseWhenDurable hands round to the application state machine once its
// keystone event is covered by the durability nexus — spec.md §4.10's "no
// consensus effect escapes until the causing events are durable". The
// writer's RequestFlush is issued synchronously just above, on the same
// scheduler tick that produced round, but the fsync itself completes
// asynchronously on the writer's own thread; release polls rather than
// blocking the round-engine's handler goroutine on disk I/O.
func (c *Coordinator) releaseWhenDurable(ctx context.Context, round *roundengine.ConsensusRound) {
	if c.stateMachine == nil {
		return
	}
	if c.Durability.CanRelease(round.KeystoneSequenceNum) {
		c.stateMachine.SubmitRound(ctx, round)
		return
	}
	go c.waitAndRelease(ctx, round)
}

func (c *Coordinator) waitAndRelease(ctx context.Context, round *roundengine.ConsensusRound) {
	for !c.Durability.CanRelease(round.KeystoneSequenceNum) {
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	c.stateMachine.SubmitRound(ctx, round)
}

// SubmitGossipEvent admits a raw event from the gossip transport into the
// pipeline's entry point, the hasher (spec.md §2).
func (c *Coordinator) SubmitGossipEvent(ctx context.Context, e *events.Event) error {
	return c.Hasher.Submit(ctx, e)
}

// ApplyAddressBookUpdate forwards an address-book update to the signature
// validator, ordered ahead of the first event it must apply to.
func (c *Coordinator) ApplyAddressBookUpdate(effectiveRound uint64, entries []validators.Entry) {
	c.SignatureValidator.ApplyAddressBookUpdate(effectiveRound, entries)
}

// DiscontinuePCES signals an external discontinuity (e.g. a gossip
// reconnect) to the writer, which closes its segment and starts a new one.
// No marker is recorded, so replay does not tell this boundary apart from
// an ordinary rotation.
func (c *Coordinator) DiscontinuePCES() {
	c.Writer.Discontinue()
}

// SetMinimumAncientIdentifierToStore updates the PCES deletion floor fed
// by the state file manager (spec.md §4.10).
func (c *Coordinator) SetMinimumAncientIdentifierToStore(id uint64) {
	c.Writer.SetMinimumAncientIdentifierToStore(id)
}

// ReplayPCES drains durable segments under dir into the pipeline (spec.md
// §4.11) and returns the number of events replayed. Gossip intake is not
// held back while it runs. Call once at startup.
func (c *Coordinator) ReplayPCES(ctx context.Context, dir string) (int, error) {
	it, err := pces.NewEventIterator(dir)
	if err != nil {
		return 0, fmt.Errorf("platform: open replay iterator: %w", err)
	}
	replayer := pces.NewReplayer(pces.ReplayerConfig{
		Intake:                   c.Hasher,
		FlushIntake:              c.flushIntake,
		FlushTransactionHandling: c.flushTransactionHandling,
	})
	return replayer.Run(ctx, it)
}

// flushIntake drains every stage from the hasher through consensus
// production to quiescence.
func (c *Coordinator) flushIntake(ctx context.Context) error {
	for _, st := range c.order {
		if st.name == "event-creation-manager" {
			break
		}
		if err := st.flush(ctx); err != nil {
			return fmt.Errorf("platform: flush %s: %w", st.name, err)
		}
	}
	return nil
}

// flushTransactionHandling drains whatever is downstream of consensus
// rounds (the state machine is an external collaborator with its own
// flush contract; this module has nothing further to drain).
func (c *Coordinator) flushTransactionHandling(ctx context.Context) error {
	return nil
}

// FlushIntakePipeline blocks until every stage, in topological order, has
// drained everything submitted before this call.
func (c *Coordinator) FlushIntakePipeline(ctx context.Context) error {
	for _, st := range c.order {
		if err := st.flush(ctx); err != nil {
			return fmt.Errorf("platform: flush %s: %w", st.name, err)
		}
	}
	return nil
}

// Stop shuts down every stage.
func (c *Coordinator) Stop() {
	c.Hasher.Stop()
	c.InternalValidator.Stop()
	c.Deduplicator.Stop()
	c.SignatureValidator.Stop()
	c.OrphanBuffer.Stop()
	c.Sequencer.Stop()
	c.Linker.Stop()
	c.Writer.Stop()
	c.RoundEngine.Stop()
	c.Shadowgraph.Stop()
	c.WindowManager.Stop()
	c.FutureBuffer.Stop()
	c.CreationManager.Stop()
}
