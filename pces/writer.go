package pces

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/luxfi/log"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/metrics"
	"github.com/virtualvote/consensus/pipelineerr"
	"github.com/virtualvote/consensus/wiring"
	"go.uber.org/zap"
)

type writerItem struct {
	event           *events.Event
	flushRequestSeq *uint64
	discontinue     bool
	minAncientID    *uint64
}

// segmentFile tracks bookkeeping for one open or closed segment on disk.
type segmentFile struct {
	path         string
	firstSeqNum  uint64
	maxAncientID uint64
	closed       bool
}

// Writer appends sequenced events to the current PCES segment file,
// rotating on span and fsyncing on request from the consensus engine's
// keystone signal (spec.md §4.10). It runs on a dedicated worker thread
// (SequentialThread policy) since fsync latency must never stall other
// stages sharing a goroutine pool.
type Writer struct {
	sched *wiring.Scheduler[writerItem]
	nexus *DurabilityNexus

	dir            string
	maxSpan        uint64
	minFreeSpace   int64
	retryAttempts  int
	retryBaseDelay time.Duration
	mode           events.AncientMode
	logger         log.Logger

	file        *os.File
	bw          *bufio.Writer
	firstSeqNum uint64
	recordCount uint64
	maxAncient  uint64
	minSpan     uint64
	maxSpanSeen uint64
	spanSet     bool

	minimumAncientIdentifierToStore uint64
	segments                        []*segmentFile

	halted bool
}

// WriterConfig configures the stage.
type WriterConfig struct {
	Capacity       int
	Dir            string
	MaxSegmentSpan uint64
	MinFreeSpace   int64
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Mode           events.AncientMode
	Nexus          *DurabilityNexus
	Logger         log.Logger
	Metrics        *metrics.Metrics
}

// NewWriter constructs and starts the stage.
func NewWriter(cfg WriterConfig) *Writer {
	w := &Writer{
		nexus:          cfg.Nexus,
		dir:            cfg.Dir,
		maxSpan:        cfg.MaxSegmentSpan,
		minFreeSpace:   cfg.MinFreeSpace,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		mode:           cfg.Mode,
		logger:         cfg.Logger,
	}

	w.sched = wiring.New(wiring.Config[writerItem]{
		Name:     "pces-writer",
		Policy:   wiring.SequentialThread,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
		Handler: func(ctx context.Context, it writerItem) {
			if w.halted {
				return
			}
			switch {
			case it.event != nil:
				w.appendEvent(it.event, cfg.Metrics)
			case it.flushRequestSeq != nil:
				w.flush(*it.flushRequestSeq, cfg.Metrics)
			case it.discontinue:
				w.discontinue(cfg.Metrics)
			case it.minAncientID != nil:
				w.minimumAncientIdentifierToStore = *it.minAncientID
				w.deleteEligible()
			}
		},
	})

	return w
}

func (w *Writer) appendEvent(e *events.Event, m *metrics.Metrics) {
	if err := w.ensureOpen(e); err != nil {
		w.halt(err, m)
		return
	}
	if free := freeSpace(w.dir); free < w.minFreeSpace {
		w.halt(fmt.Errorf("pces: free space %d below minimum %d", free, w.minFreeSpace), m)
		return
	}

	value := w.windowValue(e)
	if !w.spanSet {
		w.minSpan, w.maxSpanSeen = value, value
		w.spanSet = true
	} else {
		if value < w.minSpan {
			w.minSpan = value
		}
		if value > w.maxSpanSeen {
			w.maxSpanSeen = value
		}
	}
	if value > w.maxAncient {
		w.maxAncient = value
	}

	err := w.retrying(func() error {
		return WriteRecord(w.bw, e.SequenceNumber, events.EncodeEventWithSignature(e))
	})
	if err != nil {
		w.halt(err, m)
		return
	}
	w.recordCount++

	if m != nil {
		m.EventsProcessed.WithLabelValues("pces-writer").Inc()
	}

	if w.maxSpanSeen-w.minSpan > w.maxSpan {
		if err := w.rotate(); err != nil {
			w.halt(err, m)
		}
	}
}

func (w *Writer) windowValue(e *events.Event) uint64 {
	if w.mode == events.BirthRoundMode {
		return e.BirthRound
	}
	return e.Generation
}

func (w *Writer) ensureOpen(e *events.Event) error {
	if w.file != nil {
		return nil
	}
	return w.openSegment(e.SequenceNumber)
}

func (w *Writer) openSegment(firstSeqNum uint64) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("pces: mkdir segment dir: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("segment-%020d.pces", firstSeqNum))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("pces: open segment: %w", err)
	}
	w.file = f
	w.bw = bufio.NewWriter(f)
	w.firstSeqNum = firstSeqNum
	w.recordCount = 0
	w.spanSet = false

	if err := WriteHeader(w.bw, Header{
		FormatVersion: formatVersion,
		FirstSeqNum:   firstSeqNum,
		MinAncientID:  w.minimumAncientIdentifierToStore,
		AncientMode:   w.mode,
	}); err != nil {
		return fmt.Errorf("pces: write segment header: %w", err)
	}

	w.segments = append(w.segments, &segmentFile{path: path, firstSeqNum: firstSeqNum})
	return nil
}

// rotate closes the current segment with a footer and opens a fresh one
// for the next sequence number (spec.md §4.10).
func (w *Writer) rotate() error {
	next := w.firstSeqNum + w.recordCount
	if err := w.closeCurrent(); err != nil {
		return err
	}
	return w.openSegment(next)
}

func (w *Writer) closeCurrent() error {
	if w.file == nil {
		return nil
	}
	if err := WriteFooter(w.bw, Footer{RecordCount: w.recordCount, MaxAncientID: w.maxAncient}); err != nil {
		return fmt.Errorf("pces: write footer: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("pces: flush segment: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("pces: sync segment: %w", err)
	}
	if len(w.segments) > 0 {
		w.segments[len(w.segments)-1].closed = true
		w.segments[len(w.segments)-1].maxAncientID = w.maxAncient
	}
	err := w.file.Close()
	w.file = nil
	w.bw = nil
	return err
}

// flush forces an fsync of the current segment and, once durable, reports
// latestDurableSequenceNumber to the durability nexus — the signal that
// gates application-side release of the consensus round containing the
// keystone event at keystoneSeq (spec.md §4.10).
func (w *Writer) flush(keystoneSeq uint64, m *metrics.Metrics) {
	err := w.retrying(func() error {
		if w.bw == nil {
			return nil
		}
		if err := w.bw.Flush(); err != nil {
			return err
		}
		return w.file.Sync()
	})
	if err != nil {
		w.halt(err, m)
		return
	}
	if w.nexus != nil {
		w.nexus.Advance(keystoneSeq)
		if m != nil {
			m.LatestDurableSequence.Set(float64(keystoneSeq))
		}
	}
}

// discontinue closes the current segment with its footer and starts a
// fresh one at the next sequence number (spec.md §4.10). No separate
// discontinuity marker is written, and the replayer reads the new segment
// like any rotated one: it resets no state at that boundary.
func (w *Writer) discontinue(m *metrics.Metrics) {
	next := w.firstSeqNum + w.recordCount
	if err := w.closeCurrent(); err != nil {
		w.halt(err, m)
		return
	}
	if err := w.openSegment(next); err != nil {
		w.halt(err, m)
	}
}

// deleteEligible unlinks every closed segment whose maxAncientID falls
// below minimumAncientIdentifierToStore (spec.md §4.10).
func (w *Writer) deleteEligible() {
	kept := w.segments[:0]
	for _, s := range w.segments {
		if s.closed && s.maxAncientID < w.minimumAncientIdentifierToStore {
			_ = os.Remove(s.path)
			continue
		}
		kept = append(kept, s)
	}
	w.segments = kept
}

// retrying runs fn with bounded exponential backoff, per spec.md §7's I/O
// error taxonomy (3 attempts, doubling delay).
func (w *Writer) retrying(fn func() error) error {
	delay := w.retryBaseDelay
	var err error
	for attempt := 0; attempt < w.retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if freeSpace(w.dir) < w.minFreeSpace {
			return fmt.Errorf("pces: free space below minimum: %w", err)
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

// halt transitions the writer to a halted state: durability is
// non-negotiable, so an exhausted-retry I/O failure stops accepting new
// events rather than silently dropping them (spec.md §7).
func (w *Writer) halt(err error, m *metrics.Metrics) {
	w.halted = true
	if w.logger != nil {
		w.logger.Error("pces writer halted", zap.Error(err), zap.Error(pipelineerr.ErrDurabilityHalted))
	}
	if m != nil {
		m.EventsDropped.WithLabelValues("pces-writer", pipelineerr.ErrDurabilityHalted.Error()).Inc()
	}
}

// Halted reports whether the writer has stopped accepting events after an
// unrecoverable durability failure.
func (w *Writer) Halted() bool {
	return w.halted
}

// Submit enqueues a sequenced event for durable append.
func (w *Writer) Submit(ctx context.Context, e *events.Event) error {
	return w.sched.Submit(ctx, writerItem{event: e})
}

// RequestFlush forces an fsync up through keystoneSeq, bypassing
// backpressure like other control signals (spec.md §4.10's flushRequest
// input).
func (w *Writer) RequestFlush(keystoneSeq uint64) {
	w.sched.Inject(writerItem{flushRequestSeq: &keystoneSeq})
}

// Discontinue signals an external discontinuity (e.g. reconnect).
func (w *Writer) Discontinue() {
	w.sched.Inject(writerItem{discontinue: true})
}

// SetMinimumAncientIdentifierToStore updates the deletion floor fed by the
// state file manager.
func (w *Writer) SetMinimumAncientIdentifierToStore(id uint64) {
	w.sched.Inject(writerItem{minAncientID: &id})
}

// Flush blocks until every enqueued event has been appended (not
// necessarily fsynced — use RequestFlush for durability).
func (w *Writer) Flush(ctx context.Context) error {
	return w.sched.Flush(ctx)
}

// Stop closes the current segment cleanly and shuts the stage down.
func (w *Writer) Stop() {
	w.sched.Stop()
	_ = w.closeCurrent()
}

func freeSpace(dir string) int64 {
	var stat diskStat
	if err := statfs(dir, &stat); err != nil {
		return 1 << 62 // unknown: don't spuriously trip the minFreeSpace halt
	}
	return stat.availableBytes
}
