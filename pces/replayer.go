package pces

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/virtualvote/consensus/events"
)

// Intake is the hasher's submission surface: replayed events are forwarded
// into it identically to a freshly gossiped event (spec.md §4.11).
type Intake interface {
	Submit(ctx context.Context, e *events.Event) error
}

// EventIterator walks decoded events from durable PCES segments in stream
// order. One segment file's records, in order, then the next file.
type EventIterator struct {
	dir   string
	files []string
	fi    int

	f  *os.File
	br *bufio.Reader
}

// NewEventIterator opens dir and orders its segment files by name, which
// embeds the zero-padded firstSeqNum and therefore sorts in stream order.
func NewEventIterator(dir string) (*EventIterator, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pces: read segment dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pces" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return &EventIterator{dir: dir, files: files}, nil
}

// Next returns the next decoded event, or io.EOF-equivalent (nil, nil) once
// every segment has been exhausted. A truncated final record in the
// current (presumably crashed) segment ends iteration there rather than
// returning an error (spec.md §6).
func (it *EventIterator) Next() (*events.Event, error) {
	for {
		if it.br == nil {
			if it.fi >= len(it.files) {
				return nil, nil
			}
			f, err := os.Open(it.files[it.fi])
			if err != nil {
				return nil, fmt.Errorf("pces: open segment: %w", err)
			}
			it.f = f
			it.br = bufio.NewReader(f)
			if _, err := ReadHeader(it.br); err != nil {
				_ = it.f.Close()
				return nil, fmt.Errorf("pces: read segment header: %w", err)
			}
		}

		_, eventBytes, err := ReadRecord(it.br)
		if err == nil {
			e, decErr := events.DecodeEvent(eventBytes)
			if decErr != nil {
				return nil, fmt.Errorf("pces: decode replayed event: %w", decErr)
			}
			return e, nil
		}

		// Clean end-of-segment (ErrTruncatedRecord covers the footer bytes
		// too, since a footer doesn't parse as a record) or a crash-induced
		// truncation both just mean: move on to the next segment file.
		_ = it.f.Close()
		it.f, it.br = nil, nil
		it.fi++
		if !errors.Is(err, ErrTruncatedRecord) && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("pces: read record: %w", err)
		}
	}
}

// Close releases the iterator's open file, if any.
func (it *EventIterator) Close() error {
	if it.f != nil {
		return it.f.Close()
	}
	return nil
}

// Replayer runs once at startup on a direct (synchronous, unbuffered)
// scheduler: it drains durable PCES segments into the hasher so the node
// rebuilds exactly the state it had before restart (spec.md §4.11). It
// emits no completion signal of its own: Run returning is the only
// indication that replay has finished.
type Replayer struct {
	intake                   Intake
	flushIntake              func(ctx context.Context) error
	flushTransactionHandling func(ctx context.Context) error
}

// ReplayerConfig configures the replayer's callbacks.
type ReplayerConfig struct {
	Intake Intake
	// FlushIntake drains the intake pipeline (hasher through consensus)
	// to quiescence before transaction handling is flushed.
	FlushIntake func(ctx context.Context) error
	// FlushTransactionHandling drains any consumer downstream of
	// consensus rounds (e.g. the state machine) to quiescence.
	FlushTransactionHandling func(ctx context.Context) error
}

// NewReplayer constructs a replayer. There is no internal scheduler: replay
// is single-shot and synchronous by contract, so Run simply calls through
// on the caller's goroutine.
func NewReplayer(cfg ReplayerConfig) *Replayer {
	return &Replayer{
		intake:                   cfg.Intake,
		flushIntake:              cfg.FlushIntake,
		flushTransactionHandling: cfg.FlushTransactionHandling,
	}
}

// Run forwards every event from it into the hasher, in order, then flushes
// intake and transaction handling (in that order) before returning. No
// done-streaming trigger is emitted; nothing downstream is notified when
// Run returns.
func (r *Replayer) Run(ctx context.Context, it *EventIterator) (count int, err error) {
	defer it.Close()

	for {
		e, err := it.Next()
		if err != nil {
			return count, err
		}
		if e == nil {
			break
		}
		if err := r.intake.Submit(ctx, e); err != nil {
			return count, fmt.Errorf("pces: replay submit: %w", err)
		}
		count++
	}

	if r.flushIntake != nil {
		if err := r.flushIntake(ctx); err != nil {
			return count, fmt.Errorf("pces: replay flush intake: %w", err)
		}
	}
	if r.flushTransactionHandling != nil {
		if err := r.flushTransactionHandling(ctx); err != nil {
			return count, fmt.Errorf("pces: replay flush transaction handling: %w", err)
		}
	}
	return count, nil
}
