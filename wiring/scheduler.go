package wiring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/luxfi/log"
)

// Handler processes one item. Sequential and SequentialThread handlers may
// assume they are never called concurrently with themselves; Concurrent
// handlers must be safe for concurrent invocation. A handler emits to its
// own output wires itself (closures over the stage's Wire fields) — the
// scheduler only owns intake ordering and backpressure.
type Handler[In any] func(context.Context, In)

// Scheduler owns one stage's input queue, worker pool, and flush
// bookkeeping. It is the sole place backpressure and ordering are enforced
// for a stage.
type Scheduler[In any] struct {
	name     string
	policy   Policy
	capacity int
	handler  Handler[In]
	logger   log.Logger

	queue chan In

	// outstanding counts items that have been accepted (Submit/Inject
	// returned) but whose handler invocation has not yet returned. Flush
	// waits for this to reach zero.
	outstanding sync.WaitGroup
	queueDepth  atomic.Int64

	wg      sync.WaitGroup // worker goroutines
	stopCh  chan struct{}
	stopped atomic.Bool

	counter *BackpressureObjectCounter // optional, shared with an upstream/downstream stage
}

// Config configures a new Scheduler.
type Config[In any] struct {
	Name     string
	Policy   Policy
	Capacity int // input queue capacity; unused only by Direct's inline Submit
	Workers  int // worker count for Concurrent; ignored otherwise
	Handler  Handler[In]
	Logger   log.Logger
	// Counter, when set, is on-ramped in Submit and off-ramped after the
	// handler returns — used to span the hasher/post-hash-collector pair
	// with a single backpressure counter per spec.md §4.1.
	Counter *BackpressureObjectCounter
}

// New constructs and starts a Scheduler per cfg.
func New[In any](cfg Config[In]) *Scheduler[In] {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoOpLogger()
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	s := &Scheduler[In]{
		name:     cfg.Name,
		policy:   cfg.Policy,
		capacity: capacity,
		handler:  cfg.Handler,
		logger:   cfg.Logger,
		queue:    make(chan In, capacity),
		stopCh:   make(chan struct{}),
		counter:  cfg.Counter,
	}

	switch cfg.Policy {
	case Direct:
		// No worker loop: Submit runs the handler inline.
	case Concurrent:
		for i := 0; i < workers; i++ {
			s.wg.Add(1)
			go s.workerLoop()
		}
	default: // Sequential, SequentialThread
		s.wg.Add(1)
		go s.workerLoop()
	}

	return s
}

func (s *Scheduler[In]) workerLoop() {
	defer s.wg.Done()
	for {
		select {
		case item, ok := <-s.queue:
			if !ok {
				return
			}
			s.queueDepth.Add(-1)
			s.run(context.Background(), item)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler[In]) run(ctx context.Context, item In) {
	defer s.outstanding.Done()
	defer func() {
		if s.counter != nil {
			s.counter.OffRamp()
		}
	}()
	s.handler(ctx, item)
}

// Submit enqueues item, respecting this stage's capacity: it blocks when
// the queue is full. Returns ctx.Err() if ctx is done before the item is
// accepted, or an error if the scheduler is stopped.
func (s *Scheduler[In]) Submit(ctx context.Context, item In) error {
	if s.stopped.Load() {
		return fmt.Errorf("wiring: scheduler %q is stopped", s.name)
	}
	if s.counter != nil {
		if err := s.counter.OnRamp(ctx); err != nil {
			return err
		}
	}
	s.outstanding.Add(1)

	if s.policy == Direct {
		s.run(ctx, item)
		return nil
	}

	select {
	case s.queue <- item:
		s.queueDepth.Add(1)
		return nil
	case <-ctx.Done():
		s.outstanding.Done()
		if s.counter != nil {
			s.counter.OffRamp()
		}
		return ctx.Err()
	case <-s.stopCh:
		s.outstanding.Done()
		if s.counter != nil {
			s.counter.OffRamp()
		}
		return fmt.Errorf("wiring: scheduler %q is stopped", s.name)
	}
}

// Inject enqueues item bypassing backpressure: it never blocks. Used only
// for control broadcasts and the event-creation feedback loop, where
// blocking would deadlock the cycle (spec.md §4.1).
func (s *Scheduler[In]) Inject(item In) {
	if s.stopped.Load() {
		return
	}
	s.outstanding.Add(1)

	if s.policy == Direct {
		go s.run(context.Background(), item)
		return
	}

	select {
	case s.queue <- item:
		s.queueDepth.Add(1)
	default:
		// Queue momentarily full: hand off asynchronously rather than
		// block the injector.
		go func() {
			select {
			case s.queue <- item:
				s.queueDepth.Add(1)
			case <-s.stopCh:
				s.outstanding.Done()
			}
		}()
	}
}

// Flush blocks until the queue is empty and the handler has returned for
// every item enqueued before this call. It does not prevent new
// submissions from arriving concurrently; the caller (platform.Coordinator)
// is responsible for flushing in topological order so that no upstream
// stage is still feeding this one.
func (s *Scheduler[In]) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.outstanding.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the current queue depth, for metrics.
func (s *Scheduler[In]) Len() int64 {
	return s.queueDepth.Load()
}

// Name returns the stage name this scheduler was configured with.
func (s *Scheduler[In]) Name() string {
	return s.name
}

// Stop drains no further intake and signals worker goroutines to exit
// after the item each is currently handling; the rest of the queue is not
// processed. Pending items not yet dequeued are dropped per spec.md §5
// (cancellation semantics).
func (s *Scheduler[In]) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}
