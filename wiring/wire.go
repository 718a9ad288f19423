package wiring

import "context"

// Wire is a named output that can be soldered to one or more downstream
// schedulers. Soldering the same wire more than once fans a single value
// out to multiple consumers (e.g. orphan-buffer feeding the future-event
// buffer, app-prehandle, and the pre-consensus signature collector at
// once).
type Wire[T any] struct {
	name      string
	consumers []func(context.Context, T)
}

// NewWire creates a named, unsoldered wire.
func NewWire[T any](name string) *Wire[T] {
	return &Wire[T]{name: name}
}

// SolderTo connects this wire to sched's input, honoring sched's
// backpressure: Emit blocks if sched's queue is full.
func (w *Wire[T]) SolderTo(sched *Scheduler[T]) {
	w.consumers = append(w.consumers, func(ctx context.Context, v T) {
		_ = sched.Submit(ctx, v)
	})
}

// SolderToInject connects this wire to sched's input bypassing
// backpressure: Emit never blocks on this consumer. Used only for control
// broadcasts and feedback cycles (spec.md §4.1); a cycle in the event
// graph is legal only via an Inject edge.
func (w *Wire[T]) SolderToInject(sched *Scheduler[T]) {
	w.consumers = append(w.consumers, func(_ context.Context, v T) {
		sched.Inject(v)
	})
}

// SolderToFunc connects an arbitrary sink, honoring the sink's own notion
// of backpressure (or lack of one) — used for terminal consumers that are
// not themselves a Scheduler (e.g. the shadowgraph's insert call, or a
// metrics gauge update).
func (w *Wire[T]) SolderToFunc(fn func(context.Context, T)) {
	w.consumers = append(w.consumers, fn)
}

// Emit delivers v to every soldered consumer in solder order.
func (w *Wire[T]) Emit(ctx context.Context, v T) {
	for _, c := range w.consumers {
		c(ctx, v)
	}
}

// Name returns the wire's label, for topology diagnostics.
func (w *Wire[T]) Name() string {
	return w.name
}
