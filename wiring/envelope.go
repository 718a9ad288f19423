package wiring

import "github.com/virtualvote/consensus/window"

// Envelope wraps a stage's normal item type with an optional window
// update. Stages that are window-update consumers (spec.md §4.1: the
// non-ancient window is INJECTed to several downstream stages) use
// Scheduler[Envelope[T]] so that a window update travels through the same
// ordered queue as events, guaranteeing it is applied between events and
// never mid-event (spec.md §5).
type Envelope[T any] struct {
	Item         T
	WindowUpdate *window.Window
}

// Item wraps a plain item with no window update, for Emit convenience.
func Item[T any](v T) Envelope[T] {
	return Envelope[T]{Item: v}
}

// WindowUpdate wraps a window update with a zero item value.
func WindowUpdateOf[T any](w window.Window) Envelope[T] {
	return Envelope[T]{WindowUpdate: &w}
}
