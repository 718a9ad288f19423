// Package window holds the non-ancient event window: the single,
// read-mostly value that tells every stage which events can still
// influence consensus. The event-window-manager is the sole writer; all
// other stages only read a Window value and apply updates between events,
// never mid-event (spec.md §5).
package window

import "github.com/virtualvote/consensus/events"

// Window is the non-ancient event window, spec.md §3. It is an immutable
// value: updates replace it wholesale rather than mutating it in place, so
// a stage holding a Window from before an update keeps seeing consistent
// data until it explicitly applies the new one.
type Window struct {
	LatestConsensusRound uint64
	MinNonAncientValue   uint64 // generation or birth round, per Mode
	MinRoundGeneration   uint64
	Mode                 events.AncientMode
}

// Genesis returns the initial window before any round has been produced.
func Genesis(mode events.AncientMode) Window {
	return Window{Mode: mode}
}

// IsAncientEvent reports whether e is ancient under this window.
func (w Window) IsAncientEvent(e *events.Event) bool {
	return e.IsAncient(w.Mode, w.MinNonAncientValue, w.MinNonAncientValue)
}

// IsAncientDescriptor reports whether a parent descriptor is ancient under
// this window — used by the orphan buffer and linker, which only have a
// Descriptor for an unresolved parent, not the full Event.
func (w Window) IsAncientDescriptor(d events.Descriptor) bool {
	switch w.Mode {
	case events.BirthRoundMode:
		return d.BirthRound < w.MinNonAncientValue
	default:
		return d.Generation < w.MinNonAncientValue
	}
}

// Value returns the ancient-comparison value (generation or birth round)
// for an event, per mode — the value PCES segment rotation keys on.
func (w Window) Value(e *events.Event) uint64 {
	if w.Mode == events.BirthRoundMode {
		return e.BirthRound
	}
	return e.Generation
}

// Advance produces the window that follows the emission of a consensus
// round, given the round number and the new minimum ancient value. Only
// the event-window-manager calls this.
func (w Window) Advance(round, minNonAncientValue, minRoundGeneration uint64) Window {
	return Window{
		LatestConsensusRound: round,
		MinNonAncientValue:   minNonAncientValue,
		MinRoundGeneration:   minRoundGeneration,
		Mode:                 w.Mode,
	}
}
