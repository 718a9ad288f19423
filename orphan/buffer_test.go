package orphan

import (
	"context"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/window"
)

func newTestEvent(creator ids.NodeID, generation uint64, selfParent *events.Descriptor) *events.Event {
	return &events.Event{
		CreatorID:  creator,
		Generation: generation,
		BirthRound: generation,
		SelfParent: selfParent,
		Hash:       ids.ID{byte(creator[0]), byte(generation)},
	}
}

func collectingBuffer(t *testing.T) (*Buffer, *[]*events.Event) {
	t.Helper()
	var released []*events.Event
	b := New(Config{
		Capacity:      16,
		InitialWindow: window.Genesis(events.GenerationMode),
	})
	b.Out.SolderToFunc(func(_ context.Context, e *events.Event) {
		released = append(released, e)
	})
	t.Cleanup(b.Stop)
	return b, &released
}

func TestBufferReleasesEventWithNoParents(t *testing.T) {
	b, released := collectingBuffer(t)
	ctx := context.Background()

	creator := ids.NodeID{1}
	e := newTestEvent(creator, 0, nil)
	require.NoError(t, b.Submit(ctx, e))
	require.NoError(t, b.Flush(ctx))

	require.Equal(t, []*events.Event{e}, *released)
	require.Zero(t, b.Len())
}

func TestBufferHoldsOrphanUntilParentArrives(t *testing.T) {
	b, released := collectingBuffer(t)
	ctx := context.Background()

	creator := ids.NodeID{1}
	parent := newTestEvent(creator, 0, nil)
	parentDesc := parent.Descriptor()
	child := newTestEvent(creator, 1, &parentDesc)

	// Child arrives first: its parent isn't known yet, so it must be held.
	require.NoError(t, b.Submit(ctx, child))
	require.NoError(t, b.Flush(ctx))
	require.Empty(t, *released)
	require.Equal(t, 1, b.Len())

	// Parent arrives: both must release, in the order parent-then-child.
	require.NoError(t, b.Submit(ctx, parent))
	require.NoError(t, b.Flush(ctx))

	require.Equal(t, []*events.Event{parent, child}, *released)
	require.Zero(t, b.Len())
}

func TestBufferDropsAncientEvent(t *testing.T) {
	b, released := collectingBuffer(t)
	ctx := context.Background()

	w := window.Genesis(events.GenerationMode).Advance(1, 10, 0)
	b.ApplyWindow(w)

	e := newTestEvent(ids.NodeID{1}, 3, nil) // generation 3 < minNonAncientValue 10
	require.NoError(t, b.Submit(ctx, e))
	require.NoError(t, b.Flush(ctx))

	require.Empty(t, *released)
	require.Zero(t, b.Len())
}

func TestBufferReleasesOrphanOnceMissingParentGoesAncient(t *testing.T) {
	b, released := collectingBuffer(t)
	ctx := context.Background()

	creator := ids.NodeID{1}
	missingParent := events.Descriptor{
		Hash:       ids.ID{99},
		CreatorID:  creator,
		Generation: 0,
	}
	child := newTestEvent(creator, 1, &missingParent)

	require.NoError(t, b.Submit(ctx, child))
	require.NoError(t, b.Flush(ctx))
	require.Equal(t, 1, b.Len())

	// Advance the window far enough that the missing parent's generation
	// falls below the threshold: it can never arrive now, so the orphan
	// must release with only its known ancestry.
	w := window.Genesis(events.GenerationMode).Advance(1, 5, 0)
	b.ApplyWindow(w)
	require.NoError(t, b.Flush(ctx))

	require.Equal(t, []*events.Event{child}, *released)
	require.Zero(t, b.Len())
}
