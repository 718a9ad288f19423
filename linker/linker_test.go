package linker

import (
	"context"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/window"
)

func withHash(e *events.Event, b byte) *events.Event {
	e.Hash = ids.ID{b}
	return e
}

func TestLinkerResolvesKnownParents(t *testing.T) {
	var out []*LinkedEvent
	l := New(Config{Capacity: 16, InitialWindow: window.Genesis(events.GenerationMode)})
	l.Out.SolderToFunc(func(_ context.Context, le *LinkedEvent) { out = append(out, le) })
	t.Cleanup(l.Stop)

	ctx := context.Background()
	parent := withHash(&events.Event{CreatorID: ids.NodeID{1}}, 1)
	require.NoError(t, l.Submit(ctx, parent))
	require.NoError(t, l.Flush(ctx))
	require.Len(t, out, 1)

	parentDesc := parent.Descriptor()
	child := withHash(&events.Event{CreatorID: ids.NodeID{1}, SelfParent: &parentDesc, Generation: 1}, 2)
	require.NoError(t, l.Submit(ctx, child))
	require.NoError(t, l.Flush(ctx))

	require.Len(t, out, 2)
	require.Same(t, out[0], out[1].SelfParent)
}

func TestLinkerDropsEventWithUnresolvableParent(t *testing.T) {
	var out []*LinkedEvent
	l := New(Config{Capacity: 16, InitialWindow: window.Genesis(events.GenerationMode)})
	l.Out.SolderToFunc(func(_ context.Context, le *LinkedEvent) { out = append(out, le) })
	t.Cleanup(l.Stop)

	ctx := context.Background()
	unresolvedParent := events.Descriptor{Hash: ids.ID{77}, CreatorID: ids.NodeID{9}}
	e := withHash(&events.Event{CreatorID: ids.NodeID{9}, SelfParent: &unresolvedParent, Generation: 1}, 3)

	require.NoError(t, l.Submit(ctx, e))
	require.NoError(t, l.Flush(ctx))

	require.Empty(t, out)
	require.Zero(t, l.Len())
}

func TestLinkerTreatsAncientParentAsResolved(t *testing.T) {
	var out []*LinkedEvent
	l := New(Config{Capacity: 16, InitialWindow: window.Genesis(events.GenerationMode)})
	l.Out.SolderToFunc(func(_ context.Context, le *LinkedEvent) { out = append(out, le) })
	t.Cleanup(l.Stop)

	ctx := context.Background()
	l.ApplyWindow(window.Genesis(events.GenerationMode).Advance(1, 5, 0))
	require.NoError(t, l.Flush(ctx))

	ancientParent := events.Descriptor{Hash: ids.ID{55}, CreatorID: ids.NodeID{1}, Generation: 1}
	e := withHash(&events.Event{CreatorID: ids.NodeID{1}, SelfParent: &ancientParent, Generation: 10}, 4)

	require.NoError(t, l.Submit(ctx, e))
	require.NoError(t, l.Flush(ctx))

	require.Len(t, out, 1)
	require.Nil(t, out[0].SelfParent)
}

func TestLinkerEvictsAncientOnWindowUpdate(t *testing.T) {
	l := New(Config{Capacity: 16, InitialWindow: window.Genesis(events.GenerationMode)})
	t.Cleanup(l.Stop)

	ctx := context.Background()
	e := withHash(&events.Event{CreatorID: ids.NodeID{1}, Generation: 1}, 5)
	require.NoError(t, l.Submit(ctx, e))
	require.NoError(t, l.Flush(ctx))
	require.Equal(t, 1, l.Len())

	l.ApplyWindow(window.Genesis(events.GenerationMode).Advance(1, 5, 0))
	require.NoError(t, l.Flush(ctx))
	require.Zero(t, l.Len())
}
