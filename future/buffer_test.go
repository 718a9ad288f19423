package future

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/virtualvote/consensus/events"
	"github.com/virtualvote/consensus/window"
)

func collectingBuffer(t *testing.T) (*Buffer, *[]*events.Event) {
	t.Helper()
	var released []*events.Event
	b := New(Config{
		Capacity:      16,
		InitialWindow: window.Genesis(events.BirthRoundMode),
	})
	b.Out.SolderToFunc(func(_ context.Context, e *events.Event) {
		released = append(released, e)
	})
	t.Cleanup(b.Stop)
	return b, &released
}

func TestBufferReleasesEventAtOrBehindCurrentRound(t *testing.T) {
	b, released := collectingBuffer(t)
	ctx := context.Background()

	e := &events.Event{BirthRound: 0}
	require.NoError(t, b.Submit(ctx, e))
	require.NoError(t, b.Flush(ctx))

	require.Equal(t, []*events.Event{e}, *released)
	require.Zero(t, b.Len())
}

func TestBufferHoldsEventOneRoundAhead(t *testing.T) {
	b, released := collectingBuffer(t)
	ctx := context.Background()

	e := &events.Event{BirthRound: 1} // window's LatestConsensusRound starts at 0
	require.NoError(t, b.Submit(ctx, e))
	require.NoError(t, b.Flush(ctx))

	require.Empty(t, *released)
	require.Equal(t, 1, b.Len())

	// Window catches up: the held event must release.
	w := window.Genesis(events.BirthRoundMode).Advance(1, 0, 0)
	b.ApplyWindow(w)
	require.NoError(t, b.Flush(ctx))

	require.Equal(t, []*events.Event{e}, *released)
	require.Zero(t, b.Len())
}

func TestBufferDropsEventMoreThanOneRoundAhead(t *testing.T) {
	b, released := collectingBuffer(t)
	ctx := context.Background()

	e := &events.Event{BirthRound: 5}
	require.NoError(t, b.Submit(ctx, e))
	require.NoError(t, b.Flush(ctx))

	require.Empty(t, *released)
	require.Zero(t, b.Len())
}

func TestBufferPreservesArrivalOrderOnRelease(t *testing.T) {
	b, released := collectingBuffer(t)
	ctx := context.Background()

	e1 := &events.Event{BirthRound: 1, Generation: 1}
	e2 := &events.Event{BirthRound: 1, Generation: 2}
	require.NoError(t, b.Submit(ctx, e1))
	require.NoError(t, b.Submit(ctx, e2))
	require.NoError(t, b.Flush(ctx))
	require.Equal(t, 2, b.Len())

	w := window.Genesis(events.BirthRoundMode).Advance(1, 0, 0)
	b.ApplyWindow(w)
	require.NoError(t, b.Flush(ctx))

	require.Equal(t, []*events.Event{e1, e2}, *released)
}
