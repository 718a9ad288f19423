package window

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/virtualvote/consensus/events"
)

func TestGenesis(t *testing.T) {
	w := Genesis(events.BirthRoundMode)
	require.Equal(t, events.BirthRoundMode, w.Mode)
	require.Zero(t, w.LatestConsensusRound)
	require.Zero(t, w.MinNonAncientValue)
}

func TestAdvanceReplacesValueWholesale(t *testing.T) {
	w := Genesis(events.GenerationMode)
	w2 := w.Advance(3, 10, 8)

	require.Equal(t, uint64(3), w2.LatestConsensusRound)
	require.Equal(t, uint64(10), w2.MinNonAncientValue)
	require.Equal(t, uint64(8), w2.MinRoundGeneration)
	require.Equal(t, w.Mode, w2.Mode)

	// original value is untouched
	require.Zero(t, w.LatestConsensusRound)
}

func TestIsAncientEventByMode(t *testing.T) {
	genW := Genesis(events.GenerationMode).Advance(1, 5, 0)
	e := &events.Event{Generation: 4, BirthRound: 100}
	require.True(t, genW.IsAncientEvent(e))

	e2 := &events.Event{Generation: 5, BirthRound: 0}
	require.False(t, genW.IsAncientEvent(e2))

	brW := Genesis(events.BirthRoundMode).Advance(1, 5, 0)
	e3 := &events.Event{Generation: 100, BirthRound: 4}
	require.True(t, brW.IsAncientEvent(e3))
}

func TestIsAncientDescriptor(t *testing.T) {
	brW := Genesis(events.BirthRoundMode).Advance(1, 5, 0)
	require.True(t, brW.IsAncientDescriptor(events.Descriptor{BirthRound: 4}))
	require.False(t, brW.IsAncientDescriptor(events.Descriptor{BirthRound: 5}))

	genW := Genesis(events.GenerationMode).Advance(1, 5, 0)
	require.True(t, genW.IsAncientDescriptor(events.Descriptor{Generation: 4}))
}

func TestValueByMode(t *testing.T) {
	e := &events.Event{Generation: 7, BirthRound: 2}

	genW := Genesis(events.GenerationMode)
	require.Equal(t, uint64(7), genW.Value(e))

	brW := Genesis(events.BirthRoundMode)
	require.Equal(t, uint64(2), brW.Value(e))
}
