package pces

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDurabilityNexusAdvanceIsMonotonic(t *testing.T) {
	n := NewDurabilityNexus()
	require.Equal(t, uint64(0), n.LatestDurable())

	n.Advance(5)
	require.Equal(t, uint64(5), n.LatestDurable())

	n.Advance(3) // stale, must not regress
	require.Equal(t, uint64(5), n.LatestDurable())

	n.Advance(10)
	require.Equal(t, uint64(10), n.LatestDurable())
}

func TestDurabilityNexusCanRelease(t *testing.T) {
	n := NewDurabilityNexus()
	require.False(t, n.CanRelease(1))

	n.Advance(5)
	require.True(t, n.CanRelease(5))
	require.True(t, n.CanRelease(3))
	require.False(t, n.CanRelease(6))
}

func TestDurabilityNexusConcurrentAdvance(t *testing.T) {
	n := NewDurabilityNexus()

	var wg sync.WaitGroup
	for i := uint64(1); i <= 100; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			n.Advance(seq)
		}(i)
	}
	wg.Wait()

	require.Equal(t, uint64(100), n.LatestDurable())
}
