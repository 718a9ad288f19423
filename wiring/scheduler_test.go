package wiring

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerSequentialPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int

	s := New(Config[int]{
		Name:     "seq",
		Policy:   Sequential,
		Capacity: 16,
		Handler: func(_ context.Context, item int) {
			mu.Lock()
			got = append(got, item)
			mu.Unlock()
		},
	})
	defer s.Stop()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Submit(ctx, i))
	}
	require.NoError(t, s.Flush(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestSchedulerConcurrentProcessesEveryItem(t *testing.T) {
	var count atomic.Int64

	s := New(Config[int]{
		Name:     "conc",
		Policy:   Concurrent,
		Workers:  4,
		Capacity: 16,
		Handler: func(_ context.Context, _ int) {
			count.Add(1)
		},
	})
	defer s.Stop()

	ctx := context.Background()
	for i := 0; i < 200; i++ {
		require.NoError(t, s.Submit(ctx, i))
	}
	require.NoError(t, s.Flush(ctx))
	require.Equal(t, int64(200), count.Load())
}

func TestSchedulerDirectRunsInline(t *testing.T) {
	var ran bool
	s := New(Config[int]{
		Name:   "direct",
		Policy: Direct,
		Handler: func(_ context.Context, _ int) {
			ran = true
		},
	})
	defer s.Stop()

	require.NoError(t, s.Submit(context.Background(), 1))
	require.True(t, ran)
}

func TestSchedulerSubmitAfterStopFails(t *testing.T) {
	s := New(Config[int]{
		Name:     "stopped",
		Policy:   Sequential,
		Capacity: 1,
		Handler:  func(context.Context, int) {},
	})
	s.Stop()

	err := s.Submit(context.Background(), 1)
	require.Error(t, err)
}

func TestSchedulerSubmitRespectsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	s := New(Config[int]{
		Name:     "blocking",
		Policy:   Sequential,
		Capacity: 1,
		Handler: func(context.Context, int) {
			<-block
		},
	})
	defer func() {
		close(block)
		s.Stop()
	}()

	ctx := context.Background()
	// First item occupies the worker; second fills the 1-deep queue.
	require.NoError(t, s.Submit(ctx, 1))
	require.NoError(t, s.Submit(ctx, 2))

	cctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Submit(cctx, 3)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedulerInjectNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	var processed atomic.Int64
	s := New(Config[int]{
		Name:     "inject",
		Policy:   Sequential,
		Capacity: 1,
		Handler: func(context.Context, int) {
			<-block
			processed.Add(1)
		},
	})
	defer func() {
		close(block)
		s.Stop()
	}()

	done := make(chan struct{})
	go func() {
		s.Inject(1)
		s.Inject(2)
		s.Inject(3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Inject blocked")
	}
}
