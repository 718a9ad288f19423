package wiring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWireEmitFansOutInSolderOrder(t *testing.T) {
	w := NewWire[int]("test-wire")
	require.Equal(t, "test-wire", w.Name())

	var order []string
	w.SolderToFunc(func(context.Context, int) { order = append(order, "a") })
	w.SolderToFunc(func(context.Context, int) { order = append(order, "b") })

	w.Emit(context.Background(), 1)
	require.Equal(t, []string{"a", "b"}, order)
}

func TestWireSolderToDeliversInOrder(t *testing.T) {
	var got []int
	s := New(Config[int]{
		Name:     "consumer",
		Policy:   Sequential,
		Capacity: 8,
		Handler: func(_ context.Context, v int) {
			got = append(got, v)
		},
	})
	defer s.Stop()

	w := NewWire[int]("w")
	w.SolderTo(s)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w.Emit(ctx, i)
	}
	require.NoError(t, s.Flush(ctx))
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestWireSolderToInjectNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	s := New(Config[int]{
		Name:     "slow-consumer",
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

	w := NewWire[int]("w")
	w.SolderToInject(s)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			w.Emit(context.Background(), i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit via SolderToInject blocked")
	}
}
