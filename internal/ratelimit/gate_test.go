package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateConcurrencyCap(t *testing.T) {
	g := New("test", 0, 0, 2)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))
	assert.Equal(t, 2, g.InFlight())

	// Third acquire must block until a slot frees.
	var admitted atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, g.Acquire(ctx))
		admitted.Store(true)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, admitted.Load())

	g.Release()
	wg.Wait()
	assert.True(t, admitted.Load())
	assert.Equal(t, 2, g.InFlight())
}

func TestGateAcquireCancelled(t *testing.T) {
	g := New("test", 0, 0, 1)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InFlight())
}

func TestGateWindowTier(t *testing.T) {
	// Two requests per 100ms window: the first two admit from the burst, the
	// third waits for a token refill.
	g := New("test", 2, 100*time.Millisecond, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		require.NoError(t, g.Acquire(ctx))
		g.Release()
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, g.Acquire(ctx))
	g.Release()
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestGateDisabledTiers(t *testing.T) {
	g := New("test", 0, 0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Acquire(context.Background()))
		g.Release()
	}
	assert.Equal(t, 0, g.InFlight())
}
