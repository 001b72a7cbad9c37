package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lexwatch/dje-monitor/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

func TestLimiter_FirstTokenImmediate(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 1})

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_EnforcesInterval(t *testing.T) {
	// 10 rps = one token every 100ms.
	l := New(Config{RequestsPerSecond: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_BoundsConcurrentWorkers(t *testing.T) {
	// Ten workers, one request each, at 2 rps: the tenth token is not
	// available before ~4.5s, regardless of concurrency.
	l := New(Config{RequestsPerSecond: 2, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Wait(ctx))
		}()
	}
	wg.Wait()

	require.GreaterOrEqual(t, time.Since(start), 4500*time.Millisecond)
}

func TestLimiter_ZeroRateIsUnlimited(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0.1, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx)) // burst token
	require.Error(t, l.Wait(ctx))   // next token is 10s away
}
