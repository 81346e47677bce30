package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jitter absorbs timer granularity on loaded CI machines.
const jitter = 2 * time.Millisecond

func TestPerHostGate_Spacing(t *testing.T) {
	const interval = 15 * time.Millisecond
	g := NewPerHostGate(interval)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Acquire(ctx, "a.example"))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, interval-jitter, "gap %d too small: %v", i, gap)
	}
	assert.Equal(t, int64(8), g.Stats().Grants)
	assert.Equal(t, 1, g.Stats().Hosts)
}

func TestPerHostGate_HostsIndependent(t *testing.T) {
	g := NewPerHostGate(200 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx, "a"))
	start := time.Now()
	require.NoError(t, g.Acquire(ctx, "b"))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "different host must not wait")
	assert.Equal(t, 2, g.Stats().Hosts)
}

func TestPerHostGate_Disabled(t *testing.T) {
	g := NewPerHostGate(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Acquire(context.Background(), "a"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPerHostGate_ContextCancellation(t *testing.T) {
	g := NewPerHostGate(time.Hour)
	require.NoError(t, g.Acquire(context.Background(), "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGlobalGate_Throughput(t *testing.T) {
	g := NewGlobalGate(100) // 10ms spacing
	assert.Equal(t, 10*time.Millisecond, g.Interval())

	start := time.Now()
	for i := 0; i < 6; i++ {
		require.NoError(t, g.Acquire(context.Background()))
	}
	// first grant is immediate, five more at 10ms spacing
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond-jitter)
	assert.Positive(t, g.Stats().Delayed)
}

func TestGlobalGate_SpansHosts(t *testing.T) {
	gov := NewGovernor(0, 50) // 20ms global spacing, no per-host spacing
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, gov.Wait(ctx, "a"))
	require.NoError(t, gov.Wait(ctx, "b"))
	require.NoError(t, gov.Wait(ctx, "c"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond-jitter)
}

func TestGovernor_HostSpacingOnly(t *testing.T) {
	gov := NewGovernor(30*time.Millisecond, 0)
	ctx := context.Background()

	require.NoError(t, gov.Wait(ctx, "a"))
	start := time.Now()
	require.NoError(t, gov.Wait(ctx, "a"))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond-jitter)
	assert.Equal(t, int64(2), gov.Host.Stats().Grants)
	assert.Equal(t, int64(2), gov.Global.Stats().Grants)
}

func TestGovernor_HostSpacingUnderGlobalLimit(t *testing.T) {
	const hostInterval = 20 * time.Millisecond
	gov := NewGovernor(hostInterval, 100) // 10ms global spacing
	ctx := context.Background()

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, gov.Wait(ctx, "a.example"))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	// other hosts compete for the global slots in between
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, gov.Wait(ctx, string(rune('b'+i))+".example"))
		}(i)
	}
	wg.Wait()

	require.Len(t, times, 4)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, hostInterval-jitter, "gap %d too small: %v", i, gap)
	}
	assert.Equal(t, int64(12), gov.Global.Stats().Grants)
	assert.Equal(t, 9, gov.Host.Stats().Hosts)
}

func TestGovernor_DeadlineDuringWait(t *testing.T) {
	gov := NewGovernor(time.Hour, 1)
	require.NoError(t, gov.Wait(context.Background(), "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, gov.Wait(ctx, "a"), context.DeadlineExceeded)
	assert.Equal(t, int64(1), gov.Host.Stats().Grants)
	assert.Equal(t, int64(1), gov.Global.Stats().Grants)
}

func TestGovernor_CancelledBeforeWait(t *testing.T) {
	gov := NewGovernor(time.Hour, 1)
	require.NoError(t, gov.Wait(context.Background(), "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, gov.Wait(ctx, "a"), context.Canceled)
	assert.Equal(t, int64(1), gov.Global.Stats().Grants, "a done context must not take a slot")
}
