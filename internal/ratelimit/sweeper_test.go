package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSweeper_Defaults(t *testing.T) {
	s := NewSweeper(nil, nil, SweeperConfig{})

	assert.Equal(t, DefaultSweepInterval, s.Config().Interval)
	assert.Equal(t, DefaultRetention, s.Config().Retention)
	assert.False(t, s.Running())
}

func TestSweeper_SweepOnce(t *testing.T) {
	clk := clockwork.NewFakeClock()
	limiter := New(NewStore(), clk, nil)
	throttle := NewThrottle(clk)
	sweeper := NewSweeper(clk, nil, SweeperConfig{}, limiter.Store(), throttle)

	open := Config{Window: time.Minute, MaxRequests: 5}
	blocking := Config{Window: time.Minute, MaxRequests: 1, BlockDuration: 3 * time.Hour}

	_, err := limiter.Check("idle", open)
	require.NoError(t, err)
	_, err = limiter.Check("blocked", blocking)
	require.NoError(t, err)
	_, err = limiter.Check("blocked", blocking)
	require.NoError(t, err)
	_, err = throttle.Wait(context.Background(), "idle", time.Second)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = limiter.Check("active", open)
	require.NoError(t, err)

	removed := sweeper.SweepOnce()
	assert.Equal(t, 2, removed, "idle limiter entry and idle throttle entry")

	_, ok := limiter.Store().Get(KeyFor("idle", open))
	assert.False(t, ok, "idle entry should be evicted")
	_, ok = limiter.Store().Get(KeyFor("blocked", blocking))
	assert.True(t, ok, "an active block must survive a sweep")
	_, ok = limiter.Store().Get(KeyFor("active", open))
	assert.True(t, ok)
	assert.Zero(t, throttle.Len())

	// Once the block lapses the old entry goes on the next pass.
	clk.Advance(time.Hour + time.Minute)
	assert.Equal(t, 2, sweeper.SweepOnce())
	assert.Zero(t, limiter.Store().Len())
}

func TestSweeper_StartStop(t *testing.T) {
	clk := clockwork.NewFakeClock()
	store := NewStore()
	limiter := New(store, clk, nil)
	sweeper := NewSweeper(clk, nil, SweeperConfig{Interval: 5 * time.Minute, Retention: time.Hour}, store)

	_, err := limiter.Check("idle", Config{Window: time.Minute, MaxRequests: 1})
	require.NoError(t, err)

	sweeper.Start()
	sweeper.Start() // no-op
	assert.True(t, sweeper.Running())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntilContext(ctx, 1))

	clk.Advance(61 * time.Minute)
	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, 2*time.Second, 10*time.Millisecond, "entry should be evicted by the background sweep")

	sweeper.Stop()
	sweeper.Stop() // no-op
	assert.False(t, sweeper.Running())
}
