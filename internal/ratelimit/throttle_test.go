package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type waitResult struct {
	delay time.Duration
	err   error
}

func waitAsync(th *Throttle, ctx context.Context, id string, interval time.Duration) <-chan waitResult {
	ch := make(chan waitResult, 1)
	go func() {
		delay, err := th.Wait(ctx, id, interval)
		ch <- waitResult{delay: delay, err: err}
	}()
	return ch
}

func TestThrottle_Wait(t *testing.T) {
	t.Run("first call is not delayed", func(t *testing.T) {
		th := NewThrottle(clockwork.NewFakeClock())

		delay, err := th.Wait(context.Background(), "client", 200*time.Millisecond)
		require.NoError(t, err)
		assert.Zero(t, delay)
		assert.Equal(t, 1, th.Len())
	})

	t.Run("back-to-back calls are spaced by the interval", func(t *testing.T) {
		clk := clockwork.NewFakeClock()
		th := NewThrottle(clk)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := th.Wait(ctx, "client", 200*time.Millisecond)
		require.NoError(t, err)

		clk.Advance(50 * time.Millisecond)
		done := waitAsync(th, ctx, "client", 200*time.Millisecond)

		require.NoError(t, clk.BlockUntilContext(ctx, 1))
		select {
		case <-done:
			t.Fatal("second call returned before its delay elapsed")
		default:
		}

		clk.Advance(150 * time.Millisecond)
		res := <-done
		require.NoError(t, res.err)
		assert.InDelta(t, float64(150*time.Millisecond), float64(res.delay), float64(time.Millisecond))
	})

	t.Run("queued calls each wait their own turn", func(t *testing.T) {
		clk := clockwork.NewFakeClock()
		th := NewThrottle(clk)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := th.Wait(ctx, "client", 100*time.Millisecond)
		require.NoError(t, err)

		second := waitAsync(th, ctx, "client", 100*time.Millisecond)
		require.NoError(t, clk.BlockUntilContext(ctx, 1))
		third := waitAsync(th, ctx, "client", 100*time.Millisecond)
		require.NoError(t, clk.BlockUntilContext(ctx, 2))

		clk.Advance(100 * time.Millisecond)
		res := <-second
		require.NoError(t, res.err)
		assert.InDelta(t, float64(100*time.Millisecond), float64(res.delay), float64(time.Millisecond))

		clk.Advance(100 * time.Millisecond)
		res = <-third
		require.NoError(t, res.err)
		assert.InDelta(t, float64(200*time.Millisecond), float64(res.delay), float64(time.Millisecond))
	})

	t.Run("calls spaced by the interval are not delayed", func(t *testing.T) {
		clk := clockwork.NewFakeClock()
		th := NewThrottle(clk)

		for i := 0; i < 5; i++ {
			delay, err := th.Wait(context.Background(), "client", 200*time.Millisecond)
			require.NoError(t, err)
			assert.Zero(t, delay, "call %d", i+1)
			clk.Advance(250 * time.Millisecond)
		}
	})

	t.Run("identifiers are independent", func(t *testing.T) {
		th := NewThrottle(clockwork.NewFakeClock())

		for _, id := range []string{"a", "b", "c"} {
			delay, err := th.Wait(context.Background(), id, time.Second)
			require.NoError(t, err)
			assert.Zero(t, delay)
		}
		assert.Equal(t, 3, th.Len())
	})

	t.Run("cancellation keeps the committed slot", func(t *testing.T) {
		clk := clockwork.NewFakeClock()
		th := NewThrottle(clk)

		_, err := th.Wait(context.Background(), "client", time.Second)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := waitAsync(th, ctx, "client", time.Second)
		require.NoError(t, clk.BlockUntilContext(context.Background(), 1))
		cancel()

		res := <-done
		assert.ErrorIs(t, res.err, context.Canceled)

		// The abandoned call still occupies the next slot.
		delay := th.reserve("client", time.Second)
		assert.InDelta(t, float64(2*time.Second), float64(delay), float64(time.Millisecond))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		th := NewThrottle(clockwork.NewFakeClock())

		_, err := th.Wait(context.Background(), "", time.Second)
		assert.ErrorIs(t, err, ErrEmptyIdentifier)

		_, err = th.Wait(context.Background(), "client", 0)
		assert.ErrorIs(t, err, ErrInvalidInterval)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = th.Wait(ctx, "client", time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, th.Len(), "a cancelled call must not reserve a slot")
	})
}

func TestThrottle_IntervalChange(t *testing.T) {
	tests := []struct {
		name   string
		before time.Duration
		after  time.Duration
		want   time.Duration
	}{
		{"longer interval waits the full new gap", 200 * time.Millisecond, 500 * time.Millisecond, 450 * time.Millisecond},
		{"shorter interval waits only the new gap", 500 * time.Millisecond, 200 * time.Millisecond, 150 * time.Millisecond},
		{"gap already exceeds the new interval", time.Second, 10 * time.Millisecond, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clockwork.NewFakeClock()
			th := NewThrottle(clk)

			require.Zero(t, th.reserve("client", tt.before))
			clk.Advance(50 * time.Millisecond)

			delay := th.reserve("client", tt.after)
			assert.InDelta(t, float64(tt.want), float64(delay), float64(time.Millisecond))
		})
	}

	t.Run("pending slot is honoured at the new interval", func(t *testing.T) {
		clk := clockwork.NewFakeClock()
		th := NewThrottle(clk)

		require.Zero(t, th.reserve("client", time.Second))
		require.Equal(t, time.Second, th.reserve("client", time.Second))

		// The second call runs at +1s, so the next one belongs at +1.5s.
		delay := th.reserve("client", 500*time.Millisecond)
		assert.InDelta(t, float64(1500*time.Millisecond), float64(delay), float64(time.Millisecond))
	})

	t.Run("spacing holds after the change", func(t *testing.T) {
		clk := clockwork.NewFakeClock()
		th := NewThrottle(clk)

		require.Zero(t, th.reserve("client", 200*time.Millisecond))
		clk.Advance(50 * time.Millisecond)
		require.InDelta(t, float64(450*time.Millisecond), float64(th.reserve("client", 500*time.Millisecond)), float64(time.Millisecond))

		// Next call at the same instant queues behind the pending slot.
		delay := th.reserve("client", 500*time.Millisecond)
		assert.InDelta(t, float64(950*time.Millisecond), float64(delay), float64(time.Millisecond))
	})
}

func TestThrottle_Sweep(t *testing.T) {
	clk := clockwork.NewFakeClock()
	th := NewThrottle(clk)

	_, err := th.Wait(context.Background(), "old", time.Second)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = th.Wait(context.Background(), "recent", time.Second)
	require.NoError(t, err)

	removed := th.Sweep(clk.Now(), time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, th.Len())
}
