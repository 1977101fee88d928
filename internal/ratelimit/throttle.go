package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/admitd/admitd/internal/metrics"
)

// timerResolution is the smallest delay Throttle bothers to wait for.
const timerResolution = time.Millisecond

// Throttle spaces successive calls from the same identifier by a minimum
// interval. It never rejects a call; it only delays it.
type Throttle struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]*throttleEntry
}

// throttleEntry holds the spacing state for one identifier.
type throttleEntry struct {
	limiter  *rate.Limiter
	interval time.Duration
	lastCall time.Time // when the most recently admitted call was scheduled to run
}

// NewThrottle creates a Throttle. A nil clock means the real clock.
func NewThrottle(clk clockwork.Clock) *Throttle {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Throttle{
		clock:   clk,
		entries: make(map[string]*throttleEntry),
	}
}

// Wait blocks until identifier may make its next call, given that calls must
// be at least minInterval apart, and returns the delay it imposed.
//
// The call's slot is committed before waiting. If ctx is cancelled during the
// wait, Wait returns ctx.Err() and the slot stays taken.
func (t *Throttle) Wait(ctx context.Context, identifier string, minInterval time.Duration) (time.Duration, error) {
	if identifier == "" {
		return 0, ErrEmptyIdentifier
	}
	if minInterval <= 0 {
		return 0, ErrInvalidInterval
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	delay := t.reserve(identifier, minInterval)
	metrics.RecordThrottleDelay(delay)
	if delay == 0 {
		return 0, nil
	}

	select {
	case <-t.clock.After(delay):
		return delay, nil
	case <-ctx.Done():
		return delay, ctx.Err()
	}
}

// reserve takes the next slot for identifier and returns how long the caller
// must wait for it.
func (t *Throttle) reserve(identifier string, minInterval time.Duration) time.Duration {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	at := now
	e, ok := t.entries[identifier]
	if !ok {
		e = &throttleEntry{
			limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
			interval: minInterval,
		}
		t.entries[identifier] = e
	} else if e.interval != minInterval {
		// Tokens earned at the old rate do not carry over: the next slot is
		// measured from the last committed one at the new interval.
		e.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
		e.limiter.ReserveN(e.lastCall, 1)
		e.interval = minInterval
		if e.lastCall.After(now) {
			at = e.lastCall
		}
	}

	delay := e.limiter.ReserveN(at, 1).DelayFrom(now)
	if delay < timerResolution {
		delay = 0
	}
	e.lastCall = now.Add(delay)
	return delay
}

// Len returns the number of identifiers being tracked.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sweep forgets identifiers whose last call is more than retention before now.
func (t *Throttle) Sweep(now time.Time, retention time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, e := range t.entries {
		if now.Sub(e.lastCall) > retention {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}
