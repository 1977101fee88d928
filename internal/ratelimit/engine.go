package ratelimit

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/admitd/admitd/internal/metrics"
	"github.com/admitd/admitd/pkg/logger"
)

// Limiter makes admission decisions against a Store. It is safe for
// concurrent use; every decision is taken under the store lock.
type Limiter struct {
	store *Store
	clock clockwork.Clock
	log   *logger.Logger
}

// New creates a Limiter. A nil clock means the real clock and a nil logger
// discards output.
func New(store *Store, clk clockwork.Clock, log *logger.Logger) *Limiter {
	if store == nil {
		store = NewStore()
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Limiter{
		store: store,
		clock: clk,
		log:   log,
	}
}

// Store returns the store backing the limiter.
func (l *Limiter) Store() *Store {
	return l.store
}

// Check decides whether identifier may proceed under cfg and records the
// admission when it may.
func (l *Limiter) Check(identifier string, cfg Config) (Result, error) {
	if err := validate(identifier, cfg); err != nil {
		return Result{}, err
	}

	now := l.clock.Now()
	var (
		res     Result
		blocked bool
		count   int
	)

	l.store.Update(KeyFor(identifier, cfg), func(e *Entry, found bool) bool {
		if !found {
			e.WindowStart = now
		}

		// An active lockout wins over window expiry.
		if e.BlockedAt(now) {
			res = deniedUntil(cfg, e.BlockedUntil, now)
			return false
		}

		if !e.BlockedUntil.IsZero() || now.Sub(e.WindowStart) >= cfg.Window {
			e.Count = 0
			e.WindowStart = now
			e.BlockedUntil = time.Time{}
		}

		if e.Count >= cfg.MaxRequests {
			resetAt := e.WindowStart.Add(cfg.Window)
			if cfg.BlockDuration > 0 {
				e.BlockedUntil = now.Add(cfg.BlockDuration)
				resetAt = e.BlockedUntil
				blocked = true
			}
			count = e.Count
			res = deniedUntil(cfg, resetAt, now)
			return true
		}

		e.Count++
		res = Result{
			Allowed:   true,
			Remaining: cfg.MaxRequests - e.Count,
			Limit:     cfg.MaxRequests,
			ResetAt:   e.WindowStart.Add(cfg.Window),
		}
		return true
	})

	metrics.RecordAdmission(cfg.label(), res.Allowed)
	if count > 0 {
		l.log.Warn("rate limit exceeded",
			"identifier", maskIdentifier(identifier),
			"policy", cfg.label(),
			"count", count,
			"limit", cfg.MaxRequests,
			"retry_after", res.RetryAfter,
		)
	}
	if blocked {
		metrics.RecordBlock(cfg.label())
		l.log.Info("identifier blocked",
			"identifier", maskIdentifier(identifier),
			"policy", cfg.label(),
			"blocked_until", res.ResetAt,
		)
	}

	return res, nil
}

// Status previews the decision Check would make without changing any state.
func (l *Limiter) Status(identifier string, cfg Config) (Result, error) {
	if err := validate(identifier, cfg); err != nil {
		return Result{}, err
	}

	now := l.clock.Now()
	fresh := Result{
		Allowed:   true,
		Remaining: cfg.MaxRequests,
		Limit:     cfg.MaxRequests,
		ResetAt:   now.Add(cfg.Window),
	}

	e, ok := l.store.Get(KeyFor(identifier, cfg))
	switch {
	case !ok:
		return fresh, nil
	case e.BlockedAt(now):
		return deniedUntil(cfg, e.BlockedUntil, now), nil
	case !e.BlockedUntil.IsZero() || now.Sub(e.WindowStart) >= cfg.Window:
		return fresh, nil
	}

	res := Result{
		Allowed:   e.Count < cfg.MaxRequests,
		Remaining: max(0, cfg.MaxRequests-e.Count),
		Limit:     cfg.MaxRequests,
		ResetAt:   e.WindowStart.Add(cfg.Window),
	}
	if !res.Allowed {
		res.RetryAfter = res.ResetAt.Sub(now)
	}
	return res, nil
}

// RecordSuccess refunds one admission when cfg skips successful requests.
func (l *Limiter) RecordSuccess(identifier string, cfg Config) error {
	if err := validate(identifier, cfg); err != nil {
		return err
	}
	if cfg.SkipSuccessfulRequests {
		l.refund(identifier, cfg, "success")
	}
	return nil
}

// RecordFailure refunds one admission when cfg skips failed requests.
func (l *Limiter) RecordFailure(identifier string, cfg Config) error {
	if err := validate(identifier, cfg); err != nil {
		return err
	}
	if cfg.SkipFailedRequests {
		l.refund(identifier, cfg, "failure")
	}
	return nil
}

// Reset forgets everything recorded for identifier under cfg.
func (l *Limiter) Reset(identifier string, cfg Config) error {
	if err := validate(identifier, cfg); err != nil {
		return err
	}
	l.store.Delete(KeyFor(identifier, cfg))
	return nil
}

// refund decrements the count, never below zero.
func (l *Limiter) refund(identifier string, cfg Config, outcome string) {
	refunded := false
	l.store.Update(KeyFor(identifier, cfg), func(e *Entry, found bool) bool {
		if !found || e.Count == 0 {
			return false
		}
		e.Count--
		refunded = true
		return true
	})
	if refunded {
		metrics.RecordRefund(cfg.label(), outcome)
	}
}

func deniedUntil(cfg Config, resetAt, now time.Time) Result {
	return Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      cfg.MaxRequests,
		ResetAt:    resetAt,
		RetryAfter: resetAt.Sub(now),
	}
}

func validate(identifier string, cfg Config) error {
	if identifier == "" {
		return ErrEmptyIdentifier
	}
	return cfg.Validate()
}

// maskIdentifier keeps the first and last four characters of an identifier
// so that logs stay useful without recording it in full.
func maskIdentifier(identifier string) string {
	runes := []rune(identifier)
	if len(runes) <= 8 {
		return "***"
	}
	return string(runes[:4]) + "***" + string(runes[len(runes)-4:])
}
