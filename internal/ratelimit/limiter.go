// Package ratelimit provides process-local admission control: fixed-window
// request accounting per identifier with optional lockouts, a catalog of
// named presets, a guarded-execution wrapper, call-spacing throttling and a
// background sweeper that bounds memory.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnknownPreset is returned when a preset name is not in the catalog.
	ErrUnknownPreset = errors.New("unknown rate limit preset")

	// ErrInvalidConfig is returned for a config that cannot produce sensible accounting.
	ErrInvalidConfig = errors.New("invalid rate limit config")

	// ErrEmptyIdentifier is returned when no identifier is supplied.
	ErrEmptyIdentifier = errors.New("identifier is required")

	// ErrInvalidInterval is returned when a throttle interval is not positive.
	ErrInvalidInterval = errors.New("throttle interval must be positive")
)

// Config describes one admission policy.
type Config struct {
	Name                   string        // Telemetry label; not part of the key
	Window                 time.Duration // Length of the counting window
	MaxRequests            int           // Admissions allowed per window
	SkipSuccessfulRequests bool          // Refund an admission once it succeeds
	SkipFailedRequests     bool          // Refund an admission once it fails
	BlockDuration          time.Duration // Lockout applied on exhaustion; 0 disables
}

// Validate reports whether the config can be used for accounting.
func (c Config) Validate() error {
	switch {
	case c.Window <= 0:
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	case c.MaxRequests <= 0:
		return fmt.Errorf("%w: max requests must be positive, got %d", ErrInvalidConfig, c.MaxRequests)
	case c.BlockDuration < 0:
		return fmt.Errorf("%w: block duration must not be negative, got %s", ErrInvalidConfig, c.BlockDuration)
	}
	return nil
}

// label returns the metrics label for the config.
func (c Config) label() string {
	if c.Name == "" {
		return "custom"
	}
	return c.Name
}

// Key identifies one accounting entry. The same identifier checked under
// configs with different windows or limits occupies independent entries.
type Key struct {
	Identifier  string
	Window      time.Duration
	MaxRequests int
}

// KeyFor derives the store key for an identifier under a config.
func KeyFor(identifier string, cfg Config) Key {
	return Key{
		Identifier:  identifier,
		Window:      cfg.Window,
		MaxRequests: cfg.MaxRequests,
	}
}

// Entry is the accounting state for one key.
type Entry struct {
	Count        int       // Admissions recorded in the current window
	WindowStart  time.Time // When the current window began
	BlockedUntil time.Time // Zero when no lockout is in force
}

// BlockedAt reports whether a lockout is active at now.
func (e Entry) BlockedAt(now time.Time) bool {
	return !e.BlockedUntil.IsZero() && e.BlockedUntil.After(now)
}

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool          // Whether the request is allowed
	Remaining  int           // Admissions left in the current window
	Limit      int           // The configured limit
	ResetAt    time.Time     // When the window or the lockout ends
	RetryAfter time.Duration // Suggested wait before retrying (only when denied)
}

// ExceededError reports a denied admission together with the decision that
// caused it.
type ExceededError struct {
	Result Result
}

// Error implements error.
func (e *ExceededError) Error() string {
	secs := int(math.Ceil(e.Result.RetryAfter.Seconds()))
	return fmt.Sprintf("rate limit exceeded, try again in %d seconds", secs)
}

// Unwrap lets errors.Is match ErrRateLimitExceeded.
func (e *ExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}
