// Package security validates caller-supplied identifiers before they reach
// the admission engine.
package security

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation errors
var (
	ErrIdentifierTooLong = errors.New("identifier exceeds maximum length")
	ErrInvalidIdentifier = errors.New("identifier contains invalid characters")
	ErrBlockedIdentifier = errors.New("identifier is blocked")
)

// Config holds sanitizer configuration.
type Config struct {
	MaxLength int      // Maximum identifier length in bytes
	Blocked   []string // Identifiers that are always rejected
}

// DefaultConfig returns the default sanitizer configuration.
func DefaultConfig() Config {
	return Config{
		MaxLength: 256,
	}
}

// Sanitizer validates identifiers.
type Sanitizer struct {
	config  Config
	blocked map[string]bool
}

// NewSanitizer creates a new identifier sanitizer.
func NewSanitizer(cfg Config) *Sanitizer {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultConfig().MaxLength
	}

	blocked := make(map[string]bool, len(cfg.Blocked))
	for _, id := range cfg.Blocked {
		blocked[strings.ToLower(id)] = true
	}

	return &Sanitizer{
		config:  cfg,
		blocked: blocked,
	}
}

// Validate checks that id is safe to use as a key. Empty identifiers pass
// through untouched; the engine owns that rule.
func (s *Sanitizer) Validate(id string) error {
	if id == "" {
		return nil
	}

	if len(id) > s.config.MaxLength {
		return ErrIdentifierTooLong
	}

	if !utf8.ValidString(id) {
		return ErrInvalidIdentifier
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return ErrInvalidIdentifier
		}
	}

	if s.blocked[strings.ToLower(id)] {
		return ErrBlockedIdentifier
	}

	return nil
}

// Valid reports whether id is non-empty and passes Validate.
func (s *Sanitizer) Valid(id string) bool {
	return id != "" && s.Validate(id) == nil
}
