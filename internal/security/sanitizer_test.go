package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizer_Validate(t *testing.T) {
	sanitizer := NewSanitizer(DefaultConfig())

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"plain", "user:42", nil},
		{"email", "alice@example.com", nil},
		{"ip", "203.0.113.7", nil},
		{"unicode", "usuário-ß", nil},
		{"empty left to engine", "", nil},
		{"max length", strings.Repeat("a", 256), nil},
		{"too long", strings.Repeat("a", 257), ErrIdentifierTooLong},
		{"newline", "user\n42", ErrInvalidIdentifier},
		{"null byte", "user\x0042", ErrInvalidIdentifier},
		{"escape", "\x1b[31muser", ErrInvalidIdentifier},
		{"invalid utf8", "user\xff", ErrInvalidIdentifier},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := sanitizer.Validate(tc.id)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSanitizer_Blocked(t *testing.T) {
	sanitizer := NewSanitizer(Config{
		MaxLength: 64,
		Blocked:   []string{"Anonymous", "root"},
	})

	assert.ErrorIs(t, sanitizer.Validate("anonymous"), ErrBlockedIdentifier)
	assert.ErrorIs(t, sanitizer.Validate("ROOT"), ErrBlockedIdentifier)
	assert.NoError(t, sanitizer.Validate("rooted"))
}

func TestSanitizer_CustomLength(t *testing.T) {
	sanitizer := NewSanitizer(Config{MaxLength: 8})

	assert.NoError(t, sanitizer.Validate("12345678"))
	assert.ErrorIs(t, sanitizer.Validate("123456789"), ErrIdentifierTooLong)
}

func TestSanitizer_ZeroLengthUsesDefault(t *testing.T) {
	sanitizer := NewSanitizer(Config{})

	assert.NoError(t, sanitizer.Validate(strings.Repeat("a", 256)))
	assert.ErrorIs(t, sanitizer.Validate(strings.Repeat("a", 257)), ErrIdentifierTooLong)
}

func TestSanitizer_Valid(t *testing.T) {
	sanitizer := NewSanitizer(DefaultConfig())

	assert.True(t, sanitizer.Valid("key-123"))
	assert.False(t, sanitizer.Valid(""))
	assert.False(t, sanitizer.Valid("key\t123"))
}
