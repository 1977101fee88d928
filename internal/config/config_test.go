package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitd/admitd/internal/ratelimit"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 70*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)

	assert.True(t, cfg.Rate.Enabled)
	assert.Equal(t, "api", cfg.Rate.Preset)
	assert.False(t, cfg.Rate.TrustProxy)
	assert.Equal(t, "X-API-Key", cfg.Rate.APIKeyHeader)
	assert.Empty(t, cfg.Rate.TrustedProxies)

	assert.Equal(t, ratelimit.DefaultSweepInterval, cfg.Sweeper.Interval)
	assert.Equal(t, ratelimit.DefaultRetention, cfg.Sweeper.Retention)

	assert.Equal(t, 256, cfg.Identifiers.MaxLength)
	assert.Empty(t, cfg.Identifiers.Blocked)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADMITD_SERVER_HOST", "127.0.0.1")
	t.Setenv("ADMITD_SERVER_PORT", "9000")
	t.Setenv("ADMITD_SERVER_READ_TIMEOUT", "15s")
	t.Setenv("ADMITD_APP_ENV", "production")
	t.Setenv("ADMITD_APP_LOG_LEVEL", "debug")
	t.Setenv("ADMITD_RATE_PRESET", "Search")
	t.Setenv("ADMITD_RATE_TRUST_PROXY", "true")
	t.Setenv("ADMITD_RATE_TRUSTED_PROXIES", "10.0.0.1,10.0.0.2")
	t.Setenv("ADMITD_SWEEPER_INTERVAL", "30s")
	t.Setenv("ADMITD_IDENTIFIERS_MAX_LENGTH", "64")
	t.Setenv("ADMITD_IDENTIFIERS_BLOCKED", "anonymous,guest")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.App.IsProduction())
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.True(t, cfg.Rate.TrustProxy)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Rate.TrustedProxies)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, 64, cfg.Identifiers.MaxLength)
	assert.Equal(t, []string{"anonymous", "guest"}, cfg.Identifiers.Blocked)

	policy, err := cfg.Rate.Policy()
	require.NoError(t, err)
	assert.Equal(t, 200, policy.MaxRequests)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admitd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
rate:
  enabled: false
  preset: upload
sweeper:
  retention: 2h
`), 0o600))

	t.Setenv("ADMITD_SERVER_PORT", "7071")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 7071, cfg.Server.Port, "environment wins over the file")
	assert.False(t, cfg.Rate.Enabled)
	assert.Equal(t, "upload", cfg.Rate.Preset)
	assert.Equal(t, 2*time.Hour, cfg.Sweeper.Retention)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"port not a number", "ADMITD_SERVER_PORT", "eighty", "failed to decode config"},
		{"port out of range", "ADMITD_SERVER_PORT", "70000", "server.port"},
		{"bad duration", "ADMITD_SERVER_WRITE_TIMEOUT", "soon", "failed to decode config"},
		{"zero duration", "ADMITD_SWEEPER_INTERVAL", "0s", "sweeper.interval"},
		{"unknown preset", "ADMITD_RATE_PRESET", "payments", "rate.preset"},
		{"zero identifier length", "ADMITD_IDENTIFIERS_MAX_LENGTH", "0", "identifiers.max_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load(viper.New(), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: -1}, Rate: RateLimitConfig{Preset: "nope"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "server.read_timeout")
	assert.Contains(t, err.Error(), "sweeper.retention")
	assert.ErrorIs(t, err, ratelimit.ErrUnknownPreset)
}

func TestConfig_Address(t *testing.T) {
	assert.Equal(t, "localhost:3000", ServerConfig{Host: "localhost", Port: 3000}.Address())
	assert.Equal(t, "[::1]:3000", ServerConfig{Host: "::1", Port: 3000}.Address())
}

func TestConfig_Env(t *testing.T) {
	tests := []struct {
		env  string
		dev  bool
		prod bool
	}{
		{"development", true, false},
		{"dev", true, false},
		{"production", false, true},
		{"prod", false, true},
		{"staging", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			app := AppConfig{Env: tt.env}
			assert.Equal(t, tt.dev, app.IsDevelopment())
			assert.Equal(t, tt.prod, app.IsProduction())
		})
	}
}
