// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/admitd/admitd/internal/ratelimit"
)

// EnvPrefix prefixes every environment override, e.g. ADMITD_SERVER_PORT.
const EnvPrefix = "ADMITD"

// Config holds all configuration for the application.
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	Rate        RateLimitConfig  `mapstructure:"rate"`
	Sweeper     SweeperConfig    `mapstructure:"sweeper"`
	Identifiers IdentifierConfig `mapstructure:"identifiers"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// IsDevelopment returns true if the app is running in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "dev"
}

// IsProduction returns true if the app is running in production mode.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RateLimitConfig controls admission of the service's own API traffic.
type RateLimitConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Preset         string   `mapstructure:"preset"`
	TrustProxy     bool     `mapstructure:"trust_proxy"`
	APIKeyHeader   string   `mapstructure:"api_key_header"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// Policy resolves the configured preset.
func (r RateLimitConfig) Policy() (ratelimit.Config, error) {
	name, err := ratelimit.ParsePresetName(r.Preset)
	if err != nil {
		return ratelimit.Config{}, err
	}
	return ratelimit.Preset(name)
}

// SweeperConfig holds idle-entry eviction timing.
type SweeperConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

// IdentifierConfig bounds the identifiers callers may submit.
type IdentifierConfig struct {
	MaxLength int      `mapstructure:"max_length"`
	Blocked   []string `mapstructure:"blocked"`
}

// SetDefaults registers every key with its default so that environment
// overrides are picked up on unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "70s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("rate.enabled", true)
	v.SetDefault("rate.preset", string(ratelimit.PresetAPI))
	v.SetDefault("rate.trust_proxy", false)
	v.SetDefault("rate.api_key_header", "X-API-Key")
	v.SetDefault("rate.trusted_proxies", []string{})

	v.SetDefault("sweeper.interval", ratelimit.DefaultSweepInterval.String())
	v.SetDefault("sweeper.retention", ratelimit.DefaultRetention.String())

	v.SetDefault("identifiers.max_length", 256)
	v.SetDefault("identifiers.blocked", []string{})
}

// Load builds a Config from defaults, the optional config file and
// ADMITD_* environment variables, in increasing order of precedence. Flags
// bound to v beforehand win over all of them.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"sweeper.interval", c.Sweeper.Interval},
		{"sweeper.retention", c.Sweeper.Retention},
	} {
		if d.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.key, d.val))
		}
	}
	if c.Identifiers.MaxLength <= 0 {
		errs = append(errs, fmt.Errorf("identifiers.max_length must be positive, got %d", c.Identifiers.MaxLength))
	}
	if _, err := c.Rate.Policy(); err != nil {
		errs = append(errs, fmt.Errorf("rate.preset: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
