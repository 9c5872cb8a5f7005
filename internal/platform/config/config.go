// Package config defines service configuration and its loading rules.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// defaultRosterURL is the published Google Sheets CSV export of the roster.
const defaultRosterURL = "https://docs.google.com/spreadsheets/d/1fdUtE6p0TppmMAQi4Uv206ba8IxXIx8C/export?format=csv"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Timezone is the congregation's IANA timezone; service-date
	// resolution and birthday windows run in it.
	Timezone string `koanf:"timezone"`

	// RosterURL is the published CSV export the roster is fetched from.
	RosterURL string `koanf:"roster_url"`

	// RosterRefreshSeconds is the periodic refresh interval.
	RosterRefreshSeconds int `koanf:"roster_refresh_seconds"`

	// FetchTimeoutSeconds bounds one roster fetch.
	FetchTimeoutSeconds int `koanf:"fetch_timeout_seconds"`

	// StorageBackend selects row storage: memory or postgres.
	StorageBackend string `koanf:"storage_backend"`

	// DatabaseURL is the postgres DSN; required when StorageBackend is
	// postgres.
	DatabaseURL string `koanf:"database_url"`

	// AuthMode selects admin authentication: jwt or bypass. Bypass grants
	// admin to every request and exists for local development only.
	AuthMode string `koanf:"auth_mode"`

	// BypassSubject is the subject attributed to requests in bypass mode.
	BypassSubject string `koanf:"bypass_subject"`

	// JWT verification knobs, used when AuthMode is jwt.
	JWTIssuer              string `koanf:"jwt_issuer"`
	JWTAudience            string `koanf:"jwt_audience"`
	JWTJWKSURL             string `koanf:"jwt_jwks_url"`
	JWTClockSkew           string `koanf:"jwt_clock_skew"`
	JWTJWKSRefreshInterval string `koanf:"jwt_jwks_refresh_interval"`
}

// JWTConfig configures JWT verification against a JWKS endpoint.
type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string

	ClockSkew              time.Duration
	JWKSRefreshInterval    time.Duration
	JWKSMinRefreshInterval time.Duration

	HTTPTimeout time.Duration
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":8080",
		Timezone:             "America/Santiago",
		RosterURL:            defaultRosterURL,
		RosterRefreshSeconds: 30,
		FetchTimeoutSeconds:  30,
		StorageBackend:       "memory",
		AuthMode:             "jwt",
		BypassSubject:        "dev-admin",
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ATTEND_CONFIG is set
//  3. env (prefix ATTEND_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ATTEND_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: ATTEND_ADDR, ATTEND_ROSTER_URL, ...
	// Map env keys like ATTEND_ROSTER_URL -> roster_url (flat keys).
	envProvider := env.Provider("ATTEND_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "attend_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.Addr == "" {
		return nil, errors.New("addr must not be empty")
	}
	if cfg.StorageBackend != "memory" && cfg.StorageBackend != "postgres" {
		return nil, fmt.Errorf("unknown storage_backend: %s", cfg.StorageBackend)
	}
	if cfg.StorageBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, errors.New("database_url is required with the postgres backend")
	}
	if cfg.AuthMode != "jwt" && cfg.AuthMode != "bypass" {
		return nil, fmt.Errorf("unknown auth_mode: %s", cfg.AuthMode)
	}
	return &cfg, nil
}

// JWT assembles the JWT verification sub-config. Issuer, audience and JWKS
// URL are required in jwt mode; duration knobs have predictable defaults.
func (c *Config) JWT() (JWTConfig, error) {
	if c.JWTIssuer == "" || c.JWTAudience == "" || c.JWTJWKSURL == "" {
		return JWTConfig{}, errors.New("missing required settings: jwt_issuer, jwt_audience, jwt_jwks_url")
	}

	cfg := JWTConfig{
		Issuer:    c.JWTIssuer,
		Audience:  c.JWTAudience,
		JWKSURL:   c.JWTJWKSURL,
		ClockSkew: 30 * time.Second,
		// Refresh periodically to pick up key rotation even if an old key
		// is still cached.
		JWKSRefreshInterval: 5 * time.Minute,
		// Bound refresh frequency when a token presents an unknown kid.
		JWKSMinRefreshInterval: 10 * time.Second,
		HTTPTimeout:            5 * time.Second,
	}

	if c.JWTClockSkew != "" {
		d, err := time.ParseDuration(c.JWTClockSkew)
		if err != nil {
			return JWTConfig{}, fmt.Errorf("jwt_clock_skew must be a duration (e.g. 30s): %w", err)
		}
		cfg.ClockSkew = d
	}
	if c.JWTJWKSRefreshInterval != "" {
		d, err := time.ParseDuration(c.JWTJWKSRefreshInterval)
		if err != nil {
			return JWTConfig{}, fmt.Errorf("jwt_jwks_refresh_interval must be a duration (e.g. 5m): %w", err)
		}
		cfg.JWKSRefreshInterval = d
	}

	return cfg, nil
}

// RosterRefreshInterval returns the refresh knob as a duration.
func (c *Config) RosterRefreshInterval() time.Duration {
	return time.Duration(c.RosterRefreshSeconds) * time.Second
}

// FetchTimeout returns the fetch timeout knob as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}
