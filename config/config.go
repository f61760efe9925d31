// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Settings holds everything a deployed server reads from its environment.
// Every field has a default so a bare environment still yields a usable
// configuration.
type Settings struct {
	// ServerName is reported in the initialize handshake. ENV: RELAY_SERVER_NAME
	ServerName string `env:"RELAY_SERVER_NAME,default=relaykit"`
	// ServerVersion is reported in the initialize handshake. ENV: RELAY_SERVER_VERSION
	ServerVersion string `env:"RELAY_SERVER_VERSION,default=0.1.0"`

	// ListenAddr is the bind address for WebSocket and HTTP serving. ENV: RELAY_LISTEN_ADDR
	ListenAddr string `env:"RELAY_LISTEN_ADDR,default=:8080"`

	// CallTimeout bounds each outbound request. ENV: RELAY_CALL_TIMEOUT
	CallTimeout time.Duration `env:"RELAY_CALL_TIMEOUT,default=30s"`
	// DrainTimeout bounds graceful shutdown. ENV: RELAY_DRAIN_TIMEOUT
	DrainTimeout time.Duration `env:"RELAY_DRAIN_TIMEOUT,default=10s"`

	// RateLimit is requests per second, 0 disables limiting. ENV: RELAY_RATE_LIMIT
	RateLimit int `env:"RELAY_RATE_LIMIT,default=0"`
	// RateBurst is the token bucket depth when limiting. ENV: RELAY_RATE_BURST
	RateBurst int `env:"RELAY_RATE_BURST,default=10"`

	// MaxRequestBytes caps request params size, 0 disables the cap. ENV: RELAY_MAX_REQUEST_BYTES
	MaxRequestBytes int64 `env:"RELAY_MAX_REQUEST_BYTES,default=0"`

	// AuthTokens is a comma-separated list of accepted bearer tokens;
	// empty disables authentication. ENV: RELAY_AUTH_TOKENS
	AuthTokens string `env:"RELAY_AUTH_TOKENS"`

	// LogLevel is debug, info, warn, or error. ENV: RELAY_LOG_LEVEL
	LogLevel string `env:"RELAY_LOG_LEVEL,default=info"`

	// TracingEnabled turns the OpenTelemetry middleware on. ENV: RELAY_TRACING_ENABLED
	TracingEnabled bool `env:"RELAY_TRACING_ENABLED,default=false"`
}

// FromEnv decodes Settings from the process environment and validates them.
func FromEnv() (*Settings, error) {
	var s Settings
	if err := envdecode.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns the settings a bare environment would produce.
func Default() *Settings {
	return &Settings{
		ServerName:    "relaykit",
		ServerVersion: "0.1.0",
		ListenAddr:    ":8080",
		CallTimeout:   30 * time.Second,
		DrainTimeout:  10 * time.Second,
		RateBurst:     10,
		LogLevel:      "info",
	}
}

// Validate rejects settings no server could run with.
func (s *Settings) Validate() error {
	if s.ServerName == "" {
		return fmt.Errorf("server name must not be empty")
	}
	if s.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %s", s.CallTimeout)
	}
	if s.DrainTimeout <= 0 {
		return fmt.Errorf("drain timeout must be positive, got %s", s.DrainTimeout)
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %d", s.RateLimit)
	}
	if s.RateLimit > 0 && s.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when limiting, got %d", s.RateBurst)
	}
	if s.MaxRequestBytes < 0 {
		return fmt.Errorf("max request bytes must not be negative, got %d", s.MaxRequestBytes)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", s.LogLevel)
	}
	return nil
}

// SlogLevel maps LogLevel onto its slog equivalent. Unvalidated values
// fall back to info.
func (s *Settings) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Tokens splits AuthTokens into individual bearer tokens.
func (s *Settings) Tokens() []string {
	if s.AuthTokens == "" {
		return nil
	}
	parts := strings.Split(s.AuthTokens, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
