package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"jaysonic/message"
)

// RateLimitConfig throttles dispatch using golang.org/x/time/rate. Zero
// value (Rate == 0) means no limiting, matching the teacher's opt-in
// middleware wiring.
type RateLimitConfig struct {
	Rate  float64 `toml:"rate"`
	Burst int     `toml:"burst"`
}

// ServerConfig is the enumerated server configuration of spec §6.2, plus
// the optional rate-limit dispatch middleware this implementation adds.
type ServerConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Exclusive bool   `toml:"exclusive"`
	Version   string `toml:"version"`
	Delimiter string `toml:"delimiter"`

	RateLimit *RateLimitConfig `toml:"rate_limit"`

	// DispatchTimeoutSeconds bounds how long a single method invocation may
	// run before the dispatch pipeline gives up on it with a Request Timeout
	// error. Zero (the default) disables this layer entirely.
	DispatchTimeoutSeconds float64 `toml:"dispatch_timeout"`
}

// DefaultServerConfig returns the baseline configuration: all interfaces,
// protocol 2.0, newline delimiter, exclusive (only this process may bind
// the port), no rate limiting.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:      "0.0.0.0",
		Exclusive: true,
		Version:   message.Version,
		Delimiter: "\n",
	}
}

// LoadServerConfig reads path as TOML and applies whichever fields it sets
// on top of DefaultServerConfig().
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	var raw ServerConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}

	if meta.IsDefined("host") {
		cfg.Host = raw.Host
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("exclusive") {
		cfg.Exclusive = raw.Exclusive
	}
	if meta.IsDefined("version") {
		cfg.Version = raw.Version
	}
	if meta.IsDefined("delimiter") {
		cfg.Delimiter = raw.Delimiter
	}
	if meta.IsDefined("rate_limit") {
		cfg.RateLimit = raw.RateLimit
	}
	if meta.IsDefined("dispatch_timeout") {
		cfg.DispatchTimeoutSeconds = raw.DispatchTimeoutSeconds
	}

	return cfg, nil
}
