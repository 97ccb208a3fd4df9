// Package config holds the enumerated Client/Server configuration structs
// (spec §6.2) plus TOML file loading, grounded on edgectl's
// cmd/ghostctl/config.go pattern: decode into a raw struct with
// github.com/BurntSushi/toml, then apply only the fields the file actually
// set (via toml.MetaData.IsDefined) on top of hand-written defaults.
// Programmatic construction of the typed structs directly is always
// available and doesn't touch this package at all.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"jaysonic/message"
)

// ClientConfig is the enumerated client configuration of spec §6.2.
type ClientConfig struct {
	URL       string `toml:"url"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Version   string `toml:"version"`   // "2.0" or "1.0"
	Delimiter string `toml:"delimiter"`

	TimeoutSeconds        float64 `toml:"timeout"`          // converted to a deadline internally
	Retries               int     `toml:"retries"`
	ReconnectDelaySeconds float64 `toml:"reconnect_delay"`

	PerMessageDeflate bool `toml:"per_message_deflate"` // ws only

	Method   string            `toml:"method"`  // http only
	Path     string            `toml:"path"`    // http only
	Headers  map[string]string `toml:"headers"` // http only
	Encoding string            `toml:"encoding"` // http only

	// ServiceName is the service a discovery-mode client looks up: once
	// Client.WithDiscovery (or WithDiscoveryConfig) has supplied a
	// Registry and Balancer, they pick the address for this name instead of
	// Host/Port/URL. Setting ServiceName alone does not enable discovery.
	ServiceName string `toml:"service_name"`

	// BalanceStrategy names the loadbalance.Balancer WithDiscoveryConfig
	// builds via loadbalance.New: "round_robin" (default) or
	// "weighted_random". Ignored by WithDiscovery, which takes a Balancer
	// value directly.
	BalanceStrategy string `toml:"balance_strategy"`
}

// DefaultClientConfig returns the baseline configuration: protocol 2.0,
// newline delimiter, a 30s call timeout, 3 reconnect attempts with a 1s
// delay between them.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Version:               message.Version,
		Delimiter:             "\n",
		TimeoutSeconds:        30,
		Retries:               3,
		ReconnectDelaySeconds: 1,
		Method:                "POST",
		Path:                  "/",
		Encoding:              "utf-8",
		BalanceStrategy:       "round_robin",
	}
}

// Timeout converts TimeoutSeconds to a time.Duration for internal use.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// ReconnectDelay converts ReconnectDelaySeconds to a time.Duration.
func (c ClientConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds * float64(time.Second))
}

// LoadClientConfig reads path as TOML and applies whichever fields it sets
// on top of DefaultClientConfig().
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw ClientConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("url") {
		cfg.URL = raw.URL
	}
	if meta.IsDefined("host") {
		cfg.Host = raw.Host
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("version") {
		cfg.Version = raw.Version
	}
	if meta.IsDefined("delimiter") {
		cfg.Delimiter = raw.Delimiter
	}
	if meta.IsDefined("timeout") {
		cfg.TimeoutSeconds = raw.TimeoutSeconds
	}
	if meta.IsDefined("retries") {
		cfg.Retries = raw.Retries
	}
	if meta.IsDefined("reconnect_delay") {
		cfg.ReconnectDelaySeconds = raw.ReconnectDelaySeconds
	}
	if meta.IsDefined("per_message_deflate") {
		cfg.PerMessageDeflate = raw.PerMessageDeflate
	}
	if meta.IsDefined("method") {
		cfg.Method = raw.Method
	}
	if meta.IsDefined("path") {
		cfg.Path = raw.Path
	}
	if meta.IsDefined("headers") {
		cfg.Headers = raw.Headers
	}
	if meta.IsDefined("encoding") {
		cfg.Encoding = raw.Encoding
	}
	if meta.IsDefined("service_name") {
		cfg.ServiceName = raw.ServiceName
	}
	if meta.IsDefined("balance_strategy") {
		cfg.BalanceStrategy = raw.BalanceStrategy
	}

	return cfg, nil
}
