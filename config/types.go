package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "15s" in both TOML
// and YAML files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := string(text)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// Storage selects the key/value backend under DataDir.
type Storage struct {
	Backend string `toml:"Backend" yaml:"backend"`
}

// Market mirrors market.Config with addresses in text form. Addresses accept
// 0x hex or mkt1 bech32.
type Market struct {
	Address            string `toml:"Address" yaml:"address"`
	Operator           string `toml:"Operator" yaml:"operator"`
	Provider           string `toml:"Provider" yaml:"provider"`
	OperatorFeeBps     uint64 `toml:"OperatorFeeBps" yaml:"operator_fee_bps"`
	ProviderFeeBps     uint64 `toml:"ProviderFeeBps" yaml:"provider_fee_bps"`
	OperatorCeilingBps uint64 `toml:"OperatorCeilingBps" yaml:"operator_ceiling_bps"`
	ProviderCeilingBps uint64 `toml:"ProviderCeilingBps" yaml:"provider_ceiling_bps"`
	Settlement         string `toml:"Settlement" yaml:"settlement"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	ListenAddress string   `toml:"ListenAddress" yaml:"listen"`
	JWTSecretEnv  string   `toml:"JWTSecretEnv" yaml:"jwt_secret_env"`
	JWTIssuer     string   `toml:"JWTIssuer" yaml:"jwt_issuer"`
	RateLimit     float64  `toml:"RateLimit" yaml:"rate_limit"`
	Burst         int      `toml:"Burst" yaml:"burst"`
	ReadTimeout   Duration `toml:"ReadTimeout" yaml:"read_timeout"`
	WriteTimeout  Duration `toml:"WriteTimeout" yaml:"write_timeout"`
	Devnet        bool     `toml:"Devnet" yaml:"devnet"`
}

// Index configures the SQLite event index.
type Index struct {
	Path string `toml:"Path" yaml:"path"`
}

// Idempotency configures the store backing Idempotency-Key replay.
type Idempotency struct {
	Driver string `toml:"Driver" yaml:"driver"`
	DSN    string `toml:"DSN" yaml:"dsn"`
}

// Log configures structured logging.
type Log struct {
	Env  string `toml:"Env" yaml:"env"`
	File string `toml:"File" yaml:"file"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}
