package config

import (
	"fmt"
	"strings"

	"nftmarket/crypto"
	"nftmarket/native/market"
)

// MaxBps is the basis-point scale used for every fee and ceiling.
const MaxBps = market.BpsDenominator

// Validate checks every section for values the daemon cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Market.OperatorCeilingBps > MaxBps || c.Market.ProviderCeilingBps > MaxBps {
		return fmt.Errorf("market: ceilings must not exceed %d bps", MaxBps)
	}
	if c.Market.OperatorFeeBps > c.Market.OperatorCeilingBps {
		return fmt.Errorf("market: operator fee %d above ceiling %d", c.Market.OperatorFeeBps, c.Market.OperatorCeilingBps)
	}
	if c.Market.ProviderFeeBps > c.Market.ProviderCeilingBps {
		return fmt.Errorf("market: provider fee %d above ceiling %d", c.Market.ProviderFeeBps, c.Market.ProviderCeilingBps)
	}
	if _, err := market.ParseSettlementMode(c.Market.Settlement); err != nil {
		return err
	}
	if _, err := c.MarketConfig(); err != nil {
		return err
	}
	if strings.TrimSpace(c.RPC.ListenAddress) == "" {
		return fmt.Errorf("rpc: listen address required")
	}
	if c.RPC.RateLimit < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limit and burst must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Idempotency.Driver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("idempotency: unknown driver %q", c.Idempotency.Driver)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample ratio must be within [0,1]")
	}
	return nil
}

// MarketConfig converts the text section into an engine configuration.
func (c *Config) MarketConfig() (market.Config, error) {
	cfg := market.DefaultConfig()
	var err error
	if cfg.Address, err = crypto.ParseAddress(c.Market.Address); err != nil {
		return market.Config{}, fmt.Errorf("market.Address: %w", err)
	}
	if cfg.Operator, err = crypto.ParseAddress(c.Market.Operator); err != nil {
		return market.Config{}, fmt.Errorf("market.Operator: %w", err)
	}
	if cfg.Provider, err = crypto.ParseAddress(c.Market.Provider); err != nil {
		return market.Config{}, fmt.Errorf("market.Provider: %w", err)
	}
	if cfg.Settlement, err = market.ParseSettlementMode(c.Market.Settlement); err != nil {
		return market.Config{}, err
	}
	cfg.OperatorFeeBps = c.Market.OperatorFeeBps
	cfg.ProviderFeeBps = c.Market.ProviderFeeBps
	cfg.OperatorCeilingBps = c.Market.OperatorCeilingBps
	cfg.ProviderCeilingBps = c.Market.ProviderCeilingBps
	if err := cfg.Validate(); err != nil {
		return market.Config{}, err
	}
	return cfg, nil
}
