package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nftmarket/crypto"
	"nftmarket/native/market"
)

func testAddr(b byte) string {
	raw := make([]byte, 20)
	raw[0] = b
	raw[19] = b
	return crypto.MustNewAddress(crypto.MarketPrefix, raw).String()
}

func TestLoadCreatesDefaultWithMarketAccount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Market.Address == "" {
		t.Fatalf("expected generated market address")
	}
	if cfg.Market.Operator == "" || cfg.Market.Provider == "" {
		t.Fatalf("expected generated role accounts")
	}
	if cfg.Market.Operator == cfg.Market.Address || cfg.Market.Provider == cfg.Market.Address || cfg.Market.Operator == cfg.Market.Provider {
		t.Fatalf("roles must be distinct accounts: market=%s operator=%s provider=%s", cfg.Market.Address, cfg.Market.Operator, cfg.Market.Provider)
	}
	for _, name := range []string{"market.keystore", "operator.keystore", "provider.keystore"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s not written: %v", name, err)
		}
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Market.Address != cfg.Market.Address || reloaded.Market.Operator != cfg.Market.Operator {
		t.Fatalf("address changed across reload: %s != %s", reloaded.Market.Address, cfg.Market.Address)
	}
	if reloaded.RPC.ReadTimeout.Duration != 15*time.Second {
		t.Fatalf("unexpected read timeout %s", reloaded.RPC.ReadTimeout)
	}
}

func TestLoadParsesTOMLSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := fmt.Sprintf(`DataDir = "./data"

[Storage]
Backend = "bolt"

[Market]
Address = "%s"
Operator = "%s"
Provider = "%s"
OperatorFeeBps = 50
ProviderFeeBps = 100
OperatorCeilingBps = 1000
ProviderCeilingBps = 500
Settlement = "direct"

[RPC]
ListenAddress = "127.0.0.1:9000"
RateLimit = 10.5
Burst = 4
ReadTimeout = "3s"
WriteTimeout = "1m"
Devnet = true
`, testAddr(0x01), testAddr(0x02), testAddr(0x03))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != "bolt" {
		t.Fatalf("unexpected backend %q", cfg.Storage.Backend)
	}
	if cfg.RPC.ReadTimeout.Duration != 3*time.Second || cfg.RPC.WriteTimeout.Duration != time.Minute {
		t.Fatalf("unexpected timeouts %s/%s", cfg.RPC.ReadTimeout, cfg.RPC.WriteTimeout)
	}
	if !cfg.RPC.Devnet || cfg.RPC.Burst != 4 {
		t.Fatalf("rpc section not decoded: %+v", cfg.RPC)
	}
	if cfg.Index.Path != "events.db" {
		t.Fatalf("expected default index path to survive, got %q", cfg.Index.Path)
	}

	engineCfg, err := cfg.MarketConfig()
	if err != nil {
		t.Fatalf("market config: %v", err)
	}
	if engineCfg.Settlement != market.SettlementDirect {
		t.Fatalf("expected direct settlement")
	}
	if engineCfg.OperatorFeeBps != 50 || engineCfg.ProviderFeeBps != 100 || engineCfg.OperatorCeilingBps != 1000 {
		t.Fatalf("unexpected fee schedule %+v", engineCfg)
	}
	want, _ := crypto.ParseAddress(testAddr(0x02))
	if engineCfg.Operator != want {
		t.Fatalf("operator mismatch: %s != %s", engineCfg.Operator.Hex(), want.Hex())
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := fmt.Sprintf(`data_dir: /var/lib/market
storage:
  backend: memory
market:
  address: "%s"
  operator: "%s"
  provider: "%s"
  provider_fee_bps: 250
  provider_ceiling_bps: 500
  operator_ceiling_bps: 10000
rpc:
  listen: ":8080"
  read_timeout: 2s
idempotency:
  driver: postgres
  dsn: postgres://market@localhost/market
`, testAddr(0x0a), testAddr(0x0b), testAddr(0x0c))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.ReadTimeout.Duration != 2*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.RPC.ReadTimeout)
	}
	if cfg.Idempotency.Driver != "postgres" {
		t.Fatalf("unexpected driver %q", cfg.Idempotency.Driver)
	}
	if cfg.Resolve("events.db") != filepath.Join("/var/lib/market", "events.db") {
		t.Fatalf("unexpected resolved path %q", cfg.Resolve("events.db"))
	}
	if cfg.Resolve(":memory:") != ":memory:" {
		t.Fatalf("memory marker must not be joined")
	}
	engineCfg, err := cfg.MarketConfig()
	if err != nil {
		t.Fatalf("market config: %v", err)
	}
	if engineCfg.Settlement != market.SettlementEscrow {
		t.Fatalf("empty settlement must default to escrow")
	}
}

func TestLoadRejectsUnknownTOMLKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := fmt.Sprintf("Bogus = 1\n[Market]\nAddress = %q\nOperator = %q\nProvider = %q\n", testAddr(1), testAddr(1), testAddr(1))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Market.Address = testAddr(1)
		cfg.Market.Operator = testAddr(2)
		cfg.Market.Provider = testAddr(3)
		return cfg
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	cases := map[string]func(*Config){
		"backend":         func(c *Config) { c.Storage.Backend = "rocks" },
		"provider fee":    func(c *Config) { c.Market.ProviderFeeBps = 501 },
		"operator fee":    func(c *Config) { c.Market.OperatorCeilingBps = 10; c.Market.OperatorFeeBps = 11 },
		"ceiling":         func(c *Config) { c.Market.ProviderCeilingBps = 10_001 },
		"settlement":      func(c *Config) { c.Market.Settlement = "later" },
		"zero operator":   func(c *Config) { c.Market.Operator = "0x0000000000000000000000000000000000000000" },
		"bad address":     func(c *Config) { c.Market.Provider = "nope" },
		"market operator": func(c *Config) { c.Market.Operator = c.Market.Address },
		"market provider": func(c *Config) { c.Market.Provider = c.Market.Address },
		"listen":          func(c *Config) { c.RPC.ListenAddress = " " },
		"burst":           func(c *Config) { c.RPC.Burst = -1 },
		"idempotency":     func(c *Config) { c.Idempotency.Driver = "mysql" },
		"sample ratio":    func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := d.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "1m30s" {
		t.Fatalf("unexpected text %q", out)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("expected parse error")
	}
}
