package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"nftmarket/crypto"
)

type Config struct {
	DataDir      string      `toml:"DataDir" yaml:"data_dir"`
	KeystorePath string      `toml:"KeystorePath" yaml:"keystore"`
	Storage      Storage     `toml:"Storage" yaml:"storage"`
	Market       Market      `toml:"Market" yaml:"market"`
	RPC          RPC         `toml:"RPC" yaml:"rpc"`
	Index        Index       `toml:"Index" yaml:"index"`
	Idempotency  Idempotency `toml:"Idempotency" yaml:"idempotency"`
	Log          Log         `toml:"Log" yaml:"log"`
	Telemetry    Telemetry   `toml:"Telemetry" yaml:"telemetry"`
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		DataDir: "./market-data",
		Storage: Storage{Backend: "leveldb"},
		Market: Market{
			OperatorCeilingBps: 10_000,
			ProviderCeilingBps: 500,
			Settlement:         "escrow",
		},
		RPC: RPC{
			ListenAddress: ":8545",
			JWTSecretEnv:  "MARKET_JWT_SECRET",
			JWTIssuer:     "nftmarket",
			RateLimit:     120,
			Burst:         20,
			ReadTimeout:   Duration{15 * time.Second},
			WriteTimeout:  Duration{15 * time.Second},
		},
		Index:       Index{Path: "events.db"},
		Idempotency: Idempotency{Driver: "sqlite", DSN: "idempotency.db"},
		Log:         Log{Env: "dev"},
		Telemetry:   Telemetry{Endpoint: "localhost:4318", Insecure: true, SampleRatio: 1},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults and a freshly generated marketplace account.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
	}

	if strings.TrimSpace(cfg.Market.Address) == "" {
		if err := ensureMarketAccount(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ensureMarketAccount fills the marketplace address from the keystore,
// generating one when it does not exist yet. Empty operator and provider
// roles get their own keystores next to it.
func ensureMarketAccount(configPath string, cfg *Config) error {
	keystorePath := cfg.KeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}
	key, err := loadOrCreateKey(keystorePath)
	if err != nil {
		return fmt.Errorf("config: market account: %w", err)
	}
	cfg.KeystorePath = keystorePath
	cfg.Market.Address = key.PubKey().Address().String()

	dir := filepath.Dir(keystorePath)
	if strings.TrimSpace(cfg.Market.Operator) == "" {
		operator, err := loadOrCreateKey(filepath.Join(dir, "operator.keystore"))
		if err != nil {
			return fmt.Errorf("config: operator account: %w", err)
		}
		cfg.Market.Operator = operator.PubKey().Address().String()
	}
	if strings.TrimSpace(cfg.Market.Provider) == "" {
		provider, err := loadOrCreateKey(filepath.Join(dir, "provider.keystore"))
		if err != nil {
			return fmt.Errorf("config: provider account: %w", err)
		}
		cfg.Market.Provider = provider.PubKey().Address().String()
	}
	return persist(configPath, cfg)
}

func loadOrCreateKey(path string) (*crypto.PrivateKey, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		if err := crypto.SaveToKeystore(path, key, "", crypto.WithLightScrypt()); err != nil {
			return nil, err
		}
		return key, nil
	} else if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, "")
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := ensureMarketAccount(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write saves cfg to path in the format implied by its extension.
func Write(path string, cfg *Config) error {
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "market.keystore")
}

// Resolve joins a relative path onto DataDir. Absolute paths and the SQLite
// in-memory marker are returned unchanged.
func (c *Config) Resolve(path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}
