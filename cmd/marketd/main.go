package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gorm.io/gorm"

	"nftmarket/config"
	"nftmarket/core"
	"nftmarket/core/events"
	"nftmarket/indexer"
	"nftmarket/observability"
	"nftmarket/observability/logging"
	telemetry "nftmarket/observability/otel"
	"nftmarket/rpc"
	"nftmarket/storage"
)

const envVar = "MARKET_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml or .yaml)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("marketd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Log.Env
	}
	logger := logging.Setup("marketd", env, logging.WithFile(cfg.Log.File))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "marketd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Traces:      cfg.Telemetry.Traces,
			Metrics:     cfg.Telemetry.Metrics,
			SampleRatio: cfg.Telemetry.SampleRatio,
			Market:      cfg.Market.Address,
			Settlement:  cfg.Market.Settlement,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.Open(cfg.Storage.Backend, storagePath(cfg))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sinks := []events.Emitter{observability.Events()}
	var index *indexer.Index
	if path := cfg.Resolve(cfg.Index.Path); path != "" {
		index, err = indexer.Open(path)
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("open event index: %w", err)
		}
		defer index.Close()
		index.SetLogger(logger.With(slog.String("component", "indexer")))
		sinks = append(sinks, index)
	}

	marketCfg, err := cfg.MarketConfig()
	if err != nil {
		_ = db.Close()
		return err
	}
	node, err := core.NewNode(db, marketCfg, sinks, core.WithLogger(logger), core.WithDevnet(cfg.RPC.Devnet))
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("start node: %w", err)
	}
	defer node.Close()

	idempotency, err := openIdempotency(cfg, logger)
	if err != nil {
		return err
	}

	secret := ""
	if name := strings.TrimSpace(cfg.RPC.JWTSecretEnv); name != "" {
		secret = os.Getenv(name)
	}
	if secret == "" {
		logger.Warn("rpc signing secret not set; authenticated methods are disabled",
			slog.String("env", cfg.RPC.JWTSecretEnv))
	}

	server, err := rpc.NewServer(node, rpc.ServerConfig{
		JWTSecret:    secret,
		JWTIssuer:    cfg.RPC.JWTIssuer,
		RateLimit:    cfg.RPC.RateLimit,
		Burst:        cfg.RPC.Burst,
		ReadTimeout:  cfg.RPC.ReadTimeout.Duration,
		WriteTimeout: cfg.RPC.WriteTimeout.Duration,
		Index:        index,
		Idempotency:  idempotency,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if err := server.Serve(ctx, cfg.RPC.ListenAddress); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("marketd stopped")
	return nil
}

func storagePath(cfg *config.Config) string {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "bolt", "bbolt":
		return filepath.Join(cfg.DataDir, "market.bolt")
	default:
		return filepath.Join(cfg.DataDir, "state")
	}
}

func openIdempotency(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Idempotency.Driver))
	dsn := strings.TrimSpace(cfg.Idempotency.DSN)
	if driver == "" || dsn == "" {
		return nil, nil
	}
	if driver == "sqlite" {
		dsn = cfg.Resolve(dsn)
	}
	db, err := rpc.OpenIdempotencyStore(driver, dsn)
	if err != nil {
		return nil, err
	}
	logger.Info("idempotency store ready", slog.String("driver", driver), slog.String("dsn", logging.MaskDSN(dsn)))
	return db, nil
}
