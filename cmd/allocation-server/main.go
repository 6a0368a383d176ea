package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/internal/aws"
	"github.com/defispring/allocation-merkle-go/pkg/config"
	"github.com/defispring/allocation-merkle-go/pkg/ingest"
	"github.com/defispring/allocation-merkle-go/pkg/logger"
	"github.com/defispring/allocation-merkle-go/pkg/persistence"
	"github.com/defispring/allocation-merkle-go/pkg/persistence/badger"
	"github.com/defispring/allocation-merkle-go/pkg/persistence/memory"
	"github.com/defispring/allocation-merkle-go/pkg/persistence/redis"
	"github.com/defispring/allocation-merkle-go/pkg/server"
	"github.com/defispring/allocation-merkle-go/pkg/snapshot"
)

const shutdownTimeout = 15 * time.Second

func main() {
	app := &cli.App{
		Name:  "allocation-server",
		Usage: "Cumulative allocation Merkle query server",
		Description: `Serves Merkle claim calldata for cumulative token allocations.

The server:
- Reads raw_<round>.zip archives from a local directory or an S3 prefix
- Aggregates allocations into cumulative balances per round
- Commits every round into a Merkle tree and serves inclusion proofs
- Optionally records published roots and detects root drift`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML config file; flags override its values",
				EnvVars: []string{config.EnvAllocConfigFile},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvAllocPort},
			},
			&cli.StringFlag{
				Name:    "source",
				Value:   config.SourceTypeLocal.String(),
				Usage:   "Raw input source: local or s3",
				EnvVars: []string{config.EnvAllocSourceType},
			},
			&cli.StringFlag{
				Name:    "raw-input-dir",
				Value:   "raw_input",
				Usage:   "Directory containing raw_<round>.zip archives",
				EnvVars: []string{config.EnvAllocRawInputDir},
			},
			&cli.StringFlag{
				Name:    "s3-bucket",
				Usage:   "S3 bucket holding raw_<round>.zip archives",
				EnvVars: []string{config.EnvAllocS3Bucket},
			},
			&cli.StringFlag{
				Name:    "s3-prefix",
				Usage:   "Key prefix within the S3 bucket",
				EnvVars: []string{config.EnvAllocS3Prefix},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region for the S3 source (defaults to the SDK's resolution)",
				EnvVars: []string{config.EnvAllocAWSRegion},
			},
			&cli.DurationFlag{
				Name:    "refresh-interval",
				Usage:   "Reload raw input periodically; 0 disables",
				EnvVars: []string{config.EnvAllocRefreshInterval},
			},
			&cli.StringFlag{
				Name:    "ledger",
				Value:   config.LedgerTypeNone.String(),
				Usage:   "Root ledger: none, memory, badger or redis",
				EnvVars: []string{config.EnvAllocLedgerType},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "Data directory for the badger ledger",
				EnvVars: []string{config.EnvAllocBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address (host:port) for the redis ledger",
				EnvVars: []string{config.EnvAllocRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvAllocRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvAllocRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every redis key",
				EnvVars: []string{config.EnvAllocRedisKeyPrefix},
			},
			&cli.BoolFlag{
				Name:    "reject-root-drift",
				Usage:   "Fail a refresh instead of publishing a changed root for a recorded round",
				EnvVars: []string{config.EnvAllocRejectRootDrift},
			},
			&cli.StringFlag{
				Name:    "admin-jwt-secret",
				Usage:   "HS256 secret enabling POST /admin/refresh",
				EnvVars: []string{config.EnvAllocAdminJWTSecret},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Requests per second across all clients; 0 disables",
				EnvVars: []string{config.EnvAllocRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Value:   50,
				Usage:   "Rate limiter burst size",
				EnvVars: []string{config.EnvAllocRateBurst},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvAllocVerbose},
			},
		},
		Action: runAllocationServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runAllocationServer(c *cli.Context) error {
	cfg, err := parseServerConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug || cfg.Verbose})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := newSource(ctx, cfg, l)
	if err != nil {
		return err
	}

	ledger, err := newLedger(cfg, l)
	if err != nil {
		return err
	}
	if ledger != nil {
		defer func() {
			if err := ledger.Close(); err != nil {
				l.Sugar().Warnw("Failed to close root ledger", "error", err)
			}
		}()
	}

	repo, err := snapshot.NewRepository(&snapshot.RepositoryConfig{
		Loader:          source,
		Ledger:          ledger,
		RejectRootDrift: cfg.RejectRootDrift,
		Logger:          l,
	})
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	defer func() { _ = repo.Close() }()

	if _, err := repo.Refresh(ctx); err != nil {
		return fmt.Errorf("initial snapshot refresh failed: %w", err)
	}

	srv, err := server.NewServer(&server.Config{
		Port:           cfg.Port,
		Repository:     repo,
		AdminJWTSecret: []byte(cfg.AdminJWTSecret),
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Logger:         l,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Allocation server running",
		"port", cfg.Port,
		"source", source.Name(),
		"ledger", cfg.LedgerType,
		"refreshInterval", cfg.RefreshInterval,
	)

	if cfg.RefreshInterval > 0 {
		go refreshLoop(ctx, repo, cfg.RefreshInterval, l)
	}

	<-ctx.Done()
	l.Sugar().Infow("Shutting down allocation server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		l.Sugar().Warnw("HTTP server did not shut down cleanly", "error", err)
	}
	return nil
}

// refreshLoop reloads the snapshot on every tick. Failures are logged by the
// repository and leave the previous snapshot in place.
func refreshLoop(ctx context.Context, repo *snapshot.Repository, interval time.Duration, l *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := repo.Refresh(ctx); err != nil {
				l.Sugar().Debugw("Periodic refresh failed", "error", err)
			}
		}
	}
}

func newSource(ctx context.Context, cfg *config.ServerConfig, l *zap.Logger) (snapshot.Loader, error) {
	switch cfg.SourceType {
	case config.SourceTypeS3:
		client, err := aws.NewS3Client(ctx, cfg.S3.Region, l)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return ingest.NewS3Source(client, cfg.S3.Bucket, cfg.S3.Prefix, l), nil
	default:
		return ingest.NewLocalSource(cfg.RawInputDir, l), nil
	}
}

// newLedger returns a nil interface when no ledger is configured.
func newLedger(cfg *config.ServerConfig, l *zap.Logger) (persistence.IRootLedger, error) {
	switch cfg.LedgerType {
	case config.LedgerTypeMemory:
		return memory.NewMemoryLedger(), nil
	case config.LedgerTypeBadger:
		ledger, err := badger.NewBadgerLedger(cfg.BadgerPath, l)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger ledger: %w", err)
		}
		return ledger, nil
	case config.LedgerTypeRedis:
		ledger, err := redis.NewRedisLedger(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis ledger: %w", err)
		}
		return ledger, nil
	default:
		return nil, nil
	}
}

// parseServerConfig starts from the config file, if any, and applies every
// flag or environment variable that was explicitly set.
func parseServerConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg := config.DefaultServerConfig()
	fromFile := c.String("config") != ""
	if fromFile {
		path := c.String("config")
		fileCfg, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	override := func(name string, apply func()) {
		if !fromFile || c.IsSet(name) {
			apply()
		}
	}

	override("port", func() { cfg.Port = c.Int("port") })
	override("source", func() { cfg.SourceType = config.SourceType(c.String("source")) })
	override("raw-input-dir", func() { cfg.RawInputDir = c.String("raw-input-dir") })
	override("s3-bucket", func() { cfg.S3.Bucket = c.String("s3-bucket") })
	override("s3-prefix", func() { cfg.S3.Prefix = c.String("s3-prefix") })
	override("aws-region", func() { cfg.S3.Region = c.String("aws-region") })
	override("refresh-interval", func() { cfg.RefreshInterval = c.Duration("refresh-interval") })
	override("ledger", func() { cfg.LedgerType = config.LedgerType(c.String("ledger")) })
	override("badger-path", func() { cfg.BadgerPath = c.String("badger-path") })
	override("redis-address", func() { cfg.Redis.Address = c.String("redis-address") })
	override("redis-password", func() { cfg.Redis.Password = c.String("redis-password") })
	override("redis-db", func() { cfg.Redis.DB = c.Int("redis-db") })
	override("redis-key-prefix", func() { cfg.Redis.KeyPrefix = c.String("redis-key-prefix") })
	override("reject-root-drift", func() { cfg.RejectRootDrift = c.Bool("reject-root-drift") })
	override("admin-jwt-secret", func() { cfg.AdminJWTSecret = c.String("admin-jwt-secret") })
	override("rate-limit", func() { cfg.RateLimit = c.Float64("rate-limit") })
	override("rate-burst", func() { cfg.RateBurst = c.Int("rate-burst") })
	override("verbose", func() { cfg.Verbose = c.Bool("verbose") })

	return cfg, nil
}
