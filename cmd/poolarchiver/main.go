package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/camarigor/pool-archiver/internal/config"
	"github.com/camarigor/pool-archiver/internal/ingest"
	"github.com/camarigor/pool-archiver/internal/logging"
	"github.com/camarigor/pool-archiver/internal/snapshot"
	"github.com/camarigor/pool-archiver/internal/storage"
)

func main() {
	os.Exit(run())
}

// run processes one snapshot to completion. Exit 0 covers runs with isolated
// per-address failures; only config, snapshot and connection errors are
// fatal.
func run() int {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	snap, err := snapshot.Load(cfg.SnapshotPath)
	if err != nil {
		logger.Error("failed to load snapshot",
			zap.String("path", cfg.SnapshotPath),
			zap.Error(err))
		return 1
	}
	logger.Info("snapshot loaded",
		zap.String("path", cfg.SnapshotPath),
		zap.Int("users", len(snap.Users)))

	ctx := context.Background()

	store, err := storage.New(ctx, storage.Config{
		URL:       cfg.DB.URL,
		Host:      cfg.DB.Host,
		Port:      cfg.DB.Port,
		User:      cfg.DB.User,
		Password:  cfg.DB.Password,
		Database:  cfg.DB.Database,
		SSLMode:   cfg.DB.SSLMode,
		PoolSize:  int32(cfg.DB.PoolSize),
		TxTimeout: cfg.TxTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize storage", zap.Error(err))
		return 1
	}
	defer store.Close()

	ing := ingest.New(store, ingest.Config{
		BatchSize: cfg.BatchSize,
		TopN:      cfg.TopN,
	}, logger)

	sum := ing.Run(ctx, snap)

	logger.Info("ingestion complete",
		zap.Int("users", sum.Users),
		zap.Int("failed", len(sum.Failures)),
		zap.Bool("pool_stats_written", sum.PoolStatsErr == nil))
	for _, f := range sum.Failures {
		logger.Warn("address not ingested",
			zap.String("address", f.Address),
			zap.Error(f.Err))
	}
	return 0
}
