package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolstates/internal/chain"
	"poolstates/internal/config"
	"poolstates/internal/indexer"
	"poolstates/internal/model"
	"poolstates/internal/pools"
	"poolstates/internal/storage"
	"poolstates/internal/storage/clickhouse"
	"poolstates/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "poolstates",
		Short:        "Uniswap V3 pool state replay pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a block range and extract pool state records",
		RunE:  runPipeline,
	}

	runCmd.Flags().String("rpc", "", "archive node RPC URL (trace APIs required)")
	runCmd.Flags().String("backend", "clickhouse", "storage backend (clickhouse, postgres, jsonl)")
	runCmd.Flags().String("clickhouse-dsn", "", "ClickHouse DSN")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("out", "./data/records.jsonl", "output JSONL path (jsonl backend)")
	runCmd.Flags().String("pools-file", "", "pool descriptors JSON file; empty loads from the store's pools table")
	runCmd.Flags().StringSlice("pool", nil, "pool addresses to load from the store (comma-separated, empty means all)")
	runCmd.Flags().Uint64("start-block", 0, "start block (inclusive), 0 means earliest pool activation")
	runCmd.Flags().Uint64("end-block", 0, "end block (inclusive), 0 means current head")
	runCmd.Flags().Int64("max-work-units", 24, "maximum concurrent work units (one per open state view)")
	runCmd.Flags().Int("batch-size", 500, "records per storage batch")
	runCmd.Flags().Int("workers", 0, "simulation worker pool size, 0 means GOMAXPROCS")
	runCmd.Flags().Bool("tick-info", true, "extract tick liquidity records")
	runCmd.Flags().Bool("slot0", true, "extract slot0 price records")
	runCmd.Flags().Bool("trades", true, "extract decoded trade records")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	store, descriptors, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.PoolsFile != "" {
		descriptors, err = pools.LoadDescriptorsFile(cfg.PoolsFile)
		if err != nil {
			return err
		}
	}
	if len(descriptors) == 0 {
		return fmt.Errorf("no pool descriptors: set --pools-file or populate the store's pools table")
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		StartBlock:   cfg.StartBlock,
		EndBlock:     cfg.EndBlock,
		MaxWorkUnits: cfg.MaxWorkUnits,
		BatchSize:    cfg.BatchSize,
		Workers:      cfg.Workers,
		Kinds: pools.EnabledKinds{
			TickInfo: cfg.TickInfo,
			Slot0:    cfg.Slot0,
			Trades:   cfg.Trades,
		},
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
	}, chainClient, store, descriptors, logger)

	logger.Info("poolstates start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("backend", cfg.Backend),
		zap.Uint64("start_block", cfg.StartBlock),
		zap.Uint64("end_block", cfg.EndBlock),
		zap.Int("pools", len(descriptors)),
		zap.Int64("max_work_units", cfg.MaxWorkUnits),
		zap.Int("batch_size", cfg.BatchSize),
	)

	return runner.Run(ctx)
}

// buildStore opens the configured backend. For ClickHouse the pool descriptor
// set can come straight from the store's pools table.
func buildStore(ctx context.Context, cfg config.Config) (storage.Store, []model.PoolDescriptor, func(), error) {
	switch cfg.Backend {
	case "clickhouse":
		store, err := clickhouse.NewStore(cfg.ClickHouseDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("ping clickhouse: %w", err)
		}
		if err := store.EnsureTables(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		var descriptors []model.PoolDescriptor
		if cfg.PoolsFile == "" {
			descriptors, err = store.LoadPoolDescriptors(ctx, cfg.Pools)
			if err != nil {
				store.Close()
				return nil, nil, nil, err
			}
		}
		return store, descriptors, func() { store.Close() }, nil

	case "postgres":
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		return store, nil, store.Close, nil

	case "jsonl":
		return storage.NewJsonlStore(cfg.Out), nil, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
