package indexer

import (
	"context"
	"fmt"
	"runtime"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolstates/internal/chain"
	"poolstates/internal/model"
	"poolstates/internal/pools"
	"poolstates/internal/sink"
	"poolstates/internal/storage"
)

// RunConfig holds runtime settings for the pipeline.
type RunConfig struct {
	StartBlock        uint64
	EndBlock          uint64
	MaxWorkUnits      int64
	BatchSize         int
	Workers           int
	Kinds             pools.EnabledKinds
	CheckpointPath    string
	CheckpointEnabled bool
}

// Runner wires the scheduler, block caller and sink together and drives one
// full range to completion.
type Runner struct {
	cfg         RunConfig
	provider    chain.Provider
	store       storage.Store
	descriptors []model.PoolDescriptor
	logger      *zap.Logger
}

func NewRunner(cfg RunConfig, provider chain.Provider, store storage.Store, descriptors []model.PoolDescriptor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:         cfg,
		provider:    provider,
		store:       store,
		descriptors: descriptors,
		logger:      logger,
	}
}

// Run executes the pipeline over the configured range.
func (r *Runner) Run(ctx context.Context) error {
	if r.provider == nil {
		return fmt.Errorf("chain provider is nil")
	}
	if r.store == nil {
		return fmt.Errorf("store is nil")
	}
	if len(r.descriptors) == 0 {
		return fmt.Errorf("at least one pool descriptor is required")
	}
	if !r.cfg.Kinds.Any() {
		return fmt.Errorf("at least one record kind must be enabled")
	}

	extractors, err := pools.Build(r.descriptors, r.cfg.Kinds, r.logger)
	if err != nil {
		return err
	}

	start := r.cfg.StartBlock
	if start == 0 {
		start = pools.EarliestBlock(r.descriptors)
	}
	end := r.cfg.EndBlock
	if end == 0 {
		head, err := r.provider.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("get chain head: %w", err)
		}
		end = head
	}

	checkpoint := NewCheckpointStore(r.cfg.CheckpointPath, r.cfg.CheckpointEnabled)
	cp, ok, err := checkpoint.Load()
	if err != nil {
		return err
	}
	if ok && cp.Frontier >= start {
		start = cp.Frontier + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("frontier", cp.Frontier), zap.Uint64("start", start))
	}
	if start > end {
		r.logger.Info("nothing to process", zap.Uint64("start", start), zap.Uint64("end", end))
		return nil
	}

	workerCount := r.cfg.Workers
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	workers := pond.NewPool(workerCount)
	defer workers.StopAndWait()

	caller := NewCaller(r.provider, extractors, workers, r.logger)
	recordSink := sink.New(r.store, r.cfg.BatchSize, r.logger)
	scheduler := NewScheduler(caller, recordSink.In(), r.cfg.MaxWorkUnits, checkpoint, r.logger)

	r.logger.Info("pipeline start",
		zap.Uint64("start", start),
		zap.Uint64("end", end),
		zap.Int("extractors", len(extractors)),
		zap.Int64("max_work_units", r.cfg.MaxWorkUnits),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return recordSink.Run(ctx)
	})
	eg.Go(func() error {
		defer recordSink.Close()
		return scheduler.Run(ctx, start, end)
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	r.logger.Info("pipeline complete", zap.Uint64("start", start), zap.Uint64("end", end))
	return nil
}
