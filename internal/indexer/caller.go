package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolstates/internal/chain"
	"poolstates/internal/model"
	"poolstates/internal/pools"
	"poolstates/internal/replay"
)

// Caller processes one block: it partitions the extractor set by capability,
// runs the trace-decoding and full-replay paths concurrently, and returns the
// merged record list. Any failure fails the whole block; the scheduler
// retries the height.
type Caller struct {
	provider   chain.Provider
	extractors []pools.Extractor
	workers    pond.Pool
	logger     *zap.Logger
}

func NewCaller(provider chain.Provider, extractors []pools.Extractor, workers pond.Pool, logger *zap.Logger) *Caller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		provider:   provider,
		extractors: extractors,
		workers:    workers,
		logger:     logger,
	}
}

// WorkUnits is the admission weight of a height: one unit per applicable
// extractor, since each can hold an open state view. Never less than one.
func (c *Caller) WorkUnits(height uint64) int64 {
	units := int64(len(c.applicable(height)))
	if units < 1 {
		units = 1
	}
	return units
}

func (c *Caller) applicable(height uint64) []pools.Extractor {
	var out []pools.Extractor
	for _, ex := range c.extractors {
		if ex.EarliestBlock() <= height {
			out = append(out, ex)
		}
	}
	return out
}

// Process produces all applicable records for the block at height.
func (c *Caller) Process(ctx context.Context, height uint64) ([]model.Record, error) {
	applicable := c.applicable(height)
	if len(applicable) == 0 {
		return nil, nil
	}

	var replayExs, decodeExs []pools.Extractor
	for _, ex := range applicable {
		if ex.NeedsReplay() {
			replayExs = append(replayExs, ex)
		}
		if ex.NeedsDecode() {
			decodeExs = append(decodeExs, ex)
		}
	}

	traces, err := c.provider.TraceBlock(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("trace block %d: %w", height, err)
	}

	var (
		mu      sync.Mutex
		records []model.Record
	)
	collect := func(recs []model.Record) {
		if len(recs) == 0 {
			return
		}
		mu.Lock()
		records = append(records, recs...)
		mu.Unlock()
	}

	eg, ctx := errgroup.WithContext(ctx)
	if len(decodeExs) > 0 {
		eg.Go(func() error {
			return c.runDecodePath(height, traces, decodeExs, collect)
		})
	}
	if len(replayExs) > 0 {
		eg.Go(func() error {
			return c.runReplayPath(ctx, height, traces, replayExs, collect)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return records, nil
}

// runDecodePath decodes the block's pool calls without replaying anything:
// trace data already carries post-execution values.
func (c *Caller) runDecodePath(height uint64, traces []chain.TxTrace, extractors []pools.Extractor, collect func([]model.Record)) error {
	calls := chain.PoolCalls(traces, addressSet(extractors))
	for _, ex := range extractors {
		recs, err := ex.DecodeCalls(height, calls[ex.PoolAddress()])
		if err != nil {
			return fmt.Errorf("decode pool %s at block %d: %w", ex.PoolAddress().Hex(), height, err)
		}
		collect(recs)
	}
	return nil
}

// runReplayPath replays the block once per touched pool, each session on a
// private clone of the parent-block overlay, fanned out on the worker pool.
func (c *Caller) runReplayPath(ctx context.Context, height uint64, traces []chain.TxTrace, extractors []pools.Extractor, collect func([]model.Record)) error {
	if height == 0 {
		return fmt.Errorf("cannot replay the genesis block")
	}

	touched := chain.TouchedPools(traces, addressSet(extractors))

	byPool := make(map[common.Address][]pools.Extractor)
	for _, ex := range extractors {
		addr := ex.PoolAddress()
		if len(touched[addr]) == 0 {
			continue
		}
		byPool[addr] = append(byPool[addr], ex)
	}
	if len(byPool) == 0 {
		return nil
	}

	block, err := c.provider.BlockWithSenders(ctx, height)
	if err != nil {
		return fmt.Errorf("fetch block %d: %w", height, err)
	}

	base := replay.NewOverlay(height - 1)

	group := c.workers.NewGroupContext(ctx)
	for addr, poolExs := range byPool {
		addr, poolExs := addr, poolExs
		hashes := touched[addr]
		group.SubmitErr(func() error {
			session := replay.NewSession(c.provider, base.Clone(), block, hashes, c.logger)
			recs, err := session.Run(ctx, func(ctx context.Context, call replay.CallFn, blockNumber uint64, txHash common.Hash, txIndex uint64) ([]model.Record, error) {
				var out []model.Record
				for _, ex := range poolExs {
					extracted, err := ex.Extract(ctx, call, blockNumber, txHash, txIndex)
					if err != nil {
						return nil, err
					}
					out = append(out, extracted...)
				}
				return out, nil
			})
			if err != nil {
				return fmt.Errorf("replay pool %s at block %d: %w", addr.Hex(), height, err)
			}
			collect(recs)
			return nil
		})
	}
	return group.Wait()
}

func addressSet(extractors []pools.Extractor) map[common.Address]struct{} {
	set := make(map[common.Address]struct{}, len(extractors))
	for _, ex := range extractors {
		set[ex.PoolAddress()] = struct{}{}
	}
	return set
}
