package pools

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolstates/internal/chain"
	"poolstates/internal/model"
	"poolstates/internal/replay"
)

// Uniswap V3 bounds the usable tick range to [-887272, 887272]; a bitmap
// word covers 256 compressed ticks.
const (
	minTickWord = int16(-887272 >> 8)
	maxTickWord = int16(887272 >> 8)
)

// WordBitmap pairs a bitmap word index with its 256-bit flag set.
type WordBitmap struct {
	Word   int16
	Bitmap *big.Int
}

// TickExtractor reads every initialized tick of the pool after each touched
// transaction.
type TickExtractor struct {
	pool          common.Address
	minWord       int16
	maxWord       int16
	earliestBlock uint64
	logger        *zap.Logger
}

// NewTickExtractor builds a tick-info extractor scanning the full tick range.
func NewTickExtractor(pool common.Address, earliestBlock uint64, logger *zap.Logger) *TickExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TickExtractor{
		pool:          pool,
		minWord:       minTickWord,
		maxWord:       maxTickWord,
		earliestBlock: earliestBlock,
		logger:        logger,
	}
}

func (e *TickExtractor) PoolAddress() common.Address { return e.pool }
func (e *TickExtractor) EarliestBlock() uint64       { return e.earliestBlock }
func (e *TickExtractor) NeedsReplay() bool           { return true }
func (e *TickExtractor) NeedsDecode() bool           { return false }

// DecodeCalls is unused: tick state is only reachable through replay.
func (e *TickExtractor) DecodeCalls(uint64, []chain.TraceCall) ([]model.Record, error) {
	return nil, nil
}

// Extract walks the pool's tick bitmap, decodes set bits into tick indices,
// and reads the on-chain state of every initialized tick.
func (e *TickExtractor) Extract(ctx context.Context, call replay.CallFn, blockNumber uint64, txHash common.Hash, txIndex uint64) ([]model.Record, error) {
	bitmaps := make([]WordBitmap, 0)
	for word := e.minWord; word < e.maxWord; word++ {
		bitmap, err := readTickBitmap(ctx, call, e.pool, word)
		if err != nil {
			return nil, err
		}
		if bitmap.Sign() != 0 {
			bitmaps = append(bitmaps, WordBitmap{Word: word, Bitmap: bitmap})
		}
	}
	if len(bitmaps) == 0 {
		return nil, nil
	}

	tickSpacing, err := readTickSpacing(ctx, call, e.pool)
	if err != nil {
		return nil, err
	}

	ticks := TicksFromBitmaps(bitmaps, tickSpacing)
	if len(ticks) == 0 {
		return nil, nil
	}

	records := make([]model.Record, 0, len(ticks))
	for _, tick := range ticks {
		state, err := readTick(ctx, call, e.pool, tick)
		if err != nil {
			return nil, err
		}
		records = append(records, model.Record{TickInfo: &model.TickInfo{
			BlockNumber:                    blockNumber,
			PoolAddress:                    e.pool,
			TxHash:                         txHash,
			TxIndex:                        txIndex,
			Tick:                           tick,
			TickSpacing:                    tickSpacing,
			LiquidityGross:                 state.LiquidityGross,
			LiquidityNet:                   state.LiquidityNet,
			FeeGrowthOutside0X128:          state.FeeGrowthOutside0X128,
			FeeGrowthOutside1X128:          state.FeeGrowthOutside1X128,
			TickCumulativeOutside:          state.TickCumulativeOutside,
			SecondsPerLiquidityOutsideX128: state.SecondsPerLiquidityOutsideX128,
			SecondsOutside:                 state.SecondsOutside,
			Initialized:                    state.Initialized,
		}})
	}

	e.logger.Debug("extracted tick state",
		zap.String("pool", e.pool.Hex()),
		zap.Uint64("block", blockNumber),
		zap.String("tx", txHash.Hex()),
		zap.Int("ticks", len(records)),
	)

	return records, nil
}

// TicksFromBitmaps decodes set bitmap bits into tick indices:
// tick = (word*256 + bit) * tickSpacing, sign-aware for negative words.
func TicksFromBitmaps(bitmaps []WordBitmap, tickSpacing int32) []int32 {
	var ticks []int32
	for _, entry := range bitmaps {
		if entry.Bitmap == nil || entry.Bitmap.Sign() == 0 {
			continue
		}
		for bit := 0; bit < 256; bit++ {
			if entry.Bitmap.Bit(bit) == 0 {
				continue
			}
			ticks = append(ticks, (int32(entry.Word)*256+int32(bit))*tickSpacing)
		}
	}
	return ticks
}
