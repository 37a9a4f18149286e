package pools

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolstates/internal/chain"
	"poolstates/internal/model"
	"poolstates/internal/replay"
)

// Slot0Extractor reads the pool's packed slot0 state after each touched
// transaction and derives the decimal price.
type Slot0Extractor struct {
	pool          common.Address
	token0        model.TokenInfo
	token1        model.TokenInfo
	earliestBlock uint64
	logger        *zap.Logger
}

// NewSlot0Extractor builds a slot0 extractor for the pool.
func NewSlot0Extractor(pool common.Address, token0, token1 model.TokenInfo, earliestBlock uint64, logger *zap.Logger) *Slot0Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slot0Extractor{
		pool:          pool,
		token0:        token0,
		token1:        token1,
		earliestBlock: earliestBlock,
		logger:        logger,
	}
}

func (e *Slot0Extractor) PoolAddress() common.Address { return e.pool }
func (e *Slot0Extractor) EarliestBlock() uint64       { return e.earliestBlock }
func (e *Slot0Extractor) NeedsReplay() bool           { return true }
func (e *Slot0Extractor) NeedsDecode() bool           { return false }

// DecodeCalls is unused: slot0 state is only reachable through replay.
func (e *Slot0Extractor) DecodeCalls(uint64, []chain.TraceCall) ([]model.Record, error) {
	return nil, nil
}

// Extract produces exactly one slot0 record for the matched transaction.
func (e *Slot0Extractor) Extract(ctx context.Context, call replay.CallFn, blockNumber uint64, txHash common.Hash, txIndex uint64) ([]model.Record, error) {
	slot0, err := readSlot0(ctx, call, e.pool)
	if err != nil {
		return nil, err
	}

	record := &model.Slot0{
		BlockNumber:                blockNumber,
		PoolAddress:                e.pool,
		Token0:                     common.HexToAddress(e.token0.Address),
		Token0Decimals:             e.token0.Decimals,
		Token1:                     common.HexToAddress(e.token1.Address),
		Token1Decimals:             e.token1.Decimals,
		TxHash:                     txHash,
		TxIndex:                    txIndex,
		Tick:                       slot0.Tick,
		SqrtPriceX96:               slot0.SqrtPriceX96,
		CalculatedPrice:            SqrtPriceToFloat(slot0.SqrtPriceX96, e.token0.Decimals, e.token1.Decimals),
		ObservationIndex:           slot0.ObservationIndex,
		ObservationCardinality:     slot0.ObservationCardinality,
		ObservationCardinalityNext: slot0.ObservationCardinalityNext,
		FeeProtocol:                slot0.FeeProtocol,
		Unlocked:                   slot0.Unlocked,
	}

	e.logger.Debug("extracted slot0",
		zap.String("pool", e.pool.Hex()),
		zap.Uint64("block", blockNumber),
		zap.String("tx", txHash.Hex()),
	)

	return []model.Record{{Slot0: record}}, nil
}
