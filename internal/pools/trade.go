package pools

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolstates/internal/chain"
	"poolstates/internal/model"
	"poolstates/internal/replay"
)

// TradeExtractor decodes swap calls against the pool from block traces. It
// never replays: trace data already carries post-execution values.
type TradeExtractor struct {
	pool          common.Address
	token0        model.TokenInfo
	token1        model.TokenInfo
	earliestBlock uint64
	selector      [4]byte
	logger        *zap.Logger
}

// NewTradeExtractor builds a decode-only trade extractor for the pool.
func NewTradeExtractor(pool common.Address, token0, token1 model.TokenInfo, earliestBlock uint64, logger *zap.Logger) (*TradeExtractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	selector, err := SwapSelector()
	if err != nil {
		return nil, err
	}
	return &TradeExtractor{
		pool:          pool,
		token0:        token0,
		token1:        token1,
		earliestBlock: earliestBlock,
		selector:      selector,
		logger:        logger,
	}, nil
}

func (e *TradeExtractor) PoolAddress() common.Address { return e.pool }
func (e *TradeExtractor) EarliestBlock() uint64       { return e.earliestBlock }
func (e *TradeExtractor) NeedsReplay() bool           { return false }
func (e *TradeExtractor) NeedsDecode() bool           { return true }

// Extract is unused: trades come from the decode path.
func (e *TradeExtractor) Extract(context.Context, replay.CallFn, uint64, common.Hash, uint64) ([]model.Record, error) {
	return nil, nil
}

// DecodeCalls decodes every swap call into a trade record.
func (e *TradeExtractor) DecodeCalls(blockNumber uint64, calls []chain.TraceCall) ([]model.Record, error) {
	parsed, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	method := parsed.Methods["swap"]

	var records []model.Record
	for _, call := range calls {
		if call.Selector != e.selector {
			continue
		}

		inputs, err := method.Inputs.Unpack(call.Input[4:])
		if err != nil {
			return nil, fmt.Errorf("decode swap input for tx %s: %w", call.TxHash.Hex(), err)
		}
		zeroForOne, ok := inputs[1].(bool)
		if !ok {
			return nil, fmt.Errorf("swap input for tx %s: zeroForOne is %T", call.TxHash.Hex(), inputs[1])
		}

		outputs, err := method.Outputs.Unpack(call.Output)
		if err != nil {
			return nil, fmt.Errorf("decode swap output for tx %s: %w", call.TxHash.Hex(), err)
		}
		amount0, ok0 := outputs[0].(*big.Int)
		amount1, ok1 := outputs[1].(*big.Int)
		if !ok0 || !ok1 {
			return nil, fmt.Errorf("swap output for tx %s: unexpected types %T/%T", call.TxHash.Hex(), outputs[0], outputs[1])
		}

		records = append(records, model.Record{Trade: e.buildTrade(blockNumber, call.TxHash, zeroForOne, amount0, amount1)})
	}

	e.logger.Debug("decoded trades",
		zap.String("pool", e.pool.Hex()),
		zap.Uint64("block", blockNumber),
		zap.Int("trades", len(records)),
	)

	return records, nil
}

// buildTrade assigns the token sides by the swap direction: zeroForOne means
// token0 enters the pool and token1 leaves it.
func (e *TradeExtractor) buildTrade(blockNumber uint64, txHash common.Hash, zeroForOne bool, amount0, amount1 *big.Int) *model.Trade {
	tokenIn, tokenOut := e.token0, e.token1
	amountIn, amountOut := amount0, amount1
	if !zeroForOne {
		tokenIn, tokenOut = e.token1, e.token0
		amountIn, amountOut = amount1, amount0
	}

	return &model.Trade{
		BlockNumber:      blockNumber,
		PoolAddress:      e.pool,
		TxHash:           txHash,
		TokenIn:          common.HexToAddress(tokenIn.Address),
		TokenInDecimals:  tokenIn.Decimals,
		TokenInAmount:    amountIn,
		TokenOut:         common.HexToAddress(tokenOut.Address),
		TokenOutDecimals: tokenOut.Decimals,
		TokenOutAmount:   amountOut,
		CalculatedPrice:  TradePrice(amountIn, amountOut, tokenIn.Decimals, tokenOut.Decimals),
	}
}
