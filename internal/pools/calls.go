package pools

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolstates/internal/replay"
)

// Slot0Result is the unpacked return of the pool's slot0() call.
type Slot0Result struct {
	SqrtPriceX96               *big.Int
	Tick                       int32
	ObservationIndex           uint16
	ObservationCardinality     uint16
	ObservationCardinalityNext uint16
	FeeProtocol                uint8
	Unlocked                   bool
}

// TickResult is the unpacked return of the pool's ticks(int24) call.
type TickResult struct {
	LiquidityGross                 *big.Int
	LiquidityNet                   *big.Int
	FeeGrowthOutside0X128          *big.Int
	FeeGrowthOutside1X128          *big.Int
	TickCumulativeOutside          int64
	SecondsPerLiquidityOutsideX128 *big.Int
	SecondsOutside                 uint32
	Initialized                    bool
}

func readSlot0(ctx context.Context, call replay.CallFn, pool common.Address) (Slot0Result, error) {
	parsed, err := V3PoolABI()
	if err != nil {
		return Slot0Result{}, err
	}

	input, err := parsed.Pack("slot0")
	if err != nil {
		return Slot0Result{}, fmt.Errorf("pack slot0: %w", err)
	}

	data, err := call(ctx, pool, input)
	if err != nil {
		return Slot0Result{}, fmt.Errorf("slot0 call: %w", err)
	}

	values, err := parsed.Unpack("slot0", data)
	if err != nil {
		return Slot0Result{}, fmt.Errorf("unpack slot0: %w", err)
	}
	if len(values) != 7 {
		return Slot0Result{}, fmt.Errorf("slot0 returned %d values", len(values))
	}

	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return Slot0Result{}, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tick, err := asInt32(values[1])
	if err != nil {
		return Slot0Result{}, fmt.Errorf("tick: %w", err)
	}

	return Slot0Result{
		SqrtPriceX96:               sqrtPrice,
		Tick:                       tick,
		ObservationIndex:           values[2].(uint16),
		ObservationCardinality:     values[3].(uint16),
		ObservationCardinalityNext: values[4].(uint16),
		FeeProtocol:                values[5].(uint8),
		Unlocked:                   values[6].(bool),
	}, nil
}

func readTick(ctx context.Context, call replay.CallFn, pool common.Address, tick int32) (TickResult, error) {
	parsed, err := V3PoolABI()
	if err != nil {
		return TickResult{}, err
	}

	input, err := parsed.Pack("ticks", big.NewInt(int64(tick)))
	if err != nil {
		return TickResult{}, fmt.Errorf("pack ticks(%d): %w", tick, err)
	}

	data, err := call(ctx, pool, input)
	if err != nil {
		return TickResult{}, fmt.Errorf("ticks(%d) call: %w", tick, err)
	}

	values, err := parsed.Unpack("ticks", data)
	if err != nil {
		return TickResult{}, fmt.Errorf("unpack ticks(%d): %w", tick, err)
	}
	if len(values) != 8 {
		return TickResult{}, fmt.Errorf("ticks returned %d values", len(values))
	}

	liquidityGross, err := asBigInt(values[0])
	if err != nil {
		return TickResult{}, fmt.Errorf("liquidityGross: %w", err)
	}
	liquidityNet, err := asBigInt(values[1])
	if err != nil {
		return TickResult{}, fmt.Errorf("liquidityNet: %w", err)
	}
	feeGrowth0, err := asBigInt(values[2])
	if err != nil {
		return TickResult{}, fmt.Errorf("feeGrowthOutside0X128: %w", err)
	}
	feeGrowth1, err := asBigInt(values[3])
	if err != nil {
		return TickResult{}, fmt.Errorf("feeGrowthOutside1X128: %w", err)
	}
	tickCumulative, err := asBigInt(values[4])
	if err != nil {
		return TickResult{}, fmt.Errorf("tickCumulativeOutside: %w", err)
	}
	secondsPerLiquidity, err := asBigInt(values[5])
	if err != nil {
		return TickResult{}, fmt.Errorf("secondsPerLiquidityOutsideX128: %w", err)
	}

	return TickResult{
		LiquidityGross:                 liquidityGross,
		LiquidityNet:                   liquidityNet,
		FeeGrowthOutside0X128:          feeGrowth0,
		FeeGrowthOutside1X128:          feeGrowth1,
		TickCumulativeOutside:          tickCumulative.Int64(),
		SecondsPerLiquidityOutsideX128: secondsPerLiquidity,
		SecondsOutside:                 values[6].(uint32),
		Initialized:                    values[7].(bool),
	}, nil
}

func readTickBitmap(ctx context.Context, call replay.CallFn, pool common.Address, word int16) (*big.Int, error) {
	parsed, err := V3PoolABI()
	if err != nil {
		return nil, err
	}

	input, err := parsed.Pack("tickBitmap", word)
	if err != nil {
		return nil, fmt.Errorf("pack tickBitmap(%d): %w", word, err)
	}

	data, err := call(ctx, pool, input)
	if err != nil {
		return nil, fmt.Errorf("tickBitmap(%d) call: %w", word, err)
	}

	values, err := parsed.Unpack("tickBitmap", data)
	if err != nil {
		return nil, fmt.Errorf("unpack tickBitmap(%d): %w", word, err)
	}
	return asBigInt(values[0])
}

func readTickSpacing(ctx context.Context, call replay.CallFn, pool common.Address) (int32, error) {
	parsed, err := V3PoolABI()
	if err != nil {
		return 0, err
	}

	input, err := parsed.Pack("tickSpacing")
	if err != nil {
		return 0, fmt.Errorf("pack tickSpacing: %w", err)
	}

	data, err := call(ctx, pool, input)
	if err != nil {
		return 0, fmt.Errorf("tickSpacing call: %w", err)
	}

	values, err := parsed.Unpack("tickSpacing", data)
	if err != nil {
		return 0, fmt.Errorf("unpack tickSpacing: %w", err)
	}
	return asInt32(values[0])
}

func asBigInt(value interface{}) (*big.Int, error) {
	typed, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", value)
	}
	return typed, nil
}

func asInt32(value interface{}) (int32, error) {
	typed, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if !typed.IsInt64() {
		return 0, fmt.Errorf("value out of int32 range: %s", typed)
	}
	v := typed.Int64()
	if v > 1<<31-1 || v < -(1<<31) {
		return 0, fmt.Errorf("value out of int32 range: %d", v)
	}
	return int32(v), nil
}
