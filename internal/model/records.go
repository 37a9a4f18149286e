package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies one of the persisted record tables.
type Kind string

const (
	KindTickInfo Kind = "tick_info"
	KindSlot0    Kind = "slot0"
	KindTrade    Kind = "trade"
)

// TickInfo is the on-chain state of a single initialized tick after a
// transaction that touched the pool.
type TickInfo struct {
	BlockNumber                    uint64         `json:"block_number"`
	PoolAddress                    common.Address `json:"pool_address"`
	TxHash                         common.Hash    `json:"tx_hash"`
	TxIndex                        uint64         `json:"tx_index"`
	Tick                           int32          `json:"tick"`
	TickSpacing                    int32          `json:"tick_spacing"`
	LiquidityGross                 *big.Int       `json:"liquidity_gross"`
	LiquidityNet                   *big.Int       `json:"liquidity_net"`
	FeeGrowthOutside0X128          *big.Int       `json:"fee_growth_outside_0_x128"`
	FeeGrowthOutside1X128          *big.Int       `json:"fee_growth_outside_1_x128"`
	TickCumulativeOutside          int64          `json:"tick_cumulative_outside"`
	SecondsPerLiquidityOutsideX128 *big.Int       `json:"seconds_per_liquidity_outside_x128"`
	SecondsOutside                 uint32         `json:"seconds_outside"`
	Initialized                    bool           `json:"initialized"`
}

// Slot0 is the pool's packed current state after a transaction that touched
// the pool, plus the price derived from sqrtPriceX96.
type Slot0 struct {
	BlockNumber                uint64         `json:"block_number"`
	PoolAddress                common.Address `json:"pool_address"`
	Token0                     common.Address `json:"token0"`
	Token0Decimals             uint8          `json:"token0_decimals"`
	Token1                     common.Address `json:"token1"`
	Token1Decimals             uint8          `json:"token1_decimals"`
	TxHash                     common.Hash    `json:"tx_hash"`
	TxIndex                    uint64         `json:"tx_index"`
	Tick                       int32          `json:"tick"`
	SqrtPriceX96               *big.Int       `json:"sqrt_price_x96"`
	CalculatedPrice            float64        `json:"calculated_price"`
	ObservationIndex           uint16         `json:"observation_index"`
	ObservationCardinality     uint16         `json:"observation_cardinality"`
	ObservationCardinalityNext uint16         `json:"observation_cardinality_next"`
	FeeProtocol                uint8          `json:"fee_protocol"`
	Unlocked                   bool           `json:"unlocked"`
}

// Trade is a decoded swap call against the pool.
type Trade struct {
	BlockNumber      uint64         `json:"block_number"`
	PoolAddress      common.Address `json:"pool_address"`
	TxHash           common.Hash    `json:"tx_hash"`
	TokenIn          common.Address `json:"token_in"`
	TokenInDecimals  uint8          `json:"token_in_decimals"`
	TokenInAmount    *big.Int       `json:"token_in_amount"`
	TokenOut         common.Address `json:"token_out"`
	TokenOutDecimals uint8          `json:"token_out_decimals"`
	TokenOutAmount   *big.Int       `json:"token_out_amount"`
	CalculatedPrice  float64        `json:"calculated_price"`
}

// Record is a tagged union over the three record kinds. Exactly one field is
// non-nil.
type Record struct {
	TickInfo *TickInfo `json:"tick_info,omitempty"`
	Slot0    *Slot0    `json:"slot0,omitempty"`
	Trade    *Trade    `json:"trade,omitempty"`
}

// Kind reports which variant the record carries.
func (r Record) Kind() Kind {
	switch {
	case r.TickInfo != nil:
		return KindTickInfo
	case r.Slot0 != nil:
		return KindSlot0
	default:
		return KindTrade
	}
}

// BlockNumber returns the block the record was extracted at.
func (r Record) BlockNumber() uint64 {
	switch {
	case r.TickInfo != nil:
		return r.TickInfo.BlockNumber
	case r.Slot0 != nil:
		return r.Slot0.BlockNumber
	case r.Trade != nil:
		return r.Trade.BlockNumber
	default:
		return 0
	}
}

// Combine splits a mixed record list into per-kind slices, preserving order
// within each kind.
func Combine(records []Record) ([]TickInfo, []Slot0, []Trade) {
	var (
		ticks  []TickInfo
		slot0s []Slot0
		trades []Trade
	)
	for _, r := range records {
		switch {
		case r.TickInfo != nil:
			ticks = append(ticks, *r.TickInfo)
		case r.Slot0 != nil:
			slot0s = append(slot0s, *r.Slot0)
		case r.Trade != nil:
			trades = append(trades, *r.Trade)
		}
	}
	return ticks, slot0s, trades
}
