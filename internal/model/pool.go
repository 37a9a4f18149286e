package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TokenInfo captures the ERC20 metadata an extractor needs for price math.
type TokenInfo struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// PoolDescriptor describes one monitored pool. The descriptor set is loaded
// once at startup and read-only afterwards.
type PoolDescriptor struct {
	Address       string    `json:"address"`
	Token0        TokenInfo `json:"token0"`
	Token1        TokenInfo `json:"token1"`
	EarliestBlock uint64    `json:"earliest_block"`
}

// PoolAddress parses the descriptor's pool address.
func (d PoolDescriptor) PoolAddress() (common.Address, error) {
	if !common.IsHexAddress(d.Address) {
		return common.Address{}, fmt.Errorf("invalid pool address: %s", d.Address)
	}
	return common.HexToAddress(d.Address), nil
}

// Validate checks that the descriptor is usable.
func (d PoolDescriptor) Validate() error {
	if _, err := d.PoolAddress(); err != nil {
		return err
	}
	if !common.IsHexAddress(d.Token0.Address) {
		return fmt.Errorf("pool %s: invalid token0 address: %s", d.Address, d.Token0.Address)
	}
	if !common.IsHexAddress(d.Token1.Address) {
		return fmt.Errorf("pool %s: invalid token1 address: %s", d.Address, d.Token1.Address)
	}
	return nil
}
