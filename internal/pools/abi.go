package pools

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const v3PoolABIJSON = `[
  {
    "inputs": [],
    "name": "slot0",
    "outputs": [
      {"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"internalType": "int24", "name": "tick", "type": "int24"},
      {"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
      {"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
      {"internalType": "bool", "name": "unlocked", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "int24", "name": "", "type": "int24"}],
    "name": "ticks",
    "outputs": [
      {"internalType": "uint128", "name": "liquidityGross", "type": "uint128"},
      {"internalType": "int128", "name": "liquidityNet", "type": "int128"},
      {"internalType": "uint256", "name": "feeGrowthOutside0X128", "type": "uint256"},
      {"internalType": "uint256", "name": "feeGrowthOutside1X128", "type": "uint256"},
      {"internalType": "int56", "name": "tickCumulativeOutside", "type": "int56"},
      {"internalType": "uint160", "name": "secondsPerLiquidityOutsideX128", "type": "uint160"},
      {"internalType": "uint32", "name": "secondsOutside", "type": "uint32"},
      {"internalType": "bool", "name": "initialized", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "int16", "name": "", "type": "int16"}],
    "name": "tickBitmap",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "tickSpacing",
    "outputs": [{"internalType": "int24", "name": "", "type": "int24"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "recipient", "type": "address"},
      {"internalType": "bool", "name": "zeroForOne", "type": "bool"},
      {"internalType": "int256", "name": "amountSpecified", "type": "int256"},
      {"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"},
      {"internalType": "bytes", "name": "data", "type": "bytes"}
    ],
    "name": "swap",
    "outputs": [
      {"internalType": "int256", "name": "amount0", "type": "int256"},
      {"internalType": "int256", "name": "amount1", "type": "int256"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	poolABIOnce sync.Once
	poolABI     abi.ABI
	poolABIErr  error
)

// V3PoolABI parses the Uniswap V3 pool ABI subset used by the extractors.
func V3PoolABI() (abi.ABI, error) {
	poolABIOnce.Do(func() {
		poolABI, poolABIErr = abi.JSON(strings.NewReader(v3PoolABIJSON))
	})
	return poolABI, poolABIErr
}

// SwapSelector returns the 4-byte selector of the pool swap entry point.
func SwapSelector() ([4]byte, error) {
	parsed, err := V3PoolABI()
	if err != nil {
		return [4]byte{}, err
	}
	var selector [4]byte
	copy(selector[:], parsed.Methods["swap"].ID)
	return selector, nil
}
