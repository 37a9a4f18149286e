package pools

import (
	"math/big"
)

// SqrtPriceToFloat derives the pool price from a Q64.96 square-root price:
// (sqrtPriceX96^2 / 2^192) * 10^(token0Decimals - token1Decimals). The math
// is exact rational; the only rounding happens in the final float64
// conversion, so squaring the 160-bit value loses no precision.
func SqrtPriceToFloat(sqrtPriceX96 *big.Int, token0Decimals, token1Decimals uint8) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return 0
	}

	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	den := new(big.Int).Lsh(big.NewInt(1), 192)

	price := new(big.Rat).SetFrac(num, den)
	price.Mul(price, decimalsFactor(token0Decimals, token1Decimals))

	f, _ := price.Float64()
	return f
}

// TradePrice derives the decimal price of a swap from the absolute token
// amounts: |amountIn| / |amountOut| * 10^(outDecimals - inDecimals), using
// the same exact-rational-then-round strategy.
func TradePrice(amountIn, amountOut *big.Int, inDecimals, outDecimals uint8) float64 {
	if amountIn == nil || amountOut == nil || amountOut.Sign() == 0 {
		return 0
	}

	num := new(big.Int).Abs(amountIn)
	den := new(big.Int).Abs(amountOut)

	price := new(big.Rat).SetFrac(num, den)
	price.Mul(price, decimalsFactor(outDecimals, inDecimals))

	f, _ := price.Float64()
	return f
}

// decimalsFactor returns 10^a / 10^b as an exact rational.
func decimalsFactor(a, b uint8) *big.Rat {
	num := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a)), nil)
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(b)), nil)
	return new(big.Rat).SetFrac(num, den)
}
