package math

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Fixed-point scale factors used by concentrated-liquidity pools.
var (
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)
)

// ZeroForOne reports whether tokenIn occupies the pool's token0 slot.
// Pools order their tokens by ascending address.
func ZeroForOne(tokenIn, tokenOut common.Address) bool {
	return bytes.Compare(tokenIn.Bytes(), tokenOut.Bytes()) < 0
}

// AmountOut derives the raw output amount for amountIn at the pool's
// current sqrt price. The price encodes token1 per token0, so the
// token0->token1 direction multiplies and the reverse divides.
func AmountOut(sqrtPriceX96, amountIn *big.Int, zeroForOne bool) *big.Int {
	if sqrtPriceX96 == nil || amountIn == nil || sqrtPriceX96.Sign() <= 0 || amountIn.Sign() <= 0 {
		return big.NewInt(0)
	}

	priceX192 := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)

	if zeroForOne {
		out := new(big.Int).Mul(amountIn, priceX192)
		return out.Div(out, Q192)
	}

	out := new(big.Int).Mul(amountIn, Q192)
	return out.Div(out, priceX192)
}

// ApplyFee discounts amountIn by a pool fee tier expressed in
// parts per million (3000 = 0.30%).
func ApplyFee(amountIn *big.Int, feePPM uint32) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return big.NewInt(0)
	}

	out := new(big.Int).Mul(amountIn, big.NewInt(int64(1_000_000-feePPM)))
	return out.Div(out, big.NewInt(1_000_000))
}

// UnitPrice returns the decimal-adjusted tokenOut-per-tokenIn price.
func UnitPrice(sqrtPriceX96 *big.Int, zeroForOne bool, decimalsIn, decimalsOut uint8) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0
	}

	sqrt := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(Q96))
	price := new(big.Float).Mul(sqrt, sqrt)
	if !zeroForOne {
		price.Quo(big.NewFloat(1), price)
	}

	price.Mul(price, pow10(int(decimalsIn)))
	price.Quo(price, pow10(int(decimalsOut)))

	out, _ := price.Float64()
	return out
}

// PriceImpact estimates the fraction of the input-side virtual reserve
// consumed by amountIn. The reserve is reconstructed from liquidity and
// the current sqrt price.
func PriceImpact(sqrtPriceX96, liquidity, amountIn *big.Int, zeroForOne bool) float64 {
	if sqrtPriceX96 == nil || liquidity == nil || amountIn == nil {
		return 0
	}
	if sqrtPriceX96.Sign() <= 0 || liquidity.Sign() <= 0 || amountIn.Sign() <= 0 {
		return 0
	}

	var reserve *big.Int
	if zeroForOne {
		reserve = new(big.Int).Mul(liquidity, Q96)
		reserve.Div(reserve, sqrtPriceX96)
	} else {
		reserve = new(big.Int).Mul(liquidity, sqrtPriceX96)
		reserve.Div(reserve, Q96)
	}
	if reserve.Sign() == 0 {
		return 0
	}

	impact := new(big.Float).Quo(new(big.Float).SetInt(amountIn), new(big.Float).SetInt(reserve))
	out, _ := impact.Float64()
	return out
}

func pow10(n int) *big.Float {
	return new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil))
}
