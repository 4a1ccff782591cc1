// Package util holds small on-chain helpers: tick/sqrtPriceX96
// conversions for concentrated liquidity pools (TickToSqrtPriceX96 goes
// through float64, so it is not exact), basis-point arithmetic, ABI
// loading and gas-cost extraction. The swap formulas the profitability
// engine and the path finder use live in internal/amm, not here.
package util

import (
	"math"
	"math/big"
)

// q96 is 2^96, the fixed-point base Uniswap V3 uses for sqrtPriceX96.
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// TickToSqrtPriceX96 converts a V3 tick index to its Q64.96 sqrt-price
// representation: sqrtPriceX96 = sqrt(1.0001^tick) * 2^96.
func TickToSqrtPriceX96(tick int) *big.Int {
	ratio := math.Pow(1.0001, float64(tick))
	sqrtRatio := new(big.Float).SetFloat64(math.Sqrt(ratio))
	scaled := new(big.Float).Mul(sqrtRatio, new(big.Float).SetInt(q96))
	result, _ := scaled.Int(nil)
	return result
}

// SqrtPriceToPrice converts a Q64.96 sqrt price back to a float price
// (token1 per token0): price = (sqrtPriceX96 / 2^96)^2.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	if sqrtPriceX96 == nil {
		return big.NewFloat(0)
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(q96))
	return new(big.Float).Mul(ratio, ratio)
}

// CalculateTickBounds derives a [lower, upper] tick range around
// currentTick reaching rangeWidth/2 (integer division) tick spacings to
// each side, with each bound truncated toward zero onto a multiple of
// tickSpacing, so the range is not always centred on currentTick.
func CalculateTickBounds(currentTick int32, rangeWidth, tickSpacing int) (int32, int32, error) {
	if tickSpacing <= 0 {
		return 0, 0, errOf("tick spacing must be positive")
	}
	if rangeWidth <= 0 {
		return 0, 0, errOf("range width must be positive")
	}
	half := int32(rangeWidth/2) * int32(tickSpacing)
	lower := snapToSpacing(currentTick-half, int32(tickSpacing))
	upper := snapToSpacing(currentTick+half, int32(tickSpacing))
	if lower >= upper {
		upper = lower + int32(tickSpacing)
	}
	return lower, upper, nil
}

func snapToSpacing(tick, spacing int32) int32 {
	if spacing == 0 {
		return tick
	}
	return (tick / spacing) * spacing
}

// ComputeAmounts derives the token0/token1 amounts a position of the
// given tick range would consume at the pool's current sqrtPrice, capped
// by amount0Max/amount1Max. When the current price sits outside the
// range the position is single-sided.
func ComputeAmounts(sqrtPriceX96 *big.Int, currentTick, tickLower, tickUpper int, amount0Max, amount1Max *big.Int) (*big.Int, *big.Int, error) {
	if sqrtPriceX96 == nil || amount0Max == nil || amount1Max == nil {
		return nil, nil, errOf("nil input to ComputeAmounts")
	}
	switch {
	case currentTick < tickLower:
		// Entirely token0.
		return new(big.Int).Set(amount0Max), big.NewInt(0), nil
	case currentTick >= tickUpper:
		// Entirely token1.
		return big.NewInt(0), new(big.Int).Set(amount1Max), nil
	default:
		sqrtLower := TickToSqrtPriceX96(tickLower)
		sqrtUpper := TickToSqrtPriceX96(tickUpper)
		if sqrtUpper.Cmp(sqrtLower) <= 0 || sqrtPriceX96.Cmp(sqrtLower) <= 0 || sqrtPriceX96.Cmp(sqrtUpper) >= 0 {
			return new(big.Int).Set(amount0Max), new(big.Int).Set(amount1Max), nil
		}
		// Liquidity implied by amount0Max against the upper bound, and by
		// amount1Max against the lower bound; take the binding one so
		// neither cap is exceeded.
		l0 := liquidityFromAmount0(amount0Max, sqrtPriceX96, sqrtUpper)
		l1 := liquidityFromAmount1(amount1Max, sqrtLower, sqrtPriceX96)
		liquidity := l0
		if l1.Cmp(l0) < 0 {
			liquidity = l1
		}
		amount0 := amount0FromLiquidity(liquidity, sqrtPriceX96, sqrtUpper)
		amount1 := amount1FromLiquidity(liquidity, sqrtLower, sqrtPriceX96)
		return amount0, amount1, nil
	}
}

func liquidityFromAmount0(amount0, sqrtA, sqrtB *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	num := new(big.Int).Mul(amount0, sqrtA)
	num.Mul(num, sqrtB)
	den := new(big.Int).Mul(q96, new(big.Int).Sub(sqrtB, sqrtA))
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	return num.Div(num, den)
}

func liquidityFromAmount1(amount1, sqrtA, sqrtB *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	den := new(big.Int).Sub(sqrtB, sqrtA)
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(amount1, q96)
	return num.Div(num, den)
}

func amount0FromLiquidity(liquidity, sqrtA, sqrtB *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	num := new(big.Int).Mul(liquidity, q96)
	num.Mul(num, diff)
	den := new(big.Int).Mul(sqrtA, sqrtB)
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	return num.Div(num, den)
}

func amount1FromLiquidity(liquidity, sqrtA, sqrtB *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	num := new(big.Int).Mul(liquidity, diff)
	return num.Div(num, q96)
}

// CalculateMinAmount applies a slippage tolerance percentage to a desired
// amount, floored, matching the teacher's staking slippage guard.
func CalculateMinAmount(desired *big.Int, slippagePct int) *big.Int {
	if desired == nil {
		return big.NewInt(0)
	}
	keep := big.NewInt(int64(100 - slippagePct))
	min := new(big.Int).Mul(desired, keep)
	return min.Div(min, big.NewInt(100))
}

func errOf(msg string) error { return &simpleError{msg} }

type simpleError struct{ msg string }

func (e *simpleError) Error() string { return e.msg }
