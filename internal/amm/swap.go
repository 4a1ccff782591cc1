// Package amm implements the exact-integer swap formulas the
// Profitability Engine depends on: constant-product (x*y=k) and a
// single-tick-range concentrated-liquidity formula modeled on Uniswap
// V3's sqrtPriceX96 math. Every formula rounds toward the protocol
// (floors the output) so a mismatch against on-chain behavior is a hard
// bug, never a rounding grey area.
package amm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/arberr"
)

var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// SwapOut computes the exact output amount for a swap of amountIn of
// tokenIn through pool, honoring fee_bps and the pool's dex kind. The
// caller must pass amountIn already validated positive; a zero-liquidity
// pool or insufficient reserves yields arberr.PathInvalid, never a panic.
func SwapOut(pool *arbengine.Pool, tokenIn, tokenOut common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	if pool == nil || amountIn == nil || amountIn.IsZero() {
		return nil, arberr.New(arberr.PathInvalid, "nil pool or zero amount_in")
	}
	if !pool.HasPositiveReserves() && pool.DexKind == arbengine.DexKindConstantProduct {
		return nil, arberr.New(arberr.PathInvalid, "pool has non-positive reserves")
	}

	reserveIn, reserveOut, err := orientedReserves(pool, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	switch pool.DexKind {
	case arbengine.DexKindConcentratedLiquidity:
		return concentratedSwapOut(pool, reserveIn, reserveOut, amountIn)
	default:
		return constantProductSwapOut(reserveIn, reserveOut, amountIn, pool.FeeBps)
	}
}

func orientedReserves(pool *arbengine.Pool, tokenIn, tokenOut common.Address) (in, out *uint256.Int, err error) {
	switch {
	case pool.TokenA == tokenIn && pool.TokenB == tokenOut:
		return pool.ReserveA, pool.ReserveB, nil
	case pool.TokenB == tokenIn && pool.TokenA == tokenOut:
		return pool.ReserveB, pool.ReserveA, nil
	default:
		return nil, nil, arberr.New(arberr.PathInvalid, "pool does not bridge token_in/token_out")
	}
}

// constantProductSwapOut applies the classic x*y=k formula with the fee
// deducted from amount_in before the product invariant, floored:
//
//	amountInWithFee = amountIn * (10000 - feeBps)
//	amountOut = (amountInWithFee * reserveOut) / (reserveIn*10000 + amountInWithFee)
func constantProductSwapOut(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint32) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, arberr.New(arberr.PathInvalid, "zero-liquidity pool")
	}
	kept := new(uint256.Int).SetUint64(uint64(10_000 - feeBps))
	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, kept)
	if overflow {
		return nil, arberr.New(arberr.MathOverflow, "amount_in * fee_factor overflowed")
	}

	numerator, overflow := new(uint256.Int).MulOverflow(amountInWithFee, reserveOut)
	if overflow {
		return nil, arberr.New(arberr.MathOverflow, "numerator overflowed")
	}

	reserveInScaled, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(10_000))
	if overflow {
		return nil, arberr.New(arberr.MathOverflow, "reserve_in scaling overflowed")
	}
	denominator, overflow := new(uint256.Int).AddOverflow(reserveInScaled, amountInWithFee)
	if overflow {
		return nil, arberr.New(arberr.MathOverflow, "denominator overflowed")
	}
	if denominator.IsZero() {
		return nil, arberr.New(arberr.MathOverflow, "zero denominator")
	}

	amountOut := new(uint256.Int).Div(numerator, denominator) // integer division floors.
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, arberr.New(arberr.PathInvalid, "swap would drain reserve_out")
	}
	return amountOut, nil
}

// concentratedSwapOut approximates a single-tick-range V3 swap: it moves
// sqrtPriceX96 by the fee-adjusted input against the pool's active
// liquidity and derives the output from the price delta. Crossing ticks
// is not modeled, and no caller rejects an amount that would exhaust the
// active range.
func concentratedSwapOut(pool *arbengine.Pool, reserveIn, _ *uint256.Int, amountIn *uint256.Int) (*uint256.Int, error) {
	if pool.SqrtPriceX96 == nil || pool.Liquidity == nil || pool.Liquidity.IsZero() {
		return nil, arberr.New(arberr.PathInvalid, "concentrated pool missing sqrt price or liquidity")
	}

	sqrtPrice := pool.SqrtPriceX96.ToBig()
	liquidity := pool.Liquidity.ToBig()
	kept := big.NewInt(int64(10_000 - pool.FeeBps))
	amountInWithFee := new(big.Int).Mul(amountIn.ToBig(), kept)
	amountInWithFee.Div(amountInWithFee, big.NewInt(10_000))

	// sqrtPriceNext = (liquidity * Q96 * sqrtPrice) / (liquidity*Q96 + amountInWithFee*sqrtPrice)
	liquidityQ96 := new(big.Int).Mul(liquidity, q96)
	num := new(big.Int).Mul(liquidityQ96, sqrtPrice)
	denTerm := new(big.Int).Mul(amountInWithFee, sqrtPrice)
	den := new(big.Int).Add(liquidityQ96, denTerm)
	if den.Sign() == 0 {
		return nil, arberr.New(arberr.MathOverflow, "zero denominator in concentrated swap")
	}
	// Round the next price up: a lower next price would overstate the
	// price delta and with it the output.
	sqrtPriceNext, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		sqrtPriceNext.Add(sqrtPriceNext, big.NewInt(1))
	}

	if sqrtPriceNext.Cmp(sqrtPrice) >= 0 {
		return nil, arberr.New(arberr.PathInvalid, "concentrated swap produced non-decreasing price")
	}
	priceDelta := new(big.Int).Sub(sqrtPrice, sqrtPriceNext)
	amountOut := new(big.Int).Mul(liquidity, priceDelta)
	amountOut.Div(amountOut, q96) // floor: rounds toward the protocol.

	out, overflow := uint256.FromBig(amountOut)
	if overflow {
		return nil, arberr.New(arberr.MathOverflow, "amount_out exceeds uint256")
	}
	return out, nil
}
