// Package flashloan implements the Flash-Loan Source Selector: a pure,
// ordered-rule function from a requested amount and chain to a concrete
// FlashLoanConfig, with no state of its own beyond per-source caps.
package flashloan

import (
	"math/big"

	"github.com/vantablack/arbengine/internal/arberr"
	arbengine "github.com/vantablack/arbengine"
)

// HybridAaveV4Threshold is the amount above which the hybrid Aave v4
// flash-mint path becomes eligible; Select tries it only after every
// earlier source in the priority order lacks the liquidity.
var HybridAaveV4Threshold = new(big.Int).Mul(big.NewInt(50_000_000), big.NewInt(1_000_000_000_000_000_000))

// SourceCaps holds the per-provider liquidity cap observed for the
// borrow token, queried fresh per candidate by the caller.
type SourceCaps struct {
	Balancer     *big.Int
	Aave         *big.Int
	UniswapV3    *big.Int
	DYDX         *big.Int
	HybridAaveV4 *big.Int
}

// Fees are the flat provider fees, in basis points, used to populate the
// resulting FlashLoanConfig. UniswapV3Pool has no entry here: unlike the
// other sources it charges no separate flash fee, it just requires the
// borrowed amount back plus the pool's own swap fee, so its FeeBps is
// the borrowed pool's configured fee_bps rather than a flat constant.
var Fees = map[arbengine.FlashLoanSource]uint32{
	arbengine.FlashLoanBalancer:     0,
	arbengine.FlashLoanAave:         9,
	arbengine.FlashLoanDYDX:         2,
	arbengine.FlashLoanHybridAaveV4: 9,
}

// Select runs the ordered rule chain: Balancer (zero fee, preferred
// whenever it fits) -> Aave -> UniswapV3Pool -> dYdX (mainnet only) ->
// HybridAaveV4 (only above the large-amount threshold) -> error when
// nothing can cover the amount. poolFeeBps is the borrowed pool's own
// configured fee, charged in place of a flash fee when UniswapV3Pool is
// selected.
func Select(amount *big.Int, chainID int64, poolFeeBps uint32, caps SourceCaps) (arbengine.FlashLoanConfig, error) {
	if amount == nil || amount.Sign() <= 0 {
		return arbengine.FlashLoanConfig{}, arberr.New(arberr.FlashLoanUnavailable, "amount must be positive")
	}

	if fits(amount, caps.Balancer) {
		return build(arbengine.FlashLoanBalancer, poolFeeBps), nil
	}
	if fits(amount, caps.Aave) {
		return build(arbengine.FlashLoanAave, poolFeeBps), nil
	}
	if fits(amount, caps.UniswapV3) {
		return build(arbengine.FlashLoanUniswapV3, poolFeeBps), nil
	}
	if chainID == 1 && fits(amount, caps.DYDX) {
		return build(arbengine.FlashLoanDYDX, poolFeeBps), nil
	}
	if amount.Cmp(HybridAaveV4Threshold) > 0 && fits(amount, caps.HybridAaveV4) {
		return build(arbengine.FlashLoanHybridAaveV4, poolFeeBps), nil
	}

	return arbengine.FlashLoanConfig{}, arberr.New(arberr.FlashLoanUnavailable, "no flash-loan source covers the requested amount")
}

func fits(amount, cap *big.Int) bool {
	return cap != nil && cap.Sign() > 0 && amount.Cmp(cap) <= 0
}

func build(source arbengine.FlashLoanSource, poolFeeBps uint32) arbengine.FlashLoanConfig {
	if source == arbengine.FlashLoanUniswapV3 {
		return arbengine.FlashLoanConfig{Source: source, FeeBps: poolFeeBps, PoolFeeBps: poolFeeBps}
	}
	return arbengine.FlashLoanConfig{Source: source, FeeBps: Fees[source]}
}
