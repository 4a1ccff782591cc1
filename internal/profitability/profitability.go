// Package profitability implements the Profitability Engine: exact
// constant-product/concentrated-liquidity swap accounting (delegated to
// internal/amm), flash-loan fee and gas-cost accounting, and the
// per-pair profitability threshold decision.
package profitability

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/amm"
	"github.com/vantablack/arbengine/internal/arberr"
)

// PriceOracle is the narrow view the Profitability Engine needs from the
// Price Oracle Validator: the latest validated price in borrow tokens
// per 1 ETH, scaled by 1e18, used to convert gas cost (always denominated in wei)
// into the borrow token's units.
type PriceOracle interface {
	CurrentPriceScaled1e18(symbol string) (*big.Int, error)
}

// GasPriceSource supplies the current network gas price in wei, queried
// fresh per candidate since it changes block to block.
type GasPriceSource func() (*big.Int, error)

// Engine computes ProfitBreakdowns and enforces per-pair thresholds.
type Engine struct {
	Oracle           PriceOracle
	GasPrice         GasPriceSource
	DefaultThreshold *big.Int
	PairThresholds   map[string]*big.Int // key: "tokenA-tokenB" (sorted, EIP-55 checksummed hex)
	NativeSymbol     string
}

// New builds a Profitability Engine. defaultThreshold is the fallback
// net-profit-in-borrow-token floor (wei-equivalent) when no per-pair
// override exists.
func New(oracle PriceOracle, gasPrice GasPriceSource, defaultThreshold *big.Int, nativeSymbol string) *Engine {
	return &Engine{
		Oracle:           oracle,
		GasPrice:         gasPrice,
		DefaultThreshold: defaultThreshold,
		PairThresholds:   make(map[string]*big.Int),
		NativeSymbol:     nativeSymbol,
	}
}

// SetPairThreshold installs a per-pair override, used verbatim by
// ThresholdForPair regardless of argument order.
func (e *Engine) SetPairThreshold(tokenA, tokenB common.Address, threshold *big.Int) {
	e.PairThresholds[pairKey(tokenA, tokenB)] = threshold
}

// ThresholdForPair returns the configured net-profit floor for a pair,
// falling back to the engine's default table entry.
func (e *Engine) ThresholdForPair(tokenA, tokenB common.Address) *big.Int {
	if v, ok := e.PairThresholds[pairKey(tokenA, tokenB)]; ok {
		return v
	}
	return e.DefaultThreshold
}

func pairKey(a, b common.Address) string {
	lo, hi := a.Hex(), b.Hex()
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo + "-" + hi
}

// RecomputeHops independently replays a path's swap_out sequence against
// the same snapshotted reserves and returns the resulting amount_out
// sequence, used by callers to assert round-trip determinism.
func RecomputeHops(pools map[string]arbengine.Pool, path arbengine.ArbitragePath) ([]*uint256.Int, error) {
	outs := make([]*uint256.Int, 0, len(path.Hops))
	for _, hop := range path.Hops {
		pool, ok := pools[hop.PoolID]
		if !ok {
			return nil, arberr.New(arberr.PathInvalid, "pool referenced by hop not found in snapshot")
		}
		out, err := amm.SwapOut(&pool, hop.TokenIn, hop.TokenOut, hop.AmountIn)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// CalculateDetailed produces the full ProfitBreakdown for a candidate
// path, a borrow token and a resolved flash-loan configuration. All
// arithmetic is exact-integer. A failed gas-to-token conversion marks
// the candidate not profitable and below threshold and returns the
// partial breakdown without an error; a GasPrice lookup failure returns
// an error for this candidate.
func (e *Engine) CalculateDetailed(path arbengine.ArbitragePath, borrowToken arbengine.Token, flashConfig arbengine.FlashLoanConfig) (arbengine.ProfitBreakdown, error) {
	if len(path.Hops) == 0 {
		return arbengine.ProfitBreakdown{}, arberr.New(arberr.PathInvalid, "empty path")
	}

	initial := new(big.Int).Set(path.Hops[0].AmountIn.ToBig())
	final := new(big.Int).Set(path.Hops[len(path.Hops)-1].AmountOut.ToBig())
	gross := new(big.Int).Sub(final, initial)

	flashFee := bpsOfBig(initial, flashConfig.FeeBps)

	gasWei, err := e.totalGasWei(path)
	if err != nil {
		return arbengine.ProfitBreakdown{}, arberr.Wrap(arberr.MathOverflow, "gas price lookup failed", err)
	}

	gasInToken, convertible := e.convertGasToToken(gasWei, borrowToken.Symbol)
	breakdown := arbengine.ProfitBreakdown{
		Initial:  initial,
		Final:    final,
		Gross:    gross,
		FlashFee: flashFee,
		GasWei:   gasWei,
	}

	if !convertible {
		// Conversion failure: mark unprofitable/below-threshold but
		// return the partial breakdown for logging, never propagate to
		// dispatch.
		breakdown.GasInToken = big.NewInt(0)
		breakdown.TotalCost = new(big.Int).Add(flashFee, breakdown.GasInToken)
		breakdown.Net = new(big.Int).Sub(gross, breakdown.TotalCost)
		breakdown.Profitable = false
		breakdown.MeetsThreshold = false
		return breakdown, nil
	}

	breakdown.GasInToken = gasInToken
	breakdown.TotalCost = new(big.Int).Add(flashFee, gasInToken)
	breakdown.Net = new(big.Int).Sub(gross, breakdown.TotalCost)
	breakdown.Profitable = breakdown.Net.Sign() > 0
	threshold := e.ThresholdForPair(path.Hops[0].TokenIn, path.Hops[len(path.Hops)-1].TokenOut)
	breakdown.MeetsThreshold = threshold != nil && breakdown.Net.Cmp(threshold) >= 0

	if initial.Sign() > 0 {
		roi := new(big.Int).Mul(breakdown.Net, big.NewInt(10_000))
		roi.Div(roi, initial)
		breakdown.RoiBps = roi.Int64()
	}

	return breakdown, nil
}

func (e *Engine) totalGasWei(path arbengine.ArbitragePath) (*big.Int, error) {
	gasPrice := big.NewInt(0)
	if e.GasPrice != nil {
		gp, err := e.GasPrice()
		if err != nil {
			return nil, err
		}
		gasPrice = gp
	}
	totalGas := new(big.Int).SetUint64(path.GasEstimate)
	if totalGas.Sign() == 0 {
		for range path.Hops {
			totalGas.Add(totalGas, big.NewInt(150_000)) // conservative per-hop default
		}
	}
	return new(big.Int).Mul(totalGas, gasPrice), nil
}

func (e *Engine) convertGasToToken(gasWei *big.Int, tokenSymbol string) (*big.Int, bool) {
	if tokenSymbol == "" || tokenSymbol == e.NativeSymbol {
		return new(big.Int).Set(gasWei), true
	}
	if e.Oracle == nil {
		return nil, false
	}
	price, err := e.Oracle.CurrentPriceScaled1e18(tokenSymbol)
	if err != nil || price == nil || price.Sign() <= 0 {
		return nil, false
	}
	// price is "tokens per 1 ETH", scaled 1e18. gas_wei is already
	// 1e18-scaled ETH, so gas_in_token = gas_wei * price / 1e36.
	num := new(big.Int).Mul(gasWei, price)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)
	return num.Div(num, scale), true
}

func bpsOfBig(amount *big.Int, bps uint32) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Div(out, big.NewInt(10_000))
}
