// Package arbengine implements the on-chain arbitrage and MEV execution
// pipeline: liquidity graph, path discovery, profitability accounting,
// price-oracle validation, flash-loan selection, bundle pre-crime
// simulation, risk gating and the safety governor that arbitrates all of
// it.
package arbengine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DexKind identifies the AMM formula a Pool trades under.
type DexKind int

const (
	DexKindUnknown DexKind = iota
	DexKindConstantProduct
	DexKindConcentratedLiquidity
)

func (k DexKind) String() string {
	switch k {
	case DexKindConstantProduct:
		return "constant_product"
	case DexKindConcentratedLiquidity:
		return "concentrated_liquidity"
	default:
		return "unknown"
	}
}

// Pool is a single on-chain liquidity pool between two tokens. Reserves are
// unsigned 256-bit integers; fee_bps is basis points of 1e-4 (0 to 10000).
type Pool struct {
	ID               string         `json:"id"`
	DexKind          DexKind        `json:"dex_kind"`
	TokenA           common.Address `json:"token_a"`
	TokenB           common.Address `json:"token_b"`
	ReserveA         *uint256.Int   `json:"reserve_a"`
	ReserveB         *uint256.Int   `json:"reserve_b"`
	FeeBps           uint32         `json:"fee_bps"`
	TickSpacing      int32          `json:"tick_spacing,omitempty"`
	SqrtPriceX96     *uint256.Int   `json:"sqrt_price_x96,omitempty"`
	Liquidity        *uint256.Int   `json:"liquidity,omitempty"`
	LastUpdateBlock  uint64         `json:"last_update_block"`
	Active           bool           `json:"active"`
}

// HasPositiveReserves reports whether the pool's reserves satisfy the "strictly
// positive while active" invariant. A pool with a non-positive reserve on
// either side can never be marked active by UpdatePool.
func (p *Pool) HasPositiveReserves() bool {
	if p.ReserveA == nil || p.ReserveB == nil {
		return false
	}
	return !p.ReserveA.IsZero() && !p.ReserveB.IsZero()
}

// LiquidityUSD is a coarse liquidity estimate; callers supply a price
// oracle to convert reserves, this helper just sums two already-converted
// legs. The path finder and graph filters do not use it.
func LiquidityUSD(reserveAUsd, reserveBUsd *big.Int) *big.Int {
	if reserveAUsd == nil || reserveBUsd == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(reserveAUsd, reserveBUsd)
}

// Token is display/decimal metadata for an ERC-20 asset. Identity is the
// address; Symbol is informational only and must never be used as a key.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"` // 0..30
}

// PoolUpdate is the unit of mutation applied to the LiquidityGraph,
// normally derived from a decoded Sync/Swap/Mint/Burn log within one
// confirmed block.
type PoolUpdate struct {
	Pool        Pool
	BlockNumber uint64
	BlockHash   common.Hash
}

// ArbitrageHop is one leg of a candidate path: a swap of amount_in of
// token_in for amount_out of token_out through pool_id, at the reserves
// snapshotted for that discovery round.
type ArbitrageHop struct {
	PoolID    string         `json:"pool_id"`
	TokenIn   common.Address `json:"token_in"`
	TokenOut  common.Address `json:"token_out"`
	AmountIn  *uint256.Int   `json:"amount_in"`
	AmountOut *uint256.Int   `json:"amount_out"`
	FeeBps    uint32         `json:"fee_bps"`
}

// ArbitragePath is a cyclic, ordered sequence of hops: hops[0].TokenIn ==
// hops[len-1].TokenOut. Length must be in [2, MaxPathLen].
type ArbitragePath struct {
	Hops              []ArbitrageHop `json:"hops"`
	GrossProfit       *big.Int       `json:"gross_profit"`
	TotalFeesBps      uint32         `json:"total_fees_bps"`
	GasEstimate       uint64         `json:"gas_estimate"`
	SlippageImpactBps uint32         `json:"slippage_impact_bps"`
	FlashLoanProvider FlashLoanSource `json:"flash_loan_provider,omitempty"`
}

// StartToken returns the cyclic path's origin/destination asset, or the
// zero address for an empty path.
func (p *ArbitragePath) StartToken() common.Address {
	if len(p.Hops) == 0 {
		return common.Address{}
	}
	return p.Hops[0].TokenIn
}

// EndToken returns the final hop's output token, which must equal
// StartToken() for any path accepted by the path finder.
func (p *ArbitragePath) EndToken() common.Address {
	if len(p.Hops) == 0 {
		return common.Address{}
	}
	return p.Hops[len(p.Hops)-1].TokenOut
}

// IsCyclic reports the structural invariant required of every
// ArbitragePath: it starts and ends on the same token and every adjacent
// pair of hops is chained token_out -> token_in.
func (p *ArbitragePath) IsCyclic() bool {
	if len(p.Hops) < 2 {
		return false
	}
	for i := 0; i < len(p.Hops)-1; i++ {
		if p.Hops[i].TokenOut != p.Hops[i+1].TokenIn {
			return false
		}
	}
	return p.StartToken() == p.EndToken()
}

// ProfitBreakdown is the output of the Profitability Engine's
// calculate_detailed operation. All amounts are 256-bit integers until the
// final NetInEth/NetInUsd display conversion.
type ProfitBreakdown struct {
	Initial       *big.Int `json:"initial"`
	Final         *big.Int `json:"final"`
	Gross         *big.Int `json:"gross"`
	FlashFee      *big.Int `json:"flash_fee"`
	GasWei        *big.Int `json:"gas_wei"`
	GasInToken    *big.Int `json:"gas_in_token"`
	TotalCost     *big.Int `json:"total_cost"`
	Net           *big.Int `json:"net"`
	NetInEth      *big.Float `json:"-"`
	NetInUsd      *big.Float `json:"-"`
	RoiBps        int64    `json:"roi_bps"`
	Profitable    bool     `json:"profitable"`
	MeetsThreshold bool    `json:"meets_threshold"`
}

// FlashLoanSource enumerates the supported flash-loan providers in the
// Flash-Loan Source Selector's fixed priority order.
type FlashLoanSource string

const (
	FlashLoanBalancer     FlashLoanSource = "Balancer"
	FlashLoanAave         FlashLoanSource = "Aave"
	FlashLoanUniswapV3    FlashLoanSource = "UniswapV3Pool"
	FlashLoanDYDX         FlashLoanSource = "dYdX"
	FlashLoanHybridAaveV4 FlashLoanSource = "HybridAaveV4"
)

// FlashLoanConfig is the resolved flash-loan arrangement attached to a
// candidate path by the selector.
type FlashLoanConfig struct {
	Source     FlashLoanSource `json:"source"`
	FeeBps     uint32          `json:"fee_bps"`
	PoolFeeBps uint32          `json:"pool_fee_bps,omitempty"`
}

// PriceSnapshot is one validated (or pending) price point tracked by the
// Price Oracle Validator.
type PriceSnapshot struct {
	Symbol         string   `json:"symbol"`
	PriceScaled1e18 *big.Int `json:"price_scaled_1e18"`
	Source         string   `json:"source"`
	TsMs           int64    `json:"ts_ms"`
}

// BundleRecommendation is the Bundle Simulator's verdict on how (or
// whether) to submit a candidate bundle.
type BundleRecommendation string

const (
	RecommendPublicExecute  BundleRecommendation = "PublicExecute"
	RecommendPrivateExecute BundleRecommendation = "PrivateExecute"
	RecommendAbort          BundleRecommendation = "Abort"
)

// ThreatAssessment is the Bundle Simulator's (pre-crime) output.
type ThreatAssessment struct {
	FrontrunProb     float64              `json:"frontrun_prob"`
	BackrunProb      float64              `json:"backrun_prob"`
	SandwichProb     float64              `json:"sandwich_prob"`
	ProfitErosionBps uint32               `json:"profit_erosion_bps"`
	Recommendation   BundleRecommendation `json:"recommendation"`
	Confidence       float64              `json:"confidence"`
	Reasoning        []string             `json:"reasoning"`
}

// RiskLevel is the discrete band a composite risk score is mapped into.
type RiskLevel string

const (
	RiskNegligible RiskLevel = "Negligible"
	RiskLow        RiskLevel = "Low"
	RiskModerate   RiskLevel = "Moderate"
	RiskHigh       RiskLevel = "High"
	RiskCritical   RiskLevel = "Critical"
)

// RiskFactor is one scored category contributing to a RiskResult.
type RiskFactor struct {
	Category    string    `json:"category"`
	Weight      float64   `json:"weight"`
	Probability float64   `json:"probability"`
	Impact      float64   `json:"impact"`
	Level       RiskLevel `json:"level"`
	Mitigation  string    `json:"mitigation,omitempty"`
}

// RiskResult is the Risk & Ethics Gate's composite decision.
type RiskResult struct {
	OverallLevel    RiskLevel    `json:"overall_level"`
	CompositeScore  float64      `json:"composite_score"`
	Factors         []RiskFactor `json:"factors"`
	ShouldProceed   bool         `json:"should_proceed"`
	RequiresReview  bool         `json:"requires_review"`
	Recommendations []string     `json:"recommendations"`
}

// CircuitBreakerPhase is one state of the Safety Governor's circuit
// breaker state machine (Armed -> Tripped -> Cooldown -> Armed).
type CircuitBreakerPhase string

const (
	BreakerArmed    CircuitBreakerPhase = "Armed"
	BreakerTripped  CircuitBreakerPhase = "Tripped"
	BreakerCooldown CircuitBreakerPhase = "Cooldown"
)

// CircuitBreakerState is the externally observable snapshot of the
// circuit breaker.
type CircuitBreakerState struct {
	Phase               CircuitBreakerPhase `json:"phase"`
	Active              bool                `json:"active"`
	TriggerReason       string              `json:"trigger_reason,omitempty"`
	OpenedAt            time.Time           `json:"opened_at,omitempty"`
	CooldownMs          int64               `json:"cooldown_ms"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	CumulativeLoss      *big.Int            `json:"cumulative_loss"`
}

// MempoolTxShadow is one observed (but unconfirmed) transaction retained
// in the Bundle Simulator's bounded LRU mempool shadow cache.
type MempoolTxShadow struct {
	Hash         common.Hash    `json:"hash"`
	To           common.Address `json:"to"`
	GasPriceWei  *big.Int       `json:"gas_price"`
	GasLimit     uint64         `json:"gas_limit"`
	Value        *big.Int       `json:"value"`
	ObservedAt   time.Time      `json:"observed_at"`
}

// CandidateBundle is the ordered set of transactions the Bundle Simulator
// and Dispatch act on, identified by a correlation ID threaded through the
// whole pipeline for logging and metrics.
type CandidateBundle struct {
	ID          string
	Path        ArbitragePath
	Breakdown   ProfitBreakdown
	FlashLoan   FlashLoanConfig
	TargetPool  string
	TargetAddr  common.Address
	ValueWei    *big.Int
	GasLimit    uint64
	GasPriceWei *big.Int
	Deadline    time.Time
}
