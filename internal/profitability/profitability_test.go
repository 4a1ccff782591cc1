package profitability

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/amm"
)

var (
	weth = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc = common.HexToAddress("0x2222222222222222222222222222222222222222")

	gasPrice50Gwei = func() (*big.Int, error) { return big.NewInt(50_000_000_000), nil }
)

func wei(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), big.NewInt(1_000_000_000_000_000_000))
}

func u256Wei(whole int64) *uint256.Int {
	v, _ := uint256.FromBig(wei(whole))
	return v
}

func twoHopPath(amountInWeth int64, amountOutWeth *uint256.Int) arbengine.ArbitragePath {
	return arbengine.ArbitragePath{
		Hops: []arbengine.ArbitrageHop{
			{
				PoolID: "pool-a", TokenIn: weth, TokenOut: usdc,
				AmountIn: u256Wei(amountInWeth), AmountOut: uint256.NewInt(300_000_000_000),
				FeeBps: 30,
			},
			{
				PoolID: "pool-b", TokenIn: usdc, TokenOut: weth,
				AmountIn: uint256.NewInt(300_000_000_000), AmountOut: amountOutWeth,
				FeeBps: 30,
			},
		},
		GasEstimate: 300_000, // 150k/hop
	}
}

func newScenarioEngine() *Engine {
	threshold := new(big.Int).Div(wei(1), big.NewInt(10)) // 0.1 WETH
	return New(nil, gasPrice50Gwei, threshold, "WETH")
}

func TestCalculateDetailed_ProfitableTwoHopAaveLoan(t *testing.T) {
	e := newScenarioEngine()
	path := twoHopPath(100, u256Wei(105))
	flashConfig := arbengine.FlashLoanConfig{Source: arbengine.FlashLoanAave, FeeBps: 9}
	borrow := arbengine.Token{Address: weth, Symbol: "WETH", Decimals: 18}

	bd, err := e.CalculateDetailed(path, borrow, flashConfig)
	require.NoError(t, err)

	t.Logf("gross=%s flashFee=%s gasWei=%s net=%s", bd.Gross, bd.FlashFee, bd.GasWei, bd.Net)
	assert.Equal(t, wei(5), bd.Gross)
	assert.Equal(t, new(big.Int).Div(wei(9), big.NewInt(100)), bd.FlashFee) // 0.09 WETH
	assert.Equal(t, new(big.Int).Div(wei(15), big.NewInt(1000)), bd.GasWei) // 0.015 WETH
	assert.True(t, bd.Profitable)
	assert.True(t, bd.MeetsThreshold)
	assert.Equal(t, new(big.Int).Sub(bd.Gross, bd.TotalCost), bd.Net)
}

func TestCalculateDetailed_BelowThresholdDespitePositiveProfit(t *testing.T) {
	e := newScenarioEngine()
	amountOut := new(big.Int).Add(wei(10), new(big.Int).Div(wei(1), big.NewInt(10)))
	amountOutU256, _ := uint256.FromBig(amountOut)
	path := twoHopPath(10, amountOutU256)
	flashConfig := arbengine.FlashLoanConfig{Source: arbengine.FlashLoanAave, FeeBps: 9}
	borrow := arbengine.Token{Address: weth, Symbol: "WETH", Decimals: 18}

	bd, err := e.CalculateDetailed(path, borrow, flashConfig)
	require.NoError(t, err)

	t.Logf("gross=%s net=%s threshold=%s", bd.Gross, bd.Net, e.ThresholdForPair(weth, weth))
	assert.True(t, bd.Profitable)
	assert.False(t, bd.MeetsThreshold)
}

func TestUniversalInvariant_NetPlusTotalCostEqualsGross(t *testing.T) {
	e := newScenarioEngine()
	path := twoHopPath(100, u256Wei(105))
	bd, err := e.CalculateDetailed(path, arbengine.Token{Symbol: "WETH"}, arbengine.FlashLoanConfig{FeeBps: 9})
	require.NoError(t, err)
	sum := new(big.Int).Add(bd.Net, bd.TotalCost)
	assert.Equal(t, bd.Gross, sum)
	assert.True(t, bd.Net.Cmp(bd.Gross) <= 0)
}

func TestThresholdForPair_PerPairOverride(t *testing.T) {
	e := newScenarioEngine()
	override := wei(1)
	e.SetPairThreshold(weth, usdc, override)
	assert.Equal(t, override, e.ThresholdForPair(weth, usdc))
	assert.Equal(t, override, e.ThresholdForPair(usdc, weth)) // order independent
	assert.NotEqual(t, override, e.ThresholdForPair(weth, weth))
}

func TestRecomputeHops_RoundTripDeterminism(t *testing.T) {
	pool := arbengine.Pool{
		ID: "pool-a", DexKind: arbengine.DexKindConstantProduct,
		TokenA: weth, TokenB: usdc,
		ReserveA: u256Wei(10_000), ReserveB: uint256.NewInt(30_000_000_000_000),
		FeeBps: 30, Active: true,
	}
	amountIn := u256Wei(10)
	out, err := amm.SwapOut(&pool, weth, usdc, amountIn)
	require.NoError(t, err)

	path := arbengine.ArbitragePath{Hops: []arbengine.ArbitrageHop{
		{PoolID: "pool-a", TokenIn: weth, TokenOut: usdc, AmountIn: amountIn, AmountOut: out, FeeBps: 30},
	}}
	pools := map[string]arbengine.Pool{"pool-a": pool}
	recomputed, err := RecomputeHops(pools, path)
	require.NoError(t, err)
	require.Len(t, recomputed, 1)
	assert.Equal(t, out, recomputed[0])
}
