package flashloan

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/arberr"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestSelect_PrefersBalancerWhenItFits(t *testing.T) {
	caps := SourceCaps{Balancer: eth(1000), Aave: eth(1000)}
	cfg, err := Select(eth(100), 1, 30, caps)
	require.NoError(t, err)
	assert.Equal(t, arbengine.FlashLoanBalancer, cfg.Source)
	assert.Equal(t, uint32(0), cfg.FeeBps)
}

// TestSelect_BalancerCapExceededFallsThroughToAave mirrors the scenario
// where Balancer's pool is too shallow for the requested amount but Aave
// can cover it: the selector should fall through in priority order.
func TestSelect_BalancerCapExceededFallsThroughToAave(t *testing.T) {
	caps := SourceCaps{Balancer: eth(50), Aave: eth(1000)}
	cfg, err := Select(eth(100), 1, 30, caps)
	require.NoError(t, err)
	assert.Equal(t, arbengine.FlashLoanAave, cfg.Source)
	assert.Equal(t, uint32(9), cfg.FeeBps)
}

// TestSelect_UniswapV3FeeMatchesBorrowedPool asserts that a UniswapV3Pool
// flash loan is charged the borrowed pool's own swap fee rather than a
// flat constant, since Uniswap V3 pools have no separate flash fee.
func TestSelect_UniswapV3FeeMatchesBorrowedPool(t *testing.T) {
	caps := SourceCaps{UniswapV3: eth(1000)}
	cfg, err := Select(eth(100), 1, 30, caps)
	require.NoError(t, err)
	assert.Equal(t, arbengine.FlashLoanUniswapV3, cfg.Source)
	assert.Equal(t, uint32(30), cfg.FeeBps)
	assert.Equal(t, uint32(30), cfg.PoolFeeBps)
}

func TestSelect_DYDXOnlyOnMainnet(t *testing.T) {
	caps := SourceCaps{DYDX: eth(1000)}
	_, err := Select(eth(100), 10, 30, caps) // chain 10: optimism, not mainnet
	require.Error(t, err)
	assert.True(t, arberr.IsKind(err, arberr.FlashLoanUnavailable))

	cfg, err := Select(eth(100), 1, 30, caps)
	require.NoError(t, err)
	assert.Equal(t, arbengine.FlashLoanDYDX, cfg.Source)
}

func TestSelect_HybridAaveV4OnlyAboveThreshold(t *testing.T) {
	caps := SourceCaps{HybridAaveV4: eth(100_000_000)}
	_, err := Select(eth(1_000_000), 1, 30, caps) // below the 50M threshold
	require.Error(t, err)

	cfg, err := Select(eth(60_000_000), 1, 30, caps)
	require.NoError(t, err)
	assert.Equal(t, arbengine.FlashLoanHybridAaveV4, cfg.Source)
}

func TestSelect_NoSourceCoversAmount(t *testing.T) {
	caps := SourceCaps{Balancer: eth(1), Aave: eth(1)}
	_, err := Select(eth(1000), 1, 30, caps)
	require.Error(t, err)
	assert.True(t, arberr.IsKind(err, arberr.FlashLoanUnavailable))
}

func TestSelect_RejectsNonPositiveAmount(t *testing.T) {
	_, err := Select(big.NewInt(0), 1, 30, SourceCaps{})
	require.Error(t, err)
}
