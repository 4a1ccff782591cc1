package configs

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
rpc: "https://mainnet.example.org"
chain_id: 1
dsn: "root:root@tcp(127.0.0.1:3306)/arbengine"
executor:
  address: "0x00000000000000000000000000000000000001"
  abi: "abis/executor.json"
pathfinder:
  max_path_len: 3
  max_cum_fee_bps: 150
  min_liquidity_usd: "10000"
  start_tokens: ["0x00000000000000000000000000000000000002"]
  max_pool_age_blocks: 50
  stale_feed_seconds: 30
profitability:
  min_arbitrage_profit_usd: "50"
  native_symbol: "ETH"
  profit_thresholds:
    "0x0000000000000000000000000000000000000002-0x0000000000000000000000000000000000000003": "100"
oracle:
  max_rate_change_bps: 400
  timelock_seconds: 20
safety:
  circuit_breaker_error_window_sec: 300
  circuit_breaker_error_threshold: 3
  circuit_breaker_cooldown_sec: 60
  circuit_breaker_max_cum_loss_usd: "5000"
  rate_limit_per_sec: 2
  rate_limit_burst: 4
flash_loan:
  balancer_cap: "1000000"
  aave_cap: "500000"
private_relay:
  enabled: true
  url: "https://relay.example.org"
  refund_bps_to_user: 8000
orchestrator:
  path_buffer_size: 1000
  opportunity_buffer_size: 2000
  candidate_deadline_ms: 75
  workers: 2
  available_capital_usd: "1000000"
  default_gas_limit: 400000
tokens:
  - address: "0x0000000000000000000000000000000000000002"
    symbol: "WETH"
    decimals: 18
    min_price_usd: "100"
    max_price_usd: "10000"
pools:
  - id: "weth-usdc-v2"
    address: "0x00000000000000000000000000000000000004"
    token_a: "0x0000000000000000000000000000000000000002"
    token_b: "0x0000000000000000000000000000000000000003"
    dex_kind: "constant_product"
    fee_bps: 30
dry_run: true
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	return path
}

func TestLoadConfig_ParsesKnownFields(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://mainnet.example.org", cfg.RPC)
	assert.Equal(t, int64(1), cfg.ChainID)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 3, cfg.Pathfinder.MaxPathLen)
	assert.True(t, cfg.PrivateRelay.Enabled)
	assert.Equal(t, uint32(8000), cfg.PrivateRelay.RefundBpsToUser)
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("rpc: \"x\"\nnot_a_real_field: 1\n"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestToPathfinder_DefaultsMaxPathLen(t *testing.T) {
	cfg := &Config{}
	finder := cfg.ToPathfinder(func(common.Address) *uint256.Int { return nil })
	assert.NotNil(t, finder)
	assert.Equal(t, 4, finder.MaxDepth)
}

func TestMinLiquidity_ParsesDecimalString(t *testing.T) {
	cfg := &Config{Pathfinder: PathfinderYAML{MinLiquidityUSD: "25000"}}
	assert.Equal(t, uint64(25000), cfg.MinLiquidity().Uint64())
}

func TestMinLiquidity_InvalidStringDefaultsToZero(t *testing.T) {
	cfg := &Config{Pathfinder: PathfinderYAML{MinLiquidityUSD: "not-a-number"}}
	assert.Equal(t, uint64(0), cfg.MinLiquidity().Uint64())
}

func TestStartTokens_ParsesAddresses(t *testing.T) {
	cfg := &Config{Pathfinder: PathfinderYAML{StartTokens: []string{"0x0000000000000000000000000000000000000002"}}}
	tokens := cfg.StartTokens()
	require.Len(t, tokens, 1)
	assert.Equal(t, common.HexToAddress("0x2"), tokens[0])
}

func TestSplitPair_ValidAndInvalid(t *testing.T) {
	a, b, ok := splitPair("0x0000000000000000000000000000000000000002-0x0000000000000000000000000000000000000003")
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x2"), a)
	assert.Equal(t, common.HexToAddress("0x3"), b)

	_, _, ok = splitPair("no-separator-missing")
	assert.True(t, ok) // first '-' still splits; caller validates resulting addresses separately

	_, _, ok = splitPair("nodash")
	assert.False(t, ok)
}

func TestOracleBounds_DefaultsWhenUnconfigured(t *testing.T) {
	cfg := &Config{}
	bounds := cfg.OracleBounds(big.NewInt(1), big.NewInt(100))
	assert.Equal(t, int64(500), bounds.MaxRateChangeBps)
	assert.Equal(t, 30*time.Second, bounds.TimelockDelay)
}

func TestToSafety_BuildsThreeIndependentGates(t *testing.T) {
	cfg := &Config{Safety: SafetyYAML{
		CircuitBreakerErrorWindowSec: 60,
		CircuitBreakerErrorThreshold: 1,
		CircuitBreakerCooldownSec:    10,
		CircuitBreakerMaxCumLossUSD:  "0",
		RateLimitPerSec:              1,
		RateLimitBurst:               1,
	}}
	breaker, stop, limiter := cfg.ToSafety(time.Now)
	require.NotNil(t, breaker)
	require.NotNil(t, stop)
	require.NotNil(t, limiter)
	assert.NoError(t, stop.Allow())
}

func TestRefundBpsToUser_DefaultsTo9000(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, uint32(9000), cfg.RefundBpsToUser())

	cfg.PrivateRelay.RefundBpsToUser = 7500
	assert.Equal(t, uint32(7500), cfg.RefundBpsToUser())
}

func TestToTokens_ParsesAddressKeyedRegistry(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	tokens := cfg.ToTokens()
	weth, ok := tokens[common.HexToAddress("0x2")]
	require.True(t, ok)
	assert.Equal(t, "WETH", weth.Symbol)
	assert.Equal(t, uint8(18), weth.Decimals)
}

func TestToTrackedPools_ResolvesDexKind(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	pools := cfg.ToTrackedPools()
	require.Len(t, pools, 1)
	assert.Equal(t, "weth-usdc-v2", pools[0].ID)
	assert.Equal(t, uint32(30), pools[0].FeeBps)
}

func TestConfigureOracle_InstallsBoundsPerToken(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	validator := cfg.ToOracle(time.Now)
	cfg.ConfigureOracle(validator)

	_, err = validator.Propose("WETH", big.NewInt(150), "test")
	assert.NoError(t, err)
}

func TestToFlashLoanCaps_ParsesConfiguredCaps(t *testing.T) {
	cfg := &Config{FlashLoan: FlashLoanCapsYAML{BalancerCap: "1000", AaveCap: "2000"}}
	caps := cfg.ToFlashLoanCaps()
	assert.Equal(t, big.NewInt(1000), caps.Balancer)
	assert.Equal(t, big.NewInt(2000), caps.Aave)
	assert.Equal(t, big.NewInt(0), caps.DYDX)
}
