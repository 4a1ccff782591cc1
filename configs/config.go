// Package configs loads the engine's YAML configuration and secrets,
// and converts the raw YAML shape into the concrete option structs each
// internal package expects — the same LoadConfig/To*Config split the
// teacher uses for its strategy configuration.
package configs

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/flashloan"
	"github.com/vantablack/arbengine/internal/graph"
	"github.com/vantablack/arbengine/internal/oracle"
	"github.com/vantablack/arbengine/internal/orchestrator"
	"github.com/vantablack/arbengine/internal/pathfinder"
	"github.com/vantablack/arbengine/internal/profitability"
	"github.com/vantablack/arbengine/internal/safety"
	"github.com/vantablack/arbengine/internal/util"
	"github.com/vantablack/arbengine/pkg/feed"
)

// Config is the entire YAML configuration surface. Unknown keys are
// rejected at load time: the engine never silently ignores an operator
// typo in a safety-relevant setting.
type Config struct {
	RPC           string            `yaml:"rpc"`
	ChainID       int64             `yaml:"chain_id"`
	DSN           string            `yaml:"dsn"`
	Executor      ExecutorYAML      `yaml:"executor"`
	Pathfinder    PathfinderYAML    `yaml:"pathfinder"`
	Profitability ProfitabilityYAML `yaml:"profitability"`
	Oracle        OracleYAML        `yaml:"oracle"`
	Safety        SafetyYAML        `yaml:"safety"`
	FlashLoan     FlashLoanCapsYAML `yaml:"flash_loan"`
	PrivateRelay  PrivateRelayYAML  `yaml:"private_relay"`
	Orchestrator  OrchestratorYAML  `yaml:"orchestrator"`
	Tokens        []TokenYAML       `yaml:"tokens"`
	Pools         []PoolYAML        `yaml:"pools"`
	DryRun        bool              `yaml:"dry_run"`
}

// TokenYAML is one asset's static display/decimal metadata, keyed by
// address elsewhere in the engine the same way arbengine.Token is.
type TokenYAML struct {
	Address     string `yaml:"address"`
	Symbol      string `yaml:"symbol"`
	Decimals    uint8  `yaml:"decimals"`
	MinPriceUSD string `yaml:"min_price_usd"` // oracle.Bounds.MinPrice floor, scaled 1e18
	MaxPriceUSD string `yaml:"max_price_usd"` // oracle.Bounds.MaxPrice ceiling, scaled 1e18
}

// PoolYAML is one statically tracked liquidity pool PoolFeed watches
// for Sync events; live reserves arrive over the feed, not from YAML.
type PoolYAML struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	TokenA  string `yaml:"token_a"`
	TokenB  string `yaml:"token_b"`
	DexKind string `yaml:"dex_kind"` // "constant_product" or "concentrated_liquidity"
	FeeBps  uint32 `yaml:"fee_bps"`
}

// ExecutorYAML names the on-chain entrypoint contract Dispatch signs
// and sends transactions against.
type ExecutorYAML struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
}

// PathfinderYAML tunes the Arbitrage Pathfinder's search bounds.
type PathfinderYAML struct {
	MaxPathLen       int      `yaml:"max_path_len"` // MAX_PATH_LEN, default 4
	MaxCumFeeBps     uint32   `yaml:"max_cum_fee_bps"`
	MinLiquidityUSD  string   `yaml:"min_liquidity_usd"` // MIN_LIQUIDITY_USD
	StartTokens      []string `yaml:"start_tokens"`
	MaxPoolAgeBlocks uint64   `yaml:"max_pool_age_blocks"`
	StaleFeedSeconds int      `yaml:"stale_feed_seconds"`
}

// ProfitabilityYAML tunes the Profitability Engine's thresholds.
type ProfitabilityYAML struct {
	MinArbitrageProfitUSD string            `yaml:"min_arbitrage_profit_usd"` // MIN_ARBITRAGE_PROFIT_USD
	ProfitThresholds      map[string]string `yaml:"profit_thresholds"`        // PROFIT_THRESHOLDS, key "tokenA-tokenB"
	NativeSymbol          string            `yaml:"native_symbol"`
}

// OracleYAML tunes the Price Oracle Validator.
type OracleYAML struct {
	MaxRateChangeBps int `yaml:"max_rate_change_bps"` // ORACLE_MAX_RATE_CHANGE_BPS
	TimelockSeconds  int `yaml:"timelock_seconds"`    // ORACLE_TIMELOCK_SECONDS
}

// SafetyYAML tunes the Safety Governor's circuit breaker and limiter.
type SafetyYAML struct {
	CircuitBreakerErrorWindowSec int     `yaml:"circuit_breaker_error_window_sec"`
	CircuitBreakerErrorThreshold int     `yaml:"circuit_breaker_error_threshold"`
	CircuitBreakerCooldownSec    int     `yaml:"circuit_breaker_cooldown_sec"`
	CircuitBreakerMaxCumLossUSD  string  `yaml:"circuit_breaker_max_cum_loss_usd"`
	RateLimitPerSec              float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst                int     `yaml:"rate_limit_burst"`
}

// FlashLoanCapsYAML holds the per-provider liquidity caps the Flash-Loan
// Source Selector uses when no fresher on-chain reading is available.
type FlashLoanCapsYAML struct {
	BalancerCap     string `yaml:"balancer_cap"`
	AaveCap         string `yaml:"aave_cap"`
	UniswapV3Cap    string `yaml:"uniswap_v3_cap"`
	DYDXCap         string `yaml:"dydx_cap"`
	HybridAaveV4Cap string `yaml:"hybrid_aave_v4_cap"`
}

// PrivateRelayYAML configures private-bundle submission.
type PrivateRelayYAML struct {
	Enabled         bool   `yaml:"enabled"` // PRIVATE_BUNDLE_ENABLED
	URL             string `yaml:"url"`
	RefundBpsToUser uint32 `yaml:"refund_bps_to_user"`
	ShareTEE        bool   `yaml:"share_tee"`
	FastMode        bool   `yaml:"fast_mode"`
}

// OrchestratorYAML tunes pipeline concurrency and buffering.
type OrchestratorYAML struct {
	PathBufferSize        int    `yaml:"path_buffer_size"`
	OpportunityBufferSize int    `yaml:"opportunity_buffer_size"`
	CandidateDeadlineMs   int    `yaml:"candidate_deadline_ms"`
	Workers               int    `yaml:"workers"`
	AvailableCapitalUSD   string `yaml:"available_capital_usd"`
	DefaultGasLimit       uint64 `yaml:"default_gas_limit"`
}

// LoadConfig reads and strictly decodes path's YAML into a Config,
// rejecting unrecognized keys so an operator typo in a safety-relevant
// setting fails loudly instead of silently falling back to a default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv loads a .env file (if present) so RPC keys, the encrypted
// signing key, and the DB DSN can be supplied as process environment
// without being checked into config.yml.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// SigningKey decrypts the operator's signing key from the ENC_PK/KEY
// environment variables, the teacher's own secret-handling convention.
func SigningKey() (*ecdsa.PrivateKey, error) {
	encPK := os.Getenv("ENC_PK")
	if encPK == "" {
		return nil, fmt.Errorf("ENC_PK not set")
	}
	key := os.Getenv("KEY")
	if key == "" {
		return nil, fmt.Errorf("KEY not set")
	}
	return util.Decrypt(encPK, key)
}

func parseUSD(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func parseUint256(value string) *uint256.Int {
	asBig, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return uint256.NewInt(0)
	}
	out, overflow := uint256.FromBig(asBig)
	if overflow {
		return uint256.NewInt(0)
	}
	return out
}

// ToPathfinder builds a pathfinder.Finder from the configured bounds.
// referenceAmount is supplied by the caller since it depends on live
// liquidity data, not static configuration.
func (c *Config) ToPathfinder(referenceAmount func(common.Address) *uint256.Int) *pathfinder.Finder {
	maxDepth := c.Pathfinder.MaxPathLen
	if maxDepth <= 0 {
		maxDepth = 4
	}
	return pathfinder.New(maxDepth, c.Pathfinder.MaxCumFeeBps, referenceAmount)
}

// ToGraph builds the LiquidityGraph from the configured staleness bounds.
func (c *Config) ToGraph() *graph.Graph {
	staleSeconds := c.Pathfinder.StaleFeedSeconds
	if staleSeconds <= 0 {
		staleSeconds = 60
	}
	return graph.New(c.Pathfinder.MaxPoolAgeBlocks, time.Duration(staleSeconds)*time.Second)
}

// MinLiquidity parses the configured MIN_LIQUIDITY_USD floor.
func (c *Config) MinLiquidity() *uint256.Int {
	return parseUint256(c.Pathfinder.MinLiquidityUSD)
}

// StartTokens parses the configured pathfinder start-token addresses.
func (c *Config) StartTokens() []common.Address {
	out := make([]common.Address, 0, len(c.Pathfinder.StartTokens))
	for _, addr := range c.Pathfinder.StartTokens {
		out = append(out, common.HexToAddress(addr))
	}
	return out
}

// ToProfitability builds a profitability.Engine bound to oracle as its
// price source and gasPrice as its live gas-price feed.
func (c *Config) ToProfitability(oracle profitability.PriceOracle, gasPrice profitability.GasPriceSource) *profitability.Engine {
	engine := profitability.New(oracle, gasPrice, parseUSD(c.Profitability.MinArbitrageProfitUSD), c.Profitability.NativeSymbol)
	for pair, threshold := range c.Profitability.ProfitThresholds {
		tokenA, tokenB, ok := splitPair(pair)
		if !ok {
			continue
		}
		engine.SetPairThreshold(tokenA, tokenB, parseUSD(threshold))
	}
	return engine
}

func splitPair(pair string) (common.Address, common.Address, bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '-' {
			return common.HexToAddress(pair[:i]), common.HexToAddress(pair[i+1:]), true
		}
	}
	return common.Address{}, common.Address{}, false
}

// ToOracle builds a Price Oracle Validator using nowFn as its clock.
func (c *Config) ToOracle(nowFn func() time.Time) *oracle.Validator {
	return oracle.New(nowFn)
}

// OracleBounds returns the Bounds every tracked symbol should be
// Configure'd with, built from ORACLE_MAX_RATE_CHANGE_BPS /
// ORACLE_TIMELOCK_SECONDS.
func (c *Config) OracleBounds(minPrice, maxPrice *big.Int) oracle.Bounds {
	maxRate := c.Oracle.MaxRateChangeBps
	if maxRate <= 0 {
		maxRate = 500
	}
	timelock := c.Oracle.TimelockSeconds
	if timelock <= 0 {
		timelock = 30
	}
	return oracle.Bounds{
		MinPrice:             minPrice,
		MaxPrice:             maxPrice,
		MaxRateChangeBps:     int64(maxRate),
		MaxPriceAgeSeconds:   int64(timelock) * 4,
		CircuitBreakerPctBps: int64(maxRate) * 2,
		TimelockDelay:        time.Duration(timelock) * time.Second,
	}
}

// ConfigureOracle installs every configured token's price bounds into
// oracleV, so the engine never tracks a symbol the Price Oracle
// Validator hasn't been told sane min/max/rate-of-change limits for.
func (c *Config) ConfigureOracle(oracleV *oracle.Validator) {
	for _, t := range c.Tokens {
		minPrice := parseUSD(t.MinPriceUSD)
		if minPrice.Sign() <= 0 {
			minPrice = big.NewInt(1)
		}
		maxPrice := parseUSD(t.MaxPriceUSD)
		if maxPrice.Sign() <= 0 {
			maxPrice = new(big.Int).Lsh(big.NewInt(1), 128)
		}
		oracleV.Configure(t.Symbol, c.OracleBounds(minPrice, maxPrice))
	}
}

// ToSafety builds the Safety Governor's three independent gates.
func (c *Config) ToSafety(nowFn func() time.Time) (*safety.CircuitBreaker, *safety.EmergencyStop, *safety.RateLimiter) {
	window := c.Safety.CircuitBreakerErrorWindowSec
	if window <= 0 {
		window = 300
	}
	cooldown := c.Safety.CircuitBreakerCooldownSec
	if cooldown <= 0 {
		cooldown = 60
	}
	threshold := c.Safety.CircuitBreakerErrorThreshold
	if threshold <= 0 {
		threshold = 5
	}
	breaker := safety.NewCircuitBreaker(
		time.Duration(window)*time.Second,
		threshold,
		time.Duration(cooldown)*time.Second,
		parseUSD(c.Safety.CircuitBreakerMaxCumLossUSD),
		nowFn,
	)
	stop := safety.NewEmergencyStop(nowFn)

	ratePerSec := c.Safety.RateLimitPerSec
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	burst := c.Safety.RateLimitBurst
	if burst <= 0 {
		burst = 10
	}
	limiter := safety.NewRateLimiter(ratePerSec, burst)

	return breaker, stop, limiter
}

// ToFlashLoanCaps builds a flashloan.SourceCaps from the configured
// static fallback caps. A live deployment should prefer a function that
// queries each provider's pool directly; this is the config-only floor
// used when no such live query is wired.
func (c *Config) ToFlashLoanCaps() flashloan.SourceCaps {
	return flashloan.SourceCaps{
		Balancer:     parseUSD(c.FlashLoan.BalancerCap),
		Aave:         parseUSD(c.FlashLoan.AaveCap),
		UniswapV3:    parseUSD(c.FlashLoan.UniswapV3Cap),
		DYDX:         parseUSD(c.FlashLoan.DYDXCap),
		HybridAaveV4: parseUSD(c.FlashLoan.HybridAaveV4Cap),
	}
}

// ExecutorABI loads the executor contract's ABI from the configured path.
func (c *Config) ExecutorABI() (abi.ABI, error) {
	return util.LoadABI(c.Executor.ABI)
}

// ExecutorAddress parses the configured executor contract address.
func (c *Config) ExecutorAddress() common.Address {
	return common.HexToAddress(c.Executor.Address)
}

// ToOrchestratorConfig builds an orchestrator.Config from this
// configuration's buffering/concurrency/capital settings.
func (c *Config) ToOrchestratorConfig() orchestrator.Config {
	deadline := time.Duration(c.Orchestrator.CandidateDeadlineMs) * time.Millisecond
	if deadline <= 0 {
		deadline = orchestrator.DefaultCandidateDeadline
	}
	return orchestrator.Config{
		PathBufferSize:        c.Orchestrator.PathBufferSize,
		OpportunityBufferSize: c.Orchestrator.OpportunityBufferSize,
		CandidateDeadline:     deadline,
		Workers:               c.Orchestrator.Workers,
		ChainID:               c.ChainID,
		MinLiquidityUSD:       c.MinLiquidity(),
		ExecutorAddr:          c.ExecutorAddress(),
		DefaultGasLimit:       c.Orchestrator.DefaultGasLimit,
		AvailableCapital:      parseUSD(c.Orchestrator.AvailableCapitalUSD),
	}
}

// ToTokens builds the borrow-asset metadata registry the orchestrator
// needs to resolve a path's first hop token into decimals/symbol.
func (c *Config) ToTokens() map[common.Address]arbengine.Token {
	out := make(map[common.Address]arbengine.Token, len(c.Tokens))
	for _, t := range c.Tokens {
		addr := common.HexToAddress(t.Address)
		out[addr] = arbengine.Token{Address: addr, Symbol: t.Symbol, Decimals: t.Decimals}
	}
	return out
}

// ToTrackedPools builds the static pool registry PoolFeed watches for
// Sync events, resolved against the configured dex kind.
func (c *Config) ToTrackedPools() []feed.TrackedPool {
	out := make([]feed.TrackedPool, 0, len(c.Pools))
	for _, p := range c.Pools {
		out = append(out, feed.TrackedPool{
			ID:      p.ID,
			Address: common.HexToAddress(p.Address),
			TokenA:  common.HexToAddress(p.TokenA),
			TokenB:  common.HexToAddress(p.TokenB),
			DexKind: parseDexKind(p.DexKind),
			FeeBps:  p.FeeBps,
		})
	}
	return out
}

func parseDexKind(s string) arbengine.DexKind {
	if s == "concentrated_liquidity" {
		return arbengine.DexKindConcentratedLiquidity
	}
	return arbengine.DexKindConstantProduct
}

// RefundBpsToUser returns the private relay's configured refund share,
// falling back to the relay's documented default.
func (c *Config) RefundBpsToUser() uint32 {
	if c.PrivateRelay.RefundBpsToUser == 0 {
		return 9000
	}
	return c.PrivateRelay.RefundBpsToUser
}
