// Package oracle implements the Price Oracle Validator: a timelocked,
// bounds- and rate-of-change-checked price store with a latching circuit
// breaker, single-writer/many-reader per the concurrency model.
package oracle

import (
	"math/big"
	"sync"
	"time"

	"github.com/vantablack/arbengine/internal/arberr"
)

// historyCapacity bounds the short history ring kept per symbol.
const historyCapacity = 32

// Bounds configures the hard gates a proposed price must clear.
type Bounds struct {
	MinPrice             *big.Int
	MaxPrice             *big.Int
	MaxRateChangeBps     int64
	MaxPriceAgeSeconds    int64
	CircuitBreakerPctBps int64 // breaker auto-trips at 2x this, per |delta|
	TimelockDelay        time.Duration
}

type pendingUpdate struct {
	price         *big.Int
	executionTime time.Time
	proposer      string
}

type symbolState struct {
	current      *big.Int
	currentAt    time.Time
	pending      *pendingUpdate
	history      []*big.Int
	breakerOpen  bool
	breakerWhy   string
}

// Validator owns all symbol state; writes are serialized by mu, queries
// are read-only from any goroutine.
type Validator struct {
	mu      sync.RWMutex
	bounds  map[string]Bounds
	symbols map[string]*symbolState
	now     func() time.Time
}

// New builds an empty Validator. nowFn defaults to time.Now and is
// overridable only for deterministic tests.
func New(nowFn func() time.Time) *Validator {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Validator{
		bounds:  make(map[string]Bounds),
		symbols: make(map[string]*symbolState),
		now:     nowFn,
	}
}

// Configure installs (or replaces) the bounds for a symbol.
func (v *Validator) Configure(symbol string, b Bounds) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bounds[symbol] = b
	if _, ok := v.symbols[symbol]; !ok {
		v.symbols[symbol] = &symbolState{}
	}
}

// Propose validates a new price against bounds, rate-of-change and the
// circuit breaker, then enters it into the timelock queue. It returns
// the execution time at which ExecutePending may commit it.
func (v *Validator) Propose(symbol string, price *big.Int, proposer string) (time.Time, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	bounds, ok := v.bounds[symbol]
	if !ok {
		return time.Time{}, arberr.New(arberr.OracleOutOfBounds, "symbol not configured")
	}
	state := v.symbols[symbol]
	if state == nil {
		state = &symbolState{}
		v.symbols[symbol] = state
	}

	if state.breakerOpen {
		return time.Time{}, arberr.New(arberr.OracleBreakerActive, state.breakerWhy)
	}

	// Gate 1: absolute bounds.
	if price == nil || price.Sign() <= 0 || price.Cmp(bounds.MinPrice) < 0 || price.Cmp(bounds.MaxPrice) > 0 {
		v.maybeTripBreaker(state, bounds, price)
		return time.Time{}, arberr.New(arberr.OracleOutOfBounds, "price outside [min_price, max_price]")
	}

	// Gate 2: rate of change relative to the current price (if one exists).
	if state.current != nil {
		if delta := rateOfChangeBps(state.current, price); delta > bounds.MaxRateChangeBps {
			v.maybeTripBreaker(state, bounds, price)
			return time.Time{}, arberr.New(arberr.OracleRateLimited, "rate of change exceeds max_rate_change_bps")
		}
	}

	// Gate 3: staleness of the current price is a read-time concern
	// (see Current), not a write-time gate.

	// Gate 4 already checked above (breaker active).

	execTime := v.now().Add(bounds.TimelockDelay)
	state.pending = &pendingUpdate{price: new(big.Int).Set(price), executionTime: execTime, proposer: proposer}
	return execTime, nil
}

// maybeTripBreaker opens the breaker when a proposed change's magnitude
// exceeds 2x the configured circuit-breaker threshold. Manual reset is
// required afterward; there is no timed auto-recovery.
func (v *Validator) maybeTripBreaker(state *symbolState, bounds Bounds, price *big.Int) {
	if state.current == nil || price == nil || bounds.CircuitBreakerPctBps <= 0 {
		return
	}
	delta := rateOfChangeBps(state.current, price)
	if delta > 2*bounds.CircuitBreakerPctBps {
		state.breakerOpen = true
		state.breakerWhy = "proposed price delta exceeded 2x circuit_breaker_threshold_pct"
	}
}

// ExecutePending commits the pending update for symbol once now() has
// reached its execution time, re-validating bounds and rate-of-change at
// execution (state may have drifted since Propose).
func (v *Validator) ExecutePending(symbol string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.symbols[symbol]
	if !ok || state.pending == nil {
		return arberr.New(arberr.OracleTimelockActive, "no pending update for symbol")
	}
	if state.breakerOpen {
		return arberr.New(arberr.OracleBreakerActive, state.breakerWhy)
	}
	if v.now().Before(state.pending.executionTime) {
		return arberr.New(arberr.OracleTimelockActive, "execution time not yet reached")
	}

	bounds := v.bounds[symbol]
	price := state.pending.price
	if price.Cmp(bounds.MinPrice) < 0 || price.Cmp(bounds.MaxPrice) > 0 {
		state.pending = nil
		return arberr.New(arberr.OracleOutOfBounds, "price drifted outside bounds before execution")
	}
	if state.current != nil {
		if delta := rateOfChangeBps(state.current, price); delta > bounds.MaxRateChangeBps {
			state.pending = nil
			return arberr.New(arberr.OracleRateLimited, "rate of change exceeded at execution time")
		}
	}

	state.current = price
	state.currentAt = v.now()
	state.pending = nil
	state.history = append(state.history, price)
	if len(state.history) > historyCapacity {
		state.history = state.history[len(state.history)-historyCapacity:]
	}
	return nil
}

// Current returns the latest committed price for symbol, or a stale
// error if it has aged past max_price_age_seconds.
func (v *Validator) Current(symbol string) (*big.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	state, ok := v.symbols[symbol]
	if !ok || state.current == nil {
		return nil, arberr.New(arberr.OracleStale, "no validated price for symbol")
	}
	bounds := v.bounds[symbol]
	age := v.now().Sub(state.currentAt)
	if bounds.MaxPriceAgeSeconds > 0 && age > time.Duration(bounds.MaxPriceAgeSeconds)*time.Second {
		return nil, arberr.New(arberr.OracleStale, "price age exceeds max_price_age_seconds")
	}
	return new(big.Int).Set(state.current), nil
}

// CurrentPriceScaled1e18 satisfies internal/profitability.PriceOracle.
func (v *Validator) CurrentPriceScaled1e18(symbol string) (*big.Int, error) {
	return v.Current(symbol)
}

// ResetBreaker manually clears a tripped breaker for symbol; there is no
// automatic recovery path.
func (v *Validator) ResetBreaker(symbol string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if state, ok := v.symbols[symbol]; ok {
		state.breakerOpen = false
		state.breakerWhy = ""
	}
}

// BreakerActive reports whether symbol's breaker is currently open.
func (v *Validator) BreakerActive(symbol string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if state, ok := v.symbols[symbol]; ok {
		return state.breakerOpen
	}
	return false
}

func rateOfChangeBps(oldVal, newVal *big.Int) int64 {
	if oldVal == nil || oldVal.Sign() <= 0 || newVal == nil {
		return 0
	}
	delta := new(big.Int).Sub(newVal, oldVal)
	delta.Abs(delta)
	delta.Mul(delta, big.NewInt(10_000))
	delta.Div(delta, oldVal)
	return delta.Int64()
}
