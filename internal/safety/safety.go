// Package safety implements the Safety Governor: a latching circuit
// breaker (Armed -> Tripped -> Cooldown -> Armed), a one-way emergency
// stop, and a per-source token-bucket rate limiter built on
// golang.org/x/time/rate (no sliding-window counters are kept).
package safety

import (
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"

	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/arberr"
)

// CircuitBreaker tracks rolling errors within a window and cumulative
// realized loss, tripping when either crosses its configured threshold.
// Grounded on the windowed error-count breaker used by the liquidity
// repositioning strategy, generalized to also trip on capital loss.
type CircuitBreaker struct {
	mu sync.Mutex

	errorWindow    time.Duration
	errorThreshold int
	cooldown       time.Duration
	maxCumLoss     *big.Int

	lastErrors     []time.Time
	cumulativeLoss *big.Int

	phase       arbengine.CircuitBreakerPhase
	triggerWhy  string
	openedAt    time.Time
	now         func() time.Time
}

// NewCircuitBreaker builds an Armed breaker. nowFn defaults to time.Now.
func NewCircuitBreaker(errorWindow time.Duration, errorThreshold int, cooldown time.Duration, maxCumLoss *big.Int, nowFn func() time.Time) *CircuitBreaker {
	if nowFn == nil {
		nowFn = time.Now
	}
	if maxCumLoss == nil {
		maxCumLoss = big.NewInt(0)
	}
	return &CircuitBreaker{
		errorWindow:    errorWindow,
		errorThreshold: errorThreshold,
		cooldown:       cooldown,
		maxCumLoss:     maxCumLoss,
		cumulativeLoss: big.NewInt(0),
		phase:          arbengine.BreakerArmed,
		now:            nowFn,
	}
}

// RecordError registers an error occurrence. critical forces an
// immediate trip; otherwise the breaker trips once errorThreshold errors
// fall within errorWindow. Returns true if the breaker just tripped.
func (cb *CircuitBreaker) RecordError(critical bool, reason string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceCooldownLocked()
	if cb.phase == arbengine.BreakerTripped {
		return false // already open
	}

	now := cb.now()
	cb.lastErrors = append(cb.lastErrors, now)
	cb.pruneLocked(now)

	if critical {
		cb.tripLocked("critical error: " + reason)
		return true
	}
	if len(cb.lastErrors) >= cb.errorThreshold {
		cb.tripLocked("error threshold exceeded within window")
		return true
	}
	return false
}

// RecordLoss accumulates a realized loss (wei-equivalent) and trips the
// breaker once cumulative loss reaches maxCumLoss.
func (cb *CircuitBreaker) RecordLoss(loss *big.Int) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceCooldownLocked()
	if cb.phase == arbengine.BreakerTripped {
		return false
	}
	if loss != nil && loss.Sign() > 0 {
		cb.cumulativeLoss.Add(cb.cumulativeLoss, loss)
	}
	if cb.maxCumLoss.Sign() > 0 && cb.cumulativeLoss.Cmp(cb.maxCumLoss) >= 0 {
		cb.tripLocked("cumulative loss exceeded configured cap")
		return true
	}
	return false
}

func (cb *CircuitBreaker) tripLocked(reason string) {
	cb.phase = arbengine.BreakerTripped
	cb.triggerWhy = reason
	cb.openedAt = cb.now()
}

// advanceCooldownLocked steps the state machine one phase per call once
// enough time has elapsed: Tripped -> Cooldown on the first observation
// past cooldown, Cooldown -> Armed (with history cleared) on the next.
// This keeps Cooldown externally observable instead of collapsing
// straight through to Armed within a single call.
func (cb *CircuitBreaker) advanceCooldownLocked() {
	switch cb.phase {
	case arbengine.BreakerTripped:
		if cb.now().Sub(cb.openedAt) >= cb.cooldown {
			cb.phase = arbengine.BreakerCooldown
		}
	case arbengine.BreakerCooldown:
		cb.phase = arbengine.BreakerArmed
		cb.lastErrors = nil
		cb.cumulativeLoss = big.NewInt(0)
		cb.triggerWhy = ""
	}
}

func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.errorWindow)
	kept := cb.lastErrors[:0]
	for _, t := range cb.lastErrors {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.lastErrors = kept
}

// State returns the externally observable snapshot.
func (cb *CircuitBreaker) State() arbengine.CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceCooldownLocked()
	return arbengine.CircuitBreakerState{
		Phase:               cb.phase,
		Active:              cb.phase == arbengine.BreakerTripped,
		TriggerReason:       cb.triggerWhy,
		OpenedAt:            cb.openedAt,
		CooldownMs:          cb.cooldown.Milliseconds(),
		ConsecutiveFailures: len(cb.lastErrors),
		CumulativeLoss:      new(big.Int).Set(cb.cumulativeLoss),
	}
}

// Allow rejects candidates while the breaker is open, checking cooldown
// expiry first so a stale Tripped phase self-heals.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceCooldownLocked()
	if cb.phase == arbengine.BreakerTripped {
		return arberr.New(arberr.CircuitBreakerOpen, cb.triggerWhy)
	}
	return nil
}

// EmergencyStop is a one-way latch: once tripped it never auto-clears,
// only an explicit operator Reset can re-arm it.
type EmergencyStop struct {
	mu       sync.Mutex
	tripped  bool
	reason   string
	trippedAt time.Time
	now      func() time.Time
}

// NewEmergencyStop builds an armed (not tripped) EmergencyStop.
func NewEmergencyStop(nowFn func() time.Time) *EmergencyStop {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &EmergencyStop{now: nowFn}
}

// Trip latches the stop; subsequent calls after the first are no-ops.
func (e *EmergencyStop) Trip(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tripped {
		return
	}
	e.tripped = true
	e.reason = reason
	e.trippedAt = e.now()
}

// TripOnCapitalDrop trips when current capital has fallen below
// baseline by more than dropPct percent (e.g. 5 for 5%).
func (e *EmergencyStop) TripOnCapitalDrop(baseline, current *big.Int, dropPct int64) {
	if baseline == nil || current == nil || baseline.Sign() <= 0 {
		return
	}
	threshold := new(big.Int).Mul(baseline, big.NewInt(100-dropPct))
	threshold.Div(threshold, big.NewInt(100))
	if current.Cmp(threshold) < 0 {
		e.Trip("capital dropped below configured floor")
	}
}

// Allow returns arberr.EmergencyStop once tripped.
func (e *EmergencyStop) Allow() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tripped {
		return arberr.New(arberr.EmergencyStop, e.reason)
	}
	return nil
}

// Active reports the latch state.
func (e *EmergencyStop) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tripped
}

// Reset clears the latch. Callers must gate this behind an operator
// action; it is never invoked automatically.
func (e *EmergencyStop) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tripped = false
	e.reason = ""
}

// RateLimiter enforces a request rate per source key (address, RPC
// endpoint, relay) with one token bucket per key; it does not count
// requests over a sliding window.
type RateLimiter struct {
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

// NewRateLimiter builds a limiter allowing ratePerSecond sustained
// requests per source key, bursting up to burst.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:    rate.Limit(ratePerSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a request for key may proceed now, consuming a
// token if so.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	limiter, ok := r.buckets[key]
	if !ok {
		limiter = rate.NewLimiter(r.rate, r.burst)
		r.buckets[key] = limiter
	}
	r.mu.Unlock()
	return limiter.Allow()
}
