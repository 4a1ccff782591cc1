package safety

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantablack/arbengine/internal/arberr"
	arbengine "github.com/vantablack/arbengine"
)

func fixedClock(start time.Time) (*time.Time, func() time.Time) {
	cur := start
	return &cur, func() time.Time { return cur }
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestCircuitBreaker_TripsOnErrorThreshold(t *testing.T) {
	_, now := fixedClock(time.Unix(1_700_000_000, 0))
	cb := NewCircuitBreaker(5*time.Minute, 3, time.Minute, big.NewInt(0), now)

	assert.False(t, cb.RecordError(false, "rpc timeout"))
	assert.False(t, cb.RecordError(false, "rpc timeout"))
	assert.True(t, cb.RecordError(false, "rpc timeout"))

	state := cb.State()
	assert.Equal(t, arbengine.BreakerTripped, state.Phase)
	require.Error(t, cb.Allow())
	assert.True(t, arberr.IsKind(cb.Allow(), arberr.CircuitBreakerOpen))
}

func TestCircuitBreaker_CriticalErrorTripsImmediately(t *testing.T) {
	_, now := fixedClock(time.Unix(1_700_000_000, 0))
	cb := NewCircuitBreaker(5*time.Minute, 10, time.Minute, big.NewInt(0), now)
	assert.True(t, cb.RecordError(true, "transaction reverted"))
}

func TestCircuitBreaker_ReArmsAfterCooldown(t *testing.T) {
	cur, now := fixedClock(time.Unix(1_700_000_000, 0))
	cb := NewCircuitBreaker(5*time.Minute, 1, 30*time.Second, big.NewInt(0), now)
	require.True(t, cb.RecordError(true, "critical"))
	require.True(t, cb.State().Active)

	*cur = cur.Add(31 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, arbengine.BreakerArmed, cb.State().Phase)
}

func TestCircuitBreaker_TripsOnCumulativeLoss(t *testing.T) {
	_, now := fixedClock(time.Unix(1_700_000_000, 0))
	cb := NewCircuitBreaker(5*time.Minute, 100, time.Minute, eth(1), now)
	assert.False(t, cb.RecordLoss(eth(0)))
	assert.True(t, cb.RecordLoss(eth(1)))
}

// TestEmergencyStop_CapitalDropLatches mirrors a 10 ETH baseline
// dropping to 9.4 ETH (a 6% loss), above the configured 5% floor.
func TestEmergencyStop_CapitalDropLatches(t *testing.T) {
	_, now := fixedClock(time.Unix(1_700_000_000, 0))
	e := NewEmergencyStop(now)
	baseline := eth(10)
	current := new(big.Int).Sub(baseline, new(big.Int).Div(eth(6), big.NewInt(10))) // 9.4 ETH

	e.TripOnCapitalDrop(baseline, current, 5)
	assert.True(t, e.Active())
	require.Error(t, e.Allow())
	assert.True(t, arberr.IsKind(e.Allow(), arberr.EmergencyStop))
}

func TestEmergencyStop_NeverAutoClearsOnlyOperatorReset(t *testing.T) {
	_, now := fixedClock(time.Unix(1_700_000_000, 0))
	e := NewEmergencyStop(now)
	e.Trip("manual test trip")
	assert.True(t, e.Active())
	e.Trip("second trip attempt") // no-op, latch already set
	assert.True(t, e.Active())

	e.Reset()
	assert.False(t, e.Active())
}

func TestRateLimiter_BlocksBeyondBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	assert.True(t, rl.Allow("0xabc"))
	assert.True(t, rl.Allow("0xabc"))
	assert.False(t, rl.Allow("0xabc"))
}

func TestRateLimiter_PerKeyIsolation(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	assert.True(t, rl.Allow("key-a"))
	assert.True(t, rl.Allow("key-b")) // separate bucket, unaffected by key-a's burst
}
