package oracle

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantablack/arbengine/internal/arberr"
)

func fixedClock(start time.Time) (*time.Time, func() time.Time) {
	cur := start
	return &cur, func() time.Time { return cur }
}

// usd scales a whole-dollar amount to the 1e18 fixed point prices use.
func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func usdcBounds() Bounds {
	return Bounds{
		MinPrice:             usd(500),   // $500
		MaxPrice:             usd(10000), // $10,000
		MaxRateChangeBps:     1000,                                 // 10%
		MaxPriceAgeSeconds:    300,
		CircuitBreakerPctBps: 2000, // 20%
		TimelockDelay:        30 * time.Second,
	}
}

func TestProposeAndExecute_HappyPath(t *testing.T) {
	cur, now := fixedClock(time.Unix(1_700_000_000, 0))
	v := New(now)
	v.Configure("ETH", usdcBounds())

	execAt, err := v.Propose("ETH", usd(3000), "feed-1")
	require.NoError(t, err)
	assert.Equal(t, cur.Add(30*time.Second), execAt)

	*cur = execAt
	require.NoError(t, v.ExecutePending("ETH"))

	price, err := v.Current("ETH")
	require.NoError(t, err)
	assert.Equal(t, usd(3000), price)
}

func TestExecutePending_RejectsBeforeTimelock(t *testing.T) {
	_, now := fixedClock(time.Unix(1_700_000_000, 0))
	v := New(now)
	v.Configure("ETH", usdcBounds())
	_, err := v.Propose("ETH", usd(3000), "feed-1")
	require.NoError(t, err)

	err = v.ExecutePending("ETH")
	require.Error(t, err)
	assert.True(t, arberr.IsKind(err, arberr.OracleTimelockActive))
}

// TestOracleCrashAttempt mirrors a validated $3000 price, then proposes an
// absurd 1-wei price: expect OracleOutOfBounds and the breaker latched,
// so that even a plausible follow-up $3001 proposal is refused with
// OracleBreakerActive.
func TestOracleCrashAttempt(t *testing.T) {
	cur, now := fixedClock(time.Unix(1_700_000_000, 0))
	v := New(now)
	v.Configure("ETH", usdcBounds())

	execAt, err := v.Propose("ETH", usd(3000), "feed-1")
	require.NoError(t, err)
	*cur = execAt
	require.NoError(t, v.ExecutePending("ETH"))

	_, err = v.Propose("ETH", big.NewInt(1), "attacker")
	require.Error(t, err)
	assert.True(t, arberr.IsKind(err, arberr.OracleOutOfBounds))
	assert.True(t, v.BreakerActive("ETH"))

	_, err = v.Propose("ETH", usd(3001), "feed-1")
	require.Error(t, err)
	assert.True(t, arberr.IsKind(err, arberr.OracleBreakerActive))
}

func TestPropose_RateOfChangeRejected(t *testing.T) {
	cur, now := fixedClock(time.Unix(1_700_000_000, 0))
	v := New(now)
	b := usdcBounds()
	b.CircuitBreakerPctBps = 0 // disable auto-trip to isolate the rate gate
	v.Configure("ETH", b)

	execAt, err := v.Propose("ETH", usd(3000), "feed-1")
	require.NoError(t, err)
	*cur = execAt
	require.NoError(t, v.ExecutePending("ETH"))

	_, err = v.Propose("ETH", usd(3500), "feed-1") // +16.7%
	require.Error(t, err)
	assert.True(t, arberr.IsKind(err, arberr.OracleRateLimited))
	assert.False(t, v.BreakerActive("ETH"))
}

func TestCurrent_StaleRejected(t *testing.T) {
	cur, now := fixedClock(time.Unix(1_700_000_000, 0))
	v := New(now)
	v.Configure("ETH", usdcBounds())
	execAt, err := v.Propose("ETH", usd(3000), "feed-1")
	require.NoError(t, err)
	*cur = execAt
	require.NoError(t, v.ExecutePending("ETH"))

	*cur = cur.Add(10 * time.Minute)
	_, err = v.Current("ETH")
	require.Error(t, err)
	assert.True(t, arberr.IsKind(err, arberr.OracleStale))
}

func TestResetBreaker_ClearsLatch(t *testing.T) {
	cur, now := fixedClock(time.Unix(1_700_000_000, 0))
	v := New(now)
	v.Configure("ETH", usdcBounds())
	execAt, err := v.Propose("ETH", usd(3000), "feed-1")
	require.NoError(t, err)
	*cur = execAt
	require.NoError(t, v.ExecutePending("ETH"))

	_, err = v.Propose("ETH", big.NewInt(1), "attacker")
	require.Error(t, err)
	require.True(t, v.BreakerActive("ETH"))

	v.ResetBreaker("ETH")
	assert.False(t, v.BreakerActive("ETH"))
}
