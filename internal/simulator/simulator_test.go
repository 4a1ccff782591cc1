package simulator

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	arbengine "github.com/vantablack/arbengine"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

var target = common.HexToAddress("0x3333333333333333333333333333333333333333")

func shadowAt(hash byte, gasPrice *big.Int) arbengine.MempoolTxShadow {
	return arbengine.MempoolTxShadow{
		Hash:        common.Hash{hash},
		To:          target,
		GasPriceWei: gasPrice,
		GasLimit:    21_000,
		Value:       big.NewInt(0),
		ObservedAt:  time.Now(),
	}
}

func TestObserve_EvictsOldestBeyondCapacity(t *testing.T) {
	s := New(3)
	for i := byte(0); i < 5; i++ {
		s.Observe(shadowAt(i, gwei(30)))
	}
	assert.Equal(t, 3, s.ShadowCount())
}

func TestObserve_DuplicateHashIsIdempotent(t *testing.T) {
	s := New(3)
	s.Observe(shadowAt(1, gwei(30)))
	s.Observe(shadowAt(1, gwei(40))) // same hash, updated gas price
	require.Equal(t, 1, s.ShadowCount())
}

// TestAssess_HighGasContentionRecommendsPrivateExecute mirrors a 15 ETH
// bundle competing against 10 mempool shadows bidding 20% over the
// bundle's own gas price: expect an elevated frontrun probability and a
// PrivateExecute recommendation.
func TestAssess_HighGasContentionRecommendsPrivateExecute(t *testing.T) {
	s := New(DefaultShadowCacheSize)
	bundleGas := gwei(50)
	for i := byte(0); i < 10; i++ {
		s.Observe(shadowAt(i, gwei(60))) // +20% over bundle gas
	}

	bundle := arbengine.CandidateBundle{
		ID:          "bundle-1",
		TargetAddr:  target,
		ValueWei:    new(big.Int).Mul(big.NewInt(15), big.NewInt(1_000_000_000_000_000_000)),
		GasPriceWei: bundleGas,
	}

	assessment := s.Assess(bundle)
	t.Logf("frontrun=%.2f sandwich=%.2f rec=%s", assessment.FrontrunProb, assessment.SandwichProb, assessment.Recommendation)
	assert.Greater(t, assessment.FrontrunProb, 0.5)
	assert.Equal(t, arbengine.RecommendPrivateExecute, assessment.Recommendation)
}

func TestAssess_NoContentionRecommendsPublicExecute(t *testing.T) {
	s := New(DefaultShadowCacheSize)
	bundle := arbengine.CandidateBundle{TargetAddr: target, GasPriceWei: gwei(50)}
	assessment := s.Assess(bundle)
	assert.Equal(t, 0.0, assessment.FrontrunProb)
	assert.Equal(t, arbengine.RecommendPublicExecute, assessment.Recommendation)
}

func TestAssess_ExtremeContentionRecommendsAbort(t *testing.T) {
	s := New(DefaultShadowCacheSize)
	for i := byte(0); i < 20; i++ {
		s.Observe(shadowAt(i, gwei(200))) // far above bundle gas, near-certain frontrun
	}
	bundle := arbengine.CandidateBundle{TargetAddr: target, GasPriceWei: gwei(50)}
	assessment := s.Assess(bundle)
	assert.Equal(t, arbengine.RecommendAbort, assessment.Recommendation)
}
