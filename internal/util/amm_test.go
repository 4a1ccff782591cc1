package util

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickToSqrtPriceX96(t *testing.T) {
	sqrtPrice := TickToSqrtPriceX96(-249428)

	expected, _ := big.NewInt(0).SetString("304011615425126403287043", 10)
	assert.Equal(t, expected, sqrtPrice)
}

func TestCalculateTickBounds(t *testing.T) {
	lower, upper, err := CalculateTickBounds(100, 6, 200)
	assert.NoError(t, err)
	assert.Less(t, lower, int32(100))
	assert.Greater(t, upper, int32(100))
	assert.Equal(t, int32(0), lower%200)
	assert.Equal(t, int32(0), upper%200)
}

func TestCalculateTickBounds_InvalidSpacing(t *testing.T) {
	_, _, err := CalculateTickBounds(100, 6, 0)
	assert.Error(t, err)
}

func TestComputeAmounts_InRange(t *testing.T) {
	sqrtPrice := TickToSqrtPriceX96(0)
	amount0, amount1, err := ComputeAmounts(sqrtPrice, 0, -200, 200, big.NewInt(1_000_000), big.NewInt(1_000_000))
	assert.NoError(t, err)
	assert.True(t, amount0.Sign() >= 0)
	assert.True(t, amount1.Sign() >= 0)
	assert.True(t, amount0.Cmp(big.NewInt(1_000_000)) <= 0)
	assert.True(t, amount1.Cmp(big.NewInt(1_000_000)) <= 0)
}

func TestComputeAmounts_BelowRange(t *testing.T) {
	sqrtPrice := TickToSqrtPriceX96(-1000)
	amount0, amount1, err := ComputeAmounts(sqrtPrice, -1000, -200, 200, big.NewInt(500), big.NewInt(500))
	assert.NoError(t, err)
	assert.Equal(t, big.NewInt(500), amount0)
	assert.Equal(t, big.NewInt(0), amount1)
}

func TestCalculateMinAmount(t *testing.T) {
	min := CalculateMinAmount(big.NewInt(1000), 5)
	assert.Equal(t, big.NewInt(950), min)
}

func TestApplyFeeBps(t *testing.T) {
	out := ApplyFeeBps(big.NewInt(1_000_000), 30) // 0.3%
	assert.Equal(t, big.NewInt(997_000), out)
}

func TestRateOfChangeBps(t *testing.T) {
	assert.Equal(t, int64(1000), RateOfChangeBps(big.NewInt(1000), big.NewInt(1100)))
	assert.Equal(t, int64(-1), RateOfChangeBps(big.NewInt(0), big.NewInt(100)))
}
