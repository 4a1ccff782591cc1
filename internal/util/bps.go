package util

import "math/big"

// BpsDenominator is the basis-point scale fixed by the spec (1 bps = 1e-4).
const BpsDenominator = 10_000

// ApplyFeeBps returns amount reduced by feeBps/10000, rounded down
// (floor) so the result never overstates what the protocol would return.
func ApplyFeeBps(amount *big.Int, feeBps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	kept := new(big.Int).Sub(big.NewInt(BpsDenominator), big.NewInt(int64(feeBps)))
	out := new(big.Int).Mul(amount, kept)
	return out.Div(out, big.NewInt(BpsDenominator))
}

// BpsOf returns amount * bps / 10000, floored.
func BpsOf(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Div(out, big.NewInt(BpsDenominator))
}

// RateOfChangeBps returns |newVal - oldVal| * 10000 / oldVal as an
// absolute basis-point delta, or -1 if oldVal is non-positive (undefined).
func RateOfChangeBps(oldVal, newVal *big.Int) int64 {
	if oldVal == nil || oldVal.Sign() <= 0 || newVal == nil {
		return -1
	}
	delta := new(big.Int).Sub(newVal, oldVal)
	delta.Abs(delta)
	delta.Mul(delta, big.NewInt(BpsDenominator))
	delta.Div(delta, oldVal)
	return delta.Int64()
}
