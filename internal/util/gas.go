package util

import (
	"fmt"
	"math/big"

	arbtypes "github.com/vantablack/arbengine/pkg/types"
)

// ExtractGasCost parses a TxReceipt's hex-encoded gasUsed/effectiveGasPrice
// fields and returns gasUsed * effectiveGasPrice in wei.
func ExtractGasCost(receipt *arbtypes.TxReceipt) (*big.Int, error) {
	if receipt == nil {
		return nil, fmt.Errorf("nil receipt")
	}
	gasUsed, ok := new(big.Int).SetString(receipt.GasUsed, 0)
	if !ok {
		return nil, fmt.Errorf("invalid gasUsed %q", receipt.GasUsed)
	}
	gasPrice, ok := new(big.Int).SetString(receipt.EffectiveGasPrice, 0)
	if !ok {
		return nil, fmt.Errorf("invalid effectiveGasPrice %q", receipt.EffectiveGasPrice)
	}
	return new(big.Int).Mul(gasUsed, gasPrice), nil
}
