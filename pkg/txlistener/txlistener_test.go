package txlistener

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestNewTxListener_Defaults(t *testing.T) {
	l := NewTxListener(nil)
	assert.Equal(t, defaultPollInterval, l.pollInterval)
	assert.Equal(t, defaultTimeout, l.timeout)
}

func TestNewTxListener_OptionsOverrideDefaults(t *testing.T) {
	l := NewTxListener(nil, WithPollInterval(500*time.Millisecond), WithTimeout(10*time.Second))
	assert.Equal(t, 500*time.Millisecond, l.pollInterval)
	assert.Equal(t, 10*time.Second, l.timeout)
}

func TestToTxReceipt_FlattensQuantitiesAndLogs(t *testing.T) {
	addr := common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E")
	topic := common.HexToHash("0x1")
	receipt := &ethtypes.Receipt{
		TxHash:            common.HexToHash("0xabc"),
		Status:            1,
		GasUsed:           150000,
		EffectiveGasPrice: big.NewInt(50_000_000_000),
		BlockNumber:       big.NewInt(12345),
		Logs: []*ethtypes.Log{
			{Address: addr, Topics: []common.Hash{topic}, Data: []byte{0x01}},
		},
	}

	out := toTxReceipt(receipt)
	assert.Equal(t, uint64(1), out.Status)
	assert.Equal(t, "0x249f0", out.GasUsed)
	assert.Equal(t, "0xba43b7400", out.EffectiveGasPrice)
	assert.Equal(t, "0x3039", out.BlockNumber)
	assert.Len(t, out.Logs, 1)
	assert.Equal(t, addr, out.Logs[0].Address)
	assert.Equal(t, []common.Hash{topic}, out.Logs[0].Topics)
}
