package contractclient

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txtypes "github.com/vantablack/arbengine/pkg/types"
)

func bigOne() *big.Int    { return big.NewInt(1) }
func bigAmount() *big.Int { return big.NewInt(1_000_000) }
func hexOf(data []byte) string { return "0x" + hex.EncodeToString(data) }

// erc20ABIJSON is the minimal transfer/Transfer subset of the ERC-20
// standard ABI, enough to exercise decode logic without a live RPC.
const erc20ABIJSON = `[
  {"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

func mustClient(t *testing.T) *ContractClient {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	require.NoError(t, err)
	addr := common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E")
	return NewContractClient(nil, addr, parsed)
}

func TestContractAddressAndAbi(t *testing.T) {
	c := mustClient(t)
	assert.Equal(t, common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"), c.ContractAddress())
	_, err := c.Abi().Pack("transfer", common.HexToAddress("0x0000000000000000000000000000000000dEaD"), bigOne())
	assert.NoError(t, err)
}

func TestDecodeTransaction(t *testing.T) {
	c := mustClient(t)
	to := common.HexToAddress("0x6e4141D33021b52c91c28608403DB4a0Ffb50Ec6")
	data, err := c.Abi().Pack("transfer", to, bigAmount())
	require.NoError(t, err)

	decoded, err := c.DecodeTransaction(data)
	require.NoError(t, err)
	assert.Equal(t, "transfer", decoded.MethodName)
	assert.Equal(t, to, decoded.Parameter["to"])
	assert.Equal(t, bigAmount(), decoded.Parameter["amount"])
}

func TestDecodeTransaction_RejectsShortData(t *testing.T) {
	c := mustClient(t)
	_, err := c.DecodeTransaction([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeTransactionHex(t *testing.T) {
	c := mustClient(t)
	to := common.HexToAddress("0x6e4141D33021b52c91c28608403DB4a0Ffb50Ec6")
	data, err := c.Abi().Pack("transfer", to, bigAmount())
	require.NoError(t, err)

	decoded, err := c.DecodeTransactionHex(hexOf(data))
	require.NoError(t, err)
	assert.Equal(t, "transfer", decoded.MethodName)
}

func TestParseReceipt_DecodesKnownEvent(t *testing.T) {
	c := mustClient(t)
	from := common.HexToAddress("0x0000000000000000000000000000000000dEaD")
	to := common.HexToAddress("0x6e4141D33021b52c91c28608403DB4a0Ffb50Ec6")
	eventID := c.Abi().Events["Transfer"].ID

	nonIndexed, err := c.Abi().Events["Transfer"].Inputs.NonIndexed().Pack(bigAmount())
	require.NoError(t, err)

	receipt := &txtypes.TxReceipt{
		Logs: []txtypes.Log{{
			Address: c.ContractAddress(),
			Topics:  []common.Hash{eventID, from.Hash(), to.Hash()},
			Data:    nonIndexed,
		}},
	}

	out, err := c.ParseReceipt(receipt)
	require.NoError(t, err)
	assert.Contains(t, out, "Transfer")
	assert.Contains(t, out, "value")
}

func TestParseReceipt_NilReceiptErrors(t *testing.T) {
	c := mustClient(t)
	_, err := c.ParseReceipt(nil)
	assert.Error(t, err)
}

func TestParseReceipt_SkipsUnknownEvent(t *testing.T) {
	c := mustClient(t)
	receipt := &txtypes.TxReceipt{
		Logs: []txtypes.Log{{
			Address: c.ContractAddress(),
			Topics:  []common.Hash{{0xFF}},
			Data:    nil,
		}},
	}
	out, err := c.ParseReceipt(receipt)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}
