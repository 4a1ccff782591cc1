package feed

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSyncData_UnpacksTwoReserves(t *testing.T) {
	data := make([]byte, 64)
	data[31] = 0x64 // reserveA = 100
	data[63] = 0xc8 // reserveB = 200

	reserveA, reserveB, err := decodeSyncData(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), reserveA.Uint64())
	assert.Equal(t, uint64(200), reserveB.Uint64())
}

func TestDecodeSyncData_RejectsWrongLength(t *testing.T) {
	_, _, err := decodeSyncData(make([]byte, 32))
	assert.Error(t, err)
}

func TestSyncEventSignature_MatchesKnownTopic(t *testing.T) {
	// keccak256("Sync(uint112,uint112)")
	assert.Equal(t, common.HexToHash("0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1"), syncEventSignature)
}
