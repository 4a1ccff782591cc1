package feed

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	arbengine "github.com/vantablack/arbengine"
)

// syncEventSignature is the Uniswap-V2-style Sync(uint112,uint112) event
// topic this feed decodes reserve updates from.
var syncEventSignature = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))

// GraphSink receives one block's worth of pool updates as a single
// transactional batch; internal/graph.Graph implements this.
type GraphSink interface {
	UpdatePool(blockNumber uint64, updates []arbengine.PoolUpdate) error
}

// TrackedPool is one pool this feed watches for Sync events, carrying
// the static metadata (token pair, fee, dex kind) a bare reserve event
// can't recover from the log alone.
type TrackedPool struct {
	ID      string
	Address common.Address
	TokenA  common.Address
	TokenB  common.Address
	DexKind arbengine.DexKind
	FeeBps  uint32
}

// PoolFeed polls confirmed blocks for Sync logs from its tracked pools
// and applies decoded reserve updates to sink.
type PoolFeed struct {
	client *ethclient.Client
	sink   GraphSink
	pools  []TrackedPool
}

// NewPoolFeed builds a feed watching pools, applying decoded updates to
// sink.
func NewPoolFeed(client *ethclient.Client, sink GraphSink, pools []TrackedPool) *PoolFeed {
	return &PoolFeed{client: client, sink: sink, pools: pools}
}

// PollBlock fetches Sync logs for every tracked pool at blockNumber and
// applies them to the graph as a single transactional batch. A block
// with no Sync activity among tracked pools is a no-op, not an error.
func (f *PoolFeed) PollBlock(ctx context.Context, blockNumber uint64) error {
	if len(f.pools) == 0 {
		return nil
	}
	addrs := make([]common.Address, len(f.pools))
	byAddr := make(map[common.Address]TrackedPool, len(f.pools))
	for i, p := range f.pools {
		addrs[i] = p.Address
		byAddr[p.Address] = p
	}

	logs, err := f.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(blockNumber),
		ToBlock:   new(big.Int).SetUint64(blockNumber),
		Addresses: addrs,
		Topics:    [][]common.Hash{{syncEventSignature}},
	})
	if err != nil {
		return fmt.Errorf("filter sync logs at block %d: %w", blockNumber, err)
	}

	updates := make([]arbengine.PoolUpdate, 0, len(logs))
	for _, lg := range logs {
		tracked, ok := byAddr[lg.Address]
		if !ok {
			continue
		}
		reserveA, reserveB, err := decodeSyncData(lg.Data)
		if err != nil {
			return fmt.Errorf("decode sync log from %s: %w", lg.Address.Hex(), err)
		}
		updates = append(updates, arbengine.PoolUpdate{
			Pool: arbengine.Pool{
				ID:              tracked.ID,
				DexKind:         tracked.DexKind,
				TokenA:          tracked.TokenA,
				TokenB:          tracked.TokenB,
				ReserveA:        reserveA,
				ReserveB:        reserveB,
				FeeBps:          tracked.FeeBps,
				LastUpdateBlock: blockNumber,
			},
			BlockNumber: blockNumber,
			BlockHash:   lg.BlockHash,
		})
	}
	if len(updates) == 0 {
		return nil
	}
	return f.sink.UpdatePool(blockNumber, updates)
}

// decodeSyncData unpacks a Sync(uint112,uint112) event's non-indexed
// data: two big-endian, left-padded 32-byte words.
func decodeSyncData(data []byte) (*uint256.Int, *uint256.Int, error) {
	if len(data) != 64 {
		return nil, nil, fmt.Errorf("sync log data length %d, want 64", len(data))
	}
	reserveA := new(uint256.Int).SetBytes(data[:32])
	reserveB := new(uint256.Int).SetBytes(data[32:])
	return reserveA, reserveB, nil
}
