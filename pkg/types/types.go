// Package types holds the small set of wire-level types shared between
// pkg/contractclient, pkg/txlistener and internal/util, kept separate so
// none of those packages import each other in a cycle.
package types

import "github.com/ethereum/go-ethereum/common"

// SendMode selects how a ContractClient submits a transaction.
type SendMode int

const (
	// Standard signs and broadcasts to the public mempool.
	Standard SendMode = iota
	// PrivateBundle routes the signed transaction through a private
	// relay instead of the public mempool.
	PrivateBundle
)

func (m SendMode) String() string {
	if m == PrivateBundle {
		return "private_bundle"
	}
	return "standard"
}

// TxReceipt is the minimal confirmed-transaction view the engine needs;
// quantity fields are hex strings exactly as returned by eth_getTransactionReceipt
// so callers parse them with big.Int.SetString(s, 0).
type TxReceipt struct {
	TxHash            common.Hash `json:"transactionHash"`
	Status            uint64      `json:"status"`
	GasUsed           string      `json:"gasUsed"`
	EffectiveGasPrice string      `json:"effectiveGasPrice"`
	BlockNumber       string      `json:"blockNumber"`
	Logs              []Log       `json:"logs"`
}

// Log is a single decoded event log entry attached to a TxReceipt.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
}

// DecodedEvent is one ABI-decoded log, produced by ContractClient.ParseReceipt.
type DecodedEvent struct {
	EventName string                 `json:"EventName"`
	Parameter map[string]interface{} `json:"Parameter"`
}
