// Package txlistener polls an RPC endpoint for a transaction's receipt,
// the blocking half of dispatch: submit via pkg/contractclient, then
// wait here for on-chain confirmation before recording the outcome.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vantablack/arbengine/internal/arberr"
	txtypes "github.com/vantablack/arbengine/pkg/types"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 5 * time.Minute
)

// TxListener polls for a transaction's receipt until it confirms or the
// configured timeout elapses.
type TxListener struct {
	client       *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a TxListener at construction time.
type Option func(*TxListener)

// WithPollInterval overrides the default 2s poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout overrides the default 5m wait timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// NewTxListener builds a TxListener polling client, applying opts over
// the 2s/5m defaults.
func NewTxListener(client *ethclient.Client, opts ...Option) *TxListener {
	l := &TxListener{client: client, pollInterval: defaultPollInterval, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks, polling at pollInterval, until txHash's
// receipt is available or timeout elapses. A timeout is classified
// arberr.FeedStale: the chain's view of this transaction never arrived
// in time, the same infrastructural bucket as a stalled price feed.
func (l *TxListener) WaitForTransaction(txHash common.Hash) (*txtypes.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			return toTxReceipt(receipt), nil
		case errors.Is(err, ethereum.NotFound):
			// not yet mined, keep polling
		default:
			return nil, fmt.Errorf("fetch receipt for %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, arberr.Wrap(arberr.FeedStale, fmt.Sprintf("receipt for %s not observed within %s", txHash.Hex(), l.timeout), ctx.Err())
		case <-ticker.C:
		}
	}
}

// toTxReceipt flattens a go-ethereum receipt into the engine's wire
// shape: quantity fields as hex strings, logs as the minimal
// address/topics/data tuple ContractClient.ParseReceipt needs.
func toTxReceipt(receipt *ethtypes.Receipt) *txtypes.TxReceipt {
	logs := make([]txtypes.Log, 0, len(receipt.Logs))
	for _, lg := range receipt.Logs {
		logs = append(logs, txtypes.Log{Address: lg.Address, Topics: lg.Topics, Data: lg.Data})
	}
	return &txtypes.TxReceipt{
		TxHash:            receipt.TxHash,
		Status:            receipt.Status,
		GasUsed:           fmt.Sprintf("0x%x", receipt.GasUsed),
		EffectiveGasPrice: fmt.Sprintf("0x%x", receipt.EffectiveGasPrice),
		BlockNumber:       fmt.Sprintf("0x%x", receipt.BlockNumber),
		Logs:              logs,
	}
}
