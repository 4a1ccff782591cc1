// Package feed connects the engine to its two upstream data sources: an
// EVM RPC endpoint for confirmed pool state (PoolFeed) and a mempool
// shadow WebSocket stream for the Bundle Simulator's pre-crime cache
// (MempoolFeed). MempoolFeed reconnects with exponential backoff and
// never lets a single malformed message tear down the connection.
// PoolFeed is polled once per block, does not reconnect or retry, and
// returns that block's RPC or log-decoding error to its caller.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/arberr"
)

// ShadowSink receives every decoded mempool shadow transaction;
// internal/simulator.Simulator implements this.
type ShadowSink interface {
	Observe(tx arbengine.MempoolTxShadow)
}

// pendingTxMessage is the wire shape this feed expects from its upstream
// mempool-streaming relay: hex hash/address, decimal-or-hex quantities.
type pendingTxMessage struct {
	Hash     string `json:"hash"`
	To       string `json:"to"`
	GasPrice string `json:"gasPrice"`
	GasLimit uint64 `json:"gasLimit"`
	Value    string `json:"value"`
}

func (m pendingTxMessage) toShadow(now time.Time) (arbengine.MempoolTxShadow, error) {
	if m.Hash == "" || m.To == "" {
		return arbengine.MempoolTxShadow{}, arberr.New(arberr.FeedStale, "pending tx message missing hash/to")
	}
	gasPrice, ok := new(big.Int).SetString(m.GasPrice, 0)
	if !ok {
		gasPrice = big.NewInt(0)
	}
	value, ok := new(big.Int).SetString(m.Value, 0)
	if !ok {
		value = big.NewInt(0)
	}
	return arbengine.MempoolTxShadow{
		Hash:        common.HexToHash(m.Hash),
		To:          common.HexToAddress(m.To),
		GasPriceWei: gasPrice,
		GasLimit:    m.GasLimit,
		Value:       value,
		ObservedAt:  now,
	}, nil
}

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// nextBackoff doubles prev up to maxBackoff, seeding from minBackoff on
// the first failed attempt (prev <= 0).
func nextBackoff(prev time.Duration) time.Duration {
	if prev <= 0 {
		return minBackoff
	}
	next := prev * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// MempoolFeed subscribes to an upstream mempool-shadow WebSocket stream
// and forwards every decoded pending transaction to sink, reconnecting
// with exponential backoff on any dial or read error.
type MempoolFeed struct {
	url    string
	sink   ShadowSink
	dialer *websocket.Dialer
}

// NewMempoolFeed builds a feed dialing url and forwarding decoded
// messages to sink.
func NewMempoolFeed(url string, sink ShadowSink) *MempoolFeed {
	return &MempoolFeed{url: url, sink: sink, dialer: websocket.DefaultDialer}
}

// Run blocks, reconnecting until ctx is canceled. A single malformed
// upstream payload drops that message only; duplicate-hash idempotency
// is the sink's responsibility (the simulator's shadow cache already
// dedups by hash).
func (f *MempoolFeed) Run(ctx context.Context) error {
	backoff := time.Duration(0)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
		if err != nil {
			backoff = nextBackoff(backoff)
			if !sleepOrDone(ctx, backoff) {
				return ctx.Err()
			}
			continue
		}
		backoff = 0
		if err := f.readLoop(ctx, conn); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			if !sleepOrDone(ctx, backoff) {
				return ctx.Err()
			}
			continue
		}
	}
}

func (f *MempoolFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			return fmt.Errorf("read mempool shadow message: %w", err)
		}
		var msg pendingTxMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue // malformed payload, drop and keep reading
		}
		shadow, err := msg.toShadow(time.Now())
		if err != nil {
			continue
		}
		f.sink.Observe(shadow)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
