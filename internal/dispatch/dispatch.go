// Package dispatch is the pipeline's final stage: given a candidate
// bundle and the Bundle Simulator's verdict on it, it either broadcasts
// to the public mempool, submits to a private relay as an
// eth_sendBundle-shaped payload, or aborts and records the drop.
package dispatch

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/arberr"
	"github.com/vantablack/arbengine/internal/db"
	"github.com/vantablack/arbengine/internal/observer"
	"github.com/vantablack/arbengine/internal/safety"
	"github.com/vantablack/arbengine/pkg/contractclient"
	"github.com/vantablack/arbengine/pkg/txlistener"
	txtypes "github.com/vantablack/arbengine/pkg/types"
)

// executeMethod is the executor contract's single entrypoint: every
// candidate bundle, regardless of flash-loan source or hop count, packs
// down to this one call.
const executeMethod = "executeArbitrage"

// DefaultRefundBpsToUser is the relay's default searcher-to-user refund
// share when a bundle's RefundConfig doesn't override it.
const DefaultRefundBpsToUser = 9000

// RefundConfig mirrors a private relay's bundle-level refund terms.
type RefundConfig struct {
	RefundBpsToUser uint32 `json:"refund_bps_to_user"`
	ShareTEE        bool   `json:"shareTEE"`
	FastMode        bool   `json:"fastMode"`
}

// DefaultRefundConfig returns the relay's documented default terms.
func DefaultRefundConfig() RefundConfig {
	return RefundConfig{RefundBpsToUser: DefaultRefundBpsToUser}
}

// BundleHint names one piece of a transaction a searcher allows the
// relay to share with block builders in exchange for refund priority.
type BundleHint string

const (
	HintCalldata         BundleHint = "calldata"
	HintContractAddress  BundleHint = "contract_address"
	HintFunctionSelector BundleHint = "function_selector"
	HintLogs             BundleHint = "logs"
	HintHash             BundleHint = "hash"
)

// PrivateBundleRequest is the eth_sendBundle-shaped payload submitted to
// a private relay in place of the public mempool.
type PrivateBundleRequest struct {
	Txs               []string      `json:"txs"`
	BlockNumber       string        `json:"blockNumber"`
	MinTimestamp      *uint64       `json:"minTimestamp,omitempty"`
	MaxTimestamp      *uint64       `json:"maxTimestamp,omitempty"`
	RevertingTxHashes []common.Hash `json:"revertingTxHashes,omitempty"`
	RefundConfig      *RefundConfig `json:"refundConfig,omitempty"`
	Hints             []BundleHint  `json:"hints,omitempty"`
}

// hexBlockNumber renders n as a 0x-prefixed hex string, the shape every
// Ethereum JSON-RPC method expects a block number in.
func hexBlockNumber(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

// RelayClient is the subset of *rpc.Client a private relay submitter
// needs; satisfied directly by go-ethereum's JSON-RPC client.
type RelayClient interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Dispatcher is the pipeline's terminal stage. It never decides whether
// a bundle should run — that's internal/simulator's Recommendation and
// internal/safety's gates — it only carries out the decision and
// records what happened.
type Dispatcher struct {
	contract *contractclient.ContractClient
	listener *txlistener.TxListener
	relay    RelayClient
	recorder *db.Recorder
	bus      *observer.Bus

	stop    *safety.EmergencyStop
	breaker *safety.CircuitBreaker
	limiter *safety.RateLimiter

	privateBundleEnabled bool
	dryRun                bool
	refund                RefundConfig
	hints                 []BundleHint
	signerAddr            common.Address
	signerKey             *ecdsa.PrivateKey
	log                   *zap.Logger
}

// Option configures optional Dispatcher behavior.
type Option func(*Dispatcher)

// WithDryRun makes Execute build and log a bundle without ever signing
// or submitting it.
func WithDryRun(dryRun bool) Option { return func(d *Dispatcher) { d.dryRun = dryRun } }

// WithPrivateBundleEnabled toggles whether a PrivateExecute
// recommendation is honored or downgraded to a public broadcast.
func WithPrivateBundleEnabled(enabled bool) Option {
	return func(d *Dispatcher) { d.privateBundleEnabled = enabled }
}

// WithRefundConfig overrides the default relay refund terms.
func WithRefundConfig(cfg RefundConfig) Option {
	return func(d *Dispatcher) { d.refund = cfg }
}

// WithHints sets the privacy/refund tradeoff hints forwarded to the
// relay with every private bundle.
func WithHints(hints ...BundleHint) Option {
	return func(d *Dispatcher) { d.hints = hints }
}

// WithLogger attaches structured logging for signing/submission/receipt
// errors, the layer beneath the observer.Bus event stream.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// New builds a Dispatcher signing as signerAddr/signerKey, executing
// against contract, confirming via listener, optionally relaying
// privately via relay (nil disables private submission), and recording
// every outcome to recorder and bus.
func New(
	contract *contractclient.ContractClient,
	listener *txlistener.TxListener,
	relay RelayClient,
	recorder *db.Recorder,
	bus *observer.Bus,
	stop *safety.EmergencyStop,
	breaker *safety.CircuitBreaker,
	limiter *safety.RateLimiter,
	signerAddr common.Address,
	signerKey *ecdsa.PrivateKey,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		contract:   contract,
		listener:   listener,
		relay:      relay,
		recorder:   recorder,
		bus:        bus,
		stop:       stop,
		breaker:    breaker,
		limiter:    limiter,
		refund:     DefaultRefundConfig(),
		signerAddr: signerAddr,
		signerKey:  signerKey,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result is what Execute returns for one candidate bundle, regardless of
// which branch (public, private, aborted) it took.
type Result struct {
	TxHash        common.Hash
	SentPrivately bool
	Aborted       bool
	Receipt       *txtypes.TxReceipt
}

// Execute carries out assessment.Recommendation for bundle: broadcast
// publicly, submit privately, or abort. Every branch publishes an
// observer event. An execution row is recorded only once a receipt has
// been obtained; a failed send, private submission or receipt wait
// records a safety event and feeds the circuit breaker instead.
func (d *Dispatcher) Execute(ctx context.Context, bundle arbengine.CandidateBundle, assessment arbengine.ThreatAssessment, blockNumber uint64) (Result, error) {
	if assessment.Recommendation == arbengine.RecommendAbort {
		d.bus.Publish(observer.Event{Kind: observer.EventDropped, Data: bundle})
		return Result{Aborted: true}, nil
	}

	if err := d.stop.Allow(); err != nil {
		d.bus.Publish(observer.Event{Kind: observer.EventEmergencyStop, Data: bundle})
		return Result{Aborted: true}, err
	}
	if err := d.breaker.Allow(); err != nil {
		d.bus.Publish(observer.Event{Kind: observer.EventCircuitBreaker, Data: bundle})
		return Result{Aborted: true}, err
	}
	if !d.limiter.Allow(bundle.TargetPool) {
		d.bus.Publish(observer.Event{Kind: observer.EventDropped, Data: bundle})
		return Result{Aborted: true}, arberr.New(arberr.SimulationFailed, "rate limited")
	}

	wantPrivate := assessment.Recommendation == arbengine.RecommendPrivateExecute && d.privateBundleEnabled && d.relay != nil

	if d.dryRun {
		d.bus.Publish(observer.Event{Kind: observer.EventDispatched, Data: bundle})
		return Result{SentPrivately: wantPrivate}, nil
	}

	mode := txtypes.Standard
	if wantPrivate {
		mode = txtypes.PrivateBundle
	}

	args := buildExecuteArgs(bundle)
	gasLimit := bundle.GasLimit
	txHash, raw, err := d.contract.Send(ctx, mode, &gasLimit, &d.signerAddr, d.signerKey, executeMethod, args...)
	if err != nil {
		d.log.Error("sign/send candidate bundle", zap.String("bundle_id", bundle.ID), zap.Error(err))
		d.recordFailure(bundle, err)
		return Result{}, err
	}

	if wantPrivate {
		if err := d.submitPrivate(ctx, raw, blockNumber); err != nil {
			d.log.Error("submit private bundle", zap.String("bundle_id", bundle.ID), zap.Error(err))
			d.recordFailure(bundle, err)
			return Result{TxHash: txHash}, err
		}
	}

	receipt, err := d.listener.WaitForTransaction(txHash)
	if err != nil {
		d.log.Error("await confirmation", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
		d.recordFailure(bundle, err)
		return Result{TxHash: txHash, SentPrivately: wantPrivate}, err
	}

	gasUsed, _ := new(big.Int).SetString(receipt.GasUsed, 0)
	if gasUsed == nil {
		gasUsed = big.NewInt(0)
	}
	if err := d.recorder.RecordExecution(bundle, txHash.Hex(), receipt.Status, gasUsed, wantPrivate); err != nil {
		return Result{}, fmt.Errorf("record execution %s: %w", txHash.Hex(), err)
	}
	if receipt.Status == 0 {
		d.breaker.RecordError(false, "execution reverted")
	}

	d.bus.Publish(observer.Event{Kind: observer.EventDispatched, Data: bundle})
	return Result{TxHash: txHash, SentPrivately: wantPrivate, Receipt: receipt}, nil
}

// submitPrivate wraps raw's signed bytes in an eth_sendBundle-shaped
// request targeting the next block and submits it to the relay.
func (d *Dispatcher) submitPrivate(ctx context.Context, raw []byte, blockNumber uint64) error {
	req := PrivateBundleRequest{
		Txs:          []string{fmt.Sprintf("0x%x", raw)},
		BlockNumber:  hexBlockNumber(blockNumber + 1),
		RefundConfig: &d.refund,
		Hints:        d.hints,
	}
	var result interface{}
	if err := d.relay.CallContext(ctx, &result, "eth_sendBundle", req); err != nil {
		return arberr.Wrap(arberr.SimulationFailed, "submit private bundle", err)
	}
	return nil
}

func (d *Dispatcher) recordFailure(bundle arbengine.CandidateBundle, cause error) {
	d.breaker.RecordError(false, cause.Error())
	d.bus.Publish(observer.Event{Kind: observer.EventDropped, Data: bundle})
	if err := d.recorder.RecordSafetyEvent("dispatch_failed", cause.Error()); err != nil {
		return
	}
}

// buildExecuteArgs packs a candidate bundle down to the executor
// contract's argument order: the hop route as parallel token/pool
// arrays, the flash-loan source tag, and the minimum acceptable net
// profit the on-chain side must enforce as its own last line of
// defense.
func buildExecuteArgs(bundle arbengine.CandidateBundle) []interface{} {
	tokens := make([]common.Address, 0, len(bundle.Path.Hops)+1)
	poolIDs := make([]string, 0, len(bundle.Path.Hops))
	for i, hop := range bundle.Path.Hops {
		if i == 0 {
			tokens = append(tokens, hop.TokenIn)
		}
		tokens = append(tokens, hop.TokenOut)
		poolIDs = append(poolIDs, hop.PoolID)
	}
	minProfit := big.NewInt(0)
	if bundle.Breakdown.Net != nil {
		minProfit = bundle.Breakdown.Net
	}
	return []interface{}{tokens, poolIDs, string(bundle.FlashLoan.Source), minProfit}
}
