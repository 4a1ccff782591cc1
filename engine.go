package arbengine

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vantablack/arbengine/configs"
	"github.com/vantablack/arbengine/internal/db"
	"github.com/vantablack/arbengine/internal/dispatch"
	"github.com/vantablack/arbengine/internal/flashloan"
	"github.com/vantablack/arbengine/internal/observer"
	"github.com/vantablack/arbengine/internal/oracle"
	"github.com/vantablack/arbengine/internal/orchestrator"
	"github.com/vantablack/arbengine/internal/profitability"
	"github.com/vantablack/arbengine/internal/risk"
	"github.com/vantablack/arbengine/internal/safety"
	"github.com/vantablack/arbengine/internal/simulator"
	"github.com/vantablack/arbengine/pkg/contractclient"
	"github.com/vantablack/arbengine/pkg/feed"
	"github.com/vantablack/arbengine/pkg/txlistener"
)

// Engine ties every pipeline stage to one live RPC connection and runs
// them as one unit: the graph fed by PoolFeed, the Bundle Simulator's
// shadow cache fed by MempoolFeed, candidate discovery and dispatch run per confirmed block by Orchestrator, and
// the Safety Governor's three gates guarding every dispatch attempt.
// It plays the same role for this engine that Blackhole plays for a
// single DEX integration: one struct a caller constructs once and
// drives for the process's lifetime.
type Engine struct {
	cfg          *configs.Config
	client       *ethclient.Client
	orch         *orchestrator.Orchestrator
	poolFeed     *feed.PoolFeed
	mempoolFeed  *feed.MempoolFeed
	stop         *safety.EmergencyStop
	breaker      *safety.CircuitBreaker
	recorder     *db.Recorder
	bus          *observer.Bus
	log          *zap.Logger
}

// New wires every internal package from cfg and client, signing as
// signerAddr/signerKey and optionally relaying private bundles through
// relay (nil disables private submission regardless of configuration).
func New(
	cfg *configs.Config,
	client *ethclient.Client,
	signerAddr common.Address,
	signerKey *ecdsa.PrivateKey,
	relay dispatch.RelayClient,
	log *zap.Logger,
) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	recorder, err := db.NewRecorder(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open recorder: %w", err)
	}

	bus := observer.New()
	bus.Subscribe(observer.NewZapObserver(log))

	g := cfg.ToGraph()

	tokens := cfg.ToTokens()

	// No live reference-amount source (e.g. a router quote) is wired;
	// when referenceAmount returns nil the pathfinder uses a reference of
	// one base unit of the start token, so its probes are 1 and 3 base
	// units (the 0.1x and 0.3x multiples round to zero and are skipped).
	finder := cfg.ToPathfinder(func(common.Address) *uint256.Int { return nil })

	var oracleV *oracle.Validator = cfg.ToOracle(time.Now)
	cfg.ConfigureOracle(oracleV)

	gasPriceSource := func() (*big.Int, error) {
		price, err := client.SuggestGasPrice(context.Background())
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		return price, nil
	}
	var profit *profitability.Engine = cfg.ToProfitability(oracleV, gasPriceSource)

	riskGate := risk.New()
	sim := simulator.New(1024)

	breaker, stop, limiter := cfg.ToSafety(time.Now)

	executorABI, err := cfg.ExecutorABI()
	if err != nil {
		return nil, fmt.Errorf("load executor abi: %w", err)
	}
	contract := contractclient.NewContractClient(client, cfg.ExecutorAddress(), executorABI)
	listener := txlistener.NewTxListener(client)

	dispatcher := dispatch.New(
		contract,
		listener,
		relay,
		recorder,
		bus,
		stop,
		breaker,
		limiter,
		signerAddr,
		signerKey,
		dispatch.WithDryRun(cfg.DryRun),
		dispatch.WithPrivateBundleEnabled(cfg.PrivateRelay.Enabled),
		dispatch.WithRefundConfig(dispatch.RefundConfig{RefundBpsToUser: cfg.RefundBpsToUser(), ShareTEE: cfg.PrivateRelay.ShareTEE, FastMode: cfg.PrivateRelay.FastMode}),
		dispatch.WithLogger(log),
	)

	flashCaps := func(common.Address) flashloan.SourceCaps { return cfg.ToFlashLoanCaps() }

	orch := orchestrator.New(
		cfg.ToOrchestratorConfig(),
		g,
		finder,
		profit,
		oracleV,
		riskGate,
		sim,
		flashCaps,
		tokens,
		dispatcher,
		recorder,
		bus,
		cfg.StartTokens(),
		log,
	)

	poolFeed := feed.NewPoolFeed(client, g, cfg.ToTrackedPools())
	mempoolFeed := feed.NewMempoolFeed(cfg.PrivateRelay.URL, sim)

	return &Engine{
		cfg:         cfg,
		client:      client,
		orch:        orch,
		poolFeed:    poolFeed,
		mempoolFeed: mempoolFeed,
		stop:        stop,
		breaker:     breaker,
		recorder:    recorder,
		bus:         bus,
		log:         log,
	}, nil
}

// Subscribe registers an additional observer.Observer on the engine's
// event bus, e.g. a MetricsObserver for a /metrics scrape endpoint.
func (e *Engine) Subscribe(o observer.Observer) {
	e.bus.Subscribe(o)
}

// Run drives the engine until ctx is canceled: when cfg.PrivateRelay.URL
// is set, the mempool shadow feed runs in the background against it,
// while new block headers arrive through a head subscription and, on
// each new one, are fed through PoolFeed and then one
// Orchestrator.RunBlock pass. A PoolFeed error is logged and that block
// is skipped; a RunBlock error ends Run only once ctx is done. Run
// returns with an error when the head subscription fails or the mempool
// feed returns one.
func (e *Engine) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	if e.cfg.PrivateRelay.URL != "" {
		group.Go(func() error { return e.mempoolFeed.Run(gctx) })
	}

	group.Go(func() error { return e.runBlockLoop(gctx) })

	return group.Wait()
}

// runBlockLoop subscribes to new block headers and runs one
// discover-through-dispatch pass per block.
func (e *Engine) runBlockLoop(ctx context.Context) error {
	headers := make(chan *ethtypes.Header)
	sub, err := e.client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("subscribe new head: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("head subscription: %w", err)
		case head := <-headers:
			blockNumber := head.Number.Uint64()
			if err := e.poolFeed.PollBlock(ctx, blockNumber); err != nil {
				e.log.Warn("poll pool feed", zap.Uint64("block_number", blockNumber), zap.Error(err))
				continue
			}
			if err := e.orch.RunBlock(ctx, blockNumber); err != nil && ctx.Err() != nil {
				return err
			}
		}
	}
}

// EmergencyStop exposes the Safety Governor's kill switch to an operator
// control surface (a CLI command or admin endpoint), independent of the
// automatic trips RecordError/RecordLoss apply internally.
func (e *Engine) EmergencyStop(reason string) {
	e.stop.Trip(reason)
}

// Healthy reports whether the emergency stop is not latched and the
// circuit breaker has not tripped; it does not check feed liveness.
func (e *Engine) Healthy() error {
	if err := e.stop.Allow(); err != nil {
		return err
	}
	return e.breaker.Allow()
}
