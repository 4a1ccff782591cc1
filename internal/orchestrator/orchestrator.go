// Package orchestrator wires every pipeline stage into one per-block
// run: path discovery, flash-loan selection, profitability accounting,
// oracle breaker gating, pre-crime simulation, risk gating and final
// dispatch. It
// owns the two bounded channels the stages communicate through and the
// worker pools that drain them, modeled on the producer/worker-pool
// shape of a Kafka consumer group but generalized to an in-process
// pipeline with golang.org/x/sync for cancellation-aware fan-out.
package orchestrator

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/arberr"
	"github.com/vantablack/arbengine/internal/db"
	"github.com/vantablack/arbengine/internal/dispatch"
	"github.com/vantablack/arbengine/internal/flashloan"
	"github.com/vantablack/arbengine/internal/graph"
	"github.com/vantablack/arbengine/internal/observer"
	"github.com/vantablack/arbengine/internal/oracle"
	"github.com/vantablack/arbengine/internal/pathfinder"
	"github.com/vantablack/arbengine/internal/profitability"
	"github.com/vantablack/arbengine/internal/risk"
	"github.com/vantablack/arbengine/internal/simulator"
)

// Default channel depths and per-candidate budget. The opportunities
// channel — everything that already cleared the profitability
// threshold and is headed toward execution — gets the larger buffer
// since it must never drop; the paths channel, pure candidate
// discovery noise, gets the smaller one and may shed its oldest entry
// under sustained backpressure.
const (
	DefaultPathBufferSize         = 50_000
	DefaultOpportunityBufferSize  = 100_000
	DefaultCandidateDeadline      = 50 * time.Millisecond
)

// Config tunes the orchestrator's buffering, concurrency and per-candidate
// budget; zero values fall back to the package defaults.
type Config struct {
	PathBufferSize        int
	OpportunityBufferSize int
	CandidateDeadline     time.Duration
	Workers               int
	ChainID               int64
	MinLiquidityUSD       *uint256.Int
	ExecutorAddr          common.Address
	DefaultGasLimit       uint64
	AvailableCapital      *big.Int
}

func (c Config) withDefaults() Config {
	if c.PathBufferSize <= 0 {
		c.PathBufferSize = DefaultPathBufferSize
	}
	if c.OpportunityBufferSize <= 0 {
		c.OpportunityBufferSize = DefaultOpportunityBufferSize
	}
	if c.CandidateDeadline <= 0 {
		c.CandidateDeadline = DefaultCandidateDeadline
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.DefaultGasLimit == 0 {
		c.DefaultGasLimit = 300_000
	}
	if c.AvailableCapital == nil {
		c.AvailableCapital = big.NewInt(0)
	}
	return c
}

// opportunity is one path that already cleared the profitability
// threshold and is now a dispatch candidate in waiting.
type opportunity struct {
	path      arbengine.ArbitragePath
	breakdown arbengine.ProfitBreakdown
	flash     arbengine.FlashLoanConfig
}

// Orchestrator runs the full per-block pipeline: graph snapshot -> path
// discovery -> flash-loan selection -> profitability -> oracle breaker
// check -> pre-crime simulation -> risk gate -> dispatch. The risk gate
// runs after the simulation and takes its threat assessment as input.
type Orchestrator struct {
	cfg Config

	graph     *graph.Graph
	finder    *pathfinder.Finder
	profit    *profitability.Engine
	oracleV   *oracle.Validator
	riskGate  *risk.Gate
	sim       *simulator.Simulator
	flashCaps func(tokenIn common.Address) flashloan.SourceCaps
	tokens    map[common.Address]arbengine.Token
	dispatch  *dispatch.Dispatcher
	recorder  *db.Recorder
	bus       *observer.Bus
	log       *zap.Logger

	startTokens []common.Address

	pathsCh        chan arbengine.ArbitragePath
	opportunityCh  chan opportunity

	mu             sync.Mutex
	seenShapes     map[string]bool
	recentOutcomes []bool // ring of recent success/failure, oldest first
}

// New builds an Orchestrator. flashCaps supplies the per-token liquidity
// caps the Flash-Loan Selector needs, queried fresh per candidate since
// provider liquidity moves block to block.
func New(
	cfg Config,
	g *graph.Graph,
	finder *pathfinder.Finder,
	profit *profitability.Engine,
	oracleV *oracle.Validator,
	riskGate *risk.Gate,
	sim *simulator.Simulator,
	flashCaps func(tokenIn common.Address) flashloan.SourceCaps,
	tokens map[common.Address]arbengine.Token,
	dispatcher *dispatch.Dispatcher,
	recorder *db.Recorder,
	bus *observer.Bus,
	startTokens []common.Address,
	log *zap.Logger,
) *Orchestrator {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:           cfg,
		graph:         g,
		finder:        finder,
		profit:        profit,
		oracleV:       oracleV,
		riskGate:      riskGate,
		sim:           sim,
		flashCaps:     flashCaps,
		tokens:        tokens,
		dispatch:      dispatcher,
		recorder:      recorder,
		bus:           bus,
		log:           log,
		startTokens:   startTokens,
		pathsCh:       make(chan arbengine.ArbitragePath, cfg.PathBufferSize),
		opportunityCh: make(chan opportunity, cfg.OpportunityBufferSize),
		seenShapes:    make(map[string]bool),
	}
}

// RunBlock discovers and dispatches every candidate arising from the
// graph's current state at blockNumber. It returns once path discovery
// and every spawned worker have drained, or ctx is canceled. Each call
// gets fresh channels, so the pipeline stages never carry stale
// candidates across blocks.
func (o *Orchestrator) RunBlock(ctx context.Context, blockNumber uint64) error {
	o.mu.Lock()
	o.pathsCh = make(chan arbengine.ArbitragePath, o.cfg.PathBufferSize)
	o.opportunityCh = make(chan opportunity, o.cfg.OpportunityBufferSize)
	o.mu.Unlock()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(o.pathsCh)
		return o.discover(gctx)
	})

	var profitGroup errgroup.Group
	for i := 0; i < o.cfg.Workers; i++ {
		profitGroup.Go(func() error { return o.profitabilityWorker(gctx) })
	}
	group.Go(func() error {
		err := profitGroup.Wait()
		close(o.opportunityCh)
		return err
	})

	for i := 0; i < o.cfg.Workers; i++ {
		group.Go(func() error { return o.dispatchWorker(gctx, blockNumber) })
	}

	err := group.Wait()
	if err != nil {
		o.log.Warn("block run ended early", zap.Uint64("block_number", blockNumber), zap.Error(err))
	} else {
		o.log.Debug("block run complete", zap.Uint64("block_number", blockNumber))
	}
	return err
}

// discover snapshots the graph once and feeds every discovered path
// into pathsCh, dropping the oldest buffered path under sustained
// backpressure rather than blocking discovery.
func (o *Orchestrator) discover(ctx context.Context) error {
	snapshot := o.graph.Snapshot()
	for _, start := range o.startTokens {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		paths := o.finder.FindPaths(snapshot, start, o.cfg.MinLiquidityUSD)
		for _, p := range paths {
			o.bus.Publish(observer.Event{Kind: observer.EventPathFound, Data: p})
			o.sendPathDroppingOldest(p)
		}
	}
	return nil
}

// sendPathDroppingOldest is the paths channel's non-critical backpressure
// policy: try to enqueue; if full, evict the oldest entry and retry once.
func (o *Orchestrator) sendPathDroppingOldest(p arbengine.ArbitragePath) {
	select {
	case o.pathsCh <- p:
		return
	default:
	}
	select {
	case <-o.pathsCh:
	default:
	}
	select {
	case o.pathsCh <- p:
	default:
	}
}

// profitabilityWorker drains pathsCh, selects a flash-loan source,
// computes the profitability breakdown, and forwards anything meeting
// its pair threshold to opportunityCh. opportunityCh send blocks rather
// than drops: an opportunity headed toward dispatch is never shed.
func (o *Orchestrator) profitabilityWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-o.pathsCh:
			if !ok {
				return nil
			}
			if err := o.processPath(ctx, path); err != nil {
				continue
			}
		}
	}
}

func (o *Orchestrator) processPath(ctx context.Context, path arbengine.ArbitragePath) error {
	if len(path.Hops) == 0 {
		return arberr.New(arberr.PathInvalid, "empty path reached profitability stage")
	}
	borrowToken, ok := o.tokens[path.Hops[0].TokenIn]
	if !ok {
		return arberr.New(arberr.PathInvalid, "no token metadata for borrow asset")
	}

	amount := path.Hops[0].AmountIn.ToBig()
	caps := o.flashCaps(path.Hops[0].TokenIn)
	flashConfig, err := flashloan.Select(amount, o.cfg.ChainID, path.Hops[0].FeeBps, caps)
	if err != nil {
		return err
	}
	o.bus.Publish(observer.Event{Kind: observer.EventFlashLoanSelected, Data: flashConfig})

	breakdown, err := o.profit.CalculateDetailed(path, borrowToken, flashConfig)
	if err != nil {
		return err
	}
	o.bus.Publish(observer.Event{Kind: observer.EventProfitComputed, Data: breakdown})
	if err := o.recorder.RecordOpportunity(path, breakdown); err != nil {
		return err
	}
	if !breakdown.MeetsThreshold {
		return nil
	}

	if o.oracleV.BreakerActive(borrowToken.Symbol) {
		o.bus.Publish(observer.Event{Kind: observer.EventOracleRejected, Data: borrowToken.Symbol})
		return arberr.New(arberr.OracleBreakerActive, "price breaker active for "+borrowToken.Symbol)
	}

	select {
	case o.opportunityCh <- opportunity{path: path, breakdown: breakdown, flash: flashConfig}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchWorker drains opportunityCh, runs the Bundle Simulator's
// pre-crime assessment, applies the Risk & Ethics Gate to it, and hands
// the result to Dispatch — all within a per-candidate deadline.
func (o *Orchestrator) dispatchWorker(ctx context.Context, blockNumber uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case opp, ok := <-o.opportunityCh:
			if !ok {
				return nil
			}
			candCtx, cancel := context.WithTimeout(ctx, o.cfg.CandidateDeadline)
			err := o.evaluateAndDispatch(candCtx, opp, blockNumber)
			deadlineHit := candCtx.Err() == context.DeadlineExceeded
			cancel()
			if err != nil && deadlineHit {
				o.bus.Publish(observer.Event{Kind: observer.EventDropped, Data: opp.path})
			}
		}
	}
}

func (o *Orchestrator) evaluateAndDispatch(ctx context.Context, opp opportunity, blockNumber uint64) error {
	bundle := o.buildCandidate(opp)

	threat := o.sim.Assess(bundle)
	o.bus.Publish(observer.Event{Kind: observer.EventBundleSimulated, Data: threat})

	riskResult := o.riskGate.Evaluate(risk.Input{
		Breakdown:         opp.breakdown,
		Threat:            threat,
		CapitalAtRisk:     o.capitalAtRisk(opp.breakdown.Initial),
		RecentFailureRate: o.recentFailureRate(),
		NovelPathShape:    o.isNovelShape(opp.path),
	})
	if !riskResult.ShouldProceed {
		o.bus.Publish(observer.Event{Kind: observer.EventRiskRejected, Data: riskResult})
		return arberr.New(arberr.RiskRejected, "risk gate declined candidate")
	}

	result, err := o.dispatch.Execute(ctx, bundle, threat, blockNumber)
	o.recordOutcome(err == nil && !result.Aborted)
	return err
}

// buildCandidate assembles the CandidateBundle Dispatch and the
// Simulator both need from one profitable, threshold-clearing path.
func (o *Orchestrator) buildCandidate(opp opportunity) arbengine.CandidateBundle {
	gasPrice, err := o.profit.GasPrice()
	if err != nil || gasPrice == nil {
		gasPrice = big.NewInt(0)
	}
	return arbengine.CandidateBundle{
		ID:          uuid.New().String(),
		Path:        opp.path,
		Breakdown:   opp.breakdown,
		FlashLoan:   opp.flash,
		TargetPool:  opp.path.Hops[0].PoolID,
		TargetAddr:  o.cfg.ExecutorAddr,
		ValueWei:    big.NewInt(0),
		GasLimit:    o.cfg.DefaultGasLimit,
		GasPriceWei: gasPrice,
		Deadline:    time.Now().Add(o.cfg.CandidateDeadline),
	}
}

func (o *Orchestrator) capitalAtRisk(initial *big.Int) float64 {
	if initial == nil || o.cfg.AvailableCapital == nil || o.cfg.AvailableCapital.Sign() <= 0 {
		return 0
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(initial), new(big.Float).SetInt(o.cfg.AvailableCapital))
	v, _ := ratio.Float64()
	if v > 1 {
		v = 1
	}
	return v
}

func (o *Orchestrator) isNovelShape(path arbengine.ArbitragePath) bool {
	key := shapeKey(path)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seenShapes[key] {
		return false
	}
	o.seenShapes[key] = true
	return true
}

func shapeKey(path arbengine.ArbitragePath) string {
	key := ""
	for _, hop := range path.Hops {
		key += hop.PoolID + ">"
	}
	return key
}

// recordOutcome appends success to a bounded rolling window used to
// compute RecentFailureRate for the risk gate.
func (o *Orchestrator) recordOutcome(success bool) {
	const window = 100
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recentOutcomes = append(o.recentOutcomes, success)
	if len(o.recentOutcomes) > window {
		o.recentOutcomes = o.recentOutcomes[len(o.recentOutcomes)-window:]
	}
}

func (o *Orchestrator) recentFailureRate() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.recentOutcomes) == 0 {
		return 0
	}
	failures := 0
	for _, ok := range o.recentOutcomes {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(o.recentOutcomes))
}
