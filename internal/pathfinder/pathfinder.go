// Package pathfinder implements bounded-depth cycle enumeration over a
// Liquidity Graph snapshot: depth-limited DFS from a start token back to
// itself, pruning on liquidity and cumulative fee, returning one
// ArbitragePath per hop-sequence that simulates a positive profit, at
// the amount with the highest simulated gross profit; the other
// profitable amounts of the same sequence are not returned.
package pathfinder

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/amm"
	"github.com/vantablack/arbengine/internal/graph"
)

// DefaultMaxPathLen is the spec's default hop-count cap.
const DefaultMaxPathLen = 4

// ReferenceSeries is the geometric candidate-amount multiplier series
// applied to a per-token reference size: 0.1x, 0.3x, 1x, 3x.
var ReferenceSeries = []float64{0.1, 0.3, 1, 3}

// Finder runs bounded-depth cycle enumeration. It holds no state across
// calls to FindPaths beyond its tuning parameters, so one Finder can be
// shared by multiple concurrent start-token searches.
type Finder struct {
	MaxDepth        int
	MaxCumFeeBps     uint32
	ReferenceAmount func(token common.Address) *uint256.Int
}

// New builds a Finder searching up to maxDepth hops (DefaultMaxPathLen
// when maxDepth <= 0) with a per-token reference-amount function. A nil
// function, or one returning nil, makes FindPaths use a reference of one
// base unit of the start token.
func New(maxDepth int, maxCumFeeBps uint32, referenceAmount func(common.Address) *uint256.Int) *Finder {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxPathLen
	}
	return &Finder{MaxDepth: maxDepth, MaxCumFeeBps: maxCumFeeBps, ReferenceAmount: referenceAmount}
}

type searchState struct {
	view         *graph.GraphView
	minLiquidity *uint256.Int
	startToken   common.Address
	visitedPools map[string]bool
	hops         []arbengine.ArbitrageHop
	results      []arbengine.ArbitragePath
}

// FindPaths enumerates every simple cycle starting and ending at
// startToken, up to f.MaxDepth hops, simulating each candidate amount in
// the reference series and keeping only the hop-sequences that yield a
// positive simulated profit for at least one amount.
func (f *Finder) FindPaths(view *graph.GraphView, startToken common.Address, minLiquidity *uint256.Int) []arbengine.ArbitragePath {
	if minLiquidity == nil {
		minLiquidity = uint256.NewInt(0)
	}
	st := &searchState{
		view:         view,
		minLiquidity: minLiquidity,
		startToken:   startToken,
		visitedPools: make(map[string]bool),
	}

	reference := uint256.NewInt(1)
	if f.ReferenceAmount != nil {
		if r := f.ReferenceAmount(startToken); r != nil {
			reference = r
		}
	}

	for _, mult := range ReferenceSeries {
		amountIn := scaleAmount(reference, mult)
		if amountIn.IsZero() {
			continue
		}
		st.hops = st.hops[:0]
		for k := range st.visitedPools {
			delete(st.visitedPools, k)
		}
		f.dfs(st, startToken, amountIn, 0)
	}

	return finalize(st.results)
}

func scaleAmount(reference *uint256.Int, mult float64) *uint256.Int {
	// mult is one of a small fixed set of decimals; scale by 1000 and
	// divide back down to keep this integer-exact.
	scaled := uint256.NewInt(uint64(mult * 1000))
	out := new(uint256.Int).Mul(reference, scaled)
	return out.Div(out, uint256.NewInt(1000))
}

func (f *Finder) dfs(st *searchState, currentToken common.Address, amountIn *uint256.Int, depth int) {
	if depth >= f.MaxDepth {
		return
	}
	for _, edge := range st.view.Neighbors(currentToken) {
		if st.visitedPools[edge.Pool.ID] {
			continue // no repeated pools within one path
		}
		if edge.TokenIn == edge.TokenOut {
			continue // self-edges forbidden
		}
		if poolLiquidity(edge.Pool).Cmp(st.minLiquidity) < 0 {
			continue // zero/low liquidity pool encountered mid-path: reject silently, not an error
		}

		amountOut, err := amm.SwapOut(&edge.Pool, edge.TokenIn, edge.TokenOut, amountIn)
		if err != nil || amountOut == nil || amountOut.IsZero() {
			continue
		}

		hop := arbengine.ArbitrageHop{
			PoolID:    edge.Pool.ID,
			TokenIn:   edge.TokenIn,
			TokenOut:  edge.TokenOut,
			AmountIn:  amountIn,
			AmountOut: amountOut,
			FeeBps:    edge.Pool.FeeBps,
		}
		st.hops = append(st.hops, hop)
		st.visitedPools[edge.Pool.ID] = true

		cumFee := cumulativeFeeBps(st.hops)
		closesCycle := edge.TokenOut == st.startToken && len(st.hops) >= 2

		switch {
		case cumFee > f.MaxCumFeeBps && f.MaxCumFeeBps > 0:
			// cumulative fee cutoff exceeded: prune without recursing further
		case closesCycle:
			if path, ok := buildPath(st.hops); ok {
				st.results = append(st.results, path)
			}
			f.dfs(st, edge.TokenOut, amountOut, depth+1)
		default:
			f.dfs(st, edge.TokenOut, amountOut, depth+1)
		}

		st.hops = st.hops[:len(st.hops)-1]
		delete(st.visitedPools, edge.Pool.ID)
	}
}

func poolLiquidity(p arbengine.Pool) *uint256.Int {
	if p.ReserveA == nil || p.ReserveB == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Add(p.ReserveA, p.ReserveB)
}

func cumulativeFeeBps(hops []arbengine.ArbitrageHop) uint32 {
	var total uint32
	for _, h := range hops {
		total += h.FeeBps
	}
	return total
}

func buildPath(hops []arbengine.ArbitrageHop) (arbengine.ArbitragePath, bool) {
	if len(hops) < 2 || len(hops) > DefaultMaxPathLen*2 {
		return arbengine.ArbitragePath{}, false
	}
	cpy := make([]arbengine.ArbitrageHop, len(hops))
	copy(cpy, hops)
	path := arbengine.ArbitragePath{
		Hops:         cpy,
		TotalFeesBps: cumulativeFeeBps(cpy),
	}
	if !path.IsCyclic() {
		return arbengine.ArbitragePath{}, false
	}
	first := cpy[0].AmountIn
	last := cpy[len(cpy)-1].AmountOut
	if last.Cmp(first) <= 0 {
		return arbengine.ArbitragePath{}, false // not profitable at this amount, let profitability engine see only positive candidates
	}
	gross := new(uint256.Int).Sub(last, first)
	path.GrossProfit = gross.ToBig()
	return path, true
}

// finalize keeps, for each distinct pool-id hop sequence, only the
// highest-gross-profit amount tried, then applies the tie-break order:
// fewer hops, then higher aggregate liquidity, then lexicographically
// smaller pool-id tuple. Aggregate liquidity here is the sum of the hops'
// AmountOut values; pool reserves are not consulted.
func finalize(paths []arbengine.ArbitragePath) []arbengine.ArbitragePath {
	best := make(map[string]int) // sequence key -> index in kept
	kept := make([]arbengine.ArbitragePath, 0, len(paths))

	for _, p := range paths {
		key := sequenceKey(p)
		if idx, ok := best[key]; ok {
			if p.GrossProfit.Cmp(kept[idx].GrossProfit) > 0 {
				kept[idx] = p
			}
			continue
		}
		best[key] = len(kept)
		kept = append(kept, p)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if len(a.Hops) != len(b.Hops) {
			return len(a.Hops) < len(b.Hops) // fewer hops first
		}
		liqA, liqB := aggregateLiquidity(a), aggregateLiquidity(b)
		if liqA.Cmp(liqB) != 0 {
			return liqA.Cmp(liqB) > 0 // higher aggregate liquidity first
		}
		return lexicographicallySmaller(a, b) // deterministic tie-break
	})

	return kept
}

func aggregateLiquidity(p arbengine.ArbitragePath) *uint256.Int {
	total := uint256.NewInt(0)
	for _, h := range p.Hops {
		total.Add(total, h.AmountOut)
	}
	return total
}

func lexicographicallySmaller(a, b arbengine.ArbitragePath) bool {
	for i := 0; i < len(a.Hops) && i < len(b.Hops); i++ {
		if a.Hops[i].PoolID != b.Hops[i].PoolID {
			return a.Hops[i].PoolID < b.Hops[i].PoolID
		}
	}
	return false
}

func sequenceKey(p arbengine.ArbitragePath) string {
	key := ""
	for _, h := range p.Hops {
		key += h.PoolID + ">"
	}
	return key
}
