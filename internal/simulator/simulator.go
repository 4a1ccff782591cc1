// Package simulator implements the Bundle Simulator ("pre-crime"): a
// bounded mempool shadow cache plus a threat model that scores a
// candidate bundle's exposure to frontrunning, backrunning and
// sandwiching before it is dispatched.
package simulator

import (
	"container/list"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	arbengine "github.com/vantablack/arbengine"
)

// DefaultShadowCacheSize is the spec's default bound on retained mempool
// transaction shadows; the oldest entry is evicted on overflow.
const DefaultShadowCacheSize = 100

// highGasPremiumPct marks a shadow tx as gas-competing with the
// candidate bundle when its gas price exceeds the bundle's by this much.
const highGasPremiumPct = 20

// abortContentionCount is the shadow-tx count above which sustained
// high-gas contention is treated as certain rather than merely elevated.
const abortContentionCount = 15

// Simulator retains a bounded LRU of observed-but-unconfirmed mempool
// transactions and scores candidate bundles against them.
type Simulator struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently seen
	byHash   map[common.Hash]*list.Element
}

// New builds a Simulator with the given shadow cache capacity (0 uses
// DefaultShadowCacheSize).
func New(capacity int) *Simulator {
	if capacity <= 0 {
		capacity = DefaultShadowCacheSize
	}
	return &Simulator{
		capacity: capacity,
		order:    list.New(),
		byHash:   make(map[common.Hash]*list.Element),
	}
}

// Observe records a mempool transaction shadow, evicting the oldest
// entry if the cache is at capacity. Re-observing an existing hash moves
// it to the front without growing the cache (idempotent duplicate
// handling).
func (s *Simulator) Observe(tx arbengine.MempoolTxShadow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.byHash[tx.Hash]; ok {
		el.Value = tx
		s.order.MoveToFront(el)
		return
	}
	el := s.order.PushFront(tx)
	s.byHash[tx.Hash] = el
	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		if oldest != nil {
			evicted := oldest.Value.(arbengine.MempoolTxShadow)
			delete(s.byHash, evicted.Hash)
			s.order.Remove(oldest)
		}
	}
}

// ShadowCount reports how many shadows are currently retained.
func (s *Simulator) ShadowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *Simulator) shadowsTargeting(to common.Address) []arbengine.MempoolTxShadow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]arbengine.MempoolTxShadow, 0)
	for e := s.order.Front(); e != nil; e = e.Next() {
		tx := e.Value.(arbengine.MempoolTxShadow)
		if tx.To == to {
			out = append(out, tx)
		}
	}
	return out
}

// Assess scores a candidate bundle against the current shadow cache and
// produces a ThreatAssessment with an actionable recommendation.
func (s *Simulator) Assess(bundle arbengine.CandidateBundle) arbengine.ThreatAssessment {
	shadows := s.shadowsTargeting(bundle.TargetAddr)

	var competingGas int
	for _, sh := range shadows {
		if isHighGasPremium(sh.GasPriceWei, bundle.GasPriceWei) {
			competingGas++
		}
	}

	total := len(shadows)
	frontrunProb := probabilityFromCount(competingGas, total)
	backrunProb := probabilityFromCount(total-competingGas, total) * 0.5
	sandwichProb := 0.0
	if frontrunProb > 0 && total >= 2 {
		sandwichProb = frontrunProb * 0.6
	}

	erosionBps := estimateErosionBps(frontrunProb, sandwichProb)

	reasoning := make([]string, 0, 3)
	reasoning = append(reasoning, shadowSummary(total))

	recommendation := arbengine.RecommendPublicExecute
	switch {
	case frontrunProb >= 0.6 && total >= abortContentionCount:
		recommendation = arbengine.RecommendAbort
		reasoning = append(reasoning, "sustained high-gas contention against target, aborting")
	case frontrunProb >= 0.25 || total >= 5:
		recommendation = arbengine.RecommendPrivateExecute
		reasoning = append(reasoning, "elevated mempool contention, routing to private relay")
	default:
		reasoning = append(reasoning, "mempool contention within tolerance")
	}

	confidence := 0.5
	if total > 0 {
		confidence = 0.5 + 0.5*float64(total)/float64(s.capacity)
		if confidence > 0.95 {
			confidence = 0.95
		}
	}

	return arbengine.ThreatAssessment{
		FrontrunProb:     frontrunProb,
		BackrunProb:      backrunProb,
		SandwichProb:     sandwichProb,
		ProfitErosionBps: erosionBps,
		Recommendation:   recommendation,
		Confidence:       confidence,
		Reasoning:        reasoning,
	}
}

// isHighGasPremium reports whether a shadow tx is bidding gas aggressively
// enough against the bundle to plausibly be a frontrun attempt.
func isHighGasPremium(shadowGas, bundleGas *big.Int) bool {
	if shadowGas == nil || bundleGas == nil || bundleGas.Sign() <= 0 {
		return false
	}
	threshold := new(big.Int).Mul(bundleGas, big.NewInt(100+highGasPremiumPct))
	threshold.Div(threshold, big.NewInt(100))
	return shadowGas.Cmp(threshold) >= 0
}

func probabilityFromCount(n, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(n) / float64(total)
	if p > 1 {
		p = 1
	}
	return p
}

func estimateErosionBps(frontrunProb, sandwichProb float64) uint32 {
	erosion := frontrunProb*300 + sandwichProb*500 // heuristic bps contribution
	if erosion > 10_000 {
		erosion = 10_000
	}
	return uint32(erosion)
}

func shadowSummary(total int) string {
	if total == 0 {
		return "no competing mempool activity observed for target"
	}
	return "observed mempool activity against target"
}
