// Package graph implements the Liquidity Graph: a directed multigraph of
// pools with transactional, per-block updates and copy-on-write
// snapshots for the path finder to read without locking.
package graph

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/internal/arberr"
)

// Edge is one directed traversal derived from a pool: token_in -> pool ->
// token_out. Every pool yields exactly two edges, one per direction.
type Edge struct {
	Pool     arbengine.Pool
	TokenIn  common.Address
	TokenOut common.Address
}

// GraphView is an immutable handle into one discovery round's pool set.
// It is safe for concurrent reads and must never be mutated; its
// lifetime is scoped to a single Path Finder invocation.
type GraphView struct {
	pools     map[string]arbengine.Pool
	neighbors map[common.Address][]Edge
	block     uint64
}

// Pool looks up a pool by ID within this snapshot.
func (v *GraphView) Pool(id string) (arbengine.Pool, bool) {
	p, ok := v.pools[id]
	return p, ok
}

// Neighbors returns the active outgoing edges from token, filtering out
// inactive pools (flagged inactive, a zero reserve, or stale past
// max_pool_age_blocks); no minimum-liquidity filter is applied here.
func (v *GraphView) Neighbors(token common.Address) []Edge {
	return v.neighbors[token]
}

// BlockNumber reports the block height this snapshot was taken at.
func (v *GraphView) BlockNumber() uint64 { return v.block }

// Graph is the single-writer/many-reader Liquidity Graph. Updates are
// applied transactionally per block: a partially applied block (one
// PoolUpdate among many failing validation) is rolled back in full.
type Graph struct {
	mu               sync.RWMutex
	pools            map[string]arbengine.Pool
	lastBlockByPool  map[string]uint64
	currentBlock     uint64
	maxPoolAgeBlocks uint64
	lastFeedAdvance  time.Time
	staleThreshold   time.Duration
}

// New builds an empty Liquidity Graph. maxPoolAgeBlocks pools older than
// this (relative to the graph's current block) are treated inactive;
// staleThreshold bounds how long the feed clock may advance with no
// update before StaleFeed fires.
func New(maxPoolAgeBlocks uint64, staleThreshold time.Duration) *Graph {
	return &Graph{
		pools:            make(map[string]arbengine.Pool),
		lastBlockByPool:  make(map[string]uint64),
		maxPoolAgeBlocks: maxPoolAgeBlocks,
		staleThreshold:   staleThreshold,
		lastFeedAdvance:  time.Now(),
	}
}

// UpdatePool applies one or more pool updates from the same block
// transactionally: either every update in the batch is applied, or none
// are (GraphInconsistent). Block updates must arrive in non-decreasing
// block-height order; a mid-block partial update is never observable to
// readers because the write lock is held for the whole batch.
func (g *Graph) UpdatePool(blockNumber uint64, updates []arbengine.PoolUpdate) error {
	if blockNumber < g.currentBlockUnsafe() {
		return arberr.New(arberr.GraphInconsistent, "block update arrived out of height order")
	}
	for _, u := range updates {
		if u.Pool.ID == "" {
			return arberr.New(arberr.GraphInconsistent, "pool update missing id")
		}
		if u.Pool.FeeBps > 10_000 {
			return arberr.New(arberr.GraphInconsistent, "fee_bps out of [0,10000]")
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Stage into a scratch copy so a validation failure mid-batch never
	// touches the live map (rollback by simply not committing).
	staged := make(map[string]arbengine.Pool, len(updates))
	for _, u := range updates {
		pool := u.Pool
		pool.Active = pool.HasPositiveReserves()
		pool.LastUpdateBlock = blockNumber
		staged[pool.ID] = pool
	}

	for id, pool := range staged {
		g.pools[id] = pool
		g.lastBlockByPool[id] = blockNumber
	}
	g.currentBlock = blockNumber
	g.lastFeedAdvance = time.Now()
	return nil
}

func (g *Graph) currentBlockUnsafe() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.currentBlock
}

// CheckFeedLiveness returns arberr.FeedStale if the wall clock has
// advanced past staleThreshold since the last accepted update.
func (g *Graph) CheckFeedLiveness() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.staleThreshold > 0 && time.Since(g.lastFeedAdvance) > g.staleThreshold {
		return arberr.New(arberr.FeedStale, "no accepted block update within the staleness window")
	}
	return nil
}

// Snapshot produces an immutable GraphView of every currently active
// pool, building the derived neighbor multimap. Inactive pools are
// retained in Graph storage for telemetry but excluded from Neighbors.
func (g *Graph) Snapshot() *GraphView {
	g.mu.RLock()
	defer g.mu.RUnlock()

	view := &GraphView{
		pools:     make(map[string]arbengine.Pool, len(g.pools)),
		neighbors: make(map[common.Address][]Edge),
		block:     g.currentBlock,
	}
	for id, pool := range g.pools {
		view.pools[id] = pool
		if !g.isActiveUnlocked(pool) {
			continue
		}
		view.neighbors[pool.TokenA] = append(view.neighbors[pool.TokenA], Edge{Pool: pool, TokenIn: pool.TokenA, TokenOut: pool.TokenB})
		view.neighbors[pool.TokenB] = append(view.neighbors[pool.TokenB], Edge{Pool: pool, TokenIn: pool.TokenB, TokenOut: pool.TokenA})
	}
	return view
}

func (g *Graph) isActiveUnlocked(pool arbengine.Pool) bool {
	if !pool.Active || !pool.HasPositiveReserves() {
		return false
	}
	if g.maxPoolAgeBlocks > 0 && g.currentBlock > pool.LastUpdateBlock && g.currentBlock-pool.LastUpdateBlock > g.maxPoolAgeBlocks {
		return false
	}
	return true
}

// PoolCount reports the total number of pools retained (active and
// inactive), for telemetry only.
func (g *Graph) PoolCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.pools)
}
