package nonmoving

import (
	"sync"

	"go.uber.org/atomic"
)

// globalURSList is the collector-owned chain of blocks flushed from all
// workers' per-worker URS accumulators (spec §3, "Global URS list").
// Protected by urs_lock, the outermost lock in the nesting order
// (spec §5: "urs_lock > sm_lock").
type globalURSList struct {
	mu    sync.Mutex
	chain *block
}

// push links chain onto the global list. Called both from a worker's
// own block-full path and from the coordinator's forced flush.
func (g *globalURSList) push(chain *block) {
	if chain == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if chain.empty() && chain.prev == nil {
		return
	}
	tail := chain
	for tail.prev != nil {
		tail = tail.prev
	}
	tail.prev = g.chain
	g.chain = chain
}

// drain removes and returns the entire global chain, leaving the list
// empty. The mark loop calls this when its own queue empties (spec
// §4.5: "splice global_urs_list onto the queue").
func (g *globalURSList) drain() *block {
	g.mu.Lock()
	defer g.mu.Unlock()
	chain := g.chain
	g.chain = nil
	return chain
}

func (g *globalURSList) nonEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chain != nil
}

// WorkerURS is a worker's per-thread update remembered set: the write
// barrier's only point of contact with the collector (spec §4.2).
// Invariant after reset: exactly one block, head == 0 (spec §3).
type WorkerURS struct {
	q      *MarkQueue
	global *globalURSList
	pool   *blockPool
}

func newWorkerURS(pool *blockPool, global *globalURSList) *WorkerURS {
	w := &WorkerURS{global: global, pool: pool}
	w.q = newMarkQueue(pool, true, func(chain *block) {
		global.push(chain)
	})
	return w
}

// record appends entry to the URS, transferring the block chain to the
// global list and starting a fresh empty block if the current block is
// full (spec §4.2, "push to a URS that fills the block...").
func (w *WorkerURS) record(entry MarkQueueEntry) {
	w.q.Push(entry)
}

// PendingLocal reports how many entries sit in this worker's URS since
// its last flush, for depth reporting (gcmetrics) and tests.
func (w *WorkerURS) PendingLocal() int {
	return w.q.Len()
}

// flushLocal unconditionally transfers this worker's current block
// chain to the global list and resets the URS to a single empty block,
// regardless of whether the current block is full (spec §4.6 step 2,
// "flush_local").
func (w *WorkerURS) flushLocal() {
	chain := w.q.detachChain()
	w.global.push(chain)
}

// Discard resets the URS without flushing, dropping any entries added
// since the last flush. Used by finish_flush (spec §4.6 step 4) to
// discard re-entrant pushes made by resurrect_threads (spec §9).
func (w *WorkerURS) Discard() {
	w.q.Reset()
}

// barrierState is the collector-wide write-barrier enable flag (spec
// §4.2: "active iff a global flag barrier_enabled is true").
//
// go.uber.org/atomic.Bool is used in place of a raw sync/atomic int32,
// matching the typed-atomic idiom tangzhangming/nova's gc_concurrent.go
// uses for the equivalent ConcurrentWriteBarrier.enabled field.
type barrierState struct {
	enabled atomic.Bool
}

func (b *barrierState) enable()      { b.enabled.Store(true) }
func (b *barrierState) disable()     { b.enabled.Store(false) }
func (b *barrierState) isEnabled() bool { return b.enabled.Load() }
