package nonmoving

import (
	"sync"
)

// chunkLength is the number of array entries traced per MarkArray step
// (spec §3: "the chunk length is a constant (128)").
const chunkLength = 128

// blockCapacity is the number of entries a queue block holds. Chosen,
// as in the teacher's _WorkbufSize, to be a small power of two that
// keeps a block to roughly one system page of entries.
const blockCapacity = 64

// entryTag distinguishes MarkQueueEntry variants (spec §3).
type entryTag uint8

const (
	entryNull entryTag = iota
	entryMarkClosure
	entryMarkArray
)

// MarkQueueEntry is the tagged union pushed and popped by a MarkQueue
// (spec §3, "Mark Queue Entry").
type MarkQueueEntry struct {
	tag entryTag

	closureP ClosurePtr
	origin   SlotAddress
	hasOrigin bool

	array      ArrayPtr
	startIndex int
}

// IsNull reports whether the entry is the "queue empty" sentinel.
func (e MarkQueueEntry) IsNull() bool { return e.tag == entryNull }

// MarkClosureEntry builds a request to trace p. origin may be the zero
// SlotAddress with hasOrigin false when the caller did not preserve it.
func MarkClosureEntry(p ClosurePtr, origin SlotAddress, hasOrigin bool) MarkQueueEntry {
	return MarkQueueEntry{tag: entryMarkClosure, closureP: p, origin: origin, hasOrigin: hasOrigin}
}

// MarkArrayEntry builds a request to trace array[startIndex:startIndex+chunkLength].
func MarkArrayEntry(a ArrayPtr, startIndex int) MarkQueueEntry {
	return MarkQueueEntry{tag: entryMarkArray, array: a, startIndex: startIndex}
}

// block is a fixed-size chunk of queue entries, chained into the owning
// queue's stack. Mirrors the teacher's workbuf, minus the wbuf1/wbuf2
// hysteresis pair: this core's queues are strictly single-producer/
// single-consumer (spec §4.1), so one active block at a time suffices.
type block struct {
	prev    *block
	entries [blockCapacity]MarkQueueEntry
	head    int
}

func (b *block) full() bool  { return b.head == blockCapacity }
func (b *block) empty() bool { return b.head == 0 }

// blockPool is a free-list of empty blocks, shared by all queues in a
// collector instance to amortize allocation. Grounded on lfstack.go's
// lock-free stack: the teacher packs a pointer and a push counter into
// one uint64 to dodge ABA; Go gives us safe pointers and GC, so the
// counter collapses to a plain mutex-guarded slice-backed stack, the
// same trade a Go port of that trick always makes.
type blockPool struct {
	mu   sync.Mutex
	free []*block
}

func newBlockPool() *blockPool { return &blockPool{} }

func (p *blockPool) get() *block {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return &block{}
	}
	b := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	p.mu.Unlock()
	b.head = 0
	return b
}

func (p *blockPool) put(b *block) {
	b.head = 0
	b.prev = nil
	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// MarkQueue is a singly-linked chain of blocks used either as the
// collector's own mark queue or, with isURS set, as a per-worker update
// remembered set accumulator (spec §3). The is_upd_rem_set flag never
// changes after construction except at the explicit re-init points the
// spec calls out (invariant 5).
type MarkQueue struct {
	pool  *blockPool
	top   *block
	isURS bool

	// onURSFull is invoked (URS queues only) when the current block
	// fills, so the owner can hand the whole chain to the global URS
	// list and reset to a single empty block (spec §4.1(i)).
	onURSFull func(chain *block)
}

func newMarkQueue(pool *blockPool, isURS bool, onURSFull func(*block)) *MarkQueue {
	return &MarkQueue{pool: pool, top: pool.get(), isURS: isURS, onURSFull: onURSFull}
}

// Push enqueues entry, growing the block chain as needed (spec §4.1).
func (q *MarkQueue) Push(entry MarkQueueEntry) {
	if q.top.full() {
		if q.isURS {
			chain := q.top
			q.onURSFull(chain)
			q.top = q.pool.get()
		} else {
			fresh := q.pool.get()
			fresh.prev = q.top
			q.top = fresh
		}
	}
	q.top.entries[q.top.head] = entry
	q.top.head++
}

// Pop dequeues the most recently pushed entry, or returns the Null
// sentinel when the chain is drained to a single empty block.
func (q *MarkQueue) Pop() MarkQueueEntry {
	for q.top.empty() {
		if q.top.prev == nil {
			return MarkQueueEntry{tag: entryNull}
		}
		drained := q.top
		q.top = q.top.prev
		q.pool.put(drained)
	}
	q.top.head--
	return q.top.entries[q.top.head]
}

// Empty reports whether the queue has no entries buffered locally (it
// does not consult the global URS list).
func (q *MarkQueue) Empty() bool {
	return q.top.prev == nil && q.top.empty()
}

// Len reports the total number of entries buffered across the queue's
// whole block chain. Used for depth reporting (gcmetrics) and tests;
// not on any hot path.
func (q *MarkQueue) Len() int {
	n := 0
	for b := q.top; b != nil; b = b.prev {
		n += b.head
	}
	return n
}

// Reset discards the queue's contents and leaves it with exactly one
// empty block, per the invariant required after reset_upd_rem_set
// (spec §3, "Invariant after reset").
func (q *MarkQueue) Reset() {
	for q.top.prev != nil {
		drained := q.top
		q.top = q.top.prev
		q.pool.put(drained)
	}
	q.top.head = 0
}

// detachChain removes the entire block chain from q and returns its
// head, leaving q with a single fresh empty block. Used by explicit
// flush requests (WorkerURS.flushLocal); the URS-full path in Push
// hands off its full block directly.
func (q *MarkQueue) detachChain() *block {
	chain := q.top
	q.top = q.pool.get()
	return chain
}

// spliceChain prepends an externally-owned chain (e.g. the drained
// global URS list) onto q's block stack, so Pop will drain it next.
func (q *MarkQueue) spliceChain(chain *block) {
	if chain == nil {
		return
	}
	// Find the bottom of the incoming chain and attach the queue's
	// current (possibly non-empty) top beneath it, so nothing already
	// queued is lost.
	tail := chain
	for tail.prev != nil {
		tail = tail.prev
	}
	if q.top.empty() && q.top.prev == nil {
		q.pool.put(q.top)
		q.top = chain
		return
	}
	tail.prev = q.top
	q.top = chain
}

// free returns every block in the queue to the pool. Mirrors
// free_queue (spec §6).
func (q *MarkQueue) free() {
	for q.top != nil {
		next := q.top.prev
		q.pool.put(q.top)
		q.top = next
	}
}
