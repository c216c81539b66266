// Package nonmoving implements the concurrent mark phase of a
// non-moving, snapshot-at-the-beginning garbage collector: the mark
// queue, the update-remembered-set write-barrier protocol, the
// mark-bit/large-object/static-closure reachability model, the
// mutator/collector synchronisation handshake, and the liveness
// queries sweep, weak-pointer reconciliation and thread resurrection
// rely on. See spec.md / SPEC_FULL.md for the full specification this
// package implements; DESIGN.md records what each file is grounded on.
package nonmoving

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/nonmoving-rts/satbmark/nonmoving/heapiface"
)

// Collector owns the mark-phase state for one major GC cycle: the
// queue, the registry of per-worker URSs, the global URS list and the
// write-barrier enable flag.
type Collector struct {
	cfg Config
	log *zap.Logger

	heap  heapiface.Heap
	large heapiface.LargeObjectSet

	registry *markRegistry
	pool     *blockPool
	global   *globalURSList
	barrier  barrierState

	queue   *MarkQueue
	workers []*WorkerURS

	// StaticClassifier, if set, lets the barrier recognise static
	// closures living outside the oldest generation (spec §4.2:
	// "unless p lives in the nonmoving heap ... or is static"). Static
	// closures have no segment membership to consult via heapiface, so
	// this hook is the embedding runtime's only way to tell the barrier
	// "yes, keep this one".
	StaticClassifier func(p unsafe.Pointer) bool
}

// NewCollector constructs a Collector for one mark cycle against the
// given heap/large-object collaborators (spec §6, "mark_init").
func NewCollector(cfg Config, heap heapiface.Heap, large heapiface.LargeObjectSet) *Collector {
	pool := newBlockPool()
	global := &globalURSList{}
	c := &Collector{
		cfg:      cfg,
		log:      cfg.logger(),
		heap:     heap,
		large:    large,
		registry: newMarkRegistry(heap, large),
		pool:     pool,
		global:   global,
		queue:    newMarkQueue(pool, false, nil),
	}
	c.workers = make([]*WorkerURS, cfg.numWorkers())
	for i := range c.workers {
		c.workers[i] = newWorkerURS(pool, global)
	}
	return c
}

// Worker returns the per-worker URS for worker index i, the handle
// mutator-side barrier calls (PushClosure et al.) are made against.
func (c *Collector) Worker(i int) *WorkerURS { return c.workers[i] }

// NumWorkers reports how many WorkerURS instances this collector
// coordinates during flush.
func (c *Collector) NumWorkers() int { return len(c.workers) }

// EnableBarrier turns the write barrier on, as the collector does
// before concurrent mark begins (spec §4.2).
func (c *Collector) EnableBarrier() { c.barrier.enable() }

// DisableBarrier turns the write barrier off, as the collector does
// after the post-mark sync (spec §4.2).
func (c *Collector) DisableBarrier() { c.barrier.disable() }

// BarrierEnabled reports the current write-barrier state.
func (c *Collector) BarrierEnabled() bool { return c.barrier.isEnabled() }

// AdvanceEpoch bumps the mark epoch for a new cycle (spec §3, §8
// property 6). Must be called before EnableBarrier for a fresh cycle;
// calling it while the barrier from a prior cycle is still enabled
// would invalidate in-flight URS entries' marks mid-flight.
func (c *Collector) AdvanceEpoch() {
	c.assertInvariant(!c.barrier.isEnabled(), "AdvanceEpoch called while write barrier still enabled from a previous cycle")
	c.registry.advanceEpoch()
}

// CurrentEpoch returns the epoch this cycle is marking with.
func (c *Collector) CurrentEpoch() Epoch { return c.registry.currentEpoch() }

// Free returns the collector's own mark queue blocks to the pool (spec
// §6, "free_queue").
func (c *Collector) Free() { c.queue.free() }

// AddRoot seeds the mark queue with a root pointer (spec §6,
// "add_root").
func (c *Collector) AddRoot(p ClosurePtr) {
	c.queue.Push(MarkClosureEntry(p.Untag(), 0, false))
}

// AddArrayRoot seeds the mark queue with a root pointer-array object,
// to be traced in chunkLength-sized steps by Mark (spec §3, §4.5).
func (c *Collector) AddArrayRoot(a ArrayPtr) {
	c.queue.Push(MarkArrayEntry(a.Untag(), 0))
}

// QueueDepth reports the number of entries currently buffered in the
// collector's own mark queue, for gcmetrics reporting.
func (c *Collector) QueueDepth() int {
	return c.queue.Len()
}
