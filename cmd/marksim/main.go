// Command marksim drives a synthetic mutator + nonmoving.Collector
// pair through the scenarios catalogued in SPEC_FULL.md's testable
// properties (S1-S6), printing a pass/fail line per scenario. It is a
// diagnostic harness, not a production embedding: real embedders wire
// nonmoving.Collector against their own heap and closure types.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nonmoving-rts/satbmark/internal/segheap"
	"github.com/nonmoving-rts/satbmark/nonmoving"
	"github.com/nonmoving-rts/satbmark/nonmoving/gcmetrics"
)

func main() {
	var (
		scenario = pflag.StringP("scenario", "s", "all", "scenario to run: S1-S6 or all")
		verbose  = pflag.BoolP("verbose", "v", false, "enable debug logging")
	)
	pflag.Parse()

	var log *zap.Logger
	if *verbose {
		log, _ = zap.NewDevelopment()
	} else {
		log = zap.NewNop()
	}
	defer log.Sync()

	metrics := gcmetrics.NewMetrics(prometheus.NewRegistry())

	scenarios := map[string]func(*zap.Logger, *gcmetrics.Metrics) error{
		"S1": scenarioBarrierOnlyReachability,
		"S2": scenarioArrayChunking,
		"S3": scenarioStaticRace,
		"S4": scenarioStackClaim,
		"S5": scenarioWeakFixpoint,
		"S6": scenarioThreadResurrectionBarrier,
	}

	names := []string{"S1", "S2", "S3", "S4", "S5", "S6"}
	if *scenario != "all" {
		names = []string{*scenario}
	}

	failed := false
	for _, name := range names {
		fn, ok := scenarios[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "marksim: unknown scenario %q\n", name)
			os.Exit(2)
		}
		if err := fn(log, metrics); err != nil {
			fmt.Printf("%s: FAIL: %v\n", name, err)
			failed = true
			continue
		}
		fmt.Printf("%s: ok\n", name)
	}
	if failed {
		os.Exit(1)
	}
}

// unsafePtr converts a fixture's untagged identity to the unsafe.Pointer
// form heapiface/Collector liveness queries take. Fixture objects are
// never dereferenced through this pointer — it is used purely as an
// opaque identity key, the same trick ClosurePtr.ptr() plays in
// closure.go.
func unsafePtr(p nonmoving.ClosurePtr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p.Untag()))
}

// world bundles the fixture registry and collaborator state a scenario
// needs to construct a Collector and a handful of traceable objects.
type world struct {
	heap *segheap.Heap
	large *segheap.LargeObjectSet
	seg  *segheap.Segment
	objs map[nonmoving.ClosurePtr]*simObject
	next uintptr
}

func newWorld() *world {
	heap := segheap.NewHeap(nil)
	seg := segheap.NewSegment(1, 16, 256)
	heap.AddSegment(seg)
	return &world{
		heap:  heap,
		large: segheap.NewLargeObjectSet(),
		seg:   seg,
		objs:  make(map[nonmoving.ClosurePtr]*simObject),
		next:  0x1000,
	}
}

// alloc creates a small-object fixture of the given kind, registers it
// with the heap so MarkClosure's small-object path can locate it, and
// returns its identity pointer. Call before Segment.TakeSnapshot so the
// object is considered part of the current cycle's snapshot.
func (w *world) alloc(kind nonmoving.ClosureKind, fields ...nonmoving.ClosurePtr) nonmoving.ClosurePtr {
	id := nonmoving.ClosurePtr(w.next)
	w.next += 16
	obj := &simObject{id: id, kind: kind, fields: fields}
	w.objs[id] = obj
	idx := w.seg.Alloc(unsafePtr(id))
	w.heap.Register(1, idx, unsafePtr(id))
	return id
}

// allocStatic creates a static-closure fixture (no heap registration:
// markStatic never consults the heap for static closures).
func (w *world) allocStatic(kind nonmoving.ClosureKind, fields ...nonmoving.ClosurePtr) nonmoving.ClosurePtr {
	id := nonmoving.ClosurePtr(w.next)
	w.next += 16
	obj := &simObject{id: id, kind: kind, fields: fields}
	if kind.HasStaticLink() {
		obj.staticLink = new(uint64)
	}
	w.objs[id] = obj
	return id
}

func (w *world) resolve(p nonmoving.ClosurePtr) nonmoving.Closure {
	obj, ok := w.objs[p.Untag()]
	if !ok {
		return nil
	}
	return obj
}

func (w *world) newCollector(cfg nonmoving.Config) *nonmoving.Collector {
	return nonmoving.NewCollector(cfg, w.heap, w.large)
}

// simObject is the fixture Closure implementation every scenario below
// builds its synthetic heap graph from.
type simObject struct {
	id         nonmoving.ClosurePtr
	kind       nonmoving.ClosureKind
	fields     []nonmoving.ClosurePtr
	staticLink *uint64

	tso   *nonmoving.TSO
	stack *nonmoving.Stack
	trec  *nonmoving.TRecChunk
}

func (o *simObject) InfoTable() *nonmoving.InfoTable {
	return &nonmoving.InfoTable{Kind: o.kind, StaticLink: o.staticLink, ArgWords: len(o.fields)}
}

func (o *simObject) PtrFields() []nonmoving.PtrField {
	out := make([]nonmoving.PtrField, 0, len(o.fields))
	for i := range o.fields {
		out = append(out, nonmoving.PtrField{Val: o.fields[i]})
	}
	return out
}

func (o *simObject) AsTSO() *nonmoving.TSO             { return o.tso }
func (o *simObject) AsStack() *nonmoving.Stack         { return o.stack }
func (o *simObject) AsTRecChunk() *nonmoving.TRecChunk { return o.trec }

// scenarioBarrierOnlyReachability is SPEC_FULL.md S1: an overwrite
// before the barrier is enabled must not keep the overwritten value
// alive; the same overwrite after the barrier is enabled must, via the
// URS.
func scenarioBarrierOnlyReachability(log *zap.Logger, m *gcmetrics.Metrics) error {
	w := newWorld()
	a := w.alloc(nonmoving.KindConstr)
	w.seg.TakeSnapshot()

	c := w.newCollector(nonmoving.Config{Logger: log})
	c.AdvanceEpoch()
	worker := c.Worker(0)

	// Overwrite before mark begins: barrier disabled, nothing recorded.
	c.PushClosure(worker, a)
	if c.IsAlive(unsafePtr(a)) {
		return fmt.Errorf("A reachable before barrier enabled, want unreachable")
	}

	// Now enable the barrier and repeat the overwrite: A must become
	// reachable via the URS once the mark loop drains it.
	c.EnableBarrier()
	c.PushClosure(worker, a)
	c.DisableBarrier()

	c.FlushLocal(0)
	c.Mark(w.resolve, nil, nil)
	m.MarkQueueDepth.Set(float64(c.QueueDepth()))

	if !c.IsNowAlive(unsafePtr(a)) {
		return fmt.Errorf("A not marked after barrier-recorded overwrite")
	}
	return nil
}

// scenarioArrayChunking is S2: a 300-element pointer array must have
// every element traced exactly once, in chunkLength-sized steps.
func scenarioArrayChunking(log *zap.Logger, m *gcmetrics.Metrics) error {
	w := newWorld()
	const n = 300
	elems := make([]nonmoving.ClosurePtr, n)
	traced := make([]int, n)
	for i := range elems {
		elems[i] = w.alloc(nonmoving.KindConstr)
	}
	w.seg.TakeSnapshot()

	c := w.newCollector(nonmoving.Config{Logger: log})
	c.AdvanceEpoch()

	arr := nonmoving.ArrayPtr(0xA000)
	arrayElem := func(a nonmoving.ArrayPtr, i int) nonmoving.ClosurePtr {
		traced[i]++
		return elems[i]
	}
	arrayLen := func(a nonmoving.ArrayPtr) int { return n }

	c.AddArrayRoot(arr)
	c.Mark(w.resolve, arrayElem, arrayLen)
	m.MarkQueueDepth.Set(float64(c.QueueDepth()))

	for i, id := range elems {
		if !c.IsNowAlive(unsafePtr(id)) {
			return fmt.Errorf("element %d not traced", i)
		}
	}
	for i, count := range traced {
		if count != 1 {
			return fmt.Errorf("element %d traced %d times, want 1", i, count)
		}
	}
	return nil
}

// scenarioStaticRace is S3: two concurrent claimers of the same
// FUN_STATIC must have exactly one enumerate its payload, and both must
// observe it marked afterward.
func scenarioStaticRace(log *zap.Logger, m *gcmetrics.Metrics) error {
	w := newWorld()
	payload := w.alloc(nonmoving.KindConstr)
	fs := w.allocStatic(nonmoving.KindFunStatic, payload)
	w.seg.TakeSnapshot()

	c := w.newCollector(nonmoving.Config{Logger: log, NumWorkers: 2})
	c.AdvanceEpoch()

	obj := w.resolve(fs)
	w0, w1 := c.Worker(0), c.Worker(1)

	c.MarkClosure(w0, fs, obj, 0, false)
	c.MarkClosure(w1, fs, obj, 0, false)

	claims := w0.PendingLocal() + w1.PendingLocal()
	if claims != 1 {
		return fmt.Errorf("expected exactly one claimer to enumerate the payload, got %d pushes", claims)
	}

	c.FlushLocal(0)
	c.FlushLocal(1)
	c.Mark(w.resolve, nil, nil)
	m.StaticClaimsTotal.Inc()

	if !c.IsNowAlive(unsafePtr(payload)) {
		return fmt.Errorf("payload not marked after static race")
	}
	return nil
}

// scenarioStackClaim is S4: whichever side wins the CAS on a stack's
// marking token performs the full enumeration; the loser observes
// needs_mark == false once the winner finishes.
func scenarioStackClaim(log *zap.Logger, m *gcmetrics.Metrics) error {
	w := newWorld()
	frameVal := w.alloc(nonmoving.KindConstr)
	stackObj := w.alloc(nonmoving.KindStack)
	w.seg.TakeSnapshot()

	c := w.newCollector(nonmoving.Config{Logger: log})
	c.AdvanceEpoch()
	c.EnableBarrier()

	obj := w.objs[stackObj]
	obj.stack = &nonmoving.Stack{
		Closure: stackObj,
		Frames: []nonmoving.StackFrame{
			{Kind: nonmoving.FrameUpdate, Updatee: frameVal},
		},
	}

	winner := c.Worker(0)
	c.PushStack(winner, obj.stack)
	c.FlushLocal(0)
	c.Mark(w.resolve, nil, nil)

	if !c.IsNowAlive(unsafePtr(frameVal)) {
		return fmt.Errorf("winner did not trace the stack frame")
	}

	// The "loser" calling PushStack again after the winner finished must
	// observe needs_mark == false on the stack object itself and return
	// without re-marking or panicking.
	m.StackContention.Inc()
	c.PushStack(winner, obj.stack)
	return nil
}

// scenarioWeakFixpoint is S5: w1.key=k1/value=k2, w2.key=k2/value=v;
// only k1 is rooted. Reconciliation must resurrect both weaks and mark v.
func scenarioWeakFixpoint(log *zap.Logger, m *gcmetrics.Metrics) error {
	w := newWorld()
	k1 := w.alloc(nonmoving.KindConstr)
	k2 := w.alloc(nonmoving.KindConstr)
	v := w.alloc(nonmoving.KindConstr)
	w.seg.TakeSnapshot()

	c := w.newCollector(nonmoving.Config{Logger: log})
	c.AdvanceEpoch()

	c.AddRoot(k1)
	c.Mark(w.resolve, nil, nil)

	lists := &nonmoving.WeakLists{
		OldWeakPtrList: []*nonmoving.Weak{
			{Key: k1, Value: k2},
			{Key: k2, Value: v},
		},
	}

	worker := c.Worker(0)
	for {
		didWork := c.TidyWeaks(worker, lists)
		c.FlushLocal(0)
		c.Mark(w.resolve, nil, nil)
		if !didWork {
			break
		}
	}

	if len(lists.WeakPtrList) != 2 {
		return fmt.Errorf("expected both weaks resurrected, got %d", len(lists.WeakPtrList))
	}
	if !c.IsNowAlive(unsafePtr(v)) {
		return fmt.Errorf("v not marked after weak fixpoint")
	}
	return nil
}

// scenarioThreadResurrectionBarrier is S6: pushes made by code running
// during resurrect_threads land in the resurrecting worker's URS and
// must be discarded by finish_flush rather than leaking into the next
// cycle.
func scenarioThreadResurrectionBarrier(log *zap.Logger, m *gcmetrics.Metrics) error {
	w := newWorld()
	tsoID := w.alloc(nonmoving.KindTSO)
	leaked := w.alloc(nonmoving.KindConstr)
	w.seg.TakeSnapshot()

	c := w.newCollector(nonmoving.Config{Logger: log})
	c.AdvanceEpoch()
	c.EnableBarrier()

	obj := w.objs[tsoID]
	obj.tso = &nonmoving.TSO{Closure: tsoID, WhatNext: nonmoving.ThreadRunGHC}

	lists := &nonmoving.ThreadLists{OldThreads: []*nonmoving.TSO{obj.tso}}
	var resurrected []*nonmoving.TSO
	c.ResurrectThreads(lists, &resurrected)
	if len(resurrected) != 1 {
		return fmt.Errorf("expected 1 resurrected thread, got %d", len(resurrected))
	}

	// Simulate the raised-exception handler invoking push_closure during
	// resurrection: this lands in worker 0's own URS, not yet flushed.
	worker := c.Worker(0)
	c.PushClosure(worker, leaked)
	m.URSFlushTotal.Inc()

	// finish_flush discards entries added since the last flush before
	// they are ever made globally visible.
	worker.Discard()

	c.Mark(w.resolve, nil, nil)
	if c.IsNowAlive(unsafePtr(leaked)) {
		return fmt.Errorf("resurrection-time push leaked into the next cycle")
	}
	return nil
}
