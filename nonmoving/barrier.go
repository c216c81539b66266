package nonmoving

import (
	"runtime"
	"unsafe"

	"go.uber.org/atomic"
)

// needsMark is spec §4.2's "needs_mark(p)": true iff p is in the
// oldest generation AND (large: in snapshot and not yet marked / small:
// segment mark cell != current epoch).
func (c *Collector) needsMark(p unsafe.Pointer) bool {
	if !c.heap.InOldestGeneration(p) {
		return false
	}
	if c.large.IsLarge(p) {
		return c.large.InSnapshot(p) && !c.large.Marked(p)
	}
	marked, _, _, _, ok := c.registry.smallMarked(p)
	if !ok {
		return false
	}
	return !marked
}

// PushClosure is the generic pointer-overwrite barrier entry point
// (spec §4.2). It records the pre-overwrite value p into worker's URS,
// discarding it unless p lives in the nonmoving heap (small or large)
// or is a static closure. Must be called with the *old* value of the
// slot being overwritten — this is the SATB discipline (spec §1(b)).
func (c *Collector) PushClosure(w *WorkerURS, p ClosurePtr) {
	if !c.barrier.isEnabled() {
		return
	}
	if p == 0 {
		return
	}
	up := p.Untag()
	ptr := up.ptr()
	if !c.isTraceable(ptr) {
		return
	}
	w.record(MarkClosureEntry(up, 0, false))
}

// isTraceable reports whether p is something this collector's barrier
// or tracer should ever record: a static closure, or a nonmoving
// (small or large) heap object. Younger-generation pointers are the
// moving collector's responsibility and are discarded (spec §4.1,
// §9 "Cross-generation pointers").
func (c *Collector) isTraceable(p unsafe.Pointer) bool {
	if !c.heap.InOldestGeneration(p) {
		return c.isStaticAddr(p)
	}
	return true
}

// isStaticAddr is a hook embedding runtimes fill in via
// Collector.StaticClassifier (collector.go); by default nothing outside
// the oldest generation is treated as static, which is conservative but
// harmless: the tracer also re-checks staticness before tracing.
func (c *Collector) isStaticAddr(p unsafe.Pointer) bool {
	if c.StaticClassifier == nil {
		return false
	}
	return c.StaticClassifier(p)
}

// PushThunk is the thunk-update/blackhole barrier entry point (spec
// §4.2). It obtains the thunk's info table (spinning past a transient
// WHITEHOLE classification), then pushes the thunk's SRT plus every
// pointer payload field; AP/PAP-shaped thunks decode their argument
// bitmap instead. SELECTOR and BLACKHOLE thunks are intentionally
// skipped — their payload is either not yet meaningful (BLACKHOLE) or
// deliberately unoptimised (SELECTOR, spec §9 Open Question 1).
func (c *Collector) PushThunk(w *WorkerURS, thunk Closure) {
	if !c.barrier.isEnabled() {
		return
	}
	it := c.infoTableSpinUntilStable(thunk)
	switch it.Kind {
	case KindThunkSelector, KindBlackhole:
		return
	}
	if it.SRT != 0 {
		w.record(MarkClosureEntry(it.SRT.Untag(), 0, false))
	}
	if it.Kind == KindAP || it.Kind == KindPAP {
		if pc, ok := thunk.(papClosure); ok {
			payload := pc.AsPAP()
			if payload.Fun != 0 {
				w.record(MarkClosureEntry(payload.Fun.Untag(), 0, false))
			}
			c.tracePAPArgs(w, payload, it)
			return
		}
	}
	for _, f := range thunk.PtrFields() {
		if f.Val == 0 {
			continue
		}
		w.record(MarkClosureEntry(f.Val.Untag(), SlotAddress(uintptr(f.Slot)), true))
	}
}

// infoTableSpinUntilStable re-reads thunk's info table while it reports
// KindWhitehole, per spec §4.4 step 2 / §7 ("WHITEHOLE race... spin on a
// volatile info-table read until the type stabilises").
func (c *Collector) infoTableSpinUntilStable(cl Closure) *InfoTable {
	for {
		it := cl.InfoTable()
		if it.Kind != KindWhitehole {
			return it
		}
		runtime.Gosched()
	}
}

// PushTSO is the dirty-TSO barrier entry point (spec §4.2). If the TSO
// is not yet marked it is traced eagerly, inline, against the calling
// worker's own URS as the trace target, and then marked.
func (c *Collector) PushTSO(w *WorkerURS, tso *TSO) {
	if !c.barrier.isEnabled() {
		return
	}
	p := tso.Closure.Untag().ptr()
	if !c.needsMark(p) {
		return
	}
	c.traceTSOInline(w, tso)
	c.markReachedInline(p)
}

// PushStack is the dirty-stack barrier entry point (spec §4.2, §5
// "Mutator stack-mark contention"). A stack carries a marking epoch
// word used as a claim token: CAS from the previous epoch to the
// current one grants the right to mark; losers busy-wait until
// needs_mark clears.
func (c *Collector) PushStack(w *WorkerURS, st *Stack) {
	if !c.barrier.isEnabled() {
		return
	}
	p := st.Closure.Untag().ptr()
	if !c.needsMark(p) {
		return
	}
	if !c.claimStack(st) {
		// Lost the race: the other claimer will mark it. Busy-wait
		// until it finishes, per spec §9 Open Question 2 — a
		// park/unpark handoff is a reasonable alternative but this
		// core follows the teacher's own idiom of spin loops for
		// exactly this contention shape (see markroot's stopg poll).
		for c.needsMark(p) {
			runtime.Gosched()
		}
		return
	}
	c.traceStackInline(w, st)
	c.markReachedInline(p)
}

// claimStack performs the CAS claim on st.marking (spec §4.2: "a CAS
// from old_epoch to current_epoch grants the right to mark").
func (c *Collector) claimStack(st *Stack) bool {
	cur := uint32(c.registry.currentEpoch())
	for {
		old := st.marking.Load()
		if old == cur {
			return false
		}
		if st.marking.CAS(old, cur) {
			return true
		}
	}
}

// markReachedInline sets the object's mark bit after an eager inline
// trace. The spec requires marks to be set *after* all fields have been
// pushed (spec §5, "the mark-bit write is not ordered... marks be set
// after all fields are pushed"), which traceTSOInline/traceStackInline
// already guarantee by construction: they only return once every field
// has been recorded.
func (c *Collector) markReachedInline(p unsafe.Pointer) {
	if c.large.IsLarge(p) {
		lock := c.large.Lock()
		lock.Lock()
		c.large.Mark(p)
		lock.Unlock()
		return
	}
	seg, idx, ok := c.heap.Locate(p)
	if !ok {
		return
	}
	c.registry.setSmallMark(seg, idx, 0)
}

// Stack carries the activation-record chain plus the claim-token word
// used to serialise concurrent markers against mutator dirtying
// (spec §3, §4.2). Concrete embedding runtimes provide Frames.
type Stack struct {
	Closure ClosurePtr
	marking atomic.Uint32
	Frames  []StackFrame
}
