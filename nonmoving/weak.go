package nonmoving

// WhyBlocked mirrors the subset of thread-blocking reasons spec §4.4
// ("TSO tracing") says must additionally push block_info.closure.
type WhyBlocked uint8

const (
	NotBlocked WhyBlocked = iota
	BlockedOnMVar
	BlockedOnMVarRead
	BlockedOnBlackHole
	BlockedOnMsgThrowTo
)

// WhatNext mirrors the thread states resurrect_threads consults
// (spec §4.8): every remaining old_thread whose WhatNext is neither
// Killed nor Complete is resurrected.
type WhatNext uint8

const (
	ThreadRunGHC WhatNext = iota
	ThreadKilled
	ThreadComplete
)

// TRecEntry is one (tvar, expected, new) triple in a TREC chunk
// (spec §3, glossary "TREC").
type TRecEntry struct {
	TVar, Expected, New ClosurePtr
}

// TRecChunk is a link in a transaction's chain of entry chunks. TREC
// headers carry no write barrier, so every chunk must be deep-marked
// every cycle (spec §9, Open Question 3; grounded verbatim on
// NonMovingMark.c's trec_chunk handling).
type TRecChunk struct {
	Next    *TRecChunk
	Entries []TRecEntry
}

// TSO is a thread-state object, the unit tidy_threads/resurrect_threads
// operate on (spec §3, §4.4, §4.8).
type TSO struct {
	Closure           ClosurePtr
	Bound             *TSO // bound.tso, or nil
	BlockedExceptions ClosurePtr
	BQ                ClosurePtr
	TRecFirstChunk    *TRecChunk
	StackObj          ClosurePtr
	Link              ClosurePtr
	WhyBlocked        WhyBlocked
	BlockInfoClosure  ClosurePtr
	WhatNext          WhatNext
}

// traceTSOInline pushes every pointer a TSO transitively holds (spec
// §4.4, "TSO tracing"): bound.tso if bound, blocked_exceptions, bq,
// every TREC chunk's entries transitively, stackobj, _link, and
// block_info.closure when why_blocked is one of the listed reasons.
func (c *Collector) traceTSOInline(w *WorkerURS, t *TSO) {
	if t.Bound != nil && t.Bound.Closure != 0 {
		w.record(MarkClosureEntry(t.Bound.Closure.Untag(), 0, false))
	}
	if t.BlockedExceptions != 0 {
		w.record(MarkClosureEntry(t.BlockedExceptions.Untag(), 0, false))
	}
	if t.BQ != 0 {
		w.record(MarkClosureEntry(t.BQ.Untag(), 0, false))
	}
	c.traceTRecChunks(w, t.TRecFirstChunk)
	if t.StackObj != 0 {
		w.record(MarkClosureEntry(t.StackObj.Untag(), 0, false))
	}
	if t.Link != 0 {
		w.record(MarkClosureEntry(t.Link.Untag(), 0, false))
	}
	switch t.WhyBlocked {
	case BlockedOnMVar, BlockedOnMVarRead, BlockedOnBlackHole, BlockedOnMsgThrowTo, NotBlocked:
		if t.BlockInfoClosure != 0 {
			w.record(MarkClosureEntry(t.BlockInfoClosure.Untag(), 0, false))
		}
	}
}

// traceTRecChunks walks the chain and pushes every (tvar, expected,
// new) triple transitively (spec §4.4, §9 Open Question 3).
func (c *Collector) traceTRecChunks(w *WorkerURS, chunk *TRecChunk) {
	for ch := chunk; ch != nil; ch = ch.Next {
		for _, e := range ch.Entries {
			if e.TVar != 0 {
				w.record(MarkClosureEntry(e.TVar.Untag(), 0, false))
			}
			if e.Expected != 0 {
				w.record(MarkClosureEntry(e.Expected.Untag(), 0, false))
			}
			if e.New != 0 {
				w.record(MarkClosureEntry(e.New.Untag(), 0, false))
			}
		}
	}
}

// Weak is a weak pointer, as tracked in the old_weak_ptr_list /
// weak_ptr_list snapshot lists (spec §3, §4.8).
type Weak struct {
	Key, Value, Finalizer ClosurePtr
	CFinalizers           ClosurePtr
	HasCFinalizers        bool
	Dead                  bool // DEAD_WEAK info
}

// WeakLists holds the three weak-pointer snapshot/output lists spec
// §4.8 operates over. A plain slice stands in for the teacher's
// intrusive linked list (mfinal.go's finblock chain): Go slices make
// the splice/unlink operations tidy_weaks performs far simpler to get
// right than hand-rolled pointer surgery, and nothing downstream of
// this package needs the nodes to be independently addressable.
type WeakLists struct {
	OldWeakPtrList []*Weak
	WeakPtrList    []*Weak // snapshot-output: resurrected-this-cycle weaks
	DeadWeaks      []*Weak
}

// TidyWeaks sweeps OldWeakPtrList once (spec §4.8, "tidy_weaks"). For
// each weak: DEAD_WEAK info drops it; an alive key resurrects value,
// finalizer and cfinalizers into w (the mark queue) and moves the weak
// to WeakPtrList; otherwise it is left in place for the next round. The
// collector re-runs the mark loop between rounds until a fixpoint (no
// newly resurrected weak) — callers drive that loop, this method
// performs exactly one pass and reports whether it did anything.
func (c *Collector) TidyWeaks(w *WorkerURS, lists *WeakLists) (didWork bool) {
	remaining := lists.OldWeakPtrList[:0:0]
	for _, wk := range lists.OldWeakPtrList {
		switch {
		case wk.Dead:
			// Unlink and drop.
		case c.IsNowAlive(wk.Key.Untag().ptr()):
			if wk.Value != 0 {
				w.record(MarkClosureEntry(wk.Value.Untag(), 0, false))
			}
			if wk.Finalizer != 0 {
				w.record(MarkClosureEntry(wk.Finalizer.Untag(), 0, false))
			}
			if wk.HasCFinalizers && wk.CFinalizers != 0 {
				w.record(MarkClosureEntry(wk.CFinalizers.Untag(), 0, false))
			}
			lists.WeakPtrList = append([]*Weak{wk}, lists.WeakPtrList...)
			didWork = true
		default:
			remaining = append(remaining, wk)
		}
	}
	lists.OldWeakPtrList = remaining
	return didWork
}

// MarkDeadWeaks processes every weak still in OldWeakPtrList after the
// tidy_weaks fixpoint: its key is dead, so value and finalizer (and
// cfinalizers, unless the no-finalizer sentinel) are pushed for the
// value/finalizer to remain reachable for finalizer scheduling, and the
// weak moves onto dead (spec §4.8, "mark_dead_weaks").
func (c *Collector) MarkDeadWeaks(w *WorkerURS, lists *WeakLists, dead *[]*Weak) {
	for _, wk := range lists.OldWeakPtrList {
		if wk.Value != 0 {
			w.record(MarkClosureEntry(wk.Value.Untag(), 0, false))
		}
		if wk.Finalizer != 0 {
			w.record(MarkClosureEntry(wk.Finalizer.Untag(), 0, false))
		}
		if wk.HasCFinalizers && wk.CFinalizers != 0 {
			w.record(MarkClosureEntry(wk.CFinalizers.Untag(), 0, false))
		}
		*dead = append(*dead, wk)
	}
	lists.OldWeakPtrList = nil
	lists.DeadWeaks = *dead
}

// ThreadLists holds the snapshot/output thread lists spec §4.8 operates
// over.
type ThreadLists struct {
	OldThreads []*TSO
	Threads    []*TSO // live-this-cycle, snapshot-output
}

// TidyThreads splices every live old_thread onto Threads, leaving dead
// threads in OldThreads (spec §4.8, "tidy_threads").
func (c *Collector) TidyThreads(lists *ThreadLists) {
	remaining := lists.OldThreads[:0:0]
	for _, t := range lists.OldThreads {
		if c.IsNowAlive(t.Closure.Untag().ptr()) {
			lists.Threads = append(lists.Threads, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	lists.OldThreads = remaining
}

// ResurrectThreads pushes every remaining old_thread whose WhatNext is
// not Killed/Complete onto the collector's mark queue and onto
// resurrected, for the runtime to raise an asynchronous exception in
// (spec §4.8, "resurrect_threads"). That exception handler runs code
// invoking barriers; those pushes land in the resurrecting worker's own
// URS and are discarded by FinishFlush (spec §9, "Resurrection
// re-entrancy").
func (c *Collector) ResurrectThreads(lists *ThreadLists, resurrected *[]*TSO) {
	for _, t := range lists.OldThreads {
		if t.WhatNext == ThreadKilled || t.WhatNext == ThreadComplete {
			continue
		}
		c.queue.Push(MarkClosureEntry(t.Closure.Untag(), 0, false))
		*resurrected = append(*resurrected, t)
	}
}
