package nonmoving

// tsoClosure and stackClosure are optional capabilities a Closure may
// implement so the generic tracer can reach the typed TSO/Stack
// tracing routines (weak.go, stackwalk.go) for the KindTSO/KindStack
// cases of mark_closure (spec §4.4).
type tsoClosure interface {
	Closure
	AsTSO() *TSO
}

type stackClosure interface {
	Closure
	AsStack() *Stack
}

// MarkClosure dispatches on cl's info-table kind and, if the object is
// accepted for tracing, enumerates its pointer fields into w and sets
// its mark bit (spec §4.4). origin/hasOrigin are carried for the
// benefit of the (unimplemented) selector-shortcut optimisation and
// otherwise ignored, per spec §9 Open Question 1.
func (c *Collector) MarkClosure(w *WorkerURS, p ClosurePtr, cl Closure, origin SlotAddress, hasOrigin bool) {
	up := p.Untag()
	ptr := up.ptr()
	it := cl.InfoTable()

	if it.Kind.IsStatic() {
		c.markStatic(w, up, cl, it)
		return
	}

	if !c.heap.InOldestGeneration(ptr) {
		// Younger generation: not this collector's responsibility.
		return
	}

	if c.large.IsLarge(ptr) {
		if !c.large.InSnapshot(ptr) || c.large.Marked(ptr) {
			return
		}
		c.traceFields(w, up, cl, it)
		lock := c.large.Lock()
		lock.Lock()
		c.large.Mark(ptr)
		lock.Unlock()
		return
	}

	seg, idx, ok := c.heap.Locate(ptr)
	if !ok {
		corrupt("neither static, large, nor small-segment resident", up, it.Kind)
	}
	mark := c.heap.GetMark(seg, idx)
	if Epoch(mark) == c.registry.currentEpoch() {
		return
	}
	if idx >= c.heap.NextFreeSnap(seg) && mark == 0 {
		// Allocated after the snapshot: not in snapshot, do not trace.
		return
	}

	liveWords := c.traceFields(w, up, cl, it)
	c.registry.setSmallMark(seg, idx, liveWords)
}

// markStatic handles the static-closure branch of mark_closure (spec
// §4.4 step 2): CONSTR_0_* have no payload needing linkage; *_STATIC
// kinds CAS the link field to the current static flag and, only on a
// winning CAS, enumerate SRT + payload; WHITEHOLE spins and retries.
func (c *Collector) markStatic(w *WorkerURS, p ClosurePtr, cl Closure, it *InfoTable) {
	switch it.Kind {
	case KindConstr01, KindConstr02, KindConstrNoCAF:
		return
	case KindWhitehole:
		it = c.infoTableSpinUntilStable(cl)
		c.markStatic(w, p, cl, it)
		return
	case KindThunkStatic, KindFunStatic, KindIndStatic:
		if !c.claimStatic(it) {
			return
		}
		c.traceFields(w, p, cl, it)
	default:
		corrupt("unknown static closure kind", p, it.Kind)
	}
}

// claimStatic performs the wait-free CAS claim on the static-link
// field's low bits (spec §3, "Static-closure link field"; §5,
// "Static-object claiming is wait-free"). Exactly one racing marker
// observes a winning CAS per cycle (spec §8 property 5).
func (c *Collector) claimStatic(it *InfoTable) bool {
	if it.StaticLink == nil {
		return true
	}
	want := uint64(c.staticFlag())
	for {
		old := loadUint64(it.StaticLink)
		if old&3 == want {
			return false
		}
		if casUint64(it.StaticLink, old, (old&^3)|want) {
			return true
		}
	}
}

// staticFlag is the two-bit value distinct from the previous cycle's
// that marks a static closure "fresh" this cycle (spec §3). Derived
// from the epoch's low bit so it flips every cycle without needing a
// separate counter.
func (c *Collector) staticFlag() uint8 {
	return uint8(c.registry.currentEpoch()&1) + 1
}

// traceFields enumerates cl's pointer payload per its kind and pushes
// each reachable pointer into w, per the closure-kind catalogue of
// spec §4.4. It returns the number of live words to credit to the
// segment's live-word counter (InfoTable.LiveWords); only the
// small-object path of MarkClosure uses it, since static and large
// closures do not use segment accounting.
func (c *Collector) traceFields(w *WorkerURS, p ClosurePtr, cl Closure, it *InfoTable) uintptr {
	switch it.Kind {
	case KindArrWords, KindMutPrim:
		// No pointers.

	case KindThunkSelector:
		// Follow the selectee only; no shortcutting (spec §9, §4.4).
		fields := cl.PtrFields()
		if len(fields) > 0 {
			c.pushField(w, fields[0])
		}

	case KindMutArrPtrs:
		// Enqueued as a chunked MarkArray rather than enumerated
		// inline (spec §3, §4.5).
		if ap, ok := cl.(interface{ AsArray() (ArrayPtr, int) }); ok {
			a, n := ap.AsArray()
			if n > 0 {
				w.record(MarkArrayEntry(a.Untag(), 0))
			}
		}

	case KindSmallMutArrPtrs:
		for _, f := range cl.PtrFields() {
			c.pushField(w, f)
		}

	case KindTSO:
		if tc, ok := cl.(tsoClosure); ok {
			c.traceTSOInline(w, tc.AsTSO())
		}

	case KindStack:
		if sc, ok := cl.(stackClosure); ok {
			st := sc.AsStack()
			if c.claimStack(st) {
				c.traceStackInline(w, st)
			}
			// A losing claimer returns without setting the mark bit;
			// the winner (here, or a concurrent barrier call) will.
		}

	case KindTRecChunk:
		if tc, ok := cl.(interface{ AsTRecChunk() *TRecChunk }); ok {
			c.traceTRecChunks(w, tc.AsTRecChunk())
		}

	case KindPAP, KindAP, KindAPStack:
		if pc, ok := cl.(papClosure); ok {
			payload := pc.AsPAP()
			if payload.Fun != 0 {
				w.record(MarkClosureEntry(payload.Fun.Untag(), 0, false))
			}
			c.tracePAPArgs(w, payload, it)
		}

	case KindBCO, KindFun, KindThunk, KindInd, KindIndStatic,
		KindBlackhole, KindMutVar, KindMutVarClean, KindMVarClean, KindMVarDirty,
		KindTVar, KindBlockingQueue, KindConstr, KindThunkStatic, KindFunStatic:
		if it.SRT != 0 {
			w.record(MarkClosureEntry(it.SRT.Untag(), 0, false))
		}
		for _, f := range cl.PtrFields() {
			c.pushField(w, f)
		}

	default:
		corrupt("unknown closure kind in traceFields", p, it.Kind)
	}

	return it.LiveWords(cl)
}

func (c *Collector) pushField(w *WorkerURS, f PtrField) {
	if f.Val == 0 {
		return
	}
	w.record(MarkClosureEntry(f.Val.Untag(), SlotAddress(uintptr(f.Slot)), true))
}

// LiveWords returns the closure's size in words to credit against the
// segment's live-word counter (spec §4.4, "accumulate live_words"),
// preferring the embedding runtime's explicit BlockWords and falling
// back to the number of enumerated pointer fields when it is unset.
func (it *InfoTable) LiveWords(cl Closure) uintptr {
	if it.BlockWords > 0 {
		return uintptr(it.BlockWords)
	}
	return uintptr(len(cl.PtrFields()))
}
