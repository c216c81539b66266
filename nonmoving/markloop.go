package nonmoving

// ClosureResolver looks up the Closure view for a tagged pointer, the
// one remaining external dependency the mark loop needs beyond
// heapiface: spec §1 treats "the object layout / info-table metadata"
// as an out-of-scope collaborator the core merely consumes.
type ClosureResolver func(p ClosurePtr) Closure

// Mark drains the collector's mark queue until both it and the global
// URS list are empty (spec §4.5, "Mark loop"). resolve maps a tagged
// pointer to the Closure view MarkClosure needs to dispatch on.
//
// Array chunking bounds traversal stack depth for large pointer arrays:
// a MarkArray entry for more than chunkLength remaining elements
// re-queues the tail before tracing its own chunk, so no single step
// processes more than chunkLength elements (spec §4.5, §8 "Boundary
// cases").
func (c *Collector) Mark(resolve ClosureResolver, arrayElem func(a ArrayPtr, i int) ClosurePtr, arrayLen func(a ArrayPtr) int) {
	for {
		ent := c.queue.Pop()
		switch ent.tag {
		case entryMarkClosure:
			cl := resolve(ent.closureP)
			if cl == nil {
				corrupt("resolver returned nil for queued closure", ent.closureP, KindInvalid)
			}
			c.MarkClosure(c.collectorURS(), ent.closureP, cl, ent.origin, ent.hasOrigin)

		case entryMarkArray:
			n := arrayLen(ent.array)
			end := ent.startIndex + chunkLength
			if end > n {
				end = n
			}
			if end < n {
				c.queue.Push(MarkArrayEntry(ent.array, end))
			}
			for j := ent.startIndex; j < end; j++ {
				c.pushArrayElemClosure(arrayElem(ent.array, j))
			}

		case entryNull:
			if c.global.nonEmpty() {
				chain := c.global.drain()
				c.queue.spliceChain(chain)
				continue
			}
			return

		default:
			corrupt("unknown mark queue entry tag", ent.closureP, KindInvalid)
		}
	}
}

// pushArrayElemClosure applies the push_closure oldest-generation
// filter (spec §4.1, "push_closure... gated by the filter") to one
// array slot's contents.
func (c *Collector) pushArrayElemClosure(p ClosurePtr) {
	if p == 0 {
		return
	}
	up := p.Untag()
	if !c.isTraceable(up.ptr()) {
		return
	}
	c.queue.Push(MarkClosureEntry(up, 0, false))
}

// collectorURS adapts the collector's own mark queue to the WorkerURS
// shape so the inline TSO/stack tracers (written against *WorkerURS)
// can be reused verbatim when the collector itself performs an eager
// inline trace (e.g. a losing stack-claim never reaches here, but the
// KindTSO/KindStack dispatch in tracer.go does).
func (c *Collector) collectorURS() *WorkerURS {
	return &WorkerURS{q: c.queue, global: c.global, pool: c.pool}
}
