package nonmoving

import (
	"unsafe"

	"go.uber.org/atomic"

	"github.com/nonmoving-rts/satbmark/nonmoving/heapiface"
)

// Epoch is the monotonically incrementing mark-cycle tag (spec §3,
// "Mark epoch"). A segment mark cell equal to the current epoch means
// "marked this cycle"; any other value (including 0) means unmarked.
type Epoch uint8

// nextEpoch advances e, skipping 0 so "never marked" stays
// unambiguous — the rollover behaviour required by spec §8 property 6.
func nextEpoch(e Epoch) Epoch {
	n := e + 1
	if n == 0 {
		n = 1
	}
	return n
}

// markRegistry wraps the external heap/large-object collaborators with
// the epoch the current cycle is using, per spec §4.3.
type markRegistry struct {
	heap   heapiface.Heap
	large  heapiface.LargeObjectSet
	epoch  atomic.Uint32 // stores Epoch, widened for atomic.Uint32
}

func newMarkRegistry(heap heapiface.Heap, large heapiface.LargeObjectSet) *markRegistry {
	r := &markRegistry{heap: heap, large: large}
	r.epoch.Store(1)
	return r
}

func (r *markRegistry) currentEpoch() Epoch { return Epoch(r.epoch.Load()) }

func (r *markRegistry) advanceEpoch() {
	r.epoch.Store(uint32(nextEpoch(r.currentEpoch())))
}

// smallMarked reports whether the small nonmoving pointer p is marked
// with the current epoch.
func (r *markRegistry) smallMarked(p unsafe.Pointer) (marked, postSnapshot bool, seg heapiface.SegmentID, idx heapiface.BlockIndex, ok bool) {
	seg, idx, ok = r.heap.Locate(p)
	if !ok {
		return false, false, seg, idx, false
	}
	m := r.heap.GetMark(seg, idx)
	postSnapshot = idx >= r.heap.NextFreeSnap(seg)
	marked = Epoch(m) == r.currentEpoch()
	return marked, postSnapshot, seg, idx, true
}

// setSmallMark stamps p's mark cell with the current epoch and
// accumulates liveWords words against the segment's live-word counter
// (spec §4.4, "For small: write the current epoch... accumulate
// live_words").
func (r *markRegistry) setSmallMark(seg heapiface.SegmentID, idx heapiface.BlockIndex, liveWords uintptr) {
	r.heap.SetMark(seg, idx, uint8(r.currentEpoch()), liveWords)
}
