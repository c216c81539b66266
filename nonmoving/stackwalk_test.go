package nonmoving

import (
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBitmapFieldsExtractsOnlyPointerWords(t *testing.T) {
	words := []uintptr{0x10, 0x20, 0x30, 0x40}
	bitmap := []uint64{0b1010} // words 1 and 3 are pointers

	var base int
	got := decodeBitmapFields(unsafe.Pointer(&base), words, bitmap)

	want := []PtrField{
		{Val: ClosurePtr(0x20)},
		{Val: ClosurePtr(0x40)},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(PtrField{}, "Slot")); diff != "" {
		t.Errorf("decodeBitmapFields() mismatch (-want +got):\n%s", diff)
	}
}

// TestStackClaimWinnerTracesLoserSkips is SPEC_FULL.md scenario S4: the
// CAS winner performs the full enumeration; a second PushStack call
// after the winner has finished observes needs_mark == false and does
// not re-mark or re-enumerate.
func TestStackClaimWinnerTracesLoserSkips(t *testing.T) {
	w := newTestHeap()
	frameVal := w.alloc(KindConstr)
	stackObj := w.alloc(KindStack)
	w.seg.TakeSnapshot()

	c := w.newCollector(Config{})
	c.AdvanceEpoch()
	c.EnableBarrier()

	st := &Stack{
		Closure: stackObj,
		Frames: []StackFrame{
			{Kind: FrameUpdate, Updatee: frameVal},
		},
	}

	worker := c.Worker(0)
	c.PushStack(worker, st)
	require.Equal(t, 1, worker.PendingLocal())
	c.FlushLocal(0)
	c.Mark(w.resolve, nil, nil)

	assert.True(t, c.IsNowAlive(fixturePtr(frameVal)))
	assert.True(t, c.IsNowAlive(fixturePtr(stackObj)))

	// Second call: the stack is already marked, so needs_mark is false
	// and PushStack must be a pure no-op.
	c.PushStack(worker, st)
	assert.Equal(t, 0, worker.PendingLocal())
}

func TestTraceStackInlineHandlesEveryFrameKind(t *testing.T) {
	w := newTestHeap()
	updatee := w.alloc(KindConstr)
	bitmapSlot := w.alloc(KindConstr)
	srt := w.alloc(KindConstr)
	bcoSlot := w.alloc(KindConstr)
	bigSlot := w.alloc(KindConstr)
	fun := w.alloc(KindConstr)
	funSlot := w.alloc(KindConstr)

	c := w.newCollector(Config{})
	c.AdvanceEpoch()
	worker := c.Worker(0)

	funWords := []uintptr{uintptr(funSlot)}
	st := &Stack{Frames: []StackFrame{
		{Kind: FrameUpdate, Updatee: updatee},
		{Kind: FrameSmallBitmap, Slots: []PtrField{{Val: bitmapSlot}}, SRT: srt},
		{Kind: FrameRetBCO, Slots: []PtrField{{Val: bcoSlot}}},
		{Kind: FrameRetBig, Slots: []PtrField{{Val: bigSlot}}},
		{Kind: FrameRetFun, Fun: fun, Base: unsafe.Pointer(&funWords[0]), ArgWords: funWords, ArgBitmap: []uint64{0b1}},
	}}

	c.traceStackInline(worker, st)
	// updatee + (bitmapSlot, srt) + bcoSlot + bigSlot + (fun, funSlot) = 7 pushes.
	assert.Equal(t, 7, worker.PendingLocal())
}
