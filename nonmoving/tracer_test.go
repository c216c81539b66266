package nonmoving

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkClosureSmallObjectTracesAndMarks(t *testing.T) {
	w := newTestHeap()
	leaf := w.alloc(KindConstr)
	parent := w.alloc(KindConstr, leaf)
	w.seg.TakeSnapshot()

	c := w.newCollector(Config{})
	c.AdvanceEpoch()

	c.AddRoot(parent)
	c.Mark(w.resolve, nil, nil)

	assert.True(t, c.IsNowAlive(fixturePtr(parent)))
	assert.True(t, c.IsNowAlive(fixturePtr(leaf)))
}

func TestMarkClosureStaticClaimIsWinnerTakeAll(t *testing.T) {
	w := newTestHeap()
	payload := w.alloc(KindConstr)
	fs := w.allocStatic(KindFunStatic, payload)

	c := w.newCollector(Config{NumWorkers: 2})
	c.AdvanceEpoch()

	obj := w.resolve(fs)
	w0, w1 := c.Worker(0), c.Worker(1)

	c.MarkClosure(w0, fs, obj, 0, false)
	c.MarkClosure(w1, fs, obj, 0, false)

	assert.Equal(t, 1, w0.PendingLocal()+w1.PendingLocal())
}

func TestMarkClosureStaticConstrNoCAFIsNoop(t *testing.T) {
	w := newTestHeap()
	c := w.newCollector(Config{})
	c.AdvanceEpoch()

	constr := w.allocStatic(KindConstrNoCAF)
	worker := c.Worker(0)
	c.MarkClosure(worker, constr, w.resolve(constr), 0, false)

	assert.Equal(t, 0, worker.PendingLocal())
}

func TestMarkClosureThunkSelectorFollowsOnlyFirstField(t *testing.T) {
	w := newTestHeap()
	first := w.alloc(KindConstr)
	second := w.alloc(KindConstr)
	selector := w.alloc(KindThunkSelector, first, second)
	w.seg.TakeSnapshot()

	c := w.newCollector(Config{})
	c.AdvanceEpoch()

	worker := c.Worker(0)
	c.MarkClosure(worker, selector, w.resolve(selector), 0, false)

	require.Equal(t, 1, worker.PendingLocal())
	c.FlushLocal(0)
	c.Mark(w.resolve, nil, nil)

	assert.True(t, c.IsNowAlive(fixturePtr(first)))
	assert.False(t, c.IsNowAlive(fixturePtr(second)))
}

func TestMarkClosureArrWordsHasNoPointerFieldsButIsMarked(t *testing.T) {
	w := newTestHeap()
	arr := w.alloc(KindArrWords)
	w.seg.TakeSnapshot()

	c := w.newCollector(Config{})
	c.AdvanceEpoch()

	worker := c.Worker(0)
	c.MarkClosure(worker, arr, w.resolve(arr), 0, false)

	assert.Equal(t, 0, worker.PendingLocal())
	assert.True(t, c.IsNowAlive(fixturePtr(arr)))
}

func TestMarkClosureYoungerGenerationPointerIsSkipped(t *testing.T) {
	w := newTestHeap()
	young := w.alloc(KindConstr)
	w.heap.Oldest = func(p unsafe.Pointer) bool { return p != fixturePtr(young) }

	c := w.newCollector(Config{})
	c.AdvanceEpoch()

	worker := c.Worker(0)
	c.MarkClosure(worker, young, w.resolve(young), 0, false)
	assert.Equal(t, 0, worker.PendingLocal())
}

// TestMarkClosurePAPDecodesArgBitmapAndFun verifies the PAP/AP payload
// is decoded through InfoTable.PtrArgBitmap rather than a pre-enumerated
// PtrFields list: a non-pointer word is skipped, the bitmap-selected
// word is traced, and the function closure itself is always traced.
func TestMarkClosurePAPDecodesArgBitmapAndFun(t *testing.T) {
	w := newTestHeap()
	fun := w.alloc(KindConstr)
	ptrArg := w.alloc(KindConstr)
	pap := w.alloc(KindPAP)
	w.seg.TakeSnapshot()

	f := w.objs[pap]
	words := []uintptr{0xdead, uintptr(ptrArg)}
	f.funKind = ArgGen
	f.argBitmap = []uint64{0b10}
	f.pap = &PAPPayload{Fun: fun, Base: unsafe.Pointer(&words[0]), Words: words}

	c := w.newCollector(Config{})
	c.AdvanceEpoch()

	worker := c.Worker(0)
	c.MarkClosure(worker, pap, w.resolve(pap), 0, false)
	require.Equal(t, 2, worker.PendingLocal())
	c.FlushLocal(0)
	c.Mark(w.resolve, nil, nil)

	assert.True(t, c.IsNowAlive(fixturePtr(fun)))
	assert.True(t, c.IsNowAlive(fixturePtr(ptrArg)))
}

func TestMarkClosurePanicsOnUnknownKind(t *testing.T) {
	w := newTestHeap()
	bogus := w.alloc(ClosureKind(250))
	w.seg.TakeSnapshot()

	c := w.newCollector(Config{})
	c.AdvanceEpoch()

	assert.Panics(t, func() {
		c.MarkClosure(c.Worker(0), bogus, w.resolve(bogus), 0, false)
	})
}
