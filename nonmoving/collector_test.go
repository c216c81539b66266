package nonmoving

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorAllocatesRequestedWorkers(t *testing.T) {
	w := newTestHeap()
	c := w.newCollector(Config{NumWorkers: 3})
	require.Equal(t, 3, c.NumWorkers())
	for i := 0; i < 3; i++ {
		assert.NotNil(t, c.Worker(i))
	}
}

func TestBarrierEnabledReflectsState(t *testing.T) {
	w := newTestHeap()
	c := w.newCollector(Config{})
	assert.False(t, c.BarrierEnabled())
	c.EnableBarrier()
	assert.True(t, c.BarrierEnabled())
	c.DisableBarrier()
	assert.False(t, c.BarrierEnabled())
}

func TestAddRootAndQueueDepth(t *testing.T) {
	w := newTestHeap()
	a := w.alloc(KindConstr)
	c := w.newCollector(Config{})
	c.AdvanceEpoch()

	c.AddRoot(a)
	assert.Equal(t, 1, c.QueueDepth())

	c.Mark(w.resolve, nil, nil)
	assert.Equal(t, 0, c.QueueDepth())
}

func TestAddArrayRootSeedsChunkedTrace(t *testing.T) {
	w := newTestHeap()
	elems := []ClosurePtr{w.alloc(KindConstr), w.alloc(KindConstr)}
	w.seg.TakeSnapshot()

	c := w.newCollector(Config{})
	c.AdvanceEpoch()

	arr := ArrayPtr(0xB000)
	c.AddArrayRoot(arr)
	c.Mark(w.resolve, func(a ArrayPtr, i int) ClosurePtr { return elems[i] }, func(ArrayPtr) int { return len(elems) })

	for _, e := range elems {
		assert.True(t, c.IsNowAlive(fixturePtr(e)))
	}
}

func TestFreeReturnsBlocksWithoutPanicking(t *testing.T) {
	w := newTestHeap()
	a := w.alloc(KindConstr)
	c := w.newCollector(Config{})
	c.AdvanceEpoch()
	c.AddRoot(a)

	assert.NotPanics(t, func() { c.Free() })
}
