package nonmoving

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerURSFlushLocalTransfersToGlobal(t *testing.T) {
	pool := newBlockPool()
	global := &globalURSList{}
	w := newWorkerURS(pool, global)

	w.record(MarkClosureEntry(ClosurePtr(8), 0, false))
	require.Equal(t, 1, w.PendingLocal())
	assert.False(t, global.nonEmpty())

	w.flushLocal()

	assert.Equal(t, 0, w.PendingLocal())
	assert.True(t, global.nonEmpty())
}

func TestWorkerURSDiscardDropsPendingEntries(t *testing.T) {
	pool := newBlockPool()
	global := &globalURSList{}
	w := newWorkerURS(pool, global)

	w.record(MarkClosureEntry(ClosurePtr(8), 0, false))
	w.Discard()

	assert.Equal(t, 0, w.PendingLocal())
	assert.False(t, global.nonEmpty())
}

func TestGlobalURSListDrainEmptiesList(t *testing.T) {
	pool := newBlockPool()
	global := &globalURSList{}
	w := newWorkerURS(pool, global)
	w.record(MarkClosureEntry(ClosurePtr(8), 0, false))
	w.flushLocal()

	require.True(t, global.nonEmpty())
	chain := global.drain()
	require.NotNil(t, chain)
	assert.False(t, global.nonEmpty())
}

func TestBarrierStateEnableDisable(t *testing.T) {
	var b barrierState
	assert.False(t, b.isEnabled())
	b.enable()
	assert.True(t, b.isEnabled())
	b.disable()
	assert.False(t, b.isEnabled())
}
