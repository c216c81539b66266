package nonmoving

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorkerController simulates worker stop/release for flush tests
// without a real scheduler: every worker is always reachable (never
// blocked in a foreign call).
type fakeWorkerController struct {
	stopped  []bool
	released []bool
}

func newFakeWorkerController(n int) *fakeWorkerController {
	return &fakeWorkerController{stopped: make([]bool, n), released: make([]bool, n)}
}

func (f *fakeWorkerController) StopWorker(ctx context.Context, i int) (bool, error) {
	f.stopped[i] = true
	return false, nil
}

func (f *fakeWorkerController) ReleaseWorker(i int) {
	f.released[i] = true
}

func TestBeginFlushStopsEveryWorker(t *testing.T) {
	w := newTestHeap()
	c := w.newCollector(Config{NumWorkers: 3})
	c.AdvanceEpoch()

	wc := newFakeWorkerController(3)
	require.NoError(t, c.BeginFlush(context.Background(), wc))

	for i, stopped := range wc.stopped {
		assert.True(t, stopped, "worker %d not stopped", i)
	}
}

func TestFinishFlushDiscardsAndReleases(t *testing.T) {
	w := newTestHeap()
	a := w.alloc(KindConstr)
	c := w.newCollector(Config{NumWorkers: 1})
	c.AdvanceEpoch()
	c.EnableBarrier()

	worker := c.Worker(0)
	c.PushClosure(worker, a)
	require.Equal(t, 1, worker.PendingLocal())

	wc := newFakeWorkerController(1)
	c.FinishFlush(wc)

	assert.Equal(t, 0, worker.PendingLocal())
	assert.True(t, wc.released[0])
}

// fakeBlockingWorkerController reports every worker as blocked in a
// foreign call, exercising BeginFlush's forced-flush path.
type fakeBlockingWorkerController struct{}

func (fakeBlockingWorkerController) StopWorker(ctx context.Context, i int) (bool, error) {
	return true, nil
}
func (fakeBlockingWorkerController) ReleaseWorker(i int) {}

func TestBeginFlushForcesBlockedWorkers(t *testing.T) {
	w := newTestHeap()
	a := w.alloc(KindConstr)
	c := w.newCollector(Config{NumWorkers: 1})
	c.AdvanceEpoch()
	c.EnableBarrier()

	worker := c.Worker(0)
	c.PushClosure(worker, a)
	require.Equal(t, 1, worker.PendingLocal())

	require.NoError(t, c.BeginFlush(context.Background(), fakeBlockingWorkerController{}))
	assert.Equal(t, 0, worker.PendingLocal())
	assert.True(t, c.global.nonEmpty())
}
