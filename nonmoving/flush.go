package nonmoving

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WorkerController is how the flush coordinator reaches mutator
// threads: stopping them, learning whether a worker is currently
// unreachable via the normal handshake (blocked in a foreign call), and
// releasing them afterward. Spec §6 calls these out as consumed from
// "worker and scheduler APIs" (stop_all_workers_with, release_all_workers).
type WorkerController interface {
	// StopWorker blocks until worker i has reached a safe point and
	// stopped, or returns immediately if it cannot be reached because
	// it is blocked in a foreign call — the second return value
	// reports which happened.
	StopWorker(ctx context.Context, i int) (blockedInForeignCall bool, err error)

	// ReleaseWorker resumes worker i after a stop.
	ReleaseWorker(i int)
}

// BeginFlush implements spec §4.6 step 1 ("begin_flush"): stop every
// worker with reason FLUSH_UPD_REM_SET, and for any worker unreachable
// via the normal stop (blocked in a foreign call) forcibly transfer its
// URS instead of waiting on it — the original's own supplement to the
// distilled spec (SPEC_FULL.md §12).
func (c *Collector) BeginFlush(ctx context.Context, wc WorkerController) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range c.workers {
		i := i
		g.Go(func() error {
			blocked, err := wc.StopWorker(ctx, i)
			if err != nil {
				return err
			}
			if blocked {
				c.log.Debug("forcing flush of worker blocked in foreign call", zap.Int("worker", i))
				c.workers[i].flushLocal()
			}
			return nil
		})
	}
	return g.Wait()
}

// WaitForFlush is the coordinator's check for spec §4.6 steps 2-3:
// each worker, on returning from the stop request, flushes its URS to
// the global list. Workers that are still runnable call FlushLocal
// themselves; BeginFlush already handled ones that could not reach
// that call.
//
// This core has no scheduler of its own, so it is the caller's job to
// have arranged for each reachable worker's FlushLocal to run (e.g.
// from the safe-point handler BeginFlush's StopWorker triggered) and to
// record that in flushed[i]. WaitForFlush reports whether every entry
// of flushed is true. It does not block or wait: it returns false at
// once if any worker is not yet accounted for, and it keeps no flush
// count or condition variable of its own.
func (c *Collector) WaitForFlush(flushed []bool) bool {
	for _, ok := range flushed {
		if !ok {
			return false
		}
	}
	return true
}

// FlushLocal is the per-worker half of spec §4.6 step 2: transfers
// worker i's URS to the global list. Safe-point handlers call this
// directly for workers BeginFlush could stop normally.
func (c *Collector) FlushLocal(i int) { c.workers[i].flushLocal() }

// FinishFlush implements spec §4.6 step 4: reset every worker's URS
// (discarding entries added during the stop — see SPEC_FULL.md §9,
// "Resurrection re-entrancy"), and release every worker.
func (c *Collector) FinishFlush(wc WorkerController) {
	for i, w := range c.workers {
		w.Discard()
		wc.ReleaseWorker(i)
	}
}

// RunToCompletion drives the mark loop, then performs one flush round,
// then makes one last pass, concluding when the queue and global URS
// list are both empty (spec §4.6, "Post-flush, the mark loop makes one
// last pass..."). This is a convenience wrapper; callers needing finer
// control over the flush handshake should call BeginFlush/FlushLocal/
// FinishFlush directly alongside their own call to Mark.
func (c *Collector) RunToCompletion(ctx context.Context, wc WorkerController, resolve ClosureResolver, arrayElem func(ArrayPtr, int) ClosurePtr, arrayLen func(ArrayPtr) int) error {
	c.Mark(resolve, arrayElem, arrayLen)

	if err := c.BeginFlush(ctx, wc); err != nil {
		return err
	}
	flushed := make([]bool, len(c.workers))
	for i := range c.workers {
		// Workers not forced by BeginFlush flush themselves once
		// stopped; in this library's synchronous model that has
		// already happened by the time StopWorker returned, so every
		// slot is accounted for here.
		flushed[i] = true
	}
	c.WaitForFlush(flushed)
	c.FinishFlush(wc)

	c.Mark(resolve, arrayElem, arrayLen)
	return nil
}
