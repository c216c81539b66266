package nonmoving

import "unsafe"

// IsAlive answers the general liveness query spec §4.7 exposes to sweep
// and weak/thread reconciliation. p must already be untagged.
func (c *Collector) IsAlive(p unsafe.Pointer) bool {
	if !c.heap.InOldestGeneration(p) {
		return true
	}
	if c.large.IsLarge(p) {
		if !c.large.InSnapshot(p) {
			return true
		}
		return c.large.Marked(p)
	}

	marked, postSnapshot, _, _, ok := c.registry.smallMarked(p)
	if !ok {
		// Not located in any segment: a static closure, always alive.
		return true
	}
	if postSnapshot {
		return marked || c.isUnmarked(p)
	}
	return marked
}

// isUnmarked reports the small-object "never touched" condition (mark
// cell == 0), used only by the post-snapshot branch of IsAlive.
func (c *Collector) isUnmarked(p unsafe.Pointer) bool {
	seg, idx, ok := c.heap.Locate(p)
	if !ok {
		return true
	}
	return c.heap.GetMark(seg, idx) == 0
}

// IsNowAlive is IsAlive specialised to pointers already known to be in
// the snapshot (spec §4.7): the post-snapshot branch does not apply.
func (c *Collector) IsNowAlive(p unsafe.Pointer) bool {
	if !c.heap.InOldestGeneration(p) {
		return true
	}
	if c.large.IsLarge(p) {
		return !c.large.InSnapshot(p) || c.large.Marked(p)
	}
	marked, _, _, _, ok := c.registry.smallMarked(p)
	if !ok {
		return true
	}
	return marked
}
