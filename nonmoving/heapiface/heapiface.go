// Package heapiface declares the contract between the concurrent mark
// core and the nonmoving heap's segment/block-index layer.
//
// The segment allocator, the large-object list bookkeeping and the
// object-layout/info-table metadata are explicitly out of scope for the
// mark core (spec §1): it consumes them only through the interfaces in
// this package. A reference implementation lives in
// github.com/nonmoving-rts/satbmark/internal/segheap.
package heapiface

import "unsafe"

// SegmentID identifies a nonmoving segment holding equal-sized blocks.
type SegmentID uintptr

// BlockIndex is a block's position within its segment.
type BlockIndex uint32

// Heap is the external "segment + block index -> mark byte" collaborator.
// All methods must be safe to call concurrently with mutators and with
// the collector thread; the mark core never holds the heap's own locks
// across a barrier call.
type Heap interface {
	// Locate returns the segment and block index that contain p, and
	// reports false if p does not live in a small nonmoving segment
	// managed by this heap (e.g. it is a large object or belongs to a
	// younger generation).
	Locate(p unsafe.Pointer) (seg SegmentID, idx BlockIndex, ok bool)

	// GetMark returns the mark cell's current value for (seg, idx).
	// A value of 0 means "never marked"; any other value is an epoch
	// that was current on some past cycle.
	GetMark(seg SegmentID, idx BlockIndex) uint8

	// SetMark stamps the mark cell for (seg, idx) with epoch and
	// accumulates liveWords against the segment's live-word counter.
	SetMark(seg SegmentID, idx BlockIndex, epoch uint8, liveWords uintptr)

	// NextFreeSnap returns the block index one past the last block that
	// existed in seg when the snapshot was taken. Blocks at or above
	// this index were allocated after the snapshot.
	NextFreeSnap(seg SegmentID) BlockIndex

	// InOldestGeneration reports whether p belongs to the generation
	// this collector is responsible for tracing. Pointers outside the
	// oldest generation are the younger moving collector's concern and
	// must be discarded by the barrier and the tracer.
	InOldestGeneration(p unsafe.Pointer) bool
}

// LargeObjectSet is the external collaborator for the large-object
// doubly-linked lists (spec §3, "Large-object descriptor").
type LargeObjectSet interface {
	// IsLarge reports whether p is a large-object block at all, as
	// opposed to a small in-segment allocation. Large-object
	// descriptors carry their own NONMOVING/LARGE flags in the real
	// system; here that classification is exposed directly so the
	// tracer and liveness oracle can dispatch on it.
	IsLarge(p unsafe.Pointer) bool

	// InSnapshot reports whether the large object at p was adopted into
	// the snapshot at the start of the current major cycle
	// (NONMOVING_SWEEPING in spec terms).
	InSnapshot(p unsafe.Pointer) bool

	// Marked reports whether p's MARKED flag is set. Must be called
	// while holding the mutex returned by Lock, or immediately after a
	// call that established the invariant externally (e.g. in tests).
	Marked(p unsafe.Pointer) bool

	// Mark moves p from the large-objects list to the marked-large-
	// objects list, sets its MARKED flag and adjusts block counts. It
	// is idempotent: marking an already-marked object is a no-op.
	// Callers must hold the lock returned by Lock.
	Mark(p unsafe.Pointer)

	// Lock returns the mutex serializing all large-object list
	// transitions, per spec §5 ("large_objects_mutex is a leaf").
	Lock() Locker
}

// Locker is the minimal mutex contract the mark core needs; satisfied by
// *sync.Mutex.
type Locker interface {
	Lock()
	Unlock()
}
