// Package segheap is a reference implementation of the
// nonmoving/heapiface collaborator interfaces: a segmented small-object
// heap and a large-object set, in the style of the teacher's per-P
// mcache/mspan split (mcache.go), adapted to the fixed equal-sized-block
// segment layout spec §3/§4.3 describes instead of the teacher's
// size-class span allocator.
//
// This package exists for tests and the cmd/marksim scenario runner; a
// production embedding would back Heap with its own real segment
// allocator and only need to satisfy heapiface.Heap/LargeObjectSet.
package segheap

import (
	"sync"
	"unsafe"

	"github.com/nonmoving-rts/satbmark/nonmoving/heapiface"
)

// Segment is a fixed-capacity arena of equal-sized blocks, mirroring
// spec §3's "nonmoving segment": a base address, a block size, a
// snapshot boundary (nextFreeSnap) and one mark byte per block.
type Segment struct {
	mu sync.Mutex

	id        heapiface.SegmentID
	blockSize uintptr
	base      uintptr
	blocks    []unsafe.Pointer // live block base addresses, index == BlockIndex
	marks     []uint8
	liveWords []uintptr

	// nextFreeSnap is the block index one past the last block that
	// existed when the current cycle's snapshot was taken (spec §3).
	nextFreeSnap heapiface.BlockIndex
}

// NewSegment allocates a segment with capacity blocks of blockSize
// bytes each. The blocks themselves are not materialised here — callers
// register live block addresses with Alloc as the mutator allocates.
func NewSegment(id heapiface.SegmentID, blockSize uintptr, capacity int) *Segment {
	return &Segment{
		id:        id,
		blockSize: blockSize,
		blocks:    make([]unsafe.Pointer, 0, capacity),
		marks:     make([]uint8, 0, capacity),
		liveWords: make([]uintptr, 0, capacity),
	}
}

// Alloc registers a new live block at address p, returning its index.
func (s *Segment) Alloc(p unsafe.Pointer) heapiface.BlockIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := heapiface.BlockIndex(len(s.blocks))
	s.blocks = append(s.blocks, p)
	s.marks = append(s.marks, 0)
	s.liveWords = append(s.liveWords, 0)
	return idx
}

// TakeSnapshot records the current block count as the boundary between
// "existed before the snapshot" and "allocated since" (spec §3,
// "Snapshot lists" / next_free_snap).
func (s *Segment) TakeSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFreeSnap = heapiface.BlockIndex(len(s.blocks))
}

// Heap is a reference heapiface.Heap backed by an address->(segment,
// index) index plus a generation test, in place of the teacher's
// per-span arena lookup.
type Heap struct {
	mu       sync.RWMutex
	segments map[heapiface.SegmentID]*Segment
	index    map[uintptr]located

	// oldest reports whether p belongs to the oldest generation this
	// collector is responsible for. Tests and marksim set this directly;
	// a real embedding would consult its generational heap layout.
	Oldest func(p unsafe.Pointer) bool
}

type located struct {
	seg heapiface.SegmentID
	idx heapiface.BlockIndex
}

// NewHeap constructs an empty reference heap. oldest classifies pointers
// into the oldest generation; if nil, every pointer is treated as
// belonging to the oldest generation (convenient for single-generation
// test fixtures).
func NewHeap(oldest func(p unsafe.Pointer) bool) *Heap {
	if oldest == nil {
		oldest = func(unsafe.Pointer) bool { return true }
	}
	return &Heap{
		segments: make(map[heapiface.SegmentID]*Segment),
		index:    make(map[uintptr]located),
		Oldest:   oldest,
	}
}

// AddSegment registers seg so its blocks become reachable via Locate.
func (h *Heap) AddSegment(seg *Segment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.segments[seg.id] = seg
	for idx, p := range seg.blocks {
		h.index[uintptr(p)] = located{seg: seg.id, idx: heapiface.BlockIndex(idx)}
	}
}

// Register indexes a single already-allocated block address without
// requiring the whole segment to be re-scanned; call after Segment.Alloc.
func (h *Heap) Register(seg heapiface.SegmentID, idx heapiface.BlockIndex, p unsafe.Pointer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index[uintptr(p)] = located{seg: seg, idx: idx}
}

func (h *Heap) Locate(p unsafe.Pointer) (heapiface.SegmentID, heapiface.BlockIndex, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	loc, ok := h.index[uintptr(p)]
	if !ok {
		return 0, 0, false
	}
	return loc.seg, loc.idx, true
}

func (h *Heap) GetMark(seg heapiface.SegmentID, idx heapiface.BlockIndex) uint8 {
	s := h.segment(seg)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marks[idx]
}

func (h *Heap) SetMark(seg heapiface.SegmentID, idx heapiface.BlockIndex, epoch uint8, liveWords uintptr) {
	s := h.segment(seg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[idx] = epoch
	s.liveWords[idx] = liveWords
}

func (h *Heap) NextFreeSnap(seg heapiface.SegmentID) heapiface.BlockIndex {
	s := h.segment(seg)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextFreeSnap
}

func (h *Heap) InOldestGeneration(p unsafe.Pointer) bool {
	return h.Oldest(p)
}

func (h *Heap) segment(id heapiface.SegmentID) *Segment {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.segments[id]
	if !ok {
		panic("segheap: unknown segment id")
	}
	return s
}

// largeRecord tracks one large object's snapshot/marked flags (spec §3,
// "Large-object descriptor").
type largeRecord struct {
	inSnapshot bool
	marked     bool
}

// LargeObjectSet is a reference heapiface.LargeObjectSet backed by a
// plain map, in place of the teacher's intrusive doubly-linked
// bdescr/mblock lists.
type LargeObjectSet struct {
	mu      sync.Mutex
	objects map[uintptr]*largeRecord
}

func NewLargeObjectSet() *LargeObjectSet {
	return &LargeObjectSet{objects: make(map[uintptr]*largeRecord)}
}

// Add registers p as a large object, optionally already part of this
// cycle's snapshot.
func (l *LargeObjectSet) Add(p unsafe.Pointer, inSnapshot bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.objects[uintptr(p)] = &largeRecord{inSnapshot: inSnapshot}
}

func (l *LargeObjectSet) IsLarge(p unsafe.Pointer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.objects[uintptr(p)]
	return ok
}

func (l *LargeObjectSet) InSnapshot(p unsafe.Pointer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.objects[uintptr(p)]
	return ok && r.inSnapshot
}

func (l *LargeObjectSet) Marked(p unsafe.Pointer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.objects[uintptr(p)]
	return ok && r.marked
}

// Mark is idempotent per heapiface.LargeObjectSet's contract. Callers
// must already hold Lock(), matching the teacher's convention of
// documenting but not internally re-acquiring locks the caller owns.
func (l *LargeObjectSet) Mark(p unsafe.Pointer) {
	r, ok := l.objects[uintptr(p)]
	if !ok {
		return
	}
	r.marked = true
}

func (l *LargeObjectSet) Lock() heapiface.Locker { return &l.mu }

var (
	_ heapiface.Heap           = (*Heap)(nil)
	_ heapiface.LargeObjectSet = (*LargeObjectSet)(nil)
)
