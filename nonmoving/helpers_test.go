package nonmoving

import (
	"unsafe"

	"github.com/nonmoving-rts/satbmark/internal/segheap"
)

// fixture is the minimal Closure implementation the package's own unit
// tests build synthetic heap graphs from.
type fixture struct {
	id         ClosurePtr
	kind       ClosureKind
	fields     []ClosurePtr
	staticLink *uint64

	tso      *TSO
	stack    *Stack
	trecHead *TRecChunk

	pap       *PAPPayload
	funKind   FunArgKind
	argBitmap []uint64
}

func (f *fixture) InfoTable() *InfoTable {
	return &InfoTable{
		Kind:         f.kind,
		StaticLink:   f.staticLink,
		ArgWords:     len(f.fields),
		FunKind:      f.funKind,
		PtrArgBitmap: f.argBitmap,
	}
}

func (f *fixture) AsPAP() *PAPPayload { return f.pap }

func (f *fixture) PtrFields() []PtrField {
	out := make([]PtrField, 0, len(f.fields))
	for _, v := range f.fields {
		out = append(out, PtrField{Val: v})
	}
	return out
}

func (f *fixture) AsTSO() *TSO             { return f.tso }
func (f *fixture) AsStack() *Stack         { return f.stack }
func (f *fixture) AsTRecChunk() *TRecChunk { return f.trecHead }

func fixturePtr(id ClosurePtr) unsafe.Pointer { return unsafe.Pointer(uintptr(id.Untag())) }

// testHeap bundles a segheap.Heap/LargeObjectSet pair and a fixture
// registry, so each test builds its own small closed world.
type testHeap struct {
	heap  *segheap.Heap
	large *segheap.LargeObjectSet
	seg   *segheap.Segment
	objs  map[ClosurePtr]*fixture
	next  uintptr
}

func newTestHeap() *testHeap {
	h := segheap.NewHeap(nil)
	seg := segheap.NewSegment(1, 16, 256)
	h.AddSegment(seg)
	return &testHeap{
		heap:  h,
		large: segheap.NewLargeObjectSet(),
		seg:   seg,
		objs:  make(map[ClosurePtr]*fixture),
		next:  0x1000,
	}
}

func (t *testHeap) alloc(kind ClosureKind, fields ...ClosurePtr) ClosurePtr {
	id := ClosurePtr(t.next)
	t.next += 16
	f := &fixture{id: id, kind: kind, fields: fields}
	t.objs[id] = f
	idx := t.seg.Alloc(fixturePtr(id))
	t.heap.Register(1, idx, fixturePtr(id))
	return id
}

func (t *testHeap) allocStatic(kind ClosureKind, fields ...ClosurePtr) ClosurePtr {
	id := ClosurePtr(t.next)
	t.next += 16
	f := &fixture{id: id, kind: kind, fields: fields}
	if kind.HasStaticLink() {
		f.staticLink = new(uint64)
	}
	t.objs[id] = f
	return id
}

func (t *testHeap) resolve(p ClosurePtr) Closure {
	f, ok := t.objs[p.Untag()]
	if !ok {
		return nil
	}
	return f
}

func (t *testHeap) newCollector(cfg Config) *Collector {
	return NewCollector(cfg, t.heap, t.large)
}
