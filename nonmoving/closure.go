package nonmoving

import "unsafe"

// ClosurePtr is an opaque heap pointer, tagged in its low bits by the
// runtime's own pointer-tagging scheme. The core never interprets tag
// bits; it only strips them before identity or dereference, per spec §3.
type ClosurePtr uintptr

// tagBits is the number of low bits reserved for tags by the embedding
// runtime. It is a parameter of the host runtime, not of this package,
// but a small power of two covers every tagging scheme in the pack.
const tagBits = 3
const tagMask = ClosurePtr(1<<tagBits - 1)

// Untag strips the tag bits, yielding the true heap address.
func (p ClosurePtr) Untag() ClosurePtr { return p &^ tagMask }

// IsTagged reports whether any tag bit is set.
func (p ClosurePtr) IsTagged() bool { return p&tagMask != 0 }

func (p ClosurePtr) ptr() unsafe.Pointer { return unsafe.Pointer(p.Untag()) }

// ArrayPtr is an opaque pointer to a pointer-array object
// (MUT_ARR_PTRS_*/SMALL_MUT_ARR_PTRS_*).
type ArrayPtr uintptr

func (a ArrayPtr) Untag() ArrayPtr { return a &^ ArrayPtr(tagMask) }

// SlotAddress records the memory slot a pointer was read from. It is
// carried by MarkClosure entries for the benefit of a future selector
// shortcut optimization (spec §9, Open Question 1); this core threads it
// through but never consumes it.
type SlotAddress uintptr

// ClosureKind is the info-table type tag dispatched on by the tracer
// (spec §4.4). Naming follows the GHC closure-kind catalogue the spec
// is drawn from.
type ClosureKind uint8

const (
	KindInvalid ClosureKind = iota

	// Static closures with no pointer payload needing linkage.
	KindConstr01
	KindConstr02
	KindConstrNoCAF

	// Static closures with a link field and (usually) a payload.
	KindThunkStatic
	KindFunStatic
	KindIndStatic

	// Heap-allocated closures.
	KindConstr
	KindFun
	KindThunk
	KindInd
	KindBlackhole
	KindBCO
	KindMutVar
	KindMutVarClean
	KindMVarClean
	KindMVarDirty
	KindTVar
	KindBlockingQueue
	KindThunkSelector
	KindAPStack
	KindPAP
	KindAP
	KindArrWords
	KindMutArrPtrs
	KindSmallMutArrPtrs
	KindTSO
	KindStack
	KindMutPrim
	KindTRecChunk

	// Transient marker observed while a thunk is being updated.
	KindWhitehole
)

// IsStatic reports whether k denotes a statically-allocated closure
// (spec §4.4 step 2). Static closures live outside the nonmoving heap's
// segments and are claimed via the link-field CAS protocol instead of
// mark bits.
func (k ClosureKind) IsStatic() bool {
	switch k {
	case KindConstr01, KindConstr02, KindConstrNoCAF,
		KindThunkStatic, KindFunStatic, KindIndStatic:
		return true
	default:
		return false
	}
}

// HasStaticLink reports whether k carries the two-bit static-flag link
// field that must be CAS-claimed before tracing (spec §3, "Static-
// closure link field"). The CONSTR_0_* / NOCAF kinds have nothing to
// link — there is no payload to enumerate — so they are static but
// linkless.
func (k ClosureKind) HasStaticLink() bool {
	switch k {
	case KindThunkStatic, KindFunStatic, KindIndStatic:
		return true
	default:
		return false
	}
}

// PtrField is one pointer-typed field slot in a closure's payload.
type PtrField struct {
	Slot unsafe.Pointer // address of the field, for read/CAS
	Val  ClosurePtr     // the pointer value observed in the field
}

// InfoTable is the per-closure-type metadata the tracer dispatches on.
// It is the typed descriptor spec §1 says this core "consumes" from the
// object-layout component rather than owns.
type InfoTable struct {
	Kind ClosureKind

	// SRT is the static reference table closure for FUN/THUNK info
	// tables, or nil if there is none.
	SRT ClosurePtr

	// StaticLink is the address of the two-bit claim-token link field
	// for static closures with HasStaticLink() == true.
	StaticLink *uint64

	// PtrArgBitmap decodes which words of a PAP/AP/BCO/frame argument
	// block are pointers; see stackwalk.go. Bit i set means word i is a
	// pointer. Nil for kinds that enumerate fields structurally instead
	// (e.g. KindConstr uses PtrFields directly).
	PtrArgBitmap []uint64
	ArgWords     int

	// FunKind selects how PtrArgBitmap was packed by the embedding
	// runtime for KindPAP/KindAP/KindAPStack closures, mirroring
	// fun_info.fun_type in mark_closure's PAP/AP case (spec §4.4, "PAP /
	// AP payload"). Unused by kinds that do not go through tracePAPArgs.
	FunKind FunArgKind

	// BlockWords is the closure's total allocation size in words,
	// credited against the segment's live-word counter during mark
	// (spec §4.4, "accumulate live_words") — the actual block size the
	// real system sizes via closure_sizeW(), not a pointer-field count.
	// Distinct from ArgWords, which sizes PAP/AP argument payloads.
	// Falls back to the number of enumerated pointer fields when unset.
	BlockWords int
}

// Closure is the minimal view over a heap object the tracer needs:
// its own info table and an enumeration of its pointer-typed fields.
// Concrete embedding runtimes implement this however their object
// layout works; the core only calls these two methods.
type Closure interface {
	InfoTable() *InfoTable
	// PtrFields returns the pointer-valued fields to enqueue for
	// structurally-typed closures. PAP/AP/AP_STACK closures instead
	// implement the optional papClosure capability (AsPAP), and stack
	// frames carry their own raw words/bitmap directly on StackFrame;
	// the tracer decodes both against InfoTable().PtrArgBitmap itself
	// rather than asking the closure to pre-decode.
	PtrFields() []PtrField
}
