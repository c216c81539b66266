package nonmoving

import "unsafe"

// FrameKind dispatches stack-frame tracing (spec §4.4, "Stack
// tracing").
type FrameKind uint8

const (
	FrameUpdate FrameKind = iota
	FrameSmallBitmap
	FrameRetBCO
	FrameRetBig
	FrameRetFun
)

// StackFrame is one activation record, walked from sp up to
// stack+stack_size (spec §4.4).
type StackFrame struct {
	Kind FrameKind

	// FrameUpdate: the updatee slot.
	Updatee ClosurePtr

	// FrameSmallBitmap / FrameRetBCO / FrameRetBig: pointer slots plus
	// the SRT to follow afterward.
	Slots []PtrField
	SRT   ClosurePtr

	// FrameRetFun: the function closure plus its argument bitmap. Base is
	// the address of ArgWords[0], used to recover slot addresses when
	// decoding; ArgWords holds the raw payload words, pointer or not.
	Fun       ClosurePtr
	Base      unsafe.Pointer
	ArgWords  []uintptr
	ArgBitmap []uint64
}

// FunArgKind dispatches PAP/AP payload decoding (spec §4.4, "PAP / AP
// payload").
type FunArgKind uint8

const (
	ArgGen FunArgKind = iota
	ArgGenBig
	ArgBCO
	ArgCanned
)

// decodeBitmapFields extracts pointer-valued words from a raw payload
// using a bit-per-word argument bitmap: bit i set means word i holds a
// pointer. base is the address of word 0. Shared by PAP/AP decoding and
// RET_FUN stack frames.
func decodeBitmapFields(base unsafe.Pointer, words []uintptr, bitmap []uint64) []PtrField {
	var out []PtrField
	for i, w := range words {
		wordIdx := i / 64
		bitIdx := uint(i % 64)
		if wordIdx >= len(bitmap) {
			break
		}
		if bitmap[wordIdx]&(1<<bitIdx) == 0 {
			continue
		}
		out = append(out, PtrField{
			Slot: unsafe.Add(base, i*int(unsafe.Sizeof(uintptr(0)))),
			Val:  ClosurePtr(w),
		})
	}
	return out
}

// PAPPayload is the raw argument payload of a PAP/AP/AP_STACK closure:
// the underlying function closure plus the raw argument words, decoded
// against InfoTable.PtrArgBitmap per InfoTable.FunKind rather than
// structurally enumerated (spec §4.4, "PAP / AP payload").
type PAPPayload struct {
	Fun   ClosurePtr
	Base  unsafe.Pointer
	Words []uintptr
}

// papClosure is the optional capability a PAP/AP/AP_STACK Closure
// implements so the tracer can reach its raw argument words instead of
// a pre-enumerated PtrFields list.
type papClosure interface {
	Closure
	AsPAP() *PAPPayload
}

// tracePAPArgs decodes a PAP/AP/AP_STACK payload's pointer-valued
// argument words, dispatching on fun_info.fun_type the way
// mark_closure's PAP/AP case does (spec §4.4, "PAP / AP payload"). The
// four encodings differ only in how the embedding runtime packs
// PtrArgBitmap before handing it to this core (inline small bitmap,
// out-of-line large bitmap, BCO bitmap, or a canned table lookup); once
// normalised to a flat bitmap here, decoding is identical across all
// four, so the switch exists to reject a kind this core doesn't know
// about rather than to branch on behavior.
func (c *Collector) tracePAPArgs(w *WorkerURS, payload *PAPPayload, it *InfoTable) {
	switch it.FunKind {
	case ArgGen, ArgGenBig, ArgBCO, ArgCanned:
		for _, f := range decodeBitmapFields(payload.Base, payload.Words, it.PtrArgBitmap) {
			c.pushField(w, f)
		}
	default:
		corrupt("unknown PAP/AP argument kind", payload.Fun, it.Kind)
	}
}

// traceStackInline walks st's activation records and pushes every
// reachable pointer into w's URS, per spec §4.4 "Stack tracing". Called
// only by the barrier's eager inline path (PushStack) or by the
// closure tracer's KindStack case after a successful claim.
func (c *Collector) traceStackInline(w *WorkerURS, st *Stack) {
	for _, fr := range st.Frames {
		switch fr.Kind {
		case FrameUpdate:
			if fr.Updatee != 0 {
				w.record(MarkClosureEntry(fr.Updatee.Untag(), 0, false))
			}
		case FrameSmallBitmap, FrameRetBCO:
			for _, f := range fr.Slots {
				if f.Val == 0 {
					continue
				}
				w.record(MarkClosureEntry(f.Val.Untag(), SlotAddress(uintptr(f.Slot)), true))
			}
			if fr.SRT != 0 {
				w.record(MarkClosureEntry(fr.SRT.Untag(), 0, false))
			}
		case FrameRetBig:
			for _, f := range fr.Slots {
				if f.Val == 0 {
					continue
				}
				w.record(MarkClosureEntry(f.Val.Untag(), 0, false))
			}
			if fr.SRT != 0 {
				w.record(MarkClosureEntry(fr.SRT.Untag(), 0, false))
			}
		case FrameRetFun:
			if fr.Fun != 0 {
				w.record(MarkClosureEntry(fr.Fun.Untag(), 0, false))
			}
			for _, f := range decodeBitmapFields(fr.Base, fr.ArgWords, fr.ArgBitmap) {
				if f.Val == 0 {
					continue
				}
				w.record(MarkClosureEntry(f.Val.Untag(), SlotAddress(uintptr(f.Slot)), true))
			}
		default:
			corrupt("unknown stack frame kind", st.Closure, KindStack)
		}
	}
}
