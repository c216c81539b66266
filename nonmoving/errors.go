package nonmoving

import (
	"fmt"

	"go.uber.org/zap"
)

// CorruptionError is the typed panic this core raises on structural
// corruption (spec §7: unknown closure type, invalid info pointer, a
// forwarding pointer encountered in the nonmoving heap, strange block
// flags). The real runtime calls its own throw() to abort the process;
// as an ordinary library this package cannot reach into the process
// abort path, so it panics with a value callers are expected to let
// propagate, per spec: "no recoverable errors cross the mark phase
// boundary".
type CorruptionError struct {
	Reason  string
	Pointer ClosurePtr
	Kind    ClosureKind
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("nonmoving: corruption: %s (ptr=%#x kind=%d)", e.Reason, uintptr(e.Pointer), e.Kind)
}

// corrupt raises a CorruptionError. Named to read like the teacher's
// throw() call sites.
func corrupt(reason string, p ClosurePtr, kind ClosureKind) {
	panic(&CorruptionError{Reason: reason, Pointer: p, Kind: kind})
}

// assertInvariant panics with a CorruptionError if cond is false.
// Debug-only assertions (spec §7) are gated on Config.DebugAssertions:
// under release configuration the check still runs (a library has no
// separate debug build to compile it out of) but is silent on success
// and does not pay for a log call.
func (c *Collector) assertInvariant(cond bool, reason string) {
	if cond {
		return
	}
	if c.cfg.DebugAssertions && c.log != nil {
		c.log.Error("assertion failed", zap.String("reason", reason))
	}
	panic(&CorruptionError{Reason: "assertion failed: " + reason})
}
