package nonmoving

import "sync/atomic"

// loadUint64 and casUint64 operate on the raw *uint64 static-link field
// exposed by InfoTable.StaticLink. This is the one place this package
// reaches for stdlib sync/atomic directly instead of go.uber.org/atomic:
// the link field's address is owned by the embedding runtime's object
// layout (spec §3), not by a struct field this package declares, so
// there is no place to hang a typed atomic.Uint64 wrapper — the pointer
// itself is the only handle available.
func loadUint64(p *uint64) uint64 {
	return atomic.LoadUint64(p)
}

func casUint64(p *uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(p, old, new)
}
