package nonmoving

import "go.uber.org/zap"

// Config parameterises a Collector, standing in for the spec's
// compile-time flags (§6: THREADED, DEBUG, PARALLEL_GC) as run-time
// fields, since this is a library rather than a recompiled runtime.
// Shape grounded on tangzhangming/nova's ConcurrentGCConfig.
type Config struct {
	// NumWorkers is the number of mutator-owned WorkerURS instances the
	// collector expects to coordinate during flush (spec §4.6).
	NumWorkers int

	// DebugAssertions enables verbose logging on invariant-check
	// failures. Invariant checks themselves always run; see errors.go.
	DebugAssertions bool

	// Logger receives structured diagnostics from the flush coordinator
	// and from failed invariant assertions. Never invoked from the
	// per-worker barrier hot path. Defaults to zap.NewNop() if nil.
	Logger *zap.Logger
}

func (cfg *Config) logger() *zap.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return zap.NewNop()
}

func (cfg *Config) numWorkers() int {
	if cfg.NumWorkers <= 0 {
		return 1
	}
	return cfg.NumWorkers
}
