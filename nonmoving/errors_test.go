package nonmoving

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCorruptionErrorMessage(t *testing.T) {
	err := &CorruptionError{Reason: "bad info pointer", Pointer: ClosurePtr(0x1000), Kind: KindConstr}
	assert.Contains(t, err.Error(), "bad info pointer")
	assert.Contains(t, err.Error(), "0x1000")
}

func TestAssertInvariantPanicsOnFalseCondition(t *testing.T) {
	c := &Collector{cfg: Config{DebugAssertions: true}, log: zap.NewNop()}
	assert.Panics(t, func() {
		c.assertInvariant(false, "should never happen")
	})
}

func TestAssertInvariantNoopOnTrueCondition(t *testing.T) {
	c := &Collector{}
	assert.NotPanics(t, func() {
		c.assertInvariant(true, "fine")
	})
}
