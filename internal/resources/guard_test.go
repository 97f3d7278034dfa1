package resources

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
)

func TestAllowConnectionUnderThreshold(t *testing.T) {
	g := NewGuard(85.0, zerolog.Nop())
	g.cpuPercent.Store(math.Float64bits(10.0))
	if !g.AllowConnection() {
		t.Fatal("expected connection to be allowed under the reject threshold")
	}
}

func TestAllowConnectionAtOrAboveThresholdIsRejected(t *testing.T) {
	g := NewGuard(85.0, zerolog.Nop())
	g.cpuPercent.Store(math.Float64bits(90.0))
	if g.AllowConnection() {
		t.Fatal("expected connection to be rejected at or above the reject threshold")
	}
}

func TestCurrentCPUPercentReflectsStoredValue(t *testing.T) {
	g := NewGuard(85.0, zerolog.Nop())
	g.cpuPercent.Store(math.Float64bits(42.5))
	if got := g.CurrentCPUPercent(); got != 42.5 {
		t.Fatalf("CurrentCPUPercent() = %v, want 42.5", got)
	}
}
