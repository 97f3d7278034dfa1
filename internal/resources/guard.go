// Package resources is the admission guard in front of SinkronRoot's
// Connect path: it rejects new websocket upgrades when the host is
// already under CPU pressure, generalized from the teacher's
// ResourceGuard/cgroup.go (originally gating Kafka consumption) into an
// ambient safety valve for connection admission.
package resources

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Guard samples host-wide CPU usage (all CPUs combined) on an interval
// and exposes a cheap, lock-free admission check.
type Guard struct {
	rejectThreshold float64
	memoryLimit     int64
	logger          zerolog.Logger

	cpuPercent atomic.Uint64 // bits of a float64, updated by StartMonitoring
}

func NewGuard(rejectThreshold float64, logger zerolog.Logger) *Guard {
	return &Guard{
		rejectThreshold: rejectThreshold,
		memoryLimit:     memoryLimit(),
		logger:          logger,
	}
}

// MemoryLimit returns the detected container memory limit, or 0 if none
// was found.
func (g *Guard) MemoryLimit() int64 {
	return g.memoryLimit
}

// StartMonitoring polls host/container CPU usage every interval until ctx
// is cancelled. Run once at startup as a background goroutine.
func (g *Guard) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			percents, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil || len(percents) == 0 {
				continue
			}
			g.cpuPercent.Store(math.Float64bits(percents[0]))
		case <-ctx.Done():
			return
		}
	}
}

// AllowConnection reports whether a new websocket connection may be
// admitted given current CPU pressure.
func (g *Guard) AllowConnection() bool {
	current := g.CurrentCPUPercent()
	if current >= g.rejectThreshold {
		g.logger.Warn().
			Float64("cpu_percent", current).
			Float64("reject_threshold", g.rejectThreshold).
			Msg("rejecting connection: cpu pressure")
		return false
	}
	return true
}

func (g *Guard) CurrentCPUPercent() float64 {
	return math.Float64frombits(g.cpuPercent.Load())
}
