package scanner

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/muselink/muselink/internal/logger"
)

// memoryThrottle slows a scan down when system memory pressure climbs
// past a configured threshold. Probing gopsutil on every file would be
// wasteful, so callers invoke maybePause only every checkEvery files.
type memoryThrottle struct {
	thresholdPct float64
	sleep        time.Duration
	checkEvery   int
	counter      int
}

func newMemoryThrottle(thresholdPct float64, sleep time.Duration, checkEvery int) *memoryThrottle {
	if checkEvery <= 0 {
		checkEvery = 50
	}
	return &memoryThrottle{
		thresholdPct: thresholdPct,
		sleep:        sleep,
		checkEvery:   checkEvery,
	}
}

// maybePause checks memory usage on every Nth call and sleeps when the
// system is under pressure. A failed probe never blocks the scan.
func (t *memoryThrottle) maybePause(ctx context.Context) {
	t.counter++
	if t.counter%t.checkEvery != 0 {
		return
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Debug("Memory probe failed, skipping throttle check", "error", err)
		return
	}
	if vm.UsedPercent < t.thresholdPct {
		return
	}

	logger.Warn("Memory pressure detected, pausing scan",
		"used_percent", vm.UsedPercent, "threshold", t.thresholdPct)
	select {
	case <-time.After(t.sleep):
	case <-ctx.Done():
	}
}
