// Package divergence compares the currently-calculated ideal grid against
// the persisted one and decides when a side needs a full resize, the way
// the circuit breaker compared running PnL against configured thresholds
// and tripped with a cooldown.
package divergence

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridmm/internal/core"
)

// Detector tracks, per side, whether a divergence resize is currently
// cooling down, and guards against a resize re-triggering its own rotations.
type Detector struct {
	threshold decimal.Decimal
	cooldown  time.Duration

	mu          sync.Mutex
	lastTripped map[core.GridSlotSide]time.Time
	correcting  bool // _runningDivergenceCorrections reentrancy guard
}

// New builds a Detector. threshold is compared against the side's metric
// (sum of absolute per-slot size differences); cooldown suppresses repeat
// trips on the same side.
func New(threshold decimal.Decimal, cooldown time.Duration) *Detector {
	return &Detector{
		threshold:   threshold,
		cooldown:    cooldown,
		lastTripped: make(map[core.GridSlotSide]time.Time),
	}
}

// Metric computes the divergence metric for one side: the sum of absolute
// differences between the ideal (recomputed) size and the persisted size of
// each slot, paired by index. Callers must pass slices in the same slot
// order on both sides.
func Metric(ideal, persisted []decimal.Decimal) decimal.Decimal {
	n := len(ideal)
	if len(persisted) < n {
		n = len(persisted)
	}
	total := decimal.Zero
	for i := 0; i < n; i++ {
		total = total.Add(ideal[i].Sub(persisted[i]).Abs())
	}
	return total
}

// Check computes the metric for a side and reports whether it exceeds the
// configured threshold and the side is not in cooldown from a prior trip.
// On a trigger it records lastTripped so a repeat Check within cooldown
// returns false even if the metric is still over threshold.
func (d *Detector) Check(side core.GridSlotSide, ideal, persisted []decimal.Decimal, now time.Time) (triggered bool, metric decimal.Decimal) {
	metric = Metric(ideal, persisted)
	if metric.LessThanOrEqual(d.threshold) {
		return false, metric
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastTripped[side]; ok && d.cooldown > 0 && now.Sub(last) < d.cooldown {
		return false, metric
	}
	d.lastTripped[side] = now
	return true, metric
}

// BeginCorrection sets the reentrancy guard that suppresses rotations while
// a divergence-driven resize is applying its corrective batch. Returns false
// if a correction is already in flight.
func (d *Detector) BeginCorrection() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.correcting {
		return false
	}
	d.correcting = true
	return true
}

// EndCorrection clears the reentrancy guard.
func (d *Detector) EndCorrection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.correcting = false
}

// IsCorrecting reports whether a divergence-driven resize is in flight.
func (d *Detector) IsCorrecting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.correcting
}
