// Package policy implements the Policy Engine: it interprets per-interval
// error telemetry for a directory scan and decides whether to adjust the
// scan's rate limit (AutoTune) or cancel it outright (AutoBail).
package policy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathscout/pathscout/pkg/config"
	"github.com/pathscout/pathscout/pkg/engine/limitheap"
)

// Thresholds used to decide whether an interval's telemetry should trigger
// a policy action.
const (
	generalErrorThreshold  = 25
	generalErrorRate       = 0.90
	statusCode403Threshold = 45
	statusCode403Rate      = 0.90
	statusCode429Threshold = 15
	statusCode429Rate      = 0.30
)

// Snapshot is the per-interval telemetry the caller samples from the event
// bus and feeds to Evaluate.
type Snapshot struct {
	TotalRequests int
	Timeouts      int
	Connection    int
	RequestErrors int
	Status403     int
	Status429     int
	Other         int
}

// generalErrors sums the categories that count toward the "general error"
// threshold: timeouts, connection failures, request errors, and anything
// uncategorized. 403s and 429s are tracked separately.
func (s Snapshot) generalErrors() int {
	return s.Timeouts + s.Connection + s.RequestErrors + s.Other
}

// Trigger describes which threshold, if any, an interval's snapshot
// crossed.
type Trigger int

const (
	// NoTrigger means the interval's error telemetry was unremarkable.
	NoTrigger Trigger = iota
	// GeneralTrigger means the combined error rate crossed its threshold.
	GeneralTrigger
	// Status403Trigger means the 403 rate crossed its threshold.
	Status403Trigger
	// Status429Trigger means the 429 rate crossed its threshold.
	Status429Trigger
)

// Evaluate inspects a single interval's telemetry and reports which
// threshold, if any, was crossed. It performs no mutation; it is pure so
// that it can be exercised directly in tests.
func Evaluate(s Snapshot) Trigger {
	if s.TotalRequests == 0 {
		return NoTrigger
	}

	total := float64(s.TotalRequests)

	if s.generalErrors() >= generalErrorThreshold && float64(s.generalErrors())/total >= generalErrorRate {
		return GeneralTrigger
	}

	if s.Status403 >= statusCode403Threshold && float64(s.Status403)/total >= statusCode403Rate {
		return Status403Trigger
	}

	if s.Status429 >= statusCode429Threshold && float64(s.Status429)/total >= statusCode429Rate {
		return Status429Trigger
	}

	return NoTrigger
}

// Data holds the mutable policy state for a single directory scan: its
// configured policy, cooldown bookkeeping, and the limit heap used by
// AutoTune. One Data is owned per active scan.
type Data struct {
	policy config.RequesterPolicy

	// coolingDown is true while a prior adjustment's cooldown is active;
	// new triggers are ignored until it clears.
	coolingDown atomic.Bool

	// waitTime is how long a cooldown lasts after any adjustment.
	waitTime time.Duration

	limit atomic.Int64

	// removeLimit signals that the owning Requester should drop its rate
	// limiter entirely, once AutoTune has walked all the way back to the
	// heap's root.
	removeLimit atomic.Bool

	mu   sync.RWMutex
	heap *limitheap.LimitHeap

	// upStreak counts consecutive AutoTune intervals with no new errors.
	upStreak int

	// lastErrors is the error count observed at the previous interval,
	// used to decide whether AdjustUp or AdjustDown applies on the next
	// evaluation.
	lastErrors int
}

// NewData creates policy state for a scan given the configured policy and
// the engine's request timeout (in seconds). The cooldown window is half
// the timeout, expressed in milliseconds.
func NewData(p config.RequesterPolicy, timeoutSeconds int) *Data {
	return &Data{
		policy:   p,
		waitTime: time.Duration(float64(timeoutSeconds)/2.0*1000) * time.Millisecond,
		heap:     limitheap.New(),
	}
}

// Policy returns the configured RequesterPolicy.
func (d *Data) Policy() config.RequesterPolicy {
	return d.policy
}

// WaitTime returns the cooldown duration applied after any adjustment.
func (d *Data) WaitTime() time.Duration {
	return d.waitTime
}

// CoolingDown reports whether a cooldown is currently active.
func (d *Data) CoolingDown() bool {
	return d.coolingDown.Load()
}

// BeginCooldown marks the policy as cooling down; the caller is
// responsible for clearing it (typically via a timer) after WaitTime.
func (d *Data) BeginCooldown() {
	d.coolingDown.Store(true)
}

// EndCooldown clears the cooldown flag.
func (d *Data) EndCooldown() {
	d.coolingDown.Store(false)
}

// RemoveLimit reports whether the rate limiter should be dropped entirely.
func (d *Data) RemoveLimit() bool {
	return d.removeLimit.Load()
}

// Limit returns the currently active requests/second limit.
func (d *Data) Limit() int {
	return int(d.limit.Load())
}

func (d *Data) setLimit(v int) {
	d.limit.Store(int64(v))
}

// SeedFromMeasuredRate builds the limit heap from a just-measured
// requests/second figure and sets the active limit to the heap's root
// (half of the measured rate). Called the first time AutoTune needs to
// adjust a scan that has no rate limiter yet.
func (d *Data) SeedFromMeasuredRate(reqsPerSecond int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.heap.Build(reqsPerSecond)
	d.setLimit(d.heap.Value())
}

// HeapBuilt reports whether SeedFromMeasuredRate has been called.
func (d *Data) HeapBuilt() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.heap.Original() != 0
}

// AdjustDown walks the limit heap toward a lower rate. If the cursor has
// no children (it has bottomed out), the limit is left unchanged.
func (d *Data) AdjustDown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.heap.HasChildren() {
		d.heap.MoveRight()
		d.setLimit(d.heap.Value())
	}
}

// AdjustUp walks the limit heap toward a higher rate, preserving a streak
// of consecutive no-new-error intervals. The exact shape of the upward
// traversal (two parents, occasionally a third) is preserved verbatim
// from the source policy this engine was derived from: the "parent value
// greater than current" check decides between a two- and three-level
// climb.
func (d *Data) AdjustUp(streak int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if streak > 2 {
		current := d.heap.Value()
		d.heap.MoveUp()
		d.heap.MoveUp()
		if current > d.heap.Value() {
			if d.heap.HasParent() && d.heap.ParentValue() > current {
				d.heap.MoveUp()
			}
		}
	} else if d.heap.HasChildren() {
		d.heap.MoveLeft()
	} else {
		current := d.heap.Value()
		d.heap.MoveUp()
		d.heap.MoveUp()
		if current > d.heap.Value() {
			d.heap.MoveUp()
		}
	}

	if !d.heap.HasParent() {
		d.removeLimit.Store(true)
	}

	d.setLimit(d.heap.Value())
}

// RecordInterval updates the streak/error bookkeeping for the next
// AdjustUp/AdjustDown decision and reports whether errors increased
// relative to the previous interval (i.e. whether AdjustDown applies).
func (d *Data) RecordInterval(errors int) (increased bool) {
	increased = errors > d.lastErrors
	d.lastErrors = errors

	if increased {
		d.upStreak = 0
	} else {
		d.upStreak++
	}

	return increased
}

// UpStreak returns the number of consecutive intervals without a new
// error, for use with AdjustUp.
func (d *Data) UpStreak() int {
	return d.upStreak
}
