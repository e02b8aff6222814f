package decision

import (
	"time"

	"orbit/internal/contexthub"
	"orbit/internal/intent"
)

// Decay deltas.
const (
	decayPerDismiss   = 0.10
	decayContextShift = 0.15
	decayTimeMax      = 0.20
	decayTimeAfter    = 60 * time.Second
	decayTimeSpan     = 300.0 // seconds over which time decay ramps to max
)

// ConfidenceDecay lowers an intent's confidence for repeated dismissals,
// significant context changes, and staleness.
type ConfidenceDecay struct {
	dismissCount map[intent.Kind]int
	prev         *contexthub.Snapshot
}

// NewConfidenceDecay builds an empty tracker.
func NewConfidenceDecay() *ConfidenceDecay {
	return &ConfidenceDecay{dismissCount: make(map[intent.Kind]int)}
}

// Apply computes the decayed confidence. The snapshot always becomes the new
// "previous" context, even when the intent is later rejected. A negative age
// is treated as zero.
func (d *ConfidenceDecay) Apply(in intent.Intent, snap contexthub.Snapshot, age time.Duration) float64 {
	if age < 0 {
		age = 0
	}

	conf := in.Confidence

	if n := d.dismissCount[in.Kind]; n > 0 {
		conf -= decayPerDismiss * float64(n)
	}

	if d.prev != nil && d.contextChanged(snap) {
		conf -= decayContextShift
	}

	if age > decayTimeAfter {
		decay := (age.Seconds() / decayTimeSpan) * decayTimeMax
		if decay > decayTimeMax {
			decay = decayTimeMax
		}
		conf -= decay
	}

	stored := snap
	d.prev = &stored

	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// contextChanged: a different foreground app or a flipped idle state counts
// as a significant shift.
func (d *ConfidenceDecay) contextChanged(snap contexthub.Snapshot) bool {
	if d.prev.ActiveApp != snap.ActiveApp {
		return true
	}
	return d.prev.IsIdle != snap.IsIdle
}

// RecordDismiss bumps the per-kind dismissal counter.
func (d *ConfidenceDecay) RecordDismiss(kind intent.Kind) {
	d.dismissCount[kind]++
}

// DismissCounts returns a copy of the counters.
func (d *ConfidenceDecay) DismissCounts() map[intent.Kind]int {
	out := make(map[intent.Kind]int, len(d.dismissCount))
	for k, v := range d.dismissCount {
		out[k] = v
	}
	return out
}

// Reset clears counters and the stored context.
func (d *ConfidenceDecay) Reset() {
	d.dismissCount = make(map[intent.Kind]int)
	d.prev = nil
}
