package decision

import (
	"fmt"
	"time"

	"orbit/internal/intent"
)

// CooldownLedger tracks the three popup cooldown tiers: dismiss, global, and
// per-kind. All state is in-memory and touched only from the tick loop.
type CooldownLedger struct {
	perKind time.Duration
	global  time.Duration
	dismiss time.Duration

	lastKind    map[intent.Kind]time.Time
	lastPopup   time.Time
	lastDismiss time.Time

	nowFn func() time.Time
}

// NewCooldownLedger builds a ledger with the given tier durations.
func NewCooldownLedger(perKind, global, dismiss time.Duration) *CooldownLedger {
	return &CooldownLedger{
		perKind:  perKind,
		global:   global,
		dismiss:  dismiss,
		lastKind: make(map[intent.Kind]time.Time),
		nowFn:    time.Now,
	}
}

// CanShow checks every tier in priority order: dismiss, global, per-kind.
// The returned reason names the first failing tier.
func (c *CooldownLedger) CanShow(kind intent.Kind) (bool, string) {
	now := c.nowFn()

	if !c.lastDismiss.IsZero() {
		if remaining := c.dismiss - now.Sub(c.lastDismiss); remaining > 0 {
			return false, fmt.Sprintf("User dismissed recently (wait %ds)", ceilSeconds(remaining))
		}
	}

	if !c.lastPopup.IsZero() {
		if remaining := c.global - now.Sub(c.lastPopup); remaining > 0 {
			return false, fmt.Sprintf("Global cooldown active (wait %ds)", ceilSeconds(remaining))
		}
	}

	if last, ok := c.lastKind[kind]; ok {
		if remaining := c.perKind - now.Sub(last); remaining > 0 {
			return false, fmt.Sprintf("Intent cooldown active (wait %ds)", ceilSeconds(remaining))
		}
	}

	return true, "Cooldown passed"
}

// NextAllowed returns the furthest deadline across active tiers, or the zero
// time when nothing blocks.
func (c *CooldownLedger) NextAllowed(kind intent.Kind) time.Time {
	now := c.nowFn()
	var next time.Time

	consider := func(t time.Time) {
		if t.After(now) && t.After(next) {
			next = t
		}
	}

	if !c.lastDismiss.IsZero() {
		consider(c.lastDismiss.Add(c.dismiss))
	}
	if !c.lastPopup.IsZero() {
		consider(c.lastPopup.Add(c.global))
	}
	if last, ok := c.lastKind[kind]; ok {
		consider(last.Add(c.perKind))
	}
	return next
}

// RecordPopup stamps the global and per-kind timestamps.
func (c *CooldownLedger) RecordPopup(kind intent.Kind) {
	now := c.nowFn()
	c.lastPopup = now
	c.lastKind[kind] = now
}

// RecordDismiss stamps the dismiss timestamp.
func (c *CooldownLedger) RecordDismiss() {
	c.lastDismiss = c.nowFn()
}

// Reset clears all tiers.
func (c *CooldownLedger) Reset() {
	c.lastKind = make(map[intent.Kind]time.Time)
	c.lastPopup = time.Time{}
	c.lastDismiss = time.Time{}
}

// ceilSeconds never reports a negative remainder.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int((d + time.Second - 1) / time.Second)
	return s
}
