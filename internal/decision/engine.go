// Package decision is the gate between proposed intents and the user's
// attention. It enforces a confidence threshold with dismissal-driven decay,
// three cooldown tiers, and a rolling spam budget. A rejection is a normal
// outcome, not an error.
package decision

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"orbit/internal/contexthub"
	"orbit/internal/intent"
)

// Decision is the outcome of evaluating one intent.
type Decision struct {
	Approved bool
	Intent   intent.Intent
	// Reason is human-readable; empty on approval.
	Reason string
	// NextAllowed is the earliest instant the kind may show again; zero
	// when nothing blocks.
	NextAllowed time.Time
}

// Config carries the gate thresholds.
type Config struct {
	ConfidenceMinimum float64
	PerKindCooldown   time.Duration
	GlobalCooldown    time.Duration
	DismissCooldown   time.Duration
	MaxPopupsPerHour  int
	SameKindWindow    time.Duration
}

// DefaultConfig returns production thresholds.
func DefaultConfig() Config {
	return Config{
		ConfidenceMinimum: 0.7,
		PerKindCooldown:   180 * time.Second,
		GlobalCooldown:    60 * time.Second,
		DismissCooldown:   600 * time.Second,
		MaxPopupsPerHour:  5,
		SameKindWindow:    900 * time.Second,
	}
}

// Engine owns the three ledgers. It is single-threaded by contract: only the
// orchestrator tick loop calls it.
type Engine struct {
	threshold float64
	cooldowns *CooldownLedger
	spam      *SpamLedger
	decay     *ConfidenceDecay
	logger    *zap.Logger
}

// NewEngine builds a gate from config.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		threshold: cfg.ConfidenceMinimum,
		cooldowns: NewCooldownLedger(cfg.PerKindCooldown, cfg.GlobalCooldown, cfg.DismissCooldown),
		spam:      NewSpamLedger(cfg.MaxPopupsPerHour, cfg.SameKindWindow),
		decay:     NewConfidenceDecay(),
		logger:    logger,
	}
}

// SetNow overrides the clock on every ledger. For tests.
func (e *Engine) SetNow(nowFn func() time.Time) {
	e.cooldowns.nowFn = nowFn
	e.spam.nowFn = nowFn
}

// Evaluate runs the full check order: decay, threshold, cooldowns, spam.
// On approval the popup is recorded in both ledgers before returning, so a
// caller observing Approved=true can rely on the ledgers already reflecting
// it. Intents of kind none must be short-circuited by the caller.
func (e *Engine) Evaluate(in intent.Intent, snap contexthub.Snapshot, age time.Duration) Decision {
	// Decay always runs and always updates the stored context, even when
	// a later check rejects.
	conf := e.decay.Apply(in, snap, age)

	if conf < e.threshold {
		return e.reject(in, fmt.Sprintf("Confidence too low: %.2f < %.2f", conf, e.threshold), time.Time{})
	}

	if ok, reason := e.cooldowns.CanShow(in.Kind); !ok {
		return e.reject(in, "Cooldown: "+reason, e.cooldowns.NextAllowed(in.Kind))
	}

	if spam, reason := e.spam.IsSpam(in.Kind); spam {
		return e.reject(in, "Spam filter: "+reason, time.Time{})
	}

	e.cooldowns.RecordPopup(in.Kind)
	e.spam.RecordPopup(in.Kind)

	e.logger.Info("intent approved",
		zap.String("kind", string(in.Kind)),
		zap.Float64("confidence", conf))

	return Decision{
		Approved:    true,
		Intent:      in,
		NextAllowed: e.cooldowns.NextAllowed(in.Kind),
	}
}

func (e *Engine) reject(in intent.Intent, reason string, next time.Time) Decision {
	e.logger.Debug("intent rejected",
		zap.String("kind", string(in.Kind)),
		zap.String("reason", reason))
	return Decision{Intent: in, Reason: reason, NextAllowed: next}
}

// RecordDismiss stamps the dismiss cooldown. Called when the user dismisses
// any popup.
func (e *Engine) RecordDismiss() {
	e.cooldowns.RecordDismiss()
	e.logger.Info("user dismissed popup, dismiss cooldown armed")
}

// RecordKindDismiss bumps the dismissal-decay counter for kind.
func (e *Engine) RecordKindDismiss(kind intent.Kind) {
	e.decay.RecordDismiss(kind)
}

// Stats summarises gate state.
type Stats struct {
	CooldownActive bool
	PopupsLastHour int
	DismissCounts  map[intent.Kind]int
}

func (e *Engine) Stats() Stats {
	return Stats{
		CooldownActive: !e.cooldowns.lastPopup.IsZero(),
		PopupsLastHour: e.spam.PopupsLastHour(),
		DismissCounts:  e.decay.DismissCounts(),
	}
}

// Reset clears every ledger and counter.
func (e *Engine) Reset() {
	e.cooldowns.Reset()
	e.spam.Reset()
	e.decay.Reset()
}
