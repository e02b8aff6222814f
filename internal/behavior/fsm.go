// Package behavior is the visible lifecycle of a suggestion: a small state
// machine driving the widget from observe to suggest to execute or suppress.
// The FSM performs no I/O; state changes and UI updates are published on
// channels the orchestrator drains.
package behavior

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"orbit/internal/intent"
)

// State of the behavior machine.
type State string

const (
	StateIdle           State = "idle"
	StateObserving      State = "observing"
	StateSuggesting     State = "suggesting"
	StateExecuting      State = "executing"
	StateSuppressed     State = "suppressed"
	StateCooldownGlobal State = "cooldown_global"
)

// Event triggers a transition.
type Event string

const (
	EventContextChanged  Event = "context_changed"
	EventIntentApproved  Event = "intent_approved"
	EventUserDismiss     Event = "user_dismiss"
	EventUserAction      Event = "user_action"
	EventTimeout         Event = "timeout"
	EventCooldownExpired Event = "cooldown_expired"
	EventEnterFocusMode  Event = "enter_focus_mode"
	EventExitFocusMode   Event = "exit_focus_mode"
)

// transitions is the full table; events missing from a state are no-ops.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventContextChanged: StateObserving,
		EventIntentApproved: StateSuggesting, // direct IDLE -> SUGGESTING allowed
		EventEnterFocusMode: StateCooldownGlobal,
	},
	StateObserving: {
		EventIntentApproved: StateSuggesting,
		EventTimeout:        StateIdle,
		EventEnterFocusMode: StateCooldownGlobal,
	},
	StateSuggesting: {
		EventUserDismiss:    StateSuppressed,
		EventUserAction:     StateExecuting,
		EventTimeout:        StateIdle,
		EventEnterFocusMode: StateCooldownGlobal,
	},
	StateExecuting: {
		EventTimeout:     StateIdle,
		EventUserDismiss: StateSuppressed,
	},
	StateSuppressed: {
		EventCooldownExpired: StateIdle,
	},
	StateCooldownGlobal: {
		EventExitFocusMode: StateIdle,
	},
}

// stateTimeouts: states absent here never time out.
var stateTimeouts = map[State]time.Duration{
	StateObserving:  30 * time.Second,
	StateSuggesting: 60 * time.Second,
	StateExecuting:  10 * time.Second,
	StateSuppressed: 600 * time.Second,
}

// historyLimit bounds the transition ring.
const historyLimit = 100

// Transition is one recorded state change.
type Transition struct {
	From  State
	To    State
	Event Event
	At    time.Time
}

// FSM is the behavior machine. Only the tick loop mutates it; the updates
// channel carries UI output to whoever broadcasts it.
type FSM struct {
	mu        sync.Mutex
	current   State
	enteredAt time.Time
	intent    *intent.Intent // held only in SUGGESTING / EXECUTING
	history   []Transition

	updates chan UIUpdate
	nowFn   func() time.Time
	logger  *zap.Logger
}

// New starts the machine in IDLE.
func New(logger *zap.Logger) *FSM {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &FSM{
		current: StateIdle,
		updates: make(chan UIUpdate, 16),
		nowFn:   time.Now,
		logger:  logger,
	}
	f.enteredAt = f.nowFn()
	return f
}

// Updates is the UI-output channel. Delivery is best-effort: if nobody
// drains it, updates are dropped, never blocking a transition.
func (f *FSM) Updates() <-chan UIUpdate {
	return f.updates
}

// Trigger applies an event. Invalid events for the current state are
// silently ignored (debug log only). Returns whether a transition happened.
// data carries the approved intent for EventIntentApproved, nil otherwise.
func (f *FSM) Trigger(ev Event, data *intent.Intent) bool {
	f.mu.Lock()

	next, ok := transitions[f.current][ev]
	if !ok {
		cur := f.current
		f.mu.Unlock()
		f.logger.Debug("event not valid in state",
			zap.String("event", string(ev)), zap.String("state", string(cur)))
		return false
	}

	prev := f.current
	now := f.nowFn()

	f.history = append(f.history, Transition{From: prev, To: next, Event: ev, At: now})
	if len(f.history) > historyLimit {
		f.history = f.history[len(f.history)-historyLimit:]
	}

	f.current = next
	f.enteredAt = now

	switch next {
	case StateSuggesting, StateExecuting:
		if data != nil {
			held := *data // own a copy; the caller's value stays untouched
			f.intent = &held
		}
	default:
		f.intent = nil
	}

	update := f.uiOutputLocked()
	f.mu.Unlock()

	f.logger.Info("state transition",
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("event", string(ev)))

	f.publish(update)
	return true
}

// Tick fires TIMEOUT (COOLDOWN_EXPIRED for SUPPRESSED) when the current
// state has outlived its timeout. Returns whether a transition fired.
func (f *FSM) Tick() bool {
	f.mu.Lock()
	timeout, ok := stateTimeouts[f.current]
	if !ok {
		f.mu.Unlock()
		return false
	}
	elapsed := f.nowFn().Sub(f.enteredAt)
	expired := elapsed >= timeout
	state := f.current
	f.mu.Unlock()

	if !expired {
		return false
	}

	f.logger.Info("state timed out",
		zap.String("state", string(state)),
		zap.Duration("elapsed", elapsed))

	if state == StateSuppressed {
		return f.Trigger(EventCooldownExpired, nil)
	}
	return f.Trigger(EventTimeout, nil)
}

// publish is a non-blocking send; UI delivery is best-effort.
func (f *FSM) publish(u UIUpdate) {
	select {
	case f.updates <- u:
	default:
		f.logger.Debug("ui update dropped, channel full")
	}
}

// Current returns the current state.
func (f *FSM) Current() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// HeldIntent returns a copy of the intent being suggested or executed.
func (f *FSM) HeldIntent() (intent.Intent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.intent == nil {
		return intent.Intent{}, false
	}
	return *f.intent, true
}

// History returns the most recent transitions, oldest first.
func (f *FSM) History(limit int) []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.history) {
		limit = len(f.history)
	}
	out := make([]Transition, limit)
	copy(out, f.history[len(f.history)-limit:])
	return out
}

// Reset returns to IDLE and clears history. For tests.
func (f *FSM) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = StateIdle
	f.enteredAt = f.nowFn()
	f.intent = nil
	f.history = nil
}
