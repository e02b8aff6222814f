package behavior

import (
	"go.uber.org/zap"

	"orbit/internal/contexthub"
	"orbit/internal/intent"
)

// Controller translates outside-world inputs (context snapshots, raw UI
// action strings, focus-mode commands) into FSM events.
type Controller struct {
	fsm    *FSM
	logger *zap.Logger
}

// NewController wraps an FSM; a nil fsm gets a fresh one.
func NewController(fsm *FSM, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fsm == nil {
		fsm = New(logger)
	}
	return &Controller{fsm: fsm, logger: logger}
}

// FSM exposes the wrapped machine.
func (c *Controller) FSM() *FSM { return c.fsm }

// HandleContextChange fires CONTEXT_CHANGED for an interesting snapshot, but
// only from IDLE; other states are already past observing.
func (c *Controller) HandleContextChange(snap contexthub.Snapshot) bool {
	if c.fsm.Current() != StateIdle {
		return false
	}
	if !snap.Interesting() {
		return false
	}
	return c.fsm.Trigger(EventContextChanged, nil)
}

// HandleIntentApproved moves to SUGGESTING carrying the intent.
func (c *Controller) HandleIntentApproved(in intent.Intent) bool {
	return c.fsm.Trigger(EventIntentApproved, &in)
}

// HandleUserAction maps a raw UI action string onto an event. Only SUGGESTING
// reacts; unknown strings are ignored. Returns whether the action was a
// dismissal, so the caller can arm the dismiss cooldown.
func (c *Controller) HandleUserAction(action string) (dismissed bool) {
	if c.fsm.Current() != StateSuggesting {
		c.logger.Debug("user action outside suggesting, ignored", zap.String("action", action))
		return false
	}

	switch action {
	case "Ya", "Yes", "OK":
		c.fsm.Trigger(EventUserAction, nil)
	case "Nanti", "Later":
		// Deferral reads as a timeout: back to idle, no suppression.
		c.fsm.Trigger(EventTimeout, nil)
	case "Dismiss":
		c.fsm.Trigger(EventUserDismiss, nil)
		return true
	default:
		c.logger.Debug("unknown user action ignored", zap.String("action", action))
	}
	return false
}

// EnterFocusMode silences the widget until ExitFocusMode.
func (c *Controller) EnterFocusMode() {
	if c.fsm.Trigger(EventEnterFocusMode, nil) {
		c.logger.Info("focus mode entered, widget silenced")
	}
}

// ExitFocusMode returns to IDLE if focus mode is active.
func (c *Controller) ExitFocusMode() {
	if c.fsm.Current() != StateCooldownGlobal {
		return
	}
	if c.fsm.Trigger(EventExitFocusMode, nil) {
		c.logger.Info("focus mode exited")
	}
}
