// Package orchestrator runs the agent's heartbeat: one tick loop that pulls a
// context snapshot, asks the proposer for an intent, pushes it through the
// decision gate, advances the behavior machine, and broadcasts whatever the
// widget should show now. User actions and focus-mode commands feed back in
// between ticks.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"orbit/internal/behavior"
	"orbit/internal/contexthub"
	"orbit/internal/decision"
	"orbit/internal/intent"
	"orbit/internal/ipc"
	"orbit/internal/store"
)

// Broadcaster pushes UI updates to connected widgets.
type Broadcaster interface {
	BroadcastUIUpdate(data any) error
}

// Deps wires the pipeline together. Store and Broadcaster may be nil; the
// loop runs headless without them.
type Deps struct {
	Context    *contexthub.Hub
	Brain      *intent.Brain
	Engine     *decision.Engine
	Controller *behavior.Controller
	Store      *store.EventStore
	Broadcast  Broadcaster
	// Actions delivers user responses from the widget; nil means none.
	Actions <-chan ipc.UserAction
	Logger  *zap.Logger
}

// SessionStats counts what happened since start.
type SessionStats struct {
	StartedAt       time.Time
	Ticks           int
	SnapshotsTaken  int
	IntentsProposed int
	PopupsShown     int
	PopupsRejected  int
	Dismissals      int
	TickPanics      int
	// StageErrors counts failures per pipeline stage.
	StageErrors map[string]int
}

// ApprovalRate is popups shown over intents proposed, in percent.
func (s SessionStats) ApprovalRate() float64 {
	if s.IntentsProposed == 0 {
		return 0
	}
	return float64(s.PopupsShown) / float64(s.IntentsProposed) * 100
}

// Orchestrator owns the tick loop. All pipeline components are called from
// that single goroutine; Stats is the only concurrent surface.
type Orchestrator struct {
	contextHub *contexthub.Hub
	brain      *intent.Brain
	engine     *decision.Engine
	controller *behavior.Controller
	eventLog   *store.EventStore
	broadcast  Broadcaster
	actions    <-chan ipc.UserAction
	logger     *zap.Logger

	interval time.Duration
	nowFn    func() time.Time

	mu    sync.Mutex
	stats SessionStats
}

// New builds the loop with the given tick interval.
func New(interval time.Duration, deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		contextHub: deps.Context,
		brain:      deps.Brain,
		engine:     deps.Engine,
		controller: deps.Controller,
		eventLog:   deps.Store,
		broadcast:  deps.Broadcast,
		actions:    deps.Actions,
		logger:     logger,
		interval:   interval,
		nowFn:      time.Now,
		stats: SessionStats{
			StartedAt:   time.Now(),
			StageErrors: make(map[string]int),
		},
	}
}

// Run loops until ctx is done, then logs session stats.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started", zap.Duration("interval", o.interval))

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logSessionStats()
			return ctx.Err()

		case <-ticker.C:
			o.safeTick(ctx)

		case action, ok := <-o.actions:
			if !ok {
				o.actions = nil
				continue
			}
			o.HandleUserAction(ctx, action)
		}
	}
}

// safeTick runs one tick with panic containment. A panicking stage loses one
// tick, never the loop.
func (o *Orchestrator) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.mu.Lock()
			o.stats.TickPanics++
			o.mu.Unlock()
			o.logger.Error("tick panicked", zap.Any("panic", r))
		}
	}()
	o.runTick(ctx)
}

// runTick is one pass through the pipeline.
func (o *Orchestrator) runTick(ctx context.Context) {
	o.mu.Lock()
	o.stats.Ticks++
	o.mu.Unlock()

	snap := o.contextHub.Snapshot()
	o.mu.Lock()
	o.stats.SnapshotsTaken++
	o.mu.Unlock()

	o.logSnapshot(ctx, snap)

	// Interesting context wakes the machine from IDLE.
	o.controller.HandleContextChange(snap)

	// Let the current state time out before asking for anything new.
	o.controller.FSM().Tick()

	if o.controller.FSM().Current() == behavior.StateObserving {
		o.propose(ctx, snap)
	}

	o.flushUpdates()
}

func (o *Orchestrator) propose(ctx context.Context, snap contexthub.Snapshot) {
	in := o.brain.Propose(ctx, snap)
	if in.Kind == intent.KindNone {
		return
	}

	o.mu.Lock()
	o.stats.IntentsProposed++
	o.mu.Unlock()

	age := o.nowFn().Sub(in.CreatedAt)
	d := o.engine.Evaluate(in, snap, age)
	if !d.Approved {
		o.mu.Lock()
		o.stats.PopupsRejected++
		o.mu.Unlock()
		o.logEvent(ctx, store.Event{
			Type:       store.EventPopupRejected,
			AppName:    snap.ActiveApp,
			IdleTime:   snap.IdleSeconds,
			ErrorCount: snap.ErrorCount,
			Data:       map[string]any{"kind": string(in.Kind), "reason": d.Reason},
		})
		return
	}

	o.controller.HandleIntentApproved(d.Intent)
	o.mu.Lock()
	o.stats.PopupsShown++
	o.mu.Unlock()

	o.logger.Info("popup shown",
		zap.String("kind", string(d.Intent.Kind)),
		zap.String("message", d.Intent.Message))

	o.logEvent(ctx, store.Event{
		Type:     store.EventPopupShown,
		AppName:  snap.ActiveApp,
		IdleTime: snap.IdleSeconds,
		Data: map[string]any{
			"intent_id":  d.Intent.ID,
			"kind":       string(d.Intent.Kind),
			"confidence": d.Intent.Confidence,
		},
	})
}

// HandleUserAction routes a widget response: FSM first, then the dismiss
// ledgers if the action was a dismissal.
func (o *Orchestrator) HandleUserAction(ctx context.Context, action ipc.UserAction) {
	held, hasIntent := o.controller.FSM().HeldIntent()

	dismissed := o.controller.HandleUserAction(action.Action)
	if dismissed {
		o.engine.RecordDismiss()
		if hasIntent {
			o.engine.RecordKindDismiss(held.Kind)
		}
		o.mu.Lock()
		o.stats.Dismissals++
		o.mu.Unlock()
	}

	o.logEvent(ctx, store.Event{
		Type: store.EventUserResponse,
		Data: map[string]any{"action": action.Action, "intent_id": action.IntentID},
	})

	o.flushUpdates()
}

// EnterFocusMode silences the agent until ExitFocusMode.
func (o *Orchestrator) EnterFocusMode() {
	o.controller.EnterFocusMode()
	o.flushUpdates()
}

// ExitFocusMode resumes normal operation.
func (o *Orchestrator) ExitFocusMode() {
	o.controller.ExitFocusMode()
	o.flushUpdates()
}

// flushUpdates drains pending FSM updates out to the widgets.
func (o *Orchestrator) flushUpdates() {
	for {
		select {
		case u := <-o.controller.FSM().Updates():
			if o.broadcast == nil {
				continue
			}
			if err := o.broadcast.BroadcastUIUpdate(u); err != nil {
				o.recordStageError("broadcast", err)
			}
		default:
			return
		}
	}
}

// logSnapshot appends telemetry; the store is never on the critical path.
func (o *Orchestrator) logSnapshot(ctx context.Context, snap contexthub.Snapshot) {
	o.logEvent(ctx, store.Event{
		Timestamp:   snap.Timestamp,
		Type:        store.EventContextSnapshot,
		AppName:     snap.ActiveApp,
		WindowTitle: snap.WindowTitle,
		IdleTime:    snap.IdleSeconds,
		FileChanges: snap.RecentFileChanges,
		ErrorCount:  snap.ErrorCount,
	})
}

func (o *Orchestrator) logEvent(ctx context.Context, ev store.Event) {
	if o.eventLog == nil {
		return
	}
	if err := o.eventLog.InsertEvent(ctx, ev); err != nil {
		o.recordStageError("store", err)
	}
}

func (o *Orchestrator) recordStageError(stage string, err error) {
	o.mu.Lock()
	o.stats.StageErrors[stage]++
	o.mu.Unlock()
	o.logger.Warn("pipeline stage error", zap.String("stage", stage), zap.Error(err))
}

// Stats returns a copy of the session counters.
func (o *Orchestrator) Stats() SessionStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.stats
	out.StageErrors = make(map[string]int, len(o.stats.StageErrors))
	for k, v := range o.stats.StageErrors {
		out.StageErrors[k] = v
	}
	return out
}

func (o *Orchestrator) logSessionStats() {
	s := o.Stats()
	o.logger.Info("session stats",
		zap.Duration("uptime", o.nowFn().Sub(s.StartedAt)),
		zap.Int("ticks", s.Ticks),
		zap.Int("intents_proposed", s.IntentsProposed),
		zap.Int("popups_shown", s.PopupsShown),
		zap.Int("popups_rejected", s.PopupsRejected),
		zap.Int("dismissals", s.Dismissals),
		zap.String("approval_rate", fmt.Sprintf("%.1f%%", s.ApprovalRate())),
	)
}
