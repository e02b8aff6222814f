package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"orbit/internal/behavior"
	"orbit/internal/contexthub"
	"orbit/internal/decision"
	"orbit/internal/intent"
	"orbit/internal/ipc"
	"orbit/internal/monitor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeBroadcast struct {
	mu     sync.Mutex
	frames []behavior.UIUpdate
}

func (b *fakeBroadcast) BroadcastUIUpdate(data any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := data.(behavior.UIUpdate)
	if !ok {
		return errors.New("unexpected frame payload")
	}
	b.frames = append(b.frames, u)
	return nil
}

func (b *fakeBroadcast) all() []behavior.UIUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]behavior.UIUpdate, len(b.frames))
	copy(out, b.frames)
	return out
}

func (b *fakeBroadcast) last() (behavior.UIUpdate, bool) {
	frames := b.all()
	if len(frames) == 0 {
		return behavior.UIUpdate{}, false
	}
	return frames[len(frames)-1], true
}

type fixture struct {
	win    *monitor.StaticWindowMonitor
	idle   *monitor.StaticIdleDetector
	files  *monitor.FakeFileMonitor
	engine *decision.Engine
	brain  *intent.Brain
	bcast  *fakeBroadcast
	orch   *Orchestrator
	clk    *clock
}

// newFixture wires the full pipeline in dummy mode with production gate
// thresholds and an injected gate clock.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		win:   &monitor.StaticWindowMonitor{Info: monitor.WindowInfo{AppName: "Code.exe", WindowTitle: "main.go - Code"}},
		idle:  &monitor.StaticIdleDetector{Seconds: 350},
		files: &monitor.FakeFileMonitor{},
		bcast: &fakeBroadcast{},
		clk:   &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
	}
	f.files.Append(monitor.FileEvent{Kind: monitor.FileModified, Path: "a.go", Timestamp: time.Now()})
	f.files.Append(monitor.FileEvent{Kind: monitor.FileModified, Path: "b.go", Timestamp: time.Now()})

	hub := contexthub.New(f.win, f.idle, f.files, nil)

	f.brain = intent.NewBrain(intent.ModeDummy, nil, intent.NewVarietyPool(0), nil)

	f.engine = decision.NewEngine(decision.DefaultConfig(), nil)
	f.engine.SetNow(f.clk.Now)

	f.orch = New(time.Second, Deps{
		Context:    hub,
		Brain:      f.brain,
		Engine:     f.engine,
		Controller: behavior.NewController(nil, nil),
		Broadcast:  f.bcast,
	})
	return f
}

func helpIntent(conf float64) intent.Intent {
	return intent.Intent{
		ID:         "followup",
		Kind:       intent.KindSuggestHelp,
		Confidence: conf,
		Message:    "Butuh bantuan?",
	}
}

func interestingSnap() contexthub.Snapshot {
	return contexthub.Snapshot{ActiveApp: "Code.exe", IdleSeconds: 350, IsIdle: true}
}

func TestColdStartInterestingContextShowsPopup(t *testing.T) {
	f := newFixture(t)

	f.orch.runTick(context.Background())

	fsm := f.orch.controller.FSM()
	assert.Equal(t, behavior.StateSuggesting, fsm.Current())

	held, ok := fsm.HeldIntent()
	require.True(t, ok)
	assert.Equal(t, intent.KindSuggestHelp, held.Kind)
	assert.GreaterOrEqual(t, held.Confidence, 0.70)
	assert.LessOrEqual(t, held.Confidence, 0.90)

	last, ok := f.bcast.last()
	require.True(t, ok)
	assert.Equal(t, behavior.StateSuggesting, last.State)
	assert.True(t, last.Visible)
	require.NotNil(t, last.Bubble)
	assert.Equal(t, []string{"Ya", "Nanti", "Dismiss"}, last.Bubble.Actions)

	stats := f.orch.Stats()
	assert.Equal(t, 1, stats.PopupsShown)
	assert.Equal(t, 0, stats.PopupsRejected)
}

func TestImmediateRepeatRejectedByGlobalCooldown(t *testing.T) {
	f := newFixture(t)
	f.orch.runTick(context.Background())
	require.Equal(t, 1, f.orch.Stats().PopupsShown)

	f.clk.Advance(time.Second)
	d := f.engine.Evaluate(helpIntent(0.85), interestingSnap(), 0)
	require.False(t, d.Approved)
	assert.Contains(t, d.Reason, "Global cooldown")
}

func TestUserDismissTripsDismissCooldown(t *testing.T) {
	f := newFixture(t)
	f.orch.runTick(context.Background())

	f.orch.HandleUserAction(context.Background(), ipc.UserAction{Action: "Dismiss"})
	assert.Equal(t, behavior.StateSuppressed, f.orch.controller.FSM().Current())
	assert.Equal(t, 1, f.orch.Stats().Dismissals)

	f.clk.Advance(60 * time.Second)
	d := f.engine.Evaluate(helpIntent(0.85), interestingSnap(), 0)
	require.False(t, d.Approved)
	assert.Contains(t, d.Reason, "dismissed recently")
}

func TestNonInterestingContextIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.win.Info = monitor.WindowInfo{AppName: "Chrome.exe"}
	f.idle.Seconds = 10
	f.files.Events = nil

	f.orch.runTick(context.Background())

	assert.Equal(t, behavior.StateIdle, f.orch.controller.FSM().Current())
	assert.Zero(t, f.brain.Stats().Total, "proposer must not run this tick")
	assert.Empty(t, f.bcast.all(), "no transition, no ui update")
}

func TestLongIdleWithErrorsDrawsFromErrorPool(t *testing.T) {
	f := newFixture(t)
	f.idle.Seconds = 400

	// One prior adapter failure leaves a nonzero error count in every later
	// snapshot.
	f.win.Err = errors.New("window lookup failed")
	f.orch.contextHub.Snapshot()
	f.win.Err = nil

	f.orch.runTick(context.Background())

	held, ok := f.orch.controller.FSM().HeldIntent()
	require.True(t, ok)
	assert.Contains(t, []string{
		"Ada error yang belum tertangani, mau aku bantu cek?",
		"Error-nya masih nongol? Yuk kita telusuri bareng",
		"Mau aku bantu baca stack trace-nya?",
		"Kayaknya ada yang merah tuh, perlu bantuan?",
	}, held.Message)
}

func TestFocusModeSilencesEverything(t *testing.T) {
	f := newFixture(t)

	f.orch.EnterFocusMode()
	last, ok := f.bcast.last()
	require.True(t, ok)
	assert.False(t, last.Visible)

	f.orch.runTick(context.Background())

	assert.Equal(t, behavior.StateCooldownGlobal, f.orch.controller.FSM().Current())
	assert.Zero(t, f.brain.Stats().Total, "observing never entered")

	last, _ = f.bcast.last()
	assert.False(t, last.Visible)

	f.orch.ExitFocusMode()
	assert.Equal(t, behavior.StateIdle, f.orch.controller.FSM().Current())
}

func TestAffirmativeActionExecutes(t *testing.T) {
	f := newFixture(t)
	f.orch.runTick(context.Background())
	require.Equal(t, behavior.StateSuggesting, f.orch.controller.FSM().Current())

	f.orch.HandleUserAction(context.Background(), ipc.UserAction{Action: "Ya"})
	assert.Equal(t, behavior.StateExecuting, f.orch.controller.FSM().Current())
	assert.Zero(t, f.orch.Stats().Dismissals)

	last, ok := f.bcast.last()
	require.True(t, ok)
	require.NotNil(t, last.Bubble)
	assert.Equal(t, "Sedang diproses...", last.Bubble.Text)
}

func TestRejectedIntentCountsAndKeepsObserving(t *testing.T) {
	f := newFixture(t)

	// Exhaust the gate first so the tick's own proposal gets rejected.
	require.True(t, f.engine.Evaluate(helpIntent(0.85), interestingSnap(), 0).Approved)
	f.clk.Advance(time.Second)

	f.orch.runTick(context.Background())

	assert.Equal(t, behavior.StateObserving, f.orch.controller.FSM().Current())
	stats := f.orch.Stats()
	assert.Equal(t, 1, stats.IntentsProposed)
	assert.Equal(t, 1, stats.PopupsRejected)
	assert.Zero(t, stats.PopupsShown)
}

func TestTickPanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.orch.brain = nil // proposer stage blows up once observing

	f.orch.safeTick(context.Background())

	assert.Equal(t, 1, f.orch.Stats().TickPanics)

	// The loop survives: restore and tick again.
	f.orch.brain = f.brain
	f.orch.safeTick(context.Background())
	assert.Equal(t, 1, f.orch.Stats().TickPanics)
}

func TestRunDrainsActionsAndStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	actions := make(chan ipc.UserAction, 1)
	f.orch.actions = actions
	f.orch.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.orch.Stats().PopupsShown >= 1
	}, 2*time.Second, 10*time.Millisecond)

	actions <- ipc.UserAction{Action: "Dismiss"}
	require.Eventually(t, func() bool {
		return f.orch.Stats().Dismissals == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

func TestApprovalRate(t *testing.T) {
	s := SessionStats{IntentsProposed: 4, PopupsShown: 1}
	assert.InDelta(t, 25.0, s.ApprovalRate(), 0.001)
	assert.Zero(t, SessionStats{}.ApprovalRate())
}
