package behavior

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"orbit/internal/contexthub"
	"orbit/internal/intent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestFSM() (*FSM, *clock) {
	clk := &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	f := New(nil)
	f.nowFn = clk.Now
	f.enteredAt = clk.Now()
	return f, clk
}

func helpIntent() *intent.Intent {
	return &intent.Intent{
		ID:         "abc-123",
		Kind:       intent.KindSuggestHelp,
		Confidence: 0.85,
		Message:    "Butuh bantuan sama kodenya?",
		Reasoning:  "user idle in editor for five minutes",
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		to   State
		ok   bool
	}{
		{StateIdle, EventContextChanged, StateObserving, true},
		{StateIdle, EventIntentApproved, StateSuggesting, true},
		{StateIdle, EventEnterFocusMode, StateCooldownGlobal, true},
		{StateIdle, EventTimeout, StateIdle, false},
		{StateIdle, EventUserDismiss, StateIdle, false},

		{StateObserving, EventIntentApproved, StateSuggesting, true},
		{StateObserving, EventTimeout, StateIdle, true},
		{StateObserving, EventEnterFocusMode, StateCooldownGlobal, true},
		{StateObserving, EventContextChanged, StateObserving, false},
		{StateObserving, EventUserAction, StateObserving, false},

		{StateSuggesting, EventUserDismiss, StateSuppressed, true},
		{StateSuggesting, EventUserAction, StateExecuting, true},
		{StateSuggesting, EventTimeout, StateIdle, true},
		{StateSuggesting, EventEnterFocusMode, StateCooldownGlobal, true},
		{StateSuggesting, EventIntentApproved, StateSuggesting, false},

		{StateExecuting, EventTimeout, StateIdle, true},
		{StateExecuting, EventUserDismiss, StateSuppressed, true},
		{StateExecuting, EventContextChanged, StateExecuting, false},

		{StateSuppressed, EventCooldownExpired, StateIdle, true},
		{StateSuppressed, EventContextChanged, StateSuppressed, false},
		{StateSuppressed, EventIntentApproved, StateSuppressed, false},

		{StateCooldownGlobal, EventExitFocusMode, StateIdle, true},
		{StateCooldownGlobal, EventContextChanged, StateCooldownGlobal, false},
		{StateCooldownGlobal, EventIntentApproved, StateCooldownGlobal, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_"+string(tc.ev), func(t *testing.T) {
			f, _ := newTestFSM()
			f.current = tc.from

			fired := f.Trigger(tc.ev, nil)
			assert.Equal(t, tc.ok, fired)
			assert.Equal(t, tc.to, f.Current())
		})
	}
}

func TestTrigger_HoldsIntentCopyThroughSuggestAndExecute(t *testing.T) {
	f, _ := newTestFSM()
	in := helpIntent()

	require.True(t, f.Trigger(EventIntentApproved, in))

	held, ok := f.HeldIntent()
	require.True(t, ok)
	assert.Equal(t, "abc-123", held.ID)

	// Mutating the caller's value must not reach the FSM's copy.
	in.Message = "changed"
	held, _ = f.HeldIntent()
	assert.Equal(t, "Butuh bantuan sama kodenya?", held.Message)

	// USER_ACTION keeps the intent for EXECUTING.
	require.True(t, f.Trigger(EventUserAction, nil))
	held, ok = f.HeldIntent()
	require.True(t, ok)
	assert.Equal(t, "abc-123", held.ID)

	// Leaving EXECUTING drops it.
	require.True(t, f.Trigger(EventTimeout, nil))
	_, ok = f.HeldIntent()
	assert.False(t, ok)
}

func TestTick_Timeouts(t *testing.T) {
	cases := []struct {
		state   State
		timeout time.Duration
		lands   State
	}{
		{StateObserving, 30 * time.Second, StateIdle},
		{StateSuggesting, 60 * time.Second, StateIdle},
		{StateExecuting, 10 * time.Second, StateIdle},
		{StateSuppressed, 600 * time.Second, StateIdle},
	}

	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			f, clk := newTestFSM()
			f.current = tc.state
			f.enteredAt = clk.Now()

			clk.Advance(tc.timeout - time.Second)
			assert.False(t, f.Tick(), "one second early must not fire")
			assert.Equal(t, tc.state, f.Current())

			clk.Advance(time.Second)
			assert.True(t, f.Tick())
			assert.Equal(t, tc.lands, f.Current())
		})
	}
}

func TestTick_IdleAndCooldownGlobalNeverTimeOut(t *testing.T) {
	for _, state := range []State{StateIdle, StateCooldownGlobal} {
		f, clk := newTestFSM()
		f.current = state
		clk.Advance(24 * time.Hour)
		assert.False(t, f.Tick())
		assert.Equal(t, state, f.Current())
	}
}

func TestUIOutput_PerState(t *testing.T) {
	f, _ := newTestFSM()

	out := f.UIOutput()
	assert.Equal(t, StateIdle, out.State)
	assert.Equal(t, EmotionNeutral, out.Emotion)
	assert.False(t, out.Visible)
	assert.Nil(t, out.Bubble)

	require.True(t, f.Trigger(EventContextChanged, nil))
	out = f.UIOutput()
	assert.Equal(t, EmotionCurious, out.Emotion)
	assert.True(t, out.Visible)
	assert.Nil(t, out.Bubble, "observing shows the avatar only")

	require.True(t, f.Trigger(EventIntentApproved, helpIntent()))
	out = f.UIOutput()
	assert.Equal(t, EmotionHelpful, out.Emotion)
	assert.True(t, out.Visible)
	require.NotNil(t, out.Bubble)
	assert.Equal(t, "Butuh bantuan sama kodenya?", out.Bubble.Text)
	assert.Equal(t, []string{"Ya", "Nanti", "Dismiss"}, out.Bubble.Actions)
	assert.Equal(t, "abc-123", out.IntentID)

	require.True(t, f.Trigger(EventUserAction, nil))
	out = f.UIOutput()
	assert.Equal(t, EmotionWorking, out.Emotion)
	require.NotNil(t, out.Bubble)
	assert.Equal(t, "Sedang diproses...", out.Bubble.Text)
	assert.Empty(t, out.Bubble.Actions)

	require.True(t, f.Trigger(EventUserDismiss, nil))
	out = f.UIOutput()
	assert.Equal(t, EmotionQuiet, out.Emotion)
	assert.False(t, out.Visible)
}

func TestUIOutput_FallbackBubbleText(t *testing.T) {
	f, _ := newTestFSM()
	in := helpIntent()
	in.Message = ""

	require.True(t, f.Trigger(EventIntentApproved, in))
	out := f.UIOutput()
	require.NotNil(t, out.Bubble)
	assert.Equal(t, "Ada yang bisa kubantu?", out.Bubble.Text)
}

func TestUIOutput_NeverCarriesReasoning(t *testing.T) {
	f, _ := newTestFSM()
	require.True(t, f.Trigger(EventIntentApproved, helpIntent()))

	raw, err := json.Marshal(f.UIOutput())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "reasoning")
	assert.NotContains(t, string(raw), "idle in editor")
}

func TestUpdates_PublishedOnEveryTransitionNonBlocking(t *testing.T) {
	f, _ := newTestFSM()

	require.True(t, f.Trigger(EventContextChanged, nil))
	select {
	case u := <-f.Updates():
		assert.Equal(t, StateObserving, u.State)
	default:
		t.Fatal("expected a buffered ui update")
	}

	// Fill the buffer well past capacity; transitions must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			f.Trigger(EventIntentApproved, helpIntent())
			f.Trigger(EventTimeout, nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("transition blocked on full updates channel")
	}
}

func TestHistory_BoundedRing(t *testing.T) {
	f, _ := newTestFSM()

	for i := 0; i < 80; i++ {
		require.True(t, f.Trigger(EventContextChanged, nil))
		require.True(t, f.Trigger(EventTimeout, nil))
	}

	hist := f.History(0)
	assert.Len(t, hist, historyLimit)

	last := hist[len(hist)-1]
	assert.Equal(t, StateObserving, last.From)
	assert.Equal(t, StateIdle, last.To)
	assert.Equal(t, EventTimeout, last.Event)

	assert.Len(t, f.History(5), 5)
}

func TestController_HandleContextChange(t *testing.T) {
	interesting := contexthub.Snapshot{ActiveApp: "Code.exe", IdleSeconds: 350, IsIdle: true}
	boring := contexthub.Snapshot{ActiveApp: "Chrome.exe", IdleSeconds: 10}

	t.Run("interesting from idle observes", func(t *testing.T) {
		c := NewController(nil, nil)
		assert.True(t, c.HandleContextChange(interesting))
		assert.Equal(t, StateObserving, c.FSM().Current())
	})

	t.Run("boring snapshot stays idle", func(t *testing.T) {
		c := NewController(nil, nil)
		assert.False(t, c.HandleContextChange(boring))
		assert.Equal(t, StateIdle, c.FSM().Current())
	})

	t.Run("ignored outside idle", func(t *testing.T) {
		c := NewController(nil, nil)
		require.True(t, c.HandleContextChange(interesting))
		assert.False(t, c.HandleContextChange(interesting))
	})

	t.Run("ignored in focus mode", func(t *testing.T) {
		c := NewController(nil, nil)
		c.EnterFocusMode()
		assert.False(t, c.HandleContextChange(interesting))
		assert.Equal(t, StateCooldownGlobal, c.FSM().Current())
	})
}

func TestController_HandleUserAction(t *testing.T) {
	suggest := func(t *testing.T) *Controller {
		t.Helper()
		c := NewController(nil, nil)
		require.True(t, c.HandleIntentApproved(*helpIntent()))
		return c
	}

	t.Run("affirmatives execute", func(t *testing.T) {
		for _, action := range []string{"Ya", "Yes", "OK"} {
			c := suggest(t)
			assert.False(t, c.HandleUserAction(action))
			assert.Equal(t, StateExecuting, c.FSM().Current())
		}
	})

	t.Run("deferrals read as timeout", func(t *testing.T) {
		for _, action := range []string{"Nanti", "Later"} {
			c := suggest(t)
			assert.False(t, c.HandleUserAction(action))
			assert.Equal(t, StateIdle, c.FSM().Current())
		}
	})

	t.Run("dismiss suppresses and reports", func(t *testing.T) {
		c := suggest(t)
		assert.True(t, c.HandleUserAction("Dismiss"))
		assert.Equal(t, StateSuppressed, c.FSM().Current())
	})

	t.Run("unknown action ignored", func(t *testing.T) {
		c := suggest(t)
		assert.False(t, c.HandleUserAction("maybe?"))
		assert.Equal(t, StateSuggesting, c.FSM().Current())
	})

	t.Run("ignored outside suggesting", func(t *testing.T) {
		c := NewController(nil, nil)
		assert.False(t, c.HandleUserAction("Dismiss"))
		assert.Equal(t, StateIdle, c.FSM().Current())
	})
}

func TestController_FocusModeRoundTrip(t *testing.T) {
	c := NewController(nil, nil)

	c.EnterFocusMode()
	assert.Equal(t, StateCooldownGlobal, c.FSM().Current())

	// Exiting while not in focus mode is a no-op elsewhere.
	c.ExitFocusMode()
	assert.Equal(t, StateIdle, c.FSM().Current())

	c.ExitFocusMode()
	assert.Equal(t, StateIdle, c.FSM().Current())
}
