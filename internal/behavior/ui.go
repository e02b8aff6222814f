package behavior

// Emotion shown by the widget avatar.
type Emotion string

const (
	EmotionNeutral Emotion = "neutral"
	EmotionCurious Emotion = "curious"
	EmotionHelpful Emotion = "helpful"
	EmotionWorking Emotion = "working"
	EmotionQuiet   Emotion = "quiet"
)

// defaultSuggestText is shown when a suggestion carries no message.
const defaultSuggestText = "Ada yang bisa kubantu?"

// Bubble is the optional speech bubble next to the avatar.
type Bubble struct {
	Text    string   `json:"text"`
	Actions []string `json:"actions"`
}

// UIUpdate is the immutable frame payload sent to the widget. The held
// intent's reasoning never appears here.
type UIUpdate struct {
	State    State   `json:"state"`
	Emotion  Emotion `json:"emotion"`
	Visible  bool    `json:"visible"`
	Bubble   *Bubble `json:"bubble,omitempty"`
	IntentID string  `json:"intent_id,omitempty"`
}

var suggestActions = []string{"Ya", "Nanti", "Dismiss"}

// UIOutput derives the current frame from state and held intent.
func (f *FSM) UIOutput() UIUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uiOutputLocked()
}

func (f *FSM) uiOutputLocked() UIUpdate {
	switch f.current {
	case StateObserving:
		return UIUpdate{State: StateObserving, Emotion: EmotionCurious, Visible: true}

	case StateSuggesting:
		text := defaultSuggestText
		id := ""
		if f.intent != nil {
			if f.intent.Message != "" {
				text = f.intent.Message
			}
			id = f.intent.ID
		}
		actions := make([]string, len(suggestActions))
		copy(actions, suggestActions)
		return UIUpdate{
			State:    StateSuggesting,
			Emotion:  EmotionHelpful,
			Visible:  true,
			Bubble:   &Bubble{Text: text, Actions: actions},
			IntentID: id,
		}

	case StateExecuting:
		id := ""
		if f.intent != nil {
			id = f.intent.ID
		}
		return UIUpdate{
			State:    StateExecuting,
			Emotion:  EmotionWorking,
			Visible:  true,
			Bubble:   &Bubble{Text: "Sedang diproses...", Actions: []string{}},
			IntentID: id,
		}

	case StateSuppressed, StateCooldownGlobal:
		return UIUpdate{State: f.current, Emotion: EmotionQuiet, Visible: false}

	default:
		return UIUpdate{State: StateIdle, Emotion: EmotionNeutral, Visible: false}
	}
}
