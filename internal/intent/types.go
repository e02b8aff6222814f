// Package intent maps context snapshots to suggestion proposals. The primary
// path asks an Ollama model; the fallback path is a deterministic rule over
// a variety pool of canned messages.
package intent

import (
	"strings"
	"time"
)

// Kind is the semantic category of an intent.
type Kind string

const (
	KindSuggestHelp Kind = "suggest_help"
	KindRemind      Kind = "remind"
	KindInfo        Kind = "info"
	KindNone        Kind = "none"
)

// ParseKind normalises a model-provided intent string. remind and info are
// locked out in v0.2 and coerce to none, as does anything unrecognised.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.Contains(s, "suggest_help") || strings.Contains(s, "help") {
		return KindSuggestHelp
	}
	return KindNone
}

// Intent is a candidate suggestion. It is a value: the decision gate and the
// behavior FSM receive copies, never shared references.
type Intent struct {
	ID         string
	Kind       Kind
	Confidence float64
	Message    string

	// Reasoning is internal only. It must be stripped before the intent
	// crosses the proposer boundary and must never reach the UI or the
	// event log.
	Reasoning string

	CreatedAt time.Time
}

// None is the empty proposal.
func None() Intent {
	return Intent{Kind: KindNone}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
