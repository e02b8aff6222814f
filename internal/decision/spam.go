package decision

import (
	"fmt"
	"time"

	"orbit/internal/intent"
)

// spamWindow is the rolling budget window.
const spamWindow = time.Hour

// SpamLedger enforces the rolling-hour popup budget and the same-kind
// repetition window. History rings are trimmed on every query.
type SpamLedger struct {
	maxPerHour     int
	sameKindWindow time.Duration

	popups   []time.Time
	kindHist map[intent.Kind][]time.Time

	nowFn func() time.Time
}

// NewSpamLedger builds the ledger.
func NewSpamLedger(maxPerHour int, sameKindWindow time.Duration) *SpamLedger {
	return &SpamLedger{
		maxPerHour:     maxPerHour,
		sameKindWindow: sameKindWindow,
		kindHist:       make(map[intent.Kind][]time.Time),
		nowFn:          time.Now,
	}
}

// IsSpam reports whether showing kind now would blow the budget.
func (s *SpamLedger) IsSpam(kind intent.Kind) (bool, string) {
	now := s.nowFn()
	s.trim(now)

	if len(s.popups) >= s.maxPerHour {
		return true, fmt.Sprintf("Max popups/hour reached (%d)", s.maxPerHour)
	}

	for _, t := range s.kindHist[kind] {
		if now.Sub(t) < s.sameKindWindow {
			return true, fmt.Sprintf("Same intent shown recently (<%ds)", int(s.sameKindWindow/time.Second))
		}
	}

	return false, "Not spam"
}

// RecordPopup appends to both rings.
func (s *SpamLedger) RecordPopup(kind intent.Kind) {
	now := s.nowFn()
	s.popups = append(s.popups, now)
	s.kindHist[kind] = append(s.kindHist[kind], now)
}

// PopupsLastHour reports the current rolling count.
func (s *SpamLedger) PopupsLastHour() int {
	s.trim(s.nowFn())
	return len(s.popups)
}

func (s *SpamLedger) trim(now time.Time) {
	cutoff := now.Add(-spamWindow)

	kept := s.popups[:0]
	for _, t := range s.popups {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.popups = kept

	for kind, hist := range s.kindHist {
		keptKind := hist[:0]
		for _, t := range hist {
			if t.After(cutoff) {
				keptKind = append(keptKind, t)
			}
		}
		if len(keptKind) == 0 {
			delete(s.kindHist, kind)
			continue
		}
		s.kindHist[kind] = keptKind
	}
}

// Reset clears both rings.
func (s *SpamLedger) Reset() {
	s.popups = nil
	s.kindHist = make(map[intent.Kind][]time.Time)
}
