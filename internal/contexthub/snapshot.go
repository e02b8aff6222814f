package contexthub

import "time"

// IdleLevel buckets idle time into coarse bands.
type IdleLevel string

const (
	IdleActive IdleLevel = "active" // < 60s
	IdleShort  IdleLevel = "short"  // >= 60s
	IdleMedium IdleLevel = "medium" // >= 180s
	IdleLong   IdleLevel = "long"   // >= 300s
)

// Idle thresholds in seconds. Boundary values land in the higher band.
const (
	thresholdShort  = 60
	thresholdMedium = 180
	thresholdLong   = 300
)

// LevelForIdle maps idle seconds to an IdleLevel.
func LevelForIdle(seconds int) IdleLevel {
	switch {
	case seconds >= thresholdLong:
		return IdleLong
	case seconds >= thresholdMedium:
		return IdleMedium
	case seconds >= thresholdShort:
		return IdleShort
	default:
		return IdleActive
	}
}

// Snapshot is one immutable fused reading of the user's environment.
// It is built once per tick by the Hub and passed around by value.
type Snapshot struct {
	Timestamp   time.Time
	ActiveApp   string // empty when the window monitor failed or no focus
	WindowTitle string
	IdleSeconds int
	IdleLevel   IdleLevel
	IsIdle      bool

	// RecentFileChanges counts events in the last snapshot window of the
	// file monitor ring, not all events since start.
	RecentFileChanges int
	FileChangesTotal  int

	// ErrorCount is the hub's running count of failed adapter reads.
	ErrorCount int

	LatencyMS     int64
	SnapshotCount uint64
}

// Interesting reports whether the snapshot warrants leaving IDLE.
func (s Snapshot) Interesting() bool {
	if s.IdleSeconds >= thresholdMedium {
		return true
	}
	if s.RecentFileChanges > 3 {
		return true
	}
	return s.ErrorCount > 0
}
