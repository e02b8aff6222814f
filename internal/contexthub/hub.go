// Package contexthub fuses the monitor adapters into uniform context
// snapshots. A failing adapter never fails the snapshot: the affected field
// goes absent and the hub's error counter climbs.
package contexthub

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"orbit/internal/monitor"
)

const (
	// recentWindow is how many trailing file-monitor ring entries count as
	// "recent" for a snapshot.
	recentWindow = 5

	// telemetryRing is how many snapshots the hub keeps for introspection.
	telemetryRing = 8

	// latencyWarn flags slow assemblies.
	latencyWarn = 100 * time.Millisecond
)

// Hub assembles snapshots from the three monitor adapters.
type Hub struct {
	windows monitor.WindowMonitor
	idle    monitor.IdleDetector
	files   monitor.FileMonitor
	logger  *zap.Logger
	nowFn   func() time.Time

	mu         sync.Mutex
	seq        uint64
	errorCount int
	recent     []Snapshot
}

// New builds a Hub over the given adapters.
func New(windows monitor.WindowMonitor, idle monitor.IdleDetector, files monitor.FileMonitor, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		windows: windows,
		idle:    idle,
		files:   files,
		logger:  logger,
		nowFn:   time.Now,
	}
}

// Snapshot pulls every adapter in fixed order (window, idle, file events)
// and returns the fused result. Always returns a usable snapshot.
func (h *Hub) Snapshot() Snapshot {
	start := h.nowFn()

	var snap Snapshot
	snap.Timestamp = start

	if win, err := h.windows.ActiveWindow(); err != nil {
		h.recordError("window monitor read failed", err)
	} else {
		snap.ActiveApp = win.AppName
		snap.WindowTitle = win.WindowTitle
	}

	if sec, err := h.idle.IdleSeconds(); err != nil {
		h.recordError("idle detector read failed", err)
	} else {
		if sec < 0 {
			sec = 0
		}
		snap.IdleSeconds = sec
	}
	snap.IdleLevel = LevelForIdle(snap.IdleSeconds)
	snap.IsIdle = snap.IdleSeconds >= thresholdShort

	if h.files != nil {
		snap.RecentFileChanges = len(h.files.RecentEvents(recentWindow))
		snap.FileChangesTotal = h.files.Summary().TotalEvents
	}

	snap.LatencyMS = h.nowFn().Sub(start).Milliseconds()

	h.mu.Lock()
	snap.ErrorCount = h.errorCount
	snap.SnapshotCount = h.seq
	h.seq++
	h.recent = append(h.recent, snap)
	if len(h.recent) > telemetryRing {
		h.recent = h.recent[len(h.recent)-telemetryRing:]
	}
	h.mu.Unlock()

	if snap.LatencyMS > latencyWarn.Milliseconds() {
		h.logger.Warn("slow snapshot assembly", zap.Int64("latency_ms", snap.LatencyMS))
	}
	return snap
}

func (h *Hub) recordError(msg string, err error) {
	h.mu.Lock()
	h.errorCount++
	h.mu.Unlock()
	h.logger.Warn(msg, zap.Error(err))
}

// Stats reports hub counters.
type Stats struct {
	Snapshots uint64
	Errors    int
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Snapshots: h.seq, Errors: h.errorCount}
}

// Recent returns the telemetry ring, oldest first.
func (h *Hub) Recent() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Snapshot, len(h.recent))
	copy(out, h.recent)
	return out
}
