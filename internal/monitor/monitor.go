// Package monitor defines the pull-style adapters the context aggregator
// reads: active window, input idle time, and recent file activity. The
// platform-specific window and idle lookups live behind interfaces; the file
// watcher has a real fsnotify implementation.
package monitor

import "time"

// WindowInfo describes the foreground window at the time of the call.
type WindowInfo struct {
	AppName     string
	WindowTitle string
	PID         int
	ExePath     string
	Changed     bool
}

// WindowMonitor reports the currently focused window.
type WindowMonitor interface {
	ActiveWindow() (WindowInfo, error)
}

// IdleDetector reports seconds since the last user input.
type IdleDetector interface {
	IdleSeconds() (int, error)
}

// FileEventKind classifies a filesystem event.
type FileEventKind string

const (
	FileCreated  FileEventKind = "created"
	FileModified FileEventKind = "modified"
	FileDeleted  FileEventKind = "deleted"
	FileMoved    FileEventKind = "moved"
)

// FileEvent is one observed change under the watch path.
type FileEvent struct {
	Kind      FileEventKind
	Path      string
	DestPath  string
	Timestamp time.Time
}

// ChangeSummary aggregates file watcher activity since start.
type ChangeSummary struct {
	TotalEvents int
	ByKind      map[FileEventKind]int
	LastEvent   time.Time
}

// FileMonitor exposes recent filesystem activity.
type FileMonitor interface {
	// RecentEvents returns up to limit events, newest last.
	RecentEvents(limit int) []FileEvent
	// Summary reports counters since the watcher started.
	Summary() ChangeSummary
}
