package monitor

import "sync"

// The fakes below serve two purposes: deterministic tests, and running the
// daemon on platforms where the window/idle lookups are not wired yet.

// StaticWindowMonitor always reports the same window.
type StaticWindowMonitor struct {
	Info WindowInfo
	Err  error
}

func (m *StaticWindowMonitor) ActiveWindow() (WindowInfo, error) {
	return m.Info, m.Err
}

// StaticIdleDetector always reports the same idle time.
type StaticIdleDetector struct {
	Seconds int
	Err     error
}

func (m *StaticIdleDetector) IdleSeconds() (int, error) {
	return m.Seconds, m.Err
}

// FakeFileMonitor replays a scripted event list.
type FakeFileMonitor struct {
	mu     sync.Mutex
	Events []FileEvent
}

func (m *FakeFileMonitor) Append(ev FileEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
}

func (m *FakeFileMonitor) RecentEvents(limit int) []FileEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.Events) {
		limit = len(m.Events)
	}
	out := make([]FileEvent, limit)
	copy(out, m.Events[len(m.Events)-limit:])
	return out
}

func (m *FakeFileMonitor) Summary() ChangeSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKind := make(map[FileEventKind]int)
	var summary ChangeSummary
	for _, ev := range m.Events {
		byKind[ev.Kind]++
		if ev.Timestamp.After(summary.LastEvent) {
			summary.LastEvent = ev.Timestamp
		}
	}
	summary.TotalEvents = len(m.Events)
	summary.ByKind = byKind
	return summary
}
