package monitor

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultEventHistory = 50

// FileWatcher watches a directory tree for file changes and keeps a bounded
// ring of recent events. Directory events are ignored; only file-level
// create/write/remove/rename activity is recorded.
type FileWatcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	root     string
	events   []FileEvent // ring, oldest first
	capacity int
	counts   map[FileEventKind]int
	total    int
	last     time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	logger   *zap.Logger
}

// NewFileWatcher creates a watcher rooted at path. Call Start to begin
// receiving events.
func NewFileWatcher(path string, logger *zap.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWatcher{
		watcher:  w,
		root:     path,
		capacity: defaultEventHistory,
		counts:   make(map[FileEventKind]int),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}, nil
}

// Start begins watching. With recursive=true every existing subdirectory is
// added, and directories created later are picked up from create events.
// Non-blocking; the event loop runs on its own goroutine.
func (fw *FileWatcher) Start(recursive bool) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = true
	fw.mu.Unlock()

	if err := fw.addPath(fw.root, recursive); err != nil {
		fw.logger.Warn("file watcher: initial watch failed",
			zap.String("path", fw.root), zap.Error(err))
	}

	go fw.loop(recursive)
	return nil
}

func (fw *FileWatcher) addPath(root string, recursive bool) error {
	if !recursive {
		return fw.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if err := fw.watcher.Add(p); err != nil {
				fw.logger.Debug("file watcher: cannot watch dir",
					zap.String("path", p), zap.Error(err))
			}
		}
		return nil
	})
}

func (fw *FileWatcher) loop(recursive bool) {
	defer close(fw.doneCh)
	for {
		select {
		case <-fw.stopCh:
			return
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(ev, recursive)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (fw *FileWatcher) handleEvent(ev fsnotify.Event, recursive bool) {
	// New directories need their own watch in recursive mode.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if recursive {
				if err := fw.watcher.Add(ev.Name); err != nil {
					fw.logger.Debug("file watcher: cannot watch new dir",
						zap.String("path", ev.Name), zap.Error(err))
				}
			}
			return
		}
	}

	var kind FileEventKind
	switch {
	case ev.Op.Has(fsnotify.Create):
		kind = FileCreated
	case ev.Op.Has(fsnotify.Write):
		kind = FileModified
	case ev.Op.Has(fsnotify.Remove):
		kind = FileDeleted
	case ev.Op.Has(fsnotify.Rename):
		kind = FileMoved
	default:
		return // chmod etc.
	}

	fw.record(FileEvent{Kind: kind, Path: ev.Name, Timestamp: time.Now()})
}

func (fw *FileWatcher) record(ev FileEvent) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.events = append(fw.events, ev)
	if len(fw.events) > fw.capacity {
		fw.events = fw.events[len(fw.events)-fw.capacity:]
	}
	fw.counts[ev.Kind]++
	fw.total++
	fw.last = ev.Timestamp

	fw.logger.Debug("file event",
		zap.String("kind", string(ev.Kind)),
		zap.String("path", ev.Path))
}

// RecentEvents returns up to limit events from the ring, newest last.
func (fw *FileWatcher) RecentEvents(limit int) []FileEvent {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	if limit <= 0 || limit > len(fw.events) {
		limit = len(fw.events)
	}
	out := make([]FileEvent, limit)
	copy(out, fw.events[len(fw.events)-limit:])
	return out
}

// Summary reports counters since start.
func (fw *FileWatcher) Summary() ChangeSummary {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	byKind := make(map[FileEventKind]int, len(fw.counts))
	for k, v := range fw.counts {
		byKind[k] = v
	}
	return ChangeSummary{TotalEvents: fw.total, ByKind: byKind, LastEvent: fw.last}
}

// Stop tears the watcher down and waits for the event loop to exit.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.stopCh)
	err := fw.watcher.Close()
	<-fw.doneCh
	return err
}
