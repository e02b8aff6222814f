package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFileWatcher_RecordsCreateAndWrite(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher(dir, nil)
	require.NoError(t, err)
	require.NoError(t, fw.Start(true))
	defer fw.Stop()

	path := filepath.Join(dir, "scratch.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	waitFor(t, 2*time.Second, func() bool {
		return fw.Summary().TotalEvents >= 1
	})

	events := fw.RecentEvents(10)
	require.NotEmpty(t, events)
	assert.Equal(t, path, events[0].Path)
}

func TestFileWatcher_IgnoresDirectoryEvents(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher(dir, nil)
	require.NoError(t, err)
	require.NoError(t, fw.Start(true))
	defer fw.Stop()

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	// The mkdir itself must not be recorded, but a file inside the new
	// directory must be (recursive pickup).
	path := filepath.Join(sub, "inner.txt")
	waitFor(t, 2*time.Second, func() bool {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			return false
		}
		for _, ev := range fw.RecentEvents(0) {
			if ev.Path == path {
				return true
			}
		}
		return false
	})

	for _, ev := range fw.RecentEvents(0) {
		assert.NotEqual(t, sub, ev.Path, "directory creation must not be recorded")
	}
}

func TestFileWatcher_RingIsBounded(t *testing.T) {
	fw := &FileWatcher{
		capacity: 5,
		counts:   make(map[FileEventKind]int),
		logger:   zap.NewNop(),
	}
	for i := 0; i < 12; i++ {
		fw.record(FileEvent{Kind: FileModified, Path: "f", Timestamp: time.Now()})
	}
	assert.Len(t, fw.RecentEvents(0), 5)
	assert.Equal(t, 12, fw.Summary().TotalEvents)
}

func TestFileWatcher_RecentEventsLimit(t *testing.T) {
	fw := &FileWatcher{
		capacity: 50,
		counts:   make(map[FileEventKind]int),
		logger:   zap.NewNop(),
	}
	for i := 0; i < 10; i++ {
		fw.record(FileEvent{Kind: FileCreated, Path: "f", Timestamp: time.Now()})
	}
	assert.Len(t, fw.RecentEvents(3), 3)
	assert.Len(t, fw.RecentEvents(0), 10)
}

func TestFakeFileMonitor(t *testing.T) {
	fm := &FakeFileMonitor{}
	now := time.Now()
	for i := 0; i < 4; i++ {
		fm.Append(FileEvent{Kind: FileModified, Path: "a.go", Timestamp: now})
	}
	assert.Len(t, fm.RecentEvents(2), 2)
	assert.Equal(t, 4, fm.Summary().TotalEvents)
	assert.Equal(t, 4, fm.Summary().ByKind[FileModified])
}
