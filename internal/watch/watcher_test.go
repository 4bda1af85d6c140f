package watch_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pbellet/sessionlog/internal/watch"
)

type recordingInvalidator struct {
	mu  sync.Mutex
	ids map[string]int
}

func newRecordingInvalidator() *recordingInvalidator {
	return &recordingInvalidator{ids: make(map[string]int)}
}

func (r *recordingInvalidator) Invalidate(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[sessionID]++
}

func (r *recordingInvalidator) count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ids[sessionID]
}

// waitFor polls until cond holds or the deadline passes. fsnotify
// delivers asynchronously, so assertions on it have to poll.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_InvalidatesOnSessionFileWrite(t *testing.T) {
	root := t.TempDir()
	sessionDir := filepath.Join(root, "abc-123")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir session: %v", err)
	}

	inv := newRecordingInvalidator()
	w, err := watch.New(root, inv, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = w.Stop() }()

	logPath := filepath.Join(sessionDir, "messages.jsonl")
	if err := os.WriteFile(logPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	if !waitFor(t, func() bool { return inv.count("abc-123") > 0 }) {
		t.Fatal("write to an existing session directory did not invalidate")
	}
}

func TestWatcher_PicksUpNewSessionDirectories(t *testing.T) {
	root := t.TempDir()
	inv := newRecordingInvalidator()
	w, err := watch.New(root, inv, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = w.Stop() }()

	// A session created after Start must get its own watch.
	sessionDir := filepath.Join(root, "later-456")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir session: %v", err)
	}
	if !waitFor(t, func() bool { return inv.count("later-456") > 0 }) {
		t.Fatal("session directory creation did not invalidate")
	}

	before := inv.count("later-456")
	if err := os.WriteFile(filepath.Join(sessionDir, "metadata.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	if !waitFor(t, func() bool { return inv.count("later-456") > before }) {
		t.Fatal("write inside a post-start session directory did not invalidate")
	}
}

func TestWatcher_StopIsClean(t *testing.T) {
	root := t.TempDir()
	w, err := watch.New(root, newRecordingInvalidator(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
