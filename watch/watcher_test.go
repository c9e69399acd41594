package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/roadclaw/roadmap"
	"github.com/smallnest/roadclaw/store"
)

func writeRoadmap(t *testing.T, path, title string, taskCount int) {
	t.Helper()

	r := roadmap.New(title)
	for i := 1; i <= taskCount; i++ {
		r.Tasks = append(r.Tasks, &roadmap.Task{
			ID:          i,
			Description: "task",
			Status:      roadmap.StatusPending,
			Priority:    roadmap.PriorityMedium,
			CreatedAt:   time.Now().UTC(),
		})
	}
	if err := store.Save(path, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func newTestWatcher(t *testing.T, path string) *Watcher {
	t.Helper()

	w, err := New(path, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w.Start(ctx)
	return w
}

func TestBurstOfWritesProducesOneChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roadmap.json")
	writeRoadmap(t, path, "demo", 0)

	w := newTestWatcher(t, path)

	// Five writes inside the debounce window coalesce into one signal.
	for i := 1; i <= 5; i++ {
		writeRoadmap(t, path, "demo", i)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case change := <-w.Changes():
		if change.Roadmap == nil {
			t.Fatalf("change carries no roadmap")
		}
		if len(change.Roadmap.Tasks) != 5 {
			t.Fatalf("expected final document with 5 tasks, got %d", len(change.Roadmap.Tasks))
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no change delivered")
	}

	// The window has passed; no second signal for the same burst.
	select {
	case change := <-w.Changes():
		t.Fatalf("unexpected second change: %+v", change)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestSeparateBurstsProduceSeparateChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roadmap.json")
	writeRoadmap(t, path, "demo", 0)

	w := newTestWatcher(t, path)

	writeRoadmap(t, path, "demo", 1)
	select {
	case <-w.Changes():
	case <-time.After(3 * time.Second):
		t.Fatalf("first change not delivered")
	}

	writeRoadmap(t, path, "demo", 2)
	select {
	case change := <-w.Changes():
		if len(change.Roadmap.Tasks) != 2 {
			t.Fatalf("expected 2 tasks in second change, got %d", len(change.Roadmap.Tasks))
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("second change not delivered")
	}
}

func TestCorruptWriteRetainsLastKnownGood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roadmap.json")
	writeRoadmap(t, path, "demo", 2)

	w := newTestWatcher(t, path)
	if w.Snapshot() == nil {
		t.Fatalf("expected initial snapshot")
	}

	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// No change is propagated for a corrupt document.
	select {
	case change := <-w.Changes():
		t.Fatalf("corrupt state was propagated: %+v", change)
	case <-time.After(600 * time.Millisecond):
	}

	snapshot := w.Snapshot()
	if snapshot == nil || len(snapshot.Tasks) != 2 {
		t.Fatalf("last-known-good snapshot lost: %+v", snapshot)
	}
}

func TestSiblingFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roadmap.json")
	writeRoadmap(t, path, "demo", 1)

	w := newTestWatcher(t, path)

	if err := os.WriteFile(filepath.Join(dir, "roadmap.md"), []byte("# mirror"), 0644); err != nil {
		t.Fatalf("write sibling failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("x: 1"), 0644); err != nil {
		t.Fatalf("write sibling failed: %v", err)
	}

	select {
	case change := <-w.Changes():
		t.Fatalf("sibling write triggered a change: %+v", change)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestMissingFileAtStartHasNoSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roadmap.json")

	w := newTestWatcher(t, path)
	if w.Snapshot() != nil {
		t.Fatalf("expected nil snapshot for missing file")
	}

	// First write becomes the snapshot.
	writeRoadmap(t, path, "demo", 1)
	select {
	case <-w.Changes():
	case <-time.After(3 * time.Second):
		t.Fatalf("change for initial write not delivered")
	}
	if w.Snapshot() == nil {
		t.Fatalf("snapshot not updated after first write")
	}
}
