package store

import (
	"path/filepath"
	"testing"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalAppendAndRecent(t *testing.T) {
	j := newTestJournal(t)

	if _, err := j.Append("/p/roadmap.json", "add_task", 1, "one"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := j.Append("/p/roadmap.json", "complete_task", 1, ""); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := j.Append("/other/roadmap.json", "add_task", 1, ""); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	entries, err := j.Recent("/p/roadmap.json", 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for project, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Project != "/p/roadmap.json" {
			t.Fatalf("entry from wrong project: %+v", e)
		}
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Fatalf("entry missing id or timestamp: %+v", e)
		}
	}

	all, err := j.Recent("", 10)
	if err != nil {
		t.Fatalf("recent all failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries across projects, got %d", len(all))
	}
}

func TestJournalAppendValidation(t *testing.T) {
	j := newTestJournal(t)

	if _, err := j.Append("", "add_task", 1, ""); err == nil {
		t.Fatalf("expected error for empty project")
	}
	if _, err := j.Append("/p/roadmap.json", "", 1, ""); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestOpenJournalEmptyPath(t *testing.T) {
	if _, err := OpenJournal(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
