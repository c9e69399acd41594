package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"
)

// JournalEntry records one applied mutation.
type JournalEntry struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	Kind      string    `json:"kind"`
	TaskID    int       `json:"task_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal is an append-only SQLite log of applied mutations. It is
// best-effort bookkeeping: a journal failure never blocks a committed
// mutation.
type Journal struct {
	db   *sql.DB
	path string
}

// OpenJournal opens (creating if needed) the journal database at dbPath.
func OpenJournal(dbPath string) (*Journal, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}

	j := &Journal{db: db, path: dbPath}
	if err := j.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS mutations (
  id TEXT PRIMARY KEY,
  project TEXT NOT NULL,
  kind TEXT NOT NULL,
  task_id INTEGER DEFAULT 0,
  detail TEXT DEFAULT '',
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mutations_project ON mutations(project, created_at DESC);`

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append records one applied mutation.
func (j *Journal) Append(project, kind string, taskID int, detail string) (*JournalEntry, error) {
	if strings.TrimSpace(project) == "" {
		return nil, fmt.Errorf("project is required")
	}
	if strings.TrimSpace(kind) == "" {
		return nil, fmt.Errorf("kind is required")
	}

	entry := &JournalEntry{
		ID:        uuid.NewString(),
		Project:   project,
		Kind:      kind,
		TaskID:    taskID,
		Detail:    strings.TrimSpace(detail),
		CreatedAt: time.Now().UTC(),
	}

	_, err := j.db.Exec(
		`INSERT INTO mutations(id, project, kind, task_id, detail, created_at) VALUES(?,?,?,?,?,?)`,
		entry.ID, entry.Project, entry.Kind, entry.TaskID, entry.Detail, entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append journal entry: %w", err)
	}
	return entry, nil
}

// Recent returns the most recent entries for a project, newest first.
// project may be empty to list across projects.
func (j *Journal) Recent(project string, limit int) ([]*JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(project) == "" {
		rows, err = j.db.Query(
			`SELECT id, project, kind, task_id, detail, created_at
       FROM mutations ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = j.db.Query(
			`SELECT id, project, kind, task_id, detail, created_at
       FROM mutations WHERE project = ? ORDER BY created_at DESC LIMIT ?`, project, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		var (
			entry     JournalEntry
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.Project, &entry.Kind, &entry.TaskID, &entry.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal: %w", err)
	}
	return entries, nil
}
