// Package store persists a roadmap as one whole JSON document. Saves go
// through a temp file plus atomic rename, so a concurrent reader never
// observes a half-written state file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/smallnest/roadclaw/internal/logger"
	"github.com/smallnest/roadclaw/roadmap"
	"go.uber.org/zap"
)

// NotFoundError indicates that no state file exists at the path. Recoverable:
// the caller may offer to initialize a new project.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("state file not found: %s", e.Path)
}

// CorruptStateError indicates a state file that exists but does not hold a
// valid roadmap document. It is surfaced verbatim and never auto-repaired,
// so invariant-bearing fields are not silently dropped.
type CorruptStateError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %s", e.Path, e.Reason)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// requiredFields are the top-level keys a roadmap document must carry.
// Their absence means a schema mismatch, not an empty project.
var requiredFields = []string{"title", "tasks", "phases", "metadata"}

// Load reads and validates the whole roadmap document at path.
func Load(path string) (*roadmap.Roadmap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if !gjson.ValidBytes(data) {
		return nil, &CorruptStateError{Path: path, Reason: "not valid JSON"}
	}

	// Sniff the schema before decoding; a document missing required keys is
	// rejected rather than default-filled.
	doc := gjson.ParseBytes(data)
	for _, field := range requiredFields {
		if !doc.Get(field).Exists() {
			return nil, &CorruptStateError{Path: path, Reason: fmt.Sprintf("missing field %q", field)}
		}
	}
	if version := doc.Get("metadata.version"); version.String() != roadmap.SchemaVersion {
		return nil, &CorruptStateError{
			Path:   path,
			Reason: fmt.Sprintf("unsupported schema version %q", version.String()),
		}
	}

	var r roadmap.Roadmap
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &CorruptStateError{Path: path, Reason: "failed to decode roadmap", Err: err}
	}

	if err := roadmap.Validate(&r); err != nil {
		return nil, &CorruptStateError{Path: path, Reason: "invariant violation", Err: err}
	}

	return &r, nil
}

// Save writes the whole roadmap document atomically: serialize, write to a
// temp file in the same directory, fsync, rename over the target. The
// rename is the only externally observable step.
func Save(path string, r *roadmap.Roadmap) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal roadmap: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	logger.Debug("State file saved",
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)
	return nil
}
