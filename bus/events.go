// Package bus fans mutation events out to live viewer sessions. Each
// project path has its own subscriber set; delivery is at-most-once per
// still-connected session.
package bus

import "time"

// EventType classifies a broadcast event.
type EventType string

const (
	// EventWelcome greets a newly connected session.
	EventWelcome EventType = "welcome"
	// EventTaskUpdated signals a task-level mutation applied through the
	// gateway.
	EventTaskUpdated EventType = "task_updated"
	// EventProjectModified signals an externally detected change to the
	// project state file.
	EventProjectModified EventType = "project_modified"
	// EventConfigChanged signals a change to project configuration.
	EventConfigChanged EventType = "config_changed"
)

// Event is one message delivered to live sessions. Consumers refetch the
// whole document on receipt; Data is informational, not a delta.
type Event struct {
	Type      EventType   `json:"type"`
	Project   string      `json:"project"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType EventType, project string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Project:   project,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
