package roadmap

import (
	"sort"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

// IsValidStatus reports whether s is a known task status.
func IsValidStatus(s TaskStatus) bool {
	return s == StatusPending || s == StatusCompleted
}

// Priority of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValidPriority reports whether p is a known priority.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// TimeSession is one tracked work interval on a task.
type TimeSession struct {
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Open reports whether the session has not been stopped yet.
func (s *TimeSession) Open() bool {
	return s.End == nil
}

// Task is an atomic unit of work with status, metadata and dependency edges.
// IDs are assigned once and never reused.
type Task struct {
	ID             int           `json:"id"`
	Description    string        `json:"description"`
	Status         TaskStatus    `json:"status"`
	Priority       Priority      `json:"priority"`
	Phase          string        `json:"phase"`
	Tags           []string      `json:"tags,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	Dependencies   []int         `json:"dependencies,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	EstimatedHours *float64      `json:"estimated_hours,omitempty"`
	ActualHours    *float64      `json:"actual_hours,omitempty"`
	Sessions       []TimeSession `json:"sessions,omitempty"`
}

// DependsOn reports whether the task lists id as a direct dependency.
func (t *Task) DependsOn(id int) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// OpenSession returns the currently running time session, if any.
func (t *Task) OpenSession() *TimeSession {
	for i := range t.Sessions {
		if t.Sessions[i].Open() {
			return &t.Sessions[i]
		}
	}
	return nil
}

// Phase is a named bucket grouping tasks by lifecycle stage.
// Names are unique case-insensitively.
type Phase struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Emoji       string `json:"emoji,omitempty"`
	Custom      bool   `json:"custom"`
}

// DefaultPhases returns the five built-in phases.
func DefaultPhases() []Phase {
	return []Phase{
		{Name: "MVP", Description: "Minimum viable product", Emoji: "🚀"},
		{Name: "Beta", Description: "Beta testing", Emoji: "🧪"},
		{Name: "Release", Description: "Production release", Emoji: "📦"},
		{Name: "Future", Description: "Future work", Emoji: "🔮"},
		{Name: "Backlog", Description: "Unscheduled", Emoji: "📥"},
	}
}

// ProjectMetadata describes the project document itself.
type ProjectMetadata struct {
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
	Version      string    `json:"version"`
}

// SchemaVersion is the persisted document version.
const SchemaVersion = "1"

// Roadmap is the aggregate root: an ordered task list plus phases and
// metadata. Task order is insertion order and is stable across save/load.
type Roadmap struct {
	Title      string          `json:"title"`
	Tasks      []*Task         `json:"tasks"`
	Phases     []Phase         `json:"phases"`
	SourcePath string          `json:"source_path,omitempty"`
	Metadata   ProjectMetadata `json:"metadata"`
}

// New creates an empty roadmap with the built-in phases.
func New(title string) *Roadmap {
	now := time.Now().UTC()
	return &Roadmap{
		Title:  title,
		Tasks:  []*Task{},
		Phases: DefaultPhases(),
		Metadata: ProjectMetadata{
			Name:         title,
			CreatedAt:    now,
			LastModified: now,
			Version:      SchemaVersion,
		},
	}
}

// FindTask returns the task with the given id, or nil.
func (r *Roadmap) FindTask(id int) *Task {
	for _, t := range r.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// NextID returns the next unused task id. IDs are never reused, so the
// result is one past the highest id ever assigned, not a gap fill.
func (r *Roadmap) NextID() int {
	max := 0
	for _, t := range r.Tasks {
		if t.ID > max {
			max = t.ID
		}
	}
	return max + 1
}

// FindPhase returns the phase with the given name, matched
// case-insensitively, or nil.
func (r *Roadmap) FindPhase(name string) *Phase {
	for i := range r.Phases {
		if strings.EqualFold(r.Phases[i].Name, name) {
			return &r.Phases[i]
		}
	}
	return nil
}

// Dependents returns the ids of tasks that list id as a direct dependency,
// in ascending order.
func (r *Roadmap) Dependents(id int) []int {
	var out []int
	for _, t := range r.Tasks {
		if t.DependsOn(id) {
			out = append(out, t.ID)
		}
	}
	sort.Ints(out)
	return out
}

// Touch updates the last-modified timestamp.
func (r *Roadmap) Touch() {
	r.Metadata.LastModified = time.Now().UTC()
}
