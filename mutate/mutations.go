package mutate

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/roadclaw/roadmap"
)

// Mutation is one validated change to a roadmap. Apply must either leave
// the roadmap untouched and return an error, or fully apply the change;
// partially-applied mutations are never observable.
type Mutation interface {
	Kind() string
	Apply(r *roadmap.Roadmap) error
}

// describer lets a mutation contribute a journal line after it applied.
type describer interface {
	describe() (taskID int, detail string)
}

// AddTask creates a new task. The assigned id is stored in CreatedID after
// a successful apply.
type AddTask struct {
	Description    string
	Priority       roadmap.Priority
	Phase          string
	Tags           []string
	Notes          string
	Dependencies   []int
	EstimatedHours *float64

	CreatedID int
}

func (m *AddTask) Kind() string { return "add_task" }

func (m *AddTask) Apply(r *roadmap.Roadmap) error {
	description := strings.TrimSpace(m.Description)
	if description == "" {
		return fmt.Errorf("task description is required")
	}

	priority := m.Priority
	if priority == "" {
		priority = roadmap.PriorityMedium
	}
	if !roadmap.IsValidPriority(priority) {
		return fmt.Errorf("invalid priority: %s", priority)
	}

	phase := m.Phase
	if phase == "" {
		phase = "Backlog"
	}
	p := r.FindPhase(phase)
	if p == nil {
		return &roadmap.UnknownPhaseError{Phase: phase}
	}

	if m.EstimatedHours != nil && *m.EstimatedHours < 0 {
		return fmt.Errorf("estimated hours must be non-negative")
	}

	// The new id is not in the roadmap yet, so an unknown-task check on the
	// dependencies also rules out self-dependency.
	for _, dep := range m.Dependencies {
		if r.FindTask(dep) == nil {
			return &roadmap.UnknownTaskError{TaskID: dep}
		}
	}

	id := r.NextID()
	task := &roadmap.Task{
		ID:             id,
		Description:    description,
		Status:         roadmap.StatusPending,
		Priority:       priority,
		Phase:          p.Name,
		Tags:           dedupeTags(m.Tags),
		Notes:          strings.TrimSpace(m.Notes),
		Dependencies:   append([]int(nil), m.Dependencies...),
		CreatedAt:      time.Now().UTC(),
		EstimatedHours: m.EstimatedHours,
	}
	r.Tasks = append(r.Tasks, task)
	m.CreatedID = id
	return nil
}

func (m *AddTask) describe() (int, string) { return m.CreatedID, m.Description }

// CompleteTask transitions a task to completed. It is rejected while any
// dependency is still pending. An open time session is stopped as part of
// completion.
type CompleteTask struct {
	ID int
}

func (m *CompleteTask) Kind() string { return "complete_task" }

func (m *CompleteTask) Apply(r *roadmap.Roadmap) error {
	if err := roadmap.CanComplete(r, m.ID); err != nil {
		return err
	}

	task := r.FindTask(m.ID)
	if task.Status == roadmap.StatusCompleted {
		return fmt.Errorf("task %d is already completed", m.ID)
	}

	now := time.Now().UTC()
	if open := task.OpenSession(); open != nil {
		stopSession(task, open, now)
	}
	task.Status = roadmap.StatusCompleted
	task.CompletedAt = &now
	return nil
}

func (m *CompleteTask) describe() (int, string) { return m.ID, "" }

// EditTask updates task fields. Nil pointers leave a field untouched.
// Reopen moves a completed task back to pending; it is rejected while any
// completed task still depends on this one.
type EditTask struct {
	ID             int
	Description    *string
	Notes          *string
	Tags           *[]string
	EstimatedHours *float64
	ActualHours    *float64
	Reopen         bool
}

func (m *EditTask) Kind() string { return "edit_task" }

func (m *EditTask) Apply(r *roadmap.Roadmap) error {
	task := r.FindTask(m.ID)
	if task == nil {
		return &roadmap.UnknownTaskError{TaskID: m.ID}
	}

	// Validate every field before assigning any, so a rejected edit leaves
	// the task untouched.
	description := ""
	if m.Description != nil {
		description = strings.TrimSpace(*m.Description)
		if description == "" {
			return fmt.Errorf("task description cannot be empty")
		}
	}
	if m.EstimatedHours != nil && *m.EstimatedHours < 0 {
		return fmt.Errorf("estimated hours must be non-negative")
	}
	if m.ActualHours != nil && *m.ActualHours < 0 {
		return fmt.Errorf("actual hours must be non-negative")
	}
	if m.Reopen && task.Status == roadmap.StatusCompleted {
		// A completed dependent would be left completed atop a pending
		// dependency, which fails the completion-ordering check on the
		// next load.
		var completed []int
		for _, depID := range r.Dependents(task.ID) {
			if d := r.FindTask(depID); d != nil && d.Status == roadmap.StatusCompleted {
				completed = append(completed, depID)
			}
		}
		if len(completed) > 0 {
			return &roadmap.HasDependentsError{TaskID: task.ID, Dependents: completed}
		}
	}

	if m.Description != nil {
		task.Description = description
	}
	if m.Notes != nil {
		task.Notes = strings.TrimSpace(*m.Notes)
	}
	if m.Tags != nil {
		task.Tags = dedupeTags(*m.Tags)
	}
	if m.EstimatedHours != nil {
		task.EstimatedHours = m.EstimatedHours
	}
	if m.ActualHours != nil {
		task.ActualHours = m.ActualHours
	}
	if m.Reopen && task.Status == roadmap.StatusCompleted {
		task.Status = roadmap.StatusPending
		task.CompletedAt = nil
	}
	return nil
}

func (m *EditTask) describe() (int, string) { return m.ID, "" }

// SetPhase moves a task to another phase.
type SetPhase struct {
	ID    int
	Phase string
}

func (m *SetPhase) Kind() string { return "set_phase" }

func (m *SetPhase) Apply(r *roadmap.Roadmap) error {
	task := r.FindTask(m.ID)
	if task == nil {
		return &roadmap.UnknownTaskError{TaskID: m.ID}
	}
	phase := r.FindPhase(m.Phase)
	if phase == nil {
		return &roadmap.UnknownPhaseError{Phase: m.Phase}
	}
	task.Phase = phase.Name
	return nil
}

func (m *SetPhase) describe() (int, string) { return m.ID, m.Phase }

// SetPriority changes a task's priority.
type SetPriority struct {
	ID       int
	Priority roadmap.Priority
}

func (m *SetPriority) Kind() string { return "set_priority" }

func (m *SetPriority) Apply(r *roadmap.Roadmap) error {
	task := r.FindTask(m.ID)
	if task == nil {
		return &roadmap.UnknownTaskError{TaskID: m.ID}
	}
	if !roadmap.IsValidPriority(m.Priority) {
		return fmt.Errorf("invalid priority: %s", m.Priority)
	}
	task.Priority = m.Priority
	return nil
}

func (m *SetPriority) describe() (int, string) { return m.ID, string(m.Priority) }

// AddDependency adds the edge ID -> DependsOn after cycle and integrity
// checks.
type AddDependency struct {
	ID        int
	DependsOn int
}

func (m *AddDependency) Kind() string { return "add_dependency" }

func (m *AddDependency) Apply(r *roadmap.Roadmap) error {
	if err := roadmap.ValidateAddDependency(r, m.ID, m.DependsOn); err != nil {
		return err
	}
	task := r.FindTask(m.ID)
	if task.DependsOn(m.DependsOn) {
		return fmt.Errorf("task %d already depends on %d", m.ID, m.DependsOn)
	}
	task.Dependencies = append(task.Dependencies, m.DependsOn)
	return nil
}

func (m *AddDependency) describe() (int, string) {
	return m.ID, fmt.Sprintf("depends on %d", m.DependsOn)
}

// RemoveDependency removes the edge ID -> DependsOn.
type RemoveDependency struct {
	ID        int
	DependsOn int
}

func (m *RemoveDependency) Kind() string { return "remove_dependency" }

func (m *RemoveDependency) Apply(r *roadmap.Roadmap) error {
	task := r.FindTask(m.ID)
	if task == nil {
		return &roadmap.UnknownTaskError{TaskID: m.ID}
	}
	for i, dep := range task.Dependencies {
		if dep == m.DependsOn {
			task.Dependencies = append(task.Dependencies[:i], task.Dependencies[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("task %d does not depend on %d", m.ID, m.DependsOn)
}

func (m *RemoveDependency) describe() (int, string) {
	return m.ID, fmt.Sprintf("no longer depends on %d", m.DependsOn)
}

// RemoveTask deletes a task. Rejected while other tasks depend on it.
type RemoveTask struct {
	ID int
}

func (m *RemoveTask) Kind() string { return "remove_task" }

func (m *RemoveTask) Apply(r *roadmap.Roadmap) error {
	if err := roadmap.ValidateRemoveTask(r, m.ID); err != nil {
		return err
	}
	for i, task := range r.Tasks {
		if task.ID == m.ID {
			r.Tasks = append(r.Tasks[:i], r.Tasks[i+1:]...)
			return nil
		}
	}
	return &roadmap.UnknownTaskError{TaskID: m.ID}
}

func (m *RemoveTask) describe() (int, string) { return m.ID, "" }

// StartSession opens a new time session on a task.
type StartSession struct {
	ID          int
	Description string
}

func (m *StartSession) Kind() string { return "start_session" }

func (m *StartSession) Apply(r *roadmap.Roadmap) error {
	task := r.FindTask(m.ID)
	if task == nil {
		return &roadmap.UnknownTaskError{TaskID: m.ID}
	}
	if task.Status == roadmap.StatusCompleted {
		return fmt.Errorf("task %d is completed", m.ID)
	}
	if task.OpenSession() != nil {
		return fmt.Errorf("task %d already has an open session", m.ID)
	}
	task.Sessions = append(task.Sessions, roadmap.TimeSession{
		Start:       time.Now().UTC(),
		Description: strings.TrimSpace(m.Description),
	})
	return nil
}

func (m *StartSession) describe() (int, string) { return m.ID, m.Description }

// StopSession closes the open time session on a task and accrues the
// elapsed time into ActualHours.
type StopSession struct {
	ID int
}

func (m *StopSession) Kind() string { return "stop_session" }

func (m *StopSession) Apply(r *roadmap.Roadmap) error {
	task := r.FindTask(m.ID)
	if task == nil {
		return &roadmap.UnknownTaskError{TaskID: m.ID}
	}
	open := task.OpenSession()
	if open == nil {
		return fmt.Errorf("task %d has no open session", m.ID)
	}
	stopSession(task, open, time.Now().UTC())
	return nil
}

func (m *StopSession) describe() (int, string) { return m.ID, "" }

// AddPhase creates a custom phase. Built-in phase names are reserved.
type AddPhase struct {
	Name        string
	Description string
	Emoji       string
}

func (m *AddPhase) Kind() string { return "add_phase" }

func (m *AddPhase) Apply(r *roadmap.Roadmap) error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return fmt.Errorf("phase name is required")
	}
	if r.FindPhase(name) != nil {
		return fmt.Errorf("phase %q already exists", name)
	}
	r.Phases = append(r.Phases, roadmap.Phase{
		Name:        name,
		Description: strings.TrimSpace(m.Description),
		Emoji:       m.Emoji,
		Custom:      true,
	})
	return nil
}

func (m *AddPhase) describe() (int, string) { return 0, m.Name }

func stopSession(task *roadmap.Task, open *roadmap.TimeSession, now time.Time) {
	end := now
	open.End = &end

	hours := end.Sub(open.Start).Hours()
	if hours < 0 {
		hours = 0
	}
	if task.ActualHours == nil {
		task.ActualHours = &hours
	} else {
		total := *task.ActualHours + hours
		task.ActualHours = &total
	}
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
