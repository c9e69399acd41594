package roadmap

import (
	"fmt"
	"sort"
)

// UnknownTaskError indicates a task id that does not exist in the roadmap.
type UnknownTaskError struct {
	TaskID int
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task: %d", e.TaskID)
}

// UnknownPhaseError indicates a phase name that does not exist.
type UnknownPhaseError struct {
	Phase string
}

func (e *UnknownPhaseError) Error() string {
	return fmt.Sprintf("unknown phase: %s", e.Phase)
}

// SelfDependencyError indicates an attempt to make a task depend on itself.
type SelfDependencyError struct {
	TaskID int
}

func (e *SelfDependencyError) Error() string {
	return fmt.Sprintf("task %d cannot depend on itself", e.TaskID)
}

// CyclicDependencyError indicates an edge that would close a dependency
// cycle.
type CyclicDependencyError struct {
	TaskID      int
	DependsOnID int
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency %d -> %d would create a cycle", e.TaskID, e.DependsOnID)
}

// HasDependentsError indicates a task that cannot be removed because other
// tasks still depend on it.
type HasDependentsError struct {
	TaskID     int
	Dependents []int
}

func (e *HasDependentsError) Error() string {
	return fmt.Sprintf("task %d has dependents: %v", e.TaskID, e.Dependents)
}

// BlockedError indicates a task that cannot be completed because some of
// its dependencies are still pending.
type BlockedError struct {
	TaskID     int
	Incomplete []int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("task %d is blocked by incomplete dependencies: %v", e.TaskID, e.Incomplete)
}

// ValidateAddDependency checks whether the edge taskID -> dependsOnID may be
// added without violating referential integrity, acyclicity, or completion
// ordering. It mutates nothing.
func ValidateAddDependency(r *Roadmap, taskID, dependsOnID int) error {
	if taskID == dependsOnID {
		return &SelfDependencyError{TaskID: taskID}
	}
	task := r.FindTask(taskID)
	if task == nil {
		return &UnknownTaskError{TaskID: taskID}
	}
	dep := r.FindTask(dependsOnID)
	if dep == nil {
		return &UnknownTaskError{TaskID: dependsOnID}
	}
	// A completed task may not gain an incomplete dependency: the resulting
	// document would violate completion ordering and be rejected on the
	// next load.
	if task.Status == StatusCompleted && dep.Status != StatusCompleted {
		return &BlockedError{TaskID: taskID, Incomplete: []int{dependsOnID}}
	}
	// Adding taskID -> dependsOnID closes a cycle iff taskID is already
	// reachable from dependsOnID over existing edges.
	if reachable(r, dependsOnID, taskID) {
		return &CyclicDependencyError{TaskID: taskID, DependsOnID: dependsOnID}
	}
	return nil
}

// ValidateRemoveTask checks whether the task may be removed. A task with
// dependents is rejected rather than cascade-rewired.
func ValidateRemoveTask(r *Roadmap, taskID int) error {
	if r.FindTask(taskID) == nil {
		return &UnknownTaskError{TaskID: taskID}
	}
	if deps := r.Dependents(taskID); len(deps) > 0 {
		return &HasDependentsError{TaskID: taskID, Dependents: deps}
	}
	return nil
}

// CanComplete checks whether the task may transition to completed: every
// dependency must already be completed.
func CanComplete(r *Roadmap, taskID int) error {
	task := r.FindTask(taskID)
	if task == nil {
		return &UnknownTaskError{TaskID: taskID}
	}

	var incomplete []int
	for _, depID := range task.Dependencies {
		dep := r.FindTask(depID)
		if dep == nil || dep.Status != StatusCompleted {
			incomplete = append(incomplete, depID)
		}
	}
	if len(incomplete) > 0 {
		sort.Ints(incomplete)
		return &BlockedError{TaskID: taskID, Incomplete: incomplete}
	}
	return nil
}

// reachable reports whether 'to' can be reached from 'from' by following
// dependency edges. Iterative DFS, O(V+E).
func reachable(r *Roadmap, from, to int) bool {
	if from == to {
		return true
	}
	visited := make(map[int]bool)
	stack := []int{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		task := r.FindTask(id)
		if task == nil {
			continue
		}
		for _, dep := range task.Dependencies {
			if dep == to {
				return true
			}
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// Validate checks the whole document against the structural invariants:
// unique ids, known phases, known dependency targets, acyclicity, and
// completion ordering. Used as a guard when loading externally written
// state.
func Validate(r *Roadmap) error {
	seen := make(map[int]bool, len(r.Tasks))
	for _, t := range r.Tasks {
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id: %d", t.ID)
		}
		seen[t.ID] = true

		if !IsValidStatus(t.Status) {
			return fmt.Errorf("task %d: invalid status %q", t.ID, t.Status)
		}
		if t.Phase != "" && r.FindPhase(t.Phase) == nil {
			return &UnknownPhaseError{Phase: t.Phase}
		}
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return &SelfDependencyError{TaskID: t.ID}
			}
		}
	}

	for _, t := range r.Tasks {
		for _, dep := range t.Dependencies {
			if !seen[dep] {
				return &UnknownTaskError{TaskID: dep}
			}
		}
	}

	for _, t := range r.Tasks {
		if reachesSelf(r, t.ID) {
			return &CyclicDependencyError{TaskID: t.ID, DependsOnID: t.ID}
		}
	}

	for _, t := range r.Tasks {
		if t.Status != StatusCompleted {
			continue
		}
		for _, dep := range t.Dependencies {
			if d := r.FindTask(dep); d != nil && d.Status != StatusCompleted {
				return &BlockedError{TaskID: t.ID, Incomplete: []int{dep}}
			}
		}
	}
	return nil
}

func reachesSelf(r *Roadmap, id int) bool {
	task := r.FindTask(id)
	if task == nil {
		return false
	}
	for _, dep := range task.Dependencies {
		if reachable(r, dep, id) {
			return true
		}
	}
	return false
}
