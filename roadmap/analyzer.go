package roadmap

import "sort"

// BlockedTask pairs a pending task with the ids blocking it.
type BlockedTask struct {
	Task      *Task `json:"task"`
	BlockedBy []int `json:"blocked_by"`
}

// ReadyTasks returns the pending tasks whose every dependency is completed,
// in roadmap order.
func ReadyTasks(r *Roadmap) []*Task {
	var out []*Task
	for _, t := range r.Tasks {
		if t.Status != StatusPending {
			continue
		}
		if len(incompleteDeps(r, t)) == 0 {
			out = append(out, t)
		}
	}
	return out
}

// BlockedTasks returns the pending tasks with at least one incomplete
// dependency, each tagged with its blocking ids in ascending order.
func BlockedTasks(r *Roadmap) []BlockedTask {
	var out []BlockedTask
	for _, t := range r.Tasks {
		if t.Status != StatusPending {
			continue
		}
		if blocking := incompleteDeps(r, t); len(blocking) > 0 {
			out = append(out, BlockedTask{Task: t, BlockedBy: blocking})
		}
	}
	return out
}

func incompleteDeps(r *Roadmap, t *Task) []int {
	var out []int
	for _, depID := range t.Dependencies {
		dep := r.FindTask(depID)
		if dep == nil || dep.Status != StatusCompleted {
			out = append(out, depID)
		}
	}
	sort.Ints(out)
	return out
}

// TreeNode is one node of a dependency tree. Children are the node's direct
// dependencies, in ascending id order.
type TreeNode struct {
	Task     *Task       `json:"task"`
	Children []*TreeNode `json:"children,omitempty"`
}

// DependencyTree builds the ancestor tree of a task: the task itself at the
// root, its dependencies as children, recursively. Edges are expanded in
// ascending dependency-id order so output is deterministic regardless of
// traversal order. The visited guard is defensive against a cyclic document;
// a validated roadmap never triggers it.
func DependencyTree(r *Roadmap, taskID int) (*TreeNode, error) {
	task := r.FindTask(taskID)
	if task == nil {
		return nil, &UnknownTaskError{TaskID: taskID}
	}
	visited := make(map[int]bool)
	return buildTree(r, task, visited), nil
}

func buildTree(r *Roadmap, task *Task, visited map[int]bool) *TreeNode {
	node := &TreeNode{Task: task}
	if visited[task.ID] {
		return node
	}
	visited[task.ID] = true

	deps := append([]int(nil), task.Dependencies...)
	sort.Ints(deps)
	for _, depID := range deps {
		dep := r.FindTask(depID)
		if dep == nil {
			continue
		}
		node.Children = append(node.Children, buildTree(r, dep, visited))
	}
	delete(visited, task.ID)
	return node
}

// Ancestors returns every task id the given task transitively depends on,
// in ascending order. For a chain 3 -> 2 -> 1 this is [1 2].
func Ancestors(r *Roadmap, taskID int) ([]int, error) {
	task := r.FindTask(taskID)
	if task == nil {
		return nil, &UnknownTaskError{TaskID: taskID}
	}

	visited := make(map[int]bool)
	stack := append([]int(nil), task.Dependencies...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		if dep := r.FindTask(id); dep != nil {
			stack = append(stack, dep.Dependencies...)
		}
	}

	out := make([]int, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}

// ImpactOf returns the transitive dependents of a task in ascending order:
// everything that would be affected by deleting or resetting it.
func ImpactOf(r *Roadmap, taskID int) ([]int, error) {
	if r.FindTask(taskID) == nil {
		return nil, &UnknownTaskError{TaskID: taskID}
	}

	visited := make(map[int]bool)
	stack := r.Dependents(taskID)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		stack = append(stack, r.Dependents(id)...)
	}

	out := make([]int, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}
