package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/smallnest/roadclaw/mutate"
	"github.com/smallnest/roadclaw/roadmap"
)

var addCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Add a task",
	Args:  cobra.ExactArgs(1),
	Run:   runAdd,
}

var (
	addPriority  string
	addPhase     string
	addTags      string
	addNotes     string
	addDependsOn string
	addEstimate  float64
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Run:   runList,
}

var (
	listPhase    string
	listStatus   string
	listTag      string
	listPriority string
)

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	Run:   runShow,
}

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	Run:   runComplete,
}

var editCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Edit task fields",
	Args:  cobra.ExactArgs(1),
	Run:   runEdit,
}

var (
	editDescription string
	editNotes       string
	editTags        string
	editEstimate    float64
	editActual      float64
	editReopen      bool
)

var removeCmd = &cobra.Command{
	Use:   "remove <task-id>",
	Short: "Remove a task",
	Args:  cobra.ExactArgs(1),
	Run:   runRemove,
}

var removeYes bool

var priorityCmd = &cobra.Command{
	Use:   "priority <task-id> <low|medium|high|critical>",
	Short: "Set task priority",
	Args:  cobra.ExactArgs(2),
	Run:   runPriority,
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List pending tasks whose dependencies are all completed",
	Run:   runReady,
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List pending tasks waiting on incomplete dependencies",
	Run:   runBlocked,
}

func init() {
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "", "Priority: low, medium, high, critical")
	addCmd.Flags().StringVar(&addPhase, "phase", "", "Phase name (default: Backlog)")
	addCmd.Flags().StringVar(&addTags, "tags", "", "Comma-separated tags")
	addCmd.Flags().StringVar(&addNotes, "notes", "", "Free-form notes")
	addCmd.Flags().StringVar(&addDependsOn, "depends-on", "", "Comma-separated task IDs this task depends on")
	addCmd.Flags().Float64Var(&addEstimate, "estimate", 0, "Estimated hours")

	listCmd.Flags().StringVar(&listPhase, "phase", "", "Filter by phase")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status: pending or completed")
	listCmd.Flags().StringVar(&listTag, "tag", "", "Filter by tag")
	listCmd.Flags().StringVar(&listPriority, "priority", "", "Filter by priority")

	editCmd.Flags().StringVar(&editDescription, "description", "", "New description")
	editCmd.Flags().StringVar(&editNotes, "notes", "", "New notes")
	editCmd.Flags().StringVar(&editTags, "tags", "", "Replace tags (comma-separated)")
	editCmd.Flags().Float64Var(&editEstimate, "estimate", 0, "Estimated hours")
	editCmd.Flags().Float64Var(&editActual, "actual", 0, "Actual hours")
	editCmd.Flags().BoolVar(&editReopen, "reopen", false, "Reopen a completed task")

	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "Skip confirmation")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(priorityCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(blockedCmd)
}

func runAdd(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	deps, err := parseIDList(addDependsOn)
	if err != nil {
		failf("Invalid --depends-on: %v", err)
	}

	m := &mutate.AddTask{
		Description:  args[0],
		Priority:     roadmap.Priority(addPriority),
		Phase:        addPhase,
		Tags:         splitCSV(addTags),
		Notes:        addNotes,
		Dependencies: deps,
	}
	if cmd.Flags().Changed("estimate") {
		m.EstimatedHours = &addEstimate
	}

	if _, err := gateway.Apply(context.Background(), projectPath(cfg), m); err != nil {
		failf("Failed to add task: %v", err)
	}
	fmt.Printf("Added task %d: %s\n", m.CreatedID, m.Description)
}

func runList(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	r, err := gateway.GetRoadmap(projectPath(cfg))
	if err != nil {
		failf("Failed to load project: %v", err)
	}

	var tasks []*roadmap.Task
	for _, t := range r.Tasks {
		if listPhase != "" && !strings.EqualFold(t.Phase, listPhase) {
			continue
		}
		if listStatus != "" && string(t.Status) != listStatus {
			continue
		}
		if listTag != "" && !t.HasTag(listTag) {
			continue
		}
		if listPriority != "" && string(t.Priority) != listPriority {
			continue
		}
		tasks = append(tasks, t)
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tPHASE\tDEPS\tDESCRIPTION")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.Priority, t.Phase, formatIDs(t.Dependencies), t.Description)
	}
	_ = w.Flush()
}

func runShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id := parseTaskID(args[0])
	r, err := gateway.GetRoadmap(projectPath(cfg))
	if err != nil {
		failf("Failed to load project: %v", err)
	}

	task := r.FindTask(id)
	if task == nil {
		failf("Task %d not found", id)
	}

	fmt.Printf("Task %d: %s\n", task.ID, task.Description)
	fmt.Printf("  Status:   %s\n", task.Status)
	fmt.Printf("  Priority: %s\n", task.Priority)
	fmt.Printf("  Phase:    %s\n", task.Phase)
	if len(task.Tags) > 0 {
		fmt.Printf("  Tags:     %s\n", strings.Join(task.Tags, ", "))
	}
	if len(task.Dependencies) > 0 {
		deps := append([]int(nil), task.Dependencies...)
		sort.Ints(deps)
		fmt.Printf("  Depends:  %s\n", formatIDs(deps))
	}
	if dependents := r.Dependents(task.ID); len(dependents) > 0 {
		fmt.Printf("  Blocks:   %s\n", formatIDs(dependents))
	}
	if task.Notes != "" {
		fmt.Printf("  Notes:    %s\n", task.Notes)
	}
	if task.EstimatedHours != nil {
		fmt.Printf("  Estimate: %.1fh\n", *task.EstimatedHours)
	}
	if task.ActualHours != nil {
		fmt.Printf("  Actual:   %.1fh\n", *task.ActualHours)
	}
	fmt.Printf("  Created:  %s\n", task.CreatedAt.Local().Format(time.RFC822))
	if task.CompletedAt != nil {
		fmt.Printf("  Done:     %s\n", task.CompletedAt.Local().Format(time.RFC822))
	}
	if open := task.OpenSession(); open != nil {
		fmt.Printf("  Session:  running since %s\n", open.Start.Local().Format(time.Kitchen))
	}
}

func runComplete(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id := parseTaskID(args[0])
	if _, err := gateway.Apply(context.Background(), projectPath(cfg), &mutate.CompleteTask{ID: id}); err != nil {
		failf("Failed to complete task %d: %v", id, err)
	}
	fmt.Printf("Completed task %d\n", id)
}

func runEdit(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	m := &mutate.EditTask{ID: parseTaskID(args[0]), Reopen: editReopen}
	if cmd.Flags().Changed("description") {
		m.Description = &editDescription
	}
	if cmd.Flags().Changed("notes") {
		m.Notes = &editNotes
	}
	if cmd.Flags().Changed("tags") {
		tags := splitCSV(editTags)
		m.Tags = &tags
	}
	if cmd.Flags().Changed("estimate") {
		m.EstimatedHours = &editEstimate
	}
	if cmd.Flags().Changed("actual") {
		m.ActualHours = &editActual
	}

	if _, err := gateway.Apply(context.Background(), projectPath(cfg), m); err != nil {
		failf("Failed to edit task %d: %v", m.ID, err)
	}
	fmt.Printf("Updated task %d\n", m.ID)
}

func runRemove(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id := parseTaskID(args[0])
	path := projectPath(cfg)

	r, err := gateway.GetRoadmap(path)
	if err != nil {
		failf("Failed to load project: %v", err)
	}
	task := r.FindTask(id)
	if task == nil {
		failf("Task %d not found", id)
	}

	if !removeYes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Remove task %d (%s)", id, task.Description),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			fmt.Println("Aborted.")
			return
		}
	}

	if _, err := gateway.Apply(context.Background(), path, &mutate.RemoveTask{ID: id}); err != nil {
		failf("Failed to remove task %d: %v", id, err)
	}
	fmt.Printf("Removed task %d\n", id)
}

func runPriority(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id := parseTaskID(args[0])
	m := &mutate.SetPriority{ID: id, Priority: roadmap.Priority(args[1])}
	if _, err := gateway.Apply(context.Background(), projectPath(cfg), m); err != nil {
		failf("Failed to set priority: %v", err)
	}
	fmt.Printf("Task %d priority set to %s\n", id, m.Priority)
}

func runReady(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	r, err := gateway.GetRoadmap(projectPath(cfg))
	if err != nil {
		failf("Failed to load project: %v", err)
	}

	ready := roadmap.ReadyTasks(r)
	if len(ready) == 0 {
		fmt.Println("No ready tasks.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tPHASE\tDESCRIPTION")
	for _, t := range ready {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, t.Priority, t.Phase, t.Description)
	}
	_ = w.Flush()
}

func runBlocked(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	r, err := gateway.GetRoadmap(projectPath(cfg))
	if err != nil {
		failf("Failed to load project: %v", err)
	}

	blocked := roadmap.BlockedTasks(r)
	if len(blocked) == 0 {
		fmt.Println("No blocked tasks.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tWAITING ON\tDESCRIPTION")
	for _, b := range blocked {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.Task.ID, b.Task.Priority, formatIDs(b.BlockedBy), b.Task.Description)
	}
	_ = w.Flush()
}

func parseTaskID(raw string) int {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		failf("Invalid task id: %s", raw)
	}
	return id
}

func parseIDList(raw string) ([]int, error) {
	var ids []int
	for _, part := range splitCSV(raw) {
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid task id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitCSV(raw string) []string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	seen := make(map[string]struct{})
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		if _, exists := seen[item]; exists {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	return result
}

func formatIDs(ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
