package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smallnest/roadclaw/mutate"
	"github.com/smallnest/roadclaw/roadmap"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage task dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <task-id> <depends-on-id>",
	Short: "Add a dependency edge",
	Args:  cobra.ExactArgs(2),
	Run:   runDepAdd,
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <task-id> <depends-on-id>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	Run:   runDepRemove,
}

var depTreeCmd = &cobra.Command{
	Use:   "tree <task-id>",
	Short: "Show the dependency tree of a task",
	Args:  cobra.ExactArgs(1),
	Run:   runDepTree,
}

var depImpactCmd = &cobra.Command{
	Use:   "impact <task-id>",
	Short: "Show every task that transitively depends on a task",
	Args:  cobra.ExactArgs(1),
	Run:   runDepImpact,
}

func init() {
	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	depCmd.AddCommand(depTreeCmd)
	depCmd.AddCommand(depImpactCmd)

	rootCmd.AddCommand(depCmd)
}

func runDepAdd(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id, dependsOn := parseTaskID(args[0]), parseTaskID(args[1])
	m := &mutate.AddDependency{ID: id, DependsOn: dependsOn}
	if _, err := gateway.Apply(context.Background(), projectPath(cfg), m); err != nil {
		failf("Failed to add dependency: %v", err)
	}
	fmt.Printf("Task %d now depends on %d\n", id, dependsOn)
}

func runDepRemove(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id, dependsOn := parseTaskID(args[0]), parseTaskID(args[1])
	m := &mutate.RemoveDependency{ID: id, DependsOn: dependsOn}
	if _, err := gateway.Apply(context.Background(), projectPath(cfg), m); err != nil {
		failf("Failed to remove dependency: %v", err)
	}
	fmt.Printf("Task %d no longer depends on %d\n", id, dependsOn)
}

func runDepTree(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id := parseTaskID(args[0])
	r, err := gateway.GetRoadmap(projectPath(cfg))
	if err != nil {
		failf("Failed to load project: %v", err)
	}

	tree, err := roadmap.DependencyTree(r, id)
	if err != nil {
		failf("Failed to build dependency tree: %v", err)
	}
	printTree(tree, 0)
}

func printTree(node *roadmap.TreeNode, depth int) {
	marker := ""
	if node.Task.Status == roadmap.StatusCompleted {
		marker = " [done]"
	}
	fmt.Printf("%s%d: %s%s\n", strings.Repeat("  ", depth), node.Task.ID, node.Task.Description, marker)
	for _, child := range node.Children {
		printTree(child, depth+1)
	}
}

func runDepImpact(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id := parseTaskID(args[0])
	r, err := gateway.GetRoadmap(projectPath(cfg))
	if err != nil {
		failf("Failed to load project: %v", err)
	}

	impact, err := roadmap.ImpactOf(r, id)
	if err != nil {
		failf("Failed to compute impact: %v", err)
	}
	if len(impact) == 0 {
		fmt.Printf("No tasks depend on %d\n", id)
		return
	}

	fmt.Printf("Tasks affected by %d:\n", id)
	for _, affectedID := range impact {
		if task := r.FindTask(affectedID); task != nil {
			fmt.Printf("  %d: %s\n", task.ID, task.Description)
		}
	}
}
