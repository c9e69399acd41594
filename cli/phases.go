package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smallnest/roadclaw/mutate"
)

var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Manage phases",
}

var phaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List phases with task counts",
	Run:   runPhaseList,
}

var phaseAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a custom phase",
	Args:  cobra.ExactArgs(1),
	Run:   runPhaseAdd,
}

var (
	phaseAddDescription string
	phaseAddEmoji       string
)

var phaseSetCmd = &cobra.Command{
	Use:   "set <task-id> <phase>",
	Short: "Move a task to a phase",
	Args:  cobra.ExactArgs(2),
	Run:   runPhaseSet,
}

func init() {
	phaseAddCmd.Flags().StringVar(&phaseAddDescription, "description", "", "Phase description")
	phaseAddCmd.Flags().StringVar(&phaseAddEmoji, "emoji", "", "Phase emoji")

	phaseCmd.AddCommand(phaseListCmd)
	phaseCmd.AddCommand(phaseAddCmd)
	phaseCmd.AddCommand(phaseSetCmd)

	rootCmd.AddCommand(phaseCmd)
}

func runPhaseList(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	r, err := gateway.GetRoadmap(projectPath(cfg))
	if err != nil {
		failf("Failed to load project: %v", err)
	}

	counts := make(map[string]int)
	done := make(map[string]int)
	for _, t := range r.Tasks {
		counts[t.Phase]++
		if t.CompletedAt != nil {
			done[t.Phase]++
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tTASKS\tDONE\tDESCRIPTION")
	for _, p := range r.Phases {
		name := p.Name
		if p.Emoji != "" {
			name = p.Emoji + " " + name
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", name, counts[p.Name], done[p.Name], p.Description)
	}
	_ = w.Flush()
}

func runPhaseAdd(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	m := &mutate.AddPhase{
		Name:        args[0],
		Description: phaseAddDescription,
		Emoji:       phaseAddEmoji,
	}
	if _, err := gateway.Apply(context.Background(), projectPath(cfg), m); err != nil {
		failf("Failed to add phase: %v", err)
	}
	fmt.Printf("Added phase %s\n", m.Name)
}

func runPhaseSet(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id := parseTaskID(args[0])
	m := &mutate.SetPhase{ID: id, Phase: args[1]}
	if _, err := gateway.Apply(context.Background(), projectPath(cfg), m); err != nil {
		failf("Failed to set phase: %v", err)
	}
	fmt.Printf("Task %d moved to %s\n", id, m.Phase)
}
