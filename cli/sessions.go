package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smallnest/roadclaw/mutate"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Track time spent on tasks",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <task-id>",
	Short: "Start a work session on a task",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionStart,
}

var sessionStartDescription string

var sessionStopCmd = &cobra.Command{
	Use:   "stop <task-id>",
	Short: "Stop the open session and accrue the time",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionStop,
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionStartDescription, "description", "", "What this session is for")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStopCmd)

	rootCmd.AddCommand(sessionCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id := parseTaskID(args[0])
	m := &mutate.StartSession{ID: id, Description: sessionStartDescription}
	if _, err := gateway.Apply(context.Background(), projectPath(cfg), m); err != nil {
		failf("Failed to start session: %v", err)
	}
	fmt.Printf("Session started on task %d\n", id)
}

func runSessionStop(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	id := parseTaskID(args[0])
	r, err := gateway.Apply(context.Background(), projectPath(cfg), &mutate.StopSession{ID: id})
	if err != nil {
		failf("Failed to stop session: %v", err)
	}

	if task := r.FindTask(id); task != nil && task.ActualHours != nil {
		fmt.Printf("Session stopped on task %d (%.2fh total)\n", id, *task.ActualHours)
		return
	}
	fmt.Printf("Session stopped on task %d\n", id)
}
