package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init <title>",
	Short: "Create a new project state file",
	Args:  cobra.ExactArgs(1),
	Run:   runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	path := projectPath(cfg)
	r, err := gateway.Init(path, args[0])
	if err != nil {
		failf("Failed to initialize project: %v", err)
	}
	fmt.Printf("Initialized %q at %s (%d phases)\n", r.Title, path, len(r.Phases))
}
