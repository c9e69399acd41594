package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent mutations from the journal",
	Run:   runLog,
}

var (
	logLimit int
	logAll   bool
)

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "Maximum entries to show")
	logCmd.Flags().BoolVar(&logAll, "all", false, "Show entries across all projects")

	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	gateway, cleanup := newGateway(cfg)
	defer cleanup()

	journal := gateway.Journal()
	if journal == nil {
		failf("Journal is disabled (journal.enabled: false)")
	}

	project := projectPath(cfg)
	if logAll {
		project = ""
	}

	entries, err := journal.Recent(project, logLimit)
	if err != nil {
		failf("Failed to read journal: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No journal entries.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tKIND\tTASK\tDETAIL")
	for _, e := range entries {
		task := "-"
		if e.TaskID > 0 {
			task = fmt.Sprintf("%d", e.TaskID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.RFC822), e.Kind, task, e.Detail)
	}
	_ = w.Flush()
}
