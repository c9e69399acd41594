// Package cli implements the roadclaw command line interface. Every
// state-changing command goes through the mutation gateway, so CLI edits
// and dashboard edits follow the same reload-validate-save path.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smallnest/roadclaw/bus"
	"github.com/smallnest/roadclaw/config"
	"github.com/smallnest/roadclaw/internal/logger"
	"github.com/smallnest/roadclaw/mutate"
	"github.com/smallnest/roadclaw/store"
)

var rootCmd = &cobra.Command{
	Use:   "roadclaw",
	Short: "Local-first roadmap and task tracker",
	Long: `roadclaw tracks project tasks, phases and dependencies in a single
JSON state file, shared safely between this CLI and the web dashboard.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Persistent flags shared by all commands.
var (
	flagFile     string
	flagConfig   string
	flagLogLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagFile, "file", "f", "", "Project state file (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func failf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// loadConfig loads configuration and initializes logging for a command run.
func loadConfig() *config.Config {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		failf("Failed to load config: %v", err)
	}

	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	if err := logger.Init(level, cfg.Log.Development); err != nil {
		failf("Failed to initialize logger: %v", err)
	}
	return cfg
}

// projectPath resolves the state file for this invocation: --file wins,
// then the configured project path.
func projectPath(cfg *config.Config) string {
	if flagFile != "" {
		return flagFile
	}
	if cfg.Project.Path != "" {
		return cfg.Project.Path
	}
	failf("No project file: pass --file or set project.path in config")
	return ""
}

// openJournal opens the mutation journal when enabled. A journal failure is
// reported but never blocks the command.
func openJournal(cfg *config.Config) *store.Journal {
	if !cfg.Journal.Enabled {
		return nil
	}

	path := cfg.Journal.Path
	if path == "" {
		defaultPath, err := config.DefaultJournalPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: journal disabled: %v\n", err)
			return nil
		}
		path = defaultPath
	}

	journal, err := store.OpenJournal(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: journal disabled: %v\n", err)
		return nil
	}
	return journal
}

// newGateway builds the mutation gateway for a one-shot CLI command.
// The returned cleanup closes the journal.
func newGateway(cfg *config.Config) (*mutate.Gateway, func()) {
	journal := openJournal(cfg)
	gateway := mutate.NewGateway(journal, nil)
	return gateway, func() {
		_ = journal.Close()
		_ = logger.Sync()
	}
}

// newServeGateway builds the gateway wired to a broadcaster, for the
// long-running serve command.
func newServeGateway(cfg *config.Config, broadcaster *bus.Broadcaster) (*mutate.Gateway, func()) {
	journal := openJournal(cfg)
	gateway := mutate.NewGateway(journal, broadcaster)
	return gateway, func() {
		_ = journal.Close()
		_ = logger.Sync()
	}
}
