package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smallnest/roadclaw/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Run:   runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Run:   runConfigShow,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := flagConfig
	if path == "" {
		defaultPath, err := config.GetDefaultConfigPath()
		if err != nil {
			failf("Failed to resolve config path: %v", err)
		}
		path = defaultPath
	}

	if _, err := os.Stat(path); err == nil {
		failf("Config file already exists: %s", path)
	}

	cfg, err := config.Load("")
	if err != nil {
		failf("Failed to build default config: %v", err)
	}
	if err := config.Save(cfg, path); err != nil {
		failf("Failed to write config: %v", err)
	}
	fmt.Printf("Wrote %s\n", path)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	fmt.Printf("project.path:         %s\n", cfg.Project.Path)
	fmt.Printf("server.host:          %s\n", cfg.Server.Host)
	fmt.Printf("server.port:          %d\n", cfg.Server.Port)
	fmt.Printf("server.ping_interval: %s\n", cfg.Server.PingInterval)
	fmt.Printf("server.pong_timeout:  %s\n", cfg.Server.PongTimeout)
	fmt.Printf("watch.debounce_ms:    %d\n", cfg.Watch.DebounceMs)
	fmt.Printf("journal.enabled:      %t\n", cfg.Journal.Enabled)
	if cfg.Journal.Path != "" {
		fmt.Printf("journal.path:         %s\n", cfg.Journal.Path)
	}
	fmt.Printf("log.level:            %s\n", cfg.Log.Level)
}
