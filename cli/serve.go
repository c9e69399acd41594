package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smallnest/roadclaw/bus"
	"github.com/smallnest/roadclaw/config"
	"github.com/smallnest/roadclaw/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web dashboard server",
	Long: `Serve the REST API and WebSocket event stream for the dashboard.
Mutations made by other processes are picked up from the state file and
pushed to connected viewers.`,
	Run: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if flagFile != "" {
		cfg.Project.Path = flagFile
	}
	if err := config.Validate(cfg); err != nil {
		failf("Invalid configuration: %v", err)
	}

	broadcaster := bus.NewBroadcaster()
	defer broadcaster.Close()

	gateway, cleanup := newServeGateway(cfg, broadcaster)
	defer cleanup()

	srv := server.New(cfg, gateway, broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		failf("Failed to start server: %v", err)
	}
	fmt.Printf("Dashboard listening on http://%s\n", srv.Addr())
	fmt.Printf("Watching %s\n", cfg.Project.Path)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	_ = srv.Stop()
}
