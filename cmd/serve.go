package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// serveCmd runs steward as a daemon.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the action queue and the periodic save tick",
	Long: `Starts steward in the foreground. It runs:

  - the action queue, serializing actions per container or base
  - the periodic save tick (backup.schedule), saving every container and
    base whose next save is due and purging expired saves
  - the catalog watcher (catalog.watch), reloading the catalog when its
    files change

Readiness is reported to systemd when run as a Type=notify service.
SIGINT or SIGTERM stops accepting work and waits for running actions.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	application, err := openApplication()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
