package app

import (
	"context"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"steward/internal/backup"
	"steward/internal/catalog"
	"steward/internal/config"
	"steward/pkg/logging"
)

// runServe starts the action queue, then runs the catalog watcher and the
// periodic save tick until ctx is cancelled or one of them fails. Actions
// already running are waited for; queued ones fail with queue.ErrShutdown.
func runServe(ctx context.Context, settings *config.Config, services *Services) error {
	g, ctx := errgroup.WithContext(ctx)

	services.Queue.Start(ctx)

	if watchEnabled(settings) {
		watcher := catalog.NewWatcher(settings.Catalog.Dir, services.Catalog, 0)
		watcher.OnReload(func(c *catalog.Catalog) {
			logging.Info("Serve", "Catalog reloaded with %d applications", len(c.Applications))
		})
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	if settings.Backup.Enabled {
		ticker := backup.NewTicker(settings.Backup.Schedule, services.tick)
		g.Go(func() error {
			return ticker.Run(ctx)
		})
	}

	notify(daemon.SdNotifyReady)
	logging.Info("Serve", "Steward is running. Press Ctrl+C to stop.")

	<-ctx.Done()

	logging.Info("Serve", "--- Shutting down ---")
	notify(daemon.SdNotifyStopping)
	services.Queue.Shutdown()

	return g.Wait()
}

// notify reports state to systemd when running as a notify service.
func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("Serve", "Failed to notify systemd: %v", err)
		return
	}
	if sent {
		logging.Debug("Serve", "Notified systemd: %s", state)
	}
}
