package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"steward/internal/backup"
	"steward/internal/catalog"
	"steward/internal/config"
	"steward/internal/containerizer"
	"steward/internal/orchestrator"
	"steward/internal/queue"
	"steward/internal/remote"
	"steward/internal/store"
	"steward/pkg/logging"
)

// Services holds the wired components shared by every command.
//
// They are initialized in dependency order:
//  1. Record store
//  2. Catalog holder
//  3. Server keys and the SSH dialer
//  4. Action queue
//  5. Orchestrator
type Services struct {
	Store   *store.SQLStore
	Catalog *catalog.Holder
	Keys    *remote.Keys
	Dialer  remote.Dialer

	// Queue is started only by the serve command. Other commands run
	// actions inline.
	Queue *queue.Dispatcher

	Orchestrator *orchestrator.Orchestrator

	purgeExpired bool
}

// InitializeServices opens the store, loads the catalog and wires the
// orchestrator on top of them.
func InitializeServices(cfg *Config) (*Services, error) {
	settings := cfg.Settings

	st, err := store.Open(store.Options{DSN: settings.Store.DSN})
	if err != nil {
		return nil, err
	}

	cat, err := loadCatalog(settings.Catalog.Dir)
	if err != nil {
		st.Close()
		return nil, err
	}
	holder := catalog.NewHolder(cat)

	dialer, err := remote.NewSSHDialer(remote.SSHOptions{
		User:           settings.SSH.User,
		KnownHostsFile: settings.SSH.KnownHostsFile,
		Insecure:       settings.SSH.Insecure,
		ConfigFile:     "~/.ssh/config",
		UseAgent:       true,
		ConnectTimeout: settings.SSH.ConnectTimeout,
		CommandTimeout: settings.SSH.CommandTimeout,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create ssh dialer: %w", err)
	}
	runtime, err := containerizer.NewContainerRuntime(settings.Runtime.Engine)
	if err != nil {
		st.Close()
		return nil, err
	}
	keys := remote.NewKeys(st, settings.SSH.KeyDir)

	dispatcher := queue.NewDispatcher(queue.Config{
		Workers:  settings.Queue.Workers,
		Recorder: st,
	})

	orch := orchestrator.New(orchestrator.Config{
		Store:   st,
		Catalog: holder,
		Dialer:  dialer,
		Runtime: runtime,
		Keys:    keys,
		Queue:   dispatcher,
		Backup: backup.Config{
			DefaultExpirationDays: settings.Backup.DefaultExpirationDays,
			DefaultMinutes:        settings.Backup.DefaultMinutes,
		},
		SaveDir: settings.Backup.SaveDir,
	})

	logging.Info("Bootstrap", "Services initialized (store %s, catalog %s)", settings.Store.DSN, settings.Catalog.Dir)
	return &Services{
		Store:        st,
		Catalog:      holder,
		Keys:         keys,
		Dialer:       dialer,
		Queue:        dispatcher,
		Orchestrator: orch,
		purgeExpired: settings.Backup.PurgeExpired,
	}, nil
}

// loadCatalog reads the catalog directory. A missing directory yields an
// empty catalog so that commands not touching applications still work.
func loadCatalog(dir string) (*catalog.Catalog, error) {
	cat, err := catalog.LoadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		logging.Warn("Bootstrap", "Catalog directory %s does not exist, starting with an empty catalog", dir)
		return catalog.New(), nil
	}
	return cat, err
}

// tick queues the saves due at now. Expired saves are purged only when
// backup.purgeExpired is set.
func (s *Services) tick(ctx context.Context, now time.Time) {
	tickets, err := s.Orchestrator.SaveDue(ctx, now, orchestrator.Options{})
	if err != nil {
		logging.Error("Backup", err, "Some periodic saves could not be queued")
	}
	if len(tickets) > 0 {
		logging.Info("Backup", "Queued %d periodic saves", len(tickets))
	}
	if !s.purgeExpired {
		return
	}

	purged, err := s.Orchestrator.PurgeExpiredSaves(ctx, now)
	if err != nil {
		logging.Error("Backup", err, "Failed to purge some expired saves")
	}
	if purged > 0 {
		logging.Info("Backup", "Purged %d expired saves", purged)
	}
}

// Close releases the record store.
func (s *Services) Close() error {
	return s.Store.Close()
}

func watchEnabled(settings *config.Config) bool {
	if !settings.Catalog.Watch {
		return false
	}
	if _, err := os.Stat(settings.Catalog.Dir); err != nil {
		logging.Warn("Bootstrap", "Not watching catalog directory %s: %v", settings.Catalog.Dir, err)
		return false
	}
	return true
}
