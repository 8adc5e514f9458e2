package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/internal/config"
	"steward/internal/model"
	"steward/internal/queue"
	"steward/internal/store"
)

func testSettings(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	settings := config.GetDefaultConfig(dir)
	settings.Store.DSN = ":memory:"
	settings.Backup.Schedule = "@every 1h"
	return &settings
}

func newTestApplication(t *testing.T, settings *config.Config) *Application {
	t.Helper()
	cfg := NewConfig(false, true, filepath.Dir(settings.Catalog.Dir))
	cfg.Settings = settings
	application, err := NewApplication(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })
	return application
}

func TestNewApplication_MissingCatalogDir(t *testing.T) {
	application := newTestApplication(t, testSettings(t))

	services := application.Services()
	require.NotNil(t, services.Orchestrator)
	assert.Empty(t, services.Catalog.Current().Applications)
	assert.Equal(t, ":memory:", application.Settings().Store.DSN)
}

func TestNewApplication_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("queue:\n  workers: -1\n"), 0644))

	_, err := NewApplication(NewConfig(false, true, dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.workers")
}

func TestTick_EmptyStore(t *testing.T) {
	application := newTestApplication(t, testSettings(t))

	// Nothing is due, so nothing is queued even though the queue is not
	// running.
	application.Services().tick(context.Background(), time.Now())

	saves, err := application.Services().Store.ListSaves(context.Background(), store.SaveFilter{})
	require.NoError(t, err)
	assert.Empty(t, saves)
}

func TestTick_PurgesExpiredSavesOnlyWhenEnabled(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		settings := testSettings(t)
		settings.Backup.PurgeExpired = enabled
		services := newTestApplication(t, settings).Services()
		ctx := context.Background()

		now := time.Now()
		// The backup container is gone, so only the record is left to delete.
		require.NoError(t, services.Store.CreateSave(ctx, &model.Save{
			Name:       "20240101_000000_dev-odoo1",
			BackupID:   "gone",
			Expiration: now.Add(-time.Hour),
			CreatedAt:  now.Add(-48 * time.Hour),
		}))

		services.tick(ctx, now)

		saves, err := services.Store.ListSaves(ctx, store.SaveFilter{})
		require.NoError(t, err)
		if enabled {
			assert.Empty(t, saves)
		} else {
			assert.Len(t, saves, 1)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	settings := testSettings(t)
	require.NoError(t, os.MkdirAll(settings.Catalog.Dir, 0755))
	application := newTestApplication(t, settings)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}

	_, err := application.Services().Queue.Do(context.Background(), queue.Request{
		Action: "noop",
		Target: queue.Target{Kind: "container", ID: "x"},
		Run:    func(context.Context) error { return nil },
	}, queue.Options{})
	assert.ErrorIs(t, err, queue.ErrShutdown)
}
