package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0644))
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, GetDefaultConfig(dir), cfg)
	assert.Equal(t, filepath.Join(dir, "steward.db"), cfg.Store.DSN)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Override(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
store:
  dsn: data/records.db
catalog:
  dir: /srv/catalog
queue:
  workers: 8
ssh:
  connectTimeout: 3s
backup:
  schedule: "@every 10m"
logging:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver, "unset keys keep defaults")
	assert.Equal(t, filepath.Join(dir, "data/records.db"), cfg.Store.DSN)
	assert.Equal(t, "/srv/catalog", cfg.Catalog.Dir)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, 3*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, "root", cfg.SSH.User)
	assert.Equal(t, "@every 10m", cfg.Backup.Schedule)
	assert.Equal(t, DefaultSaveDir, cfg.Backup.SaveDir)
	assert.False(t, cfg.Backup.PurgeExpired, "expired saves are kept unless asked")
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_PurgeExpired(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "backup:\n  purgeExpired: true\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Backup.PurgeExpired)
	assert.True(t, cfg.Backup.Enabled)
}

func TestLoadConfig_MemoryDSNKept(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "store:\n  dsn: \":memory:\"\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Store.DSN)
}

func TestLoadConfig_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "store: [unclosed\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)

	var cerr ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "parse", cerr.ErrorType)
}

func TestLoadConfig_InvalidValuesCollected(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
store:
  driver: postgres
queue:
  workers: 0
backup:
  schedule: "not a schedule"
`)

	_, err := LoadConfig(dir)
	require.Error(t, err)

	var collection ConfigurationErrorCollection
	require.True(t, errors.As(err, &collection))
	assert.True(t, collection.HasErrors())
	assert.Len(t, collection.Errors, 3)
	assert.Contains(t, collection.GetDetailedReport(), "store.driver")
	assert.Contains(t, collection.GetDetailedReport(), "queue.workers")
	assert.Contains(t, collection.GetDetailedReport(), "backup.schedule")
}
