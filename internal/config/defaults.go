package config

import (
	"path/filepath"
	"time"
)

const (
	// DefaultSaveDir is where save data is stored on each server.
	DefaultSaveDir = "/opt/steward/saves"

	// DefaultSchedule runs the save tick every five minutes.
	DefaultSchedule = "*/5 * * * *"
)

// GetDefaultConfig returns the configuration used when no config.yaml
// exists. Paths are relative to configDir.
func GetDefaultConfig(configDir string) Config {
	return Config{
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(configDir, "steward.db"),
		},
		Catalog: CatalogConfig{
			Dir:   filepath.Join(configDir, "catalog"),
			Watch: true,
		},
		Queue: QueueConfig{
			Workers: 4,
		},
		Runtime: RuntimeConfig{
			Engine: "docker",
		},
		SSH: SSHConfig{
			User:           "root",
			KeyDir:         filepath.Join(configDir, "keys"),
			KnownHostsFile: filepath.Join(configDir, "known_hosts"),
			ConnectTimeout: 10 * time.Second,
			CommandTimeout: 30 * time.Minute,
		},
		Backup: BackupConfig{
			Enabled:               true,
			Schedule:              DefaultSchedule,
			SaveDir:               DefaultSaveDir,
			DefaultExpirationDays: 5,
			DefaultMinutes:        1440,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
