package config

import "time"

// Config is the top-level configuration structure for steward.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
	Queue   QueueConfig   `yaml:"queue"`
	Runtime RuntimeConfig `yaml:"runtime"`
	SSH     SSHConfig     `yaml:"ssh"`
	Backup  BackupConfig  `yaml:"backup"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // Only "sqlite" is supported
	DSN    string `yaml:"dsn,omitempty"`    // File path or ":memory:"
}

// CatalogConfig locates the application catalog files.
type CatalogConfig struct {
	Dir   string `yaml:"dir,omitempty"`
	Watch bool   `yaml:"watch,omitempty"` // Reload the catalog when files change
}

// QueueConfig sizes the action queue.
type QueueConfig struct {
	Workers int `yaml:"workers,omitempty"`
}

// RuntimeConfig selects the container engine CLI invoked on servers.
type RuntimeConfig struct {
	Engine string `yaml:"engine,omitempty"` // docker or podman
}

// SSHConfig controls how managed servers are reached.
type SSHConfig struct {
	User           string        `yaml:"user,omitempty"`
	KeyDir         string        `yaml:"keyDir,omitempty"`         // Per-server key pairs are kept here
	KnownHostsFile string        `yaml:"knownHostsFile,omitempty"` // Empty disables host key checking only when Insecure is set
	Insecure       bool          `yaml:"insecure,omitempty"`
	ConnectTimeout time.Duration `yaml:"connectTimeout,omitempty"`
	CommandTimeout time.Duration `yaml:"commandTimeout,omitempty"`
}

// BackupConfig drives the periodic save tick.
type BackupConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Schedule              string `yaml:"schedule,omitempty"` // Cron spec, e.g. "*/5 * * * *"
	SaveDir               string `yaml:"saveDir,omitempty"`  // Where save data lives on each server
	DefaultExpirationDays int    `yaml:"defaultExpirationDays,omitempty"`
	DefaultMinutes        int    `yaml:"defaultMinutesBetweenSave,omitempty"`

	// PurgeExpired lets the tick delete expired saves and their data.
	PurgeExpired bool `yaml:"purgeExpired,omitempty"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // text or json
}
