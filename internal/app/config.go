package app

import (
	"steward/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug bool

	// Silent discards log output of interactive commands.
	Silent bool

	// Custom configuration path (optional)
	// When empty, ~/.config/steward is used
	ConfigPath string

	// Loaded settings. Left nil, NewApplication loads them from ConfigPath.
	Settings *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug, silent bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		Silent:     silent,
		ConfigPath: configPath,
	}
}
