package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"steward/internal/config"
	"steward/pkg/logging"
)

// Application bootstraps steward: it loads configuration, initializes
// logging and wires the services every command works with.
//
// Example usage:
//
//	cfg := app.NewConfig(false, false, "")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	defer application.Close()
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication creates and initializes a new application instance with the provided configuration.
// This function performs the complete bootstrap sequence:
//
//  1. Configures logging based on debug settings
//  2. Loads steward configuration from cfg.ConfigPath unless cfg.Settings is set
//  3. Opens the record store, loads the catalog and wires the orchestrator
func NewApplication(cfg *Config) (*Application, error) {
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = config.GetDefaultConfigPathOrPanic()
	}

	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stderr
	if cfg.Silent {
		logOutput = io.Discard
	}
	logging.InitForCLI(appLogLevel, logOutput)

	if cfg.Settings == nil {
		settings, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load steward configuration from path: %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load steward configuration from path %s: %w", cfg.ConfigPath, err)
		}
		cfg.Settings = &settings
	}
	if !cfg.Debug && !cfg.Silent {
		logging.InitForCLI(logging.ParseLevel(cfg.Settings.Logging.Level), logOutput)
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services returns the wired services.
func (a *Application) Services() *Services {
	return a.services
}

// Settings returns the loaded configuration.
func (a *Application) Settings() *config.Config {
	return a.config.Settings
}

// Run serves until ctx is cancelled: the action queue, the periodic save
// tick and the catalog watcher run side by side.
func (a *Application) Run(ctx context.Context) error {
	level := logging.ParseLevel(a.config.Settings.Logging.Level)
	if a.config.Debug {
		level = logging.LevelDebug
	}
	logging.InitForDaemon(logging.Format(a.config.Settings.Logging.Format), level, os.Stderr)
	return runServe(ctx, a.config.Settings, a.services)
}

// Close releases the record store.
func (a *Application) Close() error {
	return a.services.Close()
}
