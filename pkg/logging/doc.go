// Package logging provides the structured, subsystem-tagged logging used by
// every steward package.
//
// It is a thin layer over log/slog. Each entry carries a subsystem attribute
// ("Orchestrator", "Backup", "Queue", ...) so that interleaved output of
// concurrent actions can be filtered per component.
//
// # Initialization
//
// Interactive commands call InitForCLI; the serve command calls
// InitForDaemon, which can emit JSON:
//
//	logging.InitForDaemon(logging.FormatJSON, logging.ParseLevel(cfg.Logging.Level), os.Stderr)
//
// # Usage
//
//	logging.Info("Orchestrator", "Deploying container %s", c.Fullname())
//	logging.Error("Remote", err, "Command failed on %s", host)
//
// Messages below the configured level are dropped before formatting.
package logging
