// Package app wires steward together.
//
// NewApplication loads the configuration, initializes logging and builds the
// Services every command works with: the record store, the catalog holder,
// the SSH dialer with its server keys, the action queue and the
// orchestrator.
//
// Interactive commands use the services directly and run actions inline.
// Run is the long running serve mode: it starts the action queue, reloads
// the catalog when its files change and fires the periodic save tick on the
// configured cron schedule. Readiness and shutdown are reported to systemd
// when steward runs as a notify service.
package app
