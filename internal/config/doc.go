// Package config loads steward's configuration.
//
// Configuration lives in a single directory, ~/.config/steward by default or
// the directory given with --config-path. The directory holds config.yaml;
// by default it also holds the record database, the catalog directory and
// the per-server SSH keys.
//
// A missing config.yaml means defaults. Values in the file override the
// defaults section by section:
//
//	store:
//	  dsn: steward.db
//	catalog:
//	  dir: catalog
//	  watch: true
//	queue:
//	  workers: 4
//	ssh:
//	  user: root
//	  connectTimeout: 10s
//	backup:
//	  schedule: "*/5 * * * *"
//	  saveDir: /opt/steward/saves
//	logging:
//	  level: debug
//	  format: json
//
// Relative paths are resolved against the configuration directory. The
// loaded configuration is validated as a whole; a file with several
// problems yields a ConfigurationErrorCollection listing all of them.
package config
