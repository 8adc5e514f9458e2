package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"steward/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/steward"
	configFileName = "config.yaml"
)

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from configPath over the defaults and
// validates the result. Relative paths in the file are taken relative to
// configPath.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig(configPath)

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, NewConfigurationError(configFilePath, "parse", err.Error())
	}
	config.resolvePaths(configPath)

	if err := config.Validate(); err != nil {
		var errs ValidationErrors
		if errors.As(err, &errs) {
			collection := ConfigurationErrorCollection{}
			for _, e := range errs {
				collection.Add(NewConfigurationError(configFilePath, "validation", e.Error()))
			}
			return Config{}, collection
		}
		return Config{}, err
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.Catalog.Dir, &c.SSH.KeyDir, &c.SSH.KnownHostsFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	if c.Store.DSN != "" && c.Store.DSN != ":memory:" && !filepath.IsAbs(c.Store.DSN) {
		c.Store.DSN = filepath.Join(base, c.Store.DSN)
	}
}
