package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds sssmc configuration options.
type Config struct {
	// CachePath is the default cache file opened when no argument is
	// given.
	CachePath string `json:"cache_path,omitempty"` //nolint:tagliatelle // snake_case for config file

	// HistoryFile stores REPL history. Defaults under the user config
	// dir.
	HistoryFile string `json:"history_file,omitempty"` //nolint:tagliatelle // snake_case for config file
}

var (
	errConfigFileRead = errors.New("cannot read config file")
	errConfigInvalid  = errors.New("invalid config file")
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		CachePath: "/var/lib/sss/mc/initgroups",
	}
}

// getConfigPath returns the path to the config file.
// Uses $XDG_CONFIG_HOME/sssmc/config.json if set, otherwise
// ~/.config/sssmc/config.json. Empty when no home dir is known.
func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sssmc", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "sssmc", "config.json")
	}

	return ""
}

// LoadConfig loads configuration from the config file, if present,
// over the defaults. The file is HuJSON: comments and trailing commas
// are allowed.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = getConfigPath()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from flags or XDG resolution
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return cfg, fmt.Errorf("%w: %s: %v", errConfigFileRead, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", errConfigInvalid, path, err)
	}

	decodeErr := json.Unmarshal(standardized, &cfg)
	if decodeErr != nil {
		return cfg, fmt.Errorf("%w: %s: %v", errConfigInvalid, path, decodeErr)
	}

	return cfg, nil
}

// historyPath resolves the REPL history file location.
func historyPath(cfg Config) string {
	if cfg.HistoryFile != "" {
		return cfg.HistoryFile
	}

	configPath := getConfigPath()
	if configPath == "" {
		return ""
	}

	return filepath.Join(filepath.Dir(configPath), "history")
}
