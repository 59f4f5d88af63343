package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultAPIURL  = "http://localhost:8030"
	defaultTimeout = 15 * time.Second
)

// cliConfig is the on-disk destuffctl configuration
type cliConfig struct {
	APIURL         string `toml:"api_url"`
	Permissions    string `toml:"permissions"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		APIURL:         defaultAPIURL,
		TimeoutSeconds: int(defaultTimeout / time.Second),
	}
}

func (c cliConfig) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func defaultConfigPath() string {
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "destuffctl", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "destuffctl", "config.toml")
}

// loadCLIConfig reads path, or the default location when path is empty.
// A missing default file yields the defaults; a missing explicit file is an error.
func loadCLIConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config %s: %w", path, err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	return cfg, nil
}
