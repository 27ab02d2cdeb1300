// Package config provides configuration management for caskdb. The core
// only needs a data directory and a listen port (spec's external
// collaborator contract); this package supplies those plus the ambient
// settings (log level, fsync policy, client cap) a real deployment needs,
// loaded from a YAML file with optional .env-driven overrides.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds the caskdb server configuration.
type Config struct {
	// DataDir is the directory holding the active segment (0.data).
	DataDir string `yaml:"data_dir"`
	// ListenPort is the TCP port the server listens on.
	ListenPort int `yaml:"listen_port"`

	// LogLevel controls the verbosity of the structured logger:
	// debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// MaxClients caps concurrent connections (0 = unlimited).
	MaxClients int `yaml:"max_clients"`

	// SyncWrites, when true, fsyncs the segment after every Put — a
	// hardening of the engine's default "no explicit flush" behavior
	// (see the storage engine's durability design note).
	SyncWrites bool `yaml:"sync_writes"`
}

// DefaultListenPort is used when no other configuration is supplied.
const DefaultListenPort = 2288

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir:    "data",
		ListenPort: DefaultListenPort,
		LogLevel:   "info",
		MaxClients: 10000,
		SyncWrites: false,
	}
}

// Load reads configuration from a YAML file at path, expanding ${VAR}
// references against the environment after first loading a .env file from
// the current working directory if one exists (a missing .env is not an
// error). A missing config
// file is not an error either — Load falls back to Default().
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %q: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration back out as YAML, so that a configuration
// can be captured and later reloaded with Load.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: failed to marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
