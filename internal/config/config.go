package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const configFileName = "config.json"

// Config holds the persisted application configuration.
type Config struct {
	// NotesDir is the root directory for notes. It is the working directory
	// for adapter subprocesses and the boundary for path-scoped permissions.
	NotesDir string `json:"notesDirectory,omitempty"`

	// ProviderPaths maps provider id to an explicit adapter executable path.
	// Providers without an entry are resolved via PATH.
	ProviderPaths map[string]string `json:"providerPaths,omitempty"`

	// DefaultProvider is used when the caller does not name one.
	DefaultProvider string `json:"defaultProvider,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DefaultProvider: "claude",
		ProviderPaths:   make(map[string]string),
	}
}

// Dir returns the directory holding the config file.
func Dir() string {
	if d := Env().ConfigDir; d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".thoughttree"
	}
	return filepath.Join(home, ".thoughttree")
}

func configPath() string {
	return filepath.Join(Dir(), configFileName)
}

// Load reads the configuration from disk, filling defaults for anything
// missing. Environment variables override the file.
func Load() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(configPath()); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath(), err)
		}
	}
	if cfg.ProviderPaths == nil {
		cfg.ProviderPaths = make(map[string]string)
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "claude"
	}

	if dir := Env().NotesDir; dir != "" {
		cfg.NotesDir = dir
	}

	return cfg, nil
}

// Save writes the configuration to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath(), data, 0600)
}

// ProviderPath returns the configured override for a provider, or "".
func (c *Config) ProviderPath(provider string) string {
	return c.ProviderPaths[provider]
}
