// Package config provides centralized configuration management:
// a process-wide environment snapshot plus a JSON config file holding the
// notes directory and provider executable overrides.
package config

import (
	"os"
	"sync"
)

// ThoughtTreeEnv holds all environment variables the bridge consults.
type ThoughtTreeEnv struct {
	// NotesDir overrides the configured notes directory (THOUGHTTREE_NOTES_DIR)
	NotesDir string

	// ConfigDir overrides the config file location (THOUGHTTREE_CONFIG_DIR)
	ConfigDir string

	// AnthropicKey is passed through to adapter subprocesses when no
	// interactive login session exists (ANTHROPIC_API_KEY)
	AnthropicKey string

	// Debug enables debug-level logging (THOUGHTTREE_DEBUG)
	Debug bool
}

var (
	env     *ThoughtTreeEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *ThoughtTreeEnv {
	envOnce.Do(func() {
		env = &ThoughtTreeEnv{
			NotesDir:     os.Getenv("THOUGHTTREE_NOTES_DIR"),
			ConfigDir:    os.Getenv("THOUGHTTREE_CONFIG_DIR"),
			AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
			Debug:        os.Getenv("THOUGHTTREE_DEBUG") == "1",
		}
	})
	return env
}

// Lookup returns the snapshot value for a variable name, for callers that
// hold a key name rather than a field (provider credential passthrough).
func (e *ThoughtTreeEnv) Lookup(key string) string {
	switch key {
	case "THOUGHTTREE_NOTES_DIR":
		return e.NotesDir
	case "THOUGHTTREE_CONFIG_DIR":
		return e.ConfigDir
	case "ANTHROPIC_API_KEY":
		return e.AnthropicKey
	default:
		return ""
	}
}

// ResetEnvForTest clears the cached snapshot so tests can re-read variables.
func ResetEnvForTest() {
	env = nil
	envOnce = sync.Once{}
}
