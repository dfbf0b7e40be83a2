package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("THOUGHTTREE_CONFIG_DIR", dir)
	ResetEnvForTest()
	t.Cleanup(ResetEnvForTest)
	return dir
}

func TestEnvSnapshot(t *testing.T) {
	t.Setenv("THOUGHTTREE_NOTES_DIR", "/notes")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("THOUGHTTREE_DEBUG", "1")
	ResetEnvForTest()
	t.Cleanup(ResetEnvForTest)

	e := Env()
	assert.Equal(t, "/notes", e.NotesDir)
	assert.Equal(t, "sk-test", e.AnthropicKey)
	assert.True(t, e.Debug)

	assert.Equal(t, "sk-test", e.Lookup("ANTHROPIC_API_KEY"))
	assert.Equal(t, "", e.Lookup("UNRELATED"))
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	withConfigDir(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.DefaultProvider)
	assert.Empty(t, cfg.NotesDir)
	assert.NotNil(t, cfg.ProviderPaths)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := withConfigDir(t)

	cfg := Default()
	cfg.NotesDir = "/home/me/notes"
	cfg.ProviderPaths["claude"] = "/opt/claude-acp"
	require.NoError(t, cfg.Save())

	// Written with owner-only permissions.
	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/home/me/notes", got.NotesDir)
	assert.Equal(t, "/opt/claude-acp", got.ProviderPath("claude"))
	assert.Equal(t, "", got.ProviderPath("unknown"))
}

func TestEnvOverridesNotesDir(t *testing.T) {
	withConfigDir(t)

	cfg := Default()
	cfg.NotesDir = "/from/file"
	require.NoError(t, cfg.Save())

	t.Setenv("THOUGHTTREE_NOTES_DIR", "/from/env")
	ResetEnvForTest()

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/from/env", got.NotesDir)
}

func TestLoadCorruptFileFails(t *testing.T) {
	dir := withConfigDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0o600))

	_, err := Load()
	assert.Error(t, err)
}
