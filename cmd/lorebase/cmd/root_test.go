package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes the CLI with args and captures combined output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lorebase")
	assert.Contains(t, out, "commit")
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := runCommand(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")
}

func TestConfigCommand_ShowsEffectiveConfig(t *testing.T) {
	out, err := runCommand(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "chunking:")
	assert.Contains(t, out, "semantic_weight:")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lorebase.yaml")

	out, err := runCommand(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	// Second init without --force refuses to clobber
	_, err = runCommand(t, "config", "init", "--config", path)
	require.Error(t, err)

	_, err = runCommand(t, "config", "init", "--config", path, "--force")
	require.NoError(t, err)
}

func TestStatsCommand_EmptyCollection(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, "stats", "--json", "--data-dir", dir)
	require.NoError(t, err)

	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, float64(0), stats["count"])
	assert.Equal(t, "cosine", stats["metric"])
}

func TestResetCommand_RequiresConfirmation(t *testing.T) {
	dir := t.TempDir()

	_, err := runCommand(t, "reset", "--data-dir", dir)
	require.Error(t, err)

	out, err := runCommand(t, "reset", "--yes", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")
}

func TestExportCommand_Stdout(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, "export", "--data-dir", dir)
	require.NoError(t, err)

	var exp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &exp))
	assert.Contains(t, exp, "collection_name")
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCommand(t, "frobnicate")
	require.Error(t, err)
}
