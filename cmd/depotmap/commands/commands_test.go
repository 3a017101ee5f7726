package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeDatasets(t *testing.T) (keys, catalog string) {
	t.Helper()
	dir := t.TempDir()
	keys = filepath.Join(dir, "depotkeys.json")
	catalog = filepath.Join(dir, "apps.json")
	require.NoError(t, os.WriteFile(keys, []byte(`{"730":"a","731":"b","5000":"c","5001":""}`), 0o644))
	require.NoError(t, os.WriteFile(catalog, []byte(`{"applist":{"apps":[{"appid":730,"name":"Counter-Strike 2"}]}}`), 0o644))
	return keys, catalog
}

func TestResolveCommand(t *testing.T) {
	keys, catalog := writeDatasets(t)

	out, err := execute(t, "resolve", "--depot-keys", keys, "--catalog", catalog,
		"--skip-telemetry", "--log-format", "text", "731", "90000")
	require.NoError(t, err)
	assert.Equal(t, "731\t730\tCounter-Strike 2\n90000\tunresolved\n", out)
}

func TestResolveRejectsBadID(t *testing.T) {
	_, err := execute(t, "resolve", "--skip-telemetry", "abc")
	assert.ErrorContains(t, err, "invalid depot id")
}

func TestGenerateCommand(t *testing.T) {
	keys, catalog := writeDatasets(t)
	out := t.TempDir()

	stdout, err := execute(t, "generate", "--depot-keys", keys, "--catalog", catalog, "-o", out,
		"--skip-telemetry", "--log-format", "text")
	require.NoError(t, err)
	assert.Contains(t, stdout, "DEPOTMAP RUN COMPLETE")

	lua, err := os.ReadFile(filepath.Join(out, "730.lua"))
	require.NoError(t, err)
	assert.Equal(t, "addappid(730)\naddappid(730,0,\"a\")\naddappid(731,0,\"b\")", string(lua))
	assert.FileExists(t, filepath.Join(out, "5000.lua"))
	assert.FileExists(t, filepath.Join(out, "depot_mapping.json"))
}

func TestSearchCommand(t *testing.T) {
	keys, catalog := writeDatasets(t)
	out := t.TempDir()

	stdout, err := execute(t, "search", "--depot-keys", keys, "--catalog", catalog, "-o", out,
		"--skip-telemetry", "--log-format", "text", "--generate", "counter")
	require.NoError(t, err)
	assert.Contains(t, stdout, "730 | Counter-Strike 2\n")
	assert.Contains(t, stdout, "Generated 1 scripts")
	assert.FileExists(t, filepath.Join(out, "730.lua"))
	assert.NoFileExists(t, filepath.Join(out, "5000.lua"))
}

func TestSearchRejectsShortQuery(t *testing.T) {
	_, err := execute(t, "search", "--skip-telemetry", "x")
	assert.ErrorContains(t, err, "at least 2 characters")
}

func TestHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "DEPOTMAP")
	assert.Contains(t, out, "generate")
}
