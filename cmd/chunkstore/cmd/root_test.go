package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with the given args and captures output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// isolateEnv points HOME and the config/env knobs at a temp directory so
// tests never touch the real user setup.
func isolateEnv(t *testing.T) string {
	t.Helper()

	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("CHUNKSTORE_EMBEDDER", "")
	t.Setenv("CHUNKSTORE_DIR", "")
	t.Setenv("CHUNKSTORE_LOG_LEVEL", "error")
	return tmp
}

func TestVersionCommand(t *testing.T) {
	isolateEnv(t)

	// Given: the version subcommand with --short

	// When: executing it
	out, err := runCLI(t, "version", "--short")

	// Then: only the version string is printed
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestVersionCommand_JSON(t *testing.T) {
	isolateEnv(t)

	out, err := runCLI(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
	assert.Contains(t, info, "go_version")
}

func TestCLI_IngestSearchGetDelete(t *testing.T) {
	tmp := isolateEnv(t)
	storeDir := filepath.Join(tmp, "store")

	docPath := filepath.Join(tmp, "doc.txt")
	require.NoError(t, os.WriteFile(docPath,
		[]byte("the solar panel inverter converts direct current into alternating current"), 0o644))

	// Given: a file ingested with the offline embedder
	out, err := runCLI(t, "--dir", storeDir, "--embedder", "static", "ingest", docPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 1 chunks from 1 files")

	// When: searching for it
	out, err = runCLI(t, "--dir", storeDir, "--embedder", "static",
		"search", "--format", "json", "solar", "inverter")
	require.NoError(t, err)

	var result searchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Results, "ingested chunk should be found")
	chunkID := result.Results[0].ID

	// Then: the chunk can be fetched by id
	out, err = runCLI(t, "--dir", storeDir, "--embedder", "static", "get", chunkID)
	require.NoError(t, err)
	assert.Contains(t, out, "solar panel inverter")

	// And: deleting it empties the store
	out, err = runCLI(t, "--dir", storeDir, "--embedder", "static", "delete", chunkID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 chunks")

	out, err = runCLI(t, "--dir", storeDir, "--embedder", "static", "stats", "--json")
	require.NoError(t, err)

	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 0, stats.Chunks)
}

func TestCLI_KeywordSearch(t *testing.T) {
	tmp := isolateEnv(t)
	storeDir := filepath.Join(tmp, "store")

	docPath := filepath.Join(tmp, "doc.txt")
	require.NoError(t, os.WriteFile(docPath,
		[]byte("kubernetes schedules pods onto nodes in the cluster"), 0o644))

	_, err := runCLI(t, "--dir", storeDir, "--embedder", "static", "ingest", docPath)
	require.NoError(t, err)

	out, err := runCLI(t, "--dir", storeDir, "--embedder", "static",
		"search", "--keyword", "--format", "json", "kubernetes", "pods")
	require.NoError(t, err)

	var result searchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Results)
	assert.Contains(t, result.Results[0].Text, "kubernetes")
}

func TestCLI_GetUnknownChunkFails(t *testing.T) {
	tmp := isolateEnv(t)
	storeDir := filepath.Join(tmp, "store")

	_, err := runCLI(t, "--dir", storeDir, "--embedder", "static", "get", "no-such-id")
	assert.Error(t, err)
}

func TestCLI_SearchRejectsKeywordWithThreshold(t *testing.T) {
	tmp := isolateEnv(t)

	_, err := runCLI(t, "--dir", filepath.Join(tmp, "store"), "--embedder", "static",
		"search", "--keyword", "--threshold", "0.5", "query")
	assert.Error(t, err)
}

func TestCLI_ConfigShow(t *testing.T) {
	isolateEnv(t)

	out, err := runCLI(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "embeddings:")
	assert.Contains(t, out, "provider: ollama")
}
