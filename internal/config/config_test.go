package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateUserConfig points XDG_CONFIG_HOME at a temp dir so tests never
// touch the real user config.
func isolateUserConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

// clearEnvOverrides unsets every CHUNKSTORE_* variable the loader reads.
func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CHUNKSTORE_DIR", "CHUNKSTORE_EMBEDDER", "CHUNKSTORE_OLLAMA_MODEL",
		"CHUNKSTORE_OLLAMA_HOST", "CHUNKSTORE_CHUNK_SIZE", "CHUNKSTORE_CHUNK_OVERLAP",
		"CHUNKSTORE_MAX_RESULTS", "CHUNKSTORE_THRESHOLD", "CHUNKSTORE_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.NotEmpty(t, cfg.Storage.Dir)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 1500, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, "info", cfg.Log.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_UsesDefaults(t *testing.T) {
	// Given: an empty project directory and no user config
	isolateUserConfig(t)
	clearEnvOverrides(t)
	dir := t.TempDir()

	// When: I load configuration
	cfg, err := Load(dir)

	// Then: defaults are returned
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Chunking, cfg.Chunking)
	assert.Equal(t, NewConfig().Embeddings, cfg.Embeddings)
}

func TestLoad_ProjectConfig_OverridesDefaults(t *testing.T) {
	// Given: a project with a .chunkstore.yaml
	isolateUserConfig(t)
	clearEnvOverrides(t)
	dir := t.TempDir()

	yaml := `
storage:
  dir: /data/chunks
embeddings:
  provider: static
chunking:
  size: 800
  overlap: 100
search:
  max_results: 5
  threshold: 0.4
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".chunkstore.yaml"), []byte(yaml), 0o644))

	// When: I load configuration
	cfg, err := Load(dir)

	// Then: the file values override defaults
	require.NoError(t, err)
	assert.Equal(t, "/data/chunks", cfg.Storage.Dir)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.InDelta(t, 0.4, cfg.Search.Threshold, 1e-9)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_PartialProjectConfig_KeepsOtherDefaults(t *testing.T) {
	// Given: a project config that only sets the chunk size
	isolateUserConfig(t)
	clearEnvOverrides(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".chunkstore.yaml"),
		[]byte("chunking:\n  size: 2000\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 2000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap, "unset fields keep defaults")
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
}

func TestLoad_YmlFallback(t *testing.T) {
	isolateUserConfig(t)
	clearEnvOverrides(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".chunkstore.yml"),
		[]byte("search:\n  max_results: 42\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Search.MaxResults)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	// Given: a project config and conflicting environment variables
	isolateUserConfig(t)
	clearEnvOverrides(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".chunkstore.yaml"),
		[]byte("embeddings:\n  provider: ollama\nchunking:\n  size: 800\n"), 0o644))

	t.Setenv("CHUNKSTORE_EMBEDDER", "static")
	t.Setenv("CHUNKSTORE_CHUNK_SIZE", "500")

	// When: I load configuration
	cfg, err := Load(dir)

	// Then: environment wins
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 500, cfg.Chunking.Size)
}

func TestLoad_UserConfigThenProjectConfig(t *testing.T) {
	// Given: a user config and a project config setting different fields
	xdg := isolateUserConfig(t)
	clearEnvOverrides(t)

	userDir := filepath.Join(xdg, "chunkstore")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(userDir, "config.yaml"),
		[]byte("log:\n  level: warn\nchunking:\n  size: 1000\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".chunkstore.yaml"),
		[]byte("chunking:\n  size: 600\n"), 0o644))

	// When: I load configuration
	cfg, err := Load(dir)

	// Then: project config overrides user config; user config overrides defaults
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.Chunking.Size)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MalformedYAML_ReturnsError(t *testing.T) {
	isolateUserConfig(t)
	clearEnvOverrides(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".chunkstore.yaml"),
		[]byte("chunking: [not a map"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty storage dir", func(c *Config) { c.Storage.Dir = "" }},
		{"zero chunk size", func(c *Config) { c.Chunking.Size = 0 }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"overlap >= size", func(c *Config) { c.Chunking.Size = 100; c.Chunking.Overlap = 100 }},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }},
		{"threshold out of range", func(c *Config) { c.Search.Threshold = 1.5 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mlx" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	isolateUserConfig(t)
	clearEnvOverrides(t)

	cfg := NewConfig()
	cfg.Storage.Dir = "/somewhere/else"
	cfg.Chunking.Size = 900

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, "/somewhere/else", loaded.Storage.Dir)
	assert.Equal(t, 900, loaded.Chunking.Size)
}
