// Package config loads chunkstore configuration from YAML files with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chunkstore configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// StorageConfig configures where the store keeps its files.
type StorageConfig struct {
	// Dir is the directory holding the vector blob, metadata sidecar,
	// and lock file. Defaults to ~/.chunkstore/store.
	Dir string `yaml:"dir" json:"dir"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model name (Ollama only).
	Model string `yaml:"model" json:"model"`

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize for batch embedding requests.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// ChunkingConfig configures how ingested documents are split.
type ChunkingConfig struct {
	// Size is the target chunk size in characters.
	Size int `yaml:"size" json:"size"`

	// Overlap is the number of characters shared between adjacent chunks.
	Overlap int `yaml:"overlap" json:"overlap"`
}

// SearchConfig configures search defaults.
type SearchConfig struct {
	// MaxResults is the default result limit.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// Threshold is the default minimum cosine similarity. Zero disables
	// threshold filtering.
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Dir: defaultStorageDir(),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 0, // Auto-detect from embedder
			BatchSize:  32,
			OllamaHost: "", // Empty uses default http://localhost:11434
		},
		Chunking: ChunkingConfig{
			Size:    1500,
			Overlap: 200,
		},
		Search: SearchConfig{
			MaxResults: 10,
			Threshold:  0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaultStorageDir returns the default store directory.
func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".chunkstore", "store")
	}
	return filepath.Join(home, ".chunkstore", "store")
}

// GetUserConfigPath returns the path to the user configuration file,
// following the XDG Base Directory convention:
//   - $XDG_CONFIG_HOME/chunkstore/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/chunkstore/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chunkstore", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "chunkstore", "config.yaml")
	}
	return filepath.Join(home, ".config", "chunkstore", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user configuration file if it exists.
// A missing file is not an error.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the given working directory, applying
// layers in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/chunkstore/config.yaml)
//  3. Project config (.chunkstore.yaml in dir)
//  4. Environment variables (CHUNKSTORE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load .chunkstore.yaml or .chunkstore.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".chunkstore.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".chunkstore.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine, use defaults.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Storage.Dir != "" {
		c.Storage.Dir = other.Storage.Dir
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.Threshold != 0 {
		c.Search.Threshold = other.Search.Threshold
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}

// applyEnvOverrides applies CHUNKSTORE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHUNKSTORE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("CHUNKSTORE_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CHUNKSTORE_OLLAMA_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CHUNKSTORE_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CHUNKSTORE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.Size = n
		}
	}
	if v := os.Getenv("CHUNKSTORE_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunking.Overlap = n
		}
	}
	if v := os.Getenv("CHUNKSTORE_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("CHUNKSTORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= -1 && f <= 1 {
			c.Search.Threshold = f
		}
	}
	if v := os.Getenv("CHUNKSTORE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir must not be empty")
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must not be negative, got %d", c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be in [-1, 1], got %g", c.Search.Threshold)
	}
	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be one of ollama, static; got %q", c.Embeddings.Provider)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	return nil
}

// Save writes the configuration to the given path as YAML, creating
// parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

// fileExists returns true if path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
