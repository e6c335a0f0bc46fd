package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama API for embeddings (default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline fallback).
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder based on provider type. host is the
// Ollama base URL; empty means the default. The CHUNKSTORE_EMBEDDER
// environment variable overrides the provider:
//   - "ollama": use OllamaEmbedder
//   - "static": use StaticEmbedder (no network required)
//
// Query embedding caching is enabled by default. Set
// CHUNKSTORE_EMBED_CACHE=false to disable it.
func NewEmbedder(ctx context.Context, provider ProviderType, model, host string) (Embedder, error) {
	if env := os.Getenv("CHUNKSTORE_EMBEDDER"); env != "" {
		provider = ParseProvider(env)
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		embedder, err = newOllama(ctx, model, host)
	}
	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}

	return embedder, nil
}

// isCacheDisabled checks if the embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("CHUNKSTORE_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// newOllama creates an Ollama embedder for the given model and host,
// letting environment variables override host, model, and timeout.
func newOllama(ctx context.Context, model, host string) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if model != "" {
		cfg.Model = model
	}
	if host != "" {
		cfg.Host = host
	}

	if envHost := os.Getenv("CHUNKSTORE_OLLAMA_HOST"); envHost != "" {
		cfg.Host = envHost
	}
	if modelOverride := os.Getenv("CHUNKSTORE_OLLAMA_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if timeoutStr := os.Getenv("CHUNKSTORE_OLLAMA_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or use offline embeddings: chunkstore --embedder=static", err)
	}
	return embedder, nil
}

// ParseProvider converts a string to a ProviderType.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	case "ollama":
		return ProviderOllama
	default:
		return ProviderOllama
	}
}

// String returns the string representation of the provider.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderOllama),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}
