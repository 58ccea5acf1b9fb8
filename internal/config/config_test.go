package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "semantic", cfg.Chunking.Strategy)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Search.TextWeight)
	assert.Equal(t, "cosine", cfg.Store.Metric)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Store.Collection, cfg.Store.Collection)
}

func TestLoad_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := Default()
	cfg.Store.Collection = "dream_chapters"
	cfg.Chunking.Strategy = "hybrid"
	cfg.Chunking.CharacterNames = []string{"Baoyu", "Daiyu"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dream_chapters", loaded.Store.Collection)
	assert.Equal(t, "hybrid", loaded.Chunking.Strategy)
	assert.Equal(t, []string{"Baoyu", "Daiyu"}, loaded.Chunking.CharacterNames)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  collection: custom\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Store.Collection)
	// Untouched sections keep defaults
	assert.Equal(t, Default().Embeddings.Model, cfg.Embeddings.Model)
	assert.Equal(t, Default().Search.SemanticWeight, cfg.Search.SemanticWeight)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad strategy", func(c *Config) { c.Chunking.Strategy = "clever" }},
		{"overlap >= size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }},
		{"bad metric", func(c *Config) { c.Store.Metric = "manhattan" }},
		{"threshold out of range", func(c *Config) { c.Store.SimilarityThreshold = 1.5 }},
		{"weights not summing", func(c *Config) { c.Search.SemanticWeight = 0.9 }},
		{"bad lexical backend", func(c *Config) { c.Store.LexicalBackend = "grep" }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOREBASE_EMBED_HOST", "http://embed.internal:8080")
	t.Setenv("LOREBASE_SEMANTIC_WEIGHT", "0.6")
	t.Setenv("LOREBASE_TEXT_WEIGHT", "0.4")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://embed.internal:8080", cfg.Embeddings.Host)
	assert.Equal(t, 0.6, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.4, cfg.Search.TextWeight)
}
