// Package config defines the lorebase configuration schema.
//
// Components receive their config sections as explicit handles at
// construction time; nothing in this package is a process-wide singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the config schema version.
const CurrentVersion = 1

// Config is the complete lorebase configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Pipeline   PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ChunkingConfig configures how source text is split into chunks.
type ChunkingConfig struct {
	// Strategy selects the chunking strategy: fixed_size, paragraph,
	// sentence, section, dialogue, semantic, hybrid.
	Strategy string `yaml:"strategy" json:"strategy"`

	// ChunkSize is the target chunk size in runes (fixed_size).
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// ChunkOverlap is the number of runes shared between consecutive
	// fixed_size chunks.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`

	// MinChunkSize is advisory; undersized boundary chunks are still emitted.
	MinChunkSize int `yaml:"min_chunk_size" json:"min_chunk_size"`

	// MaxChunkSize bounds semantic and hybrid chunks.
	MaxChunkSize int `yaml:"max_chunk_size" json:"max_chunk_size"`

	// SectionPattern is the regexp matching section heading lines.
	SectionPattern string `yaml:"section_pattern" json:"section_pattern"`

	// CharacterNames is the entity dictionary used for metadata
	// extraction. Supplied by the caller; lorebase does not own it.
	CharacterNames []string `yaml:"character_names" json:"character_names"`
}

// EmbeddingsConfig configures the external embedding service.
type EmbeddingsConfig struct {
	Host          string `yaml:"host" json:"host"`
	Model         string `yaml:"model" json:"model"`
	Dimensions    int    `yaml:"dimensions" json:"dimensions"`
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`
	MaxTextLength int    `yaml:"max_text_length" json:"max_text_length"`

	// RateLimitDelayMS is the fixed inter-call delay in milliseconds.
	RateLimitDelayMS int `yaml:"rate_limit_delay_ms" json:"rate_limit_delay_ms"`

	MaxRetries     int `yaml:"max_retries" json:"max_retries"`
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	CacheSize      int `yaml:"cache_size" json:"cache_size"`
}

// Timeout returns the per-call timeout as a duration.
func (e EmbeddingsConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// RateLimitDelay returns the inter-call delay as a duration.
func (e EmbeddingsConfig) RateLimitDelay() time.Duration {
	return time.Duration(e.RateLimitDelayMS) * time.Millisecond
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	// DataDir is the directory holding the collection files.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Collection is the collection name. Collections are independent.
	Collection string `yaml:"collection" json:"collection"`

	// Metric is the distance metric: cosine, l2, inner_product.
	Metric string `yaml:"metric" json:"metric"`

	// SimilarityThreshold is the minimum normalized similarity a
	// semantic result must meet to be returned (0-1).
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`

	// OverfetchFactor controls how many candidates are fetched before
	// threshold filtering (k * factor).
	OverfetchFactor int `yaml:"overfetch_factor" json:"overfetch_factor"`

	// LexicalBackend selects the keyword index: "sqlite" (FTS5, default)
	// or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// MaxResults is the default result count when a query omits k.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// SemanticWeight and TextWeight must sum to 1.0.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	TextWeight     float64 `yaml:"text_weight" json:"text_weight"`

	// ContextWeight blends auxiliary context-query results into the
	// primary ranking (0-1).
	ContextWeight float64 `yaml:"context_weight" json:"context_weight"`

	// ShortQueryRunes and LongQueryRunes are the length buckets used by
	// the auto strategy rule.
	ShortQueryRunes int `yaml:"short_query_runes" json:"short_query_runes"`
	LongQueryRunes  int `yaml:"long_query_runes" json:"long_query_runes"`

	// SemanticKeywords mark a query as meaning-seeking for the auto rule.
	SemanticKeywords []string `yaml:"semantic_keywords" json:"semantic_keywords"`

	// DegradeToText keeps hybrid search alive on text-only results when
	// the embedding path is down. When false, the provider error
	// propagates and the caller may retry with strategy=text.
	DegradeToText bool `yaml:"degrade_to_text" json:"degrade_to_text"`
}

// PipelineConfig configures bulk ingestion.
type PipelineConfig struct {
	// Workers bounds the parallel embedding worker pool.
	Workers int `yaml:"workers" json:"workers"`

	// InputDir is the directory of UTF-8 text files to ingest.
	InputDir string `yaml:"input_dir" json:"input_dir"`

	// FileGlob selects the files within InputDir.
	FileGlob string `yaml:"file_glob" json:"file_glob"`

	// SummaryRunes is the length of per-result summaries.
	SummaryRunes int `yaml:"summary_runes" json:"summary_runes"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
	Stderr   bool   `yaml:"stderr" json:"stderr"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Version: CurrentVersion,
		Chunking: ChunkingConfig{
			Strategy:       "semantic",
			ChunkSize:      512,
			ChunkOverlap:   50,
			MinChunkSize:   100,
			MaxChunkSize:   1024,
			SectionPattern: `^(第[一二三四五六七八九十百千0-9]+[回章卷节]|Chapter\s+\d+|CHAPTER\s+[IVXLC0-9]+)`,
		},
		Embeddings: EmbeddingsConfig{
			Host:             "http://localhost:11434",
			Model:            "embeddinggemma",
			Dimensions:       768,
			BatchSize:        32,
			MaxTextLength:    2048,
			RateLimitDelayMS: 100,
			MaxRetries:       3,
			TimeoutSeconds:   60,
			CacheSize:        1000,
		},
		Store: StoreConfig{
			DataDir:             "data/lorebase",
			Collection:          "passages",
			Metric:              "cosine",
			SimilarityThreshold: 0.7,
			OverfetchFactor:     3,
			LexicalBackend:      "sqlite",
			MaxResults:          20,
		},
		Search: SearchConfig{
			SemanticWeight:  0.7,
			TextWeight:      0.3,
			ContextWeight:   0.3,
			ShortQueryRunes: 20,
			LongQueryRunes:  50,
			SemanticKeywords: []string{
				"relationship", "why", "how", "feeling", "personality", "theme",
				"关系", "为什么", "如何", "怎样", "情感", "性格",
			},
			DegradeToText: true,
		},
		Pipeline: PipelineConfig{
			Workers:      4,
			InputDir:     "data/chapters",
			FileGlob:     "*.txt",
			SummaryRunes: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Stderr: true,
		},
	}
}

// Load reads configuration from path, applying defaults for absent fields
// and environment overrides on top. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior.
func (c Config) Validate() error {
	switch c.Chunking.Strategy {
	case "fixed_size", "paragraph", "sentence", "section", "dialogue", "semantic", "hybrid":
	default:
		return fmt.Errorf("invalid chunking.strategy %q", c.Chunking.Strategy)
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}
	if c.Chunking.MaxChunkSize < c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.max_chunk_size (%d) must be >= chunk_size (%d)",
			c.Chunking.MaxChunkSize, c.Chunking.ChunkSize)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.MaxTextLength <= 0 {
		return fmt.Errorf("embeddings.max_text_length must be positive, got %d", c.Embeddings.MaxTextLength)
	}

	switch c.Store.Metric {
	case "cosine", "l2", "inner_product":
	default:
		return fmt.Errorf("invalid store.metric %q", c.Store.Metric)
	}
	if c.Store.SimilarityThreshold < 0 || c.Store.SimilarityThreshold > 1 {
		return fmt.Errorf("store.similarity_threshold must be in [0,1], got %v", c.Store.SimilarityThreshold)
	}
	if c.Store.OverfetchFactor < 1 {
		return fmt.Errorf("store.overfetch_factor must be >= 1, got %d", c.Store.OverfetchFactor)
	}
	switch c.Store.LexicalBackend {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("invalid store.lexical_backend %q", c.Store.LexicalBackend)
	}

	if sum := c.Search.SemanticWeight + c.Search.TextWeight; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("search weights must sum to 1.0, got %v", sum)
	}
	if c.Search.ContextWeight < 0 || c.Search.ContextWeight > 1 {
		return fmt.Errorf("search.context_weight must be in [0,1], got %v", c.Search.ContextWeight)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	}

	return nil
}

// applyEnvOverrides applies LOREBASE_* environment variables.
// Env vars take precedence over both defaults and file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOREBASE_EMBED_HOST"); v != "" {
		cfg.Embeddings.Host = v
	}
	if v := os.Getenv("LOREBASE_EMBED_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("LOREBASE_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("LOREBASE_COLLECTION"); v != "" {
		cfg.Store.Collection = v
	}
	if v := os.Getenv("LOREBASE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOREBASE_SEMANTIC_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.SemanticWeight = f
		}
	}
	if v := os.Getenv("LOREBASE_TEXT_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.TextWeight = f
		}
	}
}
