// Package embed generates vector embeddings for text via pluggable
// providers.
package embed

import (
	"context"
	"strings"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize caps batch size to prevent memory exhaustion.
	MaxBatchSize = 256

	// DefaultDimensions is the embedding dimension for EmbeddingGemma.
	DefaultDimensions = 768

	// DefaultMaxTextLength is the rune limit applied before embedding.
	// Providers silently truncate longer inputs; truncating here keeps
	// the cache key aligned with what was actually embedded.
	DefaultMaxTextLength = 2048

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of retries on transient failures.
	DefaultMaxRetries = 3

	// DefaultRateLimitDelay is the fixed pause between provider calls.
	DefaultRateLimitDelay = 100 * time.Millisecond
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result
	// has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NormalizeText collapses runs of whitespace to single spaces and
// truncates to maxRunes. Every provider path embeds the normalized
// form, so equal normalized texts always share a cache entry.
func NormalizeText(text string, maxRunes int) string {
	joined := strings.Join(strings.Fields(text), " ")
	if maxRunes <= 0 {
		return joined
	}
	runes := []rune(joined)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return joined
}

// ZeroVector returns an all-zero embedding of the given dimension.
// Zero vectors mark chunks whose embedding failed; they match nothing
// in similarity search but keep the chunk retrievable by keyword.
func ZeroVector(dims int) []float32 {
	return make([]float32, dims)
}

// IsZeroVector reports whether v is all zeros.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
