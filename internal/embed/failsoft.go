package embed

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// FailSoftEmbedder degrades provider failures into zero vectors so
// bulk ingestion never aborts on a flaky embedding host. Failures are
// logged and counted; the affected chunks stay retrievable by keyword
// and can be re-embedded later. Wrap the outermost embedder with this
// only on ingestion paths where losing semantic recall for a chunk is
// preferable to losing the chunk.
type FailSoftEmbedder struct {
	inner  Embedder
	logger *slog.Logger

	failures atomic.Int64
}

var _ Embedder = (*FailSoftEmbedder)(nil)

// NewFailSoftEmbedder wraps inner with zero-vector degradation.
func NewFailSoftEmbedder(inner Embedder, logger *slog.Logger) *FailSoftEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailSoftEmbedder{inner: inner, logger: logger}
}

// Embed returns the inner embedding, or a zero vector on failure.
func (f *FailSoftEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := f.inner.Embed(ctx, text)
	if err != nil {
		f.failures.Add(1)
		f.logger.Warn("embedding failed, storing zero vector",
			slog.String("error", err.Error()))
		return ZeroVector(f.inner.Dimensions()), nil
	}
	return vec, nil
}

// EmbedBatch returns the inner embeddings, or zero vectors for the
// whole batch on failure.
func (f *FailSoftEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := f.inner.EmbedBatch(ctx, texts)
	if err != nil {
		f.failures.Add(int64(len(texts)))
		f.logger.Warn("batch embedding failed, storing zero vectors",
			slog.Int("batch_size", len(texts)),
			slog.String("error", err.Error()))
		vecs = make([][]float32, len(texts))
		for i := range vecs {
			vecs[i] = ZeroVector(f.inner.Dimensions())
		}
		return vecs, nil
	}
	return vecs, nil
}

// Failures returns the number of inputs degraded to zero vectors.
func (f *FailSoftEmbedder) Failures() int64 {
	return f.failures.Load()
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (f *FailSoftEmbedder) Dimensions() int {
	return f.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (f *FailSoftEmbedder) ModelName() string {
	return f.inner.ModelName()
}

// Available checks if the inner embedder is ready.
func (f *FailSoftEmbedder) Available(ctx context.Context) bool {
	return f.inner.Available(ctx)
}

// Close closes the inner embedder.
func (f *FailSoftEmbedder) Close() error {
	return f.inner.Close()
}
