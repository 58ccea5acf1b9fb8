package pipeline

import (
	"context"
	"log/slog"

	"github.com/tessellate-ai/lorebase/internal/chunk"
	"github.com/tessellate-ai/lorebase/internal/config"
	"github.com/tessellate-ai/lorebase/internal/embed"
	"github.com/tessellate-ai/lorebase/internal/search"
	"github.com/tessellate-ai/lorebase/internal/store"
)

// Open assembles the full stack from configuration: Ollama embedder
// behind cache and fail-soft wrappers, the collection store, the
// hybrid retriever, and the pipeline on top. Close the returned
// pipeline with Close when done.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	chunker, err := chunk.New(cfg.Chunking)
	if err != nil {
		return nil, err
	}

	ollama, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
		Host:           cfg.Embeddings.Host,
		Model:          cfg.Embeddings.Model,
		Dimensions:     cfg.Embeddings.Dimensions,
		BatchSize:      cfg.Embeddings.BatchSize,
		MaxTextLength:  cfg.Embeddings.MaxTextLength,
		Timeout:        cfg.Embeddings.Timeout(),
		MaxRetries:     cfg.Embeddings.MaxRetries,
		RateLimitDelay: cfg.Embeddings.RateLimitDelay(),
	})
	if err != nil {
		return nil, err
	}

	// Cache below, fail-soft on top: a degraded zero vector must never
	// poison the cache.
	cached := embed.NewCachedEmbedder(ollama, cfg.Embeddings.CacheSize, cfg.Embeddings.MaxTextLength)
	embedder := embed.NewFailSoftEmbedder(cached, logger)

	st, err := store.Open(store.Options{
		DataDir:             cfg.Store.DataDir,
		Collection:          cfg.Store.Collection,
		Metric:              store.Metric(cfg.Store.Metric),
		Dimensions:          cfg.Embeddings.Dimensions,
		SimilarityThreshold: cfg.Store.SimilarityThreshold,
		OverfetchFactor:     cfg.Store.OverfetchFactor,
		MaxResults:          cfg.Store.MaxResults,
		LexicalBackend:      store.LexicalBackend(cfg.Store.LexicalBackend),
		Logger:              logger,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	searcher := search.NewSemanticSearcher(embedder, st)
	retriever := search.NewHybridRetriever(searcher, st, cfg.Search, cfg.Chunking.CharacterNames, logger)

	return New(chunker, embedder, st, retriever, cfg.Pipeline, logger), nil
}

// Close releases the embedder and flushes the store to disk.
func (p *Pipeline) Close() error {
	embErr := p.embedder.Close()
	storeErr := p.store.Close()
	if storeErr != nil {
		return storeErr
	}
	return embErr
}
