package search

import (
	"context"
	"fmt"

	"github.com/tessellate-ai/lorebase/internal/embed"
	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
	"github.com/tessellate-ai/lorebase/internal/store"
)

// SemanticSearcher is pure-vector retrieval with a name: embed the
// query, search the store. It holds no state of its own.
type SemanticSearcher struct {
	embedder embed.Embedder
	store    *store.Store
}

// NewSemanticSearcher composes an embedder and a store.
func NewSemanticSearcher(embedder embed.Embedder, st *store.Store) *SemanticSearcher {
	return &SemanticSearcher{embedder: embedder, store: st}
}

// Search embeds query and returns the k most similar chunks above the
// store's similarity threshold.
func (s *SemanticSearcher) Search(ctx context.Context, query string, k int, filter store.Filter) ([]store.SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// A zero vector means the provider degraded the query embedding.
	// It carries no direction to search along, so surface it as a
	// provider failure instead of returning an empty (and misleading)
	// result set.
	if embed.IsZeroVector(vec) {
		return nil, lberrors.ProviderError("query embedding degraded to zero vector", nil)
	}

	return s.store.SearchSimilar(ctx, vec, k, filter)
}
