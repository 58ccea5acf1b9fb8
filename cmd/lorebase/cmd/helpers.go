package cmd

import (
	"log/slog"

	"github.com/tessellate-ai/lorebase/internal/store"
)

// openStore opens the configured collection without an embedding
// provider. Maintenance commands (stats, export, reset) work offline.
func openStore() (*store.Store, error) {
	return store.Open(store.Options{
		DataDir:             cfg.Store.DataDir,
		Collection:          cfg.Store.Collection,
		Metric:              store.Metric(cfg.Store.Metric),
		Dimensions:          cfg.Embeddings.Dimensions,
		SimilarityThreshold: cfg.Store.SimilarityThreshold,
		OverfetchFactor:     cfg.Store.OverfetchFactor,
		MaxResults:          cfg.Store.MaxResults,
		LexicalBackend:      store.LexicalBackend(cfg.Store.LexicalBackend),
		Logger:              slog.Default(),
	})
}
