// Package store persists chunk records and serves both similarity and
// keyword retrieval over them. A collection is three co-located parts:
// a SQLite record store (documents plus metadata), an HNSW vector
// index, and a pluggable lexical index (SQLite FTS5 or Bleve).
package store

import (
	"context"
)

// Record is one stored chunk: document text, its metadata, and its
// embedding vector.
type Record struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata"`
	Vector   []float32      `json:"-"`
}

// SearchResult is one retrieval hit. Score is a normalized similarity
// in [0,1] regardless of the search mode; Distance carries the raw
// metric distance for semantic hits and is 0 for lexical hits.
type SearchResult struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
	Distance float64        `json:"distance,omitempty"`
}

// LexicalDoc is a document to index for keyword search.
type LexicalDoc struct {
	ID      string
	Content string
}

// LexicalResult is a raw keyword hit. Score is backend-native BM25,
// unnormalized; callers rescale per query.
type LexicalResult struct {
	ID    string
	Score float64
}

// LexicalIndex provides BM25-style keyword search.
type LexicalIndex interface {
	// Index adds documents. Existing IDs are replaced.
	Index(ctx context.Context, docs []LexicalDoc) error

	// Search returns documents matching query, best first.
	Search(ctx context.Context, query string, limit int) ([]LexicalResult, error)

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Reset removes all documents.
	Reset(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// VectorResult is a raw nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float32
}

// NameCount pairs a name with how many chunks mention it.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats describes a collection, including the corpus-level counts
// derived from chunk metadata.
type Stats struct {
	Collection     string      `json:"collection"`
	Count          int         `json:"count"`
	Metric         string      `json:"metric"`
	Dimensions     int         `json:"dimensions"`
	LexicalBackend string      `json:"lexical_backend"`
	DiskBytes      int64       `json:"disk_bytes"`
	DialogueChunks int         `json:"dialogue_chunks"`
	SectionChunks  int         `json:"section_chunks"`
	TopCharacters  []NameCount `json:"top_characters,omitempty"`
}

// Export is the portable JSON snapshot of a collection. Embeddings are
// optional and off by default; an import without them re-embeds with
// the current model.
type Export struct {
	CollectionName string       `json:"collection_name"`
	Config         ExportConfig `json:"config"`
	Data           ExportData   `json:"data"`
}

// ExportConfig records how the exported collection was built.
type ExportConfig struct {
	Metric     string `json:"metric"`
	Dimensions int    `json:"dimensions"`
}

// ExportData holds the parallel record arrays, ordered by ID.
type ExportData struct {
	IDs        []string         `json:"ids"`
	Documents  []string         `json:"documents"`
	Metadatas  []map[string]any `json:"metadatas"`
	Embeddings [][]float32      `json:"embeddings,omitempty"`
}
