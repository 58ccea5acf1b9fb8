package store

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

const proseAnalyzerName = "prose_pretokenized"

// BleveLexicalIndex implements LexicalIndex on Bleve v2. Text is
// pre-tokenized with TokenizeProse and stored space-separated, so the
// index analyzer only needs to split on whitespace and lowercase.
// Bleve holds an exclusive BoltDB lock, so this backend is single
// process; SQLite FTS5 is the default.
type BleveLexicalIndex struct {
	mu        sync.RWMutex
	index     bleve.Index
	path      string
	stopWords map[string]struct{}
	closed    bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

type bleveDoc struct {
	Content string `json:"content"`
}

func proseIndexMapping() (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(proseAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = proseAnalyzerName
	return m, nil
}

// NewBleveLexicalIndex opens or creates a Bleve index at path. An
// empty path creates an in-memory index for testing.
func NewBleveLexicalIndex(path string, stopWords []string) (*BleveLexicalIndex, error) {
	idx := &BleveLexicalIndex{
		path:      path,
		stopWords: BuildStopWordMap(stopWords),
	}
	index, err := openBleve(path)
	if err != nil {
		return nil, err
	}
	idx.index = index
	return idx, nil
}

func openBleve(path string) (bleve.Index, error) {
	m, err := proseIndexMapping()
	if err != nil {
		return nil, lberrors.StorageError("build index mapping", err)
	}

	if path == "" {
		index, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, lberrors.StorageError("create in-memory lexical index", err)
		}
		return index, nil
	}

	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, lberrors.StorageError("open lexical index", err)
	}
	return index, nil
}

// Index adds documents in one batch, replacing existing IDs.
func (b *BleveLexicalIndex) Index(ctx context.Context, docs []LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return lberrors.StorageError("lexical index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		tokens := FilterStopWords(TokenizeProse(doc.Content), b.stopWords)
		if err := batch.Index(doc.ID, bleveDoc{Content: strings.Join(tokens, " ")}); err != nil {
			return lberrors.New(lberrors.ErrCodeWriteFailed, "batch document "+doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return lberrors.New(lberrors.ErrCodeWriteFailed, "commit lexical batch", err)
	}
	return nil
}

// Search returns documents matching query, best first. Query terms
// combine as a disjunction of term queries on the content field.
func (b *BleveLexicalIndex) Search(ctx context.Context, query string, limit int) ([]LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, lberrors.StorageError("lexical index is closed", nil)
	}

	tokens := FilterStopWords(TokenizeProse(query), b.stopWords)
	if len(tokens) == 0 {
		return []LexicalResult{}, nil
	}

	boolQuery := bleve.NewBooleanQuery()
	for _, tok := range tokens {
		tq := bleve.NewTermQuery(tok)
		tq.SetField("content")
		boolQuery.AddShould(tq)
	}

	req := bleve.NewSearchRequestOptions(boolQuery, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, lberrors.StorageError("lexical search", err)
	}

	results := make([]LexicalResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, LexicalResult{ID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Delete removes documents by ID.
func (b *BleveLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return lberrors.StorageError("lexical index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return lberrors.StorageError("delete documents", err)
	}
	return nil
}

// Reset drops the index and recreates it empty.
func (b *BleveLexicalIndex) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return lberrors.StorageError("lexical index is closed", nil)
	}

	if err := b.index.Close(); err != nil {
		return lberrors.StorageError("close lexical index", err)
	}
	if b.path != "" {
		if err := os.RemoveAll(b.path); err != nil {
			return lberrors.StorageError("remove lexical index", err)
		}
	}

	index, err := openBleve(b.path)
	if err != nil {
		return err
	}
	b.index = index
	return nil
}

// Close closes the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
