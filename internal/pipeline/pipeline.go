// Package pipeline orchestrates bulk ingestion (chunk, embed, store)
// and exposes the unified query facade over the retrieval stack.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tessellate-ai/lorebase/internal/chunk"
	"github.com/tessellate-ai/lorebase/internal/config"
	"github.com/tessellate-ai/lorebase/internal/embed"
	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
	"github.com/tessellate-ai/lorebase/internal/search"
	"github.com/tessellate-ai/lorebase/internal/store"
)

// Document is one unit of ingestion input.
type Document struct {
	// SourceID identifies the document; chunk IDs derive from it.
	SourceID string

	// Text is the full UTF-8 document text.
	Text string
}

// DocumentError records one document's ingestion failure.
type DocumentError struct {
	SourceID string `json:"source_id"`
	Err      string `json:"error"`
}

// Stats summarizes one ingestion run. Failed documents are listed, not
// fatal: one bad document never aborts the batch.
type Stats struct {
	DocumentsProcessed int             `json:"documents_processed"`
	DocumentsFailed    int             `json:"documents_failed"`
	ChunksCreated      int             `json:"chunks_created"`
	Errors             []DocumentError `json:"errors,omitempty"`
}

// Pipeline wires the chunker, embedder, store, and retriever together.
type Pipeline struct {
	chunker   *chunk.Chunker
	embedder  embed.Embedder
	store     *store.Store
	retriever *search.HybridRetriever
	cfg       config.PipelineConfig
	logger    *slog.Logger
}

// New assembles a pipeline from already-constructed components.
func New(chunker *chunk.Chunker, embedder embed.Embedder, st *store.Store, retriever *search.HybridRetriever, cfg config.PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.SummaryRunes <= 0 {
		cfg.SummaryRunes = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:   chunker,
		embedder:  embedder,
		store:     st,
		retriever: retriever,
		cfg:       cfg,
		logger:    logger,
	}
}

// Store exposes the underlying collection for maintenance operations.
func (p *Pipeline) Store() *store.Store { return p.store }

// Retriever exposes the retrieval layer for direct strategy control.
func (p *Pipeline) Retriever() *search.HybridRetriever { return p.retriever }

// ProcessDocuments ingests docs with a bounded worker pool. Each
// document runs chunk, embed, store independently; a failure is
// recorded in the returned stats and the batch continues. Context
// cancellation stops scheduling new documents and reports what
// completed.
func (p *Pipeline) ProcessDocuments(ctx context.Context, docs []Document) (*Stats, error) {
	stats := &Stats{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				mu.Lock()
				stats.DocumentsFailed++
				stats.Errors = append(stats.Errors, DocumentError{
					SourceID: doc.SourceID, Err: err.Error(),
				})
				mu.Unlock()
				return nil
			}

			created, err := p.processOne(gctx, doc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.DocumentsFailed++
				stats.Errors = append(stats.Errors, DocumentError{
					SourceID: doc.SourceID, Err: err.Error(),
				})
				p.logger.Error("document ingestion failed",
					"source_id", doc.SourceID, "error", err)
				return nil
			}
			stats.DocumentsProcessed++
			stats.ChunksCreated += created
			return nil
		})
	}
	_ = g.Wait()

	// Deterministic error order for reporting
	sort.Slice(stats.Errors, func(i, j int) bool {
		return stats.Errors[i].SourceID < stats.Errors[j].SourceID
	})

	p.logger.Info("ingestion batch complete",
		"documents", stats.DocumentsProcessed,
		"failed", stats.DocumentsFailed,
		"chunks", stats.ChunksCreated)
	return stats, nil
}

// processOne runs the chunk, embed, store sequence for one document.
func (p *Pipeline) processOne(ctx context.Context, doc Document) (int, error) {
	if doc.SourceID == "" {
		return 0, lberrors.ValidationError("document has no source id", nil)
	}

	chunks, err := p.chunker.Chunk(doc.Text, doc.SourceID)
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		p.logger.Debug("document produced no chunks", "source_id", doc.SourceID)
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}

	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		md := make(map[string]any, len(c.Metadata)+3)
		for k, v := range c.Metadata {
			md[k] = v
		}
		md["source_id"] = c.SourceID
		md["start_offset"] = c.StartOffset
		md["end_offset"] = c.EndOffset
		records[i] = store.Record{
			ID:       c.ChunkID,
			Document: c.Text,
			Metadata: md,
			Vector:   vectors[i],
		}
	}

	if err := p.store.Add(ctx, records); err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}
	return len(records), nil
}

// ProcessTextFiles ingests every file in InputDir matching FileGlob.
// The source id is the file name without its extension.
func (p *Pipeline) ProcessTextFiles(ctx context.Context) (*Stats, error) {
	pattern := filepath.Join(p.cfg.InputDir, p.cfg.FileGlob)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, lberrors.ValidationError(
			fmt.Sprintf("bad file glob %q", p.cfg.FileGlob), err)
	}
	if len(paths) == 0 {
		return nil, lberrors.ValidationError(
			fmt.Sprintf("no files match %s", pattern), nil)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	stats := &Stats{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			stats.DocumentsFailed++
			stats.Errors = append(stats.Errors, DocumentError{
				SourceID: sourceIDFromPath(path), Err: err.Error(),
			})
			continue
		}
		docs = append(docs, Document{
			SourceID: sourceIDFromPath(path),
			Text:     string(data),
		})
	}

	processed, err := p.ProcessDocuments(ctx, docs)
	if err != nil {
		return nil, err
	}
	processed.DocumentsFailed += stats.DocumentsFailed
	processed.Errors = append(stats.Errors, processed.Errors...)
	return processed, nil
}

// BuildKnowledgeBase is the one-shot ingestion entry point. With reset
// set, the collection is cleared before ingesting.
func (p *Pipeline) BuildKnowledgeBase(ctx context.Context, reset bool) (*Stats, error) {
	if reset {
		if err := p.store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset collection: %w", err)
		}
		p.logger.Info("collection reset before rebuild")
	}
	return p.ProcessTextFiles(ctx)
}

func sourceIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
