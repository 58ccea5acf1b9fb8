package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tessellate-ai/lorebase/internal/embed"
	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// Store defaults.
const (
	DefaultCollection      = "passages"
	DefaultOverfetchFactor = 3
	DefaultMaxResults      = 20
	DefaultThreshold       = 0.7
)

// Options configures a collection.
type Options struct {
	// DataDir is the parent directory for collection files. Empty
	// means fully in-memory (testing).
	DataDir string

	// Collection names the collection; each collection is independent
	// and lives in its own subdirectory.
	Collection string

	// Metric is the distance metric (default: cosine).
	Metric Metric

	// Dimensions is the embedding dimension. Required.
	Dimensions int

	// SimilarityThreshold is the minimum normalized similarity for
	// semantic results. 0 disables the floor.
	SimilarityThreshold float64

	// OverfetchFactor scales the candidate fetch before threshold and
	// metadata filtering (default: 3).
	OverfetchFactor int

	// MaxResults is the result count used when a query passes k <= 0.
	MaxResults int

	// LexicalBackend selects the keyword index (default: sqlite).
	LexicalBackend LexicalBackend

	// StopWords for the lexical index (default: DefaultStopWords).
	StopWords []string

	// Logger for structured logging (default: slog.Default()).
	Logger *slog.Logger
}

// Store is one collection: SQLite records, an HNSW vector index, and a
// lexical index, kept in lockstep by ID. Each part locks itself, but
// lockstep needs more: writeMu serializes mutations so concurrent
// upserts of the same ID cannot interleave across the three parts.
type Store struct {
	opts    Options
	dir     string
	writeMu sync.Mutex
	records *RecordStore
	vectors *VectorIndex
	lexical LexicalIndex
	logger  *slog.Logger
}

// Open opens or creates the collection described by opts. An existing
// vector snapshot is loaded and must agree with the configured metric
// and dimension.
func Open(opts Options) (*Store, error) {
	if opts.Dimensions <= 0 {
		return nil, lberrors.ValidationError(
			fmt.Sprintf("dimensions must be positive, got %d", opts.Dimensions), nil)
	}
	metric, err := ParseMetric(string(opts.Metric))
	if err != nil {
		return nil, lberrors.ValidationError(err.Error(), nil)
	}
	opts.Metric = metric

	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.OverfetchFactor < 1 {
		opts.OverfetchFactor = DefaultOverfetchFactor
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.StopWords == nil {
		opts.StopWords = DefaultStopWords
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var dir, recordsPath string
	if opts.DataDir != "" {
		dir = filepath.Join(opts.DataDir, opts.Collection)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, lberrors.StorageError("create collection directory", err)
		}
		recordsPath = filepath.Join(dir, "records.db")
	}

	records, err := NewRecordStore(recordsPath)
	if err != nil {
		return nil, err
	}

	vectors, err := NewVectorIndex(opts.Metric, opts.Dimensions)
	if err != nil {
		_ = records.Close()
		return nil, err
	}
	if dir != "" {
		vectorPath := filepath.Join(dir, "vectors.hnsw")
		if _, statErr := os.Stat(vectorPath); statErr == nil {
			if err := vectors.Load(vectorPath); err != nil {
				_ = records.Close()
				return nil, err
			}
		}
	}

	lexical, err := NewLexicalIndex(opts.LexicalBackend, dir, opts.StopWords)
	if err != nil {
		_ = records.Close()
		_ = vectors.Close()
		return nil, err
	}

	s := &Store{
		opts:    opts,
		dir:     dir,
		records: records,
		vectors: vectors,
		lexical: lexical,
		logger:  opts.Logger.With(slog.String("collection", opts.Collection)),
	}
	return s, nil
}

// Add upserts records into all three parts. The whole batch is
// validated before any write, so a bad record rejects the batch
// without touching storage. Zero vectors are stored with the record
// but kept out of the vector index; those chunks stay reachable by
// keyword only.
func (s *Store) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID == "" {
			return lberrors.ValidationError("record has empty ID", nil)
		}
		if _, dup := seen[r.ID]; dup {
			return lberrors.ValidationError("duplicate ID in batch: "+r.ID, nil)
		}
		seen[r.ID] = struct{}{}
		if len(r.Vector) != 0 && len(r.Vector) != s.opts.Dimensions {
			return lberrors.DimensionError(s.opts.Dimensions, len(r.Vector))
		}
		if _, err := json.Marshal(orEmptyMetadata(r.Metadata)); err != nil {
			return lberrors.ValidationError("metadata for "+r.ID+" is not JSON-serializable", err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.records.Upsert(ctx, records); err != nil {
		return err
	}

	var ids []string
	var vecs [][]float32
	var zeroed []string
	for _, r := range records {
		if len(r.Vector) == 0 || embed.IsZeroVector(r.Vector) {
			zeroed = append(zeroed, r.ID)
			continue
		}
		ids = append(ids, r.ID)
		vecs = append(vecs, r.Vector)
	}
	// Replaced records may have had a live vector before
	if len(zeroed) > 0 {
		if err := s.vectors.Delete(ctx, zeroed); err != nil {
			return err
		}
	}
	if err := s.vectors.Add(ctx, ids, vecs); err != nil {
		return err
	}

	docs := make([]LexicalDoc, len(records))
	for i, r := range records {
		docs[i] = LexicalDoc{ID: r.ID, Content: r.Document}
	}
	if err := s.lexical.Index(ctx, docs); err != nil {
		return err
	}

	s.logger.Debug("records_added",
		slog.Int("count", len(records)),
		slog.Int("zero_vectors", len(zeroed)))
	return nil
}

// SearchSimilar returns up to k records nearest to vector, filtered by
// metadata and the similarity threshold, best first. It over-fetches
// k times OverfetchFactor candidates so filtering does not starve the
// result set.
func (s *Store) SearchSimilar(ctx context.Context, vector []float32, k int, filter Filter) ([]SearchResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.opts.MaxResults
	}

	raw, err := s.vectors.Search(ctx, vector, k*s.opts.OverfetchFactor)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []SearchResult{}, nil
	}

	ids := make([]string, len(raw))
	for i, r := range raw {
		ids[i] = r.ID
	}
	recs, err := s.records.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		rec, ok := recs[r.ID]
		if !ok {
			// Vector index ahead of record store; skip the orphan
			continue
		}
		if !filter.Matches(rec.Metadata) {
			continue
		}
		sim := s.opts.Metric.Similarity(float64(r.Distance))
		if sim < s.opts.SimilarityThreshold {
			continue
		}
		results = append(results, SearchResult{
			ID:       rec.ID,
			Document: rec.Document,
			Metadata: rec.Metadata,
			Score:    sim,
			Distance: float64(r.Distance),
		})
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SearchByText returns up to k keyword matches, best first. Raw BM25
// scores are rescaled per query by the best raw score, so text scores
// land in (0,1] and compose with semantic similarities.
func (s *Store) SearchByText(ctx context.Context, query string, k int, filter Filter) ([]SearchResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.opts.MaxResults
	}

	raw, err := s.lexical.Search(ctx, query, k*s.opts.OverfetchFactor)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []SearchResult{}, nil
	}

	maxScore := raw[0].Score
	for _, r := range raw {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	ids := make([]string, len(raw))
	for i, r := range raw {
		ids[i] = r.ID
	}
	recs, err := s.records.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		rec, ok := recs[r.ID]
		if !ok {
			continue
		}
		if !filter.Matches(rec.Metadata) {
			continue
		}
		score := 1.0
		if maxScore > 0 {
			score = clamp01(r.Score / maxScore)
		}
		results = append(results, SearchResult{
			ID:       rec.ID,
			Document: rec.Document,
			Metadata: rec.Metadata,
			Score:    score,
		})
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Get returns one record by ID.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	return s.records.Get(ctx, id)
}

// Delete removes records by ID from all three parts, returning how
// many existed.
func (s *Store) Delete(ctx context.Context, ids ...string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deleted, err := s.records.Delete(ctx, ids)
	if err != nil {
		return deleted, err
	}
	if err := s.vectors.Delete(ctx, ids); err != nil {
		return deleted, err
	}
	if err := s.lexical.Delete(ctx, ids); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.records.Count(ctx)
}

// Reset empties the collection but keeps it usable.
func (s *Store) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.records.Reset(ctx); err != nil {
		return err
	}
	s.vectors.Reset()
	if err := s.lexical.Reset(ctx); err != nil {
		return err
	}
	s.logger.Info("collection_reset")
	return nil
}

// ExportJSON writes the collection snapshot to w, records ordered by
// ID. Stored vectors are included only when includeVectors is set;
// records indexed without one contribute a null entry.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer, includeVectors bool) error {
	exp := Export{
		CollectionName: s.opts.Collection,
		Config: ExportConfig{
			Metric:     string(s.opts.Metric),
			Dimensions: s.opts.Dimensions,
		},
	}
	err := s.records.ForEach(ctx, func(r Record) error {
		exp.Data.IDs = append(exp.Data.IDs, r.ID)
		exp.Data.Documents = append(exp.Data.Documents, r.Document)
		exp.Data.Metadatas = append(exp.Data.Metadatas, r.Metadata)
		if includeVectors {
			exp.Data.Embeddings = append(exp.Data.Embeddings, r.Vector)
		}
		return nil
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exp); err != nil {
		return lberrors.New(lberrors.ErrCodeExportFailed, "encode export", err)
	}
	return nil
}

// Stats describes the collection.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	count, err := s.records.Count(ctx)
	if err != nil {
		return Stats{}, err
	}

	backend := s.opts.LexicalBackend
	if backend == "" {
		backend = LexicalBackendSQLite
	}

	st := Stats{
		Collection:     s.opts.Collection,
		Count:          count,
		Metric:         string(s.opts.Metric),
		Dimensions:     s.opts.Dimensions,
		LexicalBackend: string(backend),
	}
	if s.dir != "" {
		st.DiskBytes = dirSize(s.dir)
	}

	characters := map[string]int{}
	err = s.records.ForEach(ctx, func(r Record) error {
		if v, ok := r.Metadata["has_dialogue"].(bool); ok && v {
			st.DialogueChunks++
		}
		if v, ok := r.Metadata["is_section_header"].(bool); ok && v {
			st.SectionChunks++
		}
		if names, ok := r.Metadata["characters"].([]any); ok {
			for _, n := range names {
				if name, ok := n.(string); ok {
					characters[name]++
				}
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	st.TopCharacters = topCharacters(characters, 10)
	return st, nil
}

// topCharacters returns the n most-mentioned names, ties broken by
// name for deterministic output.
func topCharacters(counts map[string]int, n int) []NameCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NameCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Save persists the vector index snapshot. Records and the lexical
// index are already durable in SQLite.
func (s *Store) Save() error {
	if s.dir == "" {
		return nil
	}
	return s.vectors.Save(filepath.Join(s.dir, "vectors.hnsw"))
}

// Close saves the vector snapshot and closes all parts.
func (s *Store) Close() error {
	saveErr := s.Save()
	if err := s.vectors.Close(); err != nil && saveErr == nil {
		saveErr = err
	}
	if err := s.lexical.Close(); err != nil && saveErr == nil {
		saveErr = err
	}
	if err := s.records.Close(); err != nil && saveErr == nil {
		saveErr = err
	}
	return saveErr
}

// sortResults orders by score descending, then ID ascending for a
// deterministic order on ties.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
