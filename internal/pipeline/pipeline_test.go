package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-ai/lorebase/internal/chunk"
	"github.com/tessellate-ai/lorebase/internal/config"
	"github.com/tessellate-ai/lorebase/internal/search"
	"github.com/tessellate-ai/lorebase/internal/store"
)

// hashEmbedder derives a deterministic unit vector from text length,
// keeping semantic results stable without a provider.
type hashEmbedder struct {
	dims int
	fail bool
}

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if h.fail {
		return nil, errors.New("provider down")
	}
	v := make([]float32, h.dims)
	v[len(text)%h.dims] = 1
	return v, nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *hashEmbedder) Dimensions() int                { return h.dims }
func (h *hashEmbedder) ModelName() string              { return "hash" }
func (h *hashEmbedder) Available(context.Context) bool { return !h.fail }
func (h *hashEmbedder) Close() error                   { return nil }

func newTestPipeline(t *testing.T, mutate func(*config.Config)) *Pipeline {
	t.Helper()

	cfg := config.Default()
	cfg.Chunking.Strategy = "paragraph"
	cfg.Chunking.CharacterNames = []string{"宝玉", "黛玉"}
	cfg.Pipeline.Workers = 2
	cfg.Pipeline.SummaryRunes = 10
	if mutate != nil {
		mutate(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	chunker, err := chunk.New(cfg.Chunking)
	require.NoError(t, err)

	emb := &hashEmbedder{dims: 3}
	st, err := store.Open(store.Options{
		Collection: "pipeline-test",
		Metric:     store.MetricCosine,
		Dimensions: 3,
		Logger:     logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	searcher := search.NewSemanticSearcher(emb, st)
	retriever := search.NewHybridRetriever(searcher, st, cfg.Search, cfg.Chunking.CharacterNames, logger)

	return New(chunker, emb, st, retriever, cfg.Pipeline, logger)
}

func TestPipeline_ProcessDocuments(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	stats, err := p.ProcessDocuments(ctx, []Document{
		{SourceID: "ch001", Text: "黛玉葬花，泪洒桃花。\n\n宝玉寻她不见。"},
		{SourceID: "ch002", Text: "大观园中桃花盛开，众人结社吟诗。"},
		{SourceID: "ch003", Text: "贾母设宴，满堂笑语。"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.DocumentsProcessed)
	assert.Equal(t, 0, stats.DocumentsFailed)
	assert.GreaterOrEqual(t, stats.ChunksCreated, 4)
	assert.Empty(t, stats.Errors)

	count, err := p.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.ChunksCreated, count)

	// Stored chunks carry their provenance
	results, err := p.Store().SearchByText(ctx, "葬花", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "ch001", results[0].Metadata["source_id"])
}

func TestPipeline_FailureIsolation(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	stats, err := p.ProcessDocuments(ctx, []Document{
		{SourceID: "good", Text: "完整的段落文本。"},
		{SourceID: "", Text: "no source id"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.DocumentsProcessed)
	assert.Equal(t, 1, stats.DocumentsFailed)
	require.Len(t, stats.Errors, 1)

	// The good document still landed
	count, err := p.Store().Count(ctx)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestPipeline_ProcessTextFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "ch001.txt"), []byte("黛玉葬花，泪洒桃花。"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "ch002.txt"), []byte("宝玉挨打，贾政大怒。"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))

	p := newTestPipeline(t, func(cfg *config.Config) {
		cfg.Pipeline.InputDir = dir
		cfg.Pipeline.FileGlob = "*.txt"
	})

	stats, err := p.ProcessTextFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocumentsProcessed)

	// File stem becomes the source id
	results, err := p.Store().SearchByText(context.Background(), "葬花", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "ch001", results[0].Metadata["source_id"])
}

func TestPipeline_ProcessTextFilesNoMatches(t *testing.T) {
	p := newTestPipeline(t, func(cfg *config.Config) {
		cfg.Pipeline.InputDir = t.TempDir()
		cfg.Pipeline.FileGlob = "*.txt"
	})

	_, err := p.ProcessTextFiles(context.Background())
	require.Error(t, err)
}

func TestPipeline_BuildKnowledgeBaseReset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "ch001.txt"), []byte("新的章节内容。"), 0o644))

	p := newTestPipeline(t, func(cfg *config.Config) {
		cfg.Pipeline.InputDir = dir
		cfg.Pipeline.FileGlob = "*.txt"
	})
	ctx := context.Background()

	// Pre-existing records vanish on a reset rebuild
	require.NoError(t, p.Store().Add(ctx, []store.Record{
		{ID: "stale", Document: "旧数据", Vector: []float32{1, 0, 0}},
	}))

	stats, err := p.BuildKnowledgeBase(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentsProcessed)

	_, err = p.Store().Get(ctx, "stale")
	require.Error(t, err)
}

func TestPipeline_SearchFacadeAttachesSummaries(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	_, err := p.ProcessDocuments(ctx, []Document{
		{SourceID: "ch001", Text: "黛玉葬花，泪洒桃花，花谢花飞飞满天，红消香断有谁怜。"},
	})
	require.NoError(t, err)

	resp, err := p.Search(ctx, "葬花", search.Options{K: 5, Strategy: search.StrategyText})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	first := resp.Results[0]
	assert.Equal(t, []rune(first.Document)[:10], []rune(first.Summary)[:10])
	assert.Contains(t, first.Summary, "...")
	assert.NotEmpty(t, first.Document)
}

func TestPipeline_SearchByCharacterFacade(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	_, err := p.ProcessDocuments(ctx, []Document{
		{SourceID: "ch001", Text: "黛玉葬花。"},
		{SourceID: "ch002", Text: "贾母设宴。"},
	})
	require.NoError(t, err)

	resp, err := p.SearchByCharacter(ctx, "黛玉", "", search.Options{K: 5})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.Contains(t, r.Document, "黛玉")
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "short", summarize("short", 10))
	assert.Equal(t, "黛玉葬花，泪洒桃花，"+"...", summarize("黛玉葬花，泪洒桃花，花谢花飞", 10))
	assert.Equal(t, "", summarize("", 10))
}
