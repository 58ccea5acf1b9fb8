package embed

import (
	"context"
	"sync/atomic"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// mockEmbedder is a deterministic in-process embedder for tests.
// Vectors encode the text length so assertions can tell inputs apart.
type mockEmbedder struct {
	dims  int
	model string
	fail  bool

	calls atomic.Int64
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims, model: "mock-model"}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.fail {
		return nil, lberrors.ProviderError("mock provider down", nil)
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, m.dims)
		vec[0] = float32(len([]rune(t)))
		vecs[i] = vec
	}
	return vecs, nil
}

func (m *mockEmbedder) Dimensions() int                    { return m.dims }
func (m *mockEmbedder) ModelName() string                  { return m.model }
func (m *mockEmbedder) Available(ctx context.Context) bool { return !m.fail }
func (m *mockEmbedder) Close() error                       { return nil }
