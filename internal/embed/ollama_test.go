package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// fakeOllama serves /api/tags and /api/embed with canned vectors.
func fakeOllama(t *testing.T, dims int, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]any{{"name": "embeddinggemma:latest"}},
			})
		case "/api/embed":
			if requests != nil {
				requests.Add(1)
			}
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			inputs, ok := req.Input.([]any)
			require.True(t, ok, "batch input expected")

			embeddings := make([][]float64, len(inputs))
			for i := range inputs {
				vec := make([]float64, dims)
				vec[0] = float64(i + 1)
				embeddings[i] = vec
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model":      req.Model,
				"embeddings": embeddings,
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestOllama(t *testing.T, host string, mutate func(*OllamaConfig)) *OllamaEmbedder {
	t.Helper()
	cfg := DefaultOllamaConfig()
	cfg.Host = host
	cfg.Dimensions = 4
	cfg.RateLimitDelay = 0
	cfg.MaxRetries = 0
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOllama_HealthCheckFindsModelByBaseName(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	e := newTestOllama(t, srv.URL, nil)
	assert.True(t, e.Available(context.Background()))
}

func TestOllama_HealthCheckRejectsMissingModel(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nonexistent-model"
	_, err := NewOllamaEmbedder(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, lberrors.ErrCodeProviderUnavailable, lberrors.GetCode(err))
}

func TestOllama_EmbedBatchSplitsIntoProviderBatches(t *testing.T) {
	var requests atomic.Int64
	srv := fakeOllama(t, 4, &requests)
	defer srv.Close()

	e := newTestOllama(t, srv.URL, func(cfg *OllamaConfig) {
		cfg.BatchSize = 2
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	// 5 inputs at batch size 2 means 3 provider calls
	assert.EqualValues(t, 3, requests.Load())
	for _, v := range vecs {
		assert.Len(t, v, 4)
	}
}

func TestOllama_EmptyInputSkipsProvider(t *testing.T) {
	var requests atomic.Int64
	srv := fakeOllama(t, 4, &requests)
	defer srv.Close()

	e := newTestOllama(t, srv.URL, nil)

	vecs, err := e.EmbedBatch(context.Background(), []string{"", "  \n\t ", "real text"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.True(t, IsZeroVector(vecs[0]))
	assert.True(t, IsZeroVector(vecs[1]))
	assert.False(t, IsZeroVector(vecs[2]))
	assert.EqualValues(t, 1, requests.Load())
}

func TestOllama_DimensionMismatchRejected(t *testing.T) {
	srv := fakeOllama(t, 8, nil)
	defer srv.Close()

	// Configured for 4 dimensions, server returns 8
	e := newTestOllama(t, srv.URL, nil)

	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, lberrors.ErrCodeDimensionMismatch, lberrors.GetCode(err))
}

func TestOllama_ServerErrorSurfacesAsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.SkipHealthCheck = true
	cfg.MaxRetries = 0
	cfg.RateLimitDelay = 0
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, lberrors.ErrCodeProviderUnavailable, lberrors.GetCode(err))
}

func TestOllama_ClosedEmbedderRefusesCalls(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	e := newTestOllama(t, srv.URL, nil)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeText("  a\n\tb   c \n", 0))
	assert.Equal(t, "", NormalizeText("   \n ", 100))
	// Truncation is rune-aware
	assert.Equal(t, "红楼", NormalizeText("红楼梦", 2))
}
