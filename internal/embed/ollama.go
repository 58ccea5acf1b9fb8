package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// Ollama API constants.
const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "embeddinggemma"

	// ollamaPoolSize for the HTTP connection pool.
	ollamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model to use.
	Model string

	// Dimensions is the expected embedding dimension. Responses with a
	// different dimension are rejected. 0 means accept the first
	// response's dimension.
	Dimensions int

	// BatchSize for batch embedding requests (default: 32).
	BatchSize int

	// MaxTextLength is the rune limit applied before embedding.
	MaxTextLength int

	// Timeout for API requests (default: 60s).
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3).
	MaxRetries int

	// RateLimitDelay is the fixed pause between provider calls.
	// 0 disables pacing.
	RateLimitDelay time.Duration

	// SkipHealthCheck skips the initial availability check (for testing).
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		Dimensions:     DefaultDimensions,
		BatchSize:      DefaultBatchSize,
		MaxTextLength:  DefaultMaxTextLength,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		RateLimitDelay: DefaultRateLimitDelay,
	}
}

// embedRequest is the Ollama /api/embed request.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string for batch
}

// embedResponse is the Ollama /api/embed response.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// modelListResponse is the Ollama /api/tags response.
type modelListResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder generates embeddings through Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig

	mu       sync.Mutex
	dims     int
	lastCall time.Time
	closed   bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates a new Ollama embedder. Unless
// SkipHealthCheck is set, it verifies the host is reachable and the
// model is installed.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = DefaultMaxTextLength
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	// No client-level timeout: per-request contexts carry the deadline
	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := e.checkModel(checkCtx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}

	return e, nil
}

// checkModel verifies the configured model is installed on the host.
func (e *OllamaEmbedder) checkModel(ctx context.Context) error {
	url := e.config.Host + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return lberrors.ProviderError("create model list request", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return lberrors.ProviderError("connect to embedding host", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return lberrors.ProviderError(
			fmt.Sprintf("model list returned status %d: %s", resp.StatusCode, body), nil)
	}

	var list modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return lberrors.ProviderError("decode model list", err)
	}

	want := strings.ToLower(e.config.Model)
	for _, m := range list.Models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == want {
			return nil
		}
	}
	return lberrors.ProviderError(
		fmt.Sprintf("model %q not installed on %s", e.config.Model, e.config.Host), nil)
}

// Embed generates the embedding for a single text. Empty or
// whitespace-only input yields a zero vector without a provider call.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts, splitting the work into
// provider batches of at most BatchSize inputs.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.isClosed() {
		return nil, lberrors.ProviderError("embedder is closed", nil)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	// Normalize up front; empty inputs never reach the provider
	normalized := make([]string, len(texts))
	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		normalized[i] = NormalizeText(t, e.config.MaxTextLength)
		if normalized[i] == "" {
			results[i] = ZeroVector(e.Dimensions())
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		inputs := make([]string, len(batch))
		for j, idx := range batch {
			inputs[j] = normalized[idx]
		}

		vecs, err := e.embedWithRetry(ctx, inputs)
		if err != nil {
			return nil, err
		}
		for j, idx := range batch {
			results[idx] = vecs[j]
		}
	}

	return results, nil
}

// embedWithRetry calls the provider with bounded exponential backoff.
// Only retryable failures (timeouts, connection errors) are retried.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, inputs []string) ([][]float32, error) {
	var vecs [][]float32
	err := WithRetry(ctx, RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}, func() error {
		var callErr error
		vecs, callErr = e.callEmbed(ctx, inputs)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// callEmbed performs one /api/embed request.
func (e *OllamaEmbedder) callEmbed(ctx context.Context, inputs []string) ([][]float32, error) {
	e.pace()

	payload, err := json.Marshal(embedRequest{Model: e.config.Model, Input: inputs})
	if err != nil {
		return nil, lberrors.ProviderError("encode embed request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.Host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, lberrors.ProviderError("create embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, lberrors.New(lberrors.ErrCodeProviderTimeout,
				fmt.Sprintf("embed request timed out after %s", e.config.Timeout), err)
		}
		return nil, lberrors.ProviderError("embed request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, lberrors.ProviderError(
			fmt.Sprintf("embed returned status %d: %s", resp.StatusCode, body), nil)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, lberrors.ProviderError("decode embed response", err)
	}
	if len(result.Embeddings) != len(inputs) {
		return nil, lberrors.ProviderError(
			fmt.Sprintf("embed returned %d vectors for %d inputs",
				len(result.Embeddings), len(inputs)), nil)
	}

	vecs := make([][]float32, len(result.Embeddings))
	for i, raw := range result.Embeddings {
		if err := e.checkDimensions(len(raw)); err != nil {
			return nil, err
		}
		vec := make([]float32, len(raw))
		for j, x := range raw {
			vec[j] = float32(x)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// checkDimensions validates a response vector's dimension, locking in
// the first observed dimension when none was configured.
func (e *OllamaEmbedder) checkDimensions(got int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dims == 0 {
		e.dims = got
		return nil
	}
	if got != e.dims {
		return lberrors.DimensionError(e.dims, got)
	}
	return nil
}

// pace enforces the fixed inter-call delay.
func (e *OllamaEmbedder) pace() {
	if e.config.RateLimitDelay <= 0 {
		return
	}

	e.mu.Lock()
	wait := e.config.RateLimitDelay - time.Since(e.lastCall)
	e.lastCall = time.Now().Add(wait)
	e.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims == 0 {
		return DefaultDimensions
	}
	return e.dims
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the host is reachable and the model installed.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.isClosed() {
		return false
	}
	return e.checkModel(ctx) == nil
}

// Close releases the connection pool. Further calls fail.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

func (e *OllamaEmbedder) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
