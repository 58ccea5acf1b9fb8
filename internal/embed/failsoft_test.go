package embed

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestFailSoft_PassesThroughOnSuccess(t *testing.T) {
	mock := newMockEmbedder(4)
	fs := NewFailSoftEmbedder(mock, discardLogger())

	vec, err := fs.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.False(t, IsZeroVector(vec))
	assert.EqualValues(t, 0, fs.Failures())
}

func TestFailSoft_DegradesToZeroVectors(t *testing.T) {
	mock := newMockEmbedder(4)
	mock.fail = true
	fs := NewFailSoftEmbedder(mock, discardLogger())

	vec, err := fs.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, IsZeroVector(vec))
	assert.Len(t, vec, 4)

	vecs, err := fs.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.True(t, IsZeroVector(v))
	}

	assert.EqualValues(t, 4, fs.Failures())
}
