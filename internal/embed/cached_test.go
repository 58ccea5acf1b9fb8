package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCached_RepeatQueryHitsCache(t *testing.T) {
	mock := newMockEmbedder(4)
	cached := NewCachedEmbedder(mock, 10, 0)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "宝玉和黛玉的关系")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "宝玉和黛玉的关系")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, mock.calls.Load())

	hits, misses := cached.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestCached_WhitespaceVariantsShareEntry(t *testing.T) {
	mock := newMockEmbedder(4)
	cached := NewCachedEmbedder(mock, 10, 0)

	ctx := context.Background()
	_, err := cached.Embed(ctx, "hello   world")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "hello\nworld")
	require.NoError(t, err)

	assert.EqualValues(t, 1, mock.calls.Load())
}

func TestCached_BatchOnlyEmbedsMisses(t *testing.T) {
	mock := newMockEmbedder(4)
	cached := NewCachedEmbedder(mock, 10, 0)

	ctx := context.Background()
	_, err := cached.Embed(ctx, "already cached")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"already cached", "new one", "another"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// One call for the warm-up, one for the two misses
	assert.EqualValues(t, 2, mock.calls.Load())

	// Fully cached batch makes no inner calls
	_, err = cached.EmbedBatch(ctx, []string{"new one", "another"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, mock.calls.Load())
}

func TestCached_ErrorNotCached(t *testing.T) {
	mock := newMockEmbedder(4)
	mock.fail = true
	cached := NewCachedEmbedder(mock, 10, 0)

	ctx := context.Background()
	_, err := cached.Embed(ctx, "text")
	require.Error(t, err)

	mock.fail = false
	vec, err := cached.Embed(ctx, "text")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestCached_EvictionKeepsRecentEntries(t *testing.T) {
	mock := newMockEmbedder(4)
	cached := NewCachedEmbedder(mock, 2, 0)

	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		_, err := cached.Embed(ctx, text)
		require.NoError(t, err)
	}
	before := mock.calls.Load()

	// "one" was evicted, "three" is still cached
	_, err := cached.Embed(ctx, "three")
	require.NoError(t, err)
	assert.Equal(t, before, mock.calls.Load())

	_, err = cached.Embed(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, before+1, mock.calls.Load())
}
