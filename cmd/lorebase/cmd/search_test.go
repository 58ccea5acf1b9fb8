package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-ai/lorebase/internal/store"
)

func TestParseFilters(t *testing.T) {
	filter, err := parseFilters([]string{"chunk_strategy=paragraph"})
	require.NoError(t, err)
	assert.Equal(t, store.Filter{"chunk_strategy": "paragraph"}, filter)

	filter, err = parseFilters([]string{"has_dialogue=true"})
	require.NoError(t, err)
	assert.Equal(t, store.Filter{"has_dialogue": true}, filter)

	filter, err = parseFilters([]string{"characters=宝玉,黛玉"})
	require.NoError(t, err)
	assert.Equal(t, store.Filter{
		"characters": map[string]any{"$in": []any{"宝玉", "黛玉"}},
	}, filter)

	filter, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, filter)

	_, err = parseFilters([]string{"no-equals-sign"})
	require.Error(t, err)

	_, err = parseFilters([]string{"=value"})
	require.Error(t, err)
}

func TestParseScalar(t *testing.T) {
	assert.Equal(t, true, parseScalar("true"))
	assert.Equal(t, false, parseScalar("false"))
	assert.Equal(t, float64(3), parseScalar("3"))
	assert.Equal(t, 0.5, parseScalar("0.5"))
	assert.Equal(t, "ch001", parseScalar("ch001"))
	assert.Equal(t, "宝玉", parseScalar("宝玉"))
}
