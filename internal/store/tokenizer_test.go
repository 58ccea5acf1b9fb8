package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeProse_Latin(t *testing.T) {
	tokens := TokenizeProse("The Moon rose over Jade Pavilion, chapter 12.")
	assert.Contains(t, tokens, "the")
	assert.Contains(t, tokens, "moon")
	assert.Contains(t, tokens, "pavilion")
	assert.Contains(t, tokens, "12")
	assert.NotContains(t, tokens, ",")
}

func TestTokenizeProse_CJKBigrams(t *testing.T) {
	tokens := TokenizeProse("林黛玉")
	assert.Equal(t, []string{"林黛", "黛玉"}, tokens)
}

func TestTokenizeProse_SingleCJKRune(t *testing.T) {
	assert.Equal(t, []string{"玉"}, TokenizeProse("玉"))
	// Runs of one character between punctuation also survive
	assert.Equal(t, []string{"玉", "月"}, TokenizeProse("玉,月"))
}

func TestTokenizeProse_MixedScripts(t *testing.T) {
	tokens := TokenizeProse("宝玉 said hello 黛玉!")
	assert.Contains(t, tokens, "宝玉")
	assert.Contains(t, tokens, "said")
	assert.Contains(t, tokens, "hello")
	assert.Contains(t, tokens, "黛玉")
}

func TestTokenizeProse_QueryMatchesDocumentTokens(t *testing.T) {
	doc := TokenizeProse("林黛玉葬花")
	query := TokenizeProse("黛玉")
	for _, q := range query {
		assert.Contains(t, doc, q)
	}
}

func TestTokenizeProse_Empty(t *testing.T) {
	assert.Empty(t, TokenizeProse(""))
	assert.Empty(t, TokenizeProse("  ...  "))
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordMap([]string{"the", "of"})
	tokens := FilterStopWords([]string{"the", "fall", "of", "troy"}, stop)
	assert.Equal(t, []string{"fall", "troy"}, tokens)
}
