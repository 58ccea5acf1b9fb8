package store

import (
	"strings"
	"unicode"
)

// TokenizeProse splits mixed-script text for keyword indexing. Latin
// and digit runs become lowercased word tokens; CJK runs are emitted
// as overlapping character bigrams (plus the lone character for
// single-character runs), since CJK has no whitespace word boundaries.
// The same function tokenizes both documents and queries so terms
// always line up.
func TokenizeProse(text string) []string {
	var tokens []string
	var word strings.Builder
	var prevCJK rune

	flushWord := func() {
		if word.Len() >= 2 {
			tokens = append(tokens, strings.ToLower(word.String()))
		} else if word.Len() == 1 {
			// Keep single-letter tokens only when they are digits
			if r := rune(word.String()[0]); unicode.IsDigit(r) {
				tokens = append(tokens, word.String())
			}
		}
		word.Reset()
	}

	cjkRun := 0
	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			if cjkRun > 0 {
				tokens = append(tokens, string([]rune{prevCJK, r}))
			}
			prevCJK = r
			cjkRun++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if cjkRun == 1 {
				tokens = append(tokens, string(prevCJK))
			}
			cjkRun = 0
			word.WriteRune(r)
		default:
			if cjkRun == 1 {
				tokens = append(tokens, string(prevCJK))
			}
			cjkRun = 0
			flushWord()
		}
	}
	if cjkRun == 1 {
		tokens = append(tokens, string(prevCJK))
	}
	flushWord()

	return tokens
}

// isCJK reports whether r is a Han, Hiragana, Katakana, or Hangul rune.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[token]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a stop word list to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// DefaultStopWords are high-frequency function words that add noise to
// keyword matching in mixed English and Chinese prose.
var DefaultStopWords = []string{
	"the", "an", "and", "or", "of", "to", "in", "is", "was", "it",
}
