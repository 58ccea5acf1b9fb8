package search

import (
	"strings"
	"unicode/utf8"
)

// QueryFeatures are the observable properties the auto strategy rule
// is defined over.
type QueryFeatures struct {
	// RuneCount is the query length in runes, not bytes. CJK queries
	// carry far more content per rune than latin ones, so byte length
	// would misclassify them.
	RuneCount int

	// HasEntityName is true when the query contains a known character
	// name from the entity dictionary.
	HasEntityName bool

	// HasSemanticKeyword is true when the query contains an
	// abstraction or relation word ("why", "关系", ...).
	HasSemanticKeyword bool
}

// AnalyzeQuery derives the features the strategy rule needs. Matching
// is substring-based: CJK names have no word boundaries to split on,
// and a latin name inside a longer query should still count.
func AnalyzeQuery(query string, entityNames, semanticKeywords []string) QueryFeatures {
	f := QueryFeatures{RuneCount: utf8.RuneCountInString(query)}
	lower := strings.ToLower(query)

	for _, name := range entityNames {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			f.HasEntityName = true
			break
		}
	}
	for _, kw := range semanticKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			f.HasSemanticKeyword = true
			break
		}
	}
	return f
}

// ChooseStrategy is the auto-selection rule. It is deterministic and
// depends only on its arguments.
//
// A short query naming a known entity is a lookup; keyword search
// finds exact mentions better than embeddings do. A long query using
// abstraction words is a meaning question; lexical overlap would only
// add noise. Everything in between gets both paths.
func ChooseStrategy(f QueryFeatures, shortRunes, longRunes int) Strategy {
	if f.HasEntityName && f.RuneCount <= shortRunes {
		return StrategyText
	}
	if f.HasSemanticKeyword && f.RuneCount > longRunes {
		return StrategySemantic
	}
	return StrategyHybrid
}
