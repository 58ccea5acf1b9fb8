// Package search implements semantic, lexical, and hybrid retrieval
// over a lorebase collection.
//
// The hybrid path fuses vector similarity with keyword relevance using
// weighted score fusion; the auto strategy picks a path from query
// features. All scores exposed here are normalized similarities in
// [0, 1], so weights compose meaningfully across paths.
package search

import (
	"github.com/tessellate-ai/lorebase/internal/store"
)

// Strategy selects a retrieval path.
type Strategy string

const (
	// StrategySemantic ranks by vector similarity only.
	StrategySemantic Strategy = "semantic"

	// StrategyText ranks by lexical relevance only.
	StrategyText Strategy = "text"

	// StrategyHybrid fuses both paths with configured weights.
	StrategyHybrid Strategy = "hybrid"

	// StrategyAuto picks one of the above from query features.
	StrategyAuto Strategy = "auto"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySemantic, StrategyText, StrategyHybrid, StrategyAuto:
		return true
	}
	return false
}

// Options tunes a single search request. The zero value means "auto
// strategy, default k, no filter, configured weights".
type Options struct {
	// K is the number of results to return. Non-positive means the
	// store's default.
	K int

	// Strategy selects the retrieval path. Empty means auto.
	Strategy Strategy

	// Filter restricts results by chunk metadata.
	Filter store.Filter

	// SemanticWeight and TextWeight override the configured fusion
	// weights for this request. When either is set, both must be
	// non-negative and sum to 1.0 or the request is rejected. Leave
	// both zero to use the configured weights.
	SemanticWeight float64
	TextWeight     float64
}

// Response is a ranked answer to one search request.
type Response struct {
	Query string `json:"query"`

	// Strategy is the path actually executed (never auto).
	Strategy Strategy `json:"strategy"`

	// Degraded is true when the hybrid semantic leg failed and the
	// ranking was produced from the text path alone.
	Degraded bool `json:"degraded,omitempty"`

	Results []store.SearchResult `json:"results"`
}

// overfetchMultiplier is how many candidates each hybrid leg fetches
// relative to k, so that fusion has enough overlap to rerank.
const overfetchMultiplier = 2
