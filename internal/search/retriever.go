package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tessellate-ai/lorebase/internal/config"
	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
	"github.com/tessellate-ai/lorebase/internal/store"
)

// HybridRetriever dispatches a query to the semantic, text, or fused
// retrieval path and owns the score-fusion step.
type HybridRetriever struct {
	searcher    *SemanticSearcher
	store       *store.Store
	cfg         config.SearchConfig
	entityNames []string
	logger      *slog.Logger
}

// NewHybridRetriever builds a retriever. entityNames is the character
// dictionary the auto rule checks queries against; it may be empty.
func NewHybridRetriever(searcher *SemanticSearcher, st *store.Store, cfg config.SearchConfig, entityNames []string, logger *slog.Logger) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		searcher:    searcher,
		store:       st,
		cfg:         cfg,
		entityNames: entityNames,
		logger:      logger,
	}
}

// Search runs one retrieval request and returns the ranked response.
func (r *HybridRetriever) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyAuto
	}
	if !strategy.Valid() {
		return nil, lberrors.New(lberrors.ErrCodeInvalidStrategy,
			fmt.Sprintf("unknown search strategy %q", strategy), nil)
	}
	if opts.K <= 0 {
		opts.K = store.DefaultMaxResults
	}

	if strategy == StrategyAuto {
		features := AnalyzeQuery(query, r.entityNames, r.cfg.SemanticKeywords)
		strategy = ChooseStrategy(features, r.cfg.ShortQueryRunes, r.cfg.LongQueryRunes)
		r.logger.Debug("auto strategy selected",
			"strategy", string(strategy),
			"query_runes", features.RuneCount,
			"has_entity", features.HasEntityName,
			"has_keyword", features.HasSemanticKeyword)
	}

	switch strategy {
	case StrategySemantic:
		results, err := r.searcher.Search(ctx, query, opts.K, opts.Filter)
		if err != nil {
			return nil, err
		}
		return &Response{Query: query, Strategy: StrategySemantic, Results: results}, nil

	case StrategyText:
		results, err := r.store.SearchByText(ctx, query, opts.K, opts.Filter)
		if err != nil {
			return nil, err
		}
		return &Response{Query: query, Strategy: StrategyText, Results: results}, nil

	default:
		return r.hybridSearch(ctx, query, opts)
	}
}

// hybridSearch fetches candidates from both paths in parallel, fuses
// them with weighted scores, and truncates to k.
//
// One failing leg does not abort the request: the other leg's results
// are fused alone (with degradation logged), and an error is returned
// only when both legs fail. The semantic leg additionally honors
// DegradeToText=false by propagating its error to the caller.
func (r *HybridRetriever) hybridSearch(ctx context.Context, query string, opts Options) (*Response, error) {
	wSem, wText, err := r.weights(opts)
	if err != nil {
		return nil, err
	}
	fetchK := opts.K * overfetchMultiplier

	var (
		semResults  []store.SearchResult
		textResults []store.SearchResult
		semErr      error
		textErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semResults, semErr = r.searcher.Search(gctx, query, fetchK, opts.Filter)
		return nil
	})
	g.Go(func() error {
		textResults, textErr = r.store.SearchByText(gctx, query, fetchK, opts.Filter)
		return nil
	})
	_ = g.Wait()

	if semErr != nil && textErr != nil {
		return nil, errors.Join(semErr, textErr)
	}
	if semErr != nil && !r.cfg.DegradeToText {
		return nil, semErr
	}

	degraded := semErr != nil
	if degraded {
		r.logger.Warn("semantic path failed, returning text-only results",
			"error", semErr)
	}
	if textErr != nil {
		r.logger.Warn("text path failed, returning semantic-only results",
			"error", textErr)
	}

	fused := fuseWeighted(semResults, textResults, wSem, wText)
	if len(fused) > opts.K {
		fused = fused[:opts.K]
	}
	return &Response{
		Query:    query,
		Strategy: StrategyHybrid,
		Degraded: degraded,
		Results:  fused,
	}, nil
}

// SearchWithContext ranks query's results blended with results for an
// auxiliary context query. The context contribution is scaled by the
// configured context weight, so the primary query always dominates
// unless configured otherwise.
func (r *HybridRetriever) SearchWithContext(ctx context.Context, query, contextQuery string, opts Options) (*Response, error) {
	if contextQuery == "" {
		return r.Search(ctx, query, opts)
	}
	if opts.K <= 0 {
		opts.K = store.DefaultMaxResults
	}

	wide := opts
	wide.K = opts.K * overfetchMultiplier

	primary, err := r.Search(ctx, query, wide)
	if err != nil {
		return nil, err
	}

	auxiliary, err := r.Search(ctx, contextQuery, wide)
	if err != nil {
		// The context query is an enrichment; its failure degrades the
		// request rather than failing it.
		r.logger.Warn("context query failed, using primary results only",
			"error", err)
		auxiliary = &Response{Results: nil}
	}

	cw := r.cfg.ContextWeight
	fused := fuseWeighted(primary.Results, auxiliary.Results, 1-cw, cw)
	if len(fused) > opts.K {
		fused = fused[:opts.K]
	}
	return &Response{
		Query:    query,
		Strategy: primary.Strategy,
		Degraded: primary.Degraded,
		Results:  fused,
	}, nil
}

// SearchByCharacter restricts results to chunks mentioning the named
// character before running the query.
func (r *HybridRetriever) SearchByCharacter(ctx context.Context, name, query string, opts Options) (*Response, error) {
	if query == "" {
		query = name
	}
	filter := store.Filter{}
	for k, v := range opts.Filter {
		filter[k] = v
	}
	filter["characters"] = map[string]any{"$in": []any{name}}
	opts.Filter = filter
	return r.Search(ctx, query, opts)
}

// SearchByTheme retrieves passages about an abstract theme. Themes are
// meaning-level questions, so the semantic path is forced.
func (r *HybridRetriever) SearchByTheme(ctx context.Context, theme string, opts Options) (*Response, error) {
	opts.Strategy = StrategySemantic
	return r.Search(ctx, theme, opts)
}

// weights resolves the fusion weights for one request. Overrides are
// held to the same contract config validation enforces: non-negative
// and summing to 1.0 within a small float tolerance.
func (r *HybridRetriever) weights(opts Options) (wSem, wText float64, err error) {
	if opts.SemanticWeight == 0 && opts.TextWeight == 0 {
		return r.cfg.SemanticWeight, r.cfg.TextWeight, nil
	}
	if opts.SemanticWeight < 0 || opts.TextWeight < 0 {
		return 0, 0, lberrors.ValidationError(
			fmt.Sprintf("fusion weights must be non-negative, got semantic=%g text=%g",
				opts.SemanticWeight, opts.TextWeight), nil)
	}
	if sum := opts.SemanticWeight + opts.TextWeight; sum < 0.999 || sum > 1.001 {
		return 0, 0, lberrors.ValidationError(
			fmt.Sprintf("fusion weights must sum to 1.0, got %g", sum), nil)
	}
	return opts.SemanticWeight, opts.TextWeight, nil
}

// fuseWeighted merges two ranked lists by id. A candidate absent from
// one list contributes zero for that list's weight. The merge is a
// union: appearing in only one path never excludes a chunk.
func fuseWeighted(primary, secondary []store.SearchResult, wPrimary, wSecondary float64) []store.SearchResult {
	type fusedEntry struct {
		result store.SearchResult
		score  float64
		inBoth bool
	}

	merged := make(map[string]*fusedEntry, len(primary)+len(secondary))
	for _, res := range primary {
		merged[res.ID] = &fusedEntry{result: res, score: res.Score * wPrimary}
	}
	for _, res := range secondary {
		if entry, ok := merged[res.ID]; ok {
			entry.score += res.Score * wSecondary
			entry.inBoth = true
			continue
		}
		merged[res.ID] = &fusedEntry{result: res, score: res.Score * wSecondary}
	}

	fused := make([]store.SearchResult, 0, len(merged))
	for _, entry := range merged {
		r := entry.result
		r.Score = entry.score
		fused = append(fused, r)
	}

	// Deterministic order: fused score, then id. Equal ordering for
	// equal state is part of the contract.
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	return fused
}
