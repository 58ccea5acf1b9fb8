package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
	"github.com/tessellate-ai/lorebase/internal/output"
	"github.com/tessellate-ai/lorebase/internal/pipeline"
	"github.com/tessellate-ai/lorebase/internal/search"
	"github.com/tessellate-ai/lorebase/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit     int
	strategy  string
	character string
	theme     string
	filters   []string
	format    string
	fullText  bool
	compare   bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search runs hybrid (semantic + keyword) retrieval by default; the
auto strategy picks a path from the query shape.

Examples:
  lorebase search "黛玉葬花"
  lorebase search "why does the garden decay" --strategy semantic
  lorebase search "诗社" --character 宝玉 -n 5
  lorebase search "fate and loss" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "auto", "Strategy: semantic, text, hybrid, auto")
	cmd.Flags().StringVarP(&opts.character, "character", "c", "", "Restrict to chunks mentioning a character")
	cmd.Flags().StringVar(&opts.theme, "theme", "", "Thematic search (forces the semantic path)")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "Metadata filter key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.fullText, "full", false, "Print full chunk text instead of summaries")
	cmd.Flags().BoolVar(&opts.compare, "compare", false, "Run all three strategies and print each ranking")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	filter, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}

	p, err := pipeline.Open(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	searchOpts := search.Options{
		K:        opts.limit,
		Strategy: search.Strategy(opts.strategy),
		Filter:   filter,
	}

	if opts.compare {
		return runCompare(ctx, cmd, p, query, searchOpts, opts)
	}

	var resp *pipeline.QueryResponse
	switch {
	case opts.theme != "":
		resp, err = p.SearchByTheme(ctx, opts.theme, searchOpts)
	case opts.character != "":
		resp, err = p.SearchByCharacter(ctx, opts.character, query, searchOpts)
	default:
		resp, err = p.Search(ctx, query, searchOpts)
	}
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	printResults(cmd, resp, opts.fullText)
	return nil
}

// runCompare shows the same query through every strategy side by side,
// which is the quickest way to sanity-check an index and the weights.
func runCompare(ctx context.Context, cmd *cobra.Command, p *pipeline.Pipeline, query string, searchOpts search.Options, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	for _, strategy := range []search.Strategy{
		search.StrategySemantic, search.StrategyText, search.StrategyHybrid,
	} {
		searchOpts.Strategy = strategy
		resp, err := p.Search(ctx, query, searchOpts)
		if err != nil {
			out.Warningf("%s: %v", strategy, err)
			continue
		}
		out.Statusf("🔍", "strategy=%s", strategy)
		printResults(cmd, resp, opts.fullText)
		out.Newline()
	}
	return nil
}

func printResults(cmd *cobra.Command, resp *pipeline.QueryResponse, fullText bool) {
	out := output.New(cmd.OutOrStdout())

	if resp.Degraded {
		out.Warning("semantic path unavailable; showing keyword results only")
	}
	if len(resp.Results) == 0 {
		out.Status("", fmt.Sprintf("No results for %q (strategy: %s)", resp.Query, resp.Strategy))
		return
	}

	out.Statusf("🔍", "%d results for %q (strategy: %s)",
		len(resp.Results), resp.Query, resp.Strategy)
	out.Newline()

	for i, r := range resp.Results {
		text := r.Summary
		if fullText {
			text = r.Document
		}
		out.Statusf("", "%d. [%.3f] %s", i+1, r.Score, r.ID)
		out.Statusf("", "   %s", text)
		if src, ok := r.Metadata["source_id"].(string); ok {
			out.Statusf("", "   source: %s", src)
		}
	}
}

// parseFilters turns repeated key=value flags into a metadata filter.
// Comma-separated values become a $in set.
func parseFilters(pairs []string) (store.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := store.Filter{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, lberrors.ValidationError(
				fmt.Sprintf("bad filter %q, want key=value", pair), nil)
		}
		if strings.Contains(value, ",") {
			parts := strings.Split(value, ",")
			set := make([]any, len(parts))
			for i, p := range parts {
				set[i] = strings.TrimSpace(p)
			}
			filter[key] = map[string]any{"$in": set}
			continue
		}
		filter[key] = parseScalar(value)
	}
	return filter, nil
}

// parseScalar interprets bools and numbers so filters compare equal to
// metadata that went through JSON.
func parseScalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err == nil && fmt.Sprintf("%g", f) == s {
		return f
	}
	return s
}
