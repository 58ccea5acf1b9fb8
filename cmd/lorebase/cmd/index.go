package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tessellate-ai/lorebase/internal/output"
	"github.com/tessellate-ai/lorebase/internal/pipeline"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	input    string
	glob     string
	strategy string
	reset    bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Ingest text files into the knowledge base",
		Long: `Index chunks every matching file, embeds the chunks through the
configured Ollama model, and stores them for retrieval.

Examples:
  lorebase index --input data/chapters
  lorebase index --input data/chapters --strategy hybrid --reset`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Directory of text files (default from config)")
	cmd.Flags().StringVarP(&opts.glob, "glob", "g", "", "File glob within the input directory")
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "Chunking strategy override")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "Clear the collection before indexing")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	if opts.input != "" {
		cfg.Pipeline.InputDir = opts.input
	}
	if opts.glob != "" {
		cfg.Pipeline.FileGlob = opts.glob
	}
	if opts.strategy != "" {
		cfg.Chunking.Strategy = opts.strategy
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📚", "Indexing %s/%s into collection %q",
		cfg.Pipeline.InputDir, cfg.Pipeline.FileGlob, cfg.Store.Collection)

	p, err := pipeline.Open(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	stats, err := p.BuildKnowledgeBase(ctx, opts.reset)
	if err != nil {
		return err
	}

	out.Successf("Indexed %d documents (%d chunks)",
		stats.DocumentsProcessed, stats.ChunksCreated)
	if stats.DocumentsFailed > 0 {
		out.Warningf("%d documents failed:", stats.DocumentsFailed)
		for _, e := range stats.Errors {
			out.Statusf("", "%s: %s", e.SourceID, e.Err)
		}
	}
	return nil
}
