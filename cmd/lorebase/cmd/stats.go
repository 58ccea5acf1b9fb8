package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tessellate-ai/lorebase/internal/output"
)

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			out := output.New(cmd.OutOrStdout())
			out.Statusf("📊", "Collection %q", stats.Collection)
			out.Statusf("", "   chunks:     %d", stats.Count)
			out.Statusf("", "   metric:     %s", stats.Metric)
			out.Statusf("", "   dimensions: %d", stats.Dimensions)
			out.Statusf("", "   lexical:    %s", stats.LexicalBackend)
			out.Statusf("", "   disk:       %.1f MB", float64(stats.DiskBytes)/(1024*1024))
			out.Statusf("", "   dialogue:   %d chunks", stats.DialogueChunks)
			out.Statusf("", "   sections:   %d chunks", stats.SectionChunks)
			if len(stats.TopCharacters) > 0 {
				out.Newline()
				out.Status("👥", "Top characters:")
				for _, nc := range stats.TopCharacters {
					out.Statusf("", "   %-8s %d", nc.Name, nc.Count)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
