package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tessellate-ai/lorebase/internal/output"
)

func newExportCmd() *cobra.Command {
	var (
		outPath     string
		withVectors bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the collection as JSON",
		Long: `Export dumps ids, documents, and metadata as a portable JSON
snapshot. Pass --vectors to include the stored embeddings; without
them, re-index to re-embed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if outPath == "" {
				return st.ExportJSON(cmd.Context(), cmd.OutOrStdout(), withVectors)
			}

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			if err := st.ExportJSON(cmd.Context(), f, withVectors); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Exported to %s", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&withVectors, "vectors", false, "Include stored embeddings in the export")
	return cmd
}
