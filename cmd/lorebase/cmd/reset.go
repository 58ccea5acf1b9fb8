package cmd

import (
	"github.com/spf13/cobra"

	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
	"github.com/tessellate-ai/lorebase/internal/output"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every chunk in the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return lberrors.ValidationError(
					"reset deletes all indexed data; pass --yes to confirm", nil)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.Reset(cmd.Context()); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf(
				"Collection %q cleared", cfg.Store.Collection)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}
