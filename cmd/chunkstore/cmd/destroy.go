package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openrag/chunkstore/internal/ui"
)

func newDestroyCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the store and its files on disk",
		Long: `Empty the store and remove the vector blob, metadata sidecar, and lock
file from the store directory. This cannot be undone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDestroy(cmd.Context(), cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

func runDestroy(ctx context.Context, cmd *cobra.Command, force bool) error {
	st, embedder, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	if !force && !confirm(cmd, fmt.Sprintf("Delete the store at %s?", st.Dir())) {
		fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	if err := st.DeleteStore(ctx); err != nil {
		return err
	}

	styles := ui.StylesFor(cmd.OutOrStdout(), noColor)
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(
		fmt.Sprintf("Deleted store at %s", st.Dir())))
	return nil
}
