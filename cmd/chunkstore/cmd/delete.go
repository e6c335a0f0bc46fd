package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openrag/chunkstore/internal/ui"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <chunk-id>...",
		Short: "Delete chunks from the store",
		Long: `Remove the given chunks and persist the store. Unknown ids are
skipped silently.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), cmd, args)
		},
	}

	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, ids []string) error {
	st, embedder, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	before, err := st.Size(ctx)
	if err != nil {
		return err
	}

	if err := st.DeleteChunks(ctx, ids); err != nil {
		return err
	}

	after, err := st.Size(ctx)
	if err != nil {
		return err
	}

	styles := ui.StylesFor(cmd.OutOrStdout(), noColor)
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(
		fmt.Sprintf("Deleted %d chunks (%d remaining)", before-after, after)))
	return nil
}
