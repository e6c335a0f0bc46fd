package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openrag/chunkstore/internal/ui"
)

func newClearCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all chunks from the store",
		Long:  `Empty the store and persist the empty state. The store files remain.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClear(cmd.Context(), cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

func runClear(ctx context.Context, cmd *cobra.Command, force bool) error {
	st, embedder, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	size, err := st.Size(ctx)
	if err != nil {
		return err
	}

	if !force && !confirm(cmd, fmt.Sprintf("Remove all %d chunks from %s?", size, st.Dir())) {
		fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	if err := st.Clear(ctx); err != nil {
		return err
	}

	styles := ui.StylesFor(cmd.OutOrStdout(), noColor)
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(
		fmt.Sprintf("Cleared %d chunks", size)))
	return nil
}

// confirm prompts on stdin and returns true only for an explicit yes.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
