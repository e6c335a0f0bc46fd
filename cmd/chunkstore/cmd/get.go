package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	cserrors "github.com/openrag/chunkstore/internal/errors"
	"github.com/openrag/chunkstore/internal/ui"
)

func newGetCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <chunk-id>",
		Short: "Show a stored chunk by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), cmd, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the chunk as JSON")

	return cmd
}

func runGet(ctx context.Context, cmd *cobra.Command, id string, jsonOutput bool) error {
	st, embedder, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	chunk, err := st.GetChunkByID(ctx, id)
	if err != nil {
		return err
	}
	if chunk == nil {
		return cserrors.New(cserrors.ErrCodeInvalidInput,
			fmt.Sprintf("no chunk with id %q", id), nil).
			WithSuggestion("list ids with 'chunkstore search --keyword <terms>'")
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(chunk)
	}

	styles := ui.StylesFor(cmd.OutOrStdout(), noColor)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s\n", styles.Label.Render("id:"), styles.ChunkID.Render(chunk.ID))
	fmt.Fprintf(w, "%s %s\n", styles.Label.Render("document:"), chunk.DocumentID)
	for k, v := range chunk.Metadata {
		fmt.Fprintf(w, "%s %v\n", styles.Label.Render(k+":"), v)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, chunk.Text)
	return nil
}
