package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openrag/chunkstore/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Long:  `Display the store location, chunk count, and embedding configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statsOutput is the JSON output shape for store statistics.
type statsOutput struct {
	Dir        string `json:"dir"`
	Chunks     int    `json:"chunks"`
	Dimensions int    `json:"dimensions"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	st, embedder, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	size, err := st.Size(ctx)
	if err != nil {
		return err
	}

	out := statsOutput{
		Dir:        st.Dir(),
		Chunks:     size,
		Dimensions: st.Dimensions(),
		Provider:   cfg.Embeddings.Provider,
		Model:      embedder.ModelName(),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	styles := ui.StylesFor(cmd.OutOrStdout(), noColor)
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, styles.Header.Render("Store"))
	fmt.Fprintf(w, "%s %s\n", styles.Label.Render("directory:"), out.Dir)
	fmt.Fprintf(w, "%s %d\n", styles.Label.Render("chunks:"), out.Chunks)
	fmt.Fprintf(w, "%s %d\n", styles.Label.Render("dimensions:"), out.Dimensions)
	fmt.Fprintf(w, "%s %s (%s)\n", styles.Label.Render("embedder:"), out.Provider, out.Model)
	return nil
}
