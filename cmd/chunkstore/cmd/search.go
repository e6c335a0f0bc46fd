package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cserrors "github.com/openrag/chunkstore/internal/errors"
	"github.com/openrag/chunkstore/internal/store"
	"github.com/openrag/chunkstore/internal/ui"
)

// searchOptions holds the search command flags.
type searchOptions struct {
	limit     int
	threshold float64
	keyword   bool
	format    string
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search the store by semantic similarity or keywords",
		Long: `Embed the query and rank stored chunks by cosine similarity, or rank
them by BM25 with --keyword. With --threshold only chunks scoring at
least the threshold are returned.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			useThreshold := cmd.Flags().Changed("threshold")
			return runSearch(cmd.Context(), cmd, query, opts, useThreshold)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default from config)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Minimum cosine similarity score")
	cmd.Flags().BoolVar(&opts.keyword, "keyword", false, "Use BM25 keyword ranking instead of embeddings")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text or json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts *searchOptions, useThreshold bool) error {
	if strings.TrimSpace(query) == "" {
		return cserrors.New(cserrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	if opts.format != "text" && opts.format != "json" {
		return cserrors.New(cserrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown format %q", opts.format), nil).
			WithSuggestion("use --format text or --format json")
	}
	if opts.keyword && useThreshold {
		return cserrors.New(cserrors.ErrCodeInvalidInput,
			"--threshold applies to similarity search, not --keyword", nil)
	}

	st, embedder, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	limit := opts.limit
	if limit <= 0 {
		limit = cfg.Search.MaxResults
	}

	var results []*store.SearchResult
	if opts.keyword {
		results, err = st.KeywordSearch(ctx, query, limit)
	} else {
		var vec []float32
		vec, err = embedder.Embed(ctx, query)
		if err != nil {
			return cserrors.Wrap(cserrors.ErrCodeEmbeddingFailed, err)
		}
		if useThreshold {
			results, err = st.SearchSimilarChunksWithThreshold(ctx, vec, limit, opts.threshold)
		} else {
			results, err = st.SearchSimilarChunks(ctx, vec, limit)
		}
	}
	if err != nil {
		return cserrors.Wrap(cserrors.ErrCodeSearchFailed, err)
	}

	if opts.format == "json" {
		return formatSearchJSON(cmd, query, results)
	}
	return formatSearchText(cmd, query, results)
}

// searchOutput is the JSON output shape for search results.
type searchOutput struct {
	Query   string              `json:"query"`
	Count   int                 `json:"count"`
	Results []searchResultEntry `json:"results"`
}

type searchResultEntry struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Score      float64        `json:"score"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func formatSearchJSON(cmd *cobra.Command, query string, results []*store.SearchResult) error {
	out := searchOutput{
		Query:   query,
		Count:   len(results),
		Results: make([]searchResultEntry, 0, len(results)),
	}
	for _, r := range results {
		out.Results = append(out.Results, searchResultEntry{
			ID:         r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Score:      r.Score,
			Text:       r.Chunk.Text,
			Metadata:   r.Chunk.Metadata,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func formatSearchText(cmd *cobra.Command, query string, results []*store.SearchResult) error {
	styles := ui.StylesFor(cmd.OutOrStdout(), noColor)
	w := cmd.OutOrStdout()

	if len(results) == 0 {
		fmt.Fprintf(w, "No results for %q\n", query)
		return nil
	}

	fmt.Fprintln(w, styles.Header.Render(
		fmt.Sprintf("%d results for %q", len(results), query)))
	fmt.Fprintln(w)

	for i, r := range results {
		fmt.Fprintf(w, "%d. %s  %s\n",
			i+1,
			styles.Score.Render(fmt.Sprintf("%.4f", r.Score)),
			styles.ChunkID.Render(r.Chunk.ID))
		if source, ok := r.Chunk.Metadata["source"].(string); ok && source != "" {
			fmt.Fprintf(w, "   %s\n", styles.Label.Render(source))
		}
		fmt.Fprintf(w, "   %s\n\n", getSnippet(r.Chunk.Text, 200))
	}
	return nil
}

// getSnippet returns the first maxLen characters of text, collapsed to a
// single line.
func getSnippet(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
