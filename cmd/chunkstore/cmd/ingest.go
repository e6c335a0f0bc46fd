package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openrag/chunkstore/internal/chunk"
	cserrors "github.com/openrag/chunkstore/internal/errors"
	"github.com/openrag/chunkstore/internal/store"
	"github.com/openrag/chunkstore/internal/ui"
)

// ingestReadConcurrency bounds concurrent file reads.
const ingestReadConcurrency = 8

func newIngestCmd() *cobra.Command {
	var metaPairs []string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Chunk files and add them to the store",
		Long: `Read each file, split it into overlapping chunks, embed the chunks,
and persist them to the store. Each file becomes one document with a
generated document id; chunk ids are derived from it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, metaPairs)
		},
	}

	cmd.Flags().StringArrayVar(&metaPairs, "meta", nil, "Extra metadata as key=value (repeatable)")

	return cmd
}

// ingestedFile is the chunking result for a single input file.
type ingestedFile struct {
	path  string
	docID string
	texts []string
}

func runIngest(ctx context.Context, cmd *cobra.Command, paths []string, metaPairs []string) error {
	meta, err := parseMetaPairs(metaPairs)
	if err != nil {
		return err
	}

	st, embedder, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	splitter := chunk.NewSplitter(chunk.Options{
		Size:    cfg.Chunking.Size,
		Overlap: cfg.Chunking.Overlap,
	})

	files := make([]ingestedFile, len(paths))
	var g errgroup.Group
	g.SetLimit(ingestReadConcurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return cserrors.New(cserrors.ErrCodeFileNotFound,
					fmt.Sprintf("cannot read %s", path), err)
			}
			files[i] = ingestedFile{
				path:  path,
				docID: uuid.New().String(),
				texts: splitter.Split(string(data)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var chunks []*store.Chunk
	for _, f := range files {
		for i, text := range f.texts {
			m := map[string]any{"source": f.path}
			for k, v := range meta {
				m[k] = v
			}
			chunks = append(chunks, &store.Chunk{
				ID:         fmt.Sprintf("%s-%04d", f.docID, i),
				Text:       text,
				DocumentID: f.docID,
				Metadata:   m,
			})
		}
	}

	if len(chunks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to ingest: all files were empty.")
		return nil
	}

	slog.Info("ingest_started",
		slog.Int("files", len(files)),
		slog.Int("chunks", len(chunks)))

	if err := st.AddChunks(ctx, chunks); err != nil {
		return cserrors.Wrap(cserrors.ErrCodeIngestFailed, err)
	}

	styles := ui.StylesFor(cmd.OutOrStdout(), noColor)
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, styles.Success.Render(
		fmt.Sprintf("Ingested %d chunks from %d files", len(chunks), len(files))))
	for _, f := range files {
		fmt.Fprintf(w, "  %s  %s\n",
			styles.ChunkID.Render(f.docID),
			styles.Label.Render(fmt.Sprintf("%s (%d chunks)", f.path, len(f.texts))))
	}
	return nil
}

// parseMetaPairs turns key=value flags into a metadata map.
func parseMetaPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, cserrors.New(cserrors.ErrCodeInvalidInput,
				fmt.Sprintf("invalid --meta value %q, expected key=value", pair), nil).
				WithSuggestion("pass metadata as --meta project=docs")
		}
		meta[key] = value
	}
	return meta, nil
}
