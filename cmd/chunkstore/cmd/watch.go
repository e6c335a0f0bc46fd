package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrag/chunkstore/internal/store"
	"github.com/openrag/chunkstore/internal/ui"
	"github.com/openrag/chunkstore/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the store directory for writes from other processes",
		Long: `Watch the store files and report when another process rewrites them.
The in-memory state is invalidated on each change, so the next operation
in this process reloads from disk. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Debounce window for change batches (default 200ms)")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, debounce time.Duration) error {
	st, embedder, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	// The directory may not exist until the first save.
	if err := os.MkdirAll(st.Dir(), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	styles := ui.StylesFor(cmd.OutOrStdout(), noColor)
	w := cmd.OutOrStdout()

	onChange := func(batch []watcher.FileEvent) {
		st.Invalidate()
		slog.Info("store_state_invalidated", slog.Int("events", len(batch)))
		for _, ev := range batch {
			fmt.Fprintf(w, "%s  %s %s\n",
				styles.Dim.Render(ev.Timestamp.Format(time.TimeOnly)),
				ev.Operation.String(),
				ev.Path)
		}
	}

	sw, err := watcher.NewStoreWatcher(st.Dir(),
		[]string{store.VectorsFileName, store.MetadataFileName},
		onChange,
		watcher.Options{DebounceWindow: debounce})
	if err != nil {
		return err
	}
	defer func() { _ = sw.Stop() }()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintln(w, styles.Header.Render(
		fmt.Sprintf("Watching %s (Ctrl-C to stop)", st.Dir())))

	if err := sw.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
