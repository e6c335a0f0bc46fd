// Package cmd provides the CLI commands for chunkstore.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openrag/chunkstore/internal/config"
	"github.com/openrag/chunkstore/internal/embed"
	cserrors "github.com/openrag/chunkstore/internal/errors"
	"github.com/openrag/chunkstore/internal/logging"
	"github.com/openrag/chunkstore/internal/store"
	"github.com/openrag/chunkstore/pkg/version"
)

// Persistent flags shared by all subcommands.
var (
	storeDir     string
	embedderName string
	modelName    string
	noColor      bool
	debugMode    bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the chunkstore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunkstore",
		Short: "Shared persistent vector store for document chunks",
		Long: `chunkstore maintains a persistent vector store shared across processes.

Documents are split into chunks, embedded (Ollama or a deterministic
offline embedder), and persisted to a store directory. Searches run
exact cosine similarity or BM25 keyword ranking over the stored chunks.

Multiple processes can point at the same store directory; writes are
serialized through an OS-level lock file.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("chunkstore version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&storeDir, "dir", "", "Store directory (default from config)")
	cmd.PersistentFlags().StringVar(&embedderName, "embedder", "", "Embedding provider: ollama or static")
	cmd.PersistentFlags().StringVar(&modelName, "model", "", "Embedding model name")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.chunkstore/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newDestroyCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging configures the default slog logger before any command runs.
func startLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Short()))
		return nil
	}

	level := os.Getenv("CHUNKSTORE_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	cleanup, err := logging.SetupDefault(level)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// stopLogging flushes and closes the log sink after the command finishes.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command, printing failures in the CLI error format.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cserrors.FormatForCLI(err))
		return err
	}
	return nil
}

// loadConfig loads the layered configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determine working directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}

	if storeDir != "" {
		cfg.Storage.Dir = storeDir
	}
	if embedderName != "" {
		cfg.Embeddings.Provider = embedderName
	}
	if modelName != "" {
		cfg.Embeddings.Model = modelName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore builds the embedder and store from the effective configuration.
// The caller owns the embedder and must Close it.
func openStore(ctx context.Context) (*store.Store, embed.Embedder, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	embedder, err := embed.NewEmbedder(ctx,
		embed.ParseProvider(cfg.Embeddings.Provider),
		cfg.Embeddings.Model,
		cfg.Embeddings.OllamaHost)
	if err != nil {
		return nil, nil, nil, err
	}

	st := store.New(embedder, cfg.Storage.Dir)
	return st, embedder, cfg, nil
}
