// Package cmd provides the CLI commands for lorebase.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tessellate-ai/lorebase/internal/config"
	"github.com/tessellate-ai/lorebase/internal/logging"
	"github.com/tessellate-ai/lorebase/pkg/version"
)

// Persistent flags shared by all subcommands.
var (
	configPath string
	dataDir    string
	collection string
	logLevel   string
	debugMode  bool

	cfg            config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the lorebase CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lorebase",
		Short: "Semantic retrieval over literary corpora",
		Long: `Lorebase builds a searchable knowledge base from literary text:
chapters are chunked, embedded through a local Ollama model, and
indexed for hybrid (semantic + keyword) retrieval.

Typical flow:

  lorebase index --input data/chapters
  lorebase search "黛玉葬花"
  lorebase search "why does the garden decay" --strategy semantic`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("lorebase version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "lorebase.yaml", "Config file path")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override store.data_dir")
	cmd.PersistentFlags().StringVar(&collection, "collection", "", "Override store.collection")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = loadConfigAndLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfigAndLogging resolves configuration (.env, YAML file, env
// vars, then flags) and installs the default logger.
func loadConfigAndLogging(*cobra.Command, []string) error {
	// .env values become plain env vars, which config.Load then reads
	// as LOREBASE_* overrides. A missing file is fine.
	_ = godotenv.Load()

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	if dataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	if collection != "" {
		cfg.Store.Collection = collection
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		WriteToStderr: cfg.Logging.Stderr,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	return root.Execute()
}
