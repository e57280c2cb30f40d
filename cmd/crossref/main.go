// Package main implements the crossref command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"crossref/internal/config"
	"crossref/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	noColor    bool

	// Loaded in PersistentPreRunE
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "crossref",
	Short: "Cross-reference feature credits against a reference book and a document portal",
	Long: `crossref checks the individuals credited on each feature against a static
reference corpus (the "black book") and an online document portal, and
records a graded verdict per feature.

Typical workflow:
  crossref worklist import features.csv
  crossref run --dry-run
  crossref run
  crossref worklist status`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		if err := logging.Initialize(cfg.Logging.Dir, logging.Settings{
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat(),
			Categories: cfg.Logging.Categories,
		}, logger); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		setupColor(noColor, os.Stdout)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "crossref.yaml", "Config file (missing file = defaults + CROSSREF_* env)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	// Run flags
	runCmd.Flags().BoolVar(&runStaticOnly, "static-only", false, "Skip the online portal; verdicts come from the reference corpus alone")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Process at most N unique individuals (0 = all)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Show the static prescan without searching online or writing verdicts")
	runCmd.Flags().BoolVar(&runReprocess, "reprocess", false, "Include features that already have a final verdict and allow downgrades")

	// Lookup flags
	lookupCmd.Flags().BoolVar(&lookupStaticOnly, "static-only", false, "Skip the online portal")
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "Print verdicts as JSON")

	// Override flags
	overrideSetCmd.Flags().StringVar(&overrideReason, "reason", "", "Why the verdict was overridden (required)")
	_ = overrideSetCmd.MarkFlagRequired("reason")

	// Subcommands
	worklistCmd.AddCommand(importCmd)
	worklistCmd.AddCommand(statusCmd)
	failuresCmd.AddCommand(failuresListCmd)
	failuresCmd.AddCommand(failuresClearCmd)
	overrideCmd.AddCommand(overrideSetCmd)
	overrideCmd.AddCommand(overrideDeleteCmd)
	overrideCmd.AddCommand(overrideListCmd)
	cacheCmd.AddCommand(cachePurgeCmd)

	// Add commands to root
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(worklistCmd)
	rootCmd.AddCommand(failuresCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
