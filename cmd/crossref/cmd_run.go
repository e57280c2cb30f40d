package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crossref/internal/runner"
)

var (
	runStaticOnly bool
	runLimit      int
	runDryRun     bool
	runReprocess  bool

	lookupStaticOnly bool
	lookupJSON       bool
)

// runCmd processes the worklist
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Cross-reference every pending feature",
	Long: `Processes every feature still flagged for cross-referencing:
  1. Normalize the credited names into individuals
  2. Scan the reference corpus for each individual
  3. Search the online portal (unless --static-only)
  4. Assess, then record the strongest verdict per feature

Ctrl-C stops after the current individual; completed verdicts are kept.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

// lookupCmd checks one name without touching the worklist
var lookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Check one name and print the verdict without recording it",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBatch(cmd *cobra.Command, args []string) error {
	opts := runner.Options{
		StaticOnly: runStaticOnly || runDryRun,
		DryRun:     runDryRun,
		Reprocess:  runReprocess,
		Limit:      runLimit,
		Progress: func(p runner.Progress) {
			printProgress(os.Stdout, p)
		},
	}
	p, err := buildPipeline(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.close(); err != nil {
			logger.Warn("close pipeline", zap.Error(err))
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("Starting run",
		zap.Bool("static_only", opts.StaticOnly),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("reprocess", opts.Reprocess),
		zap.Int("limit", opts.Limit))

	sum, err := p.runner.Run(ctx)
	if sum != nil {
		if opts.DryRun {
			printPreview(os.Stdout, sum.Preview)
		} else {
			printSummary(os.Stdout, sum)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println(warnColor.Sprint("Interrupted. Finished verdicts were saved; run again to resume."))
			return nil
		}
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(cfg, runner.Options{StaticOnly: lookupStaticOnly})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.close(); err != nil {
			logger.Warn("close pipeline", zap.Error(err))
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := p.runner.Lookup(ctx, args[0])
	if err != nil {
		if errors.Is(err, runner.ErrNoSubjects) {
			fmt.Printf("%q does not name a searchable individual.\n", args[0])
			return nil
		}
		return err
	}

	if lookupJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	for _, v := range res.Individuals {
		printVerdict(os.Stdout, v)
		fmt.Println()
	}
	if len(res.Individuals) > 1 {
		fmt.Printf("%s %s (%.2f)\n", headerColor.Sprint("Combined:"), colorVerdict(res.Combined.Kind), res.Combined.Score)
	}
	return nil
}
