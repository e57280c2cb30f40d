package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crossref/internal/config"
	"crossref/internal/types"
)

// =============================================================================
// WORKLIST COMMANDS
// =============================================================================

var worklistCmd = &cobra.Command{
	Use:   "worklist",
	Short: "Manage the feature worklist",
}

// importCmd loads features from CSV
var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Add or update worklist features from a CSV file",
	Long: `Reads "feature_id,name" rows (an optional header row is skipped) and adds
them to the worklist. A feature whose name changed is queued again; unchanged
features keep their verdicts.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// statusCmd shows worklist progress
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worklist and verdict counts",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

// initConfigCmd writes the default configuration
var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInitConfig,
}

// readCandidates parses feature_id,name rows. Rows without both values are
// skipped and counted.
func readCandidates(r io.Reader) ([]types.Candidate, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []types.Candidate
	skipped := 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && len(rec) > 0 && isHeader(rec[0]) {
			continue
		}
		if len(rec) < 2 || strings.TrimSpace(rec[0]) == "" || strings.TrimSpace(rec[1]) == "" {
			skipped++
			continue
		}
		out = append(out, types.Candidate{
			FeatureID: strings.TrimSpace(rec[0]),
			RawName:   strings.TrimSpace(rec[1]),
		})
	}
	return out, skipped, nil
}

func isHeader(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))) {
	case "feature_id", "feature", "id":
		return true
	}
	return false
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	candidates, skipped, err := readCandidates(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	changed, err := st.AddFeatures(context.Background(), candidates)
	if err != nil {
		return fmt.Errorf("failed to import features: %w", err)
	}

	logger.Info("Imported worklist", zap.String("file", args[0]), zap.Int("rows", len(candidates)), zap.Int("changed", changed))
	fmt.Printf("Imported %d feature(s): %d new or changed", len(candidates), changed)
	if skipped > 0 {
		fmt.Printf(", %s", warnColor.Sprintf("%d row(s) skipped", skipped))
	}
	fmt.Println()
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	fmt.Println(headerColor.Sprint("Worklist"))
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("  Features:     %d (%d pending, %d done)\n", stats.Features, stats.Pending, stats.Done)
	fmt.Printf("  Provisional:  %d\n", stats.Provisional)
	fmt.Printf("  In book:      %d\n", stats.YesCount)
	for _, k := range sortedKinds(stats.ByVerdict) {
		fmt.Printf("    %-18s %d\n", colorVerdict(k), stats.ByVerdict[k])
	}
	fmt.Printf("  Failing names: %d\n", stats.Failures)
	fmt.Printf("  Overrides:    %d\n", stats.Overrides)
	fmt.Println(strings.Repeat("─", 50))
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) > 0 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s. Set portal.url before running online.\n", path)
	return nil
}
