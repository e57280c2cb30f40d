package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"crossref/internal/cache"
	"crossref/internal/names"
	"crossref/internal/store"
	"crossref/internal/types"
)

// =============================================================================
// REVIEW COMMANDS: failure counters, overrides, cache
// =============================================================================

var overrideReason string

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect or reset per-name online failure counters",
}

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List names with failed online searches",
	Args:  cobra.NoArgs,
	RunE:  runFailuresList,
}

var failuresClearCmd = &cobra.Command{
	Use:   "clear [name]",
	Short: "Reset the failure counter for a name, or for every name",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFailuresClear,
}

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage manual review decisions",
}

var overrideSetCmd = &cobra.Command{
	Use:   "set <name> <verdict>",
	Short: "Record a review decision for an individual",
	Long: `Records the verdict a reviewer chose for an individual. It replaces the
computed verdict on the next run when that verdict is possible_match or
needs_review.

Verdicts: no_match, possible_match, needs_review, likely_match, confirmed_match`,
	Args: cobra.ExactArgs(2),
	RunE: runOverrideSet,
}

var overrideDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a review decision",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverrideDelete,
}

var overrideListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review decisions",
	Args:  cobra.NoArgs,
	RunE:  runOverrideList,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the portal result cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	Args:  cobra.NoArgs,
	RunE:  runCachePurge,
}

func runFailuresList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	failures, err := st.ListFailures(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list failures: %w", err)
	}
	if len(failures) == 0 {
		fmt.Println("No failing names.")
		return nil
	}

	fmt.Println(headerColor.Sprint("Failing names"))
	fmt.Println(strings.Repeat("─", 50))
	for _, f := range failures {
		marker := ""
		if f.Failures >= cfg.Runner.FailureCap {
			marker = " " + errorColor.Sprint("(excluded)")
		}
		fmt.Printf("  %-30s %d%s  %s\n", f.Display, f.Failures, marker, dimColor.Sprint(f.LastError))
	}
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Names with %d or more failures are skipped. Use: crossref failures clear <name>\n", cfg.Runner.FailureCap)
	return nil
}

func runFailuresClear(cmd *cobra.Command, args []string) error {
	key := ""
	if len(args) > 0 {
		if key = names.Key(args[0]); key == "" {
			return fmt.Errorf("%q is not a usable name", args[0])
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.ClearFailures(context.Background(), key)
	if err != nil {
		return fmt.Errorf("failed to clear failures: %w", err)
	}
	fmt.Printf("Cleared %d failure counter(s).\n", n)
	return nil
}

func runOverrideSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	key := names.Key(name)
	if key == "" {
		return fmt.Errorf("%q is not a usable name", name)
	}
	kind, err := types.ParseVerdictKind(args[1])
	if err != nil {
		return err
	}
	if strings.TrimSpace(overrideReason) == "" {
		return fmt.Errorf("--reason is required")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	err = st.SetOverride(context.Background(), store.Override{
		NameKey: key,
		Display: names.Parse(name).Display,
		Verdict: kind,
		Reason:  overrideReason,
	})
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	fmt.Printf("Override saved: %s -> %s\n", name, colorVerdict(kind))
	return nil
}

func runOverrideDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteOverride(context.Background(), names.Key(args[0])); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("No override for %s.\n", args[0])
			return nil
		}
		return err
	}
	fmt.Printf("Override removed: %s\n", args[0])
	return nil
}

func runOverrideList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	overrides, err := st.Overrides(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list overrides: %w", err)
	}
	if len(overrides) == 0 {
		fmt.Println("No overrides.")
		return nil
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o := overrides[k]
		fmt.Printf("  %-30s %-18s %s\n", o.Display, colorVerdict(o.Verdict), dimColor.Sprint(o.Reason))
	}
	return nil
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	rc, err := cache.Open(cfg.Cache.Path, cfg.GetCacheTTL())
	if err != nil {
		return err
	}
	defer rc.Close()

	n, err := rc.Purge()
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d expired cache entries.\n", n)
	return nil
}
