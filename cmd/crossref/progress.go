package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"crossref/internal/assess"
	"crossref/internal/runner"
	"crossref/internal/types"
)

// =============================================================================
// TERMINAL OUTPUT
// =============================================================================

var (
	boldColor   = color.New(color.Bold)
	dimColor    = color.New(color.Faint)
	tagColor    = color.New(color.FgMagenta, color.Bold)
	warnColor   = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed)
	headerColor = color.New(color.FgCyan, color.Bold)

	verdictColors = map[types.VerdictKind]*color.Color{
		types.ConfirmedMatch: color.New(color.FgRed, color.Bold),
		types.LikelyMatch:    color.New(color.FgRed),
		types.NeedsReview:    color.New(color.FgYellow),
		types.PossibleMatch:  color.New(color.FgCyan),
		types.NoMatch:        color.New(color.FgGreen),
	}
)

// setupColor disables ANSI output for --no-color or when f is not a terminal.
func setupColor(disabled bool, f *os.File) {
	if disabled || f == nil || !term.IsTerminal(int(f.Fd())) {
		color.NoColor = true
	}
}

func colorVerdict(v types.VerdictKind) string {
	if c, ok := verdictColors[v]; ok {
		return c.Sprint(string(v))
	}
	return string(v)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

// printProgress writes one line per processed individual.
func printProgress(w io.Writer, p runner.Progress) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d] %s -> %s (%.2f)", p.Index, p.Total, boldColor.Sprint(p.Subject), colorVerdict(p.Verdict.Kind), p.Verdict.Score)
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, " %s", tagColor.Sprintf("[%s]", strings.Join(p.Tags, ",")))
	}
	if o := p.Verdict.Online; o != nil && (o.Status == types.StatusTimeout || o.Status == types.StatusError) {
		fmt.Fprintf(&b, " %s", warnColor.Sprintf("online %s", o.Status))
	}
	fmt.Fprintf(&b, " %s", dimColor.Sprintf("%d feature(s), %s", p.Features, formatDuration(p.Elapsed)))
	if p.ETA > 0 {
		fmt.Fprintf(&b, " %s", dimColor.Sprintf("ETA %s", formatDuration(p.ETA)))
	}
	fmt.Fprintln(w, b.String())
}

// printVerdict writes a detailed block for one verdict.
func printVerdict(w io.Writer, v types.Verdict) {
	fmt.Fprintf(w, "%s  %s  score %.2f", boldColor.Sprint(v.Subject), colorVerdict(v.Kind), v.Score)
	if tags := assess.Tags(v); len(tags) > 0 {
		fmt.Fprintf(w, "  %s", tagColor.Sprintf("[%s]", strings.Join(tags, ",")))
	}
	if v.Overridden {
		fmt.Fprintf(w, "  %s", warnColor.Sprint("(overridden)"))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  rationale: %s\n", v.Rationale)
	if v.EvidenceSummary != "" {
		fmt.Fprintf(w, "  evidence:  %s\n", v.EvidenceSummary)
	}
	for _, fp := range v.FalsePositiveIndicators {
		fmt.Fprintf(w, "  %s %s\n", warnColor.Sprint("caution:"), fp)
	}
	for _, m := range v.Static {
		fmt.Fprintf(w, "  %s %s @%d: %s\n", dimColor.Sprint("book"), m.Type, m.Offset, m.Context)
	}
	if v.Online != nil {
		o := v.Online
		fmt.Fprintf(w, "  %s %s, tier %s, %d result(s)", dimColor.Sprint("portal"), o.Status, o.Tier, o.TotalResults)
		if o.Error != "" {
			fmt.Fprintf(w, ", %s", errorColor.Sprint(o.Error))
		}
		fmt.Fprintln(w)
		for _, e := range o.Entries {
			fmt.Fprintf(w, "    - %s\n", e.Filename)
		}
	}
}

func sortedKinds(m map[types.VerdictKind]int) []types.VerdictKind {
	kinds := make([]types.VerdictKind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Rank() > kinds[j].Rank() })
	return kinds
}

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, sum *runner.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerColor.Sprint("Run summary"))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintf(w, "  Run ID:        %s\n", sum.RunID)
	fmt.Fprintf(w, "  Features:      %d pending, %d without a searchable individual\n", sum.Candidates, sum.Unusable)
	fmt.Fprintf(w, "  Individuals:   %d processed of %d (%d excluded by failure cap)\n", sum.Processed, sum.Subjects, sum.Excluded)
	for _, k := range sortedKinds(sum.ByVerdict) {
		fmt.Fprintf(w, "    %-18s %d\n", colorVerdict(k), sum.ByVerdict[k])
	}
	fmt.Fprintf(w, "  Online:        %d timeouts, %d errors, %d skipped\n", sum.Timeouts, sum.Errors, sum.Skipped)
	if sum.OnlineDisabled {
		fmt.Fprintf(w, "  %s\n", warnColor.Sprint("Online search was disabled during this run; verdicts are provisional"))
	}
	fmt.Fprintf(w, "  Writes:        %d written, %d kept existing, %d provisional", sum.Written, sum.Kept, sum.Provisional)
	if sum.WriteFailures > 0 {
		fmt.Fprintf(w, ", %s", errorColor.Sprintf("%d failed", sum.WriteFailures))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Duration:      %s\n", formatDuration(sum.Duration))
	fmt.Fprintln(w, strings.Repeat("─", 50))
}

// printPreview writes the dry-run table.
func printPreview(w io.Writer, rows []runner.PreviewRow) {
	fmt.Fprintln(w, headerColor.Sprint("Dry run: static prescan"))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	if len(rows) == 0 {
		fmt.Fprintln(w, "  Nothing to process.")
		return
	}
	for _, r := range rows {
		static := string(r.Static)
		if static == "" {
			static = "-"
		}
		fmt.Fprintf(w, "  %-30s %-16s %-18s %s\n", r.Subject, static, colorVerdict(r.Verdict), dimColor.Sprint(strings.Join(r.Features, ",")))
	}
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintf(w, "%d individual(s). Nothing was searched online or written.\n", len(rows))
}
