// Package runner drives a batch of worklist names through normalization,
// static and online evidence gathering and assessment, then persists one
// verdict per feature.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"crossref/internal/assess"
	"crossref/internal/corpus"
	"crossref/internal/logging"
	"crossref/internal/names"
	"crossref/internal/portal"
	"crossref/internal/store"
	"crossref/internal/types"
)

// VerdictStore is the persistence the runner needs.
type VerdictStore interface {
	Candidates(ctx context.Context, includeDone bool) ([]types.Candidate, error)
	SaveVerdict(ctx context.Context, rec store.VerdictRecord, force bool) (bool, error)
	IncrementFailure(ctx context.Context, key, display, lastErr string) (int, error)
	ResetFailure(ctx context.Context, key string) error
	FailureCounts(ctx context.Context) (map[string]int, error)
	Overrides(ctx context.Context) (map[string]store.Override, error)
}

// Options controls a run.
type Options struct {
	StaticOnly     bool
	DryRun         bool
	Reprocess      bool
	Limit          int // unique individuals; 0 = no limit
	PerNameTimeout time.Duration
	FailureCap     int
	StaticWorkers  int
	Progress       func(Progress)
}

// Progress is reported after each individual.
type Progress struct {
	Index    int
	Total    int
	Subject  string
	Verdict  types.Verdict
	Tags     []string
	Features int
	Elapsed  time.Duration
	ETA      time.Duration
}

// PreviewRow is one dry-run line.
type PreviewRow struct {
	Subject  string
	Features []string
	Static   types.MatchType
	Verdict  types.VerdictKind
}

// Reasons recorded on skipped online results.
const (
	ReasonStaticOnly        = "static-only run"
	ReasonPortalUnavailable = "online search unavailable: portal did not start"
	ReasonDisabledMidRun    = "online checking disabled partway through this run after the portal could not recover"
)

// Summary reports what a run did.
type Summary struct {
	RunID          string
	Candidates     int
	Subjects       int
	Processed      int
	Unusable       int
	Excluded       int
	ByVerdict      map[types.VerdictKind]int
	Timeouts       int
	Errors         int
	Skipped        int
	Written        int
	Kept           int
	Provisional    int
	WriteFailures  int
	OnlineDisabled bool
	Duration       time.Duration
	Preview        []PreviewRow
}

// Deps are the collaborators of a Runner. Searcher may be nil for static-only
// use.
type Deps struct {
	Normalizer *names.Normalizer
	Matcher    *corpus.Matcher
	Assessor   *assess.Assessor
	Searcher   portal.Searcher
	Store      VerdictStore
}

// Runner processes the worklist.
type Runner struct {
	deps Deps
	opts Options
}

// New builds a Runner.
func New(deps Deps, opts Options) *Runner {
	if opts.PerNameTimeout <= 0 {
		opts.PerNameTimeout = 60 * time.Second
	}
	if opts.FailureCap <= 0 {
		opts.FailureCap = 3
	}
	if opts.StaticWorkers <= 0 {
		opts.StaticWorkers = runtime.GOMAXPROCS(0)
	}
	if deps.Searcher == nil {
		opts.StaticOnly = true
	}
	return &Runner{deps: deps, opts: opts}
}

// Run processes every pending feature. Individual failures are recorded and
// the batch continues; only a static scan error or a store read error aborts.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: uuid.NewString(), ByVerdict: make(map[types.VerdictKind]int)}
	log := logging.Get(logging.CategoryRunner).With("run", sum.RunID)
	defer func() { sum.Duration = time.Since(start) }()

	candidates, err := r.deps.Store.Candidates(ctx, r.opts.Reprocess)
	if err != nil {
		return sum, fmt.Errorf("load worklist: %w", err)
	}
	sum.Candidates = len(candidates)

	p := buildPlan(r.deps.Normalizer, candidates)
	sum.Unusable = len(p.unusable)

	failures, err := r.deps.Store.FailureCounts(ctx)
	if err != nil {
		return sum, fmt.Errorf("load failure counters: %w", err)
	}
	var work []*subjectWork
	for _, sw := range p.subjects {
		if failures[sw.subject.Key] >= r.opts.FailureCap {
			log.Warn("Excluding %q: %d failures", sw.subject.Display, failures[sw.subject.Key])
			sum.Excluded++
			continue
		}
		work = append(work, sw)
	}
	if r.opts.Limit > 0 && len(work) > r.opts.Limit {
		work = work[:r.opts.Limit]
	}
	sum.Subjects = len(work)
	log.Info("Run %s: %d candidates, %d individuals, %d unusable, %d excluded",
		sum.RunID, sum.Candidates, sum.Subjects, sum.Unusable, sum.Excluded)

	if err := r.prescan(ctx, work); err != nil {
		return sum, err
	}

	if r.opts.DryRun {
		for _, sw := range work {
			v := r.deps.Assessor.Assess(sw.subject, sw.static, nil)
			sum.Preview = append(sum.Preview, PreviewRow{
				Subject:  sw.subject.Display,
				Features: sw.featureIDs,
				Static:   types.StrongestStatic(sw.static),
				Verdict:  v.Kind,
			})
			sum.ByVerdict[v.Kind]++
		}
		return sum, nil
	}

	for _, c := range p.unusable {
		v := types.Verdict{
			Subject:   c.RawName,
			Kind:      types.NoMatch,
			Rationale: "no searchable individual",
			Online:    ptr(types.SkippedResult(c.RawName, "no searchable individual")),
		}
		r.write(ctx, sum, store.VerdictRecord{FeatureID: c.FeatureID, Verdict: v, RunID: sum.RunID})
	}

	overrides, err := r.deps.Store.Overrides(ctx)
	if err != nil {
		return sum, fmt.Errorf("load overrides: %w", err)
	}

	online := !r.opts.StaticOnly && len(work) > 0
	offlineReason := ""
	if online {
		if err := r.deps.Searcher.Start(ctx); err != nil {
			logging.RunnerError("Online search unavailable, continuing static-only: %v", err)
			online = false
			offlineReason = ReasonPortalUnavailable
			sum.OnlineDisabled = true
		}
		defer func() {
			if err := r.deps.Searcher.Stop(); err != nil {
				logging.RunnerWarn("Stop searcher: %v", err)
			}
		}()
	}

	verdicts := make(map[string]types.Verdict)
	provisional := make(map[string]bool)
	loopStart := time.Now()

	for i, sw := range work {
		if err := ctx.Err(); err != nil {
			log.Warn("Run interrupted after %d/%d individuals", i, len(work))
			return sum, err
		}
		subjStart := time.Now()
		subj := sw.subject

		var res *types.OnlineResult
		failed := false
		switch {
		case online:
			out, err := r.searchWithTimeout(ctx, subj.Display)
			res = &out
			if err != nil {
				if ctx.Err() != nil {
					return sum, ctx.Err()
				}
				failed = true
				if out.Status == types.StatusTimeout {
					sum.Timeouts++
				} else {
					sum.Errors++
				}
				log.Warn("Online search for %q: %s: %v", subj.Display, out.Status, err)
				if err := r.deps.Searcher.EnsureReady(ctx); err != nil {
					logging.RunnerError("Portal could not recover, continuing static-only: %v", err)
					online = false
					offlineReason = ReasonDisabledMidRun
					sum.OnlineDisabled = true
				}
			}
		case r.opts.StaticOnly:
			res = ptr(types.SkippedResult(subj.Display, ReasonStaticOnly))
			sum.Skipped++
		default:
			res = ptr(types.SkippedResult(subj.Display, offlineReason))
			sum.Skipped++
		}

		v := r.deps.Assessor.Assess(subj, sw.static, res)
		if o, ok := overrides[subj.Key]; ok {
			v = assess.ApplyOverride(v, &assess.Override{Verdict: o.Verdict, Reason: o.Reason})
		}
		verdicts[subj.Key] = v
		provisional[subj.Key] = !r.opts.StaticOnly && !res.Status.Completed()
		sum.Processed++
		sum.ByVerdict[v.Kind]++

		writeFailed := false
		for _, fid := range sw.featureIDs {
			rec, ready := r.featureRecord(p.features[fid], verdicts, provisional, sum.RunID)
			if !ready {
				continue
			}
			if !r.write(ctx, sum, rec) {
				writeFailed = true
			}
		}

		r.trackFailure(ctx, subj, failed || writeFailed, provisional[subj.Key], res)

		if r.opts.Progress != nil {
			done := i + 1
			elapsed := time.Since(loopStart)
			eta := time.Duration(0)
			if done < len(work) {
				eta = elapsed / time.Duration(done) * time.Duration(len(work)-done)
			}
			r.opts.Progress(Progress{
				Index:    done,
				Total:    len(work),
				Subject:  subj.Display,
				Verdict:  v,
				Tags:     assess.Tags(v),
				Features: len(sw.featureIDs),
				Elapsed:  time.Since(subjStart),
				ETA:      eta,
			})
		}
	}

	log.Info("Run %s complete: %d written, %d kept, %d provisional, %d timeouts, %d errors",
		sum.RunID, sum.Written, sum.Kept, sum.Provisional, sum.Timeouts, sum.Errors)
	return sum, nil
}

// prescan runs the static matcher over every subject in parallel. The corpus
// is read-only so workers share it.
func (r *Runner) prescan(ctx context.Context, work []*subjectWork) error {
	timer := logging.StartTimer(logging.CategoryRunner, "static prescan")
	defer timer.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.StaticWorkers)
	for _, sw := range work {
		sw := sw
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hits, err := r.deps.Matcher.Match(sw.subject)
			if err != nil {
				return fmt.Errorf("static scan %q: %w", sw.subject.Display, err)
			}
			sw.static = hits
			return nil
		})
	}
	return g.Wait()
}

// searchWithTimeout bounds one online lookup by the per-name timeout. The
// search runs in its own goroutine; on deadline it is abandoned and the
// caller must re-check readiness before the next name.
func (r *Runner) searchWithTimeout(ctx context.Context, name string) (types.OnlineResult, error) {
	tctx, cancel := context.WithTimeout(ctx, r.opts.PerNameTimeout)
	defer cancel()

	type outcome struct {
		res types.OnlineResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := r.deps.Searcher.SearchWithVariations(tctx, name)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && o.res.Status.Completed() {
			o.res.Status = types.StatusError
		}
		if o.err != nil && o.res.Error == "" {
			o.res.Error = o.err.Error()
		}
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
			o.res.Status = types.StatusTimeout
		}
		if o.res.Subject == "" {
			o.res.Subject = name
		}
		return o.res, o.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return types.OnlineResult{Subject: name, Tier: types.TierNone, Status: types.StatusError, Error: ctx.Err().Error()}, ctx.Err()
		}
		err := fmt.Errorf("no result within %v: %w", r.opts.PerNameTimeout, context.DeadlineExceeded)
		return types.OnlineResult{Subject: name, Tier: types.TierNone, Status: types.StatusTimeout, Error: err.Error()}, err
	}
}

// featureRecord folds the verdicts of a feature's individuals. It reports
// false until every individual of the feature has a verdict.
func (r *Runner) featureRecord(fw *featureWork, verdicts map[string]types.Verdict, provisional map[string]bool, runID string) (store.VerdictRecord, bool) {
	var vs []types.Verdict
	var individuals []string
	prov := false
	for _, k := range fw.subjectKeys {
		v, ok := verdicts[k]
		if !ok {
			return store.VerdictRecord{}, false
		}
		vs = append(vs, v)
		individuals = append(individuals, v.Subject)
		prov = prov || provisional[k]
	}
	best, _ := assess.Strongest(vs...)
	return store.VerdictRecord{
		FeatureID:   fw.id,
		Verdict:     best,
		Individuals: individuals,
		Provisional: prov,
		RunID:       runID,
	}, true
}

// write persists one record and updates the summary. It reports success.
func (r *Runner) write(ctx context.Context, sum *Summary, rec store.VerdictRecord) bool {
	written, err := r.deps.Store.SaveVerdict(ctx, rec, r.opts.Reprocess)
	if err != nil {
		logging.RunnerError("Write verdict for %s: %v", rec.FeatureID, err)
		sum.WriteFailures++
		return false
	}
	switch {
	case !written:
		sum.Kept++
	case rec.Provisional:
		sum.Written++
		sum.Provisional++
	default:
		sum.Written++
	}
	return true
}

func (r *Runner) trackFailure(ctx context.Context, subj types.Subject, failed, provisional bool, res *types.OnlineResult) {
	if failed {
		msg := "write failed"
		if res != nil && res.Error != "" {
			msg = res.Error
		}
		n, err := r.deps.Store.IncrementFailure(ctx, subj.Key, subj.Display, msg)
		if err != nil {
			logging.RunnerWarn("Record failure for %q: %v", subj.Display, err)
			return
		}
		if n >= r.opts.FailureCap {
			logging.RunnerWarn("%q reached %d failures and will be skipped until cleared", subj.Display, n)
		}
		return
	}
	if !provisional {
		if err := r.deps.Store.ResetFailure(ctx, subj.Key); err != nil {
			logging.RunnerWarn("Reset failure for %q: %v", subj.Display, err)
		}
	}
}

func ptr[T any](v T) *T { return &v }
