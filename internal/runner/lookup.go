package runner

import (
	"context"
	"errors"
	"fmt"

	"crossref/internal/assess"
	"crossref/internal/types"
)

// ErrNoSubjects is returned by Lookup when the input names nobody searchable.
var ErrNoSubjects = errors.New("no searchable individual")

// LookupResult is the outcome of an ad-hoc lookup.
type LookupResult struct {
	Individuals []types.Verdict
	Combined    types.Verdict
}

// Lookup runs one raw name through the same pipeline as Run without touching
// the worklist or persisting anything. Stored review overrides are not
// applied.
func (r *Runner) Lookup(ctx context.Context, raw string) (*LookupResult, error) {
	subjects := r.deps.Normalizer.Normalize(raw)
	if len(subjects) == 0 {
		return nil, fmt.Errorf("%q: %w", raw, ErrNoSubjects)
	}

	online := !r.opts.StaticOnly
	if online {
		if err := r.deps.Searcher.Start(ctx); err != nil {
			return nil, fmt.Errorf("start online search: %w", err)
		}
		defer r.deps.Searcher.Stop()
	}

	out := &LookupResult{}
	for _, subj := range subjects {
		hits, err := r.deps.Matcher.Match(subj)
		if err != nil {
			return nil, fmt.Errorf("static scan %q: %w", subj.Display, err)
		}

		var res *types.OnlineResult
		if online {
			o, err := r.searchWithTimeout(ctx, subj.Display)
			if err != nil && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res = &o
			if err != nil {
				if err := r.deps.Searcher.EnsureReady(ctx); err != nil {
					online = false
				}
			}
		}
		out.Individuals = append(out.Individuals, r.deps.Assessor.Assess(subj, hits, res))
	}
	out.Combined, _ = assess.Strongest(out.Individuals...)
	return out, nil
}
