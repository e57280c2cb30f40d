package main

import (
	"errors"
	"fmt"

	"crossref/internal/assess"
	"crossref/internal/cache"
	"crossref/internal/config"
	"crossref/internal/corpus"
	"crossref/internal/logging"
	"crossref/internal/names"
	"crossref/internal/portal"
	"crossref/internal/runner"
	"crossref/internal/store"
)

// =============================================================================
// WIRING
// =============================================================================

// pipeline holds everything a run or lookup needs. close releases it.
type pipeline struct {
	store  *store.Store
	cache  *cache.Store
	runner *runner.Runner
}

func openStore(c *config.Config) (*store.Store, error) {
	st, err := store.Open(c.Store.Path, c.Store.Driver)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", c.Store.Path, err)
	}
	return st, nil
}

// buildPipeline wires the normalizer, matcher, assessor, store and (unless
// opts.StaticOnly) the portal client.
func buildPipeline(c *config.Config, opts runner.Options) (*pipeline, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "buildPipeline")
	defer timer.Stop()

	if !opts.StaticOnly {
		if err := c.ValidateOnline(); err != nil {
			return nil, fmt.Errorf("%w (use --static-only to skip the portal)", err)
		}
	}

	book, err := corpus.Load(c.Corpus.Path)
	if err != nil {
		return nil, fmt.Errorf("load reference corpus: %w", err)
	}
	matcher := corpus.NewMatcher(book, corpus.MatchOptions{
		MinSurnameLen: c.Matching.MinSurnameLength,
		ContextChars:  c.Corpus.ContextChars,
		MaxHits:       c.Corpus.MaxHitsPerPattern,
	})
	normalizer := names.NewNormalizer(names.Options{
		MinWords:  c.Matching.MinWords,
		SkipWords: c.Matching.SkipWords,
	})
	assessor := assess.New(assess.Options{
		MinSurnameLen:       c.Matching.MinSurnameLength,
		HighResultThreshold: c.Matching.HighResultThreshold,
		ExtraCommonSurnames: c.Matching.ExtraCommonSurnames,
	})

	st, err := openStore(c)
	if err != nil {
		return nil, err
	}
	p := &pipeline{store: st}

	deps := runner.Deps{
		Normalizer: normalizer,
		Matcher:    matcher,
		Assessor:   assessor,
		Store:      st,
	}
	if !opts.StaticOnly {
		var clientOpts []portal.Option
		if c.Cache.Enabled {
			rc, err := cache.Open(c.Cache.Path, c.GetCacheTTL())
			if err != nil {
				logging.BootWarn("Result cache unavailable, continuing without it: %v", err)
			} else {
				p.cache = rc
				clientOpts = append(clientOpts, portal.WithCache(rc))
			}
		}
		deps.Searcher = portal.New(c, clientOpts...)
	}

	if opts.PerNameTimeout <= 0 {
		opts.PerNameTimeout = c.GetPerNameTimeout()
	}
	if opts.FailureCap <= 0 {
		opts.FailureCap = c.Runner.FailureCap
	}
	if opts.StaticWorkers <= 0 {
		opts.StaticWorkers = c.GetStaticWorkers()
	}
	p.runner = runner.New(deps, opts)

	logging.Boot("Pipeline ready: corpus %s (%d bytes), store %s, online=%v",
		book.Source, len(book.Text), st.Path(), !opts.StaticOnly)
	return p, nil
}

func (p *pipeline) close() error {
	var errs []error
	if p.cache != nil {
		errs = append(errs, p.cache.Close())
	}
	if p.store != nil {
		errs = append(errs, p.store.Close())
	}
	return errors.Join(errs...)
}
