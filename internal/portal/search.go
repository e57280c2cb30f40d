package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"crossref/internal/logging"
	"crossref/internal/names"
	"crossref/internal/resilience"
	"crossref/internal/types"
)

const staleAttr = "data-crossref-stale"

var showingRE = regexp.MustCompile(`(?i)showing\s+([\d,]+)\s+(?:to|-|–)\s+([\d,]+)\s+of\s+([\d,]+)`)

// parseShowingCount reads N from "Showing X to Y of N".
func parseShowingCount(summary string) (int, bool) {
	m := showingRE.FindStringSubmatch(summary)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[3], ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// pageResults is what the extraction script returns.
type pageResults struct {
	Rows    []types.SearchEntry `json:"rows"`
	Visible int                 `json:"visible"`
	Summary string              `json:"summary"`
}

const markStaleJS = `(sels, attr) => {
	for (const s of sels) {
		document.querySelectorAll(s).forEach(e => e.setAttribute(attr, "1"));
	}
}`

const extractJS = `(rowSel, linkSel, snippetSel, summarySel, max) => {
	const visible = e => !!(e.offsetWidth || e.offsetHeight || e.getClientRects().length);
	const rows = Array.from(document.querySelectorAll(rowSel)).filter(visible);
	const out = [];
	for (const r of rows.slice(0, max)) {
		const a = linkSel ? r.querySelector(linkSel) : null;
		const s = snippetSel ? r.querySelector(snippetSel) : null;
		out.push({
			filename: ((a && a.textContent) || "").trim(),
			url: (a && a.href) || "",
			snippet: ((s ? s.textContent : r.textContent) || "").replace(/\s+/g, " ").trim(),
		});
	}
	const sum = summarySel ? document.querySelector(summarySel) : null;
	return {rows: out, visible: rows.length, summary: sum ? sum.textContent : ""};
}`

// SearchOne runs a single query. Cached results are returned without touching
// the browser. Failed attempts are retried after re-validating the session.
func (c *Client) SearchOne(ctx context.Context, query string) (types.OnlineResult, error) {
	if err := c.acquire(ctx); err != nil {
		return types.OnlineResult{}, err
	}
	defer c.release()
	return c.searchOneLocked(ctx, query)
}

func (c *Client) searchOneLocked(ctx context.Context, query string) (types.OnlineResult, error) {
	if c.cache != nil {
		if res, ok := c.cache.Get(query); ok {
			return *res, nil
		}
	}

	retry := c.backoff
	retry.MaxRetries = c.cfg.SearchRetries
	retry.OnRetry = func(attempt int, err error) {
		logging.PortalWarn("Retrying %q (attempt %d): %v", query, attempt, err)
	}

	attempt := 0
	res, err := resilience.RetryWithResult(ctx, retry, func(ctx context.Context) (types.OnlineResult, error) {
		attempt++
		if attempt > 1 || c.State() != StateSearchReady {
			if err := c.ensureReadyLocked(ctx); err != nil {
				if errors.Is(err, ErrStopped) {
					return types.OnlineResult{}, resilience.Permanent(err)
				}
				return types.OnlineResult{}, err
			}
		}
		res, err := c.submit(ctx, query)
		if err != nil {
			if ctx.Err() == nil {
				c.noteFailure(err)
			}
			return res, err
		}
		c.consecutiveErrs = 0
		return res, nil
	})
	if err != nil {
		return types.OnlineResult{Subject: query, Variant: query, Tier: types.TierNone, Status: statusFor(err), Error: err.Error()}, err
	}

	if c.cache != nil {
		if err := c.cache.Put(query, res); err != nil {
			logging.CacheWarn("store %q: %v", query, err)
		}
	}
	return res, nil
}

// submit types the query, waits for the result area and parses it.
func (c *Client) submit(ctx context.Context, query string) (types.OnlineResult, error) {
	c.stateMu.RLock()
	page := c.page
	c.stateMu.RUnlock()
	if page == nil || c.State() != StateSearchReady {
		return types.OnlineResult{}, ErrNotReady
	}

	c.setState(StateSearching)
	defer func() {
		if c.State() == StateSearching {
			c.setState(StateSearchReady)
		}
	}()

	timer := logging.StartTimer(logging.CategoryPortal, "search "+query)
	defer timer.StopWithThreshold(c.resultTimeout)

	p := page.Context(ctx)

	box, err := p.Timeout(c.gateTimeout).Element(c.cfg.SearchInput)
	if err != nil {
		return types.OnlineResult{}, fmt.Errorf("%w: %v", ErrNoSearchInput, err)
	}

	// Existing result areas belong to the previous query.
	if _, err := p.Eval(markStaleJS, c.cfg.ResultArea, staleAttr); err != nil {
		return types.OnlineResult{}, fmt.Errorf("mark stale results: %w", err)
	}

	if err := box.SelectAllText(); err != nil {
		return types.OnlineResult{}, fmt.Errorf("clear search input: %w", err)
	}
	if err := box.Input(query); err != nil {
		return types.OnlineResult{}, fmt.Errorf("type query: %w", err)
	}
	if c.cfg.Submit != "" {
		btn, err := p.Timeout(c.gateTimeout).Element(c.cfg.Submit)
		if err != nil {
			return types.OnlineResult{}, fmt.Errorf("find submit: %w", err)
		}
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return types.OnlineResult{}, fmt.Errorf("click submit: %w", err)
		}
	} else if err := box.Type(input.Enter); err != nil {
		return types.OnlineResult{}, fmt.Errorf("submit query: %w", err)
	}

	if err := c.waitResults(p); err != nil {
		return types.OnlineResult{}, err
	}

	pr, err := c.extract(p)
	if err != nil {
		return types.OnlineResult{}, err
	}

	total, ok := parseShowingCount(pr.Summary)
	if !ok {
		total = pr.Visible
	}
	tier, why := AssessTier(query, total, pr.Rows)
	logging.PortalDebug("%q: %d results, tier %s", query, total, tier)

	return types.OnlineResult{
		Subject:      query,
		Variant:      query,
		TotalResults: total,
		Entries:      pr.Rows,
		Tier:         tier,
		Rationale:    why,
		Status:       types.StatusSearched,
	}, nil
}

func (c *Client) waitResults(p *rod.Page) error {
	race := p.Timeout(c.resultTimeout).Race()
	for _, sel := range c.cfg.ResultArea {
		race = race.Element(sel + ":not([" + staleAttr + "])")
	}
	if _, err := race.Do(); err != nil {
		return fmt.Errorf("wait for results: %w", err)
	}
	return nil
}

func (c *Client) extract(p *rod.Page) (pageResults, error) {
	var pr pageResults
	res, err := p.Eval(extractJS, c.cfg.ResultRow, c.cfg.ResultLink, c.cfg.Snippet, c.cfg.Summary, c.cfg.MaxResults)
	if err != nil {
		return pr, fmt.Errorf("extract results: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return pr, fmt.Errorf("extract results: %w", err)
	}
	if err := json.Unmarshal(raw, &pr); err != nil {
		return pr, fmt.Errorf("decode results: %w", err)
	}
	return pr, nil
}

func statusFor(err error) types.SearchStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.StatusTimeout
	}
	return types.StatusError
}

// SearchWithVariations searches every variation of name, merging entries by
// filename. It stops early on a high-tier variant and skips the bare surname
// once a fuller variant returned results. The merged result carries the tier
// and rationale of the best variant and is keyed by name. If any variant
// failed before a high tier was found, the status reports the failure so the
// evidence is treated as incomplete.
func (c *Client) SearchWithVariations(ctx context.Context, name string) (types.OnlineResult, error) {
	variants := names.Variations(name, c.minSurname)
	if len(variants) == 0 {
		return types.SkippedResult(name, "no searchable variations"), nil
	}

	if err := c.acquire(ctx); err != nil {
		return types.OnlineResult{Subject: name, Tier: types.TierNone, Status: statusFor(err), Error: err.Error()}, err
	}
	defer c.release()

	start := time.Now()
	merged := types.OnlineResult{Subject: name, Tier: types.TierNone, Status: types.StatusSearched, Rationale: "no results"}
	seen := make(map[string]bool)
	fullHit := false
	var lastErr error

	for _, q := range variants {
		if fullHit && names.IsSurnameOnly(name, q) {
			logging.PortalDebug("skip surname-only %q after full-name hit", q)
			continue
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		res, err := c.searchOneLocked(ctx, q)
		merged.Variants = append(merged.Variants, q)
		if err != nil {
			lastErr = err
			continue
		}

		merged.TotalResults = max(merged.TotalResults, res.TotalResults)
		for _, e := range res.Entries {
			key := strings.ToLower(e.Filename)
			if key == "" {
				key = e.URL
			}
			if seen[key] || len(merged.Entries) >= c.cfg.MaxResults {
				continue
			}
			seen[key] = true
			merged.Entries = append(merged.Entries, e)
		}
		if res.Cached {
			merged.Cached = true
		}
		if merged.Variant == "" || res.Tier.Rank() > merged.Tier.Rank() {
			merged.Tier = res.Tier
			merged.Variant = q
			merged.Rationale = fmt.Sprintf("%s (%q)", res.Rationale, q)
		}
		if res.TotalResults > 0 && !names.IsSurnameOnly(name, q) {
			fullHit = true
		}
		if res.Tier == types.TierHigh {
			break
		}
	}

	if lastErr != nil && merged.Tier != types.TierHigh {
		merged.Status = statusFor(lastErr)
		merged.Error = lastErr.Error()
		logging.PortalWarn("Incomplete search for %q after %v: %v", name, time.Since(start), lastErr)
		return merged, lastErr
	}
	return merged, nil
}
