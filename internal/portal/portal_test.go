package portal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossref/internal/config"
	"crossref/internal/resilience"
	"crossref/internal/types"
)

func TestAssessTier(t *testing.T) {
	entry := func(snippet string) []types.SearchEntry {
		return []types.SearchEntry{{Filename: "EFTA0001.pdf", Snippet: snippet}}
	}
	tests := []struct {
		name    string
		query   string
		total   int
		entries []types.SearchEntry
		want    types.Tier
	}{
		{"no results", "Tom Kundig", 0, nil, types.TierNone},
		{"exact personal", "Tom Kundig", 1, entry("Flight manifest: passengers Tom Kundig, J. Doe"), types.TierHigh},
		{"exact both", "Tom Kundig", 1, entry("Tom Kundig invoice for flight"), types.TierMedium},
		{"exact vendor", "Tom Kundig", 1, entry("Tom Kundig construction invoice, plumbing"), types.TierLow},
		{"exact neither", "Tom Kundig", 1, entry("Remarks by Tom Kundig on design"), types.TierMedium},
		{"case insensitive", "Tom Kundig", 1, entry("TOM   KUNDIG phone"), types.TierHigh},
		{"surname personal", "Tom Kundig", 1, entry("Mr. Kundig visited the island"), types.TierMedium},
		{"surname only", "Tom Kundig", 1, entry("The Kundig estate"), types.TierLow},
		{"surname inside word", "Tom Kundig", 1, entry("Kundigson traveled"), types.TierLow},
		{"name absent", "Tom Kundig", 3, entry("unrelated text"), types.TierLow},
		{"count without rows", "Tom Kundig", 7, nil, types.TierLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, why := AssessTier(tt.query, tt.total, tt.entries)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, why)
		})
	}
}

func TestVocabularyStemming(t *testing.T) {
	p, v := vocabulary("passengers visited; flights scheduled")
	assert.True(t, p)
	assert.False(t, v)

	p, v = vocabulary("Invoices for repairs and deliveries")
	assert.False(t, p)
	assert.True(t, v)
}

func TestParseShowingCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"Showing 1 to 10 of 42 results", 42, true},
		{"showing 11 - 20 of 1,234", 1234, true},
		{"  Showing 1 to 1 of 1 ", 1, true},
		{"No documents found", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		n, ok := parseShowingCount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, n, tt.in)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "search_ready", StateSearchReady.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.True(t, strings.HasPrefix(State(99).String(), "state("))
}

// memCache is an in-memory ResultCache.
type memCache struct {
	mu   sync.Mutex
	data map[string]types.OnlineResult
	puts []string
}

func (m *memCache) Get(q string) (*types.OnlineResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[q]
	if !ok {
		return nil, false
	}
	r.Cached = true
	return &r, true
}

func (m *memCache) Put(q string, r types.OnlineResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, q)
	m.data[q] = r
	return nil
}

func searched(q string, tier types.Tier, files ...string) types.OnlineResult {
	r := types.OnlineResult{Subject: q, Variant: q, TotalResults: len(files), Tier: tier, Status: types.StatusSearched, Rationale: "test"}
	for _, f := range files {
		r.Entries = append(r.Entries, types.SearchEntry{Filename: f})
	}
	return r
}

func offlineClient(t *testing.T, c *memCache) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Portal.URL = "" // never launches a browser
	rc := resilience.DefaultRetryConfig()
	rc.InitialInterval = time.Millisecond
	rc.MaxInterval = time.Millisecond
	cl := New(cfg, WithCache(c), WithRetryConfig(rc))
	t.Cleanup(func() { _ = cl.Stop() })
	return cl
}

func TestSearchWithVariations_MergesAndSkipsSurname(t *testing.T) {
	c := &memCache{data: map[string]types.OnlineResult{
		"Tom Kundig":  searched("Tom Kundig", types.TierMedium, "a.pdf", "b.pdf"),
		"Kundig, Tom": searched("Kundig, Tom", types.TierLow, "B.pdf", "c.pdf"),
	}}
	cl := offlineClient(t, c)

	res, err := cl.SearchWithVariations(context.Background(), "Tom Kundig")
	require.NoError(t, err)
	assert.Equal(t, "Tom Kundig", res.Subject)
	assert.Equal(t, types.StatusSearched, res.Status)
	assert.Equal(t, types.TierMedium, res.Tier)
	assert.Equal(t, "Tom Kundig", res.Variant)
	assert.Equal(t, []string{"Tom Kundig", "Kundig, Tom"}, res.Variants)
	assert.Len(t, res.Entries, 3)
	assert.True(t, res.Cached)
	assert.Empty(t, c.puts)
}

func TestSearchWithVariations_ShortCircuitsOnHigh(t *testing.T) {
	c := &memCache{data: map[string]types.OnlineResult{
		"Tom Kundig": searched("Tom Kundig", types.TierHigh, "a.pdf"),
	}}
	cl := offlineClient(t, c)

	res, err := cl.SearchWithVariations(context.Background(), "Tom Kundig")
	require.NoError(t, err)
	assert.Equal(t, types.TierHigh, res.Tier)
	assert.Equal(t, []string{"Tom Kundig"}, res.Variants)
}

func TestSearchWithVariations_SurnameTriedWhenFullNamesEmpty(t *testing.T) {
	c := &memCache{data: map[string]types.OnlineResult{
		"Tom Kundig":  searched("Tom Kundig", types.TierNone),
		"Kundig, Tom": searched("Kundig, Tom", types.TierNone),
		"Kundig":      searched("Kundig", types.TierLow, "x.pdf"),
	}}
	cl := offlineClient(t, c)

	res, err := cl.SearchWithVariations(context.Background(), "Tom Kundig")
	require.NoError(t, err)
	assert.Equal(t, []string{"Tom Kundig", "Kundig, Tom", "Kundig"}, res.Variants)
	assert.Equal(t, types.TierLow, res.Tier)
	assert.Equal(t, "Kundig", res.Variant)
}

func TestSearchWithVariations_IncompleteWhenVariantFails(t *testing.T) {
	c := &memCache{data: map[string]types.OnlineResult{
		"Tom Kundig": searched("Tom Kundig", types.TierMedium, "a.pdf"),
	}}
	cl := offlineClient(t, c)

	res, err := cl.SearchWithVariations(context.Background(), "Tom Kundig")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.Equal(t, types.StatusError, res.Status)
	assert.Equal(t, types.TierMedium, res.Tier, "partial evidence is kept")
	assert.NotEmpty(t, res.Error)
}

func TestSearchWithVariations_NoVariants(t *testing.T) {
	cl := offlineClient(t, &memCache{data: map[string]types.OnlineResult{}})
	res, err := cl.SearchWithVariations(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSkipped, res.Status)
}

func TestStopIsIdempotent(t *testing.T) {
	cl := offlineClient(t, &memCache{data: map[string]types.OnlineResult{}})
	require.NoError(t, cl.Stop())
	require.NoError(t, cl.Stop())
	assert.Equal(t, StateStopped, cl.State())
	assert.ErrorIs(t, cl.EnsureReady(context.Background()), ErrStopped)
}

func TestSessionAbsentUntilStarted(t *testing.T) {
	cl := offlineClient(t, &memCache{data: map[string]types.OnlineResult{}})
	_, ok := cl.Session()
	assert.False(t, ok)

	require.Error(t, cl.Start(context.Background()))
	_, ok = cl.Session()
	assert.False(t, ok, "no page is opened without a portal url")
}
