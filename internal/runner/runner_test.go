package runner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"crossref/internal/assess"
	"crossref/internal/corpus"
	"crossref/internal/names"
	"crossref/internal/store"
	"crossref/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSearcher is a scripted portal.
type fakeSearcher struct {
	mu        sync.Mutex
	results   map[string]types.OnlineResult
	errs      map[string]error
	hang      map[string]bool
	startErr  error
	ensureErr error
	calls     []string
	started   int
	stopped   int
	ensured   int
}

func newFake() *fakeSearcher {
	return &fakeSearcher{
		results: map[string]types.OnlineResult{},
		errs:    map[string]error{},
		hang:    map[string]bool{},
	}
}

func (f *fakeSearcher) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeSearcher) EnsureReady(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	return f.ensureErr
}

func (f *fakeSearcher) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeSearcher) SearchWithVariations(ctx context.Context, name string) (types.OnlineResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	hang, err := f.hang[name], f.errs[name]
	res, ok := f.results[name]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return types.OnlineResult{Subject: name, Status: types.StatusTimeout}, ctx.Err()
	}
	if err != nil {
		return types.OnlineResult{Subject: name, Status: types.StatusError, Error: err.Error()}, err
	}
	if ok {
		return res, nil
	}
	return types.OnlineResult{Subject: name, Tier: types.TierNone, Status: types.StatusSearched}, nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const book = "KUNDIG, Tom   (206) 555-0100\nMax Gottschalk, guest of honor\n"

type fixture struct {
	store    *store.Store
	searcher *fakeSearcher
	deps     Deps
}

func newFixture(t *testing.T, candidates ...types.Candidate) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "crossref.db"), "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	_, err = st.AddFeatures(context.Background(), candidates)
	require.NoError(t, err)

	fs := newFake()
	return &fixture{
		store:    st,
		searcher: fs,
		deps: Deps{
			Normalizer: names.NewNormalizer(names.DefaultOptions()),
			Matcher:    corpus.NewMatcher(corpus.FromText("book", book), corpus.DefaultMatchOptions()),
			Assessor:   assess.New(assess.DefaultOptions()),
			Searcher:   fs,
			Store:      st,
		},
	}
}

func (f *fixture) verdict(t *testing.T, id string) *store.StoredVerdict {
	t.Helper()
	sv, err := f.store.GetVerdict(context.Background(), id)
	require.NoError(t, err)
	return sv
}

func (f *fixture) pending(t *testing.T) int {
	t.Helper()
	c, err := f.store.Candidates(context.Background(), false)
	require.NoError(t, err)
	return len(c)
}

func TestRun_DedupAndFanOut(t *testing.T) {
	f := newFixture(t,
		types.Candidate{FeatureID: "f1", RawName: "Tom Kundig, et al"},
		types.Candidate{FeatureID: "f2", RawName: "Kundig, Tom"},
		types.Candidate{FeatureID: "f3", RawName: "Jane & Max Gottschalk"},
		types.Candidate{FeatureID: "f4", RawName: "Anonymous"},
	)
	var progress []Progress
	r := New(f.deps, Options{Progress: func(p Progress) { progress = append(progress, p) }})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 4, sum.Candidates)
	assert.Equal(t, 3, sum.Subjects)
	assert.Equal(t, 1, sum.Unusable)
	assert.Equal(t, 4, sum.Written)
	assert.Equal(t, 3, f.searcher.callCount(), "one search per unique individual")
	assert.Equal(t, 1, f.searcher.started)
	assert.Equal(t, 1, f.searcher.stopped)
	assert.Len(t, progress, 3)
	assert.Equal(t, 3, progress[2].Total)

	for _, id := range []string{"f1", "f2"} {
		sv := f.verdict(t, id)
		assert.Equal(t, types.LikelyMatch, sv.Verdict, id)
		assert.Equal(t, "YES", sv.InBlackBook)
		assert.GreaterOrEqual(t, sv.Score, 0.6)
	}

	sv := f.verdict(t, "f3")
	assert.Equal(t, types.NeedsReview, sv.Verdict, "strongest of the two individuals")
	assert.JSONEq(t, `["Jane Gottschalk","Max Gottschalk"]`, sv.IndividualsSearched)

	sv = f.verdict(t, "f4")
	assert.Equal(t, types.NoMatch, sv.Verdict)
	assert.Equal(t, "no searchable individual", sv.Rationale)

	assert.Equal(t, 0, f.pending(t))
}

func TestRun_TimeoutIsProvisionalAndRetried(t *testing.T) {
	f := newFixture(t, types.Candidate{FeatureID: "f1", RawName: "Tom Kundig"})
	f.searcher.hang["Tom Kundig"] = true
	opts := Options{PerNameTimeout: 50 * time.Millisecond}

	sum, err := New(f.deps, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Timeouts)
	assert.Equal(t, 1, sum.Provisional)
	assert.Equal(t, 1, f.searcher.ensured)

	sv := f.verdict(t, "f1")
	assert.Equal(t, types.NeedsReview, sv.Verdict)
	assert.True(t, sv.Provisional)
	assert.Equal(t, types.StatusTimeout, sv.DOJStatus)
	assert.Equal(t, 1, f.pending(t), "provisional verdicts stay pending")

	counts, err := f.store.FailureCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts["tom kundig"])

	// The next run completes it and clears the counter.
	f.searcher.mu.Lock()
	f.searcher.hang = map[string]bool{}
	f.searcher.mu.Unlock()

	sum, err = New(f.deps, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Written)
	sv = f.verdict(t, "f1")
	assert.Equal(t, types.LikelyMatch, sv.Verdict)
	assert.False(t, sv.Provisional)
	assert.Equal(t, 0, f.pending(t))

	counts, err = f.store.FailureCounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestRun_FailureCapExcludes(t *testing.T) {
	f := newFixture(t, types.Candidate{FeatureID: "f1", RawName: "Tom Kundig"})
	for i := 0; i < 3; i++ {
		_, err := f.store.IncrementFailure(context.Background(), "tom kundig", "Tom Kundig", "timeout")
		require.NoError(t, err)
	}

	sum, err := New(f.deps, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Excluded)
	assert.Equal(t, 0, sum.Subjects)
	assert.Equal(t, 0, f.searcher.callCount())
	assert.Equal(t, 0, f.searcher.started, "no work, no browser")
	assert.Equal(t, 1, f.pending(t))
}

func TestRun_StartFailureDowngradesToStatic(t *testing.T) {
	f := newFixture(t, types.Candidate{FeatureID: "f1", RawName: "Tom Kundig"})
	f.searcher.startErr = errors.New("no chrome")

	sum, err := New(f.deps, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.OnlineDisabled)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, f.searcher.callCount())

	sv := f.verdict(t, "f1")
	assert.Equal(t, types.LikelyMatch, sv.Verdict)
	assert.True(t, sv.Provisional, "online evidence still owed")
	assert.Equal(t, types.StatusSkipped, sv.DOJStatus)
	assert.Contains(t, sv.Rationale, ReasonPortalUnavailable)
}

func TestRun_RecoveryFailureDowngradesRestOfRun(t *testing.T) {
	f := newFixture(t,
		types.Candidate{FeatureID: "f1", RawName: "Tom Kundig"},
		types.Candidate{FeatureID: "f2", RawName: "Max Gottschalk"},
	)
	f.searcher.errs["Tom Kundig"] = errors.New("browser crashed")
	f.searcher.ensureErr = errors.New("relaunch failed")

	sum, err := New(f.deps, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errors)
	assert.True(t, sum.OnlineDisabled)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, []string{"Tom Kundig"}, f.searcher.calls)

	assert.Equal(t, types.NeedsReview, f.verdict(t, "f1").Verdict)
	assert.Equal(t, types.StatusError, f.verdict(t, "f1").DOJStatus)
	f2 := f.verdict(t, "f2")
	assert.Equal(t, types.PossibleMatch, f2.Verdict)
	assert.True(t, f2.Provisional)
	assert.Contains(t, f2.Rationale, "partway through this run")
	assert.NotContains(t, f2.Rationale, ReasonStaticOnly)
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture(t,
		types.Candidate{FeatureID: "f1", RawName: "Tom Kundig"},
		types.Candidate{FeatureID: "f2", RawName: "Nobody Special"},
	)

	sum, err := New(f.deps, Options{DryRun: true}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Preview, 2)
	assert.Equal(t, types.MatchLastFirst, sum.Preview[0].Static)
	assert.Equal(t, types.LikelyMatch, sum.Preview[0].Verdict)
	assert.Equal(t, types.NoMatch, sum.Preview[1].Verdict)
	assert.Equal(t, 0, f.searcher.started)
	assert.Equal(t, 0, f.searcher.callCount())
	assert.Equal(t, 2, f.pending(t))

	_, err = f.store.GetVerdict(context.Background(), "f1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_StaticOnlyWithoutSearcher(t *testing.T) {
	f := newFixture(t, types.Candidate{FeatureID: "f1", RawName: "Tom Kundig"})
	deps := f.deps
	deps.Searcher = nil

	sum, err := New(deps, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	sv := f.verdict(t, "f1")
	assert.Equal(t, types.LikelyMatch, sv.Verdict)
	assert.False(t, sv.Provisional)
	assert.Equal(t, 0, f.pending(t))
}

func TestRun_LimitCountsIndividuals(t *testing.T) {
	f := newFixture(t,
		types.Candidate{FeatureID: "f1", RawName: "Tom Kundig"},
		types.Candidate{FeatureID: "f2", RawName: "Kundig, Tom"},
		types.Candidate{FeatureID: "f3", RawName: "Max Gottschalk"},
	)
	sum, err := New(f.deps, Options{Limit: 1, StaticOnly: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Subjects)
	assert.Equal(t, 2, sum.Written)
	assert.Equal(t, 1, f.pending(t))
}

func TestRun_StrongerVerdictKeptUnlessReprocess(t *testing.T) {
	f := newFixture(t, types.Candidate{FeatureID: "f1", RawName: "Tom Kundig"})
	ctx := context.Background()
	_, err := f.store.SaveVerdict(ctx, store.VerdictRecord{
		FeatureID: "f1",
		Verdict:   types.Verdict{Subject: "Tom Kundig", Kind: types.ConfirmedMatch, Score: 0.95},
	}, false)
	require.NoError(t, err)
	_, err = f.store.AddFeatures(ctx, []types.Candidate{{FeatureID: "f1", RawName: "Tom  Kundig"}})
	require.NoError(t, err)

	sum, err := New(f.deps, Options{StaticOnly: true}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Kept)
	assert.Equal(t, types.ConfirmedMatch, f.verdict(t, "f1").Verdict)

	sum, err = New(f.deps, Options{StaticOnly: true, Reprocess: true}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Written)
	assert.Equal(t, types.LikelyMatch, f.verdict(t, "f1").Verdict)
}

func TestRun_OverrideApplied(t *testing.T) {
	f := newFixture(t, types.Candidate{FeatureID: "f1", RawName: "Max Gottschalk"})
	require.NoError(t, f.store.SetOverride(context.Background(), store.Override{
		NameKey: names.Key("Max Gottschalk"),
		Display: "Max Gottschalk",
		Verdict: types.NoMatch,
		Reason:  "different person",
	}))

	_, err := New(f.deps, Options{StaticOnly: true}).Run(context.Background())
	require.NoError(t, err)
	sv := f.verdict(t, "f1")
	assert.Equal(t, types.NoMatch, sv.Verdict)
	assert.Contains(t, sv.Rationale, "different person")
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, types.Candidate{FeatureID: "f1", RawName: "Tom Kundig"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f.deps, Options{StaticOnly: true}).Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, f.pending(t))
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	r := New(f.deps, Options{StaticOnly: true})

	res, err := r.Lookup(context.Background(), "Tom Kundig, et al")
	require.NoError(t, err)
	require.Len(t, res.Individuals, 1)
	assert.Equal(t, types.LikelyMatch, res.Combined.Kind)
	assert.GreaterOrEqual(t, res.Combined.Score, 0.6)

	_, err = f.store.GetVerdict(context.Background(), "Tom Kundig")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = r.Lookup(context.Background(), "Anonymous")
	assert.ErrorIs(t, err, ErrNoSubjects)
}

func TestLookup_Online(t *testing.T) {
	f := newFixture(t)
	f.searcher.results["Max Gottschalk"] = types.OnlineResult{
		Subject: "Max Gottschalk", Tier: types.TierHigh, TotalResults: 4, Status: types.StatusSearched,
	}
	res, err := New(f.deps, Options{}).Lookup(context.Background(), "Jane & Max Gottschalk")
	require.NoError(t, err)
	require.Len(t, res.Individuals, 2)
	assert.Equal(t, types.ConfirmedMatch, res.Combined.Kind)
	assert.Equal(t, "Max Gottschalk", res.Combined.Subject)
	assert.Equal(t, 1, f.searcher.started)
	assert.Equal(t, 1, f.searcher.stopped)
}
