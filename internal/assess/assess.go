// Package assess combines static corpus evidence and online search evidence
// into a verdict using an ordered rule table.
package assess

import (
	_ "embed"
	"fmt"
	"math"
	"strings"
	"unicode"

	"crossref/internal/logging"
	"crossref/internal/names"
	"crossref/internal/types"
)

//go:embed common_surnames.txt
var commonSurnamesFile string

// Options tunes the false-positive heuristics.
type Options struct {
	MinSurnameLen       int
	HighResultThreshold int
	ExtraCommonSurnames []string
}

// DefaultOptions returns the assessor defaults.
func DefaultOptions() Options {
	return Options{MinSurnameLen: 5, HighResultThreshold: 50}
}

// Override is a manual review decision for a subject.
type Override struct {
	Verdict types.VerdictKind `json:"verdict"`
	Reason  string            `json:"reason"`
}

// Assessor applies the verdict rules. It holds no mutable state and is safe
// for concurrent use.
type Assessor struct {
	opts   Options
	common map[string]bool
}

// New builds an Assessor.
func New(opts Options) *Assessor {
	def := DefaultOptions()
	if opts.MinSurnameLen <= 0 {
		opts.MinSurnameLen = def.MinSurnameLen
	}
	if opts.HighResultThreshold <= 0 {
		opts.HighResultThreshold = def.HighResultThreshold
	}
	common := make(map[string]bool)
	for _, line := range strings.Split(commonSurnamesFile, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		common[names.Fold(line)] = true
	}
	for _, s := range opts.ExtraCommonSurnames {
		if s = strings.TrimSpace(s); s != "" {
			common[names.Fold(s)] = true
		}
	}
	return &Assessor{opts: opts, common: common}
}

// =============================================================================
// RULE TABLE
// =============================================================================

// rule maps a (static, online) evidence pair to a verdict. An empty online
// list matches any tier.
type rule struct {
	static types.MatchType
	online []types.Tier
	kind   types.VerdictKind
	floor  float64
	ceil   float64
}

var (
	anyTier    []types.Tier
	strongTier = []types.Tier{types.TierHigh, types.TierMedium}
)

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{types.MatchLastFirst, []types.Tier{types.TierHigh}, types.ConfirmedMatch, 0.9, 1.0},
	{types.MatchLastFirst, []types.Tier{types.TierMedium}, types.LikelyMatch, 0.7, 0.85},
	{types.MatchLastFirst, []types.Tier{types.TierLow, types.TierNone}, types.LikelyMatch, 0.6, 0.7},
	{types.MatchFullName, []types.Tier{types.TierHigh}, types.ConfirmedMatch, 0.9, 1.0},
	{types.MatchFullName, []types.Tier{types.TierMedium}, types.LikelyMatch, 0.6, 0.7},
	{types.MatchFullName, []types.Tier{types.TierLow, types.TierNone}, types.PossibleMatch, 0.4, 0.5},
	{types.MatchLastNameOnly, strongTier, types.PossibleMatch, 0.3, 0.4},
	{types.MatchLastNameOnly, anyTier, types.NeedsReview, 0.2, 0.3},
	{"", []types.Tier{types.TierHigh}, types.LikelyMatch, 0.6, 0.7},
	{"", []types.Tier{types.TierMedium}, types.PossibleMatch, 0.4, 0.5},
	{"", anyTier, types.NoMatch, 0.0, 0.0},
}

func (r rule) matches(static types.MatchType, tier types.Tier) bool {
	if r.static != static {
		return false
	}
	if len(r.online) == 0 {
		return true
	}
	for _, t := range r.online {
		if t == tier {
			return true
		}
	}
	return false
}

// incompleteScore is the needs_review score used when the online search did
// not finish but static evidence exists.
var incompleteScore = map[types.MatchType]float64{
	types.MatchLastFirst:    0.5,
	types.MatchFullName:     0.4,
	types.MatchLastNameOnly: 0.2,
}

// defaultScore is assigned to verdicts set by a review override.
var defaultScore = map[types.VerdictKind]float64{
	types.NoMatch:        0.0,
	types.PossibleMatch:  0.4,
	types.NeedsReview:    0.2,
	types.LikelyMatch:    0.6,
	types.ConfirmedMatch: 0.9,
}

// governingStatic picks the match type that drives the rule table.
// "Last, First" is the strongest corroboration because it mirrors a
// directory entry.
func governingStatic(matches []types.StaticMatch) types.MatchType {
	for _, t := range []types.MatchType{types.MatchLastFirst, types.MatchFullName, types.MatchLastNameOnly} {
		if types.HasMatchType(matches, t) {
			return t
		}
	}
	return ""
}

// Assess produces the verdict for one subject. static may be empty and online
// may be nil when that evidence was not gathered.
func (a *Assessor) Assess(subj types.Subject, static []types.StaticMatch, online *types.OnlineResult) types.Verdict {
	gov := governingStatic(static)
	tier := types.TierNone
	incomplete := false
	if online != nil {
		if online.Status.Completed() {
			tier = online.Tier
		} else if online.Status == types.StatusTimeout || online.Status == types.StatusError {
			incomplete = true
		}
	}

	v := types.Verdict{
		Subject:                 subj.Display,
		Static:                  static,
		Online:                  online,
		FalsePositiveIndicators: a.falsePositives(subj, gov, online),
		EvidenceSummary:         evidenceSummary(static, online),
	}

	if incomplete && gov != "" {
		v.Kind = types.NeedsReview
		v.Score = incompleteScore[gov]
		v.Rationale = fmt.Sprintf("static %s; online search %s, evidence incomplete", gov, online.Status)
		logging.AssessDebug("%s: %s %.2f (incomplete)", subj.Display, v.Kind, v.Score)
		return v
	}

	for _, r := range rules {
		if !r.matches(gov, tier) {
			continue
		}
		v.Kind = r.kind
		v.Score = round2(math.Min(math.Min(r.floor+bonus(r, gov, static, tier), r.ceil), 1.0))
		v.Rationale = rationale(gov, tier, online)
		break
	}

	logging.AssessDebug("%s: %s %.2f (%s)", subj.Display, v.Kind, v.Score, v.Rationale)
	return v
}

// bonus rewards repeated static hits and a high online tier on rules that
// accept both medium and high.
func bonus(r rule, gov types.MatchType, static []types.StaticMatch, tier types.Tier) float64 {
	if r.floor == 0 {
		return 0
	}
	b := 0.0
	if gov != "" {
		offsets := make(map[int]bool)
		for _, m := range static {
			if m.Type == gov {
				offsets[m.Offset] = true
			}
		}
		b += math.Min(0.05*float64(max(len(offsets)-1, 0)), 0.1)
	}
	if tier == types.TierHigh && len(r.online) > 1 {
		b += 0.05
	}
	return b
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func rationale(gov types.MatchType, tier types.Tier, online *types.OnlineResult) string {
	var parts []string
	if gov == "" {
		parts = append(parts, "no static match")
	} else {
		parts = append(parts, "static "+string(gov))
	}
	switch {
	case online == nil:
		parts = append(parts, "online not searched")
	case online.Status == types.StatusSkipped:
		if online.Rationale != "" {
			parts = append(parts, "online not searched ("+online.Rationale+")")
		} else {
			parts = append(parts, "online not searched")
		}
	case online.Rationale != "":
		parts = append(parts, fmt.Sprintf("online %s: %s", tier, online.Rationale))
	default:
		parts = append(parts, "online "+string(tier))
	}
	return strings.Join(parts, "; ")
}

// =============================================================================
// FALSE POSITIVES
// =============================================================================

func (a *Assessor) falsePositives(subj types.Subject, gov types.MatchType, online *types.OnlineResult) []string {
	var out []string
	if subj.Last != "" && a.common[names.Fold(subj.Last)] {
		out = append(out, "common surname: "+subj.Last)
	}
	if gov == types.MatchLastNameOnly && letters(subj.Last) < a.opts.MinSurnameLen {
		out = append(out, "short surname in surname-only match: "+subj.Last)
	}
	if online != nil && online.TotalResults > a.opts.HighResultThreshold {
		out = append(out, fmt.Sprintf("broad online results: %d > %d", online.TotalResults, a.opts.HighResultThreshold))
	}
	return out
}

// IsCommonSurname reports whether surname is on the common-surname list.
func (a *Assessor) IsCommonSurname(surname string) bool {
	return a.common[names.Fold(strings.TrimSpace(surname))]
}

func letters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// =============================================================================
// OVERRIDES AND FOLDS
// =============================================================================

// ApplyOverride replaces a borderline verdict (possible_match or needs_review)
// with a review decision. Other verdicts are returned unchanged.
func ApplyOverride(v types.Verdict, o *Override) types.Verdict {
	if o == nil || !o.Verdict.Valid() {
		return v
	}
	if v.Kind != types.PossibleMatch && v.Kind != types.NeedsReview {
		return v
	}
	v.Kind = o.Verdict
	v.Score = defaultScore[o.Verdict]
	v.Overridden = true
	reason := o.Reason
	if reason == "" {
		reason = "manual review"
	}
	v.Rationale = fmt.Sprintf("%s; override to %s: %s", v.Rationale, o.Verdict, reason)
	return v
}

// Strongest folds verdicts to the one with the highest rank, then score. It
// returns false when verdicts is empty.
func Strongest(verdicts ...types.Verdict) (types.Verdict, bool) {
	if len(verdicts) == 0 {
		return types.Verdict{}, false
	}
	best := verdicts[0]
	for _, v := range verdicts[1:] {
		if v.Stronger(best) {
			best = v
		}
	}
	return best, true
}

// evidenceSummary renders a compact one-line evidence description.
func evidenceSummary(static []types.StaticMatch, online *types.OnlineResult) string {
	var parts []string
	if gov := governingStatic(static); gov != "" {
		parts = append(parts, fmt.Sprintf("BB %s x%d", gov, len(static)))
	} else {
		parts = append(parts, "BB none")
	}
	switch {
	case online == nil:
		parts = append(parts, "DOJ n/a")
	case online.Status.Completed():
		parts = append(parts, fmt.Sprintf("DOJ %s (%d results)", online.Tier, online.TotalResults))
	default:
		parts = append(parts, "DOJ "+string(online.Status))
	}
	return strings.Join(parts, ", ")
}

// Tags returns the short evidence tags shown in progress output.
func Tags(v types.Verdict) []string {
	var tags []string
	if len(v.Static) > 0 {
		tags = append(tags, "BB")
	}
	if v.Online != nil && v.Online.Status.Completed() && v.Online.TotalResults > 0 {
		tags = append(tags, "DOJ")
	}
	return tags
}
