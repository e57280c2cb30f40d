// Package types provides the evidence and verdict types shared across crossref packages.
// Types in this package should be plain data with no dependencies on other internal packages.
package types

import (
	"fmt"
	"strings"
)

// =============================================================================
// SUBJECTS
// =============================================================================

// Subject is one normalized, searchable individual.
type Subject struct {
	Display string   `json:"display"`
	First   string   `json:"first"`
	Middles []string `json:"middles,omitempty"`
	Last    string   `json:"last"`
	Suffix  string   `json:"suffix,omitempty"`
	// Key is the accent-folded, lowercase "first middles last" form used for dedup.
	Key string `json:"key"`
	// LastFirst is set when the raw text was written as "Last, First".
	LastFirst bool `json:"last_first,omitempty"`
}

// FullName returns "First [Middles] Last" without suffix.
func (s Subject) FullName() string {
	parts := make([]string, 0, len(s.Middles)+2)
	if s.First != "" {
		parts = append(parts, s.First)
	}
	parts = append(parts, s.Middles...)
	if s.Last != "" {
		parts = append(parts, s.Last)
	}
	return strings.Join(parts, " ")
}

// LastFirstName returns "Last, First", or "" when either part is missing.
func (s Subject) LastFirstName() string {
	if s.First == "" || s.Last == "" {
		return ""
	}
	return s.Last + ", " + s.First
}

// Candidate is a raw name cell from the worklist together with the
// features that carry it.
type Candidate struct {
	FeatureID string `json:"feature_id"`
	RawName   string `json:"raw_name"`
}

// =============================================================================
// STATIC EVIDENCE
// =============================================================================

// MatchType classifies how a name was found in the reference corpus.
type MatchType string

const (
	MatchFullName     MatchType = "full_name"
	MatchLastFirst    MatchType = "last_first"
	MatchLastNameOnly MatchType = "last_name_only"
)

// Rank orders match types for reporting: full_name > last_first > last_name_only.
func (m MatchType) Rank() int {
	switch m {
	case MatchFullName:
		return 3
	case MatchLastFirst:
		return 2
	case MatchLastNameOnly:
		return 1
	default:
		return 0
	}
}

// StaticMatch is one hit in the reference corpus.
type StaticMatch struct {
	Subject string    `json:"subject"`
	Type    MatchType `json:"match_type"`
	Pattern string    `json:"pattern"`
	Offset  int       `json:"offset"`
	Context string    `json:"context"`
}

// StrongestStatic returns the highest ranked match type present, or "" when empty.
func StrongestStatic(matches []StaticMatch) MatchType {
	var best MatchType
	for _, m := range matches {
		if m.Type.Rank() > best.Rank() {
			best = m.Type
		}
	}
	return best
}

// HasMatchType reports whether any match carries the given type.
func HasMatchType(matches []StaticMatch, t MatchType) bool {
	for _, m := range matches {
		if m.Type == t {
			return true
		}
	}
	return false
}

// =============================================================================
// ONLINE EVIDENCE
// =============================================================================

// Tier is the confidence class assigned to a portal search.
type Tier string

const (
	TierNone   Tier = "none"
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Rank orders tiers: none < low < medium < high.
func (t Tier) Rank() int {
	switch t {
	case TierLow:
		return 1
	case TierMedium:
		return 2
	case TierHigh:
		return 3
	default:
		return 0
	}
}

// SearchStatus records whether an online search completed.
type SearchStatus string

const (
	StatusSearched SearchStatus = "searched"
	StatusTimeout  SearchStatus = "timeout"
	StatusError    SearchStatus = "error"
	StatusSkipped  SearchStatus = "skipped"
)

// Completed reports whether the search produced usable evidence.
func (s SearchStatus) Completed() bool {
	return s == StatusSearched
}

// SearchEntry is one row of a portal result page.
type SearchEntry struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
}

// OnlineResult is the outcome of searching the portal for one individual.
type OnlineResult struct {
	Subject      string        `json:"subject"`
	Variant      string        `json:"variant,omitempty"`
	Variants     []string      `json:"variants_tried,omitempty"`
	TotalResults int           `json:"total_results"`
	Entries      []SearchEntry `json:"entries,omitempty"`
	Tier         Tier          `json:"tier"`
	Rationale    string        `json:"rationale,omitempty"`
	Status       SearchStatus  `json:"status"`
	Error        string        `json:"error,omitempty"`
	Cached       bool          `json:"cached,omitempty"`
}

// SkippedResult is the online result recorded when no search was attempted.
func SkippedResult(subject, reason string) OnlineResult {
	return OnlineResult{Subject: subject, Tier: TierNone, Status: StatusSkipped, Rationale: reason}
}

// =============================================================================
// VERDICTS
// =============================================================================

// VerdictKind is the combined classification of a subject.
type VerdictKind string

const (
	NoMatch        VerdictKind = "no_match"
	PossibleMatch  VerdictKind = "possible_match"
	NeedsReview    VerdictKind = "needs_review"
	LikelyMatch    VerdictKind = "likely_match"
	ConfirmedMatch VerdictKind = "confirmed_match"
)

// AllVerdictKinds lists verdicts weakest first.
var AllVerdictKinds = []VerdictKind{NoMatch, PossibleMatch, NeedsReview, LikelyMatch, ConfirmedMatch}

// Rank orders verdicts: no_match < possible_match < needs_review < likely_match < confirmed_match.
func (v VerdictKind) Rank() int {
	for i, k := range AllVerdictKinds {
		if k == v {
			return i
		}
	}
	return -1
}

// Valid reports whether v is a known verdict.
func (v VerdictKind) Valid() bool {
	return v.Rank() >= 0
}

// InBlackBook maps a verdict to the binary field consumed downstream.
func (v VerdictKind) InBlackBook() string {
	if v == LikelyMatch || v == ConfirmedMatch {
		return "YES"
	}
	return "NO"
}

// ParseVerdictKind accepts a verdict name, case-insensitively.
func ParseVerdictKind(s string) (VerdictKind, error) {
	k := VerdictKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown verdict %q", s)
	}
	return k, nil
}

// Verdict is the combined assessment of one subject.
type Verdict struct {
	Subject                 string        `json:"subject"`
	Kind                    VerdictKind   `json:"verdict"`
	Score                   float64       `json:"score"`
	Rationale               string        `json:"rationale"`
	FalsePositiveIndicators []string      `json:"false_positive_indicators,omitempty"`
	EvidenceSummary         string        `json:"evidence_summary"`
	Static                  []StaticMatch `json:"static_matches,omitempty"`
	Online                  *OnlineResult `json:"online,omitempty"`
	Overridden              bool          `json:"overridden,omitempty"`
}

// Stronger reports whether v outranks other, breaking ties on score.
func (v Verdict) Stronger(other Verdict) bool {
	if v.Kind.Rank() != other.Kind.Rank() {
		return v.Kind.Rank() > other.Kind.Rank()
	}
	return v.Score > other.Score
}
