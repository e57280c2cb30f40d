// Package names turns raw candidate-name cells into searchable individuals and
// generates the query variations used against the online portal.
package names

import (
	"regexp"
	"strings"

	"crossref/internal/logging"
	"crossref/internal/types"
)

// Options tunes the normalizer.
type Options struct {
	MinWords  int
	SkipWords []string
}

// DefaultSkipWords are generic placeholders and organizational noise words.
var DefaultSkipWords = []string{
	"anonymous", "unknown", "n/a", "staff", "various",
	"studio", "brothers", "associates", "architects", "design",
	"group", "inc", "llc", "partners", "company", "co",
}

// DefaultOptions returns the normalizer defaults.
func DefaultOptions() Options {
	return Options{MinWords: 2, SkipWords: DefaultSkipWords}
}

var (
	etAlRE   = regexp.MustCompile(`(?i)[\s,;]*(?:\bet\.?\s*al\b\.?|\band\s+others\b|&\s*others\b)[\s.]*$`)
	peopleRE = regexp.MustCompile(`(?i)\s+and\s+|\s*&\s*|\s*;\s*`)
	// Serial comma before the final conjunction: "Jane, Max, and Sam Gottschalk".
	serialRE = regexp.MustCompile(`(?i),\s*(and\s|&)`)
	// "John Smith, Jr." keeps its suffix instead of being comma-split.
	commaSuffixRE = regexp.MustCompile(`(?i),\s*((?:jr|sr|ii|iii|iv|ph\.?d|md|esq|faia|aia)\.?)(\s|,|$)`)
)

// Normalizer splits, cleans and filters raw name cells. It is safe for
// concurrent use.
type Normalizer struct {
	minWords int
	skip     map[string]struct{}
}

// NewNormalizer builds a Normalizer from options.
func NewNormalizer(opts Options) *Normalizer {
	if opts.MinWords < 1 {
		opts.MinWords = 1
	}
	skip := make(map[string]struct{}, len(opts.SkipWords))
	for _, w := range opts.SkipWords {
		skip[Fold(strings.TrimSpace(w))] = struct{}{}
	}
	return &Normalizer{minWords: opts.MinWords, skip: skip}
}

// Normalize returns the distinct searchable individuals named by raw, in order
// of appearance. Unusable input yields an empty slice.
func (n *Normalizer) Normalize(raw string) []types.Subject {
	s := clean(raw)
	s = etAlRE.ReplaceAllString(s, "")
	s = commaSuffixRE.ReplaceAllString(s, " $1$2")
	s = clean(s)
	if s == "" {
		return nil
	}

	serial := serialRE.MatchString(s)
	if serial {
		s = serialRE.ReplaceAllString(s, " $1")
	}

	var parts []string
	for _, part := range peopleRE.Split(s, -1) {
		if part = clean(part); part != "" {
			parts = append(parts, part)
		}
	}
	surname := ""
	if serial {
		surname = sharedSurname(parts)
	}

	var fragments []types.Subject
	for i, part := range parts {
		if isLastFirst(part) && !(i < len(parts)-1 && givenNameList(part, surname)) {
			fragments = append(fragments, Parse(part))
			continue
		}
		for _, piece := range strings.Split(part, ",") {
			if subj := Parse(piece); subj.Key != "" {
				fragments = append(fragments, subj)
			}
		}
	}

	n.reattachSurnames(fragments)

	seen := make(map[string]bool)
	var out []types.Subject
	for _, subj := range fragments {
		if reason := n.reject(subj); reason != "" {
			logging.NormalizeDebug("dropped %q from %q: %s", subj.Display, raw, reason)
			continue
		}
		if seen[subj.Key] {
			continue
		}
		seen[subj.Key] = true
		out = append(out, subj)
	}
	return out
}

// sharedSurname returns the surname of a trailing natural-order name that
// earlier given names can borrow, or "".
func sharedSurname(parts []string) string {
	if len(parts) < 2 {
		return ""
	}
	last := parts[len(parts)-1]
	if strings.Contains(last, ",") {
		return ""
	}
	subj := Parse(last)
	if subj.First == "" {
		return ""
	}
	return subj.Last
}

// givenNameList reports whether a "Jane, Max" part is a run of given names
// rather than "Last, First".
func givenNameList(part, surname string) bool {
	if surname == "" {
		return false
	}
	left, right, _ := strings.Cut(part, ",")
	lt, rt := strings.Fields(left), strings.Fields(right)
	return len(lt) == 1 && len(rt) == 1 && Fold(lt[0]) != Fold(surname)
}

// reattachSurnames gives first-name-only fragments the surname of the nearest
// usable multi-word fragment, preferring the one after it ("Jane & Max Gottschalk").
func (n *Normalizer) reattachSurnames(fragments []types.Subject) {
	usable := func(f types.Subject) bool {
		return f.First != "" && f.Last != "" && n.reject(f) == ""
	}
	donor := func(i int) string {
		for j := i + 1; j < len(fragments); j++ {
			if usable(fragments[j]) {
				return fragments[j].Last
			}
		}
		for j := i - 1; j >= 0; j-- {
			if usable(fragments[j]) {
				return fragments[j].Last
			}
		}
		return ""
	}

	for i := range fragments {
		f := &fragments[i]
		if f.First != "" || f.LastFirst || f.Last == "" || strings.HasPrefix(n.reject(*f), "skip word") {
			continue
		}
		surname := donor(i)
		if surname == "" {
			continue
		}
		given := f.Last
		*f = types.Subject{
			Display: given + " " + surname,
			First:   given,
			Last:    surname,
			Suffix:  f.Suffix,
		}
		if f.Suffix != "" {
			f.Display += " " + f.Suffix
		}
		f.Key = keyOf(*f)
	}
}

// reject returns why a fragment is unusable, or "" when it is searchable.
func (n *Normalizer) reject(s types.Subject) string {
	if s.Key == "" || !hasLetter(s.FullName()) {
		return "empty"
	}
	if _, ok := n.skip[Fold(s.Display)]; ok {
		return "skip word"
	}
	for _, tok := range strings.Fields(s.Display) {
		if _, ok := n.skip[Fold(strings.Trim(tok, ".,"))]; ok {
			return "skip word " + tok
		}
	}
	if !s.LastFirst && WordCount(s) < n.minWords {
		return "too few words"
	}
	return ""
}
