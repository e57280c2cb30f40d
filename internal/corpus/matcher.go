package corpus

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"crossref/internal/logging"
	"crossref/internal/types"
)

// MatchOptions tunes the static matcher.
type MatchOptions struct {
	MinSurnameLen int
	ContextChars  int
	MaxHits       int // per pattern
}

// DefaultMatchOptions returns the matcher defaults.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{MinSurnameLen: 5, ContextChars: 80, MaxHits: 5}
}

// Matcher finds subjects in a corpus. It only reads the corpus and is safe for
// concurrent use.
type Matcher struct {
	corpus *Corpus
	opts   MatchOptions
}

// NewMatcher builds a matcher over c.
func NewMatcher(c *Corpus, opts MatchOptions) *Matcher {
	def := DefaultMatchOptions()
	if opts.MinSurnameLen <= 0 {
		opts.MinSurnameLen = def.MinSurnameLen
	}
	if opts.ContextChars < 0 {
		opts.ContextChars = def.ContextChars
	}
	if opts.MaxHits <= 0 {
		opts.MaxHits = def.MaxHits
	}
	return &Matcher{corpus: c, opts: opts}
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// Match searches the corpus for subj. Full-name and "Last, First" forms are
// both tried; the surname alone is only tried when neither hits. Results are
// ordered strongest match type first, then by position.
func (m *Matcher) Match(subj types.Subject) ([]types.StaticMatch, error) {
	var out []types.StaticMatch

	if subj.First != "" && subj.Last != "" {
		full := subj.FullName()
		hits, err := m.find(subj, types.MatchFullName, full, phrasePattern(full))
		if err != nil {
			return nil, err
		}
		out = append(out, hits...)

		if len(subj.Middles) > 0 {
			short := subj.First + " " + subj.Last
			hits, err := m.find(subj, types.MatchFullName, short, phrasePattern(short))
			if err != nil {
				return nil, err
			}
			out = appendNew(out, hits)
		}

		lf := subj.LastFirstName()
		hits, err = m.find(subj, types.MatchLastFirst, lf, phrasePattern(subj.Last)+`\s*,\s*`+phrasePattern(subj.First))
		if err != nil {
			return nil, err
		}
		out = append(out, hits...)
	}

	if len(out) == 0 && subj.Last != "" && letterCount(subj.Last) >= m.opts.MinSurnameLen {
		hits, err := m.find(subj, types.MatchLastNameOnly, subj.Last, phrasePattern(subj.Last))
		if err != nil {
			return nil, err
		}
		out = append(out, hits...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type.Rank() != out[j].Type.Rank() {
			return out[i].Type.Rank() > out[j].Type.Rank()
		}
		return out[i].Offset < out[j].Offset
	})

	if len(out) > 0 {
		logging.CorpusDebug("%s: %d hits, strongest %s", subj.Display, len(out), out[0].Type)
	}
	return out, nil
}

func appendNew(out, hits []types.StaticMatch) []types.StaticMatch {
	for _, h := range hits {
		dup := false
		for _, o := range out {
			if o.Type == h.Type && o.Offset == h.Offset {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, h)
		}
	}
	return out
}

// phrasePattern escapes a literal name for regexp use. Runs of whitespace
// match any whitespace and both apostrophe forms are equivalent.
func phrasePattern(literal string) string {
	words := strings.Fields(literal)
	for i, w := range words {
		q := regexp.QuoteMeta(w)
		q = strings.NewReplacer("'", `['’]`, "’", `['’]`).Replace(q)
		words[i] = q
	}
	return strings.Join(words, `\s+`)
}

// find collects up to MaxHits word-bounded, case-insensitive occurrences.
func (m *Matcher) find(subj types.Subject, mt types.MatchType, literal, pattern string) ([]types.StaticMatch, error) {
	if literal == "" || pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern for %q: %w", literal, err)
	}

	text := m.corpus.Text
	var hits []types.StaticMatch
	pos := 0
	for pos < len(text) && len(hits) < m.opts.MaxHits {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if boundedAt(text, start, end) {
			hits = append(hits, types.StaticMatch{
				Subject: subj.Display,
				Type:    mt,
				Pattern: literal,
				Offset:  start,
				Context: contextWindow(text, start, end, m.opts.ContextChars),
			})
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + max(size, 1)
	}
	return hits, nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}

// boundedAt reports whether text[start:end] is a whole token. An apostrophe
// glued to a preceding letter ("O'Brien") continues the token on the left; a
// trailing possessive ("Bush's") still ends it on the right.
func boundedAt(text string, start, end int) bool {
	if start > 0 {
		prev, size := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(prev) {
			return false
		}
		if isApostrophe(prev) && start-size > 0 {
			before, _ := utf8.DecodeLastRuneInString(text[:start-size])
			if unicode.IsLetter(before) {
				return false
			}
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(next) {
			return false
		}
	}
	return true
}

// contextWindow returns about n bytes either side of the match on rune
// boundaries, whitespace collapsed.
func contextWindow(text string, start, end, n int) string {
	lo := max(start-n, 0)
	hi := min(end+n, len(text))
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo++
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi--
	}
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text[lo:hi], " "))
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
