package names

import (
	"regexp"
	"strings"

	"crossref/internal/types"
)

var (
	honorifics = setOf("mr", "mrs", "ms", "miss", "dr", "sir", "dame", "prof")
	suffixes   = setOf("jr", "sr", "ii", "iii", "iv", "phd", "ph.d", "md", "esq", "aia", "faia", "asid", "riba", "obe", "cbe")
	// Lowercase particles that belong to the surname ("Mies van der Rohe").
	particles = setOf("van", "von", "de", "der", "den", "del", "della", "da", "di", "du", "la", "le", "ter", "ten", "dos", "das")

	whitespaceRE = regexp.MustCompile(`\s+`)
	parenRE      = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	plausibleRE  = regexp.MustCompile(`^[\p{L}][\p{L}\p{M}'’.\- ]*$`)
)

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func bare(tok string) string {
	return strings.Trim(strings.ToLower(tok), ".,")
}

func isSuffix(tok string) bool {
	_, ok := suffixes[bare(tok)]
	return ok
}

func isHonorific(tok string) bool {
	_, ok := honorifics[bare(tok)]
	return ok
}

func isParticle(tok string) bool {
	_, ok := particles[strings.ToLower(tok)]
	return ok
}

// clean collapses whitespace, drops bracketed asides and trims quotes and
// separator punctuation from both ends. Trailing periods are kept for "Jr.".
func clean(s string) string {
	s = parenRE.ReplaceAllString(s, " ")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.Trim(s, " \t\"“”‘',;:")
}

// stripHonorifics removes leading titles ("Dr.", "Sir").
func stripHonorifics(tokens []string) []string {
	for len(tokens) > 1 && isHonorific(tokens[0]) {
		tokens = tokens[1:]
	}
	return tokens
}

// splitSuffix pulls trailing suffix tokens off.
func splitSuffix(tokens []string) ([]string, string) {
	end := len(tokens)
	for end > 1 && isSuffix(tokens[end-1]) {
		end--
	}
	return tokens[:end], strings.Join(tokens[end:], " ")
}

// isLastFirst reports whether s is a single "Last, First" name: exactly one comma,
// a one-word surname (particles allowed) on the left and a short given-name part
// on the right that is not just a suffix.
func isLastFirst(s string) bool {
	if strings.Count(s, ",") != 1 {
		return false
	}
	idx := strings.Index(s, ",")
	left := strings.TrimSpace(s[:idx])
	right := strings.TrimSpace(s[idx+1:])
	if left == "" || right == "" {
		return false
	}
	if !plausibleRE.MatchString(left) || !plausibleRE.MatchString(right) {
		return false
	}

	core := 0
	for _, tok := range strings.Fields(left) {
		if !isParticle(tok) {
			core++
		}
	}
	if core != 1 {
		return false
	}

	rightTokens, _ := splitSuffix(stripHonorifics(strings.Fields(right)))
	if len(rightTokens) == 0 || len(rightTokens) > 3 {
		return false
	}
	if len(rightTokens) == 1 && isSuffix(rightTokens[0]) {
		return false
	}
	return true
}

// Parse splits one person's name into its parts. It accepts natural order
// ("Tom Kundig", "Dr. Jane Q. Public Jr.") and "Last, First" order.
func Parse(name string) types.Subject {
	s := clean(name)
	if s == "" {
		return types.Subject{}
	}

	if isLastFirst(s) {
		idx := strings.Index(s, ",")
		last := strings.Join(strings.Fields(s[:idx]), " ")
		given, suffix := splitSuffix(stripHonorifics(strings.Fields(s[idx+1:])))
		subj := types.Subject{
			Display:   last + ", " + strings.Join(strings.Fields(s[idx+1:]), " "),
			First:     given[0],
			Middles:   append([]string(nil), given[1:]...),
			Last:      last,
			Suffix:    suffix,
			LastFirst: true,
		}
		subj.Key = keyOf(subj)
		return subj
	}

	tokens := stripHonorifics(strings.Fields(s))
	display := strings.Join(tokens, " ")
	tokens, suffix := splitSuffix(tokens)

	subj := types.Subject{Display: display, Suffix: suffix}
	switch len(tokens) {
	case 0:
		return types.Subject{}
	case 1:
		subj.Last = tokens[0]
	default:
		j := len(tokens) - 1
		for j > 1 && isParticle(tokens[j-1]) {
			j--
		}
		subj.First = tokens[0]
		subj.Middles = append([]string(nil), tokens[1:j]...)
		subj.Last = strings.Join(tokens[j:], " ")
	}
	subj.Key = keyOf(subj)
	return subj
}

// Key returns the dedup key for a raw single-person name.
func Key(name string) string {
	return Parse(name).Key
}

func keyOf(s types.Subject) string {
	k := s.FullName()
	if s.Suffix != "" {
		k += " " + strings.ReplaceAll(bare(s.Suffix), ".", "")
	}
	return Fold(k)
}

// WordCount counts name words, excluding suffixes.
func WordCount(s types.Subject) int {
	return len(strings.Fields(s.FullName()))
}
