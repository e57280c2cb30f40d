package portal

import (
	"regexp"
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"

	"crossref/internal/names"
	"crossref/internal/types"
)

// Vocabulary that suggests personal contact (travel, household, correspondence)
// versus a commercial vendor relationship.
var (
	personalWords = []string{
		"flight", "passenger", "contact", "message", "phone", "address",
		"massage", "visit", "schedule", "travel", "pilot", "log",
		"butler", "housekeeper", "employee", "associate",
	}
	vendorWords = []string{
		"contractor", "construction", "invoice", "plumbing", "electrical",
		"maintenance", "repair", "equipment", "supplies", "vendor",
		"delivery", "installation", "permit", "landscaping", "painting",
		"flooring", "hvac", "roofing",
	}

	personalStems = stemSet(personalWords)
	vendorStems   = stemSet(vendorWords)
)

func stemSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[snowballeng.Stem(w, false)] = true
	}
	return set
}

// tokenize splits text into lowercase stems.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	stems := make([]string, 0, len(fields))
	for _, f := range fields {
		stems = append(stems, snowballeng.Stem(f, false))
	}
	return stems
}

// vocabulary reports which vocabularies appear in text.
func vocabulary(text string) (personal, vendor bool) {
	for _, stem := range tokenize(text) {
		if personalStems[stem] {
			personal = true
		}
		if vendorStems[stem] {
			vendor = true
		}
		if personal && vendor {
			return
		}
	}
	return
}

func collapse(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// AssessTier classifies the results of a single portal query.
//
// With the exact query present in the snippets, personal vocabulary alone is
// high, both vocabularies or neither is medium and vendor vocabulary alone is
// low. Without it, a multi-word query whose surname appears is medium when
// personal vocabulary is present and low otherwise.
func AssessTier(query string, total int, entries []types.SearchEntry) (types.Tier, string) {
	if total == 0 && len(entries) == 0 {
		return types.TierNone, "no results"
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Snippet)
		sb.WriteByte(' ')
	}
	text := sb.String()
	haystack := collapse(text)
	personal, vendor := vocabulary(text)

	if q := collapse(query); q != "" && strings.Contains(haystack, q) {
		switch {
		case personal && !vendor:
			return types.TierHigh, "exact name with personal-contact context"
		case personal && vendor:
			return types.TierMedium, "exact name with mixed personal and vendor context"
		case vendor:
			return types.TierLow, "exact name in vendor context only"
		default:
			return types.TierMedium, "exact name without clear context"
		}
	}

	subj := names.Parse(query)
	if subj.First != "" && subj.Last != "" && containsWord(haystack, subj.Last) {
		if personal {
			return types.TierMedium, "surname with personal-contact context"
		}
		return types.TierLow, "surname only"
	}
	return types.TierLow, "results without the name in snippets"
}

func containsWord(haystack, word string) bool {
	re, err := regexp.Compile(`(?i)(^|[^\pL\pN])` + regexp.QuoteMeta(strings.ToLower(word)) + `($|[^\pL\pN])`)
	if err != nil {
		return false
	}
	return re.MatchString(haystack)
}
