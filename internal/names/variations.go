package names

import "strings"

// Variations returns the ordered, duplicate-free portal queries for a display
// name: the exact name, "Last, First", first+last without middles or suffixes,
// then the bare surname when it has at least minSurname letters. A single-word
// name yields only itself.
func Variations(name string, minSurname int) []string {
	s := Parse(name)
	if s.Key == "" {
		return nil
	}
	if s.First == "" {
		return []string{s.Display}
	}

	var out []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		k := strings.ToLower(q)
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, q)
	}

	add(s.Display)
	add(s.LastFirstName())
	add(s.First + " " + s.Last)
	if letterCount(s.Last) >= minSurname {
		add(s.Last)
	}
	return out
}

// IsSurnameOnly reports whether query is the bare surname of name.
func IsSurnameOnly(name, query string) bool {
	s := Parse(name)
	return s.First != "" && strings.EqualFold(strings.TrimSpace(query), s.Last)
}
