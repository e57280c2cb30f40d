package names

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossref/internal/types"
)

func displays(subjects []types.Subject) []string {
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, s.Display)
	}
	return out
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(DefaultOptions())

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"plain", "Tom Kundig", []string{"Tom Kundig"}},
		{"et al with comma", "Tom Kundig, et al", []string{"Tom Kundig"}},
		{"et al dotted", "Tom Kundig et al.", []string{"Tom Kundig"}},
		{"and others", "Tom Kundig and others", []string{"Tom Kundig"}},
		{"shared surname", "Jane & Max Gottschalk", []string{"Jane Gottschalk", "Max Gottschalk"}},
		{"shared surname with and", "John and Jane Smith", []string{"John Smith", "Jane Smith"}},
		{"two full names", "Tom Kundig and Jim Olson", []string{"Tom Kundig", "Jim Olson"}},
		{"comma separated people", "Tom Kundig, Jim Olson; Alan Maskin", []string{"Tom Kundig", "Jim Olson", "Alan Maskin"}},
		{"last first kept whole", "Smith, John", []string{"Smith, John"}},
		{"two last first", "Kundig, Tom & Olson, Jim", []string{"Kundig, Tom", "Olson, Jim"}},
		{"suffix after comma", "John Smith, Jr.", []string{"John Smith Jr."}},
		{"honorific stripped", "Dr. Jane Goodall", []string{"Jane Goodall"}},
		{"whitespace collapsed", "  Tom   Kundig  ", []string{"Tom Kundig"}},
		{"quoted", `"Tom Kundig"`, []string{"Tom Kundig"}},
		{"parenthetical dropped", "Tom Kundig (Olson Kundig)", []string{"Tom Kundig"}},
		{"dedup", "Tom Kundig & Tom Kundig", []string{"Tom Kundig"}},
		{"dedup across order", "Kundig, Tom & Tom Kundig", []string{"Kundig, Tom"}},
		{"serial comma given names", "Jane, Max, and Sam Gottschalk", []string{"Jane Gottschalk", "Max Gottschalk", "Sam Gottschalk"}},
		{"serial comma ampersand", "Jane, Max, & Sam Gottschalk", []string{"Jane Gottschalk", "Max Gottschalk", "Sam Gottschalk"}},
		{"last first beside full name", "Kundig, Tom & Jim Olson", []string{"Kundig, Tom", "Jim Olson"}},
		{"serial comma last first", "Kundig, Tom, and Olson, Jim", []string{"Kundig, Tom", "Olson, Jim"}},
		{"and co", "Jean-Paul Gaultier & Co", []string{"Jean-Paul Gaultier"}},
		{"and co dotted", "Jean-Paul Gaultier & Co.", []string{"Jean-Paul Gaultier"}},
		{"single word", "Cher", nil},
		{"placeholder", "Anonymous", nil},
		{"n/a", "N/A", nil},
		{"firm", "Olson Kundig Architects", nil},
		{"studio", "Studio Gang", nil},
		{"empty", "   ", nil},
		{"firm beside person", "Jane & Studio Gang", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := displays(n.Normalize(tt.raw))
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_NeverBelowMinWords(t *testing.T) {
	n := NewNormalizer(DefaultOptions())
	inputs := []string{
		"Jane & Max Gottschalk", "Cher and Madonna", "A, B, C", "Smith, John",
		"Tom Kundig, et al", "Prince & The Revolution", "Jane", "J. & K. Rowling",
	}
	for _, raw := range inputs {
		for _, s := range n.Normalize(raw) {
			if !s.LastFirst {
				assert.GreaterOrEqual(t, WordCount(s), 2, "%q produced %q", raw, s.Display)
			}
		}
	}
}

func TestNormalize_LastFirstParts(t *testing.T) {
	n := NewNormalizer(DefaultOptions())
	got := n.Normalize("Smith, John")
	require.Len(t, got, 1)
	assert.True(t, got[0].LastFirst)
	assert.Equal(t, "John", got[0].First)
	assert.Equal(t, "Smith", got[0].Last)
	assert.Equal(t, "john smith", got[0].Key)
}

func TestNormalize_KeyFoldsAccents(t *testing.T) {
	n := NewNormalizer(DefaultOptions())
	a := n.Normalize("José García")
	b := n.Normalize("JOSE GARCIA")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Key, b[0].Key)
	assert.Equal(t, "José García", a[0].Display)
}

func TestNormalize_CustomSkipWords(t *testing.T) {
	n := NewNormalizer(Options{MinWords: 2, SkipWords: []string{"estate"}})
	assert.Empty(t, n.Normalize("Kundig Estate"))
	assert.Len(t, n.Normalize("Studio Gang"), 1)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in                  string
		first, last, suffix string
		middles             []string
	}{
		{"Tom Kundig", "Tom", "Kundig", "", nil},
		{"Jane Q. Public Jr.", "Jane", "Public", "Jr.", []string{"Q."}},
		{"Ludwig Mies van der Rohe", "Ludwig", "van der Rohe", "", []string{"Mies"}},
		{"Kundig, Tom", "Tom", "Kundig", "", nil},
		{"van Buren, Martin", "Martin", "van Buren", "", nil},
		{"Sir Norman Foster", "Norman", "Foster", "", nil},
		{"Cher", "", "Cher", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s := Parse(tt.in)
			assert.Equal(t, tt.first, s.First)
			assert.Equal(t, tt.last, s.Last)
			assert.Equal(t, tt.suffix, s.Suffix)
			assert.Equal(t, len(tt.middles), len(s.Middles))
		})
	}
}

func TestKeyDistinguishesSuffix(t *testing.T) {
	assert.NotEqual(t, Key("John Smith Jr."), Key("John Smith Sr."))
	assert.Equal(t, Key("Smith, John"), Key("john  smith"))
}

func TestIsLastFirst(t *testing.T) {
	assert.True(t, isLastFirst("Smith, John"))
	assert.True(t, isLastFirst("Kundig, Tom A."))
	assert.False(t, isLastFirst("Smith, Jr."))
	assert.False(t, isLastFirst("Tom Kundig, Jim Olson"))
	assert.False(t, isLastFirst("Smith, John, Jane"))
	assert.False(t, isLastFirst("Smith"))
}

func TestVariations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"two words", "Tom Kundig", []string{"Tom Kundig", "Kundig, Tom", "Kundig"}},
		{"middle initial", "Jane Q. Public", []string{"Jane Q. Public", "Public, Jane", "Jane Public", "Public"}},
		{"short surname dropped", "George Bush", []string{"George Bush", "Bush, George"}},
		{"suffix", "John Smith Jr.", []string{"John Smith Jr.", "Smith, John", "John Smith", "Smith"}},
		{"last first input", "Smith, John", []string{"Smith, John", "John Smith", "Smith"}},
		{"single word", "Cher", []string{"Cher"}},
		{"empty", "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Variations(tt.in, 5))
		})
	}
}

func TestVariations_Properties(t *testing.T) {
	inputs := []string{"Tom Kundig", "Ludwig Mies van der Rohe", "Li Wu", "Jane Q. Public Jr.", "O'Brien, Conan"}
	for _, in := range inputs {
		vars := Variations(in, 5)
		seen := map[string]bool{}
		for _, v := range vars {
			k := strings.ToLower(v)
			assert.False(t, seen[k], "%q duplicated in %v", v, vars)
			seen[k] = true
			if !strings.Contains(v, " ") && !strings.Contains(v, ",") {
				assert.GreaterOrEqual(t, letterCount(v), 5, "short bare surname %q from %q", v, in)
			}
		}
	}
}

func TestIsSurnameOnly(t *testing.T) {
	assert.True(t, IsSurnameOnly("Tom Kundig", "kundig"))
	assert.False(t, IsSurnameOnly("Tom Kundig", "Tom Kundig"))
	assert.False(t, IsSurnameOnly("Cher", "Cher"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "zoe angstrom", Fold("Zoë Ångström"))
	assert.Equal(t, "o'brien", Fold("O'Brien"))
}
