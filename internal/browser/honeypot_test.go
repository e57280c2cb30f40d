package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func visible() ElementFacts {
	return ElementFacts{
		Styles: map[string]string{
			"display":       "block",
			"visibility":    "visible",
			"opacity":       "1",
			"position":      "static",
			"left":          "auto",
			"top":           "auto",
			"width":         "120px",
			"height":        "32px",
			"overflow":      "visible",
			"clip":          "auto",
			"clipPath":      "none",
			"pointerEvents": "auto",
		},
		Attrs:  map[string]string{"id": "enter", "class": "btn"},
		X:      100,
		Y:      200,
		Width:  120,
		Height: 32,
		HasBox: true,
	}
}

func TestHoneypotReasons_VisibleButtonIsSafe(t *testing.T) {
	assert.Empty(t, HoneypotReasons(visible()))
}

func TestHoneypotReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ElementFacts)
		want   string
	}{
		{"display none", func(f *ElementFacts) { f.Styles["display"] = "none" }, "Hidden via display:none"},
		{"visibility hidden", func(f *ElementFacts) { f.Styles["visibility"] = "hidden" }, "Hidden via visibility:hidden"},
		{"transparent", func(f *ElementFacts) { f.Styles["opacity"] = "0" }, "Nearly transparent (opacity < 0.1)"},
		{"off-screen css", func(f *ElementFacts) {
			f.Styles["position"] = "absolute"
			f.Styles["left"] = "-9999px"
		}, "Positioned off-screen"},
		{"off-screen box", func(f *ElementFacts) { f.X = -500 }, "Bounding box outside viewport"},
		{"tiny", func(f *ElementFacts) { f.Width, f.Height = 1, 1 }, "Zero or near-zero size"},
		{"no box", func(f *ElementFacts) { f.HasBox = false }, "Zero or near-zero size"},
		{"clipped", func(f *ElementFacts) { f.Styles["clip"] = "rect(0px, 0px, 0px, 0px)" }, "Clipped to nothing"},
		{"clip path", func(f *ElementFacts) { f.Styles["clipPath"] = "inset(50%)" }, "Clipped to nothing"},
		{"pointer events", func(f *ElementFacts) { f.Styles["pointerEvents"] = "none" }, "Pointer events disabled"},
		{"aria hidden", func(f *ElementFacts) { f.Attrs["aria-hidden"] = "true" }, "aria-hidden=true"},
		{"hidden attr", func(f *ElementFacts) { f.Attrs["hidden"] = "" }, "hidden attribute"},
		{"tabindex", func(f *ElementFacts) { f.Attrs["tabindex"] = "-1" }, "Removed from tab order"},
		{"honeypot class", func(f *ElementFacts) { f.Attrs["class"] = "btn honeypot" }, "Honeypot naming in class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := visible()
			tt.mutate(&f)
			assert.Contains(t, HoneypotReasons(f), tt.want)
		})
	}
}

func TestHoneypotReasons_Deduplicated(t *testing.T) {
	f := visible()
	f.Styles["clip"] = "rect(0px, 0px, 0px, 0px)"
	f.Styles["clipPath"] = "inset(100%)"
	count := 0
	for _, r := range HoneypotReasons(f) {
		if r == "Clipped to nothing" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestPixels(t *testing.T) {
	assert.Equal(t, -9999.0, pixels("-9999px"))
	assert.Equal(t, 0.0, pixels("auto"))
	assert.Equal(t, 12.5, pixels(" 12.5px "))
}

func TestConfigFallbacks(t *testing.T) {
	var c Config
	assert.Equal(t, 1366, c.GetViewportWidth())
	assert.Equal(t, 900, c.GetViewportHeight())
	assert.Equal(t, "30s", c.NavigationTimeout().String())
}
