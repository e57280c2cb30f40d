package browser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-rod/rod"

	"crossref/internal/logging"
)

// =============================================================================
// HONEYPOT DETECTION
// =============================================================================
// Gate pages on the portal sometimes carry decoy buttons that a human cannot
// see. Clicking one flags the session, so every gate control is inspected
// before it is clicked.

// ElementFacts is the snapshot of an element taken in the page.
type ElementFacts struct {
	Styles map[string]string `json:"styles"`
	Attrs  map[string]string `json:"attrs"`
	X      float64           `json:"x"`
	Y      float64           `json:"y"`
	Width  float64           `json:"width"`
	Height float64           `json:"height"`
	HasBox bool              `json:"hasBox"`
}

const factsJS = `() => {
	const cs = window.getComputedStyle(this);
	const styles = {
		display: cs.display,
		visibility: cs.visibility,
		opacity: cs.opacity,
		position: cs.position,
		left: cs.left,
		top: cs.top,
		width: cs.width,
		height: cs.height,
		overflow: cs.overflow,
		clip: cs.clip,
		clipPath: cs.clipPath,
		pointerEvents: cs.pointerEvents,
	};
	const attrs = {};
	for (const a of this.attributes) { attrs[a.name] = a.value; }
	const r = this.getBoundingClientRect();
	return {
		styles: styles,
		attrs: attrs,
		x: r.x, y: r.y, width: r.width, height: r.height,
		hasBox: this.getClientRects().length > 0,
	};
}`

// InspectElement reads the honeypot-relevant facts of el.
func InspectElement(el *rod.Element) (ElementFacts, error) {
	var facts ElementFacts
	res, err := el.Eval(factsJS)
	if err != nil {
		return facts, fmt.Errorf("inspect element: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return facts, fmt.Errorf("inspect element: %w", err)
	}
	if err := json.Unmarshal(raw, &facts); err != nil {
		return facts, fmt.Errorf("decode element facts: %w", err)
	}
	return facts, nil
}

// HoneypotReasons returns why an element looks like a trap. An empty result
// means it is safe to interact with.
func HoneypotReasons(f ElementFacts) []string {
	var reasons []string
	style := func(k string) string { return strings.TrimSpace(strings.ToLower(f.Styles[k])) }

	if style("display") == "none" {
		reasons = append(reasons, "Hidden via display:none")
	}
	if v := style("visibility"); v == "hidden" || v == "collapse" {
		reasons = append(reasons, "Hidden via visibility:hidden")
	}
	if op, err := strconv.ParseFloat(style("opacity"), 64); err == nil && op < 0.1 {
		reasons = append(reasons, "Nearly transparent (opacity < 0.1)")
	}
	if pos := style("position"); pos == "absolute" || pos == "fixed" {
		if pixels(style("left")) <= -1000 || pixels(style("top")) <= -1000 {
			reasons = append(reasons, "Positioned off-screen")
		}
	}
	if f.HasBox && (f.X+f.Width < 0 || f.Y+f.Height < 0) {
		reasons = append(reasons, "Bounding box outside viewport")
	}
	if !f.HasBox || f.Width < 2 || f.Height < 2 {
		reasons = append(reasons, "Zero or near-zero size")
	}
	if style("overflow") == "hidden" && (pixels(style("width")) < 2 || pixels(style("height")) < 2) {
		reasons = append(reasons, "Collapsed container with overflow:hidden")
	}
	if c := style("clip"); strings.HasPrefix(c, "rect(0") {
		reasons = append(reasons, "Clipped to nothing")
	}
	if cp := style("clipPath"); strings.Contains(cp, "inset(50%") || strings.Contains(cp, "inset(100%") {
		reasons = append(reasons, "Clipped to nothing")
	}
	if style("pointerEvents") == "none" {
		reasons = append(reasons, "Pointer events disabled")
	}

	if strings.EqualFold(f.Attrs["aria-hidden"], "true") {
		reasons = append(reasons, "aria-hidden=true")
	}
	if _, ok := f.Attrs["hidden"]; ok {
		reasons = append(reasons, "hidden attribute")
	}
	if ti, err := strconv.Atoi(strings.TrimSpace(f.Attrs["tabindex"])); err == nil && ti < 0 {
		reasons = append(reasons, "Removed from tab order")
	}
	if t := strings.ToLower(f.Attrs["type"]); t == "hidden" {
		reasons = append(reasons, "Hidden input")
	}
	for _, k := range []string{"class", "id", "name"} {
		v := strings.ToLower(f.Attrs[k])
		if strings.Contains(v, "honeypot") || strings.Contains(v, "hp-field") {
			reasons = append(reasons, "Honeypot naming in "+k)
			break
		}
	}
	return dedupe(reasons)
}

// FirstSafeElement returns the first element matching any selector, in order,
// that shows no honeypot signs. It does not wait for elements to appear and
// returns nil when nothing safe is present.
func FirstSafeElement(page *rod.Page, selectors []string) (*rod.Element, error) {
	for _, sel := range selectors {
		els, err := page.Elements(sel)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", sel, err)
		}
		for _, el := range els {
			facts, err := InspectElement(el)
			if err != nil {
				logging.PortalDebug("skip %q: %v", sel, err)
				continue
			}
			if reasons := HoneypotReasons(facts); len(reasons) > 0 {
				logging.PortalWarn("Skipping suspicious element %q: %s", sel, strings.Join(reasons, "; "))
				continue
			}
			return el, nil
		}
	}
	return nil, nil
}

// pixels parses a CSS length such as "-9999px". Unparseable values are 0.
func pixels(v string) float64 {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
