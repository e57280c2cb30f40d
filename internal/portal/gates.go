package portal

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"crossref/internal/browser"
	"crossref/internal/logging"
)

type gate struct {
	name      string
	selectors []string
}

// passGates clicks through the robot check and the age confirmation, in that
// order, tolerating either being absent, then waits for the search input.
func (c *Client) passGates(ctx context.Context, page *rod.Page) error {
	p := page.Context(ctx)
	gates := []gate{
		{name: "robot", selectors: c.cfg.RobotGate},
		{name: "age", selectors: c.cfg.AgeGate},
	}

	// Wait for the page to render one of the things we know how to handle.
	var all []string
	for _, g := range gates {
		all = append(all, g.selectors...)
	}
	if _, err := c.waitAny(p, append(all, c.cfg.SearchInput)); err != nil {
		return fmt.Errorf("portal page never rendered: %w", ErrNoSearchInput)
	}

	for i, g := range gates {
		el, err := browser.FirstSafeElement(p, g.selectors)
		if err != nil {
			return fmt.Errorf("%s gate: %w", g.name, err)
		}
		if el == nil {
			logging.PortalDebug("%s gate not present", g.name)
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click %s gate: %w", g.name, err)
		}
		logging.Portal("Passed %s gate", g.name)

		// The robot gate reloads the page; wait for what comes next.
		var next []string
		for _, later := range gates[i+1:] {
			next = append(next, later.selectors...)
		}
		if _, err := c.waitAny(p, append(next, c.cfg.SearchInput)); err != nil {
			logging.PortalDebug("nothing rendered after %s gate: %v", g.name, err)
		}
	}

	if _, err := p.Timeout(c.gateTimeout).Element(c.cfg.SearchInput); err != nil {
		return fmt.Errorf("%w: %v", ErrNoSearchInput, err)
	}
	return nil
}

// waitAny waits up to the gate timeout for any selector to match.
func (c *Client) waitAny(p *rod.Page, selectors []string) (*rod.Element, error) {
	race := p.Timeout(c.gateTimeout).Race()
	for _, sel := range selectors {
		if sel != "" {
			race = race.Element(sel)
		}
	}
	return race.Do()
}
