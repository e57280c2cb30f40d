package config

import "time"

// PortalConfig configures the gated online document portal.
type PortalConfig struct {
	URL string `yaml:"url" env:"CROSSREF_PORTAL_URL"`

	// Gates: first match that is visible and not a honeypot is clicked
	RobotGate []string `yaml:"robot_gate"`
	AgeGate   []string `yaml:"age_gate"`

	// Search form and result page
	SearchInput string   `yaml:"search_input"`
	Submit      string   `yaml:"submit"` // empty = press Enter
	ResultArea  []string `yaml:"result_area"`
	ResultRow   string   `yaml:"result_row"`
	ResultLink  string   `yaml:"result_link"`
	Snippet     string   `yaml:"snippet"`
	Summary     string   `yaml:"summary"`

	GateTimeout       string `yaml:"gate_timeout"`
	ResultTimeout     string `yaml:"result_timeout"`
	NavigationTimeout string `yaml:"navigation_timeout"`

	SearchRetries  int `yaml:"search_retries"`
	GateRetries    int `yaml:"gate_retries"`
	MaxResults     int `yaml:"max_results"`
	CrashThreshold int `yaml:"crash_threshold"`
}

// BrowserConfig configures the Chromium session driven by the portal client.
type BrowserConfig struct {
	Bin            string   `yaml:"bin" env:"CROSSREF_BROWSER_BIN"`
	DebuggerURL    string   `yaml:"debugger_url" env:"CROSSREF_BROWSER_URL"` // attach instead of launching
	Headless       bool     `yaml:"headless" env:"CROSSREF_HEADLESS"`
	NoSandbox      bool     `yaml:"no_sandbox"`
	Flags          []string `yaml:"flags"`
	UserAgent      string   `yaml:"user_agent"`
	ViewportWidth  int      `yaml:"viewport_width"`
	ViewportHeight int      `yaml:"viewport_height"`
}

// DefaultPortalConfig returns portal defaults. The URL has no default.
func DefaultPortalConfig() PortalConfig {
	return PortalConfig{
		RobotGate: []string{
			"#robot-check button",
			"button[data-action='not-a-robot']",
			"input[type='checkbox'][name*='robot']",
		},
		AgeGate: []string{
			"#age-gate button[data-answer='yes']",
			"button[data-action='age-confirm']",
			"#age-verify-yes",
		},
		SearchInput:       "input[type='search'], #search-input, input[name='q']",
		ResultArea:        []string{".search-results", ".no-results"},
		ResultRow:         ".search-results .result",
		ResultLink:        "a",
		Snippet:           ".snippet",
		Summary:           ".results-summary",
		GateTimeout:       "15s",
		ResultTimeout:     "8s",
		NavigationTimeout: "30s",
		SearchRetries:     2,
		GateRetries:       2,
		MaxResults:        10,
		CrashThreshold:    3,
	}
}

// DefaultBrowserConfig returns browser defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:       true,
		ViewportWidth:  1366,
		ViewportHeight: 900,
	}
}

// GetGateTimeout returns the wait for gates and the search input.
func (c *Config) GetGateTimeout() time.Duration {
	return parseDuration(c.Portal.GateTimeout, 15*time.Second)
}

// GetResultTimeout returns the bounded wait for a result-area signal.
func (c *Config) GetResultTimeout() time.Duration {
	return parseDuration(c.Portal.ResultTimeout, 8*time.Second)
}

// GetNavigationTimeout returns the page navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Portal.NavigationTimeout, 30*time.Second)
}
