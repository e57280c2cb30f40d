package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config holds all crossref configuration.
type Config struct {
	// Reference corpus (the static "black book" text)
	Corpus CorpusConfig `yaml:"corpus"`

	// Online document portal and its browser session
	Portal  PortalConfig  `yaml:"portal"`
	Browser BrowserConfig `yaml:"browser"`

	// Name filtering and false-positive heuristics
	Matching MatchingConfig `yaml:"matching"`

	// Batch orchestration
	Runner RunnerConfig `yaml:"runner"`

	// Persistence
	Store StoreConfig `yaml:"store"`
	Cache CacheConfig `yaml:"cache"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CorpusConfig configures the static reference corpus.
type CorpusConfig struct {
	Path              string `yaml:"path" env:"CROSSREF_CORPUS"`
	ContextChars      int    `yaml:"context_chars"`
	MaxHitsPerPattern int    `yaml:"max_hits_per_pattern"`
}

// MatchingConfig configures name filtering and false-positive heuristics.
type MatchingConfig struct {
	MinWords            int      `yaml:"min_words"`
	MinSurnameLength    int      `yaml:"min_surname_length"`
	SkipWords           []string `yaml:"skip_words"`
	ExtraCommonSurnames []string `yaml:"extra_common_surnames"`
	HighResultThreshold int      `yaml:"high_result_threshold"`
}

// RunnerConfig configures the bulk runner.
type RunnerConfig struct {
	PerNameTimeout string `yaml:"per_name_timeout" env:"CROSSREF_PER_NAME_TIMEOUT"`
	FailureCap     int    `yaml:"failure_cap"`
	StaticWorkers  int    `yaml:"static_workers"`
}

// StoreConfig configures the SQLite verdict store.
type StoreConfig struct {
	Path   string `yaml:"path" env:"CROSSREF_DB"`
	Driver string `yaml:"driver" env:"CROSSREF_DB_DRIVER"` // sqlite3 (cgo) or sqlite (pure Go)
}

// CacheConfig configures the on-disk portal result cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" env:"CROSSREF_CACHE"`
	Path    string `yaml:"path"`
	TTL     string `yaml:"ttl"`
}

// ValidDrivers lists the supported database/sql driver names.
var ValidDrivers = []string{"sqlite3", "sqlite"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Path:              "data/black_book.txt",
			ContextChars:      80,
			MaxHitsPerPattern: 5,
		},
		Portal:  DefaultPortalConfig(),
		Browser: DefaultBrowserConfig(),
		Matching: MatchingConfig{
			MinWords:         2,
			MinSurnameLength: 5,
			SkipWords: []string{
				"anonymous", "unknown", "n/a", "staff", "various",
				"studio", "brothers", "associates", "architects", "design",
				"group", "inc", "llc", "partners", "company", "co",
			},
			HighResultThreshold: 50,
		},
		Runner: RunnerConfig{
			PerNameTimeout: "60s",
			FailureCap:     3,
			StaticWorkers:  runtime.GOMAXPROCS(0),
		},
		Store: StoreConfig{
			Path:   "data/crossref.db",
			Driver: "sqlite3",
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "data/search-cache",
			TTL:     "168h",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Dir:       "logs",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file, then applies CROSSREF_* environment
// overrides. A missing file yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate validates the settings every command needs.
func (c *Config) Validate() error {
	validDriver := false
	for _, d := range ValidDrivers {
		if c.Store.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid store driver: %s (valid: %v)", c.Store.Driver, ValidDrivers)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path not configured (set store.path or CROSSREF_DB)")
	}
	if c.Matching.MinWords < 1 {
		return fmt.Errorf("matching.min_words must be at least 1, got %d", c.Matching.MinWords)
	}
	if c.Runner.FailureCap < 1 {
		return fmt.Errorf("runner.failure_cap must be at least 1, got %d", c.Runner.FailureCap)
	}
	return nil
}

// ValidateOnline validates the settings needed to drive the portal.
func (c *Config) ValidateOnline() error {
	if c.Portal.URL == "" {
		return fmt.Errorf("portal URL not configured (set portal.url or CROSSREF_PORTAL_URL)")
	}
	if c.Portal.SearchInput == "" {
		return fmt.Errorf("portal.search_input selector not configured")
	}
	return nil
}

// GetPerNameTimeout returns the runner's hard per-name timeout.
func (c *Config) GetPerNameTimeout() time.Duration {
	return parseDuration(c.Runner.PerNameTimeout, 60*time.Second)
}

// GetCacheTTL returns the portal result cache TTL.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, 7*24*time.Hour)
}

// GetStaticWorkers returns the static prescan parallelism.
func (c *Config) GetStaticWorkers() int {
	if c.Runner.StaticWorkers < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Runner.StaticWorkers
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
