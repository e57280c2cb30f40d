package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" env:"CROSSREF_LOG_LEVEL"`      // debug, info, warn, error
	Format     string          `yaml:"format"`                              // json, text
	Dir        string          `yaml:"dir"`                                 // per-category log files
	DebugMode  bool            `yaml:"debug_mode" env:"CROSSREF_DEBUG"`     // Master toggle - false = no log files
	Categories map[string]bool `yaml:"categories"`                          // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is false (production mode).
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// JSONFormat reports whether log files use the JSON encoder.
func (c *LoggingConfig) JSONFormat() bool {
	return c.Format == "json"
}
