package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Matching.MinWords != 2 {
		t.Errorf("expected MinWords=2, got %d", cfg.Matching.MinWords)
	}
	if cfg.Matching.MinSurnameLength != 5 {
		t.Errorf("expected MinSurnameLength=5, got %d", cfg.Matching.MinSurnameLength)
	}
	if cfg.Runner.FailureCap != 3 {
		t.Errorf("expected FailureCap=3, got %d", cfg.Runner.FailureCap)
	}
	if cfg.Portal.MaxResults != 10 {
		t.Errorf("expected MaxResults=10, got %d", cfg.Portal.MaxResults)
	}
	if !slices.Contains(cfg.Matching.SkipWords, "co") {
		t.Errorf("expected \"co\" in default skip words, got %v", cfg.Matching.SkipWords)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("CROSSREF_PORTAL_URL", "")
	os.Unsetenv("CROSSREF_PORTAL_URL")

	path := filepath.Join(t.TempDir(), "crossref.yaml")

	cfg := DefaultConfig()
	cfg.Portal.URL = "https://portal.example/search"
	cfg.Corpus.Path = "/data/book.pdf"
	cfg.Matching.SkipWords = []string{"estate"}
	cfg.Runner.PerNameTimeout = "45s"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Portal.URL != "https://portal.example/search" {
		t.Errorf("expected portal URL to round-trip, got %s", loaded.Portal.URL)
	}
	if loaded.Corpus.Path != "/data/book.pdf" {
		t.Errorf("expected corpus path to round-trip, got %s", loaded.Corpus.Path)
	}
	if len(loaded.Matching.SkipWords) != 1 || loaded.Matching.SkipWords[0] != "estate" {
		t.Errorf("expected skip words to round-trip, got %v", loaded.Matching.SkipWords)
	}
	if loaded.GetPerNameTimeout() != 45*time.Second {
		t.Errorf("expected 45s per-name timeout, got %v", loaded.GetPerNameTimeout())
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Driver != "sqlite3" {
		t.Errorf("expected default driver, got %s", cfg.Store.Driver)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crossref.yaml")
	if err := os.WriteFile(path, []byte("portal:\n  url: https://p.example\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Portal.URL != "https://p.example" {
		t.Errorf("expected URL from file, got %s", cfg.Portal.URL)
	}
	if cfg.Portal.ResultTimeout != "8s" {
		t.Errorf("expected default result timeout to survive, got %q", cfg.Portal.ResultTimeout)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CROSSREF_PORTAL_URL", "https://env.example")
	t.Setenv("CROSSREF_DB", "/tmp/env.db")
	t.Setenv("CROSSREF_DB_DRIVER", "sqlite")

	path := filepath.Join(t.TempDir(), "crossref.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Portal.URL != "https://env.example" {
		t.Errorf("expected env URL, got %s", cfg.Portal.URL)
	}
	if cfg.Store.Path != "/tmp/env.db" || cfg.Store.Driver != "sqlite" {
		t.Errorf("expected env store settings, got %s/%s", cfg.Store.Path, cfg.Store.Driver)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Driver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid driver")
	}

	cfg = DefaultConfig()
	cfg.Runner.FailureCap = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero failure cap")
	}

	cfg = DefaultConfig()
	if err := cfg.ValidateOnline(); err == nil {
		t.Error("expected online validation error without portal URL")
	}
	cfg.Portal.URL = "https://p.example"
	if err := cfg.ValidateOnline(); err != nil {
		t.Errorf("expected valid online config, got %v", err)
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Portal.ResultTimeout = "not-a-duration"
	if cfg.GetResultTimeout() != 8*time.Second {
		t.Errorf("expected fallback 8s, got %v", cfg.GetResultTimeout())
	}
	if cfg.GetCacheTTL() != 7*24*time.Hour {
		t.Errorf("expected 7d TTL, got %v", cfg.GetCacheTTL())
	}
	cfg.Runner.StaticWorkers = 0
	if cfg.GetStaticWorkers() < 1 {
		t.Error("GetStaticWorkers should never be below 1")
	}

	logCfg := LoggingConfig{DebugMode: true, Categories: map[string]bool{"portal": false}}
	if logCfg.IsCategoryEnabled("portal") {
		t.Error("portal should be disabled")
	}
	if !logCfg.IsCategoryEnabled("runner") {
		t.Error("unlisted category should default to enabled")
	}
}
