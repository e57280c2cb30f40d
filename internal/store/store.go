// Package store persists the worklist, verdicts, failure counters and review
// overrides in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"
	_ "modernc.org/sqlite"          // driver "sqlite", no cgo

	"crossref/internal/logging"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the crossref SQLite database.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex // serializes writers
	dbPath string
}

// Open creates or opens the database at path using the named driver
// ("sqlite3" or "sqlite").
func Open(path, driver string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if driver == "" {
		driver = "sqlite3"
	}
	logging.Store("Opening store at %s (driver %s)", path, driver)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS features (
			feature_id TEXT PRIMARY KEY,
			raw_name TEXT NOT NULL,
			needs_xref INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_features_pending ON features(needs_xref)`,
		`CREATE TABLE IF NOT EXISTS verdicts (
			feature_id TEXT PRIMARY KEY,
			subject_name TEXT NOT NULL,
			black_book_status TEXT NOT NULL,
			black_book_matches TEXT NOT NULL DEFAULT '[]',
			doj_status TEXT NOT NULL,
			doj_results TEXT NOT NULL DEFAULT '{}',
			combined_verdict TEXT NOT NULL,
			verdict_rank INTEGER NOT NULL,
			confidence_score REAL NOT NULL,
			verdict_rationale TEXT NOT NULL DEFAULT '',
			false_positive_indicators TEXT NOT NULL DEFAULT '[]',
			individuals_searched TEXT NOT NULL DEFAULT '[]',
			in_black_book TEXT NOT NULL,
			provisional INTEGER NOT NULL DEFAULT 0,
			checked_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_kind ON verdicts(combined_verdict)`,
		`CREATE TABLE IF NOT EXISTS name_failures (
			name_key TEXT PRIMARY KEY,
			display TEXT NOT NULL,
			failures INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS review_overrides (
			name_key TEXT PRIMARY KEY,
			display TEXT NOT NULL,
			verdict TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Migration adds a column missing from an older database.
type Migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []Migration{
	{"verdicts", "overridden", "INTEGER NOT NULL DEFAULT 0"},
	{"verdicts", "run_id", "TEXT NOT NULL DEFAULT ''"},
}

func (s *Store) migrate() error {
	for _, m := range pendingMigrations {
		if s.columnExists(m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s: %w", m.Table, m.Column, err)
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
	}
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func (s *Store) columnExists(table, column string) bool {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		logging.StoreDebug("PRAGMA table_info(%s) failed: %v", table, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
