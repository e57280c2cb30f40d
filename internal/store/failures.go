package store

import (
	"context"
	"time"

	"crossref/internal/logging"
)

// =============================================================================
// PER-NAME FAILURE COUNTERS
// =============================================================================

// Failure is one name_failures row.
type Failure struct {
	NameKey   string
	Display   string
	Failures  int
	LastError string
	UpdatedAt time.Time
}

// IncrementFailure bumps the counter for a name and returns the new count.
func (s *Store) IncrementFailure(ctx context.Context, key, display, lastErr string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO name_failures (name_key, display, failures, last_error, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(name_key) DO UPDATE SET
			failures = name_failures.failures + 1,
			display = excluded.display,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		key, display, lastErr, now())
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT failures FROM name_failures WHERE name_key = ?`, key).Scan(&n); err != nil {
		return 0, err
	}
	logging.StoreDebug("Failure %d for %s: %s", n, display, lastErr)
	return n, nil
}

// ResetFailure clears the counter for a name after a successful write.
func (s *Store) ResetFailure(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM name_failures WHERE name_key = ?`, key)
	return err
}

// FailureCounts returns name_key -> failures for every tracked name.
func (s *Store) FailureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name_key, failures FROM name_failures`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

// ListFailures returns tracked names, most failures first.
func (s *Store) ListFailures(ctx context.Context) ([]Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name_key, display, failures, last_error, updated_at
		FROM name_failures ORDER BY failures DESC, name_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var ts string
		if err := rows.Scan(&f.NameKey, &f.Display, &f.Failures, &f.LastError, &ts); err != nil {
			return nil, err
		}
		f.UpdatedAt, _ = time.Parse(time.RFC3339, ts)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ClearFailures removes the counter for key, or every counter when key is
// empty. It returns the number of rows removed.
func (s *Store) ClearFailures(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args := `DELETE FROM name_failures`, []any{}
	if key != "" {
		query, args = query+` WHERE name_key = ?`, append(args, key)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	logging.Store("Cleared %d failure counters", n)
	return n, nil
}
