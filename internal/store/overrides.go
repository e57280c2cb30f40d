package store

import (
	"context"
	"fmt"

	"crossref/internal/types"
)

// Override is a review decision stored for a normalized name.
type Override struct {
	NameKey string
	Display string
	Verdict types.VerdictKind
	Reason  string
}

// SetOverride records (or replaces) the review decision for a name.
func (s *Store) SetOverride(ctx context.Context, o Override) error {
	if !o.Verdict.Valid() {
		return fmt.Errorf("invalid verdict %q", o.Verdict)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_overrides (name_key, display, verdict, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name_key) DO UPDATE SET
			display = excluded.display,
			verdict = excluded.verdict,
			reason = excluded.reason,
			created_at = excluded.created_at`,
		o.NameKey, o.Display, string(o.Verdict), o.Reason, now())
	return err
}

// DeleteOverride removes the decision for a name.
func (s *Store) DeleteOverride(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM review_overrides WHERE name_key = ?`, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("override %s: %w", key, ErrNotFound)
	}
	return nil
}

// Overrides returns every stored decision keyed by name key.
func (s *Store) Overrides(ctx context.Context) (map[string]Override, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name_key, display, verdict, reason FROM review_overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Override)
	for rows.Next() {
		var o Override
		var kind string
		if err := rows.Scan(&o.NameKey, &o.Display, &kind, &o.Reason); err != nil {
			return nil, err
		}
		o.Verdict = types.VerdictKind(kind)
		out[o.NameKey] = o
	}
	return out, rows.Err()
}
