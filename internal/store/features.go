package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"crossref/internal/logging"
	"crossref/internal/types"
)

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// AddFeatures inserts worklist rows. A feature whose name changed is flagged
// for cross-referencing again; unchanged rows keep their state. It returns the
// number of rows inserted or changed.
func (s *Store) AddFeatures(ctx context.Context, candidates []types.Candidate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO features (feature_id, raw_name, needs_xref, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(feature_id) DO UPDATE SET
			raw_name = excluded.raw_name,
			needs_xref = 1,
			updated_at = excluded.updated_at
		WHERE features.raw_name <> excluded.raw_name`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	changed := 0
	ts := now()
	for _, c := range candidates {
		id := strings.TrimSpace(c.FeatureID)
		if id == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, id, c.RawName, ts)
		if err != nil {
			return 0, fmt.Errorf("add feature %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			changed++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logging.Store("Added %d/%d features", changed, len(candidates))
	return changed, nil
}

// Candidates returns worklist rows ordered by feature id. Only rows flagged
// needs_xref are returned unless includeDone is set.
func (s *Store) Candidates(ctx context.Context, includeDone bool) ([]types.Candidate, error) {
	query := `SELECT feature_id, raw_name FROM features WHERE needs_xref = 1 ORDER BY feature_id`
	if includeDone {
		query = `SELECT feature_id, raw_name FROM features ORDER BY feature_id`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Candidate
	for rows.Next() {
		var c types.Candidate
		if err := rows.Scan(&c.FeatureID, &c.RawName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkDone clears the needs_xref flag for a feature.
func (s *Store) MarkDone(ctx context.Context, featureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markDone(ctx, s.db, featureID)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func markDone(ctx context.Context, db execer, featureID string) error {
	_, err := db.ExecContext(ctx, `UPDATE features SET needs_xref = 0, updated_at = ? WHERE feature_id = ?`, now(), featureID)
	return err
}
