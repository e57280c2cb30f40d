package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crossref/internal/logging"
	"crossref/internal/types"
)

// VerdictRecord is one verdict ready to be written for a feature.
type VerdictRecord struct {
	FeatureID   string
	Verdict     types.Verdict
	Individuals []string
	// Provisional verdicts came from incomplete evidence; the feature stays
	// pending and any later verdict may replace them.
	Provisional bool
	RunID       string
}

// StoredVerdict is a verdicts row as persisted.
type StoredVerdict struct {
	FeatureID               string
	SubjectName             string
	BlackBookStatus         string
	BlackBookMatches        string
	DOJStatus               types.SearchStatus
	DOJResults              string
	Verdict                 types.VerdictKind
	Score                   float64
	Rationale               string
	FalsePositiveIndicators string
	IndividualsSearched     string
	InBlackBook             string
	Provisional             bool
	Overridden              bool
	RunID                   string
	CheckedAt               time.Time
}

// SaveVerdict upserts a verdict and, for final verdicts, clears the feature's
// needs_xref flag, in one transaction. An existing final verdict of higher
// rank is kept unless force is set; a provisional record never replaces a
// final one. It reports whether the row was written.
func (s *Store) SaveVerdict(ctx context.Context, rec VerdictRecord, force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := rec.Verdict
	bbStatus := "no_match"
	if len(v.Static) > 0 {
		bbStatus = "match"
	}
	dojStatus := types.StatusSkipped
	if v.Online != nil && v.Online.Status != "" {
		dojStatus = v.Online.Status
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO verdicts (
			feature_id, subject_name, black_book_status, black_book_matches,
			doj_status, doj_results, combined_verdict, verdict_rank, confidence_score,
			verdict_rationale, false_positive_indicators, individuals_searched,
			in_black_book, provisional, overridden, run_id, checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feature_id) DO UPDATE SET
			subject_name = excluded.subject_name,
			black_book_status = excluded.black_book_status,
			black_book_matches = excluded.black_book_matches,
			doj_status = excluded.doj_status,
			doj_results = excluded.doj_results,
			combined_verdict = excluded.combined_verdict,
			verdict_rank = excluded.verdict_rank,
			confidence_score = excluded.confidence_score,
			verdict_rationale = excluded.verdict_rationale,
			false_positive_indicators = excluded.false_positive_indicators,
			individuals_searched = excluded.individuals_searched,
			in_black_book = excluded.in_black_book,
			provisional = excluded.provisional,
			overridden = excluded.overridden,
			run_id = excluded.run_id,
			checked_at = excluded.checked_at
		WHERE ? = 1
			OR verdicts.provisional = 1
			OR (excluded.provisional = 0 AND excluded.verdict_rank >= verdicts.verdict_rank)`,
		rec.FeatureID, v.Subject, bbStatus, EncodeStatic(v.Static),
		string(dojStatus), EncodeOnline(v.Online), string(v.Kind), v.Kind.Rank(), v.Score,
		v.Rationale, EncodeCapped(nonNil(v.FalsePositiveIndicators), MaxJSONChars), EncodeCapped(nonNil(rec.Individuals), MaxJSONChars),
		v.Kind.InBlackBook(), boolInt(rec.Provisional), boolInt(v.Overridden), rec.RunID, now(),
		boolInt(force),
	)
	if err != nil {
		return false, fmt.Errorf("upsert verdict %s: %w", rec.FeatureID, err)
	}
	n, _ := res.RowsAffected()
	written := n > 0

	// A kept stronger verdict still completes the feature.
	if !rec.Provisional {
		if err := markDone(ctx, tx, rec.FeatureID); err != nil {
			return false, fmt.Errorf("mark done %s: %w", rec.FeatureID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	if written {
		logging.StoreDebug("Saved %s for %s (provisional=%v)", v.Kind, rec.FeatureID, rec.Provisional)
	} else {
		logging.StoreDebug("Kept stronger verdict for %s", rec.FeatureID)
	}
	return written, nil
}

// GetVerdict returns the stored verdict for a feature.
func (s *Store) GetVerdict(ctx context.Context, featureID string) (*StoredVerdict, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT feature_id, subject_name, black_book_status, black_book_matches,
			doj_status, doj_results, combined_verdict, confidence_score,
			verdict_rationale, false_positive_indicators, individuals_searched,
			in_black_book, provisional, overridden, run_id, checked_at
		FROM verdicts WHERE feature_id = ?`, featureID)

	var sv StoredVerdict
	var doj, kind, checked string
	var provisional, overridden int
	err := row.Scan(&sv.FeatureID, &sv.SubjectName, &sv.BlackBookStatus, &sv.BlackBookMatches,
		&doj, &sv.DOJResults, &kind, &sv.Score,
		&sv.Rationale, &sv.FalsePositiveIndicators, &sv.IndividualsSearched,
		&sv.InBlackBook, &provisional, &overridden, &sv.RunID, &checked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("verdict %s: %w", featureID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	sv.DOJStatus = types.SearchStatus(doj)
	sv.Verdict = types.VerdictKind(kind)
	sv.Provisional = provisional == 1
	sv.Overridden = overridden == 1
	sv.CheckedAt, _ = time.Parse(time.RFC3339, checked)
	return &sv, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
