package store

import (
	"context"

	"crossref/internal/types"
)

// Stats summarizes the worklist and verdicts.
type Stats struct {
	Features    int
	Pending     int
	Done        int
	Provisional int
	Failures    int
	Overrides   int
	YesCount    int
	ByVerdict   map[types.VerdictKind]int
}

// Stats returns counts across all tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByVerdict: make(map[types.VerdictKind]int)}

	counts := []struct {
		dst   *int
		query string
	}{
		{&st.Features, `SELECT COUNT(*) FROM features`},
		{&st.Pending, `SELECT COUNT(*) FROM features WHERE needs_xref = 1`},
		{&st.Provisional, `SELECT COUNT(*) FROM verdicts WHERE provisional = 1`},
		{&st.Failures, `SELECT COUNT(*) FROM name_failures`},
		{&st.Overrides, `SELECT COUNT(*) FROM review_overrides`},
		{&st.YesCount, `SELECT COUNT(*) FROM verdicts WHERE in_black_book = 'YES'`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return st, err
		}
	}
	st.Done = st.Features - st.Pending

	rows, err := s.db.QueryContext(ctx, `SELECT combined_verdict, COUNT(*) FROM verdicts GROUP BY combined_verdict`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return st, err
		}
		st.ByVerdict[types.VerdictKind(kind)] = n
	}
	return st, rows.Err()
}
