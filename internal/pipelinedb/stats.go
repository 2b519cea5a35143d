package pipelinedb

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-pipeline/internal/normalize"
)

// Stats summarizes live contractors, optionally for one state.
type Stats struct {
	State                 string         `json:"state,omitempty"`
	TotalContractors      int            `json:"total_contractors"`
	WithEmail             int            `json:"with_email"`
	WithPhone             int            `json:"with_phone"`
	MultiLicense          int            `json:"multi_license"`
	Unicorns              int            `json:"unicorns"`
	MultiLicenseWithEmail int            `json:"multi_license_with_email"`
	DedupMatches          int            `json:"dedup_matches"`
	OEMDealers            int            `json:"oem_dealers"`
	BothSources           int            `json:"both_sources"`
	Categories            map[string]int `json:"categories"`
}

// Empty reports whether no contractors matched, the "no data" signal for
// reporting callers.
func (s *Stats) Empty() bool { return s.TotalContractors == 0 }

// categoryCountsCTE yields (contractor_id, n) distinct categories per
// contractor.
const categoryCountsCTE = `WITH cat AS (
	SELECT contractor_id, COUNT(DISTINCT license_category) AS n
	FROM licenses WHERE license_category <> ''
	GROUP BY contractor_id
)`

// GetStats computes totals for live contractors in state, given as a code or
// a full name in any case. An empty state means all states. An empty store
// yields zero values, not an error.
func (d *DB) GetStats(ctx context.Context, state string) (*Stats, error) {
	state = normalize.State(state)
	s := &Stats{State: state, Categories: map[string]int{}}

	err := d.sql.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN primary_email <> '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN primary_phone <> '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source_type = 'oem_dealer' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source_type = 'both' THEN 1 ELSE 0 END), 0)
		 FROM contractors WHERE is_deleted = 0 AND (? = '' OR state = ?)`,
		state, state,
	).Scan(&s.TotalContractors, &s.WithEmail, &s.WithPhone, &s.OEMDealers, &s.BothSources)
	if err != nil {
		return nil, eris.Wrap(err, "pipelinedb: stats totals")
	}

	err = d.sql.QueryRowContext(ctx, categoryCountsCTE+`
		SELECT
			COALESCE(SUM(CASE WHEN cat.n >= 2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN cat.n >= 3 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN cat.n >= 2 AND c.primary_email <> '' THEN 1 ELSE 0 END), 0)
		FROM contractors c JOIN cat ON cat.contractor_id = c.id
		WHERE c.is_deleted = 0 AND (? = '' OR c.state = ?)`,
		state, state,
	).Scan(&s.MultiLicense, &s.Unicorns, &s.MultiLicenseWithEmail)
	if err != nil {
		return nil, eris.Wrap(err, "pipelinedb: stats multi-license")
	}

	err = d.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dedup_matches m JOIN contractors c ON c.id = m.contractor_id
		 WHERE (? = '' OR c.state = ?)`,
		state, state,
	).Scan(&s.DedupMatches)
	if err != nil {
		return nil, eris.Wrap(err, "pipelinedb: stats dedup matches")
	}

	rows, err := d.sql.QueryContext(ctx,
		`SELECT l.license_category, COUNT(DISTINCT l.contractor_id)
		 FROM licenses l JOIN contractors c ON c.id = l.contractor_id
		 WHERE c.is_deleted = 0 AND l.license_category <> '' AND (? = '' OR c.state = ?)
		 GROUP BY l.license_category`,
		state, state,
	)
	if err != nil {
		return nil, eris.Wrap(err, "pipelinedb: stats categories")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var (
			cat string
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan category count")
		}
		s.Categories[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "pipelinedb: iterate category counts")
	}
	return s, nil
}
