package pipelinedb

import (
	"context"
	"database/sql"
	"fmt"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/model"
	"github.com/sells-group/contractor-pipeline/internal/normalize"
)

// Match confidences recorded on dedup_matches. Fuzzy matches record the
// computed ratio instead.
const (
	phoneConfidence  = 1.0
	emailConfidence  = 0.95
	domainConfidence = 0.9
)

// prefixLength is the exact-prefix width used to narrow fuzzy candidates.
// It matches the expression index on contractors.
const prefixLength = 3

// Signals holds the normalized matching fields of one input row.
type Signals struct {
	Phone          string
	Email          string
	Domain         string
	CompanyName    string
	NormalizedName string
	State          string
}

// NewSignals normalizes the matching signals of a record.
func NewSignals(rec model.Record) Signals {
	email := normalize.Email(rec.Email)
	domain := normalize.ExtractDomain(email)
	if domain == "" {
		domain = normalize.WebsiteDomain(rec.Website)
	}
	return Signals{
		Phone:          normalize.Phone(rec.Phone),
		Email:          email,
		Domain:         domain,
		CompanyName:    rec.CompanyName,
		NormalizedName: normalize.CompanyName(rec.CompanyName),
		State:          normalize.State(rec.State),
	}
}

// Match identifies the contractor an input row duplicates and why.
type Match struct {
	ContractorID int64           `json:"contractor_id"`
	Type         model.MatchType `json:"match_type"`
	Value        string          `json:"match_value"`
	Confidence   float64         `json:"confidence"`
}

// FindDuplicate evaluates phone, email, domain and fuzzy name in that order
// and returns the first hit, or nil when the signals match nothing.
// Soft-deleted contractors never match.
func (d *DB) FindDuplicate(ctx context.Context, p Signals) (*Match, error) {
	return d.findDuplicate(ctx, d.sql, p)
}

// FindMatchingContractor runs the same matcher for OEM dealer rows, which
// carry no email. It never writes.
func (d *DB) FindMatchingContractor(ctx context.Context, phone, domain, name, state string) (*Match, error) {
	return d.findDuplicate(ctx, d.sql, Signals{
		Phone:          normalize.Phone(phone),
		Domain:         normalize.WebsiteDomain(domain),
		CompanyName:    name,
		NormalizedName: normalize.CompanyName(name),
		State:          normalize.State(state),
	})
}

func (d *DB) findDuplicate(ctx context.Context, q querier, p Signals) (*Match, error) {
	if p.Phone != "" {
		id, err := d.lookupAnchor(ctx, q, "primary_phone", "phone", p.Phone)
		if err != nil {
			return nil, err
		}
		if id != 0 {
			d.log.Debug("dedup: matched by phone", zap.Int64("contractor_id", id))
			return &Match{ContractorID: id, Type: model.MatchPhone, Value: p.Phone, Confidence: phoneConfidence}, nil
		}
	}

	if p.Email != "" {
		id, err := d.lookupAnchor(ctx, q, "primary_email", "email", p.Email)
		if err != nil {
			return nil, err
		}
		if id != 0 {
			d.log.Debug("dedup: matched by email", zap.Int64("contractor_id", id))
			return &Match{ContractorID: id, Type: model.MatchEmail, Value: p.Email, Confidence: emailConfidence}, nil
		}
	}

	if p.Domain != "" {
		m, err := d.matchDomain(ctx, q, p)
		if err != nil || m != nil {
			return m, err
		}
	}

	if p.State != "" && utf8.RuneCountInString(p.NormalizedName) >= d.cfg.Dedup.MinNameLength {
		return d.matchFuzzyName(ctx, q, p)
	}
	return nil, nil
}

// lookupAnchor finds a live contractor whose primary column, or any of its
// contacts' column, equals value.
func (d *DB) lookupAnchor(ctx context.Context, q querier, primaryCol, contactCol, value string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM contractors WHERE %s = ? AND is_deleted = 0 ORDER BY id LIMIT 1`, primaryCol),
		value,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !eris.Is(err, sql.ErrNoRows) {
		return 0, eris.Wrapf(err, "dedup: lookup %s", primaryCol)
	}

	err = q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT c.id FROM contacts ct
			JOIN contractors c ON c.id = ct.contractor_id
			WHERE ct.%s = ? AND c.is_deleted = 0
			ORDER BY c.id LIMIT 1`, contactCol),
		value,
	).Scan(&id)
	if eris.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "dedup: lookup contact %s", contactCol)
	}
	return id, nil
}

type nameCandidate struct {
	id             int64
	companyName    string
	normalizedName string
}

func (d *DB) candidates(ctx context.Context, q querier, query string, args ...any) ([]nameCandidate, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: query candidates")
	}
	defer rows.Close() //nolint:errcheck

	var out []nameCandidate
	for rows.Next() {
		var c nameCandidate
		if err := rows.Scan(&c.id, &c.companyName, &c.normalizedName); err != nil {
			return nil, eris.Wrap(err, "dedup: scan candidate")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "dedup: iterate candidates")
}

// matchDomain accepts a same-domain contractor only when the names are
// loosely similar, since one domain can host unrelated DBAs.
func (d *DB) matchDomain(ctx context.Context, q querier, p Signals) (*Match, error) {
	cands, err := d.candidates(ctx, q,
		`SELECT id, company_name, normalized_name FROM contractors
		 WHERE primary_domain = ? AND is_deleted = 0
		 ORDER BY id LIMIT ?`,
		p.Domain, d.cfg.Dedup.DomainCandidateLimit,
	)
	if err != nil {
		return nil, err
	}
	for _, c := range cands {
		ratio := normalize.Similarity(p.NormalizedName, c.normalizedName)
		if ratio >= d.cfg.Dedup.DomainThreshold {
			d.log.Debug("dedup: matched by domain",
				zap.Int64("contractor_id", c.id),
				zap.String("domain", p.Domain),
				zap.Float64("ratio", ratio),
			)
			return &Match{ContractorID: c.id, Type: model.MatchDomain, Value: p.Domain, Confidence: domainConfidence}, nil
		}
	}
	return nil, nil
}

// matchFuzzyName compares against same-state contractors sharing the exact
// name prefix. The prefix only narrows the pool; the ratio decides.
func (d *DB) matchFuzzyName(ctx context.Context, q querier, p Signals) (*Match, error) {
	prefix := normalize.Prefix(p.NormalizedName, prefixLength)
	if prefix == "" {
		return nil, nil
	}
	cands, err := d.candidates(ctx, q,
		`SELECT id, company_name, normalized_name FROM contractors
		 WHERE state = ? AND substr(normalized_name, 1, 3) = ? AND is_deleted = 0
		 ORDER BY id LIMIT ?`,
		p.State, prefix, d.cfg.Dedup.FuzzyCandidateLimit,
	)
	if err != nil {
		return nil, err
	}
	for _, c := range cands {
		ratio := normalize.Similarity(p.NormalizedName, c.normalizedName)
		if ratio >= d.cfg.Dedup.FuzzyThreshold {
			d.log.Debug("dedup: matched by fuzzy name",
				zap.Int64("contractor_id", c.id),
				zap.String("candidate", c.companyName),
				zap.Float64("ratio", ratio),
			)
			return &Match{
				ContractorID: c.id,
				Type:         model.MatchFuzzyName,
				Value:        fmt.Sprintf("%s~%s (%.2f)", p.NormalizedName, c.normalizedName, ratio),
				Confidence:   ratio,
			}, nil
		}
	}
	return nil, nil
}
