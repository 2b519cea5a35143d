package pipelinedb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-pipeline/internal/audit"
	"github.com/sells-group/contractor-pipeline/internal/model"
)

// AddOEMDealer records a dealer-locator row. A dealer matching an existing
// contractor marks it "both" (an audited UPDATE) and gains the
// certification; otherwise a new oem_dealer contractor is created.
func (d *DB) AddOEMDealer(ctx context.Context, rec model.OEMRecord, source string, opts ...AddOption) (int64, bool, error) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	meta := audit.Meta{Source: source, FileImportID: o.fileImportID}
	base := rec.Record()
	p := NewSignals(base)
	cert := model.OEMCertification{
		OEMName:     strings.TrimSpace(rec.OEMName),
		Tier:        strings.TrimSpace(rec.Tier),
		ZipSearched: strings.TrimSpace(rec.ZipSearched),
		SourceURL:   strings.TrimSpace(rec.SourceURL),
	}

	var (
		id            int64
		isNew         bool
		before, after map[string]any
		match         *Match
	)
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		m, err := d.findDuplicate(ctx, tx, p)
		if err != nil {
			return err
		}
		if m == nil {
			id, err = d.createContractor(ctx, tx, base, p, source, model.SourceOEMDealer)
			if err != nil {
				return err
			}
			isNew = true
			if err := d.attachRecord(ctx, tx, id, base, p, source, d.cfg.Dedup.CreatedContactConfidence, true); err != nil {
				return err
			}
			return d.insertCertification(ctx, tx, id, cert)
		}

		match, id = m, m.ContractorID
		existing, err := d.getContractor(ctx, tx, id)
		if err != nil {
			return err
		}
		before = existing.Snapshot()
		if existing.SourceType == model.SourceStateLicense {
			existing.SourceType = model.SourceBoth
		}
		existing.UpdatedAt = d.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE contractors SET source_type = ?, updated_at = ? WHERE id = ?`,
			string(existing.SourceType), formatTime(existing.UpdatedAt), id,
		); err != nil {
			return eris.Wrapf(err, "pipelinedb: mark contractor %d as both", id)
		}
		after = existing.Snapshot()
		if err := d.insertDedupMatch(ctx, tx, id, m, source); err != nil {
			return err
		}
		return d.insertCertification(ctx, tx, id, cert)
	})
	if err != nil {
		return 0, false, eris.Wrapf(err, "pipelinedb: add oem dealer %q", rec.CompanyName)
	}

	if isNew {
		d.metrics.OEMDealer("created")
		values := recordValues(base, p)
		values["source"] = source
		values["source_type"] = string(model.SourceOEMDealer)
		values["oem_name"] = cert.OEMName
		return id, true, d.trail.LogInsert(ctx, id, values, meta)
	}

	d.metrics.OEMDealer("matched")
	d.metrics.ContractorMerged(string(match.Type))
	logged, err := d.trail.LogUpdate(ctx, id, before, after, meta)
	if err != nil {
		return id, false, err
	}
	if !logged {
		merged := recordValues(base, p)
		merged["oem_name"] = cert.OEMName
		merged["match_type"] = string(match.Type)
		return id, false, d.trail.LogMerge(ctx, id, before, merged, meta)
	}
	return id, false, nil
}

func (d *DB) insertCertification(ctx context.Context, q querier, contractorID int64, c model.OEMCertification) error {
	if c.OEMName == "" {
		return nil
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO oem_certifications (contractor_id, oem_name, tier, zip_searched, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (contractor_id, oem_name) DO NOTHING`,
		contractorID, c.OEMName, c.Tier, c.ZipSearched, c.SourceURL, d.timestamp(),
	)
	return eris.Wrapf(err, "pipelinedb: insert certification for %d", contractorID)
}

// AddOEMCertification attaches a certification. Existing (contractor, oem)
// pairs are left untouched.
func (d *DB) AddOEMCertification(ctx context.Context, contractorID int64, c model.OEMCertification) error {
	c.OEMName = strings.TrimSpace(c.OEMName)
	if c.OEMName == "" {
		return eris.New("pipelinedb: certification requires oem name")
	}
	return d.insertCertification(ctx, d.sql, contractorID, c)
}

// ListOEMCertifications returns a contractor's certifications.
func (d *DB) ListOEMCertifications(ctx context.Context, contractorID int64) ([]model.OEMCertification, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, contractor_id, oem_name, tier, zip_searched, source_url, created_at
		 FROM oem_certifications WHERE contractor_id = ? ORDER BY oem_name`, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: list certifications %d", contractorID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.OEMCertification
	for rows.Next() {
		var (
			c       model.OEMCertification
			created string
		)
		if err := rows.Scan(&c.ID, &c.ContractorID, &c.OEMName, &c.Tier, &c.ZipSearched, &c.SourceURL, &created); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan certification")
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "pipelinedb: iterate certifications")
}

// UpsertSPWRanking records a Solar Power World placement, replacing the
// rank for an existing (contractor, year, list).
func (d *DB) UpsertSPWRanking(ctx context.Context, r model.SPWRanking) error {
	if r.ListName == "" || r.Year == 0 {
		return eris.New("pipelinedb: spw ranking requires list name and year")
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO spw_rankings (contractor_id, year, list_name, rank, kw_installed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (contractor_id, year, list_name) DO UPDATE SET
			rank = excluded.rank,
			kw_installed = excluded.kw_installed`,
		r.ContractorID, r.Year, r.ListName, r.Rank, r.KWInstalled, d.timestamp(),
	)
	return eris.Wrapf(err, "pipelinedb: upsert spw ranking for %d", r.ContractorID)
}

// ListSPWRankings returns a contractor's placements, newest year first.
func (d *DB) ListSPWRankings(ctx context.Context, contractorID int64) ([]model.SPWRanking, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, contractor_id, year, list_name, rank, kw_installed, created_at
		 FROM spw_rankings WHERE contractor_id = ? ORDER BY year DESC, list_name`, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: list spw rankings %d", contractorID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SPWRanking
	for rows.Next() {
		var (
			r       model.SPWRanking
			created string
		)
		if err := rows.Scan(&r.ID, &r.ContractorID, &r.Year, &r.ListName, &r.Rank, &r.KWInstalled, &created); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan spw ranking")
		}
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "pipelinedb: iterate spw rankings")
}
