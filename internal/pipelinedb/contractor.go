package pipelinedb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-pipeline/internal/audit"
	"github.com/sells-group/contractor-pipeline/internal/model"
	"github.com/sells-group/contractor-pipeline/internal/normalize"
)

const contractorColumns = `id, company_name, normalized_name, primary_phone, primary_email,
	primary_domain, website, street, city, state, zip, source_type, source,
	is_deleted, deleted_at, deleted_by, deletion_reason, created_at, updated_at`

type addOptions struct {
	fileImportID *int64
}

// AddOption configures AddContractor and AddOEMDealer.
type AddOption func(*addOptions)

// WithFileImport tags audit records with the file import being processed.
func WithFileImport(id int64) AddOption {
	return func(o *addOptions) { o.fileImportID = &id }
}

// AddContractor resolves rec against the store and either merges it into
// the matching contractor or creates a new one. It returns the contractor
// id and whether it was created. Missing fields are treated as unknown;
// only storage failures return an error, in which case nothing is written.
func (d *DB) AddContractor(ctx context.Context, rec model.Record, source string, opts ...AddOption) (int64, bool, error) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	meta := audit.Meta{Source: source, FileImportID: o.fileImportID}
	p := NewSignals(rec)

	var (
		id     int64
		isNew  bool
		match  *Match
		before map[string]any
		after  map[string]any
	)
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		m, err := d.findDuplicate(ctx, tx, p)
		if err != nil {
			return err
		}
		if m == nil {
			id, err = d.createContractor(ctx, tx, rec, p, source, model.SourceStateLicense)
			if err != nil {
				return err
			}
			isNew = true
			return d.attachRecord(ctx, tx, id, rec, p, source, d.cfg.Dedup.CreatedContactConfidence, true)
		}

		match, id = m, m.ContractorID
		existing, err := d.getContractor(ctx, tx, id)
		if err != nil {
			return err
		}
		before = existing.Snapshot()
		after, err = d.mergeRecord(ctx, tx, existing, rec, p, source, m)
		return err
	})
	if err != nil {
		return 0, false, eris.Wrapf(err, "pipelinedb: add contractor %q", rec.CompanyName)
	}

	if isNew {
		d.metrics.ContractorCreated()
		values := recordValues(rec, p)
		values["source"] = source
		if err := d.trail.LogInsert(ctx, id, values, meta); err != nil {
			return id, true, err
		}
		return id, true, nil
	}

	d.metrics.ContractorMerged(string(match.Type))
	if err := d.trail.LogMerge(ctx, id, before, after, meta); err != nil {
		return id, false, err
	}
	return id, false, nil
}

func (d *DB) createContractor(ctx context.Context, q querier, rec model.Record, p Signals, source string, st model.SourceType) (int64, error) {
	now := d.timestamp()
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO contractors
			(company_name, normalized_name, primary_phone, primary_email, primary_domain, website,
			 street, city, state, zip, source_type, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		strings.TrimSpace(rec.CompanyName), p.NormalizedName, p.Phone, p.Email, p.Domain,
		strings.TrimSpace(rec.Website), strings.TrimSpace(rec.Street), strings.TrimSpace(rec.City),
		p.State, strings.TrimSpace(rec.Zip), string(st), source, now, now,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "pipelinedb: insert contractor")
	}
	return id, nil
}

// attachRecord adds the record's contact and license rows. A created
// contractor gets a contact only for a name or email; a merge adds one for
// any new name/email/phone combination.
func (d *DB) attachRecord(ctx context.Context, q querier, id int64, rec model.Record, p Signals, source string, confidence int, created bool) error {
	contact := model.Contact{
		Name:       strings.TrimSpace(rec.ContactName),
		Email:      p.Email,
		Phone:      p.Phone,
		Title:      strings.TrimSpace(rec.Title),
		Source:     source,
		Confidence: confidence,
	}
	want := contact.Name != "" || contact.Email != ""
	if !created {
		want = want || contact.Phone != ""
	}
	if want {
		if _, err := d.insertContact(ctx, q, id, contact); err != nil {
			return err
		}
	}

	if p.State == "" {
		return nil
	}
	types := rec.Types()
	for _, lt := range types {
		category := ""
		if len(types) == 1 {
			category = strings.ToUpper(strings.TrimSpace(rec.LicenseCategory))
		}
		lic := model.License{
			State:           p.State,
			LicenseType:     lt,
			LicenseNumber:   strings.TrimSpace(rec.LicenseNumber),
			LicenseCategory: category,
			Source:          source,
		}
		if _, err := d.insertLicense(ctx, q, id, lic); err != nil {
			return err
		}
	}
	return nil
}

// mergeRecord folds rec into existing without overwriting its fields and
// records the dedup match. It returns the merged-in values for the audit
// trail.
func (d *DB) mergeRecord(ctx context.Context, q querier, existing *model.Contractor, rec model.Record, p Signals, source string, m *Match) (map[string]any, error) {
	if err := d.attachRecord(ctx, q, existing.ID, rec, p, source, d.cfg.Dedup.MergedContactConfidence, false); err != nil {
		return nil, err
	}

	sourceType := existing.SourceType
	if sourceType == model.SourceOEMDealer && len(rec.Types()) > 0 {
		sourceType = model.SourceBoth
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE contractors SET updated_at = ?, source_type = ? WHERE id = ?`,
		d.timestamp(), string(sourceType), existing.ID,
	); err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: touch contractor %d", existing.ID)
	}

	if err := d.insertDedupMatch(ctx, q, existing.ID, m, source); err != nil {
		return nil, err
	}

	merged := recordValues(rec, p)
	merged["match_type"] = string(m.Type)
	merged["match_value"] = m.Value
	if sourceType != existing.SourceType {
		merged["source_type"] = string(sourceType)
	}
	return merged, nil
}

func recordValues(rec model.Record, p Signals) map[string]any {
	v := map[string]any{
		"company_name":    strings.TrimSpace(rec.CompanyName),
		"normalized_name": p.NormalizedName,
		"primary_phone":   p.Phone,
		"primary_email":   p.Email,
		"primary_domain":  p.Domain,
		"city":            strings.TrimSpace(rec.City),
		"state":           p.State,
	}
	if rec.ContactName != "" {
		v["contact_name"] = strings.TrimSpace(rec.ContactName)
	}
	if types := rec.Types(); len(types) > 0 {
		v["license_types"] = strings.Join(types, ",")
	}
	return v
}

func (d *DB) insertDedupMatch(ctx context.Context, q querier, contractorID int64, m *Match, source string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO dedup_matches (contractor_id, match_type, match_value, confidence, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		contractorID, string(m.Type), m.Value, m.Confidence, source, d.timestamp(),
	)
	return eris.Wrapf(err, "pipelinedb: insert dedup match for %d", contractorID)
}

func (d *DB) insertContact(ctx context.Context, q querier, contractorID int64, c model.Contact) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO contacts (contractor_id, name, email, phone, title, source, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (contractor_id, name, email, phone) DO NOTHING`,
		contractorID, c.Name, c.Email, c.Phone, c.Title, c.Source, c.Confidence, d.timestamp(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "pipelinedb: insert contact for %d", contractorID)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (d *DB) insertLicense(ctx context.Context, q querier, contractorID int64, l model.License) (bool, error) {
	category := l.LicenseCategory
	if category == "" {
		category = d.categories.Category(l.State, l.LicenseType)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO licenses (contractor_id, state, license_type, license_number, license_category, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (contractor_id, state, license_type) DO NOTHING`,
		contractorID, l.State, l.LicenseType, l.LicenseNumber, category, l.Source, d.timestamp(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "pipelinedb: insert license for %d", contractorID)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddLicense attaches a license, deriving its category when omitted. It
// reports false when the (state, type) pair already exists.
func (d *DB) AddLicense(ctx context.Context, contractorID int64, l model.License) (bool, error) {
	l.State = normalize.State(l.State)
	l.LicenseType = strings.ToUpper(strings.TrimSpace(l.LicenseType))
	if l.State == "" || l.LicenseType == "" {
		return false, eris.New("pipelinedb: license requires state and type")
	}
	return d.insertLicense(ctx, d.sql, contractorID, l)
}

// AddContact attaches a contact unless the same name/email/phone already
// exists for the contractor.
func (d *DB) AddContact(ctx context.Context, contractorID int64, c model.Contact) (bool, error) {
	c.Email = normalize.Email(c.Email)
	c.Phone = normalize.Phone(c.Phone)
	c.Name = strings.TrimSpace(c.Name)
	if c.Confidence == 0 {
		c.Confidence = d.cfg.Dedup.MergedContactConfidence
	}
	return d.insertContact(ctx, d.sql, contractorID, c)
}

// GetContractor loads a contractor with its license categories.
func (d *DB) GetContractor(ctx context.Context, id int64) (*model.Contractor, error) {
	return d.getContractor(ctx, d.sql, id)
}

func (d *DB) getContractor(ctx context.Context, q querier, id int64) (*model.Contractor, error) {
	c, err := scanContractor(q.QueryRowContext(ctx,
		`SELECT `+contractorColumns+` FROM contractors WHERE id = ?`, id))
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "contractor %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: get contractor %d", id)
	}
	c.Categories, err = d.categoriesFor(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) categoriesFor(ctx context.Context, q querier, id int64) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT license_category FROM licenses
		 WHERE contractor_id = ? AND license_category <> ''
		 ORDER BY license_category`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: categories for %d", id)
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan category")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "pipelinedb: iterate categories")
}

// scannable is satisfied by *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanContractor(s scannable) (*model.Contractor, error) {
	var (
		c          model.Contractor
		sourceType string
		deletedAt  sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := s.Scan(
		&c.ID, &c.CompanyName, &c.NormalizedName, &c.PrimaryPhone, &c.PrimaryEmail,
		&c.PrimaryDomain, &c.Website, &c.Street, &c.City, &c.State, &c.Zip, &sourceType, &c.Source,
		&c.IsDeleted, &deletedAt, &c.DeletedBy, &c.DeletionReason, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.SourceType = model.SourceType(sourceType)
	c.DeletedAt = parseNullTime(deletedAt)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// ListContacts returns a contractor's contacts, highest confidence first.
func (d *DB) ListContacts(ctx context.Context, contractorID int64) ([]model.Contact, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, contractor_id, name, email, phone, title, source, confidence, created_at
		 FROM contacts WHERE contractor_id = ? ORDER BY confidence DESC, id`, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: list contacts %d", contractorID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Contact
	for rows.Next() {
		var (
			c       model.Contact
			created string
		)
		if err := rows.Scan(&c.ID, &c.ContractorID, &c.Name, &c.Email, &c.Phone, &c.Title, &c.Source, &c.Confidence, &created); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan contact")
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "pipelinedb: iterate contacts")
}

// ListLicenses returns a contractor's licenses.
func (d *DB) ListLicenses(ctx context.Context, contractorID int64) ([]model.License, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, contractor_id, state, license_type, license_number, license_category, source, created_at
		 FROM licenses WHERE contractor_id = ? ORDER BY id`, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: list licenses %d", contractorID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.License
	for rows.Next() {
		var (
			l       model.License
			created string
		)
		if err := rows.Scan(&l.ID, &l.ContractorID, &l.State, &l.LicenseType, &l.LicenseNumber, &l.LicenseCategory, &l.Source, &created); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan license")
		}
		l.CreatedAt = parseTime(created)
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "pipelinedb: iterate licenses")
}

// ListDedupMatches returns the merge events recorded for a contractor.
func (d *DB) ListDedupMatches(ctx context.Context, contractorID int64) ([]model.DedupMatch, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, contractor_id, match_type, match_value, confidence, source, created_at
		 FROM dedup_matches WHERE contractor_id = ? ORDER BY id`, contractorID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: list dedup matches %d", contractorID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DedupMatch
	for rows.Next() {
		var (
			m         model.DedupMatch
			matchType string
			created   string
		)
		if err := rows.Scan(&m.ID, &m.ContractorID, &matchType, &m.MatchValue, &m.Confidence, &m.Source, &created); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan dedup match")
		}
		m.MatchType = model.MatchType(matchType)
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "pipelinedb: iterate dedup matches")
}

// CountContractors returns the number of live contractors, or of all rows
// when includeDeleted is set.
func (d *DB) CountContractors(ctx context.Context, includeDeleted bool) (int, error) {
	query := `SELECT COUNT(*) FROM contractors WHERE is_deleted = 0`
	if includeDeleted {
		query = `SELECT COUNT(*) FROM contractors`
	}
	var n int
	if err := d.sql.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "pipelinedb: count contractors")
	}
	return n, nil
}

// CategoryCounts returns the distinct category count for each id.
func (d *DB) CategoryCounts(ctx context.Context, ids []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(ids))
	for _, id := range ids {
		cats, err := d.categoriesFor(ctx, d.sql, id)
		if err != nil {
			return nil, err
		}
		out[id] = len(cats)
	}
	return out, nil
}
