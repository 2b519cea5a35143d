// Package warehouse publishes the deduplicated contractor snapshot to a
// Postgres reporting schema.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/db"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

// DefaultSchema is the Postgres schema tables are created in.
const DefaultSchema = "leads"

// Source lists the contractors to publish.
type Source interface {
	ListContractors(ctx context.Context, f pipelinedb.ContractorFilter) ([]pipelinedb.ExportRecord, error)
}

// Result reports one publish.
type Result struct {
	Contractors int64     `json:"contractors"`
	Licenses    int64     `json:"licenses"`
	Pruned      int64     `json:"pruned"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher upserts contractors and their license types into Postgres.
type Publisher struct {
	pool      db.Pool
	schema    string
	batchSize int
	log       *zap.Logger
	now       func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSchema overrides DefaultSchema.
func WithSchema(schema string) Option {
	return func(p *Publisher) {
		if schema != "" {
			p.schema = schema
		}
	}
}

// WithBatchSize sets how many rows go into one upsert transaction.
func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Publisher) { p.log = log }
}

// WithClock injects the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// New creates a Publisher over pool.
func New(pool db.Pool, opts ...Option) *Publisher {
	p := &Publisher{
		pool:      pool,
		schema:    DefaultSchema,
		batchSize: 1000,
		log:       zap.L(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var contractorColumns = []string{
	"contractor_id", "company_name", "category_count", "categories", "license_types",
	"primary_phone", "primary_email", "primary_domain", "contact_name",
	"street", "city", "state", "zip", "oem_brands", "source_type", "is_unicorn", "published_at",
}

var licenseColumns = []string{"contractor_id", "license_type"}

func (p *Publisher) table(name string) string { return p.schema + "." + name }

// Migrate creates the schema and tables if they do not exist.
func (p *Publisher) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, db.Sanitize(p.schema)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			contractor_id  BIGINT PRIMARY KEY,
			company_name   TEXT NOT NULL,
			category_count INTEGER NOT NULL DEFAULT 0,
			categories     TEXT[] NOT NULL DEFAULT '{}',
			license_types  TEXT[] NOT NULL DEFAULT '{}',
			primary_phone  TEXT NOT NULL DEFAULT '',
			primary_email  TEXT NOT NULL DEFAULT '',
			primary_domain TEXT NOT NULL DEFAULT '',
			contact_name   TEXT NOT NULL DEFAULT '',
			street         TEXT NOT NULL DEFAULT '',
			city           TEXT NOT NULL DEFAULT '',
			state          TEXT NOT NULL DEFAULT '',
			zip            TEXT NOT NULL DEFAULT '',
			oem_brands     TEXT[] NOT NULL DEFAULT '{}',
			source_type    TEXT NOT NULL DEFAULT '',
			is_unicorn     BOOLEAN NOT NULL DEFAULT FALSE,
			published_at   TIMESTAMPTZ NOT NULL
		)`, db.Sanitize(p.table("contractors"))),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			contractor_id BIGINT NOT NULL REFERENCES %s (contractor_id) ON DELETE CASCADE,
			license_type  TEXT NOT NULL,
			PRIMARY KEY (contractor_id, license_type)
		)`, db.Sanitize(p.table("contractor_licenses")), db.Sanitize(p.table("contractors"))),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "warehouse: migrate")
		}
	}
	return nil
}

// Publish upserts every contractor src lists for f. An unfiltered publish
// is a full snapshot: rows it did not touch (deleted or rolled back since
// the last publish) are pruned.
func (p *Publisher) Publish(ctx context.Context, src Source, f pipelinedb.ContractorFilter) (*Result, error) {
	recs, err := src.ListContractors(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: list contractors")
	}

	res := &Result{PublishedAt: p.now().UTC()}
	contractors := make([][]any, 0, len(recs))
	var licenses [][]any
	for _, r := range recs {
		contractors = append(contractors, []any{
			r.ContractorID, r.CompanyName, r.CategoryCount, nonNil(r.Categories), nonNil(r.LicenseTypes),
			r.PrimaryPhone, r.PrimaryEmail, r.PrimaryDomain, r.ContactName,
			r.Street, r.City, r.State, r.Zip, nonNil(r.OEMBrands), r.SourceType, r.IsUnicorn, res.PublishedAt,
		})
		for _, lt := range r.LicenseTypes {
			licenses = append(licenses, []any{r.ContractorID, lt})
		}
	}

	if res.Contractors, err = p.upsert(ctx, db.UpsertConfig{
		Table:        p.table("contractors"),
		Columns:      contractorColumns,
		ConflictKeys: []string{"contractor_id"},
	}, contractors); err != nil {
		return nil, err
	}
	if res.Licenses, err = p.upsert(ctx, db.UpsertConfig{
		Table:        p.table("contractor_licenses"),
		Columns:      licenseColumns,
		ConflictKeys: licenseColumns,
	}, licenses); err != nil {
		return nil, err
	}

	if f == (pipelinedb.ContractorFilter{}) {
		tag, err := p.pool.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE published_at < $1`, db.Sanitize(p.table("contractors"))),
			res.PublishedAt)
		if err != nil {
			return nil, eris.Wrap(err, "warehouse: prune stale contractors")
		}
		res.Pruned = tag.RowsAffected()
	}

	p.log.Info("warehouse publish complete",
		zap.String("schema", p.schema),
		zap.Int64("contractors", res.Contractors),
		zap.Int64("licenses", res.Licenses),
		zap.Int64("pruned", res.Pruned),
	)
	return res, nil
}

func (p *Publisher) upsert(ctx context.Context, cfg db.UpsertConfig, rows [][]any) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += p.batchSize {
		end := min(start+p.batchSize, len(rows))
		n, err := db.BulkUpsert(ctx, p.pool, cfg, rows[start:end])
		if err != nil {
			return total, eris.Wrapf(err, "warehouse: upsert %s rows %d-%d", cfg.Table, start, end)
		}
		total += n
	}
	return total, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
