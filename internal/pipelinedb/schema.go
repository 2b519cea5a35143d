package pipelinedb

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-pipeline/internal/audit"
)

// Timestamps are stored as fixed-width UTC TEXT (audit.TimeLayout).
const schema = `
CREATE TABLE IF NOT EXISTS contractors (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	company_name    TEXT NOT NULL DEFAULT '',
	normalized_name TEXT NOT NULL DEFAULT '',
	primary_phone   TEXT NOT NULL DEFAULT '',
	primary_email   TEXT NOT NULL DEFAULT '',
	primary_domain  TEXT NOT NULL DEFAULT '',
	website         TEXT NOT NULL DEFAULT '',
	street          TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL DEFAULT '',
	zip             TEXT NOT NULL DEFAULT '',
	source_type     TEXT NOT NULL DEFAULT 'state_license',
	source          TEXT NOT NULL DEFAULT '',
	is_deleted      INTEGER NOT NULL DEFAULT 0,
	deleted_at      TEXT,
	deleted_by      TEXT NOT NULL DEFAULT '',
	deletion_reason TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contractors_phone ON contractors(primary_phone) WHERE primary_phone <> '';
CREATE INDEX IF NOT EXISTS idx_contractors_email ON contractors(primary_email) WHERE primary_email <> '';
CREATE INDEX IF NOT EXISTS idx_contractors_domain ON contractors(primary_domain) WHERE primary_domain <> '';
CREATE INDEX IF NOT EXISTS idx_contractors_state_prefix ON contractors(state, substr(normalized_name, 1, 3));

CREATE TABLE IF NOT EXISTS contacts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	contractor_id INTEGER NOT NULL REFERENCES contractors(id),
	name          TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	confidence    INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	UNIQUE (contractor_id, name, email, phone)
);

CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts(phone) WHERE phone <> '';
CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email) WHERE email <> '';

CREATE TABLE IF NOT EXISTS licenses (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	contractor_id    INTEGER NOT NULL REFERENCES contractors(id),
	state            TEXT NOT NULL,
	license_type     TEXT NOT NULL,
	license_number   TEXT NOT NULL DEFAULT '',
	license_category TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	UNIQUE (contractor_id, state, license_type)
);

CREATE INDEX IF NOT EXISTS idx_licenses_category ON licenses(license_category);

CREATE TABLE IF NOT EXISTS oem_certifications (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	contractor_id INTEGER NOT NULL REFERENCES contractors(id),
	oem_name      TEXT NOT NULL,
	tier          TEXT NOT NULL DEFAULT '',
	zip_searched  TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	UNIQUE (contractor_id, oem_name)
);

CREATE TABLE IF NOT EXISTS spw_rankings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	contractor_id INTEGER NOT NULL REFERENCES contractors(id),
	year          INTEGER NOT NULL,
	list_name     TEXT NOT NULL,
	rank          INTEGER NOT NULL,
	kw_installed  REAL NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	UNIQUE (contractor_id, year, list_name)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	source              TEXT NOT NULL,
	input_file          TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'running',
	input_count         INTEGER NOT NULL DEFAULT 0,
	new_count           INTEGER NOT NULL DEFAULT 0,
	merged_count        INTEGER NOT NULL DEFAULT 0,
	multi_license_found INTEGER NOT NULL DEFAULT 0,
	unicorns_found      INTEGER NOT NULL DEFAULT 0,
	duration_seconds    REAL NOT NULL DEFAULT 0,
	error_message       TEXT NOT NULL DEFAULT '',
	started_at          TEXT NOT NULL,
	completed_at        TEXT
);

CREATE TABLE IF NOT EXISTS dedup_matches (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	contractor_id INTEGER NOT NULL REFERENCES contractors(id),
	match_type    TEXT NOT NULL,
	match_value   TEXT NOT NULL DEFAULT '',
	confidence    REAL NOT NULL DEFAULT 0,
	source        TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dedup_matches_contractor ON dedup_matches(contractor_id);

CREATE TABLE IF NOT EXISTS file_imports (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name         TEXT NOT NULL,
	file_path         TEXT NOT NULL DEFAULT '',
	file_hash         TEXT NOT NULL UNIQUE,
	file_size         INTEGER NOT NULL DEFAULT 0,
	row_count         INTEGER NOT NULL DEFAULT 0,
	source_type       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'in_progress',
	records_created   INTEGER NOT NULL DEFAULT 0,
	records_updated   INTEGER NOT NULL DEFAULT 0,
	records_unchanged INTEGER NOT NULL DEFAULT 0,
	records_touched   INTEGER NOT NULL DEFAULT 0,
	error_message     TEXT NOT NULL DEFAULT '',
	imported_by       TEXT NOT NULL DEFAULT '',
	started_at        TEXT NOT NULL,
	completed_at      TEXT
);
`

// resetOrder lists tables children first so deletes satisfy foreign keys.
var resetOrder = []string{
	"contractor_history",
	"dedup_matches",
	"spw_rankings",
	"oem_certifications",
	"licenses",
	"contacts",
	"contractors",
	"pipeline_runs",
	"file_imports",
	"import_locks",
}

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.sql.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "pipelinedb: migrate")
	}
	if _, err := d.sql.ExecContext(ctx, audit.Schema); err != nil {
		return eris.Wrap(err, "pipelinedb: migrate audit tables")
	}
	return nil
}
