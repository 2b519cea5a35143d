package audit

// Schema creates the tables owned by this package. It is idempotent and is
// included in the pipeline database migration.
const Schema = `
CREATE TABLE IF NOT EXISTS contractor_history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	contractor_id  INTEGER NOT NULL,
	action         TEXT NOT NULL,
	old_values     TEXT,
	new_values     TEXT,
	source         TEXT NOT NULL DEFAULT '',
	file_import_id INTEGER,
	changed_by     TEXT NOT NULL DEFAULT '',
	changed_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_contractor ON contractor_history(contractor_id, changed_at);
CREATE INDEX IF NOT EXISTS idx_history_file_import ON contractor_history(file_import_id, action);

CREATE TABLE IF NOT EXISTS import_locks (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	holder      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	acquired_at INTEGER NOT NULL
);
`

// TimeLayout is the fixed-width UTC layout used for TEXT timestamps so that
// lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"
