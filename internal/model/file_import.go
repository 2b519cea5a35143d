package model

import "time"

// ImportStatus is the lifecycle state of a source-file import.
type ImportStatus string

const (
	ImportInProgress ImportStatus = "in_progress"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
	ImportRolledBack ImportStatus = "rolled_back"
)

// FileImport tracks the ingestion of one source file, unique on content hash.
type FileImport struct {
	ID               int64        `json:"id" db:"id"`
	FileName         string       `json:"file_name" db:"file_name"`
	FilePath         string       `json:"file_path" db:"file_path"`
	FileHash         string       `json:"file_hash" db:"file_hash"`
	FileSize         int64        `json:"file_size" db:"file_size"`
	RowCount         int          `json:"row_count" db:"row_count"`
	SourceType       string       `json:"source_type" db:"source_type"`
	Status           ImportStatus `json:"status" db:"status"`
	RecordsCreated   int          `json:"records_created" db:"records_created"`
	RecordsUpdated   int          `json:"records_updated" db:"records_updated"`
	RecordsUnchanged int          `json:"records_unchanged" db:"records_unchanged"`
	RecordsTouched   int          `json:"records_touched" db:"records_touched"`
	ErrorMessage     string       `json:"error_message,omitempty" db:"error_message"`
	ImportedBy       string       `json:"imported_by,omitempty" db:"imported_by"`
	StartedAt        time.Time    `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

// ImportStats are the per-outcome counts recorded on completion.
type ImportStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Touched is the number of contractor rows the import created or updated.
func (s ImportStats) Touched() int { return s.Created + s.Updated }

// ChangeAction is the kind of change recorded in contractor history.
type ChangeAction string

const (
	ActionInsert ChangeAction = "INSERT"
	ActionUpdate ChangeAction = "UPDATE"
	ActionDelete ChangeAction = "DELETE"
	ActionMerge  ChangeAction = "MERGE"
)

// HistoryEntry is one parsed contractor_history row. When the stored JSON
// cannot be parsed, Corrupt is set and the raw text is kept in RawOld/RawNew.
type HistoryEntry struct {
	ID           int64          `json:"id"`
	ContractorID int64          `json:"contractor_id"`
	Action       ChangeAction   `json:"action"`
	OldValues    map[string]any `json:"old_values,omitempty"`
	NewValues    map[string]any `json:"new_values,omitempty"`
	RawOld       string         `json:"raw_old,omitempty"`
	RawNew       string         `json:"raw_new,omitempty"`
	Corrupt      bool           `json:"corrupt,omitempty"`
	Source       string         `json:"source,omitempty"`
	FileImportID *int64         `json:"file_import_id,omitempty"`
	ChangedBy    string         `json:"changed_by,omitempty"`
	ChangedAt    time.Time      `json:"changed_at"`
}

// LockInfo describes the current holder of the import lock.
type LockInfo struct {
	Holder     string    `json:"holder"`
	Reason     string    `json:"reason"`
	AcquiredAt time.Time `json:"acquired_at"`
	AgeMinutes float64   `json:"age_minutes"`
}
