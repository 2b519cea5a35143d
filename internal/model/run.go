package model

import "time"

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// PipelineRun is the append-only record of one ingestion batch.
type PipelineRun struct {
	ID                int64      `json:"id" db:"id"`
	Source            string     `json:"source" db:"source"`
	InputFile         string     `json:"input_file,omitempty" db:"input_file"`
	Status            RunStatus  `json:"status" db:"status"`
	InputCount        int        `json:"input_count" db:"input_count"`
	NewCount          int        `json:"new_count" db:"new_count"`
	MergedCount       int        `json:"merged_count" db:"merged_count"`
	MultiLicenseFound int        `json:"multi_license_found" db:"multi_license_found"`
	UnicornsFound     int        `json:"unicorns_found" db:"unicorns_found"`
	DurationSeconds   float64    `json:"duration_seconds" db:"duration_seconds"`
	ErrorMessage      string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunStats holds the counters recorded when a pipeline run completes.
type RunStats struct {
	InputCount        int
	NewCount          int
	MergedCount       int
	MultiLicenseFound int
	UnicornsFound     int
	Duration          time.Duration
}

// MatchType names the signal that identified a duplicate.
type MatchType string

const (
	MatchPhone     MatchType = "phone"
	MatchEmail     MatchType = "email"
	MatchDomain    MatchType = "domain"
	MatchFuzzyName MatchType = "fuzzy_name"
)

// DedupMatch records why an input row was merged into a contractor.
type DedupMatch struct {
	ID           int64     `json:"id" db:"id"`
	ContractorID int64     `json:"contractor_id" db:"contractor_id"`
	MatchType    MatchType `json:"match_type" db:"match_type"`
	MatchValue   string    `json:"match_value" db:"match_value"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	Source       string    `json:"source,omitempty" db:"source"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
