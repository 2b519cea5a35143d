package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/contractor-pipeline/internal/ingest"
	"github.com/sells-group/contractor-pipeline/internal/model"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestFormatStats(t *testing.T) {
	var buf bytes.Buffer
	formatStats(&buf, &pipelinedb.Stats{
		State:            "FL",
		TotalContractors: 12,
		MultiLicense:     4,
		Unicorns:         1,
		Categories:       map[string]int{"solar": 3, "hvac": 5},
	})

	out := buf.String()
	assert.Contains(t, out, "FL")
	assert.Contains(t, out, "Contractors")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "Unicorns (3+)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("hvac")), bytes.Index(buf.Bytes(), []byte("solar")))
}

func TestFormatStats_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatStats(&buf, &pipelinedb.Stats{})
	assert.Equal(t, "No contractors found.\n", buf.String())
}

func TestFormatRuns(t *testing.T) {
	var buf bytes.Buffer
	formatRuns(&buf, []model.PipelineRun{{
		ID: 7, Source: "fl_dbpr", Status: model.RunStatusCompleted,
		InputCount: 100, NewCount: 60, MergedCount: 40, MultiLicenseFound: 9,
		DurationSeconds: 2.34, StartedAt: testTime,
	}})

	out := buf.String()
	assert.Contains(t, out, "fl_dbpr")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2026-03-14 09:30")
	assert.Contains(t, out, "2.3s")

	buf.Reset()
	formatRuns(&buf, nil)
	assert.Equal(t, "No runs found.\n", buf.String())
}

func TestFormatImports(t *testing.T) {
	var buf bytes.Buffer
	formatImports(&buf, []model.FileImport{{
		ID: 3, FileName: "fl.csv", SourceType: "state_license", Status: model.ImportFailed,
		ErrorMessage: "ingest: row 2: disk full", StartedAt: testTime,
	}})

	out := buf.String()
	assert.Contains(t, out, "fl.csv")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "disk full")
}

func TestFormatImportResults(t *testing.T) {
	var buf bytes.Buffer
	formatImportResults(&buf, []*ingest.Result{{
		FileImport: &model.FileImport{ID: 1, FileName: "tx.xlsx"},
		Stats:      model.ImportStats{Created: 5, Updated: 2, Unchanged: 1},
		Run:        model.RunStats{MultiLicenseFound: 2, Duration: 1500 * time.Millisecond},
	}})
	assert.Contains(t, buf.String(), "tx.xlsx")
	assert.Contains(t, buf.String(), "1.5s")

	buf.Reset()
	formatImportResults(&buf, nil)
	assert.Equal(t, "No files imported.\n", buf.String())
}

func TestFormatLock(t *testing.T) {
	var buf bytes.Buffer
	formatLock(&buf, nil)
	assert.Equal(t, "Import lock is free.\n", buf.String())

	buf.Reset()
	formatLock(&buf, &model.LockInfo{Holder: "host:42", Reason: "import fl.csv", AcquiredAt: testTime, AgeMinutes: 12.5})
	assert.Contains(t, buf.String(), "host:42")
	assert.Contains(t, buf.String(), "12.5m")
}

func TestDescribeChange(t *testing.T) {
	tests := []struct {
		name  string
		entry model.HistoryEntry
		want  string
	}{
		{
			name:  "insert",
			entry: model.HistoryEntry{NewValues: map[string]any{"company_name": "ABC Solar", "state": "FL"}},
			want:  "company_name: ABC Solar; state: FL",
		},
		{
			name: "update skips unchanged fields",
			entry: model.HistoryEntry{
				OldValues: map[string]any{"primary_email": "", "state": "FL"},
				NewValues: map[string]any{"primary_email": "info@abc.com", "state": "FL"},
			},
			want: "primary_email:  -> info@abc.com",
		},
		{
			name:  "corrupt",
			entry: model.HistoryEntry{Corrupt: true, RawNew: "{bad"},
			want:  "(unparseable)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeChange(tt.entry))
		})
	}
}

func TestFormatHistory(t *testing.T) {
	importID := int64(4)
	var buf bytes.Buffer
	formatHistory(&buf, []model.HistoryEntry{{
		ID: 1, Action: model.ActionMerge, Source: "fl_dbpr", FileImportID: &importID,
		ChangedBy: "ops", ChangedAt: testTime,
		NewValues: map[string]any{"primary_email": "info@abc.com"},
	}})
	out := buf.String()
	assert.Contains(t, out, "MERGE")
	assert.Contains(t, out, "ops")
	assert.Contains(t, out, "info@abc.com")

	buf.Reset()
	formatHistory(&buf, nil)
	assert.Equal(t, "No history found.\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
