// Package monitoring watches import health: failing pipeline runs, failed
// file imports and an import lock that has been held too long.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-pipeline/internal/model"
)

// Snapshot is a point-in-time view of import health.
type Snapshot struct {
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	RunFailRate   float64 `json:"run_fail_rate"`

	ImportsTotal      int      `json:"imports_total"`
	ImportsCompleted  int      `json:"imports_completed"`
	ImportsFailed     int      `json:"imports_failed"`
	ImportsInProgress int      `json:"imports_in_progress"`
	FailedFiles       []string `json:"failed_files,omitempty"`

	Lock *model.LockInfo `json:"lock,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Store is the read side of the pipeline database the collector needs.
type Store interface {
	ListPipelineRuns(ctx context.Context, limit int) ([]model.PipelineRun, error)
	ListFileImports(ctx context.Context, limit int) ([]model.FileImport, error)
	CheckLock(ctx context.Context) (*model.LockInfo, error)
}

// scanLimit bounds how many recent runs and imports a snapshot reads.
const scanLimit = 10000

// Collector gathers snapshots from the store.
type Collector struct {
	store Store
	now   func() time.Time
}

// NewCollector creates a collector over st.
func NewCollector(st Store) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect summarizes runs and imports started within the lookback window,
// plus the current lock holder.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListPipelineRuns(ctx, scanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}
	if finished := snap.RunsCompleted + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	imports, err := c.store.ListFileImports(ctx, scanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list imports")
	}
	for _, fi := range imports {
		if fi.StartedAt.Before(cutoff) {
			continue
		}
		snap.ImportsTotal++
		switch fi.Status {
		case model.ImportCompleted:
			snap.ImportsCompleted++
		case model.ImportFailed:
			snap.ImportsFailed++
			snap.FailedFiles = append(snap.FailedFiles, fi.FileName)
		case model.ImportInProgress:
			snap.ImportsInProgress++
		}
	}

	snap.Lock, err = c.store.CheckLock(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: check lock")
	}
	return snap, nil
}
