package pipelinedb

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/model"
)

// StartPipelineRun records the start of an ingestion batch.
func (d *DB) StartPipelineRun(ctx context.Context, source, inputFile string) (int64, error) {
	var id int64
	err := d.sql.QueryRowContext(ctx,
		`INSERT INTO pipeline_runs (source, input_file, status, started_at)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		source, inputFile, string(model.RunStatusRunning), d.timestamp(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "pipelinedb: start run for %s", source)
	}
	d.log.Info("pipeline run started", zap.Int64("run_id", id), zap.String("source", source))
	return id, nil
}

// CompletePipelineRun stamps a run completed with its counters.
func (d *DB) CompletePipelineRun(ctx context.Context, id int64, stats model.RunStats) error {
	res, err := d.sql.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, input_count = ?, new_count = ?, merged_count = ?,
			multi_license_found = ?, unicorns_found = ?, duration_seconds = ?, completed_at = ?
		 WHERE id = ?`,
		string(model.RunStatusCompleted), stats.InputCount, stats.NewCount, stats.MergedCount,
		stats.MultiLicenseFound, stats.UnicornsFound, stats.Duration.Seconds(), d.timestamp(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "pipelinedb: complete run %d", id)
	}
	if err := checkRowsAffected(res, "pipeline run", id); err != nil {
		return err
	}
	d.log.Info("pipeline run completed",
		zap.Int64("run_id", id),
		zap.Int("input", stats.InputCount),
		zap.Int("new", stats.NewCount),
		zap.Int("merged", stats.MergedCount),
		zap.Duration("duration", stats.Duration),
	)
	return nil
}

// FailPipelineRun marks a run failed with runErr's message.
func (d *DB) FailPipelineRun(ctx context.Context, id int64, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := d.sql.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), msg, d.timestamp(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "pipelinedb: fail run %d", id)
	}
	return checkRowsAffected(res, "pipeline run", id)
}

// ListPipelineRuns returns the most recent runs first.
func (d *DB) ListPipelineRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, source, input_file, status, input_count, new_count, merged_count,
			multi_license_found, unicorns_found, duration_seconds, error_message, started_at, completed_at
		 FROM pipeline_runs ORDER BY id DESC LIMIT ?`,
		limitOrDefault(limit, 50),
	)
	if err != nil {
		return nil, eris.Wrap(err, "pipelinedb: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PipelineRun
	for rows.Next() {
		var (
			r         model.PipelineRun
			status    string
			started   string
			completed sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.InputFile, &status, &r.InputCount, &r.NewCount, &r.MergedCount,
			&r.MultiLicenseFound, &r.UnicornsFound, &r.DurationSeconds, &r.ErrorMessage, &started, &completed); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan run")
		}
		r.Status = model.RunStatus(status)
		r.StartedAt = parseTime(started)
		r.CompletedAt = parseNullTime(completed)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "pipelinedb: iterate runs")
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "pipelinedb: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}
