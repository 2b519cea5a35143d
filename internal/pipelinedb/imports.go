package pipelinedb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/audit"
	"github.com/sells-group/contractor-pipeline/internal/model"
)

const fileImportColumns = `id, file_name, file_path, file_hash, file_size, row_count, source_type, status,
	records_created, records_updated, records_unchanged, records_touched, error_message, imported_by,
	started_at, completed_at`

// ImportOption adjusts StartFileImport.
type ImportOption func(*importOptions)

type importOptions struct {
	reimport bool
}

// WithReimport lets content whose earlier import failed or was rolled back
// be imported again, reusing that file_imports row. In-progress and
// completed content is still rejected.
func WithReimport() ImportOption {
	return func(o *importOptions) { o.reimport = true }
}

// StartFileImport fingerprints path, rejects content that was already
// imported under any name, takes the import lock and records an in_progress
// import. The lock stays held until CompleteFileImport or FailFileImport.
func (d *DB) StartFileImport(ctx context.Context, path, sourceType string, opts ...ImportOption) (*model.FileImport, error) {
	var o importOptions
	for _, opt := range opts {
		opt(&o)
	}

	info, err := audit.GetFileInfo(path)
	if err != nil {
		return nil, err
	}

	existing, err := d.fileImportByHash(ctx, info.Hash)
	if err != nil {
		return nil, err
	}
	if existing != nil && !(o.reimport && reimportable(existing.Status)) {
		return nil, eris.Wrapf(ErrAlreadyImported,
			"%s has the same content as import %d (%s, %s)", info.Name, existing.ID, existing.FileName, existing.Status)
	}

	ok, err := d.lock.Acquire(ctx, fmt.Sprintf("import %s", info.Name))
	if err != nil {
		return nil, err
	}
	if !ok {
		d.metrics.LockContended()
		holder, err := d.lock.Check(ctx)
		if err != nil {
			return nil, err
		}
		if holder == nil {
			return nil, eris.Wrap(ErrImportLocked, "lock released during acquire, retry")
		}
		return nil, eris.Wrapf(ErrImportLocked, "held by %s (%s) for %.1f minutes",
			holder.Holder, holder.Reason, holder.AgeMinutes)
	}

	fi := &model.FileImport{
		FileName:   info.Name,
		FilePath:   info.Path,
		FileHash:   info.Hash,
		FileSize:   info.Size,
		RowCount:   info.RowCount,
		SourceType: sourceType,
		Status:     model.ImportInProgress,
		ImportedBy: d.lock.Token(),
		StartedAt:  d.now().UTC(),
	}

	if existing != nil {
		fi.ID = existing.ID
		_, err = d.sql.ExecContext(ctx,
			`UPDATE file_imports SET file_name = ?, file_path = ?, file_size = ?, row_count = ?, source_type = ?,
				status = ?, records_created = 0, records_updated = 0, records_unchanged = 0, records_touched = 0,
				error_message = '', imported_by = ?, started_at = ?, completed_at = NULL
			 WHERE id = ?`,
			fi.FileName, fi.FilePath, fi.FileSize, fi.RowCount, fi.SourceType, string(fi.Status),
			fi.ImportedBy, formatTime(fi.StartedAt), fi.ID,
		)
	} else {
		err = d.sql.QueryRowContext(ctx,
			`INSERT INTO file_imports (file_name, file_path, file_hash, file_size, row_count, source_type,
				status, imported_by, started_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			fi.FileName, fi.FilePath, fi.FileHash, fi.FileSize, fi.RowCount, fi.SourceType,
			string(fi.Status), fi.ImportedBy, formatTime(fi.StartedAt),
		).Scan(&fi.ID)
	}
	if err != nil {
		if _, relErr := d.lock.Release(ctx); relErr != nil {
			d.log.Error("pipelinedb: release lock after failed start", zap.Error(relErr))
		}
		return nil, eris.Wrapf(err, "pipelinedb: record file import %s", info.Name)
	}

	d.log.Info("file import started",
		zap.Int64("import_id", fi.ID),
		zap.String("file", fi.FileName),
		zap.String("hash", fi.FileHash),
		zap.Int("rows", fi.RowCount),
		zap.Bool("retry", existing != nil),
	)
	return fi, nil
}

func reimportable(s model.ImportStatus) bool {
	return s == model.ImportFailed || s == model.ImportRolledBack
}

// CompleteFileImport flushes the audit trail, marks the import completed
// with its counts and releases the lock. A lock lost mid-import is logged,
// not returned.
func (d *DB) CompleteFileImport(ctx context.Context, id int64, stats model.ImportStats) error {
	if err := d.trail.Flush(ctx); err != nil {
		return err
	}
	res, err := d.sql.ExecContext(ctx,
		`UPDATE file_imports SET status = ?, records_created = ?, records_updated = ?, records_unchanged = ?,
			records_touched = ?, completed_at = ?
		 WHERE id = ?`,
		string(model.ImportCompleted), stats.Created, stats.Updated, stats.Unchanged, stats.Touched(),
		d.timestamp(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "pipelinedb: complete import %d", id)
	}
	if err := checkRowsAffected(res, "file import", id); err != nil {
		return err
	}
	d.metrics.ImportFinished(string(model.ImportCompleted))
	d.releaseImportLock(ctx, id)
	d.log.Info("file import completed",
		zap.Int64("import_id", id),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
	)
	return nil
}

// FailFileImport marks the import failed with msg and releases the lock.
func (d *DB) FailFileImport(ctx context.Context, id int64, msg string) error {
	if err := d.trail.Flush(ctx); err != nil {
		d.log.Error("pipelinedb: flush audit trail for failed import", zap.Int64("import_id", id), zap.Error(err))
	}
	res, err := d.sql.ExecContext(ctx,
		`UPDATE file_imports SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(model.ImportFailed), msg, d.timestamp(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "pipelinedb: fail import %d", id)
	}
	if err := checkRowsAffected(res, "file import", id); err != nil {
		return err
	}
	d.metrics.ImportFinished(string(model.ImportFailed))
	d.releaseImportLock(ctx, id)
	d.log.Warn("file import failed", zap.Int64("import_id", id), zap.String("error", msg))
	return nil
}

func (d *DB) releaseImportLock(ctx context.Context, id int64) {
	released, err := d.lock.Release(ctx)
	if err != nil {
		d.log.Error("pipelinedb: release import lock", zap.Int64("import_id", id), zap.Error(err))
		return
	}
	if !released {
		d.log.Warn("import lock was not held at release; it may have expired mid-import",
			zap.Int64("import_id", id),
			zap.String("token", d.lock.Token()),
		)
	}
}

// RollbackImport soft-deletes every contractor the import created, in one
// transaction, and marks the import rolled_back. Contractors the import
// only merged into are untouched. It returns the number soft-deleted.
func (d *DB) RollbackImport(ctx context.Context, id int64) (int, error) {
	fi, err := d.GetFileImport(ctx, id)
	if err != nil {
		return 0, err
	}
	if fi.Status == model.ImportRolledBack {
		return 0, eris.Wrapf(ErrAlreadyRolledBack, "import %d", id)
	}
	if err := d.trail.Flush(ctx); err != nil {
		return 0, err
	}

	ids, err := d.createdByImport(ctx, id)
	if err != nil {
		return 0, err
	}

	deleted := 0
	reason := fmt.Sprintf("rollback of file import %d (%s)", id, fi.FileName)
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		for _, cid := range ids {
			ok, err := d.SoftDeleteContractorTx(ctx, tx, cid, reason)
			if err != nil {
				return err
			}
			if ok {
				deleted++
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE file_imports SET status = ?, completed_at = ? WHERE id = ?`,
			string(model.ImportRolledBack), d.timestamp(), id,
		)
		if err != nil {
			return eris.Wrapf(err, "pipelinedb: mark import %d rolled back", id)
		}
		return checkRowsAffected(res, "file import", id)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "pipelinedb: rollback import %d", id)
	}

	for range deleted {
		d.metrics.SoftDeleted()
	}
	d.metrics.ImportFinished(string(model.ImportRolledBack))
	d.log.Info("file import rolled back", zap.Int64("import_id", id), zap.Int("contractors_deleted", deleted))
	return deleted, nil
}

func (d *DB) createdByImport(ctx context.Context, importID int64) ([]int64, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT DISTINCT contractor_id FROM contractor_history
		 WHERE action = ? AND file_import_id = ?
		 ORDER BY contractor_id`,
		string(model.ActionInsert), importID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: contractors created by import %d", importID)
	}
	defer rows.Close() //nolint:errcheck

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan contractor id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "pipelinedb: iterate created contractors")
}

// GetFileImport loads one import by id.
func (d *DB) GetFileImport(ctx context.Context, id int64) (*model.FileImport, error) {
	fi, err := scanFileImport(d.sql.QueryRowContext(ctx,
		`SELECT `+fileImportColumns+` FROM file_imports WHERE id = ?`, id))
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "file import %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: get file import %d", id)
	}
	return fi, nil
}

func (d *DB) fileImportByHash(ctx context.Context, hash string) (*model.FileImport, error) {
	fi, err := scanFileImport(d.sql.QueryRowContext(ctx,
		`SELECT `+fileImportColumns+` FROM file_imports WHERE file_hash = ?`, hash))
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "pipelinedb: lookup import by hash")
	}
	return fi, nil
}

// ListFileImports returns the most recent imports first.
func (d *DB) ListFileImports(ctx context.Context, limit int) ([]model.FileImport, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT `+fileImportColumns+` FROM file_imports ORDER BY id DESC LIMIT ?`,
		limitOrDefault(limit, 50))
	if err != nil {
		return nil, eris.Wrap(err, "pipelinedb: list file imports")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FileImport
	for rows.Next() {
		fi, err := scanFileImport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan file import")
		}
		out = append(out, *fi)
	}
	return out, eris.Wrap(rows.Err(), "pipelinedb: iterate file imports")
}

// CheckLock reports the current import lock holder, or nil.
func (d *DB) CheckLock(ctx context.Context) (*model.LockInfo, error) {
	return d.lock.Check(ctx)
}

func scanFileImport(s scannable) (*model.FileImport, error) {
	var (
		fi        model.FileImport
		status    string
		started   string
		completed sql.NullString
	)
	err := s.Scan(&fi.ID, &fi.FileName, &fi.FilePath, &fi.FileHash, &fi.FileSize, &fi.RowCount, &fi.SourceType,
		&status, &fi.RecordsCreated, &fi.RecordsUpdated, &fi.RecordsUnchanged, &fi.RecordsTouched,
		&fi.ErrorMessage, &fi.ImportedBy, &started, &completed)
	if err != nil {
		return nil, err
	}
	fi.Status = model.ImportStatus(status)
	fi.StartedAt = parseTime(started)
	fi.CompletedAt = parseNullTime(completed)
	return &fi, nil
}
