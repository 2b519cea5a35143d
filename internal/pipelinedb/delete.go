package pipelinedb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/audit"
	"github.com/sells-group/contractor-pipeline/internal/model"
)

// SoftDeleteContractor flags a contractor deleted and records a DELETE
// audit entry with its pre-delete values. It reports false, without error,
// when the contractor is already deleted.
func (d *DB) SoftDeleteContractor(ctx context.Context, id int64, reason string) (bool, error) {
	if err := d.trail.Flush(ctx); err != nil {
		return false, err
	}
	var deleted bool
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		deleted, err = d.SoftDeleteContractorTx(ctx, tx, id, reason)
		return err
	})
	if err != nil {
		return false, err
	}
	if deleted {
		d.metrics.SoftDeleted()
	}
	return deleted, nil
}

// SoftDeleteContractorTx is SoftDeleteContractor within a caller-managed
// transaction. The audit entry is written through tx, so it commits or
// rolls back with the delete.
func (d *DB) SoftDeleteContractorTx(ctx context.Context, tx *sql.Tx, id int64, reason string) (bool, error) {
	c, err := d.getContractor(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if c.IsDeleted {
		d.log.Debug("pipelinedb: contractor already deleted", zap.Int64("contractor_id", id))
		return false, nil
	}

	now := d.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE contractors SET is_deleted = 1, deleted_at = ?, deleted_by = ?, deletion_reason = ?, updated_at = ?
		 WHERE id = ?`,
		formatTime(now), d.actor, reason, formatTime(now), id,
	); err != nil {
		return false, eris.Wrapf(err, "pipelinedb: soft delete contractor %d", id)
	}

	change := audit.Change{
		ContractorID: id,
		Action:       model.ActionDelete,
		Old:          c.Snapshot(),
		New:          map[string]any{"is_deleted": true, "deletion_reason": reason},
		Source:       "soft_delete",
	}
	if err := d.trail.Write(ctx, tx, []audit.Change{change}); err != nil {
		return false, err
	}
	return true, nil
}

// RestoreContractor clears a soft delete. It reports false when the
// contractor is not deleted.
func (d *DB) RestoreContractor(ctx context.Context, id int64) (bool, error) {
	if err := d.trail.Flush(ctx); err != nil {
		return false, err
	}
	var restored bool
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		c, err := d.getContractor(ctx, tx, id)
		if err != nil {
			return err
		}
		if !c.IsDeleted {
			return nil
		}
		before := c.Snapshot()
		before["deletion_reason"] = c.DeletionReason
		if _, err := tx.ExecContext(ctx,
			`UPDATE contractors SET is_deleted = 0, deleted_at = NULL, deleted_by = '', deletion_reason = '', updated_at = ?
			 WHERE id = ?`,
			d.timestamp(), id,
		); err != nil {
			return eris.Wrapf(err, "pipelinedb: restore contractor %d", id)
		}
		c.IsDeleted = false
		after := c.Snapshot()
		after["deletion_reason"] = ""

		old, updated := audit.Diff(before, after)
		restored = true
		return d.trail.Write(ctx, tx, []audit.Change{{
			ContractorID: id,
			Action:       model.ActionUpdate,
			Old:          old,
			New:          updated,
			Source:       "restore",
		}})
	})
	return restored, err
}

// GetContractorHistory returns a contractor's change records, newest
// first. Records whose JSON cannot be parsed are returned with Corrupt set
// and the raw text kept, and a warning is logged.
func (d *DB) GetContractorHistory(ctx context.Context, id int64) ([]model.HistoryEntry, error) {
	if err := d.trail.Flush(ctx); err != nil {
		return nil, err
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, contractor_id, action, old_values, new_values, source, file_import_id, changed_by, changed_at
		 FROM contractor_history WHERE contractor_id = ?
		 ORDER BY changed_at DESC, id DESC`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: history for %d", id)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.HistoryEntry
	for rows.Next() {
		var (
			e          model.HistoryEntry
			action     string
			oldRaw     sql.NullString
			newRaw     sql.NullString
			fileImport sql.NullInt64
			changedAt  string
		)
		if err := rows.Scan(&e.ID, &e.ContractorID, &action, &oldRaw, &newRaw, &e.Source, &fileImport, &e.ChangedBy, &changedAt); err != nil {
			return nil, eris.Wrap(err, "pipelinedb: scan history")
		}
		e.Action = model.ChangeAction(action)
		e.ChangedAt = parseTime(changedAt)
		if fileImport.Valid {
			fid := fileImport.Int64
			e.FileImportID = &fid
		}

		oldVals, oldErr := decodeValues(oldRaw)
		newVals, newErr := decodeValues(newRaw)
		if oldErr != nil || newErr != nil {
			d.log.Warn("pipelinedb: corrupt history record",
				zap.Int64("history_id", e.ID),
				zap.Int64("contractor_id", id),
				zap.NamedError("old_error", oldErr),
				zap.NamedError("new_error", newErr),
			)
			e.Corrupt = true
			e.RawOld = oldRaw.String
			e.RawNew = newRaw.String
		}
		e.OldValues = oldVals
		e.NewValues = newVals
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "pipelinedb: iterate history")
}

func decodeValues(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw.String), &v); err != nil {
		return nil, err
	}
	return v, nil
}
