package pipelinedb

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ResetDatabase deletes every row from every table. It refuses to run
// unless confirm is set, and discards unflushed audit records.
func (d *DB) ResetDatabase(ctx context.Context, confirm bool) error {
	if !confirm {
		return eris.Wrap(ErrConfirmationRequired, "reset deletes all contractor data; pass confirm")
	}

	discarded := d.trail.Discard()
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range resetOrder {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return eris.Wrapf(err, "pipelinedb: clear %s", table)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence`); err != nil {
			return eris.Wrap(err, "pipelinedb: reset sequences")
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.log.Warn("database reset", zap.Int("discarded_audit_records", discarded), zap.String("actor", d.actor))
	return nil
}
