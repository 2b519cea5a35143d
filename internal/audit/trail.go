package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/model"
)

const (
	// DefaultBatchSize is the number of pending changes that triggers a flush.
	DefaultBatchSize = 1000

	// rowsPerStatement keeps each multi-row INSERT well under SQLite's
	// bound-parameter limit.
	rowsPerStatement = 500
	historyColumns   = 8
)

// Change is one contractor_history record.
type Change struct {
	ContractorID int64
	Action       model.ChangeAction
	Old          map[string]any
	New          map[string]any
	Source       string
	FileImportID *int64
	ChangedBy    string
	ChangedAt    time.Time
}

// Meta tags a change with its origin.
type Meta struct {
	Source       string
	FileImportID *int64
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Trail batches change records client-side and writes them as multi-row
// INSERTs. Callers must Flush at the end of a batch.
type Trail struct {
	db        *sql.DB
	batchSize int
	actor     string
	now       func() time.Time
	log       *zap.Logger
	onFlush   func(rows int)

	mu      sync.Mutex
	pending []Change
}

// TrailOption configures a Trail.
type TrailOption func(*Trail)

// WithBatchSize sets the auto-flush threshold.
func WithBatchSize(n int) TrailOption {
	return func(t *Trail) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

// WithActor sets the default changed_by value.
func WithActor(actor string) TrailOption {
	return func(t *Trail) { t.actor = actor }
}

// WithTrailClock injects the time source.
func WithTrailClock(now func() time.Time) TrailOption {
	return func(t *Trail) { t.now = now }
}

// WithTrailLogger sets the logger.
func WithTrailLogger(log *zap.Logger) TrailOption {
	return func(t *Trail) { t.log = log }
}

// WithFlushHook registers a callback invoked with the row count after each
// successful flush.
func WithFlushHook(fn func(rows int)) TrailOption {
	return func(t *Trail) { t.onFlush = fn }
}

// NewTrail creates a Trail writing to db.
func NewTrail(db *sql.DB, opts ...TrailOption) *Trail {
	t := &Trail{
		db:        db,
		batchSize: DefaultBatchSize,
		now:       time.Now,
		log:       zap.L(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// LogInsert records the creation of a contractor with its full values.
func (t *Trail) LogInsert(ctx context.Context, contractorID int64, values map[string]any, meta Meta) error {
	return t.add(ctx, Change{ContractorID: contractorID, Action: model.ActionInsert, New: values,
		Source: meta.Source, FileImportID: meta.FileImportID})
}

// LogDelete records a soft delete with the pre-delete values.
func (t *Trail) LogDelete(ctx context.Context, contractorID int64, old map[string]any, meta Meta) error {
	return t.add(ctx, Change{ContractorID: contractorID, Action: model.ActionDelete, Old: old,
		Source: meta.Source, FileImportID: meta.FileImportID})
}

// LogMerge records an input row merged into an existing contractor.
func (t *Trail) LogMerge(ctx context.Context, contractorID int64, old, merged map[string]any, meta Meta) error {
	return t.add(ctx, Change{ContractorID: contractorID, Action: model.ActionMerge, Old: old, New: merged,
		Source: meta.Source, FileImportID: meta.FileImportID})
}

// LogUpdate records only the keys whose values differ between old and
// updated. It reports false, and records nothing, when nothing changed.
func (t *Trail) LogUpdate(ctx context.Context, contractorID int64, old, updated map[string]any, meta Meta) (bool, error) {
	before, after := Diff(old, updated)
	if len(before) == 0 && len(after) == 0 {
		return false, nil
	}
	err := t.add(ctx, Change{ContractorID: contractorID, Action: model.ActionUpdate, Old: before, New: after,
		Source: meta.Source, FileImportID: meta.FileImportID})
	return err == nil, err
}

// Pending returns the number of unflushed changes.
func (t *Trail) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Discard drops pending changes without writing them and returns how many
// were dropped.
func (t *Trail) Discard() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.pending)
	t.pending = nil
	return n
}

// Flush writes all pending changes in one transaction. On failure the
// changes stay pending.
func (t *Trail) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked(ctx)
}

// Write stores changes immediately through exec, bypassing the batch. Use
// it inside a transaction the caller manages.
func (t *Trail) Write(ctx context.Context, exec Execer, changes []Change) error {
	for i := range changes {
		t.stamp(&changes[i])
	}
	return Write(ctx, exec, changes)
}

func (t *Trail) add(ctx context.Context, c Change) error {
	t.stamp(&c)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, c)
	if len(t.pending) >= t.batchSize {
		return t.flushLocked(ctx)
	}
	return nil
}

func (t *Trail) stamp(c *Change) {
	if c.ChangedAt.IsZero() {
		c.ChangedAt = t.now()
	}
	if c.ChangedBy == "" {
		c.ChangedBy = t.actor
	}
}

func (t *Trail) flushLocked(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "audit: begin flush")
	}
	if err := Write(ctx, tx, t.pending); err != nil {
		_ = tx.Rollback()
		t.log.Error("audit: flush failed, keeping batch", zap.Int("pending", len(t.pending)), zap.Error(err))
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "audit: commit flush")
	}

	n := len(t.pending)
	t.pending = nil
	t.log.Debug("audit: flushed change records", zap.Int("rows", n))
	if t.onFlush != nil {
		t.onFlush(n)
	}
	return nil
}

// Write inserts changes through exec using multi-row INSERT statements.
func Write(ctx context.Context, exec Execer, changes []Change) error {
	for start := 0; start < len(changes); start += rowsPerStatement {
		end := min(start+rowsPerStatement, len(changes))
		chunk := changes[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO contractor_history
			(contractor_id, action, old_values, new_values, source, file_import_id, changed_by, changed_at) VALUES `)
		args := make([]any, 0, len(chunk)*historyColumns)
		for i, c := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")

			oldJSON, err := encodeValues(c.Old)
			if err != nil {
				return eris.Wrapf(err, "audit: encode old values for contractor %d", c.ContractorID)
			}
			newJSON, err := encodeValues(c.New)
			if err != nil {
				return eris.Wrapf(err, "audit: encode new values for contractor %d", c.ContractorID)
			}
			var fileImportID sql.NullInt64
			if c.FileImportID != nil {
				fileImportID = sql.NullInt64{Int64: *c.FileImportID, Valid: true}
			}
			changedAt := c.ChangedAt
			if changedAt.IsZero() {
				changedAt = time.Now()
			}
			args = append(args,
				c.ContractorID, string(c.Action), oldJSON, newJSON,
				c.Source, fileImportID, c.ChangedBy, changedAt.UTC().Format(TimeLayout),
			)
		}

		if _, err := exec.ExecContext(ctx, sb.String(), args...); err != nil {
			return eris.Wrapf(err, "audit: insert %d change records", len(chunk))
		}
	}
	return nil
}

func encodeValues(v map[string]any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
