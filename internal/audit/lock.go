package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/model"
)

// DefaultLockTimeout is the age after which a lock row is treated as left
// behind by a crashed importer and reclaimed.
const DefaultLockTimeout = 30 * time.Minute

// Lock is the singleton import lock. At most one holder exists at a time,
// but expiry is time-based, so a slow importer can have its lock reclaimed
// by another process. Acquire never blocks.
type Lock struct {
	db      *sql.DB
	token   string
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// LockOption configures a Lock.
type LockOption func(*Lock)

// WithToken overrides the process token identifying this holder.
func WithToken(token string) LockOption {
	return func(l *Lock) {
		if token != "" {
			l.token = token
		}
	}
}

// WithTimeout sets the stale-lock expiry window.
func WithTimeout(d time.Duration) LockOption {
	return func(l *Lock) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLockClock injects the time source.
func WithLockClock(now func() time.Time) LockOption {
	return func(l *Lock) { l.now = now }
}

// WithLockLogger sets the logger.
func WithLockLogger(log *zap.Logger) LockOption {
	return func(l *Lock) { l.log = log }
}

// NewLock creates a Lock over db. The import_locks table must exist.
func NewLock(db *sql.DB, opts ...LockOption) *Lock {
	l := &Lock{
		db:      db,
		token:   DefaultToken(),
		timeout: DefaultLockTimeout,
		now:     time.Now,
		log:     zap.L(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// DefaultToken returns hostname:pid:unix-nanos.
func DefaultToken() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%d", host, os.Getpid(), time.Now().UnixNano())
}

// Token returns this holder's identity.
func (l *Lock) Token() string { return l.token }

// Timeout returns the expiry window.
func (l *Lock) Timeout() time.Duration { return l.timeout }

// Acquire takes the lock for reason. It returns false, without error, while
// any fresh lock is held, including one held by this token: the lock is not
// reentrant and a second acquire never extends the first.
func (l *Lock) Acquire(ctx context.Context, reason string) (bool, error) {
	now := l.now().UTC()
	cutoff := now.Add(-l.timeout).UnixMilli()

	res, err := l.db.ExecContext(ctx,
		`DELETE FROM import_locks WHERE id = 1 AND acquired_at < ?`, cutoff)
	if err != nil {
		return false, eris.Wrap(err, "audit: expire stale lock")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		l.log.Warn("audit: reclaimed stale import lock", zap.Duration("timeout", l.timeout))
	}

	res, err = l.db.ExecContext(ctx,
		`INSERT INTO import_locks (id, holder, reason, acquired_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		l.token, reason, now.UnixMilli(),
	)
	if err != nil {
		return false, eris.Wrap(err, "audit: insert lock")
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return false, nil
	}
	l.log.Debug("audit: lock acquired", zap.String("holder", l.token), zap.String("reason", reason))
	return true, nil
}

// Release deletes the lock row if this token still holds it. It reports
// whether a row was removed.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM import_locks WHERE id = 1 AND holder = ?`, l.token)
	if err != nil {
		return false, eris.Wrap(err, "audit: release lock")
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ForceRelease deletes the lock row regardless of holder.
func (l *Lock) ForceRelease(ctx context.Context) (bool, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM import_locks WHERE id = 1`)
	if err != nil {
		return false, eris.Wrap(err, "audit: force release lock")
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Check returns the current holder, or nil when unlocked.
func (l *Lock) Check(ctx context.Context) (*model.LockInfo, error) {
	var (
		info       model.LockInfo
		acquiredMS int64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT holder, reason, acquired_at FROM import_locks WHERE id = 1`,
	).Scan(&info.Holder, &info.Reason, &acquiredMS)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "audit: check lock")
	}
	info.AcquiredAt = time.UnixMilli(acquiredMS).UTC()
	info.AgeMinutes = l.now().Sub(info.AcquiredAt).Minutes()
	return &info, nil
}

// Held reports whether this token currently holds the lock.
func (l *Lock) Held(ctx context.Context) (bool, error) {
	info, err := l.Check(ctx)
	if err != nil {
		return false, err
	}
	return info != nil && info.Holder == l.token, nil
}
