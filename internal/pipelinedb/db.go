// Package pipelinedb owns the canonical contractor store: the dedup and
// merge engine, file-import orchestration, soft delete and rollback,
// statistics and exports.
package pipelinedb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contractor-pipeline/internal/audit"
	"github.com/sells-group/contractor-pipeline/internal/metrics"
	"github.com/sells-group/contractor-pipeline/internal/model"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
)

// DedupConfig tunes the duplicate matcher.
type DedupConfig struct {
	DomainThreshold          float64 `mapstructure:"domain_threshold"`
	FuzzyThreshold           float64 `mapstructure:"fuzzy_threshold"`
	DomainCandidateLimit     int     `mapstructure:"domain_candidate_limit"`
	FuzzyCandidateLimit      int     `mapstructure:"fuzzy_candidate_limit"`
	MinNameLength            int     `mapstructure:"min_name_length"`
	CreatedContactConfidence int     `mapstructure:"created_contact_confidence"`
	MergedContactConfidence  int     `mapstructure:"merged_contact_confidence"`
}

// DefaultDedupConfig returns the standard matcher thresholds.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		DomainThreshold:          0.5,
		FuzzyThreshold:           0.85,
		DomainCandidateLimit:     100,
		FuzzyCandidateLimit:      100,
		MinNameLength:            3,
		CreatedContactConfidence: 80,
		MergedContactConfidence:  70,
	}
}

// Config describes the store to open.
type Config struct {
	Driver         string
	DSN            string
	AuthToken      string
	BusyTimeout    time.Duration
	AuditBatchSize int
	LockTimeout    time.Duration
	Dedup          DedupConfig
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.AuditBatchSize <= 0 {
		c.AuditBatchSize = audit.DefaultBatchSize
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = audit.DefaultLockTimeout
	}
	def := DefaultDedupConfig()
	if c.Dedup.DomainThreshold <= 0 {
		c.Dedup.DomainThreshold = def.DomainThreshold
	}
	if c.Dedup.FuzzyThreshold <= 0 {
		c.Dedup.FuzzyThreshold = def.FuzzyThreshold
	}
	if c.Dedup.DomainCandidateLimit <= 0 {
		c.Dedup.DomainCandidateLimit = def.DomainCandidateLimit
	}
	if c.Dedup.FuzzyCandidateLimit <= 0 {
		c.Dedup.FuzzyCandidateLimit = def.FuzzyCandidateLimit
	}
	if c.Dedup.MinNameLength <= 0 {
		c.Dedup.MinNameLength = def.MinNameLength
	}
	if c.Dedup.CreatedContactConfidence <= 0 {
		c.Dedup.CreatedContactConfidence = def.CreatedContactConfidence
	}
	if c.Dedup.MergedContactConfidence <= 0 {
		c.Dedup.MergedContactConfidence = def.MergedContactConfidence
	}
	return c
}

// DB is a pipeline database handle. It holds no package-level state, so
// several instances may be open at once.
type DB struct {
	sql        *sql.DB
	cfg        Config
	log        *zap.Logger
	now        func() time.Time
	actor      string
	lockToken  string
	metrics    *metrics.Metrics
	categories *model.CategoryTable
	lock       *audit.Lock
	trail      *audit.Trail
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(log *zap.Logger) Option {
	return func(d *DB) { d.log = log }
}

// WithClock injects the time source used for timestamps and lock expiry.
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

// WithMetrics records pipeline counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *DB) { d.metrics = m }
}

// WithActor sets the identity recorded as changed_by / deleted_by.
func WithActor(actor string) Option {
	return func(d *DB) { d.actor = actor }
}

// WithLockToken overrides the import lock holder token.
func WithLockToken(token string) Option {
	return func(d *DB) { d.lockToken = token }
}

// WithCategories replaces the license category table.
func WithCategories(t *model.CategoryTable) Option {
	return func(d *DB) { d.categories = t }
}

// Open connects to the store described by cfg, runs the schema migration
// and wires the import lock and audit trail.
func Open(ctx context.Context, cfg Config, opts ...Option) (*DB, error) {
	cfg = cfg.withDefaults()
	d := &DB{
		cfg:        cfg,
		log:        zap.L(),
		now:        time.Now,
		actor:      "system",
		categories: model.DefaultCategories(),
	}
	for _, o := range opts {
		o(d)
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: open %s", cfg.Driver)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "pipelinedb: ping %s", cfg.Driver)
	}
	d.sql = db

	if err := d.migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	d.lock = audit.NewLock(db,
		audit.WithToken(d.lockToken),
		audit.WithTimeout(cfg.LockTimeout),
		audit.WithLockClock(d.now),
		audit.WithLockLogger(d.log),
	)
	d.trail = audit.NewTrail(db,
		audit.WithBatchSize(cfg.AuditBatchSize),
		audit.WithActor(d.actor),
		audit.WithTrailClock(d.now),
		audit.WithTrailLogger(d.log),
		audit.WithFlushHook(d.metrics.AuditFlushed),
	)

	d.log.Debug("pipelinedb: opened", zap.String("driver", cfg.Driver))
	return d, nil
}

// buildDSN adds per-connection pragmas for sqlite and the auth token for
// libsql.
func buildDSN(cfg Config) (string, error) {
	if cfg.DSN == "" {
		return "", eris.New("pipelinedb: empty dsn")
	}
	switch cfg.Driver {
	case DriverSQLite:
		params := url.Values{}
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "foreign_keys(1)")
		params.Add("_pragma", "synchronous(NORMAL)")
		params.Set("_txlock", "immediate")
		sep := "?"
		if strings.Contains(cfg.DSN, "?") {
			sep = "&"
		}
		return cfg.DSN + sep + params.Encode(), nil
	case DriverLibSQL:
		if cfg.AuthToken == "" {
			return cfg.DSN, nil
		}
		u, err := url.Parse(cfg.DSN)
		if err != nil {
			return "", eris.Wrap(err, "pipelinedb: parse libsql url")
		}
		q := u.Query()
		q.Set("authToken", cfg.AuthToken)
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", eris.Errorf("pipelinedb: unsupported driver %q", cfg.Driver)
	}
}

// Close flushes pending audit records and closes the store.
func (d *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.trail.Flush(ctx); err != nil {
		d.log.Error("pipelinedb: flush audit trail on close", zap.Error(err))
	}
	return d.sql.Close()
}

// SQL returns the underlying handle.
func (d *DB) SQL() *sql.DB { return d.sql }

// Lock returns the import lock.
func (d *DB) Lock() *audit.Lock { return d.lock }

// Trail returns the audit trail.
func (d *DB) Trail() *audit.Trail { return d.trail }

// Config returns the effective configuration.
func (d *DB) Config() Config { return d.cfg }

// FlushAudit writes pending change records.
func (d *DB) FlushAudit(ctx context.Context) error {
	return d.trail.Flush(ctx)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing on success and rolling back
// on error or panic.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "pipelinedb: begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.log.Error("pipelinedb: rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "pipelinedb: commit")
}

func (d *DB) timestamp() string {
	return formatTime(d.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(audit.TimeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(audit.TimeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
