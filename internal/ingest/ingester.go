package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/model"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

// Store is the slice of the pipeline database the ingester drives.
type Store interface {
	StartFileImport(ctx context.Context, path, sourceType string, opts ...pipelinedb.ImportOption) (*model.FileImport, error)
	CompleteFileImport(ctx context.Context, id int64, stats model.ImportStats) error
	FailFileImport(ctx context.Context, id int64, msg string) error
	GetFileImport(ctx context.Context, id int64) (*model.FileImport, error)
	StartPipelineRun(ctx context.Context, source, inputFile string) (int64, error)
	CompletePipelineRun(ctx context.Context, id int64, stats model.RunStats) error
	FailPipelineRun(ctx context.Context, id int64, runErr error) error
	AddContractor(ctx context.Context, rec model.Record, source string, opts ...pipelinedb.AddOption) (int64, bool, error)
	AddOEMDealer(ctx context.Context, rec model.OEMRecord, source string, opts ...pipelinedb.AddOption) (int64, bool, error)
	CategoryCounts(ctx context.Context, ids []int64) (map[int64]int, error)
}

// Result summarizes one ingested file.
type Result struct {
	FileImport *model.FileImport `json:"file_import"`
	RunID      int64             `json:"run_id"`
	Stats      model.ImportStats `json:"stats"`
	Run        model.RunStats    `json:"run"`
}

// Ingester runs whole-file imports: fingerprint and lock, pipeline run
// bookkeeping, row-by-row dedup and the final counts.
type Ingester struct {
	store         Store
	log           *zap.Logger
	now           func() time.Time
	progressEvery int
	reimport      bool
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(in *Ingester) { in.log = log }
}

// WithClock injects the time source used for run durations.
func WithClock(now func() time.Time) Option {
	return func(in *Ingester) { in.now = now }
}

// WithProgressEvery logs progress every n rows.
func WithProgressEvery(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.progressEvery = n
		}
	}
}

// WithReimport retries files whose earlier import failed or was rolled
// back instead of rejecting them as duplicates.
func WithReimport() Option {
	return func(in *Ingester) { in.reimport = true }
}

// New creates an Ingester over store.
func New(store Store, opts ...Option) *Ingester {
	in := &Ingester{
		store:         store,
		log:           zap.L(),
		now:           time.Now,
		progressEvery: 1000,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// ImportFile ingests a license-portal export as state_license rows.
func (in *Ingester) ImportFile(ctx context.Context, path, source string) (*Result, error) {
	return importRows(ctx, in, path, source, string(model.SourceStateLicense),
		Columns.Record,
		func(r model.Record) bool { return blankIdentity(r.CompanyName, r.Phone, r.Email, r.Website) },
		func(ctx context.Context, r model.Record, opt pipelinedb.AddOption) (int64, bool, error) {
			return in.store.AddContractor(ctx, r, source, opt)
		},
	)
}

// ImportOEMFile ingests a dealer-locator scrape. oemName fills rows whose
// file has no brand column.
func (in *Ingester) ImportOEMFile(ctx context.Context, path, source, oemName string) (*Result, error) {
	return importRows(ctx, in, path, source, string(model.SourceOEMDealer),
		Columns.OEMRecord,
		func(r model.OEMRecord) bool { return blankIdentity(r.CompanyName, r.Phone, r.Email, r.Website) },
		func(ctx context.Context, r model.OEMRecord, opt pipelinedb.AddOption) (int64, bool, error) {
			if r.OEMName == "" {
				r.OEMName = oemName
			}
			return in.store.AddOEMDealer(ctx, r, source, opt)
		},
	)
}

func blankIdentity(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func importRows[T any](
	ctx context.Context,
	in *Ingester,
	path, source, sourceType string,
	fromRow func(Columns, []string) T,
	blank func(T) bool,
	add func(context.Context, T, pipelinedb.AddOption) (int64, bool, error),
) (*Result, error) {
	// Reject unreadable files before anything is recorded.
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format != FormatJSON {
		header, err := ReadHeader(ctx, path, format)
		if err != nil {
			return nil, err
		}
		if _, err := MapHeader(header); err != nil {
			return nil, err
		}
	}

	var startOpts []pipelinedb.ImportOption
	if in.reimport {
		startOpts = append(startOpts, pipelinedb.WithReimport())
	}
	fi, err := in.store.StartFileImport(ctx, path, sourceType, startOpts...)
	if err != nil {
		return nil, err
	}
	log := in.log.With(zap.Int64("import_id", fi.ID), zap.String("file", fi.FileName), zap.String("source", source))

	runID, err := in.store.StartPipelineRun(ctx, source, fi.FilePath)
	if err != nil {
		in.failImport(ctx, log, fi.ID, err)
		return nil, err
	}

	start := in.now()
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	recs, errCh := Stream(streamCtx, path, format, fromRow)

	var (
		stats   model.ImportStats
		rows    int
		ids     []int64
		seen    = make(map[int64]struct{})
		procErr error
	)
	for rec := range recs {
		rows++
		if blank(rec) {
			stats.Unchanged++
			continue
		}
		id, isNew, err := add(ctx, rec, pipelinedb.WithFileImport(fi.ID))
		if err != nil {
			procErr = eris.Wrapf(err, "ingest: row %d", rows)
			break
		}
		if isNew {
			stats.Created++
		} else {
			stats.Updated++
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if rows%in.progressEvery == 0 {
			log.Info("ingest progress", zap.Int("rows", rows), zap.Int("created", stats.Created), zap.Int("merged", stats.Updated))
		}
	}
	if procErr != nil {
		cancel()
		for range recs { //nolint:revive // drain
		}
	}
	for err := range errCh {
		if err != nil && procErr == nil {
			procErr = err
		}
	}
	if procErr != nil {
		in.failRun(ctx, log, runID, procErr)
		in.failImport(ctx, log, fi.ID, procErr)
		return nil, procErr
	}

	counts, err := in.store.CategoryCounts(ctx, ids)
	if err != nil {
		in.failRun(ctx, log, runID, err)
		in.failImport(ctx, log, fi.ID, err)
		return nil, err
	}
	run := model.RunStats{
		InputCount:  rows,
		NewCount:    stats.Created,
		MergedCount: stats.Updated,
		Duration:    in.now().Sub(start),
	}
	for _, n := range counts {
		if n >= 2 {
			run.MultiLicenseFound++
		}
		if n >= 3 {
			run.UnicornsFound++
		}
	}

	if err := in.store.CompleteFileImport(ctx, fi.ID, stats); err != nil {
		in.failRun(ctx, log, runID, err)
		return nil, err
	}
	if err := in.store.CompletePipelineRun(ctx, runID, run); err != nil {
		return nil, err
	}

	final, err := in.store.GetFileImport(ctx, fi.ID)
	if err != nil {
		return nil, err
	}
	log.Info("ingest complete",
		zap.Int("rows", rows),
		zap.Int("created", stats.Created),
		zap.Int("merged", stats.Updated),
		zap.Int("skipped", stats.Unchanged),
		zap.Int("multi_license", run.MultiLicenseFound),
		zap.Int("unicorns", run.UnicornsFound),
	)
	return &Result{FileImport: final, RunID: runID, Stats: stats, Run: run}, nil
}

func (in *Ingester) failImport(ctx context.Context, log *zap.Logger, id int64, cause error) {
	if err := in.store.FailFileImport(ctx, id, cause.Error()); err != nil {
		log.Error("ingest: mark import failed", zap.Error(err))
	}
}

func (in *Ingester) failRun(ctx context.Context, log *zap.Logger, id int64, cause error) {
	if err := in.store.FailPipelineRun(ctx, id, cause); err != nil {
		log.Error("ingest: mark run failed", zap.Error(err))
	}
}
