// Package api serves a read-only JSON view of the pipeline database.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/model"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

// Store is the read side of the pipeline database.
type Store interface {
	GetStats(ctx context.Context, state string) (*pipelinedb.Stats, error)
	ListContractors(ctx context.Context, f pipelinedb.ContractorFilter) ([]pipelinedb.ExportRecord, error)
	GetContractor(ctx context.Context, id int64) (*model.Contractor, error)
	ListContacts(ctx context.Context, contractorID int64) ([]model.Contact, error)
	ListLicenses(ctx context.Context, contractorID int64) ([]model.License, error)
	ListOEMCertifications(ctx context.Context, contractorID int64) ([]model.OEMCertification, error)
	GetContractorHistory(ctx context.Context, id int64) ([]model.HistoryEntry, error)
	ListFileImports(ctx context.Context, limit int) ([]model.FileImport, error)
	GetFileImport(ctx context.Context, id int64) (*model.FileImport, error)
	ListPipelineRuns(ctx context.Context, limit int) ([]model.PipelineRun, error)
	CheckLock(ctx context.Context) (*model.LockInfo, error)
}

// Server routes API requests to a Store.
type Server struct {
	store    Store
	log      *zap.Logger
	gatherer prometheus.Gatherer
	origins  []string
	timeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option { return func(s *Server) { s.log = log } }

// WithGatherer serves g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) Option { return func(s *Server) { s.origins = origins } }

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Server.
func New(store Store, opts ...Option) *Server {
	s := &Server{
		store:    store,
		log:      zap.L(),
		gatherer: prometheus.DefaultGatherer,
		origins:  []string{"*"},
		timeout:  30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/contractors", s.handleContractors)
		r.Get("/contractors/{id}", s.handleContractor)
		r.Get("/contractors/{id}/history", s.handleHistory)
		r.Get("/imports", s.handleImports)
		r.Get("/imports/{id}", s.handleImport)
		r.Get("/runs", s.handleRuns)
		r.Get("/lock", s.handleLock)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("api request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// errBadRequest marks client errors.
var errBadRequest = eris.New("bad request")

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case eris.Is(err, pipelinedb.ErrNotFound):
		status = http.StatusNotFound
	case eris.Is(err, errBadRequest):
		status = http.StatusBadRequest
	default:
		s.log.Error("api: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Wrapf(errBadRequest, "invalid id %q", raw)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, eris.Wrapf(errBadRequest, "invalid %s %q", key, raw)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, eris.Wrapf(errBadRequest, "invalid %s %q", key, raw)
	}
	return b, nil
}
