package api

import (
	"net/http"

	"github.com/sells-group/contractor-pipeline/internal/model"
	"github.com/sells-group/contractor-pipeline/internal/normalize"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

// ContractorDetail is a contractor with its child records.
type ContractorDetail struct {
	*model.Contractor
	Contacts       []model.Contact          `json:"contacts"`
	Licenses       []model.License          `json:"licenses"`
	Certifications []model.OEMCertification `json:"oem_certifications"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context(), normalize.State(r.URL.Query().Get("state")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleContractors(w http.ResponseWriter, r *http.Request) {
	minCats, err := queryInt(r, "min_categories", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	requireEmail, err := queryBool(r, "require_email")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs, err := s.store.ListContractors(r.Context(), pipelinedb.ContractorFilter{
		State:         normalize.State(r.URL.Query().Get("state")),
		MinCategories: minCats,
		RequireEmail:  requireEmail,
		Limit:         limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []pipelinedb.ExportRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleContractor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	c, err := s.store.GetContractor(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	detail := ContractorDetail{Contractor: c}
	if detail.Contacts, err = s.store.ListContacts(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if detail.Licenses, err = s.store.ListLicenses(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if detail.Certifications, err = s.store.ListOEMCertifications(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.store.GetContractorHistory(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	imports, err := s.store.ListFileImports(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if imports == nil {
		imports = []model.FileImport{}
	}
	writeJSON(w, http.StatusOK, imports)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fi, err := s.store.GetFileImport(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fi)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runs, err := s.store.ListPipelineRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.PipelineRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// LockStatus is the /v1/lock response.
type LockStatus struct {
	Locked bool            `json:"locked"`
	Lock   *model.LockInfo `json:"lock,omitempty"`
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.CheckLock(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LockStatus{Locked: info != nil, Lock: info})
}
