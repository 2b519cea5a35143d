// Package metrics exposes Prometheus counters for the contractor pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "leadgen"

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	contractorsCreated prometheus.Counter
	contractorsMerged  *prometheus.CounterVec
	oemDealers         *prometheus.CounterVec
	auditRowsFlushed   prometheus.Counter
	lockContention     prometheus.Counter
	softDeletes        prometheus.Counter
	importsFinished    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		contractorsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contractors_created_total",
			Help:      "Contractors created from unmatched input rows.",
		}),
		contractorsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contractors_merged_total",
			Help:      "Input rows merged into an existing contractor, by match type.",
		}, []string{"match_type"}),
		oemDealers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oem_dealers_total",
			Help:      "OEM dealer rows processed, by outcome.",
		}, []string{"outcome"}),
		auditRowsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_rows_flushed_total",
			Help:      "Change-history rows written by audit trail flushes.",
		}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_lock_contention_total",
			Help:      "Import attempts refused because another process held the lock.",
		}),
		softDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contractors_soft_deleted_total",
			Help:      "Contractors soft deleted manually or by rollback.",
		}),
		importsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_imports_finished_total",
			Help:      "File imports finished, by final status.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.contractorsCreated,
			m.contractorsMerged,
			m.oemDealers,
			m.auditRowsFlushed,
			m.lockContention,
			m.softDeletes,
			m.importsFinished,
		)
	}
	return m
}

// ContractorCreated counts a new contractor.
func (m *Metrics) ContractorCreated() {
	if m == nil {
		return
	}
	m.contractorsCreated.Inc()
}

// ContractorMerged counts a merge by match type.
func (m *Metrics) ContractorMerged(matchType string) {
	if m == nil {
		return
	}
	m.contractorsMerged.WithLabelValues(matchType).Inc()
}

// OEMDealer counts an OEM dealer row by outcome ("matched" or "created").
func (m *Metrics) OEMDealer(outcome string) {
	if m == nil {
		return
	}
	m.oemDealers.WithLabelValues(outcome).Inc()
}

// AuditFlushed counts rows written by one trail flush.
func (m *Metrics) AuditFlushed(rows int) {
	if m == nil {
		return
	}
	m.auditRowsFlushed.Add(float64(rows))
}

// LockContended counts a refused import.
func (m *Metrics) LockContended() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

// SoftDeleted counts a soft delete.
func (m *Metrics) SoftDeleted() {
	if m == nil {
		return
	}
	m.softDeletes.Inc()
}

// ImportFinished counts a file import reaching a final status.
func (m *Metrics) ImportFinished(status string) {
	if m == nil {
		return
	}
	m.importsFinished.WithLabelValues(status).Inc()
}
