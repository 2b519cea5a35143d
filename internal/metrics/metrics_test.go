package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ContractorCreated()
	m.ContractorCreated()
	m.ContractorMerged("phone")
	m.ContractorMerged("fuzzy_name")
	m.ContractorMerged("phone")
	m.AuditFlushed(250)
	m.LockContended()
	m.SoftDeleted()
	m.ImportFinished("completed")
	m.OEMDealer("matched")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.contractorsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.contractorsMerged.WithLabelValues("phone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.contractorsMerged.WithLabelValues("fuzzy_name")))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.auditRowsFlushed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockContention))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.softDeletes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importsFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oemDealers.WithLabelValues("matched")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ContractorCreated()
		m.ContractorMerged("email")
		m.AuditFlushed(1)
		m.LockContended()
		m.SoftDeleted()
		m.ImportFinished("failed")
		m.OEMDealer("created")
	})
}

func TestNew_NilRegisterer(t *testing.T) {
	assert.NotNil(t, New(nil))
}
