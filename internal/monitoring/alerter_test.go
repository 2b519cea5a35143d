package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/config"
	"github.com/sells-group/contractor-pipeline/internal/model"
	"github.com/sells-group/contractor-pipeline/internal/resilience"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{FailureRateThreshold: 0.25, StaleLockMins: 30}
}

func newTestAlerter(cfg config.MonitoringConfig) *Alerter {
	a := NewAlerter(cfg, zap.NewNop())
	a.retry = resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	return a
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	t.Parallel()
	a := newTestAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&Snapshot{
		RunsCompleted: 19, RunsFailed: 1, RunFailRate: 0.05,
		Lock:          &model.LockInfo{Holder: "host:1", AgeMinutes: 5},
		LookbackHours: 24,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_RunFailureRate(t *testing.T) {
	t.Parallel()
	a := newTestAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&Snapshot{RunsCompleted: 6, RunsFailed: 4, RunFailRate: 0.4, LookbackHours: 24})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	t.Parallel()
	a := newTestAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&Snapshot{RunsCompleted: 1, RunsFailed: 2, RunFailRate: 0.666, LookbackHours: 24})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_ImportFailure(t *testing.T) {
	t.Parallel()
	a := newTestAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&Snapshot{ImportsTotal: 3, ImportsFailed: 2, FailedFiles: []string{"a.csv", "b.csv"}, LookbackHours: 12})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertImportFailure, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2 file import(s) failed in last 12h")
	assert.Equal(t, []string{"a.csv", "b.csv"}, alerts[0].Details["files"])
}

func TestAlerter_Evaluate_StaleLock(t *testing.T) {
	t.Parallel()
	a := newTestAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&Snapshot{Lock: &model.LockInfo{Holder: "etl-box:4242", Reason: "import fl.csv", AgeMinutes: 95}})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleLock, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "etl-box:4242")
	assert.Contains(t, alerts[0].Message, "95 minutes")

	off := newTestAlerter(config.MonitoringConfig{})
	assert.Empty(t, off.Evaluate(&Snapshot{Lock: &model.LockInfo{AgeMinutes: 500}}))
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	t.Parallel()
	a := newTestAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&Snapshot{
		RunsCompleted: 5, RunsFailed: 5, RunFailRate: 0.5,
		ImportsFailed: 1,
		Lock:          &model.LockInfo{AgeMinutes: 31},
	})
	types := make(map[AlertType]bool)
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.Len(t, alerts, 3)
	assert.True(t, types[AlertRunFailureRate])
	assert.True(t, types[AlertImportFailure])
	assert.True(t, types[AlertStaleLock])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	t.Parallel()
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := newTestAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertImportFailure, Severity: "medium", Message: "one"},
		{Type: AlertStaleLock, Severity: "high", Message: "two"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_RetriesServerError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := newTestAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertImportFailure}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	a := newTestAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertImportFailure}})
	assert.Equal(t, 0, sent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlerter_SendAlerts_BreakerStopsCalls(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	a := newTestAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	alerts := make([]Alert, 5)
	for i := range alerts {
		alerts[i] = Alert{Type: AlertImportFailure}
	}
	assert.Equal(t, 0, a.SendAlerts(context.Background(), alerts))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAlerter_SendAlerts_NoURLOrAlerts(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, newTestAlerter(config.MonitoringConfig{}).SendAlerts(context.Background(), []Alert{{Type: AlertStaleLock}}))
	assert.Equal(t, 0, newTestAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"}).SendAlerts(context.Background(), nil))
}
