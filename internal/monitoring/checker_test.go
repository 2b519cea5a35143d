package monitoring

import (
	"context"
	"errors"
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
)

func countingWebhook(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)
	return ts, &received
}

func failedImport(name string) model.FileImport {
	return model.FileImport{FileName: name, Status: model.ImportFailed, StartedAt: collectNow}
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	t.Parallel()
	ts, received := countingWebhook(t)

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, LookbackWindowHours: 24, StaleLockMins: 30}
	st := &fakeStore{imports: []model.FileImport{failedImport("fl.csv")}}
	checker := NewChecker(newTestCollector(st), newTestAlerter(cfg), cfg, zap.NewNop())

	rep, err := checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, AlertImportFailure, rep.Alerts[0].Type)
	assert.Equal(t, 1, rep.Sent)
	assert.False(t, rep.Healthy())
	assert.Equal(t, 1, rep.Snapshot.ImportsFailed)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_RepeatedConditionNotResent(t *testing.T) {
	t.Parallel()
	ts, received := countingWebhook(t)

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, LookbackWindowHours: 24, StaleLockMins: 30}
	st := &fakeStore{imports: []model.FileImport{failedImport("fl.csv")}}
	checker := NewChecker(newTestCollector(st), newTestAlerter(cfg), cfg, zap.NewNop())

	_, err := checker.Check(context.Background())
	require.NoError(t, err)

	rep, err := checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, []AlertType{AlertImportFailure}, rep.Repeats)
	assert.Zero(t, rep.Sent)
	assert.Equal(t, int32(1), received.Load())

	// A new failed file changes the condition.
	st.imports = append(st.imports, failedImport("tx.csv"))
	rep, err = checker.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Repeats)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_ClearedConditionAlertsAgain(t *testing.T) {
	t.Parallel()
	ts, received := countingWebhook(t)

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, LookbackWindowHours: 24, StaleLockMins: 30}
	lock := &model.LockInfo{Holder: "host:1", AgeMinutes: 90}
	st := &fakeStore{lock: lock}
	checker := NewChecker(newTestCollector(st), newTestAlerter(cfg), cfg, zap.NewNop())

	_, err := checker.Check(context.Background())
	require.NoError(t, err)

	st.lock = nil
	rep, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Healthy())

	st.lock = lock
	rep, err = checker.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_UndeliveredAlertRetried(t *testing.T) {
	t.Parallel()

	// No webhook configured: nothing is delivered, so nothing is suppressed.
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	st := &fakeStore{imports: []model.FileImport{failedImport("fl.csv")}}
	checker := NewChecker(newTestCollector(st), newTestAlerter(cfg), cfg, zap.NewNop())

	for range 2 {
		rep, err := checker.Check(context.Background())
		require.NoError(t, err)
		assert.Empty(t, rep.Repeats)
		assert.Zero(t, rep.Sent)
	}
}

func TestChecker_CheckHealthy(t *testing.T) {
	t.Parallel()
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(newTestCollector(&fakeStore{}), newTestAlerter(cfg), cfg, zap.NewNop())

	rep, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Healthy())
}

func TestChecker_CheckCollectError(t *testing.T) {
	t.Parallel()
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	st := &fakeStore{runErr: errors.New("database is locked")}
	checker := NewChecker(newTestCollector(st), newTestAlerter(cfg), cfg, zap.NewNop())

	_, err := checker.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: collect snapshot")
}

func TestChecker_RunChecksImmediately(t *testing.T) {
	t.Parallel()
	ts, received := countingWebhook(t)

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, CheckIntervalSecs: 3600, LookbackWindowHours: 24}
	st := &fakeStore{imports: []model.FileImport{failedImport("fl.csv")}}
	checker := NewChecker(newTestCollector(st), newTestAlerter(cfg), cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return received.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_RunCancelledBeforeStart(t *testing.T) {
	t.Parallel()
	ts, received := countingWebhook(t)

	cfg := config.MonitoringConfig{WebhookURL: ts.URL}
	st := &fakeStore{imports: []model.FileImport{failedImport("fl.csv")}}
	checker := NewChecker(newTestCollector(st), newTestAlerter(cfg), cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
	assert.Zero(t, received.Load())
}

func TestFingerprint_FileOrderIgnored(t *testing.T) {
	t.Parallel()
	a := Alert{Type: AlertImportFailure, Details: map[string]any{"files": []string{"b.csv", "a.csv"}}}
	b := Alert{Type: AlertImportFailure, Details: map[string]any{"files": []string{"a.csv", "b.csv"}}}
	assert.Equal(t, fingerprint(a), fingerprint(b))
}
