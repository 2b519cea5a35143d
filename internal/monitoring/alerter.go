package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/config"
	"github.com/sells-group/contractor-pipeline/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertImportFailure  AlertType = "import_failure"
	AlertStaleLock      AlertType = "stale_lock"
)

// minFinishedRuns is the sample size below which the failure rate is ignored.
const minFinishedRuns = 5

// Alert is one webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter checks snapshots against thresholds and posts alerts to a webhook.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	log     *zap.Logger
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewAlerter creates an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig, log *zap.Logger) *Alerter {
	if log == nil {
		log = zap.L()
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(log, "webhook", "send alert")
	return &Alerter{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(3, 5*time.Minute),
	}
}

// Evaluate returns the alerts snap triggers.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	finished := snap.RunsCompleted + snap.RunsFailed
	if finished >= minFinishedRuns && a.cfg.FailureRateThreshold > 0 && snap.RunFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Pipeline run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.ImportsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertImportFailure,
			Severity: "medium",
			Message:  fmt.Sprintf("%d file import(s) failed in last %dh", snap.ImportsFailed, snap.LookbackHours),
			Details: map[string]any{
				"failed": snap.ImportsFailed,
				"total":  snap.ImportsTotal,
				"files":  snap.FailedFiles,
			},
			Timestamp: now,
		})
	}

	if snap.Lock != nil && a.cfg.StaleLockMins > 0 && snap.Lock.AgeMinutes > float64(a.cfg.StaleLockMins) {
		alerts = append(alerts, Alert{
			Type:     AlertStaleLock,
			Severity: "high",
			Message: fmt.Sprintf("Import lock held by %s for %.0f minutes (limit %d)",
				snap.Lock.Holder, snap.Lock.AgeMinutes, a.cfg.StaleLockMins),
			Details: map[string]any{
				"holder":      snap.Lock.Holder,
				"reason":      snap.Lock.Reason,
				"age_minutes": snap.Lock.AgeMinutes,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts alerts to the webhook and returns how many were delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := a.breaker.Execute(ctx, func(ctx context.Context) error {
			return resilience.Do(ctx, a.retry, func(ctx context.Context) error {
				return a.sendWebhook(ctx, alert)
			})
		})
		if err != nil {
			a.log.Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		a.log.Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	return resilience.CheckStatus("monitoring: webhook", resp.StatusCode)
}
