package monitoring

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Report is the outcome of one import health check.
type Report struct {
	Snapshot *Snapshot `json:"snapshot"`
	Alerts   []Alert   `json:"alerts"`
	// Repeats are alerts already delivered for the same failed files, lock
	// holder or failure count; they are reported but not posted again.
	Repeats []AlertType `json:"repeats,omitempty"`
	Sent    int         `json:"sent"`
}

// Healthy reports whether the check raised no alerts.
func (r *Report) Healthy() bool { return len(r.Alerts) == 0 }

// Checker watches imports, runs and the import lock, and posts alerts for
// conditions it has not already reported.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger

	mu        sync.Mutex
	delivered map[AlertType]string
}

// NewChecker creates a Checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.L()
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       log.With(zap.String("component", "monitoring.checker")),
		delivered: make(map[AlertType]string),
	}
}

// Run checks once immediately and then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	c.log.Info("import health checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			c.log.Info("import health checker stopped")
			return
		}
		if _, err := c.Check(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("import health check failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			c.log.Info("import health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects a snapshot, evaluates it and posts the alerts that differ
// from what was last delivered. A condition that clears is forgotten, so it
// alerts again if it comes back.
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect snapshot")
	}

	rep := &Report{Snapshot: snap, Alerts: c.alerter.Evaluate(snap)}

	c.mu.Lock()
	active := make(map[AlertType]bool, len(rep.Alerts))
	var fresh []Alert
	for _, a := range rep.Alerts {
		active[a.Type] = true
		if c.delivered[a.Type] == fingerprint(a) {
			rep.Repeats = append(rep.Repeats, a.Type)
			continue
		}
		fresh = append(fresh, a)
	}
	for t := range c.delivered {
		if !active[t] {
			delete(c.delivered, t)
		}
	}
	c.mu.Unlock()

	if len(fresh) > 0 {
		rep.Sent = c.alerter.SendAlerts(ctx, fresh)
		// Only a fully delivered batch is remembered; otherwise the next check retries it.
		if rep.Sent == len(fresh) {
			c.mu.Lock()
			for _, a := range fresh {
				c.delivered[a.Type] = fingerprint(a)
			}
			c.mu.Unlock()
		}
	}

	c.log.Info("import health check complete",
		zap.Int("imports_failed", snap.ImportsFailed),
		zap.Int("runs_failed", snap.RunsFailed),
		zap.Bool("lock_held", snap.Lock != nil),
		zap.Int("alerts", len(rep.Alerts)),
		zap.Int("repeats", len(rep.Repeats)),
		zap.Int("sent", rep.Sent),
	)
	return rep, nil
}

// fingerprint identifies the condition behind an alert: which files failed,
// who holds the lock, how many runs failed.
func fingerprint(a Alert) string {
	switch a.Type {
	case AlertImportFailure:
		files, _ := a.Details["files"].([]string)
		sorted := append([]string(nil), files...)
		sort.Strings(sorted)
		return strings.Join(sorted, "\x00")
	case AlertStaleLock:
		return fmt.Sprint(a.Details["holder"])
	default:
		return fmt.Sprint(a.Details["failed"])
	}
}
