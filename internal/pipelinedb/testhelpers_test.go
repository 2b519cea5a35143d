package pipelinedb

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestDB(t *testing.T, opts ...Option) (*DB, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	base := []Option{
		WithClock(clock.Now),
		WithLockToken("test-host:1"),
		WithLogger(zap.NewNop()),
		WithActor("tester"),
	}
	d, err := Open(context.Background(), Config{
		DSN: filepath.Join(t.TempDir(), "pipeline.db"),
	}, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() }) //nolint:errcheck
	return d, clock
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func mustAdd(t *testing.T, d *DB, rec model.Record, opts ...AddOption) (int64, bool) {
	t.Helper()
	id, isNew, err := d.AddContractor(context.Background(), rec, "test", opts...)
	require.NoError(t, err)
	return id, isNew
}

// seedEndToEnd loads the ABC/XYZ scenario: two ABC rows that fuzzy-match
// and one unrelated roofer.
func seedEndToEnd(t *testing.T, d *DB) (abc, xyz int64) {
	t.Helper()
	abc, isNew := mustAdd(t, d, model.Record{CompanyName: "ABC Solar LLC", Phone: "(555) 123-4567", State: "FL", LicenseType: "CAC"})
	require.True(t, isNew)
	merged, isNew := mustAdd(t, d, model.Record{CompanyName: "ABC Solar", Email: "info@abcsolar.com", State: "FL", LicenseType: "CPC"})
	require.False(t, isNew)
	require.Equal(t, abc, merged)
	xyz, isNew = mustAdd(t, d, model.Record{CompanyName: "XYZ Roofing", Phone: "555-999-8888", State: "FL", LicenseType: "CCC"})
	require.True(t, isNew)
	return abc, xyz
}
