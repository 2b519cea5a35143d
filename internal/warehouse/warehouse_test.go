package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

type fakeSource struct {
	recs   []pipelinedb.ExportRecord
	err    error
	filter pipelinedb.ContractorFilter
}

func (f *fakeSource) ListContractors(_ context.Context, filter pipelinedb.ContractorFilter) ([]pipelinedb.ExportRecord, error) {
	f.filter = filter
	return f.recs, f.err
}

var sampleRecords = []pipelinedb.ExportRecord{
	{ContractorID: 1, CompanyName: "ABC Solar LLC", CategoryCount: 2, Categories: []string{"HVAC", "PLUMBING"}, LicenseTypes: []string{"CAC", "CPC"}, State: "FL"},
	{ContractorID: 2, CompanyName: "XYZ Roofing", CategoryCount: 1, Categories: []string{"ROOFING"}, LicenseTypes: []string{"CCC"}, State: "FL"},
}

func newTestPublisher(t *testing.T, opts ...Option) (*Publisher, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	base := []Option{
		WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC) }),
	}
	return New(mock, append(base, opts...)...), mock
}

func expectUpsert(m pgxmock.PgxPoolIface, tempTable string, cols []string, n int64) {
	m.ExpectBegin()
	m.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	m.ExpectCopyFrom(pgx.Identifier{tempTable}, cols).WillReturnResult(n)
	m.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", n))
	m.ExpectCommit()
}

func TestMigrate(t *testing.T) {
	p, mock := newTestPublisher(t)

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "leads"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "leads"."contractors"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "leads"."contractor_licenses"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, p.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_FullSnapshotPrunes(t *testing.T) {
	p, mock := newTestPublisher(t)

	expectUpsert(mock, "_tmp_upsert_leads_contractors", contractorColumns, 2)
	expectUpsert(mock, "_tmp_upsert_leads_contractor_licenses", licenseColumns, 3)
	mock.ExpectExec(`DELETE FROM "leads"."contractors" WHERE published_at`).
		WithArgs(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	res, err := p.Publish(context.Background(), &fakeSource{recs: sampleRecords}, pipelinedb.ContractorFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Contractors)
	assert.Equal(t, int64(3), res.Licenses)
	assert.Equal(t, int64(4), res.Pruned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_FilteredSkipsPrune(t *testing.T) {
	p, mock := newTestPublisher(t, WithSchema("crm"), WithBatchSize(1))

	expectUpsert(mock, "_tmp_upsert_crm_contractors", contractorColumns, 1)
	expectUpsert(mock, "_tmp_upsert_crm_contractors", contractorColumns, 1)
	expectUpsert(mock, "_tmp_upsert_crm_contractor_licenses", licenseColumns, 1)
	expectUpsert(mock, "_tmp_upsert_crm_contractor_licenses", licenseColumns, 1)
	expectUpsert(mock, "_tmp_upsert_crm_contractor_licenses", licenseColumns, 1)

	src := &fakeSource{recs: sampleRecords}
	res, err := p.Publish(context.Background(), src, pipelinedb.ContractorFilter{State: "FL"})
	require.NoError(t, err)
	assert.Equal(t, "FL", src.filter.State)
	assert.Equal(t, int64(2), res.Contractors)
	assert.Equal(t, int64(3), res.Licenses)
	assert.Zero(t, res.Pruned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_SourceError(t *testing.T) {
	p, mock := newTestPublisher(t)

	_, err := p.Publish(context.Background(), &fakeSource{err: errors.New("database is locked")}, pipelinedb.ContractorFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list contractors")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_UpsertError(t *testing.T) {
	p, mock := newTestPublisher(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	_, err := p.Publish(context.Background(), &fakeSource{recs: sampleRecords}, pipelinedb.ContractorFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse: upsert leads.contractors rows 0-2")
	assert.NoError(t, mock.ExpectationsWereMet())
}
