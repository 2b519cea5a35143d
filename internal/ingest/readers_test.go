package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/contractor-pipeline/internal/model"
)

func collectRows(rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rows, err := collectRows(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestStreamCSV_TrimAndRagged(t *testing.T) {
	input := " name , phone \n ABC Solar , 555 \nshort\n"
	rows, err := collectRows(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "phone"}, rows[0])
	assert.Equal(t, []string{"ABC Solar", "555"}, rows[1])
	assert.Equal(t, []string{"short"}, rows[2])
}

func TestStreamCSV_TabDelimited(t *testing.T) {
	input := "a\tb\n1\t2\n"
	rows, err := collectRows(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: '\t'}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	for range 10000 {
		sb.WriteString("a,b,c\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	count := 0
	for range rowCh {
		count++
		if count >= 5 {
			cancel()
			break
		}
	}
	for range rowCh { //nolint:revive // drain
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context cancelled")
	}
	cancel()
}

func TestStreamXLSX_SkipsBlankRows(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Company", "Phone"},
		{"", ""},
		{"ABC Solar", "5551234567"},
	})

	rows, err := collectRows(StreamXLSX(context.Background(), path, XLSXOptions{}))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"ABC Solar", "5551234567"}, rows[1])
}

func TestStreamXLSX_SheetNotFound(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"a"}})

	_, err := collectRows(StreamXLSX(context.Background(), path, XLSXOptions{SheetName: "Missing"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = collectRows(StreamXLSX(context.Background(), path, XLSXOptions{SheetIndex: 4}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestDecodeJSONArray(t *testing.T) {
	input := `[{"company_name":"ABC Solar","phone":"5551234567"},{"company_name":"XYZ Roofing","license_types":["CCC","RRC"]}]`

	ch, errCh := DecodeJSONArray[model.Record](context.Background(), strings.NewReader(input))
	var recs []model.Record
	for rec := range ch {
		recs = append(recs, rec)
	}
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Len(t, recs, 2)
	assert.Equal(t, "ABC Solar", recs[0].CompanyName)
	assert.Equal(t, []string{"CCC", "RRC"}, recs[1].Types())
}

func TestDecodeJSONArray_NotArray(t *testing.T) {
	ch, errCh := DecodeJSONArray[model.Record](context.Background(), strings.NewReader(`{"company_name":"x"}`))
	for range ch { //nolint:revive // drain
	}
	var gotErr error
	for err := range errCh {
		gotErr = err
	}
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "expected '['")
}

func TestMapHeader(t *testing.T) {
	t.Parallel()

	cols, err := MapHeader([]string{"\ufeffBusiness Name", "Qualifier Name", "Phone Number", "E-Mail", "Address Line 1", "Lic Type", "Unused", "Company"})
	require.NoError(t, err)
	assert.Equal(t, 0, cols[FieldCompanyName])
	assert.Equal(t, 1, cols[FieldContactName])
	assert.Equal(t, 2, cols[FieldPhone])
	assert.Equal(t, 3, cols[FieldEmail])
	assert.Equal(t, 4, cols[FieldStreet])
	assert.Equal(t, 5, cols[FieldLicenseType])
	assert.Len(t, cols, 6)

	rec := cols.Record([]string{"ABC Solar", "Pat Lee", "(555) 123-4567", "pat@abcsolar.com", "1 Main St"})
	assert.Equal(t, "ABC Solar", rec.CompanyName)
	assert.Equal(t, "Pat Lee", rec.ContactName)
	assert.Equal(t, "1 Main St", rec.Street)
	assert.Empty(t, rec.LicenseType)
}

func TestMapHeader_NoIdentityColumn(t *testing.T) {
	t.Parallel()

	_, err := MapHeader([]string{"city", "state", "zip"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoIdentity))
}

func TestColumns_OEMRecord(t *testing.T) {
	t.Parallel()

	cols, err := MapHeader([]string{"Dealer Name", "Phone", "Brand", "Dealer Tier", "Search Zip", "Locator URL"})
	require.NoError(t, err)
	rec := cols.OEMRecord([]string{"Suncoast Air", "7275551234", "Carrier", "Factory Authorized", "33701", "https://example.com/locator"})
	assert.Equal(t, model.OEMRecord{
		CompanyName: "Suncoast Air",
		Phone:       "7275551234",
		OEMName:     "Carrier",
		Tier:        "Factory Authorized",
		ZipSearched: "33701",
		SourceURL:   "https://example.com/locator",
	}, rec)
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want Format
	}{
		{"fl.csv", FormatCSV},
		{"FL.CSV", FormatCSV},
		{"tx.tsv", FormatTSV},
		{"dealers.xlsx", FormatXLSX},
		{"scrape.json", FormatJSON},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := DetectFormat("data.parquet")
	assert.True(t, eris.Is(err, ErrUnsupportedFormat))
}
