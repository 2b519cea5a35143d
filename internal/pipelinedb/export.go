package pipelinedb

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contractor-pipeline/internal/normalize"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// ExportColumns is the fixed column order of delimited exports.
var ExportColumns = []string{
	"contractor_id",
	"company_name",
	"category_count",
	"categories",
	"license_types",
	"primary_phone",
	"primary_email",
	"primary_domain",
	"contact_name",
	"street",
	"city",
	"state",
	"zip",
	"oem_brands",
	"source_type",
	"is_unicorn",
}

// ContractorFilter selects live contractors for listing and export.
type ContractorFilter struct {
	State         string `json:"state,omitempty"`
	MinCategories int    `json:"min_categories"`
	RequireEmail  bool   `json:"require_email"`
	Limit         int    `json:"limit,omitempty"`
}

// ExportRecord is one exported contractor.
type ExportRecord struct {
	ContractorID  int64    `json:"contractor_id"`
	CompanyName   string   `json:"company_name"`
	CategoryCount int      `json:"category_count"`
	Categories    []string `json:"categories"`
	LicenseTypes  []string `json:"license_types"`
	PrimaryPhone  string   `json:"primary_phone"`
	PrimaryEmail  string   `json:"primary_email"`
	PrimaryDomain string   `json:"primary_domain"`
	ContactName   string   `json:"contact_name"`
	Street        string   `json:"street"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	Zip           string   `json:"zip"`
	OEMBrands     []string `json:"oem_brands"`
	SourceType    string   `json:"source_type"`
	IsUnicorn     bool     `json:"is_unicorn"`
}

// Row returns the record's values in ExportColumns order.
func (r ExportRecord) Row() []string {
	return []string{
		strconv.FormatInt(r.ContractorID, 10),
		r.CompanyName,
		strconv.Itoa(r.CategoryCount),
		strings.Join(r.Categories, ";"),
		strings.Join(r.LicenseTypes, ";"),
		r.PrimaryPhone,
		r.PrimaryEmail,
		r.PrimaryDomain,
		r.ContactName,
		r.Street,
		r.City,
		r.State,
		r.Zip,
		strings.Join(r.OEMBrands, ";"),
		r.SourceType,
		strconv.FormatBool(r.IsUnicorn),
	}
}

// ExportResult describes one written export file.
type ExportResult struct {
	ExportID   string    `json:"export_id"`
	Format     string    `json:"format"`
	Path       string    `json:"path"`
	Count      int       `json:"count"`
	ExportedAt time.Time `json:"exported_at"`
}

type exportMetadata struct {
	ExportID   string           `json:"export_id"`
	ExportedAt time.Time        `json:"exported_at"`
	Filters    ContractorFilter `json:"filters"`
	Count      int              `json:"count"`
}

type exportEnvelope struct {
	Metadata    exportMetadata `json:"metadata"`
	Contractors []ExportRecord `json:"contractors"`
}

// ListContractors returns live contractors matching f, ranked by category
// count, then email presence, then name.
func (d *DB) ListContractors(ctx context.Context, f ContractorFilter) ([]ExportRecord, error) {
	where := []string{"c.is_deleted = 0"}
	var args []any
	if state := normalize.State(f.State); state != "" {
		where = append(where, "c.state = ?")
		args = append(args, state)
	}
	if f.RequireEmail {
		where = append(where, "c.primary_email <> ''")
	}
	cond := strings.Join(where, " AND ")

	byID := make(map[int64]*ExportRecord)
	var order []int64

	rows, err := d.sql.QueryContext(ctx,
		`SELECT c.id, c.company_name, c.primary_phone, c.primary_email, c.primary_domain,
			c.street, c.city, c.state, c.zip, c.source_type
		 FROM contractors c WHERE `+cond, args...)
	if err != nil {
		return nil, eris.Wrap(err, "pipelinedb: list contractors")
	}
	for rows.Next() {
		var r ExportRecord
		if err := rows.Scan(&r.ContractorID, &r.CompanyName, &r.PrimaryPhone, &r.PrimaryEmail, &r.PrimaryDomain,
			&r.Street, &r.City, &r.State, &r.Zip, &r.SourceType); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "pipelinedb: scan contractor")
		}
		byID[r.ContractorID] = &r
		order = append(order, r.ContractorID)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "pipelinedb: iterate contractors")
	}
	if len(order) == 0 {
		return nil, nil
	}

	err = d.eachPair(ctx,
		`SELECT l.contractor_id, l.license_type, l.license_category FROM licenses l
		 JOIN contractors c ON c.id = l.contractor_id WHERE `+cond+` ORDER BY l.id`, args,
		func(id int64, licenseType, category string) {
			r := byID[id]
			r.LicenseTypes = appendUnique(r.LicenseTypes, licenseType)
			if category != "" {
				r.Categories = appendUnique(r.Categories, category)
			}
		})
	if err != nil {
		return nil, err
	}

	err = d.eachPair(ctx,
		`SELECT o.contractor_id, o.oem_name, '' FROM oem_certifications o
		 JOIN contractors c ON c.id = o.contractor_id WHERE `+cond+` ORDER BY o.oem_name`, args,
		func(id int64, brand, _ string) {
			byID[id].OEMBrands = appendUnique(byID[id].OEMBrands, brand)
		})
	if err != nil {
		return nil, err
	}

	err = d.eachPair(ctx,
		`SELECT ct.contractor_id, ct.name, '' FROM contacts ct
		 JOIN contractors c ON c.id = ct.contractor_id WHERE `+cond+` AND ct.name <> ''
		 ORDER BY ct.confidence DESC, ct.id`, args,
		func(id int64, name, _ string) {
			if byID[id].ContactName == "" {
				byID[id].ContactName = name
			}
		})
	if err != nil {
		return nil, err
	}

	out := make([]ExportRecord, 0, len(order))
	for _, id := range order {
		r := byID[id]
		sort.Strings(r.Categories)
		sort.Strings(r.LicenseTypes)
		r.CategoryCount = len(r.Categories)
		r.IsUnicorn = r.CategoryCount >= 3
		if r.CategoryCount < f.MinCategories {
			continue
		}
		out = append(out, *r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CategoryCount != b.CategoryCount {
			return a.CategoryCount > b.CategoryCount
		}
		if (a.PrimaryEmail != "") != (b.PrimaryEmail != "") {
			return a.PrimaryEmail != ""
		}
		if an, bn := strings.ToLower(a.CompanyName), strings.ToLower(b.CompanyName); an != bn {
			return an < bn
		}
		return a.ContractorID < b.ContractorID
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (d *DB) eachPair(ctx context.Context, query string, args []any, fn func(id int64, a, b string)) error {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "pipelinedb: list contractor details")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var (
			id   int64
			a, b string
		)
		if err := rows.Scan(&id, &a, &b); err != nil {
			return eris.Wrap(err, "pipelinedb: scan contractor detail")
		}
		fn(id, a, b)
	}
	return eris.Wrap(rows.Err(), "pipelinedb: iterate contractor details")
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// ExportMultiLicense writes contractors holding at least f.MinCategories
// (minimum 2) categories to a CSV file.
func (d *DB) ExportMultiLicense(ctx context.Context, path string, f ContractorFilter) (*ExportResult, error) {
	if f.MinCategories < 2 {
		f.MinCategories = 2
	}
	return d.export(ctx, path, FormatCSV, f)
}

// ExportUnicorns writes contractors holding 3+ categories to a CSV file.
func (d *DB) ExportUnicorns(ctx context.Context, path, state string, requireEmail bool) (*ExportResult, error) {
	return d.export(ctx, path, FormatCSV, ContractorFilter{State: state, MinCategories: 3, RequireEmail: requireEmail})
}

// ExportToJSON writes matching contractors as a JSON document with a
// metadata envelope.
func (d *DB) ExportToJSON(ctx context.Context, path string, f ContractorFilter) (*ExportResult, error) {
	return d.export(ctx, path, FormatJSON, f)
}

// ExportToXLSX writes matching contractors to a spreadsheet.
func (d *DB) ExportToXLSX(ctx context.Context, path string, f ContractorFilter) (*ExportResult, error) {
	return d.export(ctx, path, FormatXLSX, f)
}

// ExportAll writes one file per format into dir concurrently. File names
// are derived from the filter.
func (d *DB) ExportAll(ctx context.Context, dir string, f ContractorFilter, formats []string) ([]ExportResult, error) {
	if len(formats) == 0 {
		formats = []string{FormatCSV, FormatJSON, FormatXLSX}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipelinedb: create export dir %s", dir)
	}

	recs, err := d.ListContractors(ctx, f)
	if err != nil {
		return nil, err
	}

	results := make([]ExportResult, len(formats))
	g, _ := errgroup.WithContext(ctx)
	for i, format := range formats {
		path := filepath.Join(dir, ExportFileName(f, format))
		g.Go(func() error {
			res, err := d.write(path, format, f, recs)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExportFileName returns the conventional file name for a filter and format.
func ExportFileName(f ContractorFilter, format string) string {
	state := strings.ToLower(f.State)
	if state == "" {
		state = "all"
	}
	name := fmt.Sprintf("contractors_%s", state)
	if f.MinCategories > 1 {
		name += fmt.Sprintf("_%dplus", f.MinCategories)
	}
	if f.RequireEmail {
		name += "_email"
	}
	return name + "." + format
}

func (d *DB) export(ctx context.Context, path, format string, f ContractorFilter) (*ExportResult, error) {
	recs, err := d.ListContractors(ctx, f)
	if err != nil {
		return nil, err
	}
	return d.write(path, format, f, recs)
}

func (d *DB) write(path, format string, f ContractorFilter, recs []ExportRecord) (*ExportResult, error) {
	res := &ExportResult{
		ExportID:   uuid.New().String(),
		Format:     format,
		Path:       path,
		Count:      len(recs),
		ExportedAt: d.now().UTC(),
	}

	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(path, recs)
	case FormatJSON:
		err = writeJSON(path, exportEnvelope{
			Metadata:    exportMetadata{ExportID: res.ExportID, ExportedAt: res.ExportedAt, Filters: f, Count: res.Count},
			Contractors: recs,
		})
	case FormatXLSX:
		err = writeXLSX(path, recs)
	default:
		err = eris.Errorf("pipelinedb: unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}

	if res.Count == 0 {
		d.log.Info("export: no contractors matched", zap.String("path", path), zap.String("format", format))
	} else {
		d.log.Info("export written", zap.String("path", path), zap.String("format", format), zap.Int("count", res.Count))
	}
	return res, nil
}

func writeCSV(path string, recs []ExportRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(ExportColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range recs {
		if err := w.Write(r.Row()); err != nil {
			return eris.Wrapf(err, "export: write contractor %d", r.ContractorID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return eris.Wrap(f.Close(), "export: close csv")
}

func writeJSON(path string, env exportEnvelope) error {
	if env.Contractors == nil {
		env.Contractors = []ExportRecord{}
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal json")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "export: write %s", path)
}

func writeXLSX(path string, recs []ExportRecord) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Contractors")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	header := sheet.AddRow()
	for _, col := range ExportColumns {
		header.AddCell().SetString(col)
	}
	for _, r := range recs {
		row := sheet.AddRow()
		for i, v := range r.Row() {
			cell := row.AddCell()
			if i == 0 || i == 2 {
				n, _ := strconv.Atoi(v)
				cell.SetInt(n)
				continue
			}
			cell.SetString(v)
		}
	}
	return eris.Wrapf(file.Save(path), "export: save %s", path)
}
