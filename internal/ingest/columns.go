package ingest

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-pipeline/internal/model"
)

// Canonical field names.
const (
	FieldCompanyName     = "company_name"
	FieldContactName     = "contact_name"
	FieldTitle           = "title"
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldWebsite         = "website"
	FieldStreet          = "street"
	FieldCity            = "city"
	FieldState           = "state"
	FieldZip             = "zip"
	FieldLicenseType     = "license_type"
	FieldLicenseNumber   = "license_number"
	FieldLicenseCategory = "license_category"
	FieldOEMName         = "oem_name"
	FieldTier            = "tier"
	FieldZipSearched     = "zip_searched"
	FieldSourceURL       = "source_url"
)

// aliases maps normalized header spellings seen in portal and locator
// exports to canonical fields.
var aliases = map[string]string{
	"company_name": FieldCompanyName, "company": FieldCompanyName, "business_name": FieldCompanyName,
	"business": FieldCompanyName, "name": FieldCompanyName, "licensee_name": FieldCompanyName,
	"licensee": FieldCompanyName, "dba": FieldCompanyName, "dba_name": FieldCompanyName,
	"contractor": FieldCompanyName, "contractor_name": FieldCompanyName, "dealer_name": FieldCompanyName,
	"dealer": FieldCompanyName, "organization": FieldCompanyName,

	"contact_name": FieldContactName, "contact": FieldContactName, "owner": FieldContactName,
	"owner_name": FieldContactName, "qualifier": FieldContactName, "qualifier_name": FieldContactName,
	"primary_contact": FieldContactName,

	"title": FieldTitle, "contact_title": FieldTitle, "position": FieldTitle,

	"email": FieldEmail, "email_address": FieldEmail, "e_mail": FieldEmail, "contact_email": FieldEmail,

	"phone": FieldPhone, "phone_number": FieldPhone, "telephone": FieldPhone, "business_phone": FieldPhone,
	"main_phone": FieldPhone, "phone1": FieldPhone, "tel": FieldPhone,

	"website": FieldWebsite, "web_site": FieldWebsite, "website_url": FieldWebsite, "homepage": FieldWebsite,
	"url": FieldWebsite, "domain": FieldWebsite,

	"street": FieldStreet, "address": FieldStreet, "address1": FieldStreet, "address_line_1": FieldStreet,
	"street_address": FieldStreet, "mailing_address": FieldStreet,

	"city": FieldCity, "mailing_city": FieldCity,

	"state": FieldState, "st": FieldState, "state_code": FieldState, "mailing_state": FieldState,

	"zip": FieldZip, "zip_code": FieldZip, "zipcode": FieldZip, "postal_code": FieldZip, "mailing_zip": FieldZip,

	"license_type": FieldLicenseType, "license_types": FieldLicenseType, "lic_type": FieldLicenseType,
	"license_class": FieldLicenseType, "classification": FieldLicenseType,

	"license_number": FieldLicenseNumber, "license_no": FieldLicenseNumber, "lic_number": FieldLicenseNumber,
	"license_num": FieldLicenseNumber, "license": FieldLicenseNumber,

	"license_category": FieldLicenseCategory, "category": FieldLicenseCategory,

	"oem_name": FieldOEMName, "oem": FieldOEMName, "brand": FieldOEMName, "manufacturer": FieldOEMName,

	"tier": FieldTier, "dealer_tier": FieldTier, "program": FieldTier, "certification": FieldTier,

	"zip_searched": FieldZipSearched, "search_zip": FieldZipSearched, "searched_zip": FieldZipSearched,

	"source_url": FieldSourceURL, "locator_url": FieldSourceURL, "page_url": FieldSourceURL,
}

// ErrNoIdentity is returned for a header with no company, phone or email
// column: every row of such a file would be skipped.
var ErrNoIdentity = eris.New("ingest: header has no company_name, phone or email column")

// Columns maps canonical fields to row indexes.
type Columns map[string]int

// MapHeader resolves header cells to canonical fields. The first column
// mapping to a field wins; unknown columns are ignored.
func MapHeader(header []string) (Columns, error) {
	cols := make(Columns, len(header))
	for i, h := range header {
		field, ok := aliases[headerKey(h)]
		if !ok {
			continue
		}
		if _, dup := cols[field]; !dup {
			cols[field] = i
		}
	}
	if !cols.Has(FieldCompanyName) && !cols.Has(FieldPhone) && !cols.Has(FieldEmail) {
		return nil, eris.Wrapf(ErrNoIdentity, "columns %v", header)
	}
	return cols, nil
}

// headerKey lowercases h and collapses non-alphanumeric runs to "_".
func headerKey(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
			continue
		}
		sep = true
	}
	return b.String()
}

// Has reports whether field is mapped.
func (c Columns) Has(field string) bool {
	_, ok := c[field]
	return ok
}

func (c Columns) get(row []string, field string) string {
	i, ok := c[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Record builds a license-portal record from a data row.
func (c Columns) Record(row []string) model.Record {
	return model.Record{
		CompanyName:     c.get(row, FieldCompanyName),
		ContactName:     c.get(row, FieldContactName),
		Title:           c.get(row, FieldTitle),
		Email:           c.get(row, FieldEmail),
		Phone:           c.get(row, FieldPhone),
		Website:         c.get(row, FieldWebsite),
		Street:          c.get(row, FieldStreet),
		City:            c.get(row, FieldCity),
		State:           c.get(row, FieldState),
		Zip:             c.get(row, FieldZip),
		LicenseType:     c.get(row, FieldLicenseType),
		LicenseNumber:   c.get(row, FieldLicenseNumber),
		LicenseCategory: c.get(row, FieldLicenseCategory),
	}
}

// OEMRecord builds a dealer-locator record from a data row.
func (c Columns) OEMRecord(row []string) model.OEMRecord {
	return model.OEMRecord{
		CompanyName: c.get(row, FieldCompanyName),
		Phone:       c.get(row, FieldPhone),
		Email:       c.get(row, FieldEmail),
		Website:     c.get(row, FieldWebsite),
		Street:      c.get(row, FieldStreet),
		City:        c.get(row, FieldCity),
		State:       c.get(row, FieldState),
		Zip:         c.get(row, FieldZip),
		OEMName:     c.get(row, FieldOEMName),
		Tier:        c.get(row, FieldTier),
		ZipSearched: c.get(row, FieldZipSearched),
		SourceURL:   c.get(row, FieldSourceURL),
	}
}
