package model

import (
	"github.com/sells-group/contractor-pipeline/internal/normalize"
)

// Record is one license-portal or scraper input row. Every field is
// optional; an absent field is the empty string (or nil for slices).
type Record struct {
	CompanyName     string   `json:"company_name"`
	ContactName     string   `json:"contact_name"`
	Title           string   `json:"title"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Website         string   `json:"website"`
	Street          string   `json:"street"`
	City            string   `json:"city"`
	State           string   `json:"state"`
	Zip             string   `json:"zip"`
	LicenseType     string   `json:"license_type"`
	LicenseTypes    []string `json:"license_types"`
	LicenseNumber   string   `json:"license_number"`
	LicenseCategory string   `json:"license_category"`
}

// Types returns the record's license types, merging LicenseType and
// LicenseTypes (uppercased, deduplicated, first-seen order).
func (r Record) Types() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(vals []string) {
		for _, v := range vals {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	add(normalize.LicenseTypes(r.LicenseType))
	for _, t := range r.LicenseTypes {
		add(normalize.LicenseTypes(t))
	}
	return out
}

// OEMRecord is one dealer-locator row scraped from a manufacturer site.
type OEMRecord struct {
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Website     string `json:"website"`
	Street      string `json:"street"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	OEMName     string `json:"oem_name"`
	Tier        string `json:"tier"`
	ZipSearched string `json:"zip_searched"`
	SourceURL   string `json:"source_url"`
}

// Record converts the dealer row into a license-less input record.
func (o OEMRecord) Record() Record {
	return Record{
		CompanyName: o.CompanyName,
		Phone:       o.Phone,
		Email:       o.Email,
		Website:     o.Website,
		Street:      o.Street,
		City:        o.City,
		State:       o.State,
		Zip:         o.Zip,
	}
}
