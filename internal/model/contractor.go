// Package model defines the canonical contractor entities and the input
// records produced by license and OEM dealer ingesters.
package model

import (
	"time"
)

// SourceType records which kind of source a contractor has been seen in.
type SourceType string

const (
	SourceStateLicense SourceType = "state_license"
	SourceOEMDealer    SourceType = "oem_dealer"
	SourceBoth         SourceType = "both"
)

// Contractor is the canonical, deduplicated company record.
type Contractor struct {
	ID             int64      `json:"id" db:"id"`
	CompanyName    string     `json:"company_name" db:"company_name"`
	NormalizedName string     `json:"normalized_name" db:"normalized_name"`
	PrimaryPhone   string     `json:"primary_phone,omitempty" db:"primary_phone"`
	PrimaryEmail   string     `json:"primary_email,omitempty" db:"primary_email"`
	PrimaryDomain  string     `json:"primary_domain,omitempty" db:"primary_domain"`
	Website        string     `json:"website,omitempty" db:"website"`
	Street         string     `json:"street,omitempty" db:"street"`
	City           string     `json:"city,omitempty" db:"city"`
	State          string     `json:"state,omitempty" db:"state"`
	Zip            string     `json:"zip,omitempty" db:"zip"`
	SourceType     SourceType `json:"source_type" db:"source_type"`
	Source         string     `json:"source,omitempty" db:"source"`

	IsDeleted      bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy      string     `json:"deleted_by,omitempty" db:"deleted_by"`
	DeletionReason string     `json:"deletion_reason,omitempty" db:"deletion_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Categories is loaded from the contractor's licenses, never stored.
	Categories []string `json:"categories,omitempty" db:"-"`
}

// CategoryCount is the number of distinct license categories held.
func (c *Contractor) CategoryCount() int { return len(c.Categories) }

// IsMultiLicense reports whether the contractor holds 2+ categories.
func (c *Contractor) IsMultiLicense() bool { return c.CategoryCount() >= 2 }

// IsUnicorn reports whether the contractor holds 3+ categories.
func (c *Contractor) IsUnicorn() bool { return c.CategoryCount() >= 3 }

// HasEmail reports whether a primary email is known.
func (c *Contractor) HasEmail() bool { return c.PrimaryEmail != "" }

// Snapshot returns the stored fields as a map for audit records.
func (c *Contractor) Snapshot() map[string]any {
	return map[string]any{
		"company_name":    c.CompanyName,
		"normalized_name": c.NormalizedName,
		"primary_phone":   c.PrimaryPhone,
		"primary_email":   c.PrimaryEmail,
		"primary_domain":  c.PrimaryDomain,
		"website":         c.Website,
		"street":          c.Street,
		"city":            c.City,
		"state":           c.State,
		"zip":             c.Zip,
		"source_type":     string(c.SourceType),
		"source":          c.Source,
		"is_deleted":      c.IsDeleted,
	}
}

// Contact is a person, email or phone tied to a contractor.
type Contact struct {
	ID           int64     `json:"id" db:"id"`
	ContractorID int64     `json:"contractor_id" db:"contractor_id"`
	Name         string    `json:"name,omitempty" db:"name"`
	Email        string    `json:"email,omitempty" db:"email"`
	Phone        string    `json:"phone,omitempty" db:"phone"`
	Title        string    `json:"title,omitempty" db:"title"`
	Source       string    `json:"source,omitempty" db:"source"`
	Confidence   int       `json:"confidence" db:"confidence"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// License is one (contractor, state, license_type) claim.
type License struct {
	ID              int64     `json:"id" db:"id"`
	ContractorID    int64     `json:"contractor_id" db:"contractor_id"`
	State           string    `json:"state" db:"state"`
	LicenseType     string    `json:"license_type" db:"license_type"`
	LicenseNumber   string    `json:"license_number,omitempty" db:"license_number"`
	LicenseCategory string    `json:"license_category,omitempty" db:"license_category"`
	Source          string    `json:"source,omitempty" db:"source"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// OEMCertification is one (contractor, oem_name) dealer-locator claim.
type OEMCertification struct {
	ID           int64     `json:"id" db:"id"`
	ContractorID int64     `json:"contractor_id" db:"contractor_id"`
	OEMName      string    `json:"oem_name" db:"oem_name"`
	Tier         string    `json:"tier,omitempty" db:"tier"`
	ZipSearched  string    `json:"zip_searched,omitempty" db:"zip_searched"`
	SourceURL    string    `json:"source_url,omitempty" db:"source_url"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SPWRanking is a Solar Power World top-contractor list placement.
type SPWRanking struct {
	ID           int64     `json:"id" db:"id"`
	ContractorID int64     `json:"contractor_id" db:"contractor_id"`
	Year         int       `json:"year" db:"year"`
	ListName     string    `json:"list_name" db:"list_name"`
	Rank         int       `json:"rank" db:"rank"`
	KWInstalled  float64   `json:"kw_installed,omitempty" db:"kw_installed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
