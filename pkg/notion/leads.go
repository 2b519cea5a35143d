// Package notion mirrors ranked contractor leads into a Notion database.
package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// Lead database property names.
const (
	PropName          = "Name"
	PropContractorID  = "Contractor ID"
	PropPhone         = "Phone"
	PropEmail         = "Email"
	PropWebsite       = "URL"
	PropLocation      = "Location"
	PropCategories    = "Categories"
	PropLicenseTypes  = "License Types"
	PropOEMBrands     = "OEM Brands"
	PropCategoryCount = "Category Count"
	PropUnicorn       = "Unicorn"
	PropStatus        = "Status"
)

// StatusQueued is the status new lead pages start in.
const StatusQueued = "Queued"

// Lead is one contractor as mirrored into Notion.
type Lead struct {
	ContractorID  int64
	Name          string
	Phone         string
	Email         string
	Domain        string
	City          string
	State         string
	Categories    []string
	LicenseTypes  []string
	OEMBrands     []string
	CategoryCount int
	Unicorn       bool
}

// Properties converts l into page properties. Empty contact fields are left
// out because Notion rejects blank emails and URLs. Status is only set when
// non-empty so updates keep whatever stage a lead has reached.
func (l Lead) Properties(status string) notionapi.Properties {
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: l.Name}}},
		},
		PropContractorID: notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(l.ContractorID)},
		PropCategories:   multiSelect(l.Categories),
		PropLicenseTypes: multiSelect(l.LicenseTypes),
		PropOEMBrands:    multiSelect(l.OEMBrands),
		PropCategoryCount: notionapi.NumberProperty{
			Type: notionapi.PropertyTypeNumber, Number: float64(l.CategoryCount),
		},
		PropUnicorn: notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: l.Unicorn},
	}
	if l.Phone != "" {
		props[PropPhone] = notionapi.PhoneNumberProperty{Type: notionapi.PropertyTypePhoneNumber, PhoneNumber: l.Phone}
	}
	if l.Email != "" {
		props[PropEmail] = notionapi.EmailProperty{Type: notionapi.PropertyTypeEmail, Email: l.Email}
	}
	if l.Domain != "" {
		props[PropWebsite] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: normalizeURL(l.Domain)}
	}
	if loc := location(l.City, l.State); loc != "" {
		props[PropLocation] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: loc}}},
		}
	}
	if status != "" {
		props[PropStatus] = notionapi.StatusProperty{Type: notionapi.PropertyTypeStatus, Status: notionapi.Status{Name: status}}
	}
	return props
}

func multiSelect(values []string) notionapi.MultiSelectProperty {
	opts := make([]notionapi.Option, 0, len(values))
	for _, v := range values {
		// Notion forbids commas in select option names.
		opts = append(opts, notionapi.Option{Name: strings.ReplaceAll(v, ",", " ")})
	}
	return notionapi.MultiSelectProperty{Type: notionapi.PropertyTypeMultiSelect, MultiSelect: opts}
}

func location(city, state string) string {
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	default:
		return state
	}
}

// normalizeURL ensures a domain has an https:// scheme prefix.
func normalizeURL(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" || strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}
