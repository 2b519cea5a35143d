// Package outreach pushes ranked contractors to the sales tools: Salesforce
// Accounts and a Notion lead board.
package outreach

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
	"github.com/sells-group/contractor-pipeline/internal/resilience"
	"github.com/sells-group/contractor-pipeline/pkg/notion"
	"github.com/sells-group/contractor-pipeline/pkg/salesforce"
)

// Source lists ranked contractors.
type Source interface {
	ListContractors(ctx context.Context, f pipelinedb.ContractorFilter) ([]pipelinedb.ExportRecord, error)
}

// Result counts one push.
type Result struct {
	Target  string   `json:"target"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Pusher sends contractors to external tools.
type Pusher struct {
	src   Source
	log   *zap.Logger
	retry resilience.RetryConfig
}

// New creates a Pusher reading from src.
func New(src Source, log *zap.Logger) *Pusher {
	if log == nil {
		log = zap.L()
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(log, "notion", "push lead")
	return &Pusher{src: src, log: log, retry: retry}
}

// AccountFields maps a contractor to Salesforce Account fields.
func AccountFields(r pipelinedb.ExportRecord) map[string]any {
	fields := map[string]any{
		"Name":                     r.CompanyName,
		"Phone":                    r.PrimaryPhone,
		"BillingStreet":            r.Street,
		"BillingCity":              r.City,
		"BillingState":             r.State,
		"BillingPostalCode":        r.Zip,
		"BillingCountry":           "US",
		"Industry":                 "Construction",
		"Type":                     "Prospect",
		"Description":              description(r),
		salesforce.ExternalIDField: strconv.FormatInt(r.ContractorID, 10),
	}
	if r.PrimaryDomain != "" {
		fields["Website"] = r.PrimaryDomain
	}
	return fields
}

func description(r pipelinedb.ExportRecord) string {
	var b strings.Builder
	b.WriteString("Categories: ")
	b.WriteString(strings.Join(r.Categories, ", "))
	b.WriteString("\nLicense types: ")
	b.WriteString(strings.Join(r.LicenseTypes, ", "))
	if len(r.OEMBrands) > 0 {
		b.WriteString("\nOEM brands: ")
		b.WriteString(strings.Join(r.OEMBrands, ", "))
	}
	if r.PrimaryEmail != "" {
		b.WriteString("\nEmail: ")
		b.WriteString(r.PrimaryEmail)
	}
	return b.String()
}

// PushSalesforce upserts Accounts keyed on the contractor external id:
// existing Accounts are updated, the rest inserted.
func (p *Pusher) PushSalesforce(ctx context.Context, c salesforce.Client, f pipelinedb.ContractorFilter) (*Result, error) {
	recs, err := p.src.ListContractors(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: list contractors")
	}
	res := &Result{Target: "salesforce"}
	if len(recs) == 0 {
		return res, nil
	}

	ext := make([]string, len(recs))
	for i, r := range recs {
		ext[i] = strconv.FormatInt(r.ContractorID, 10)
	}
	existing, err := salesforce.FindAccountsByExternalID(ctx, c, ext)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: match accounts")
	}

	var (
		inserts []map[string]any
		updates []salesforce.AccountUpdate
	)
	for i, r := range recs {
		fields := AccountFields(r)
		if id, ok := existing[ext[i]]; ok {
			updates = append(updates, salesforce.AccountUpdate{ID: id, Fields: fields})
			continue
		}
		inserts = append(inserts, fields)
	}

	inserted, err := salesforce.BulkInsertAccounts(ctx, c, inserts)
	res.tally(inserted, &res.Created)
	if err != nil {
		return res, eris.Wrap(err, "outreach: insert accounts")
	}
	updated, err := salesforce.BulkUpdateAccounts(ctx, c, updates)
	res.tally(updated, &res.Updated)
	if err != nil {
		return res, eris.Wrap(err, "outreach: update accounts")
	}

	p.log.Info("salesforce push complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (r *Result) tally(results []salesforce.CollectionResult, ok *int) {
	for _, cr := range results {
		if cr.Success {
			*ok++
			continue
		}
		r.Failed++
		r.Errors = append(r.Errors, strings.Join(cr.Errors, "; "))
	}
}

// LeadFor maps a contractor to a Notion lead.
func LeadFor(r pipelinedb.ExportRecord) notion.Lead {
	return notion.Lead{
		ContractorID:  r.ContractorID,
		Name:          r.CompanyName,
		Phone:         r.PrimaryPhone,
		Email:         r.PrimaryEmail,
		Domain:        r.PrimaryDomain,
		City:          r.City,
		State:         r.State,
		Categories:    r.Categories,
		LicenseTypes:  r.LicenseTypes,
		OEMBrands:     r.OEMBrands,
		CategoryCount: r.CategoryCount,
		Unicorn:       r.IsUnicorn,
	}
}

// PushNotion mirrors contractors into the lead database: pages are matched
// on Contractor ID, new leads start Queued. A failed page is counted and the
// push continues; context cancellation stops it.
func (p *Pusher) PushNotion(ctx context.Context, db notion.LeadDB, f pipelinedb.ContractorFilter) (*Result, error) {
	recs, err := p.src.ListContractors(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: list contractors")
	}
	res := &Result{Target: "notion"}
	if len(recs) == 0 {
		return res, nil
	}

	index, err := db.LeadPages(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: load lead pages")
	}

	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "outreach: notion push cancelled")
		}
		lead := LeadFor(r)
		if pageID, ok := index[r.ContractorID]; ok {
			err = resilience.Do(ctx, p.retry, func(ctx context.Context) error {
				return db.UpdateLead(ctx, pageID, lead)
			})
			if err == nil {
				res.Updated++
			}
		} else {
			err = resilience.Do(ctx, p.retry, func(ctx context.Context) error {
				_, err := db.CreateLead(ctx, lead)
				return err
			})
			if err == nil {
				res.Created++
			}
		}
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			p.log.Warn("notion lead push failed", zap.Int64("contractor_id", r.ContractorID), zap.Error(err))
		}
	}

	p.log.Info("notion push complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
