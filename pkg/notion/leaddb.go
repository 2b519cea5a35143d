package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// LeadDB is the Notion lead database keyed by contractor ID.
type LeadDB interface {
	// LeadPages maps the Contractor ID of every lead page to its page ID.
	LeadPages(ctx context.Context) (map[int64]string, error)
	// CreateLead adds a queued lead page and returns its page ID.
	CreateLead(ctx context.Context, l Lead) (string, error)
	// UpdateLead rewrites a lead page's properties, leaving its status alone.
	UpdateLead(ctx context.Context, pageID string, l Lead) error
}

// pageAPI is the part of the Notion SDK the lead database calls.
type pageAPI interface {
	query(ctx context.Context, db notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

type sdkAPI struct{ c *notionapi.Client }

func (s sdkAPI) query(ctx context.Context, db notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return s.c.Database.Query(ctx, db, req)
}

func (s sdkAPI) create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return s.c.Page.Create(ctx, req)
}

func (s sdkAPI) update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return s.c.Page.Update(ctx, id, req)
}

// Option configures a LeadDB.
type Option func(*leadDB)

// WithRateLimit caps calls per second; Notion publishes 3. A non-positive
// rps disables throttling.
func WithRateLimit(rps float64) Option {
	return func(d *leadDB) {
		d.limiter = nil
		if rps > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithPageSize sets how many lead pages each query returns (Notion caps it at 100).
func WithPageSize(n int) Option {
	return func(d *leadDB) {
		if n > 0 && n <= 100 {
			d.pageSize = n
		}
	}
}

type leadDB struct {
	api      pageAPI
	db       notionapi.DatabaseID
	limiter  *rate.Limiter
	pageSize int
}

// NewLeadDB opens the lead database dbID with an integration token.
func NewLeadDB(token, dbID string, opts ...Option) LeadDB {
	return newLeadDB(sdkAPI{c: notionapi.NewClient(notionapi.Token(token))}, dbID, opts...)
}

func newLeadDB(api pageAPI, dbID string, opts ...Option) *leadDB {
	d := &leadDB{
		api:      api,
		db:       notionapi.DatabaseID(dbID),
		limiter:  rate.NewLimiter(3, 1),
		pageSize: 100,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *leadDB) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return eris.Wrap(d.limiter.Wait(ctx), "notion: rate limit")
}

func (d *leadDB) LeadPages(ctx context.Context) (map[int64]string, error) {
	idx := make(map[int64]string)
	var cursor notionapi.Cursor
	for {
		if err := d.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := d.api.query(ctx, d.db, &notionapi.DatabaseQueryRequest{StartCursor: cursor, PageSize: d.pageSize})
		if err != nil {
			return nil, eris.Wrapf(err, "notion: query lead database %s", d.db)
		}
		for _, p := range resp.Results {
			if id, ok := contractorID(p); ok {
				idx[id] = string(p.ID)
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return idx, nil
		}
		cursor = resp.NextCursor
	}
}

func (d *leadDB) CreateLead(ctx context.Context, l Lead) (string, error) {
	if err := d.wait(ctx); err != nil {
		return "", err
	}
	page, err := d.api.create(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: d.db},
		Properties: l.Properties(StatusQueued),
	})
	if err != nil {
		return "", eris.Wrapf(err, "notion: create lead %d", l.ContractorID)
	}
	return string(page.ID), nil
}

func (d *leadDB) UpdateLead(ctx context.Context, pageID string, l Lead) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	req := &notionapi.PageUpdateRequest{Properties: l.Properties("")}
	if _, err := d.api.update(ctx, notionapi.PageID(pageID), req); err != nil {
		return eris.Wrapf(err, "notion: update lead %d", l.ContractorID)
	}
	return nil
}

// contractorID reads the Contractor ID number property of a lead page.
func contractorID(p notionapi.Page) (int64, bool) {
	var n float64
	switch prop := p.Properties[PropContractorID].(type) {
	case *notionapi.NumberProperty:
		n = prop.Number
	case notionapi.NumberProperty:
		n = prop.Number
	default:
		return 0, false
	}
	return int64(n), n > 0
}
