package notion

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type apiMock struct {
	mock.Mock
}

func (m *apiMock) query(ctx context.Context, db notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, db, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *apiMock) create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *apiMock) update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func leadPage(id notionapi.ObjectID, contractor notionapi.Property) notionapi.Page {
	return notionapi.Page{ID: id, Properties: notionapi.Properties{PropContractorID: contractor}}
}

func TestNewLeadDB_Options(t *testing.T) {
	t.Parallel()

	d := newLeadDB(new(apiMock), "db-1")
	require.NotNil(t, d.limiter)
	assert.InDelta(t, 3.0, float64(d.limiter.Limit()), 0.001)
	assert.Equal(t, 100, d.pageSize)

	d = newLeadDB(new(apiMock), "db-1", WithRateLimit(0), WithPageSize(25))
	assert.Nil(t, d.limiter)
	assert.Equal(t, 25, d.pageSize)

	d = newLeadDB(new(apiMock), "db-1", WithPageSize(500))
	assert.Equal(t, 100, d.pageSize)
}

func TestLeadPages_FollowsCursor(t *testing.T) {
	t.Parallel()

	api := new(apiMock)
	api.On("query", mock.Anything, notionapi.DatabaseID("db-1"), mock.MatchedBy(func(r *notionapi.DatabaseQueryRequest) bool {
		return r.StartCursor == "" && r.PageSize == 100
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{
			leadPage("page-1", &notionapi.NumberProperty{Number: 1}),
			leadPage("page-x", &notionapi.NumberProperty{Number: 0}),
		},
		HasMore:    true,
		NextCursor: "c2",
	}, nil).Once()
	api.On("query", mock.Anything, notionapi.DatabaseID("db-1"), mock.MatchedBy(func(r *notionapi.DatabaseQueryRequest) bool {
		return r.StartCursor == "c2"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{
			leadPage("page-2", notionapi.NumberProperty{Number: 2}),
			{ID: "page-y", Properties: notionapi.Properties{}},
		},
	}, nil).Once()

	idx, err := newLeadDB(api, "db-1", WithRateLimit(0)).LeadPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "page-1", 2: "page-2"}, idx)
	api.AssertExpectations(t)
}

func TestLeadPages_Error(t *testing.T) {
	t.Parallel()

	api := new(apiMock)
	api.On("query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("unauthorized")).Once()

	_, err := newLeadDB(api, "db-1", WithRateLimit(0)).LeadPages(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: query lead database db-1")
}

func TestLeadPages_CancelledWhileThrottled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := new(apiMock)

	_, err := newLeadDB(api, "db-1").LeadPages(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: rate limit")
	api.AssertNotCalled(t, "query", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateLead(t *testing.T) {
	t.Parallel()

	api := new(apiMock)
	api.On("create", mock.Anything, mock.MatchedBy(func(r *notionapi.PageCreateRequest) bool {
		status, ok := r.Properties[PropStatus].(notionapi.StatusProperty)
		return r.Parent.DatabaseID == "db-1" && ok && status.Status.Name == StatusQueued
	})).Return(&notionapi.Page{ID: "page-9"}, nil).Once()

	id, err := newLeadDB(api, "db-1", WithRateLimit(0)).CreateLead(context.Background(), abcLead)
	require.NoError(t, err)
	assert.Equal(t, "page-9", id)
	api.AssertExpectations(t)
}

func TestCreateLead_Error(t *testing.T) {
	t.Parallel()

	api := new(apiMock)
	api.On("create", mock.Anything, mock.Anything).Return(nil, errors.New("validation_error")).Once()

	_, err := newLeadDB(api, "db-1", WithRateLimit(0)).CreateLead(context.Background(), abcLead)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: create lead 42")
}

func TestUpdateLead_KeepsStatus(t *testing.T) {
	t.Parallel()

	api := new(apiMock)
	api.On("update", mock.Anything, notionapi.PageID("page-1"), mock.MatchedBy(func(r *notionapi.PageUpdateRequest) bool {
		_, hasStatus := r.Properties[PropStatus]
		return !hasStatus
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	require.NoError(t, newLeadDB(api, "db-1", WithRateLimit(0)).UpdateLead(context.Background(), "page-1", abcLead))
	api.AssertExpectations(t)
}

func TestUpdateLead_Error(t *testing.T) {
	t.Parallel()

	api := new(apiMock)
	api.On("update", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("conflict")).Once()

	err := newLeadDB(api, "db-1", WithRateLimit(0)).UpdateLead(context.Background(), "page-1", abcLead)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: update lead 42")
}
