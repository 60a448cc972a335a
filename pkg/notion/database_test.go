package notion

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQueryAll_SinglePage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "p1"}, {ID: "p2"}},
			HasMore: false,
		}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestQueryAll_MultiPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-abc"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-abc")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p2"}},
		HasMore: false,
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, notionapi.ObjectID("p1"), pages[0].ID)
	assert.Equal(t, notionapi.ObjectID("p2"), pages[1].ID)
	mc.AssertExpectations(t)
}

func TestQueryAll_ErrorOnSecondPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("c2"),
	}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("c2")
	})).Return(nil, assert.AnError).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
	assert.Contains(t, err.Error(), "notion: query all page")
	mc.AssertExpectations(t)
}

func TestQuerySubmissions_DateWindow(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	mc.On("QueryDatabase", ctx, "db-survey", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		and, ok := req.Filter.(notionapi.AndCompoundFilter)
		if !ok || len(and) != 2 {
			return false
		}
		lo, ok1 := and[0].(notionapi.PropertyFilter)
		hi, ok2 := and[1].(notionapi.PropertyFilter)
		return ok1 && ok2 &&
			lo.Property == "Submitted At" && lo.Date != nil && lo.Date.OnOrAfter != nil &&
			time.Time(*lo.Date.OnOrAfter).Equal(from) &&
			hi.Date != nil && hi.Date.Before != nil && time.Time(*hi.Date.Before).Equal(to)
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "s1"}},
	}, nil).Once()

	pages, err := QuerySubmissions(ctx, mc, "db-survey", "Submitted At", from, to)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	mc.AssertExpectations(t)
}

func TestQuerySubmissions_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-survey", mock.Anything).Return(nil, assert.AnError).Once()

	_, err := QuerySubmissions(ctx, mc, "db-survey", "Submitted At", time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: query submissions")
}

func TestGetSchema(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-survey").Return(&notionapi.Database{
		Properties: notionapi.PropertyConfigs{
			"Team Member ID": &notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Training":       &notionapi.NumberPropertyConfig{Type: notionapi.PropertyConfigTypeNumber},
			"Energy":         &notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect},
		},
	}, nil).Once()

	schema, err := GetSchema(ctx, mc, "db-survey")
	require.NoError(t, err)
	assert.Equal(t, []string{"Submitted At"}, schema.Missing("Team Member ID", "Submitted At", "Training"))
	assert.Empty(t, schema.Missing("Energy"))
	assert.Equal(t, []string{"Training"}, schema.OfType(notionapi.PropertyConfigTypeNumber, "Energy", "Training", "Support"))

	mc.On("GetDatabase", ctx, "db-gone").Return(nil, assert.AnError).Once()
	_, err = GetSchema(ctx, mc, "db-gone")
	assert.Error(t, err)
	mc.AssertExpectations(t)
}
