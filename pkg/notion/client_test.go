package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/time/rate"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	resp, _ := args.Get(0).(*notionapi.DatabaseQueryResponse)
	return resp, args.Error(1)
}

func (m *MockClient) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	args := m.Called(ctx, dbID)
	db, _ := args.Get(0).(*notionapi.Database)
	return db, args.Error(1)
}

var _ Client = (*MockClient)(nil)

func TestNewClient_DefaultLimit(t *testing.T) {
	c := NewClient("test-token").(*apiClient)
	assert.Equal(t, rate.Limit(defaultRPS), c.limiter.Limit())
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(5)).(*apiClient)
	assert.Equal(t, rate.Limit(5), c.limiter.Limit())
	assert.Equal(t, 5, c.limiter.Burst())

	c = NewClient("test-token", WithRateLimit(0.5)).(*apiClient)
	assert.Equal(t, 1, c.limiter.Burst())

	c = NewClient("test-token", WithRateLimit(0)).(*apiClient)
	assert.Nil(t, c.limiter)
}

func TestThrottle_CancelledContext(t *testing.T) {
	c := &apiClient{
		api:     notionapi.NewClient("test-token"),
		limiter: rate.NewLimiter(rate.Limit(0.001), 0),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.QueryDatabase(ctx, "db-1", &notionapi.DatabaseQueryRequest{})
	assert.ErrorContains(t, err, "notion: rate limit")

	_, err = c.GetDatabase(ctx, "db-1")
	assert.ErrorContains(t, err, "notion: rate limit")
}
