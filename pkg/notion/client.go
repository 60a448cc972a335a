// Package notion reads survey submissions from a Notion database.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// defaultRPS is Notion's documented average request rate.
const defaultRPS = 3

// Client is the read-only slice of the Notion API the survey source uses.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error)
}

// ClientOption configures NewClient.
type ClientOption func(*apiClient)

// WithRateLimit sets requests per second. Zero or less turns throttling off.
func WithRateLimit(rps float64) ClientOption {
	return func(c *apiClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type apiClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient returns a Client for the integration token, throttled to
// defaultRPS unless overridden.
func NewClient(token string, opts ...ClientOption) Client {
	c := &apiClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(defaultRPS, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *apiClient) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "notion: rate limit")
	}
	return nil
}

func (c *apiClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query database %s", dbID)
	}
	return resp, nil
}

func (c *apiClient) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	db, err := c.api.Database.Get(ctx, notionapi.DatabaseID(dbID))
	if err != nil {
		return nil, eris.Wrapf(err, "notion: get database %s", dbID)
	}
	return db, nil
}
