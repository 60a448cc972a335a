package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches all pages from a Notion database, handling pagination.
// The next page is requested in the background while the current one is
// appended.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := nextRequest(filter, "")

	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	for {
		var (
			resp *notionapi.DatabaseQueryResponse
			err  error
		)
		if prefetchCh != nil {
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, req)
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			break
		}

		next := nextRequest(filter, resp.NextCursor)
		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, next)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}

func nextRequest(filter *notionapi.DatabaseQueryRequest, cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
	req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}
	return req
}

// QuerySubmissions fetches every page whose date property falls in [from, to).
func QuerySubmissions(ctx context.Context, c Client, dbID, dateProperty string, from, to time.Time) ([]notionapi.Page, error) {
	start := notionapi.Date(from)
	end := notionapi.Date(to)
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.AndCompoundFilter{
			notionapi.PropertyFilter{
				Property: dateProperty,
				Date:     &notionapi.DateFilterCondition{OnOrAfter: &start},
			},
			notionapi.PropertyFilter{
				Property: dateProperty,
				Date:     &notionapi.DateFilterCondition{Before: &end},
			},
		},
		Sorts: []notionapi.SortObject{
			{Property: dateProperty, Direction: notionapi.SortOrderASC},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query submissions %s..%s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return pages, nil
}

// Schema maps a database's property names to their types.
type Schema map[string]notionapi.PropertyConfigType

// GetSchema reads the property types of a database.
func GetSchema(ctx context.Context, c Client, dbID string) (Schema, error) {
	db, err := c.GetDatabase(ctx, dbID)
	if err != nil {
		return nil, err
	}
	s := make(Schema, len(db.Properties))
	for name, cfg := range db.Properties {
		if cfg == nil {
			continue
		}
		s[name] = cfg.GetType()
	}
	return s, nil
}

// Missing returns the names in want the schema does not define, in the
// order given.
func (s Schema) Missing(want ...string) []string {
	var out []string
	for _, name := range want {
		if _, ok := s[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// OfType returns the names that the schema defines with type t, in the
// order given.
func (s Schema) OfType(t notionapi.PropertyConfigType, names ...string) []string {
	var out []string
	for _, name := range names {
		if typ, ok := s[name]; ok && typ == t {
			out = append(out, name)
		}
	}
	return out
}
