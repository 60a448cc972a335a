package responses

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/pkg/notion"
)

// SubmissionStore is the subset of store.Store a StoreSource needs.
type SubmissionStore interface {
	Submissions(ctx context.Context, from, to time.Time) ([]model.SurveyResponse, error)
}

// StoreSource reads submissions from the survey_responses table.
type StoreSource struct {
	st SubmissionStore
}

// NewStoreSource creates a StoreSource.
func NewStoreSource(st SubmissionStore) *StoreSource { return &StoreSource{st: st} }

func (s *StoreSource) Name() string { return "store" }

func (s *StoreSource) Submissions(ctx context.Context, from, to time.Time) ([]model.SurveyResponse, error) {
	return s.st.Submissions(ctx, from, to)
}

// Notion property names that are not derived from category or field labels.
const (
	PropMemberID    = "Team Member ID"
	PropSubmittedAt = "Submitted At"
)

// NotionSource reads submissions from a Notion survey database. Score and
// feedback columns are named by their category and field labels.
type NotionSource struct {
	client notion.Client
	dbID   string
}

// NewNotionSource creates a NotionSource over the given database.
func NewNotionSource(c notion.Client, dbID string) *NotionSource {
	return &NotionSource{client: c, dbID: dbID}
}

func (s *NotionSource) Name() string { return "notion" }

func (s *NotionSource) Submissions(ctx context.Context, from, to time.Time) ([]model.SurveyResponse, error) {
	schema, err := notion.GetSchema(ctx, s.client, s.dbID)
	if err != nil {
		return nil, err
	}
	if missing := schema.Missing(PropMemberID, PropSubmittedAt); len(missing) > 0 {
		return nil, &resilience.ValidationError{Field: "notion database " + s.dbID, Value: missing, Msg: "missing required properties"}
	}
	// A blank number cell reads back as 0 and would count as a detractor.
	if numeric := schema.OfType(notionapi.PropertyConfigTypeNumber, scoreLabels()...); len(numeric) > 0 {
		return nil, &resilience.ValidationError{Field: "notion database " + s.dbID, Value: numeric,
			Msg: "score columns must be select or text, number columns cannot record an unanswered question"}
	}
	pages, err := notion.QuerySubmissions(ctx, s.client, s.dbID, PropSubmittedAt, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]model.SurveyResponse, 0, len(pages))
	for _, p := range pages {
		if r, ok := fromPage(p); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func scoreLabels() []string {
	out := make([]string, len(model.MetricCategories))
	for i, c := range model.MetricCategories {
		out[i] = c.Label()
	}
	return out
}

// fromPage maps a Notion page to a SurveyResponse. Pages without a member
// id or submission time are skipped.
func fromPage(p notionapi.Page) (model.SurveyResponse, bool) {
	props := p.Properties
	memberID := strings.TrimSpace(notion.Text(props, PropMemberID))
	if memberID == "" {
		return model.SurveyResponse{}, false
	}
	submitted := notion.DateValue(props, PropSubmittedAt)
	if submitted == nil {
		if p.CreatedTime.IsZero() {
			return model.SurveyResponse{}, false
		}
		t := p.CreatedTime
		submitted = &t
	}

	r := model.SurveyResponse{
		ID:           string(p.ID),
		TeamMemberID: memberID,
		SubmittedAt:  submitted.UTC(),
		Scores:       make(map[model.MetricCategory]*int, len(model.MetricCategories)),
		Feedback:     make(map[model.FeedbackField]*string, len(model.FeedbackFields)),
	}
	for _, c := range model.MetricCategories {
		r.Scores[c] = notion.Integer(props, c.Label())
	}
	for _, f := range model.FeedbackFields {
		r.Feedback[f] = notion.OptionalText(props, f.Label())
	}
	return r, true
}
