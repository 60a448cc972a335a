// Package store persists rosters, responses, summaries, feedback, and
// monthly packages. PostgresStore is the production backend; SQLiteStore
// serves local runs and tests.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gps-cli/internal/model"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyProcessed is returned when a narrative is attached to a package
// that already has one.
var ErrAlreadyProcessed = errors.New("store: package already processed")

// SummaryFilter selects summary rows. Zero fields match everything.
type SummaryFilter struct {
	Level model.ScopeLevel
	Names []string
	Month *model.Month
	Role  model.RoleFilter
	Limit int
}

// FeedbackFilter selects feedback entries. Zero fields match everything.
type FeedbackFilter struct {
	Level model.ScopeLevel
	Name  string
	Month *model.Month
	Role  model.RoleFilter
	Field model.FeedbackField
}

// PackageFilter selects packages. Results are ordered newest month first.
type PackageFilter struct {
	Month       *model.Month
	Level       model.ScopeLevel
	Name        string
	Role        model.RoleFilter
	Unprocessed bool
	Limit       int
}

// UpsertOptions controls package overwrite behavior.
type UpsertOptions struct {
	// ClearAI resets ai_processed and drops any attached narrative.
	ClearAI bool
}

// Store is the persistence interface for the metrics engine.
type Store interface {
	// Roster
	ActiveMembers(ctx context.Context, area string, hiredBefore time.Time) ([]model.TeamMember, error)
	UpsertMembers(ctx context.Context, members []model.TeamMember) (int64, error)

	// Responses
	Submissions(ctx context.Context, from, to time.Time) ([]model.SurveyResponse, error)
	UpsertResponses(ctx context.Context, responses []model.SurveyResponse) (int64, error)

	// Area directory
	UpsertAreas(ctx context.Context, areas []model.AreaAssignment) error
	ListAreas(ctx context.Context) ([]model.AreaAssignment, error)

	// Summaries
	UpsertSummaries(ctx context.Context, summaries []model.AggregateSummary) error
	ReplaceSummaries(ctx context.Context, month model.Month, summaries []model.AggregateSummary) error
	ListSummaries(ctx context.Context, filter SummaryFilter) ([]model.AggregateSummary, error)
	SummaryMonths(ctx context.Context, level model.ScopeLevel, names []string) ([]model.Month, error)

	// Feedback
	ReplaceFeedback(ctx context.Context, month model.Month, bundles []model.FeedbackBundle) (int, error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackBundle, error)

	// Packages
	UpsertPackage(ctx context.Context, pkg model.MonthlyPackage, opts UpsertOptions) (*model.MonthlyPackage, error)
	GetPackage(ctx context.Context, id string) (*model.MonthlyPackage, error)
	ListPackages(ctx context.Context, filter PackageFilter) ([]model.MonthlyPackage, error)
	CompleteNarrative(ctx context.Context, n model.Narrative) (*model.Narrative, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// packagePayload is the JSON body stored with each package.
type packagePayload struct {
	Summary  model.AggregateSummary    `json:"summary"`
	Feedback []model.AnonymousFeedback `json:"feedback"`
}

func encodeMetrics(m map[model.MetricCategory]model.MetricResult) ([]byte, error) {
	b, err := json.Marshal(m)
	return b, eris.Wrap(err, "store: encode metrics")
}

// decodeMetrics rejects unknown category keys so a renamed column cannot
// surface as a silent zero.
func decodeMetrics(b []byte) (map[model.MetricCategory]model.MetricResult, error) {
	raw := map[string]model.MetricResult{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, eris.Wrap(err, "store: decode metrics")
		}
	}
	out := make(map[model.MetricCategory]model.MetricResult, len(raw))
	for k, v := range raw {
		c, err := model.ParseMetricCategory(k)
		if err != nil {
			return nil, eris.Wrap(err, "store: decode metrics")
		}
		out[c] = v
	}
	return out, nil
}

func encodeScores(r model.SurveyResponse) (scores, feedback []byte, err error) {
	if scores, err = json.Marshal(r.Scores); err != nil {
		return nil, nil, eris.Wrapf(err, "store: encode scores %s", r.ID)
	}
	if feedback, err = json.Marshal(r.Feedback); err != nil {
		return nil, nil, eris.Wrapf(err, "store: encode feedback %s", r.ID)
	}
	return scores, feedback, nil
}

func decodeScores(r *model.SurveyResponse, scores, feedback []byte) error {
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &r.Scores); err != nil {
			return eris.Wrapf(err, "store: decode scores %s", r.ID)
		}
	}
	if len(feedback) > 0 {
		if err := json.Unmarshal(feedback, &r.Feedback); err != nil {
			return eris.Wrapf(err, "store: decode feedback %s", r.ID)
		}
	}
	return nil
}

func encodePayload(p model.MonthlyPackage) ([]byte, error) {
	b, err := json.Marshal(packagePayload{Summary: p.Summary, Feedback: p.Feedback})
	return b, eris.Wrapf(err, "store: encode package %s", p.Key())
}

func decodePayload(p *model.MonthlyPackage, b []byte) error {
	var pl packagePayload
	if err := json.Unmarshal(b, &pl); err != nil {
		return eris.Wrapf(err, "store: decode package %s", p.ID)
	}
	p.Summary = pl.Summary
	p.Feedback = pl.Feedback
	return nil
}

// where accumulates filter clauses for a dialect's placeholder style.
type where struct {
	clauses     []string
	args        []any
	placeholder func(n int) string
	monthArg    func(model.Month) any
}

func newWhere(placeholder func(n int) string, monthArg func(model.Month) any) *where {
	return &where{placeholder: placeholder, monthArg: monthArg}
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func question(int) string { return "?" }

func (w *where) next(v any) string {
	w.args = append(w.args, v)
	return w.placeholder(len(w.args))
}

// eq adds "col = value" unless value is the zero string.
func (w *where) eq(col string, value string) {
	if value == "" {
		return
	}
	w.clauses = append(w.clauses, col+" = "+w.next(value))
}

func (w *where) month(col string, m *model.Month) {
	if m == nil {
		return
	}
	w.clauses = append(w.clauses, col+" = "+w.next(w.monthArg(*m)))
}

// in adds "col IN (...)" with one placeholder per value.
func (w *where) in(col string, values []string) {
	if len(values) == 0 {
		return
	}
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = w.next(v)
	}
	w.clauses = append(w.clauses, col+" IN ("+strings.Join(ph, ", ")+")")
}

func (w *where) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func limitClause(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", n)
}

// groupFeedback folds flat feedback rows back into bundles, preserving
// first-seen order.
func groupFeedback(rows []feedbackRow) []model.FeedbackBundle {
	type key struct {
		scope model.Scope
		month model.Month
		role  model.RoleFilter
		field model.FeedbackField
	}
	idx := make(map[key]int)
	var out []model.FeedbackBundle
	for _, r := range rows {
		k := key{r.scope, r.month, r.role, r.field}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, model.FeedbackBundle{Scope: r.scope, Month: r.month, Role: r.role, Field: r.field})
		}
		out[i].Entries = append(out[i].Entries, r.entry)
	}
	return out
}

type feedbackRow struct {
	scope model.Scope
	month model.Month
	role  model.RoleFilter
	field model.FeedbackField
	entry model.FeedbackEntry
}

// flattenFeedback is the inverse of groupFeedback.
func flattenFeedback(bundles []model.FeedbackBundle) []feedbackRow {
	var out []feedbackRow
	for _, b := range bundles {
		for _, e := range b.Entries {
			out = append(out, feedbackRow{scope: b.Scope, month: b.Month, role: b.Role, field: b.Field, entry: e})
		}
	}
	return out
}
