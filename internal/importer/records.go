package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
)

// Roster columns. id, area and role are required.
const (
	ColID        = "id"
	ColFirstName = "first_name"
	ColLastName  = "last_name"
	ColEmail     = "email"
	ColArea      = "area"
	ColRegion    = "region"
	ColRole      = "role"
	ColRoleType  = "role_type"
	ColHireDate  = "hire_date"
)

// Response columns besides one per metric category and feedback field,
// which are matched by key ("career_growth") or label ("Career Growth").
const (
	ColTeamMemberID = "team_member_id"
	ColSubmittedAt  = "submitted_at"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.DateOnly,
	"1/2/2006 15:04",
	"1/2/2006",
	"01-02-06",
}

func parseDate(s string) (time.Time, error) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func rowError(line int, field string, value any, msg string) error {
	return &resilience.ValidationError{Field: fmt.Sprintf("row %d %s", line, field), Value: value, Msg: msg}
}

// ParseRoster maps roster rows (header first) to team members.
func ParseRoster(rows [][]string) ([]model.TeamMember, error) {
	t, err := newTable(rows, ColID, ColArea, ColRole)
	if err != nil {
		return nil, err
	}
	out := make([]model.TeamMember, 0, len(t.rows))
	for i, row := range t.rows {
		line := t.lines[i]
		m := model.TeamMember{
			ID:        t.get(row, ColID),
			FirstName: t.get(row, ColFirstName),
			LastName:  t.get(row, ColLastName),
			Email:     t.get(row, ColEmail),
			Area:      t.get(row, ColArea),
			Region:    t.get(row, ColRegion),
			Role:      t.get(row, ColRole),
		}
		if m.ID == "" {
			return nil, rowError(line, ColID, "", "required")
		}
		m.RoleType = model.ParseRoleType(t.get(row, ColRoleType))
		if m.RoleType == "" {
			m.RoleType = model.ParseRoleType(m.Role)
		}
		if v := t.get(row, ColHireDate); v != "" {
			d, err := parseDate(v)
			if err != nil {
				return nil, rowError(line, ColHireDate, v, err.Error())
			}
			m.HireDate = &d
		}
		out = append(out, m)
	}
	return out, nil
}

// ParseResponses maps response rows (header first) to survey responses.
// Blank and "N/A" scores are unanswered; out-of-range integers are kept
// and discarded later by the calculator.
func ParseResponses(rows [][]string) ([]model.SurveyResponse, error) {
	t, err := newTable(rows, ColTeamMemberID, ColSubmittedAt)
	if err != nil {
		return nil, err
	}

	categories := map[model.MetricCategory]string{}
	fields := map[model.FeedbackField]string{}
	for _, h := range t.headers {
		key := normalizeHeader(h)
		if c, err := model.ParseMetricCategory(h); err == nil {
			categories[c] = key
		} else if f, err := model.ParseFeedbackField(h); err == nil {
			fields[f] = key
		}
	}

	out := make([]model.SurveyResponse, 0, len(t.rows))
	for i, row := range t.rows {
		line := t.lines[i]
		r := model.SurveyResponse{
			ID:           t.get(row, ColID),
			TeamMemberID: t.get(row, ColTeamMemberID),
			Scores:       make(map[model.MetricCategory]*int, len(categories)),
			Feedback:     make(map[model.FeedbackField]*string, len(fields)),
		}
		if r.TeamMemberID == "" {
			return nil, rowError(line, ColTeamMemberID, "", "required")
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		ts := t.get(row, ColSubmittedAt)
		if r.SubmittedAt, err = parseDate(ts); err != nil {
			return nil, rowError(line, ColSubmittedAt, ts, err.Error())
		}

		for c, col := range categories {
			v := t.get(row, col)
			if v == "" || strings.EqualFold(v, "n/a") {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, rowError(line, string(c), v, "score is not an integer")
			}
			r.Scores[c] = &n
		}
		for f, col := range fields {
			if v := t.get(row, col); v != "" {
				r.Feedback[f] = &v
			}
		}
		out = append(out, r)
	}
	return out, nil
}
