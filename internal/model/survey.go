package model

import "time"

// SurveyResponse is one submission event. TeamMemberID may not resolve to
// a current roster entry.
type SurveyResponse struct {
	ID           string                    `json:"id"`
	TeamMemberID string                    `json:"team_member_id"`
	SubmittedAt  time.Time                 `json:"submitted_at"`
	Scores       map[MetricCategory]*int   `json:"scores"`
	Feedback     map[FeedbackField]*string `json:"feedback,omitempty"`
}

// Score returns the raw score for c, or nil when unanswered.
func (r SurveyResponse) Score(c MetricCategory) *int {
	if r.Scores == nil {
		return nil
	}
	return r.Scores[c]
}

// Text returns the free-text answer for f, or "" when unanswered.
func (r SurveyResponse) Text(f FeedbackField) string {
	if r.Feedback == nil || r.Feedback[f] == nil {
		return ""
	}
	return *r.Feedback[f]
}

// JoinedResponse is a response resolved against the roster snapshot.
type JoinedResponse struct {
	SurveyResponse
	Member TeamMember `json:"member"`
}

// ScopeLevel is the aggregation level of a summary.
type ScopeLevel string

const (
	LevelOrganization ScopeLevel = "organization"
	LevelRegion       ScopeLevel = "region"
	LevelArea         ScopeLevel = "area"
)

// OrganizationName is the fixed scope name of the organization level.
const OrganizationName = "organization"

// Scope names an aggregation target.
type Scope struct {
	Level ScopeLevel `json:"level"`
	Name  string     `json:"name"`
}

// OrgScope is the organization-wide scope.
func OrgScope() Scope { return Scope{Level: LevelOrganization, Name: OrganizationName} }

// AreaScope returns the scope for a single area.
func AreaScope(area string) Scope { return Scope{Level: LevelArea, Name: area} }

// RegionScope returns the scope for a region.
func RegionScope(region string) Scope { return Scope{Level: LevelRegion, Name: region} }

func (s Scope) String() string { return string(s.Level) + ":" + s.Name }

// MetricResult is the NPS breakdown for one category.
type MetricResult struct {
	Average       float64 `json:"average"`
	NPSScore      float64 `json:"nps_score"`
	Promoters     int     `json:"promoters"`
	Passives      int     `json:"passives"`
	Detractors    int     `json:"detractors"`
	ResponseCount int     `json:"response_count"`
}

// Trend compares a grade to the prior period's grade.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendSame Trend = "same"
)

// GradeInfo annotates an NPS score. It is never persisted.
type GradeInfo struct {
	Grade         string `json:"grade"`
	Color         string `json:"color"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Trend         *Trend `json:"trend,omitempty"`
	PreviousGrade string `json:"previous_grade,omitempty"`
}

// AggregateSummary holds every category's result for one (scope, month, role).
type AggregateSummary struct {
	Scope          Scope                           `json:"scope"`
	Month          Month                           `json:"month"`
	Role           RoleFilter                      `json:"role"`
	Metrics        map[MetricCategory]MetricResult `json:"metrics"`
	Headcount      int                             `json:"headcount"`
	Completed      int                             `json:"completed"`
	Responses      int                             `json:"responses"`
	CompletionRate float64                         `json:"completion_rate"`
}

// Key is the upsert key of the summary.
func (s AggregateSummary) Key() PackageKey {
	return PackageKey{Scope: s.Scope, Month: s.Month, Role: s.Role}
}

// PackageKey identifies a summary or package.
type PackageKey struct {
	Scope Scope
	Month Month
	Role  RoleFilter
}

func (k PackageKey) String() string {
	return k.Scope.String() + "/" + k.Month.String() + "/" + string(k.Role)
}

// FeedbackEntry is one identified free-text answer kept for audit.
type FeedbackEntry struct {
	TeamMemberID string    `json:"team_member_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Response     string    `json:"response"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// FeedbackBundle groups the answers to one feedback field.
type FeedbackBundle struct {
	Scope   Scope           `json:"scope"`
	Month   Month           `json:"month"`
	Role    RoleFilter      `json:"role"`
	Field   FeedbackField   `json:"field"`
	Entries []FeedbackEntry `json:"entries"`
}

// Anonymous returns the answers with responder identity removed.
func (b FeedbackBundle) Anonymous() []string {
	out := make([]string, len(b.Entries))
	for i, e := range b.Entries {
		out[i] = e.Response
	}
	return out
}

// AnonymousFeedback is the AI-facing form of a bundle.
type AnonymousFeedback struct {
	Field     FeedbackField `json:"field"`
	Guide     FeedbackGuide `json:"guide"`
	Responses []string      `json:"responses"`
}

// MonthlyPackage is the unit handed to the narrative consumer.
type MonthlyPackage struct {
	ID          string              `json:"id"`
	Scope       Scope               `json:"scope"`
	Month       Month               `json:"month"`
	Role        RoleFilter          `json:"role"`
	Version     int                 `json:"version"`
	Summary     AggregateSummary    `json:"summary"`
	Feedback    []AnonymousFeedback `json:"feedback"`
	AIProcessed bool                `json:"ai_processed"`
	Narrative   *Narrative          `json:"narrative,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Key is the upsert key of the package.
func (p MonthlyPackage) Key() PackageKey {
	return PackageKey{Scope: p.Scope, Month: p.Month, Role: p.Role}
}

// Narrative is the AI-written summary attached to a package.
type Narrative struct {
	ID        string    `json:"id"`
	PackageID string    `json:"package_id"`
	Content   string    `json:"content"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// ProcessResult reports one packaging run.
type ProcessResult struct {
	Month            Month    `json:"month"`
	ActiveMembers    int      `json:"active_members"`
	Responses        int      `json:"responses"`
	Unmatched        int      `json:"unmatched"`
	Areas            []string `json:"areas"`
	SummariesWritten int      `json:"summaries_written"`
	PackagesWritten  int      `json:"packages_written"`
	FeedbackWritten  int      `json:"feedback_written"`
	Archived         int      `json:"archived"`
}
