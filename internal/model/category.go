package model

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// MetricCategory is one 0–10 survey question scored as NPS.
type MetricCategory string

const (
	CategoryCareerGrowth        MetricCategory = "career_growth"
	CategoryTraining            MetricCategory = "training"
	CategorySupport             MetricCategory = "support"
	CategoryPayAccuracy         MetricCategory = "pay_accuracy"
	CategoryCompanyEndorsement  MetricCategory = "company_endorsement"
	CategoryOpportunity         MetricCategory = "opportunity"
	CategoryEnergy              MetricCategory = "energy"
	CategoryFinancialGoals      MetricCategory = "financial_goals"
	CategoryPersonalPerformance MetricCategory = "personal_performance"
	CategoryDevelopment         MetricCategory = "development"
	CategoryTeamCulture         MetricCategory = "team_culture"
)

type categoryInfo struct {
	label    string
	question string
}

var categoryTable = map[MetricCategory]categoryInfo{
	CategoryCareerGrowth:        {"Career Growth", "I am making the money I need for this to be a long term opportunity"},
	CategoryTraining:            {"Training", "I am receiving the training I need"},
	CategorySupport:             {"Support", "I am receiving the support I need"},
	CategoryPayAccuracy:         {"Pay Accuracy", "I have an understanding of how I'm paid"},
	CategoryCompanyEndorsement:  {"Company Endorsement", "I would recommend working here to friends and family"},
	CategoryOpportunity:         {"Opportunity", "I see opportunities for growth here"},
	CategoryEnergy:              {"Energy", "How is your energy level at the beginning and end of the day?"},
	CategoryFinancialGoals:      {"Financial Goals", "How are you doing towards your financial goals?"},
	CategoryPersonalPerformance: {"Personal Performance", "Rate your professional performance"},
	CategoryDevelopment:         {"Development", "Rate how you are currently doing with your personal & professional development"},
	CategoryTeamCulture:         {"Team Culture", "How would you rate the culture of your team?"},
}

// MetricCategories lists every category in reporting order.
var MetricCategories = []MetricCategory{
	CategoryCareerGrowth,
	CategoryTraining,
	CategorySupport,
	CategoryPayAccuracy,
	CategoryCompanyEndorsement,
	CategoryOpportunity,
	CategoryEnergy,
	CategoryFinancialGoals,
	CategoryPersonalPerformance,
	CategoryDevelopment,
	CategoryTeamCulture,
}

// Label is the human-readable question name, e.g. "Career Growth".
func (c MetricCategory) Label() string { return categoryTable[c].label }

// Question is the survey prompt shown to respondents.
func (c MetricCategory) Question() string { return categoryTable[c].question }

// Valid reports whether c is a known category.
func (c MetricCategory) Valid() bool {
	_, ok := categoryTable[c]
	return ok
}

// ParseMetricCategory accepts either a key ("career_growth") or a label
// ("Career Growth"). Unknown names are an error.
func ParseMetricCategory(s string) (MetricCategory, error) {
	s = strings.TrimSpace(s)
	if c := MetricCategory(s); c.Valid() {
		return c, nil
	}
	for c, info := range categoryTable {
		if strings.EqualFold(info.label, s) {
			return c, nil
		}
	}
	return "", eris.Errorf("model: unknown metric category %q", s)
}

// FeedbackField is one free-text survey question.
type FeedbackField string

const (
	FeedbackGeneral             FeedbackField = "feedback"
	FeedbackEnergy              FeedbackField = "energy_feedback"
	FeedbackDevelopment         FeedbackField = "development_feedback"
	FeedbackFinancialGoals      FeedbackField = "financial_goals_feedback"
	FeedbackPersonalPerformance FeedbackField = "personal_performance_feedback"
	FeedbackRoadblocks          FeedbackField = "roadblocks"
	FeedbackLeadershipSupport   FeedbackField = "leadership_support"
	FeedbackRecognition         FeedbackField = "recognition"
)

// FeedbackGuide describes a feedback question for the narrative consumer.
type FeedbackGuide struct {
	Label         string   `json:"label"`
	Question      string   `json:"question"`
	Purpose       string   `json:"purpose"`
	AnalysisHints []string `json:"analysis_hints"`
}

var feedbackTable = map[FeedbackField]FeedbackGuide{
	FeedbackGeneral: {
		Label:         "Feedback",
		Question:      "Is there anything else you would like your leadership to know?",
		Purpose:       "Capture general sentiments and experiences that might not be covered by specific metrics",
		AnalysisHints: []string{"Look for common themes", "Identify urgent concerns", "Note positive experiences"},
	},
	FeedbackEnergy: {
		Label:         "Energy Feedback",
		Question:      "How is your energy level at the beginning and end of the day?",
		Purpose:       "Assess work-life balance and potential burnout risks",
		AnalysisHints: []string{"Compare start vs end of day", "Look for patterns in energy fluctuation", "Identify energy drains"},
	},
	FeedbackDevelopment: {
		Label:         "Development Feedback",
		Question:      "What's one thing you are going to do next month to improve on your personal & professional development?",
		Purpose:       "Track growth opportunities and career progression",
		AnalysisHints: []string{"Identify training needs", "Note mentorship requests", "Track skill development"},
	},
	FeedbackFinancialGoals: {
		Label:         "Financial Goals Feedback",
		Question:      "What's one thing you are going to do next month to make progress towards your financial goals?",
		Purpose:       "Monitor financial satisfaction and compensation adequacy",
		AnalysisHints: []string{"Look for compensation concerns", "Track financial goal progress", "Identify resource needs"},
	},
	FeedbackPersonalPerformance: {
		Label:         "Personal Performance Feedback",
		Question:      "What is one thing you are going to do next month to improve professionally?",
		Purpose:       "Self-assessment of work quality and productivity",
		AnalysisHints: []string{"Compare with metrics", "Identify support needs", "Note achievements"},
	},
	FeedbackRoadblocks: {
		Label:         "Roadblocks",
		Question:      "Is there anything keeping you from hitting your goals today?",
		Purpose:       "Identify obstacles preventing optimal performance",
		AnalysisHints: []string{"Group by type (process/technical/resource)", "Track recurring issues", "Note urgency"},
	},
	FeedbackLeadershipSupport: {
		Label:         "Leadership Support",
		Question:      "How can leadership better support you?",
		Purpose:       "Gather specific feedback on leadership effectiveness",
		AnalysisHints: []string{"Categorize support types needed", "Track recurring requests", "Note immediate needs"},
	},
	FeedbackRecognition: {
		Label:         "Recognition",
		Question:      "Is there anyone else you would like to recognize this month?",
		Purpose:       "Assess effectiveness of recognition programs",
		AnalysisHints: []string{"Note recognition preferences", "Track satisfaction levels", "Identify improvement areas"},
	},
}

// FeedbackFields lists every feedback field in reporting order.
var FeedbackFields = []FeedbackField{
	FeedbackGeneral,
	FeedbackEnergy,
	FeedbackDevelopment,
	FeedbackFinancialGoals,
	FeedbackPersonalPerformance,
	FeedbackRoadblocks,
	FeedbackLeadershipSupport,
	FeedbackRecognition,
}

// Guide returns the question metadata for f.
func (f FeedbackField) Guide() FeedbackGuide { return feedbackTable[f] }

// Label is the display name, e.g. "Energy Feedback".
func (f FeedbackField) Label() string { return feedbackTable[f].Label }

// Valid reports whether f is a known feedback field.
func (f FeedbackField) Valid() bool {
	_, ok := feedbackTable[f]
	return ok
}

// ParseFeedbackField accepts a key or a label.
func ParseFeedbackField(s string) (FeedbackField, error) {
	s = strings.TrimSpace(s)
	if f := FeedbackField(s); f.Valid() {
		return f, nil
	}
	for f, g := range feedbackTable {
		if strings.EqualFold(g.Label, s) {
			return f, nil
		}
	}
	return "", eris.Errorf("model: unknown feedback field %q", s)
}

// Stat is one statistic of a MetricResult.
type Stat string

const (
	StatAverage    Stat = "avg"
	StatNPS        Stat = "nps"
	StatPromoters  Stat = "promoters"
	StatPassives   Stat = "passives"
	StatDetractors Stat = "detractors"
	StatResponses  Stat = "responses"
)

// Stats lists the statistics in export order.
var Stats = []Stat{StatAverage, StatNPS, StatPromoters, StatPassives, StatDetractors, StatResponses}

// FieldDescriptor identifies a (category, role filter) metric slot.
type FieldDescriptor struct {
	Category MetricCategory
	Role     RoleFilter
	prefix   string
}

var rolePrefixes = map[RoleFilter]string{
	RoleAll:           "",
	RoleFilterSetter:  "setter_",
	RoleFilterCloser:  "closer_",
	RoleFilterManager: "manager_",
}

// Descriptor returns the field descriptor for a category and role filter.
// It fails for any category or role outside the enumerations.
func Descriptor(c MetricCategory, r RoleFilter) (FieldDescriptor, error) {
	if !c.Valid() {
		return FieldDescriptor{}, eris.Errorf("model: unknown metric category %q", c)
	}
	prefix, ok := rolePrefixes[r]
	if !ok {
		return FieldDescriptor{}, eris.Errorf("model: unknown role filter %q", r)
	}
	return FieldDescriptor{Category: c, Role: r, prefix: prefix}, nil
}

// Column is the flat column name for a statistic, e.g. "setter_training_nps".
func (d FieldDescriptor) Column(s Stat) string {
	return fmt.Sprintf("%s%s_%s", d.prefix, d.Category, s)
}

// Value reads the statistic from r.
func (d FieldDescriptor) Value(r MetricResult, s Stat) float64 {
	switch s {
	case StatAverage:
		return r.Average
	case StatNPS:
		return r.NPSScore
	case StatPromoters:
		return float64(r.Promoters)
	case StatPassives:
		return float64(r.Passives)
	case StatDetractors:
		return float64(r.Detractors)
	case StatResponses:
		return float64(r.ResponseCount)
	default:
		return 0
	}
}
