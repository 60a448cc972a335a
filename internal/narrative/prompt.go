package narrative

import (
	"fmt"
	"strings"

	"github.com/sells-group/gps-cli/internal/metrics"
	"github.com/sells-group/gps-cli/internal/model"
)

// Participation bands for the completion rate.
const (
	BandExcellent = "excellent participation"
	BandGood      = "good participation"
	BandModerate  = "moderate participation"
	BandLow       = "low participation"
)

// ParticipationBand describes a completion rate in words.
func ParticipationBand(rate float64) string {
	switch {
	case rate >= 80:
		return BandExcellent
	case rate >= 60:
		return BandGood
	case rate >= 40:
		return BandModerate
	default:
		return BandLow
	}
}

const instructions = `You write monthly workforce survey summaries for leadership.

Each request contains one package: NPS metrics per survey category for a
single scope, month, and role group, plus anonymous free-text answers.

Write 3 to 5 short paragraphs:
1. Overall sentiment and participation.
2. The strongest and weakest categories, citing NPS scores and grades.
3. Recurring themes from the free-text answers, using the field guides below.
4. Two or three concrete actions for leadership.

Never name or try to identify individual respondents. Do not invent numbers
that are not in the package. Write plain prose without headings.`

// SystemPrompt is the shared system prompt: instructions plus every
// feedback field's guide. It is identical for every package.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nFeedback field guides:\n")
	for _, f := range model.FeedbackFields {
		g := f.Guide()
		fmt.Fprintf(&b, "\n%s\n  Question: %s\n  Purpose: %s\n  Look for: %s\n",
			g.Label, g.Question, g.Purpose, strings.Join(g.AnalysisHints, "; "))
	}
	return b.String()
}

// BuildPrompt renders a package as the user message.
func BuildPrompt(p model.MonthlyPackage) string {
	s := p.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "Scope: %s (%s)\n", p.Scope.Name, p.Scope.Level)
	fmt.Fprintf(&b, "Month: %s\n", p.Month)
	fmt.Fprintf(&b, "Role group: %s\n", p.Role)
	fmt.Fprintf(&b, "Participation: %d of %d team members responded (%.2f%%, %s); %d responses total\n",
		s.Completed, s.Headcount, s.CompletionRate, ParticipationBand(s.CompletionRate), s.Responses)

	b.WriteString("\nMetrics:\n")
	for _, c := range model.MetricCategories {
		r, ok := s.Metrics[c]
		if !ok || r.ResponseCount == 0 {
			fmt.Fprintf(&b, "- %s: no responses\n", c.Label())
			continue
		}
		g := metrics.Grade(r.NPSScore)
		fmt.Fprintf(&b, "- %s: NPS %.2f (grade %s, %s), average %.2f, %d promoters / %d passives / %d detractors of %d\n",
			c.Label(), r.NPSScore, g.Grade, g.Status, r.Average, r.Promoters, r.Passives, r.Detractors, r.ResponseCount)
	}

	if len(p.Feedback) == 0 {
		b.WriteString("\nNo free-text feedback this month.\n")
		return b.String()
	}
	b.WriteString("\nFeedback:\n")
	for _, fb := range p.Feedback {
		fmt.Fprintf(&b, "\n%s (%d responses):\n", fb.Field.Label(), len(fb.Responses))
		for _, r := range fb.Responses {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}
