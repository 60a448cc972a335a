package metrics

import "github.com/sells-group/gps-cli/internal/model"

type band struct {
	floor   float64
	grade   string
	status  string
	color   string
	message string
	rank    int
}

// bands are checked in order; the first floor at or below the score wins.
var bands = []band{
	{90, "A+", "Exceptional", "#28a745", "Outstanding performance - maintain these excellent practices", 7},
	{70, "A", "Strong", "#34c759", "Great results - keep up the good work", 6},
	{50, "B+", "Very Good", "#5cc969", "Solid performance with room for excellence", 5},
	{30, "B", "Good", "#87cf8f", "Good foundation - focus on specific improvements", 4},
	{10, "C+", "Fair", "#ffd60a", "Some concerns need addressing", 3},
	{-9, "C", "Needs Improvement", "#ffc107", "Several areas require attention", 2},
	{-29, "D", "Needs Attention", "#ff9800", "Immediate attention needed", 1},
}

var floorBand = band{grade: "D", status: "Needs Attention", color: "#ff9800", message: "Immediate attention needed", rank: 1}

func bandFor(nps float64) band {
	for _, b := range bands {
		if nps >= b.floor {
			return b
		}
	}
	return floorBand
}

// Grade classifies an NPS score. Trend is left unset.
func Grade(nps float64) model.GradeInfo {
	b := bandFor(nps)
	return model.GradeInfo{
		Grade:   b.grade,
		Color:   b.color,
		Status:  b.status,
		Message: b.message,
	}
}

// Rank is the ordinal of the score's grade, from A+ = 7 down to D = 1.
func Rank(nps float64) int { return bandFor(nps).rank }

// Compare returns the trend from a previous score to the current one.
func Compare(current, previous float64) model.Trend {
	cur, prev := Rank(current), Rank(previous)
	switch {
	case cur > prev:
		return model.TrendUp
	case cur < prev:
		return model.TrendDown
	default:
		return model.TrendSame
	}
}

// GradeWithTrend grades current and, when previous is non-nil, attaches the
// trend against it. A nil previous leaves Trend absent.
func GradeWithTrend(current float64, previous *float64) model.GradeInfo {
	g := Grade(current)
	if previous == nil {
		return g
	}
	t := Compare(current, *previous)
	g.Trend = &t
	g.PreviousGrade = Grade(*previous).Grade
	return g
}

// GradedMetric pairs a result with its grade.
type GradedMetric struct {
	model.MetricResult
	model.GradeInfo
}

// Annotate grades every category of cur against prev, which may be nil.
// Any prior record yields a trend, including one with no responses.
func Annotate(cur map[model.MetricCategory]model.MetricResult, prev map[model.MetricCategory]model.MetricResult) map[model.MetricCategory]GradedMetric {
	out := make(map[model.MetricCategory]GradedMetric, len(cur))
	for c, r := range cur {
		var p *float64
		if prev != nil {
			if pr, ok := prev[c]; ok {
				v := pr.NPSScore
				p = &v
			}
		}
		out[c] = GradedMetric{MetricResult: r, GradeInfo: GradeWithTrend(r.NPSScore, p)}
	}
	return out
}
