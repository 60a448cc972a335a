// Package metrics computes NPS results from survey scores and grades them.
package metrics

import (
	"math"

	"github.com/sells-group/gps-cli/internal/model"
)

// Score bounds and NPS bucket thresholds.
const (
	MinScore      = 0
	MaxScore      = 10
	PromoterFloor = 9
	PassiveFloor  = 7
)

// Precision is the number of decimals kept for averages and NPS scores.
const Precision = 2

// ValidScore reports whether v is an answerable 0–10 score.
func ValidScore(v int) bool {
	return v >= MinScore && v <= MaxScore
}

// Calculate computes the NPS breakdown of one category over a response set.
// Unanswered and out-of-range scores are skipped.
func Calculate(responses []model.JoinedResponse, c model.MetricCategory) model.MetricResult {
	scores := make([]int, 0, len(responses))
	for _, r := range responses {
		if v := r.Score(c); v != nil {
			scores = append(scores, *v)
		}
	}
	return FromScores(scores)
}

// CalculateAll computes every category over the same response set.
func CalculateAll(responses []model.JoinedResponse) map[model.MetricCategory]model.MetricResult {
	out := make(map[model.MetricCategory]model.MetricResult, len(model.MetricCategories))
	for _, c := range model.MetricCategories {
		out[c] = Calculate(responses, c)
	}
	return out
}

// FromScores computes an NPS breakdown from raw scores.
func FromScores(scores []int) model.MetricResult {
	var res model.MetricResult
	sum := 0
	for _, v := range scores {
		if !ValidScore(v) {
			continue
		}
		switch {
		case v >= PromoterFloor:
			res.Promoters++
		case v >= PassiveFloor:
			res.Passives++
		default:
			res.Detractors++
		}
		sum += v
		res.ResponseCount++
	}
	if res.ResponseCount == 0 {
		return model.MetricResult{}
	}
	res.NPSScore = NPS(res.Promoters, res.Detractors, res.ResponseCount)
	res.Average = Round(float64(sum) / float64(res.ResponseCount))
	return res
}

// NPS is (promoters% - detractors%), rounded to Precision. It is 0 when total is 0.
func NPS(promoters, detractors, total int) float64 {
	if total == 0 {
		return 0
	}
	t := float64(total)
	return Round((float64(promoters)/t - float64(detractors)/t) * 100)
}

// Rate is part/total as a percentage rounded to Precision, or 0 when total is 0.
func Rate(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return Round(float64(part) / float64(total) * 100)
}

// Round rounds half away from zero to Precision decimals.
func Round(v float64) float64 {
	p := math.Pow10(Precision)
	return math.Round(v*p) / p
}
