package packager

import (
	"fmt"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/rollup"
)

// Validate checks the internal consistency of a summary before it is
// written. The returned error is a *resilience.ValidationError.
func Validate(s model.AggregateSummary) error {
	invalid := func(field string, value any, format string, args ...any) error {
		return &resilience.ValidationError{
			Field: s.Key().String() + " " + field,
			Value: value,
			Msg:   fmt.Sprintf(format, args...),
		}
	}

	if s.Headcount < 0 || s.Completed < 0 || s.Responses < 0 {
		return invalid("counts", fmt.Sprintf("%d/%d/%d", s.Headcount, s.Completed, s.Responses), "negative count")
	}
	if s.Completed > s.Headcount {
		return invalid("completed", s.Completed, "exceeds headcount %d", s.Headcount)
	}
	if s.Completed > s.Responses {
		return invalid("completed", s.Completed, "exceeds responses %d", s.Responses)
	}
	if !inPercent(s.CompletionRate) {
		return invalid("completion_rate", s.CompletionRate, "outside [0,100]")
	}

	for _, c := range model.MetricCategories {
		r, ok := s.Metrics[c]
		if !ok {
			return invalid(string(c), nil, "missing category")
		}
		if r.Promoters+r.Passives+r.Detractors != r.ResponseCount {
			return invalid(string(c), r.ResponseCount, "promoters %d + passives %d + detractors %d do not sum to response count",
				r.Promoters, r.Passives, r.Detractors)
		}
		if r.ResponseCount > s.Responses {
			return invalid(string(c), r.ResponseCount, "exceeds responses %d", s.Responses)
		}
		if r.NPSScore < -100 || r.NPSScore > 100 {
			return invalid(string(c)+".nps_score", r.NPSScore, "outside [-100,100]")
		}
		if r.Average < 0 || r.Average > 10 {
			return invalid(string(c)+".average", r.Average, "outside [0,10]")
		}
	}
	return nil
}

// ValidateRollup checks that org carries the same counts as the rollup of
// areas. It only holds when every active member belongs to an area.
func ValidateRollup(org model.AggregateSummary, areas []model.AggregateSummary) error {
	if len(areas) == 0 {
		return nil
	}
	want, err := rollup.Organization(areas)
	if err != nil {
		return err
	}
	mismatch := func(field string, got, exp int) error {
		return &resilience.ValidationError{
			Field: org.Key().String() + " " + field,
			Value: got,
			Msg:   fmt.Sprintf("area rollup has %d", exp),
		}
	}
	if org.Headcount != want.Headcount {
		return mismatch("headcount", org.Headcount, want.Headcount)
	}
	if org.Completed != want.Completed {
		return mismatch("completed", org.Completed, want.Completed)
	}
	if org.Responses != want.Responses {
		return mismatch("responses", org.Responses, want.Responses)
	}
	for _, c := range model.MetricCategories {
		got, exp := org.Metrics[c], want.Metrics[c]
		if got.Promoters != exp.Promoters || got.Passives != exp.Passives || got.Detractors != exp.Detractors {
			return mismatch(string(c), got.ResponseCount, exp.ResponseCount)
		}
	}
	return nil
}

func inPercent(v float64) bool { return v >= 0 && v <= 100 }
