package rollup

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gps-cli/internal/metrics"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
)

func result(p, a, d int, avg float64) model.MetricResult {
	n := p + a + d
	return model.MetricResult{
		Average:       avg,
		NPSScore:      metrics.NPS(p, d, n),
		Promoters:     p,
		Passives:      a,
		Detractors:    d,
		ResponseCount: n,
	}
}

func areaSummary(area string, training model.MetricResult, headcount, completed int) model.AggregateSummary {
	return model.AggregateSummary{
		Scope:     model.AreaScope(area),
		Month:     model.MustParseMonth("2025-03"),
		Role:      model.RoleAll,
		Metrics:   map[model.MetricCategory]model.MetricResult{model.CategoryTraining: training},
		Headcount: headcount,
		Completed: completed,
		Responses: training.ResponseCount,
	}
}

func TestCombine_TwoAreas(t *testing.T) {
	got := Combine(result(5, 2, 1, 8.5), result(1, 1, 3, 5.2))

	assert.Equal(t, 6, got.Promoters)
	assert.Equal(t, 3, got.Passives)
	assert.Equal(t, 4, got.Detractors)
	assert.Equal(t, 13, got.ResponseCount)
	assert.Equal(t, 15.38, got.NPSScore)
	assert.Equal(t, 7.23, got.Average) // (8.5*8 + 5.2*5) / 13
}

func TestCombine_DiffersFromNaiveMean(t *testing.T) {
	big := result(90, 5, 5, 9)  // nps 85
	small := result(0, 0, 2, 2) // nps -100
	got := Combine(big, small)

	naive := (big.NPSScore + small.NPSScore) / 2
	assert.Equal(t, -7.5, naive)
	assert.Equal(t, metrics.NPS(90, 7, 102), got.NPSScore)
	assert.NotEqual(t, naive, got.NPSScore)
	assert.Greater(t, got.NPSScore, 80.0)
}

func TestCombine_ZeroResponseAreaHasNoWeight(t *testing.T) {
	got := Combine(result(2, 0, 1, 7), model.MetricResult{})
	assert.Equal(t, result(2, 0, 1, 7), got)
}

func TestCombine_Empty(t *testing.T) {
	assert.Equal(t, model.MetricResult{}, Combine())
	assert.Equal(t, model.MetricResult{}, Combine(model.MetricResult{}, model.MetricResult{}))
}

func TestAggregate_SumsCompletion(t *testing.T) {
	got, err := Organization([]model.AggregateSummary{
		areaSummary("Medford", result(5, 2, 1, 8), 10, 8),
		areaSummary("Bend", result(1, 1, 3, 5), 10, 4),
	})
	require.NoError(t, err)

	assert.Equal(t, model.OrgScope(), got.Scope)
	assert.Equal(t, 20, got.Headcount)
	assert.Equal(t, 12, got.Completed)
	assert.Equal(t, 13, got.Responses)
	assert.Equal(t, 60.0, got.CompletionRate)
	assert.Len(t, got.Metrics, len(model.MetricCategories))
	assert.Equal(t, 15.38, got.Metrics[model.CategoryTraining].NPSScore)
	assert.Equal(t, model.MetricResult{}, got.Metrics[model.CategoryEnergy])
}

func TestAggregate_RejectsMixedMonths(t *testing.T) {
	a := areaSummary("Medford", result(1, 0, 0, 9), 1, 1)
	b := areaSummary("Bend", result(1, 0, 0, 9), 1, 1)
	b.Month = model.MustParseMonth("2025-02")

	_, err := Organization([]model.AggregateSummary{a, b})
	assert.Error(t, err)
}

func TestAggregate_NoParts(t *testing.T) {
	_, err := Organization(nil)
	assert.Error(t, err)
}

func TestDirectory(t *testing.T) {
	d := NewDirectory([]model.AreaAssignment{
		{Area: "Medford", Region: "Oregon"},
		{Area: "Bend", Region: "Oregon"},
		{Area: "Boise", Region: "Idaho"},
		{Area: "Orphan", Region: ""},
	})
	assert.Equal(t, []string{"Bend", "Medford"}, d.Areas("Oregon"))
	assert.Equal(t, []string{"Idaho", "Oregon"}, d.Regions())

	r, ok := d.Region("Boise")
	assert.True(t, ok)
	assert.Equal(t, "Idaho", r)

	_, ok = d.Region("Orphan")
	assert.False(t, ok)
	_, ok = d.Region("medford")
	assert.False(t, ok, "area lookups are exact")
}

func TestRegion_Complete(t *testing.T) {
	d := NewDirectory([]model.AreaAssignment{
		{Area: "Medford", Region: "Oregon"},
		{Area: "Bend", Region: "Oregon"},
	})
	got, err := Region(d, "Oregon", []model.AggregateSummary{
		areaSummary("Medford", result(5, 2, 1, 8), 10, 8),
		areaSummary("Bend", result(1, 1, 3, 5), 6, 5),
		areaSummary("Boise", result(9, 0, 0, 10), 9, 9),
	})
	require.NoError(t, err)
	assert.Equal(t, model.RegionScope("Oregon"), got.Scope)
	assert.Equal(t, 13, got.Metrics[model.CategoryTraining].ResponseCount)
	assert.Equal(t, 16, got.Headcount)
}

func TestRegion_MissingAreaIsResolutionError(t *testing.T) {
	d := NewDirectory([]model.AreaAssignment{
		{Area: "Medford", Region: "Oregon"},
		{Area: "Bend", Region: "Oregon"},
	})
	_, err := Region(d, "Oregon", []model.AggregateSummary{
		areaSummary("Medford", result(5, 2, 1, 8), 10, 8),
	})

	var re *resilience.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, []string{"Bend"}, re.Missing)
	assert.Equal(t, "2025-03", re.Month)
}

func TestRegion_UnknownRegion(t *testing.T) {
	_, err := Region(NewDirectory(nil), "Atlantis", nil)
	assert.Equal(t, resilience.KindResolution, resilience.Kind(err))
}
