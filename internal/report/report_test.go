package report

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gps-cli/internal/metrics"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/store"
)

var (
	jan   = model.MustParseMonth("2025-01")
	march = model.MustParseMonth("2025-03")
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

func summary(scope model.Scope, month model.Month, training model.MetricResult, headcount int) model.AggregateSummary {
	return model.AggregateSummary{
		Scope:          scope,
		Month:          month,
		Role:           model.RoleAll,
		Metrics:        map[model.MetricCategory]model.MetricResult{model.CategoryTraining: training},
		Headcount:      headcount,
		Completed:      training.ResponseCount,
		Responses:      training.ResponseCount,
		CompletionRate: metrics.Rate(training.ResponseCount, headcount),
	}
}

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	policy := resilience.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond}
	return NewService(st, policy), st
}

// seed stores January and March data. Eugene only reports in January.
func seed(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertAreas(ctx, []model.AreaAssignment{
		{Area: "Medford", Region: "North"},
		{Area: "Bend", Region: "North"},
		{Area: "Eugene", Region: "South"},
	}))
	require.NoError(t, st.UpsertSummaries(ctx, []model.AggregateSummary{
		summary(model.OrgScope(), jan, result(5, 2, 1, 8.1), 20),
		summary(model.AreaScope("Medford"), jan, result(1, 0, 3, 5.5), 6),
		summary(model.AreaScope("Bend"), jan, result(2, 2, 0, 8.5), 6),
		summary(model.AreaScope("Eugene"), jan, result(2, 0, 0, 9.5), 8),

		summary(model.OrgScope(), march, result(6, 3, 4, 7.2), 20),
		summary(model.AreaScope("Medford"), march, result(5, 2, 1, 8.25), 10),
		summary(model.AreaScope("Bend"), march, result(1, 1, 3, 5.6), 6),
	}))
}

func TestOrgMetrics_ExactMonthWithTrend(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	got, err := svc.OrgMetrics(context.Background(), march, "")
	require.NoError(t, err)
	assert.Equal(t, march, got.Used)
	assert.False(t, got.FellBack)
	assert.Equal(t, model.RoleAll, got.Role)
	require.NotNil(t, got.PreviousMonth)
	assert.Equal(t, jan, *got.PreviousMonth)

	training := got.Metrics[model.CategoryTraining]
	assert.InDelta(t, 15.38, training.NPSScore, 0.001)
	assert.Equal(t, "C+", training.Grade)
	require.NotNil(t, training.Trend)
	assert.Equal(t, model.TrendDown, *training.Trend)
	assert.Equal(t, "B+", training.PreviousGrade)
}

func TestOrgMetrics_FallsBackToLatest(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	got, err := svc.OrgMetrics(context.Background(), model.MustParseMonth("2025-06"), model.RoleAll)
	require.NoError(t, err)
	assert.True(t, got.FellBack)
	assert.Equal(t, march, got.Used)
	assert.Equal(t, model.MustParseMonth("2025-06"), got.Requested)
}

func TestOrgMetrics_OldestMonthHasNoTrend(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	got, err := svc.OrgMetrics(context.Background(), jan, model.RoleAll)
	require.NoError(t, err)
	assert.Nil(t, got.PreviousMonth)
	assert.Nil(t, got.Metrics[model.CategoryTraining].Trend)
}

func TestOrgMetrics_NoData(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.OrgMetrics(context.Background(), march, model.RoleAll)
	require.Error(t, err)
	var nd *resilience.NoDataError
	assert.True(t, errors.As(err, &nd))
}

func TestOrgMetrics_MissingRole(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	_, err := svc.OrgMetrics(context.Background(), march, model.RoleFilterCloser)
	assert.Equal(t, resilience.KindNoData, resilience.Kind(err))
}

func TestAreaMetrics(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	got, err := svc.AreaMetrics(context.Background(), march, model.RoleAll)
	require.NoError(t, err)
	assert.Equal(t, march, got.Used)
	require.Len(t, got.Areas, 2, "Eugene has no March row")
	assert.Equal(t, "Bend", got.Areas[0].Scope.Name)
	assert.Equal(t, "Medford", got.Areas[1].Scope.Name)

	medford := got.Areas[1].Metrics[model.CategoryTraining]
	assert.InDelta(t, 50.0, medford.NPSScore, 0.001)
	require.NotNil(t, medford.Trend)
	assert.Equal(t, model.TrendUp, *medford.Trend)
}

func TestAreaDetail(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	got, err := svc.AreaDetail(context.Background(), "Eugene", march, model.RoleAll)
	require.NoError(t, err)
	assert.True(t, got.FellBack)
	assert.Equal(t, jan, got.Used)
	assert.Equal(t, model.AreaScope("Eugene"), got.Scope)

	_, err = svc.AreaDetail(context.Background(), "", march, model.RoleAll)
	assert.Equal(t, resilience.KindValidation, resilience.Kind(err))

	_, err = svc.AreaDetail(context.Background(), "Nowhere", march, model.RoleAll)
	assert.Equal(t, resilience.KindNoData, resilience.Kind(err))
}

func TestRegionMetrics_WeightedRollup(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	got, err := svc.RegionMetrics(context.Background(), "North", march, model.RoleAll)
	require.NoError(t, err)
	assert.Equal(t, model.RegionScope("North"), got.Scope)
	assert.Equal(t, []string{"Bend", "Medford"}, got.MemberAreas)
	assert.Equal(t, 16, got.Headcount)

	training := got.Metrics[model.CategoryTraining]
	assert.Equal(t, 6, training.Promoters)
	assert.Equal(t, 3, training.Passives)
	assert.Equal(t, 4, training.Detractors)
	assert.Equal(t, 13, training.ResponseCount)
	assert.InDelta(t, 15.38, training.NPSScore, 0.001)

	require.NotNil(t, got.PreviousMonth)
	assert.Equal(t, jan, *got.PreviousMonth)
	require.NotNil(t, training.Trend)
}

func TestRegionMetrics_FallsBackToRegionMonths(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	got, err := svc.RegionMetrics(context.Background(), "South", march, model.RoleAll)
	require.NoError(t, err)
	assert.True(t, got.FellBack)
	assert.Equal(t, jan, got.Used)
}

func TestRegionMetrics_Unmapped(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	_, err := svc.RegionMetrics(context.Background(), "West", march, model.RoleAll)
	var re *resilience.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "West", re.Region)
}

func TestRegionMetrics_MissingMemberArea(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)
	require.NoError(t, st.UpsertAreas(context.Background(), []model.AreaAssignment{{Area: "Ashland", Region: "North"}}))

	_, err := svc.RegionMetrics(context.Background(), "North", march, model.RoleAll)
	var re *resilience.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, []string{"Ashland"}, re.Missing)
	assert.Equal(t, "2025-03", re.Month)
}

func TestMonths(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)
	ctx := context.Background()

	got, err := svc.Months(ctx, model.LevelArea)
	require.NoError(t, err)
	assert.Equal(t, []model.Month{march, jan}, got)

	got, err = svc.Months(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []model.Month{march, jan}, got)

	_, err = svc.Months(ctx, model.LevelRegion)
	assert.Equal(t, resilience.KindValidation, resilience.Kind(err))
}

func TestFeedback(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)
	ctx := context.Background()

	_, err := st.ReplaceFeedback(ctx, march, []model.FeedbackBundle{{
		Scope: model.AreaScope("Medford"),
		Month: march,
		Role:  model.RoleAll,
		Field: model.FeedbackRoadblocks,
		Entries: []model.FeedbackEntry{{
			TeamMemberID: "m1", FirstName: "Alice", LastName: "Avery",
			Response: "Lead quality", SubmittedAt: time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC),
		}},
	}})
	require.NoError(t, err)

	got, err := svc.Feedback(ctx, "Medford", march, model.RoleAll, "")
	require.NoError(t, err)
	require.Len(t, got.Feedback, 1)
	assert.Equal(t, "Lead quality", got.Feedback[0].Entries[0].Response)

	got, err = svc.Feedback(ctx, "Medford", march, model.RoleAll, model.FeedbackRecognition)
	require.NoError(t, err)
	assert.Empty(t, got.Feedback)
	assert.NotNil(t, got.Feedback)
}

func TestPackage_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Package(context.Background(), "missing")
	assert.Equal(t, resilience.KindNoData, resilience.Kind(err))
}
