package packager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gps-cli/internal/archive"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/responses"
	"github.com/sells-group/gps-cli/internal/rollup"
	"github.com/sells-group/gps-cli/internal/roster"
	"github.com/sells-group/gps-cli/internal/store"
)

var march = model.MustParseMonth("2025-03")

func fastPolicy() resilience.Policy {
	return resilience.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }

func hired(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func submitted(day int) time.Time { return time.Date(2025, 3, day, 15, 0, 0, 0, time.UTC) }

func response(id, member string, day, training int, feedback map[model.FeedbackField]*string) model.SurveyResponse {
	return model.SurveyResponse{
		ID:           id,
		TeamMemberID: member,
		SubmittedAt:  submitted(day),
		Scores:       map[model.MetricCategory]*int{model.CategoryTraining: intp(training)},
		Feedback:     feedback,
	}
}

// seed loads a two-area roster and five March submissions (one from a
// member who is not on the roster) plus one April submission.
func seed(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	_, err := st.UpsertMembers(ctx, []model.TeamMember{
		{ID: "m1", FirstName: "Alice", LastName: "Avery", Area: "Medford", Region: "North", Role: "Rep", RoleType: model.RoleCloser, HireDate: hired(2024, 1, 10)},
		{ID: "m2", FirstName: "Bob", LastName: "Burke", Area: "Medford", Region: "North", Role: "Rep", RoleType: model.RoleSetter},
		{ID: "m3", FirstName: "Cara", LastName: "Cole", Area: "Medford", Region: "North", Role: "Rep", RoleType: model.RoleSetter, HireDate: hired(2025, 3, 31)},
		{ID: "m4", FirstName: "Dan", LastName: "Diaz", Area: "Salem", Region: "North", Role: "Lead", RoleType: model.RoleManager},
		{ID: "m5", FirstName: "Eve", LastName: "Ek", Area: "Salem", Region: "North", Role: "TERM", RoleType: model.RoleCloser},
		{ID: "m6", FirstName: "Fay", LastName: "Fox", Area: "Salem", Region: "North", Role: "Rep", RoleType: model.RoleCloser, HireDate: hired(2025, 4, 1)},
	})
	require.NoError(t, err)

	_, err = st.UpsertResponses(ctx, []model.SurveyResponse{
		response("r1", "m1", 3, 9, map[model.FeedbackField]*string{
			model.FeedbackGeneral:    strp("<b>Great</b>   training &amp; support!"),
			model.FeedbackRoadblocks: strp(" N/A "),
		}),
		response("r2", "m2", 5, 9, map[model.FeedbackField]*string{
			model.FeedbackGeneral: strp("Nope"),
		}),
		response("r3", "m3", 7, 3, map[model.FeedbackField]*string{
			model.FeedbackGeneral: strp(strings.Repeat("x", 600)),
		}),
		response("r4", "m4", 9, 10, nil),
		response("r5", "ghost", 11, 0, nil),
		{ID: "r6", TeamMemberID: "m1", SubmittedAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			Scores: map[model.MetricCategory]*int{model.CategoryTraining: intp(0)}},
	})
	require.NoError(t, err)
}

func newTestPackager(t *testing.T, ar archive.Store) (*Packager, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "gps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	seed(t, st)

	p := New(st,
		roster.NewResolver(roster.NewStoreSource(st), fastPolicy()),
		responses.NewCollector(responses.NewStoreSource(st), fastPolicy()),
		ar,
		Options{Concurrency: 2, Policy: fastPolicy()},
	)
	return p, st
}

func summaryFor(t *testing.T, st *store.SQLiteStore, scope model.Scope, role model.RoleFilter) model.AggregateSummary {
	t.Helper()
	m := march
	got, err := st.ListSummaries(context.Background(), store.SummaryFilter{
		Level: scope.Level, Names: []string{scope.Name}, Month: &m, Role: role,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	return got[0]
}

func TestProcess_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	p, st := newTestPackager(t, archive.NewLocal(dir))
	ctx := context.Background()

	res, err := p.Process(ctx, march, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, res.ActiveMembers)
	assert.Equal(t, 4, res.Responses)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, []string{"Medford", "Salem"}, res.Areas)
	assert.Equal(t, 12, res.SummariesWritten)
	assert.Equal(t, 12, res.PackagesWritten)
	assert.Equal(t, 12, res.Archived)

	medford := summaryFor(t, st, model.AreaScope("Medford"), model.RoleAll)
	training := medford.Metrics[model.CategoryTraining]
	assert.Equal(t, 2, training.Promoters)
	assert.Equal(t, 0, training.Passives)
	assert.Equal(t, 1, training.Detractors)
	assert.Equal(t, 3, training.ResponseCount)
	assert.InDelta(t, 33.33, training.NPSScore, 0.001)
	assert.InDelta(t, 7.0, training.Average, 0.001)
	assert.Equal(t, 3, medford.Headcount)
	assert.Equal(t, 3, medford.Completed)
	assert.InDelta(t, 100.0, medford.CompletionRate, 0.001)

	setters := summaryFor(t, st, model.AreaScope("Medford"), model.RoleFilterSetter)
	assert.Equal(t, 2, setters.Headcount)
	assert.InDelta(t, 0.0, setters.Metrics[model.CategoryTraining].NPSScore, 0.001)

	managers := summaryFor(t, st, model.AreaScope("Medford"), model.RoleFilterManager)
	assert.Equal(t, 0, managers.Headcount)
	assert.Equal(t, model.MetricResult{}, managers.Metrics[model.CategoryTraining])

	org := summaryFor(t, st, model.OrgScope(), model.RoleAll)
	assert.Equal(t, 4, org.Headcount)
	assert.Equal(t, 4, org.Responses)
	assert.InDelta(t, 50.0, org.Metrics[model.CategoryTraining].NPSScore, 0.001)
	assert.InDelta(t, 7.75, org.Metrics[model.CategoryTraining].Average, 0.001)

	areas, err := st.ListAreas(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.AreaAssignment{
		{Area: "Medford", Region: "North"},
		{Area: "Salem", Region: "North"},
	}, areas)

	_, err = os.Stat(filepath.Join(dir, "packages", "2025-03", "area", "Medford", "All", "v1.json"))
	assert.NoError(t, err)
}

func TestProcess_Feedback(t *testing.T) {
	p, st := newTestPackager(t, nil)
	ctx := context.Background()

	_, err := p.Process(ctx, march, RunOptions{})
	require.NoError(t, err)

	m := march
	bundles, err := st.ListFeedback(ctx, store.FeedbackFilter{
		Level: model.LevelOrganization, Name: model.OrganizationName, Month: &m, Role: model.RoleAll,
	})
	require.NoError(t, err)
	require.Len(t, bundles, 1, "roadblocks answer was a non-answer")
	b := bundles[0]
	assert.Equal(t, model.FeedbackGeneral, b.Field)
	require.Len(t, b.Entries, 2)
	assert.Equal(t, "Great training & support!", b.Entries[0].Response)
	assert.Equal(t, "m1", b.Entries[0].TeamMemberID)
	assert.Equal(t, "Alice", b.Entries[0].FirstName)
	assert.Equal(t, MaxFeedbackRunes, len([]rune(b.Entries[1].Response)))

	pkgs, err := st.ListPackages(ctx, store.PackageFilter{
		Month: &m, Level: model.LevelOrganization, Role: model.RoleAll,
	})
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	require.Len(t, pkgs[0].Feedback, 1)
	assert.Equal(t, model.FeedbackGeneral.Guide(), pkgs[0].Feedback[0].Guide)
	assert.Equal(t, "Great training & support!", pkgs[0].Feedback[0].Responses[0])
}

func TestProcess_RerunIsIdempotent(t *testing.T) {
	p, st := newTestPackager(t, nil)
	ctx := context.Background()

	_, err := p.Process(ctx, march, RunOptions{})
	require.NoError(t, err)
	m := march
	first, err := st.ListSummaries(ctx, store.SummaryFilter{Month: &m})
	require.NoError(t, err)

	_, err = p.Process(ctx, march, RunOptions{})
	require.NoError(t, err)
	second, err := st.ListSummaries(ctx, store.SummaryFilter{Month: &m})
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Key(), second[i].Key())
		assert.Equal(t, first[i].Metrics, second[i].Metrics)
	}

	pkgs, err := st.ListPackages(ctx, store.PackageFilter{Month: &m})
	require.NoError(t, err)
	require.Len(t, pkgs, 12)
	for _, pkg := range pkgs {
		assert.Equal(t, 2, pkg.Version, pkg.Key().String())
	}
}

func TestProcess_PreservesAIStateUnlessCleared(t *testing.T) {
	p, st := newTestPackager(t, nil)
	ctx := context.Background()
	m := march

	_, err := p.Process(ctx, march, RunOptions{})
	require.NoError(t, err)
	pkgs, err := st.ListPackages(ctx, store.PackageFilter{Month: &m, Level: model.LevelOrganization, Role: model.RoleAll})
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	id := pkgs[0].ID

	_, err = st.CompleteNarrative(ctx, model.Narrative{PackageID: id, Content: "steady month", Model: "test"})
	require.NoError(t, err)

	_, err = p.Process(ctx, march, RunOptions{})
	require.NoError(t, err)
	got, err := st.GetPackage(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.AIProcessed)
	require.NotNil(t, got.Narrative)
	assert.Equal(t, "steady month", got.Narrative.Content)

	_, err = p.Process(ctx, march, RunOptions{ClearAI: true})
	require.NoError(t, err)
	got, err = st.GetPackage(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.AIProcessed)
	assert.Nil(t, got.Narrative)
	assert.Equal(t, 3, got.Version)
}

func TestProcess_RerunAfterRosterDrift(t *testing.T) {
	p, st := newTestPackager(t, nil)
	ctx := context.Background()
	m := march

	_, err := p.Process(ctx, march, RunOptions{})
	require.NoError(t, err)
	salem := summaryFor(t, st, model.AreaScope("Salem"), model.RoleAll)
	require.Equal(t, 1, salem.Headcount)

	_, err = st.UpsertMembers(ctx, []model.TeamMember{
		{ID: "m4", FirstName: "Dan", LastName: "Diaz", Area: "Salem", Region: "North", Role: "TERM", RoleType: model.RoleManager},
	})
	require.NoError(t, err)

	res, err := p.Process(ctx, march, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ActiveMembers)
	assert.Equal(t, 2, res.Unmatched)
	assert.Equal(t, []string{"Medford", "Salem"}, res.Areas)

	salem = summaryFor(t, st, model.AreaScope("Salem"), model.RoleAll)
	assert.Equal(t, 0, salem.Headcount)
	assert.Equal(t, 0, salem.Responses)
	assert.Equal(t, model.MetricResult{}, salem.Metrics[model.CategoryTraining])

	org := summaryFor(t, st, model.OrgScope(), model.RoleAll)
	assert.Equal(t, 3, org.Headcount)
	assert.Equal(t, 3, org.Responses)

	areas, err := st.ListAreas(ctx)
	require.NoError(t, err)
	rows, err := st.ListSummaries(ctx, store.SummaryFilter{Level: model.LevelArea, Month: &m, Role: model.RoleAll})
	require.NoError(t, err)
	north, err := rollup.Region(rollup.NewDirectory(areas), "North", rows)
	require.NoError(t, err)
	assert.Equal(t, org.Headcount, north.Headcount)
	assert.Equal(t, org.Responses, north.Responses)
	assert.Equal(t, org.Metrics[model.CategoryTraining], north.Metrics[model.CategoryTraining])
}

func TestProcess_DirectoryAreaWithoutMembers(t *testing.T) {
	p, st := newTestPackager(t, nil)
	ctx := context.Background()
	require.NoError(t, st.UpsertAreas(ctx, []model.AreaAssignment{{Area: "Bend", Region: "North"}}))

	res, err := p.Process(ctx, march, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bend", "Medford", "Salem"}, res.Areas)

	bend := summaryFor(t, st, model.AreaScope("Bend"), model.RoleAll)
	assert.Equal(t, 0, bend.Headcount)
	assert.InDelta(t, 0.0, bend.CompletionRate, 0.001)
}

// permanentWriter fails summary replacement with a non-retryable error.
type permanentWriter struct {
	*store.SQLiteStore
	calls int
}

func (w *permanentWriter) ReplaceSummaries(context.Context, model.Month, []model.AggregateSummary) error {
	w.calls++
	return errors.New("UNIQUE constraint failed: metric_summaries.scope_level")
}

func TestProcess_PermanentStoreErrorIsNotRetried(t *testing.T) {
	_, st := newTestPackager(t, nil)
	w := &permanentWriter{SQLiteStore: st}
	p := New(w,
		roster.NewResolver(roster.NewStoreSource(st), fastPolicy()),
		responses.NewCollector(responses.NewStoreSource(st), fastPolicy()),
		nil,
		Options{Policy: fastPolicy()},
	)

	_, err := p.Process(context.Background(), march, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, resilience.KindInternal, resilience.Kind(err))
	assert.Contains(t, err.Error(), "replace summaries")
}

type failingRoster struct{ calls int }

func (f *failingRoster) Name() string { return "failing" }

func (f *failingRoster) ActiveMembers(context.Context, roster.Query) ([]model.TeamMember, error) {
	f.calls++
	return nil, errors.New("connection reset by peer")
}

func TestProcess_RosterFailureWritesNothing(t *testing.T) {
	_, st := newTestPackager(t, nil)
	src := &failingRoster{}
	p := New(st,
		roster.NewResolver(src, fastPolicy()),
		responses.NewCollector(responses.NewStoreSource(st), fastPolicy()),
		nil,
		Options{Policy: fastPolicy()},
	)

	_, err := p.Process(context.Background(), march, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, resilience.KindDataSource, resilience.Kind(err))
	assert.Equal(t, 2, src.calls)

	m := march
	got, err := st.ListSummaries(context.Background(), store.SummaryFilter{Month: &m})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProcess_EmptyMonth(t *testing.T) {
	p, _ := newTestPackager(t, nil)
	res, err := p.Process(context.Background(), model.MustParseMonth("2024-06"), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ActiveMembers, "m1 plus the two members without a hire date")
	assert.Equal(t, 0, res.Responses)
	assert.Equal(t, 0, res.FeedbackWritten)
	assert.Equal(t, res.SummariesWritten, res.PackagesWritten)
}
