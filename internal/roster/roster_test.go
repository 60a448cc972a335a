package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/pkg/salesforce"
)

type fakeSource struct {
	calls   int
	fail    int
	err     error
	members []model.TeamMember
	last    Query
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) ActiveMembers(_ context.Context, q Query) ([]model.TeamMember, error) {
	f.calls++
	f.last = q
	if f.calls <= f.fail {
		return nil, f.err
	}
	return f.members, nil
}

func fastPolicy() resilience.Policy {
	return resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestResolver_FiltersInactive(t *testing.T) {
	march := model.MustParseMonth("2025-03")
	src := &fakeSource{members: []model.TeamMember{
		{ID: "a", Area: "Medford", Role: "setter"},
		{ID: "b", Area: "Medford", Role: "TERM"},
		{ID: "c", Area: "Medford", Role: "Closer", HireDate: date(2025, 3, 31)},
		{ID: "d", Area: "Medford", Role: "Closer", HireDate: date(2025, 4, 1)},
		{ID: "e", Area: "Bend", Role: "Manager"},
		{ID: "f", Area: "Medford", Role: "Trainee", RoleType: "MANAGER"},
	}}

	got, err := NewResolver(src, fastPolicy()).Active(context.Background(), "Medford", march)
	require.NoError(t, err)
	assert.Equal(t, "Medford", src.last.Area)
	assert.Equal(t, march.End(), src.last.HiredBefore())

	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"a", "c", "f"}, ids)
	assert.Equal(t, model.RoleSetter, got[0].RoleType)
	assert.Equal(t, model.RoleCloser, got[1].RoleType)
	assert.Equal(t, model.RoleManager, got[2].RoleType)
}

func TestResolver_EmptyRosterIsNotAnError(t *testing.T) {
	got, err := NewResolver(&fakeSource{}, fastPolicy()).Active(context.Background(), "", model.MustParseMonth("2025-03"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolver_RetriesSourceFailures(t *testing.T) {
	src := &fakeSource{
		fail:    2,
		err:     errors.New("connection reset by peer"),
		members: []model.TeamMember{{ID: "a", Role: "Setter"}},
	}
	got, err := NewResolver(src, fastPolicy()).Active(context.Background(), "", model.MustParseMonth("2025-03"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, src.calls)
}

func TestResolver_GivesUpAsDataSourceError(t *testing.T) {
	src := &fakeSource{fail: 10, err: errors.New("salesforce down")}
	_, err := NewResolver(src, fastPolicy()).Active(context.Background(), "", model.MustParseMonth("2025-03"))
	require.Error(t, err)

	var dse *resilience.DataSourceError
	require.True(t, errors.As(err, &dse))
	assert.Equal(t, "fake", dse.Source)
	assert.Equal(t, 3, src.calls)
}

func TestResolver_ValidationErrorsAreNotRetried(t *testing.T) {
	src := &fakeSource{fail: 10, err: &resilience.ValidationError{Field: "hire_date", Value: "soon"}}
	_, err := NewResolver(src, fastPolicy()).Active(context.Background(), "", model.MustParseMonth("2025-03"))
	require.Error(t, err)
	assert.Equal(t, resilience.KindValidation, resilience.Kind(err))
	assert.Equal(t, 1, src.calls)
}

func TestAreas(t *testing.T) {
	got := Areas([]model.TeamMember{
		{Area: "Medford"},
		{Area: "Bend", Region: "East"},
		{Area: "Medford", Region: "West"},
		{Area: ""},
	})
	assert.Equal(t, []model.AreaAssignment{
		{Area: "Medford", Region: "West"},
		{Area: "Bend", Region: "East"},
	}, got)
}

type stubSF struct {
	soql    string
	records []salesforce.TeamMemberRecord
}

func (s *stubSF) Query(_ context.Context, soql string, out any) error {
	s.soql = soql
	*(out.(*[]salesforce.TeamMemberRecord)) = s.records
	return nil
}

func TestSalesforceSource(t *testing.T) {
	sf := &stubSF{records: []salesforce.TeamMemberRecord{
		{ID: "003a", FirstName: "Ana", Area: "Medford", Role: "Setter", HireDate: "2024-06-01"},
		{ID: "003b", FirstName: "Bo", Area: "Medford", Role: "Closer"},
	}}
	src := NewSalesforceSource(sf)

	got, err := src.ActiveMembers(context.Background(), Query{Area: "Medford", Month: model.MustParseMonth("2025-03")})
	require.NoError(t, err)
	assert.Contains(t, sf.soql, "Area__c = 'Medford'")
	require.Len(t, got, 2)
	require.NotNil(t, got[0].HireDate)
	assert.True(t, got[0].HireDate.Equal(*date(2024, 6, 1)))
	assert.Nil(t, got[1].HireDate)
}

func TestSalesforceSource_BadHireDate(t *testing.T) {
	sf := &stubSF{records: []salesforce.TeamMemberRecord{{ID: "003a", HireDate: "06/01/2024"}}}
	_, err := NewSalesforceSource(sf).ActiveMembers(context.Background(), Query{Month: model.MustParseMonth("2025-03")})
	require.Error(t, err)
	assert.Equal(t, resilience.KindValidation, resilience.Kind(err))
}

type memberStoreFunc func(ctx context.Context, area string, hiredBefore time.Time) ([]model.TeamMember, error)

func (f memberStoreFunc) ActiveMembers(ctx context.Context, area string, hiredBefore time.Time) ([]model.TeamMember, error) {
	return f(ctx, area, hiredBefore)
}

func TestStoreSource(t *testing.T) {
	march := model.MustParseMonth("2025-03")
	var gotArea string
	var gotCutoff time.Time
	src := NewStoreSource(memberStoreFunc(func(_ context.Context, area string, hiredBefore time.Time) ([]model.TeamMember, error) {
		gotArea, gotCutoff = area, hiredBefore
		return []model.TeamMember{{ID: "a"}}, nil
	}))

	got, err := src.ActiveMembers(context.Background(), Query{Area: "Bend", Month: march})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "Bend", gotArea)
	assert.Equal(t, march.End(), gotCutoff)
	assert.Equal(t, "store", src.Name())
}
