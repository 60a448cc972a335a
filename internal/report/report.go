// Package report answers read-side queries over stored summaries: graded
// metrics per scope with month fallback and previous-month trends.
package report

import (
	"context"
	"errors"
	"sort"

	"github.com/sells-group/gps-cli/internal/metrics"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/monthres"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/rollup"
	"github.com/sells-group/gps-cli/internal/store"
)

// Reader is the store surface reporting needs.
type Reader interface {
	monthres.Index
	ListSummaries(ctx context.Context, filter store.SummaryFilter) ([]model.AggregateSummary, error)
	ListAreas(ctx context.Context) ([]model.AreaAssignment, error)
	ListFeedback(ctx context.Context, filter store.FeedbackFilter) ([]model.FeedbackBundle, error)
	GetPackage(ctx context.Context, id string) (*model.MonthlyPackage, error)
}

// ScopeReport is one scope's graded metrics for the resolved month.
type ScopeReport struct {
	monthres.Resolution
	Scope          model.Scope                                   `json:"scope"`
	Role           model.RoleFilter                              `json:"role"`
	PreviousMonth  *model.Month                                  `json:"previous_month,omitempty"`
	Headcount      int                                           `json:"headcount"`
	Completed      int                                           `json:"completed"`
	Responses      int                                           `json:"responses"`
	CompletionRate float64                                       `json:"completion_rate"`
	Metrics        map[model.MetricCategory]metrics.GradedMetric `json:"metrics"`
}

// AreasReport lists every area's report for one resolved month.
type AreasReport struct {
	monthres.Resolution
	Role  model.RoleFilter `json:"role"`
	Areas []ScopeReport    `json:"areas"`
}

// RegionReport is a region rollup plus the areas it was built from.
type RegionReport struct {
	ScopeReport
	MemberAreas []string `json:"member_areas"`
}

// FeedbackReport is an area's identified feedback for the resolved month.
type FeedbackReport struct {
	monthres.Resolution
	Scope    model.Scope            `json:"scope"`
	Role     model.RoleFilter       `json:"role"`
	Feedback []model.FeedbackBundle `json:"feedback"`
}

// Service runs reports against a Reader.
type Service struct {
	store  Reader
	months *monthres.Resolver
	policy resilience.Policy
}

// NewService creates a Service.
func NewService(st Reader, policy resilience.Policy) *Service {
	return &Service{store: st, months: monthres.New(st, policy), policy: policy}
}

func query[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.DoVal(ctx, s.policy.With("report", op), func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		return v, store.Classify(op, err)
	})
}

func (s *Service) summaries(ctx context.Context, f store.SummaryFilter) ([]model.AggregateSummary, error) {
	return query(ctx, s, "list summaries", func(ctx context.Context) ([]model.AggregateSummary, error) {
		return s.store.ListSummaries(ctx, f)
	})
}

func (s *Service) summary(ctx context.Context, scope model.Scope, month model.Month, role model.RoleFilter) (*model.AggregateSummary, error) {
	got, err := s.summaries(ctx, store.SummaryFilter{
		Level: scope.Level, Names: []string{scope.Name}, Month: &month, Role: role,
	})
	if err != nil {
		return nil, err
	}
	if len(got) == 0 {
		return nil, nil
	}
	return &got[0], nil
}

func (s *Service) directory(ctx context.Context) (*rollup.Directory, error) {
	areas, err := query(ctx, s, "list areas", func(ctx context.Context) ([]model.AreaAssignment, error) {
		return s.store.ListAreas(ctx)
	})
	if err != nil {
		return nil, err
	}
	return rollup.NewDirectory(areas), nil
}

func roleOrAll(role model.RoleFilter) model.RoleFilter {
	if role == "" {
		return model.RoleAll
	}
	return role
}

// OrgMetrics reports the organization for month, or the latest month with
// data when month has none. A zero month means latest.
func (s *Service) OrgMetrics(ctx context.Context, month model.Month, role model.RoleFilter) (*ScopeReport, error) {
	return s.scopeMetrics(ctx, model.OrgScope(), month, roleOrAll(role))
}

// AreaDetail reports a single area with its previous-month trend.
func (s *Service) AreaDetail(ctx context.Context, area string, month model.Month, role model.RoleFilter) (*ScopeReport, error) {
	if area == "" {
		return nil, &resilience.ValidationError{Field: "area", Value: area, Msg: "required"}
	}
	return s.scopeMetrics(ctx, model.AreaScope(area), month, roleOrAll(role))
}

func (s *Service) scopeMetrics(ctx context.Context, scope model.Scope, month model.Month, role model.RoleFilter) (*ScopeReport, error) {
	target := monthres.ForScope(scope)
	res, err := s.months.Resolve(ctx, target, month)
	if err != nil {
		return nil, err
	}
	cur, err := s.summary(ctx, scope, res.Used, role)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, &resilience.NoDataError{Scope: scope.String() + "/" + string(role), Requested: res.Used.String()}
	}

	prevMonth, err := s.months.Previous(ctx, target, res.Used)
	if err != nil {
		return nil, err
	}
	var prev *model.AggregateSummary
	if prevMonth != nil {
		if prev, err = s.summary(ctx, scope, *prevMonth, role); err != nil {
			return nil, err
		}
	}
	r := newScopeReport(res, *cur, prev)
	return &r, nil
}

// AreaMetrics reports every area for one month. Each area's trend compares
// against that area's own latest earlier month.
func (s *Service) AreaMetrics(ctx context.Context, month model.Month, role model.RoleFilter) (*AreasReport, error) {
	role = roleOrAll(role)
	res, err := s.months.Resolve(ctx, monthres.ForLevel(model.LevelArea), month)
	if err != nil {
		return nil, err
	}
	history, err := s.summaries(ctx, store.SummaryFilter{Level: model.LevelArea, Role: role})
	if err != nil {
		return nil, err
	}

	byArea := make(map[string][]model.AggregateSummary)
	for _, h := range history {
		byArea[h.Scope.Name] = append(byArea[h.Scope.Name], h)
	}

	out := &AreasReport{Resolution: res, Role: role, Areas: []ScopeReport{}}
	for _, rows := range byArea {
		cur, prev := pickCurrent(rows, res.Used)
		if cur == nil {
			continue
		}
		out.Areas = append(out.Areas, newScopeReport(res, *cur, prev))
	}
	sort.Slice(out.Areas, func(i, j int) bool { return out.Areas[i].Scope.Name < out.Areas[j].Scope.Name })
	return out, nil
}

// pickCurrent returns the row for month and the latest row strictly before it.
func pickCurrent(rows []model.AggregateSummary, month model.Month) (cur, prev *model.AggregateSummary) {
	for i := range rows {
		r := &rows[i]
		switch {
		case r.Month == month:
			cur = r
		case r.Month.Before(month) && (prev == nil || r.Month.After(prev.Month)):
			prev = r
		}
	}
	return cur, prev
}

// RegionMetrics rolls the region's member areas up for one month. The
// region must map to at least one area and every member area needs a
// summary for the month, otherwise a ResolutionError is returned.
func (s *Service) RegionMetrics(ctx context.Context, region string, month model.Month, role model.RoleFilter) (*RegionReport, error) {
	role = roleOrAll(role)
	if region == "" {
		return nil, &resilience.ValidationError{Field: "region", Value: region, Msg: "required"}
	}
	dir, err := s.directory(ctx)
	if err != nil {
		return nil, err
	}
	areas := dir.Areas(region)
	if len(areas) == 0 {
		return nil, &resilience.ResolutionError{Region: region, Reason: "no areas mapped to region"}
	}

	target := monthres.ForRegion(region, areas)
	res, err := s.months.Resolve(ctx, target, month)
	if err != nil {
		return nil, err
	}
	cur, err := s.regionRollup(ctx, dir, region, areas, res.Used, role)
	if err != nil {
		return nil, err
	}

	prevMonth, err := s.months.Previous(ctx, target, res.Used)
	if err != nil {
		return nil, err
	}
	var prev *model.AggregateSummary
	if prevMonth != nil {
		p, err := s.regionRollup(ctx, dir, region, areas, *prevMonth, role)
		var re *resilience.ResolutionError
		switch {
		case errors.As(err, &re):
			// An incomplete earlier month yields no trend.
		case err != nil:
			return nil, err
		default:
			prev = &p
		}
	}
	return &RegionReport{ScopeReport: newScopeReport(res, cur, prev), MemberAreas: areas}, nil
}

func (s *Service) regionRollup(ctx context.Context, dir *rollup.Directory, region string, areas []string, month model.Month, role model.RoleFilter) (model.AggregateSummary, error) {
	rows, err := s.summaries(ctx, store.SummaryFilter{Level: model.LevelArea, Names: areas, Month: &month, Role: role})
	if err != nil {
		return model.AggregateSummary{}, err
	}
	agg, err := rollup.Region(dir, region, rows)
	if err != nil {
		var re *resilience.ResolutionError
		if errors.As(err, &re) && re.Month == "" {
			re.Month = month.String()
		}
		return model.AggregateSummary{}, err
	}
	return agg, nil
}

// Months lists the months with data at level, newest first.
func (s *Service) Months(ctx context.Context, level model.ScopeLevel) ([]model.Month, error) {
	switch level {
	case "":
		level = model.LevelOrganization
	case model.LevelOrganization, model.LevelArea:
	default:
		return nil, &resilience.ValidationError{Field: "level", Value: level, Msg: "must be organization or area"}
	}
	return s.months.Months(ctx, monthres.ForLevel(level))
}

// Feedback returns an area's feedback for the resolved month. An empty
// field returns every field.
func (s *Service) Feedback(ctx context.Context, area string, month model.Month, role model.RoleFilter, field model.FeedbackField) (*FeedbackReport, error) {
	role = roleOrAll(role)
	if area == "" {
		return nil, &resilience.ValidationError{Field: "area", Value: area, Msg: "required"}
	}
	scope := model.AreaScope(area)
	res, err := s.months.Resolve(ctx, monthres.ForScope(scope), month)
	if err != nil {
		return nil, err
	}
	used := res.Used
	bundles, err := query(ctx, s, "list feedback", func(ctx context.Context) ([]model.FeedbackBundle, error) {
		return s.store.ListFeedback(ctx, store.FeedbackFilter{
			Level: scope.Level, Name: scope.Name, Month: &used, Role: role, Field: field,
		})
	})
	if err != nil {
		return nil, err
	}
	if bundles == nil {
		bundles = []model.FeedbackBundle{}
	}
	return &FeedbackReport{Resolution: res, Scope: scope, Role: role, Feedback: bundles}, nil
}

// Package loads a stored package by id.
func (s *Service) Package(ctx context.Context, id string) (*model.MonthlyPackage, error) {
	p, err := s.store.GetPackage(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &resilience.NoDataError{Scope: "package " + id}
	}
	if err != nil {
		return nil, store.Classify("get package", err)
	}
	return p, nil
}

func newScopeReport(res monthres.Resolution, cur model.AggregateSummary, prev *model.AggregateSummary) ScopeReport {
	r := ScopeReport{
		Resolution:     res,
		Scope:          cur.Scope,
		Role:           cur.Role,
		Headcount:      cur.Headcount,
		Completed:      cur.Completed,
		Responses:      cur.Responses,
		CompletionRate: cur.CompletionRate,
	}
	var prevMetrics map[model.MetricCategory]model.MetricResult
	if prev != nil {
		m := prev.Month
		r.PreviousMonth = &m
		prevMetrics = prev.Metrics
	}
	r.Metrics = metrics.Annotate(cur.Metrics, prevMetrics)
	return r
}
