// Package monthres decides which month of summary data a query reads.
//
// Two policies live here and are kept apart. Resolve picks the requested
// month when it has rows and otherwise falls back to the latest month with
// any rows. Previous picks the latest month strictly before a given month,
// for trend comparisons.
package monthres

import (
	"context"
	"sort"
	"strings"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/store"
)

// Index lists the months that have summary rows.
type Index interface {
	// SummaryMonths returns distinct months, newest first, that have a
	// summary at level for any of names. Empty names matches every scope
	// at that level.
	SummaryMonths(ctx context.Context, level model.ScopeLevel, names []string) ([]model.Month, error)
}

// Target is the set of summary rows a resolution looks at.
type Target struct {
	Level model.ScopeLevel
	Names []string
	// Label names the target in errors and logs.
	Label string
}

// ForScope targets a single organization or area scope.
func ForScope(s model.Scope) Target {
	return Target{Level: s.Level, Names: []string{s.Name}, Label: s.String()}
}

// ForLevel targets every scope at a level.
func ForLevel(level model.ScopeLevel) Target {
	return Target{Level: level, Label: string(level) + ":*"}
}

// ForRegion targets the area rows of a region's member areas.
func ForRegion(region string, areas []string) Target {
	return Target{
		Level: model.LevelArea,
		Names: areas,
		Label: "region:" + region + " [" + strings.Join(areas, ",") + "]",
	}
}

// Resolution reports the month a query should read.
type Resolution struct {
	Requested model.Month `json:"requested_month"`
	Used      model.Month `json:"month"`
	FellBack  bool        `json:"fell_back"`
}

// Resolver answers month questions against an Index.
type Resolver struct {
	index  Index
	policy resilience.Policy
}

// New returns a Resolver reading from index, retrying transient failures per policy.
func New(index Index, policy resilience.Policy) *Resolver {
	return &Resolver{index: index, policy: policy}
}

func (r *Resolver) months(ctx context.Context, t Target) ([]model.Month, error) {
	return resilience.DoVal(ctx, r.policy.With("monthres", "summary months"), func(ctx context.Context) ([]model.Month, error) {
		ms, err := r.index.SummaryMonths(ctx, t.Level, t.Names)
		return ms, store.Classify("summary months "+t.Label, err)
	})
}

// Resolve returns requested when t has rows for it, otherwise the latest
// month with rows. A target without any rows is a NoDataError.
func (r *Resolver) Resolve(ctx context.Context, t Target, requested model.Month) (Resolution, error) {
	months, err := r.months(ctx, t)
	if err != nil {
		return Resolution{}, err
	}
	return pick(t, months, requested)
}

func pick(t Target, months []model.Month, requested model.Month) (Resolution, error) {
	if len(months) == 0 {
		nd := &resilience.NoDataError{Scope: t.Label}
		if !requested.IsZero() {
			nd.Requested = requested.String()
		}
		return Resolution{}, nd
	}
	if requested.IsZero() {
		return Resolution{Requested: requested, Used: latest(months)}, nil
	}
	for _, m := range months {
		if m == requested {
			return Resolution{Requested: requested, Used: m}, nil
		}
	}
	return Resolution{Requested: requested, Used: latest(months), FellBack: true}, nil
}

// Previous returns the latest month strictly before m that t has rows for,
// or nil when there is none.
func (r *Resolver) Previous(ctx context.Context, t Target, m model.Month) (*model.Month, error) {
	months, err := r.months(ctx, t)
	if err != nil {
		return nil, err
	}
	return before(months, m), nil
}

// Months lists every month t has rows for, newest first.
func (r *Resolver) Months(ctx context.Context, t Target) ([]model.Month, error) {
	months, err := r.months(ctx, t)
	if err != nil {
		return nil, err
	}
	sortDesc(months)
	return months, nil
}

func latest(months []model.Month) model.Month {
	best := months[0]
	for _, m := range months[1:] {
		if m.After(best) {
			best = m
		}
	}
	return best
}

func before(months []model.Month, m model.Month) *model.Month {
	var best *model.Month
	for i := range months {
		c := months[i]
		if !c.Before(m) {
			continue
		}
		if best == nil || c.After(*best) {
			best = &c
		}
	}
	return best
}

func sortDesc(months []model.Month) {
	sort.Slice(months, func(i, j int) bool { return months[i].After(months[j]) })
}
