// Package rollup combines area summaries into region and organization views.
//
// Counts are summed and the NPS score recomputed from the sums, so larger
// areas weigh more. Averages are response-weighted.
package rollup

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gps-cli/internal/metrics"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
)

// Combine merges per-area results for a single category.
func Combine(parts ...model.MetricResult) model.MetricResult {
	var out model.MetricResult
	var weighted float64
	for _, p := range parts {
		if p.ResponseCount == 0 {
			continue
		}
		out.Promoters += p.Promoters
		out.Passives += p.Passives
		out.Detractors += p.Detractors
		out.ResponseCount += p.ResponseCount
		weighted += p.Average * float64(p.ResponseCount)
	}
	if out.ResponseCount == 0 {
		return model.MetricResult{}
	}
	out.NPSScore = metrics.NPS(out.Promoters, out.Detractors, out.ResponseCount)
	out.Average = metrics.Round(weighted / float64(out.ResponseCount))
	return out
}

// Aggregate rolls area summaries up into one summary for scope. Every part
// must share the same month and role filter.
func Aggregate(scope model.Scope, parts []model.AggregateSummary) (model.AggregateSummary, error) {
	if len(parts) == 0 {
		return model.AggregateSummary{}, eris.Errorf("rollup: no parts for %s", scope)
	}
	month, role := parts[0].Month, parts[0].Role
	out := model.AggregateSummary{
		Scope:   scope,
		Month:   month,
		Role:    role,
		Metrics: make(map[model.MetricCategory]model.MetricResult, len(model.MetricCategories)),
	}

	byCategory := make(map[model.MetricCategory][]model.MetricResult, len(model.MetricCategories))
	for _, p := range parts {
		if p.Month != month || p.Role != role {
			return model.AggregateSummary{}, eris.Errorf("rollup: %s mixes %s/%s with %s/%s",
				scope, month, role, p.Month, p.Role)
		}
		out.Headcount += p.Headcount
		out.Completed += p.Completed
		out.Responses += p.Responses
		for c, r := range p.Metrics {
			byCategory[c] = append(byCategory[c], r)
		}
	}
	for _, c := range model.MetricCategories {
		out.Metrics[c] = Combine(byCategory[c]...)
	}
	out.CompletionRate = metrics.Rate(out.Completed, out.Headcount)
	return out, nil
}

// Directory maps areas to regions.
type Directory struct {
	regionOf map[string]string
}

// NewDirectory builds a Directory from assignments. Later entries win.
func NewDirectory(assignments []model.AreaAssignment) *Directory {
	d := &Directory{regionOf: make(map[string]string, len(assignments))}
	for _, a := range assignments {
		if a.Area == "" {
			continue
		}
		d.regionOf[a.Area] = a.Region
	}
	return d
}

// Region returns the region of area, if mapped.
func (d *Directory) Region(area string) (string, bool) {
	r, ok := d.regionOf[area]
	return r, ok && r != ""
}

// Areas returns the sorted member areas of region.
func (d *Directory) Areas(region string) []string {
	var out []string
	for a, r := range d.regionOf {
		if r == region {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

// Regions returns every region with at least one area, sorted.
func (d *Directory) Regions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range d.regionOf {
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

// Region aggregates the summaries of region's member areas. The directory
// must map at least one area to region, and summaries must cover every one
// of them; otherwise a ResolutionError is returned.
func Region(d *Directory, region string, summaries []model.AggregateSummary) (model.AggregateSummary, error) {
	members := d.Areas(region)
	if len(members) == 0 {
		return model.AggregateSummary{}, &resilience.ResolutionError{Region: region, Reason: "no areas mapped to region"}
	}

	byArea := make(map[string]model.AggregateSummary, len(summaries))
	for _, s := range summaries {
		if s.Scope.Level == model.LevelArea {
			byArea[s.Scope.Name] = s
		}
	}

	parts := make([]model.AggregateSummary, 0, len(members))
	var missing []string
	for _, a := range members {
		s, ok := byArea[a]
		if !ok {
			missing = append(missing, a)
			continue
		}
		parts = append(parts, s)
	}
	if len(missing) > 0 {
		re := &resilience.ResolutionError{Region: region, Missing: missing, Reason: "member areas have no summary"}
		if len(summaries) > 0 {
			re.Month = summaries[0].Month.String()
		}
		return model.AggregateSummary{}, re
	}
	return Aggregate(model.RegionScope(region), parts)
}

// Organization aggregates area summaries into the organization scope.
func Organization(summaries []model.AggregateSummary) (model.AggregateSummary, error) {
	return Aggregate(model.OrgScope(), summaries)
}
