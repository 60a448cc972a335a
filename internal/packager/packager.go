// Package packager builds a month's summaries, feedback bundles, and
// monthly packages and persists them.
package packager

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gps-cli/internal/archive"
	"github.com/sells-group/gps-cli/internal/metrics"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/responses"
	"github.com/sells-group/gps-cli/internal/roster"
	"github.com/sells-group/gps-cli/internal/store"
)

const defaultConcurrency = 4

// Writer is the persistence the packager needs.
type Writer interface {
	ListAreas(ctx context.Context) ([]model.AreaAssignment, error)
	UpsertAreas(ctx context.Context, areas []model.AreaAssignment) error
	ReplaceSummaries(ctx context.Context, month model.Month, summaries []model.AggregateSummary) error
	ReplaceFeedback(ctx context.Context, month model.Month, bundles []model.FeedbackBundle) (int, error)
	UpsertPackage(ctx context.Context, pkg model.MonthlyPackage, opts store.UpsertOptions) (*model.MonthlyPackage, error)
}

// Options configures a Packager.
type Options struct {
	// Concurrency bounds per-area computation and package writes.
	Concurrency int
	// Policy retries store writes.
	Policy resilience.Policy
}

// RunOptions controls a single Process call.
type RunOptions struct {
	// ClearAI resets AI state on every rewritten package.
	ClearAI bool
}

// Packager turns a month of roster and survey data into packages.
type Packager struct {
	store     Writer
	roster    *roster.Resolver
	collector *responses.Collector
	archive   archive.Store
	cleaner   *Cleaner
	locks     *keyedMutex
	workers   int
	policy    resilience.Policy
}

// New creates a Packager. archive may be nil.
func New(w Writer, r *roster.Resolver, c *responses.Collector, ar archive.Store, opts Options) *Packager {
	workers := opts.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	return &Packager{
		store:     w,
		roster:    r,
		collector: c,
		archive:   ar,
		cleaner:   NewCleaner(),
		locks:     newKeyedMutex(),
		workers:   workers,
		policy:    opts.Policy,
	}
}

// scopeResult is everything computed for one scope, one entry per role filter.
type scopeResult struct {
	summaries []model.AggregateSummary
	bundles   [][]model.FeedbackBundle
}

// Process packages month. Re-running it for the same month rewrites the
// same keys with identical metrics.
func (p *Packager) Process(ctx context.Context, month model.Month, opts RunOptions) (*model.ProcessResult, error) {
	log := zap.L().With(zap.String("component", "packager"), zap.String("month", month.String()))
	start := time.Now()

	var (
		members   []model.TeamMember
		raw       []model.SurveyResponse
		directory []model.AreaAssignment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = p.roster.Active(gctx, "", month)
		return err
	})
	g.Go(func() error {
		var err error
		raw, err = p.collector.Fetch(gctx, month)
		return err
	})
	g.Go(func() error {
		return p.call(gctx, "list areas", func(ctx context.Context) error {
			var err error
			directory, err = p.store.ListAreas(ctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "packager: read %s", month)
	}

	coll := responses.Join(month, raw, members)
	sortResponses(coll.Joined)
	// Directory areas without active members still get zero summaries.
	areas := areaNames(members, directory)

	scopes := make([]model.Scope, 0, len(areas)+1)
	scopes = append(scopes, model.OrgScope())
	for _, a := range areas {
		scopes = append(scopes, model.AreaScope(a))
	}

	results := make([]scopeResult, len(scopes))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, sc := range scopes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ms, rs := members, coll.Joined
			if sc.Level == model.LevelArea {
				ms = membersIn(members, sc.Name)
				rs = coll.ForArea(sc.Name)
			}
			res, err := p.build(sc, month, ms, rs)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "packager: compute %s", month)
	}

	if unassigned(members) == 0 {
		if err := checkRollup(results); err != nil {
			return nil, eris.Wrapf(err, "packager: compute %s", month)
		}
	}

	var (
		summaries []model.AggregateSummary
		bundles   []model.FeedbackBundle
		pkgs      []model.MonthlyPackage
	)
	for _, res := range results {
		summaries = append(summaries, res.summaries...)
		for i, s := range res.summaries {
			bundles = append(bundles, res.bundles[i]...)
			pkgs = append(pkgs, newPackage(s, res.bundles[i]))
		}
	}

	result := &model.ProcessResult{
		Month:         month,
		ActiveMembers: len(members),
		Responses:     len(coll.Joined),
		Unmatched:     coll.Unmatched,
		Areas:         areas,
	}

	if assigned := mappedAreas(members); len(assigned) > 0 {
		if err := p.call(ctx, "sync areas", func(ctx context.Context) error {
			return p.store.UpsertAreas(ctx, assigned)
		}); err != nil {
			return nil, err
		}
	}
	if err := p.call(ctx, "replace summaries", func(ctx context.Context) error {
		return p.store.ReplaceSummaries(ctx, month, summaries)
	}); err != nil {
		return nil, err
	}
	result.SummariesWritten = len(summaries)

	if err := p.call(ctx, "replace feedback", func(ctx context.Context) error {
		n, err := p.store.ReplaceFeedback(ctx, month, bundles)
		result.FeedbackWritten = n
		return err
	}); err != nil {
		return nil, err
	}

	written, archived, err := p.writePackages(ctx, pkgs, opts)
	if err != nil {
		return nil, err
	}
	result.PackagesWritten = written
	result.Archived = archived

	log.Info("month packaged",
		zap.Int("active_members", result.ActiveMembers),
		zap.Int("responses", result.Responses),
		zap.Int("unmatched", result.Unmatched),
		zap.Int("areas", len(areas)),
		zap.Int("packages", result.PackagesWritten),
		zap.Int("feedback", result.FeedbackWritten),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// build computes one scope's summaries and feedback for every role filter.
func (p *Packager) build(scope model.Scope, month model.Month, members []model.TeamMember, joined []model.JoinedResponse) (scopeResult, error) {
	res := scopeResult{
		summaries: make([]model.AggregateSummary, 0, len(model.RoleFilters)),
		bundles:   make([][]model.FeedbackBundle, 0, len(model.RoleFilters)),
	}
	for _, role := range model.RoleFilters {
		ms := membersWithRole(members, role)
		rs := responsesWithRole(joined, role)

		completed := distinctMembers(rs)
		s := model.AggregateSummary{
			Scope:          scope,
			Month:          month,
			Role:           role,
			Metrics:        metrics.CalculateAll(rs),
			Headcount:      len(ms),
			Completed:      completed,
			Responses:      len(rs),
			CompletionRate: metrics.Rate(completed, len(ms)),
		}
		if err := Validate(s); err != nil {
			return scopeResult{}, err
		}
		res.summaries = append(res.summaries, s)
		res.bundles = append(res.bundles, p.feedback(scope, month, role, rs))
	}
	return res, nil
}

// feedback groups the cleaned answers of rs by field. Fields without any
// usable answer are omitted.
func (p *Packager) feedback(scope model.Scope, month model.Month, role model.RoleFilter, rs []model.JoinedResponse) []model.FeedbackBundle {
	var out []model.FeedbackBundle
	for _, f := range model.FeedbackFields {
		var entries []model.FeedbackEntry
		for _, r := range rs {
			text, ok := p.cleaner.Clean(r.Text(f))
			if !ok {
				continue
			}
			entries = append(entries, model.FeedbackEntry{
				TeamMemberID: r.Member.ID,
				FirstName:    r.Member.FirstName,
				LastName:     r.Member.LastName,
				Response:     text,
				SubmittedAt:  r.SubmittedAt,
			})
		}
		if len(entries) == 0 {
			continue
		}
		out = append(out, model.FeedbackBundle{
			Scope:   scope,
			Month:   month,
			Role:    role,
			Field:   f,
			Entries: entries,
		})
	}
	return out
}

// writePackages upserts and archives pkgs, serialized per package key.
func (p *Packager) writePackages(ctx context.Context, pkgs []model.MonthlyPackage, opts RunOptions) (written, archived int, err error) {
	stored := make([]*model.MonthlyPackage, len(pkgs))
	keys := make([]string, len(pkgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, pkg := range pkgs {
		g.Go(func() error {
			unlock := p.locks.Lock(pkg.Key().String())
			defer unlock()

			var saved *model.MonthlyPackage
			if err := p.call(gctx, "upsert package "+pkg.Key().String(), func(ctx context.Context) error {
				var err error
				saved, err = p.store.UpsertPackage(ctx, pkg, store.UpsertOptions{ClearAI: opts.ClearAI})
				return err
			}); err != nil {
				return err
			}
			stored[i] = saved

			if p.archive == nil {
				return nil
			}
			key, err := archive.PutPackage(gctx, p.archive, *saved)
			if err != nil {
				return eris.Wrapf(err, "packager: archive %s", pkg.Key())
			}
			keys[i] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	for i := range pkgs {
		if stored[i] != nil {
			written++
		}
		if keys[i] != "" {
			archived++
		}
	}
	return written, archived, nil
}

// call runs a store call under the retry policy. Only transient store
// failures are retried.
func (p *Packager) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := resilience.Do(ctx, p.policy.With("packager", op), func(ctx context.Context) error {
		return store.Classify(op, fn(ctx))
	})
	return eris.Wrapf(err, "packager: %s", op)
}

func newPackage(s model.AggregateSummary, bundles []model.FeedbackBundle) model.MonthlyPackage {
	fb := make([]model.AnonymousFeedback, 0, len(bundles))
	for _, b := range bundles {
		fb = append(fb, model.AnonymousFeedback{
			Field:     b.Field,
			Guide:     b.Field.Guide(),
			Responses: b.Anonymous(),
		})
	}
	return model.MonthlyPackage{
		Scope:    s.Scope,
		Month:    s.Month,
		Role:     s.Role,
		Summary:  s,
		Feedback: fb,
	}
}

// checkRollup compares the organization summaries in results[0] with the
// rollup of the area summaries, role by role.
func checkRollup(results []scopeResult) error {
	for i, org := range results[0].summaries {
		areas := make([]model.AggregateSummary, 0, len(results)-1)
		for _, res := range results[1:] {
			areas = append(areas, res.summaries[i])
		}
		if err := ValidateRollup(org, areas); err != nil {
			return err
		}
	}
	return nil
}

func unassigned(members []model.TeamMember) int {
	n := 0
	for _, m := range members {
		if m.Area == "" {
			n++
		}
	}
	return n
}

func sortResponses(rs []model.JoinedResponse) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].SubmittedAt.Equal(rs[j].SubmittedAt) {
			return rs[i].SubmittedAt.Before(rs[j].SubmittedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func areaNames(members []model.TeamMember, directory []model.AreaAssignment) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(area string) {
		if area != "" && !seen[area] {
			seen[area] = true
			out = append(out, area)
		}
	}
	for _, m := range members {
		add(m.Area)
	}
	for _, a := range directory {
		add(a.Area)
	}
	sort.Strings(out)
	return out
}

// mappedAreas returns the roster's area assignments that carry a region.
// Areas without one are left to the directory loader.
func mappedAreas(members []model.TeamMember) []model.AreaAssignment {
	var out []model.AreaAssignment
	for _, a := range roster.Areas(members) {
		if a.Region != "" {
			out = append(out, a)
		}
	}
	return out
}

func membersIn(members []model.TeamMember, area string) []model.TeamMember {
	var out []model.TeamMember
	for _, m := range members {
		if m.Area == area {
			out = append(out, m)
		}
	}
	return out
}

func membersWithRole(members []model.TeamMember, role model.RoleFilter) []model.TeamMember {
	if role == model.RoleAll {
		return members
	}
	var out []model.TeamMember
	for _, m := range members {
		if role.Matches(m.RoleType) {
			out = append(out, m)
		}
	}
	return out
}

func responsesWithRole(rs []model.JoinedResponse, role model.RoleFilter) []model.JoinedResponse {
	if role == model.RoleAll {
		return rs
	}
	var out []model.JoinedResponse
	for _, r := range rs {
		if role.Matches(r.Member.RoleType) {
			out = append(out, r)
		}
	}
	return out
}

func distinctMembers(rs []model.JoinedResponse) int {
	seen := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		seen[r.TeamMemberID] = struct{}{}
	}
	return len(seen)
}
