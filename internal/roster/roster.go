// Package roster resolves the active workforce for a target month.
package roster

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
)

// Query selects roster members. An empty Area means the whole organization.
type Query struct {
	Area  string
	Month model.Month
}

// HiredBefore is the exclusive hire-date cutoff for the query month.
func (q Query) HiredBefore() time.Time { return q.Month.End() }

// Source returns roster members for a query. Sources may over-return;
// the Resolver filters again.
type Source interface {
	Name() string
	ActiveMembers(ctx context.Context, q Query) ([]model.TeamMember, error)
}

// Resolver fetches the active roster with retries and applies the activity
// rules uniformly across sources.
type Resolver struct {
	src    Source
	policy resilience.Policy
}

// NewResolver creates a Resolver over src.
func NewResolver(src Source, policy resilience.Policy) *Resolver {
	return &Resolver{src: src, policy: policy.With("roster", src.Name())}
}

// Active returns the members active during month, optionally limited to
// one area. An empty slice is a valid result.
func (r *Resolver) Active(ctx context.Context, area string, month model.Month) ([]model.TeamMember, error) {
	q := Query{Area: area, Month: month}
	members, err := resilience.DoVal(ctx, r.policy, func(ctx context.Context) ([]model.TeamMember, error) {
		m, err := r.src.ActiveMembers(ctx, q)
		return m, resilience.NewDataSourceError(r.src.Name(), "active members", err)
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.TeamMember, 0, len(members))
	for _, m := range members {
		if area != "" && m.Area != area {
			continue
		}
		if !m.ActiveDuring(month) {
			continue
		}
		m.RoleType = normalizeRoleType(m)
		out = append(out, m)
	}
	zap.L().Debug("roster resolved",
		zap.String("source", r.src.Name()),
		zap.String("area", area),
		zap.String("month", month.String()),
		zap.Int("fetched", len(members)),
		zap.Int("active", len(out)),
	)
	return out, nil
}

func normalizeRoleType(m model.TeamMember) model.RoleType {
	if rt := model.ParseRoleType(string(m.RoleType)); rt != "" {
		return rt
	}
	return model.ParseRoleType(m.Role)
}

// Areas returns the area→region assignments observed in members, one per
// area, first non-empty region wins.
func Areas(members []model.TeamMember) []model.AreaAssignment {
	idx := make(map[string]int)
	var out []model.AreaAssignment
	for _, m := range members {
		if m.Area == "" {
			continue
		}
		i, ok := idx[m.Area]
		if !ok {
			idx[m.Area] = len(out)
			out = append(out, model.AreaAssignment{Area: m.Area, Region: m.Region})
			continue
		}
		if out[i].Region == "" {
			out[i].Region = m.Region
		}
	}
	return out
}
