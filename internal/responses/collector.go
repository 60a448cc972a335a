// Package responses collects a month's survey submissions and joins them to
// the active roster.
package responses

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
)

// Source returns submissions with SubmittedAt in [from, to).
type Source interface {
	Name() string
	Submissions(ctx context.Context, from, to time.Time) ([]model.SurveyResponse, error)
}

// Collection is the result of one Collect call.
type Collection struct {
	Month  model.Month
	Joined []model.JoinedResponse
	// Unmatched counts submissions whose member is not on the active roster.
	Unmatched int
}

// Collector fetches submissions with retries and joins them to a roster.
type Collector struct {
	src    Source
	policy resilience.Policy
}

// NewCollector creates a Collector over src.
func NewCollector(src Source, policy resilience.Policy) *Collector {
	return &Collector{src: src, policy: policy.With("responses", src.Name())}
}

// Collect returns the month's submissions joined to roster. Submissions
// from members missing from roster are dropped and counted.
func (c *Collector) Collect(ctx context.Context, month model.Month, roster []model.TeamMember) (*Collection, error) {
	raw, err := c.Fetch(ctx, month)
	if err != nil {
		return nil, err
	}
	return Join(month, raw, roster), nil
}

// Fetch returns the raw submissions for month without joining them.
func (c *Collector) Fetch(ctx context.Context, month model.Month) ([]model.SurveyResponse, error) {
	from, to := month.Start(), month.End()
	return resilience.DoVal(ctx, c.policy, func(ctx context.Context) ([]model.SurveyResponse, error) {
		r, err := c.src.Submissions(ctx, from, to)
		return r, resilience.NewDataSourceError(c.src.Name(), "submissions", err)
	})
}

// Join keeps the submissions inside month and attaches their roster entry.
func Join(month model.Month, raw []model.SurveyResponse, roster []model.TeamMember) *Collection {
	from, to := month.Start(), month.End()
	byID := make(map[string]model.TeamMember, len(roster))
	for _, m := range roster {
		byID[m.ID] = m
	}

	out := &Collection{Month: month, Joined: make([]model.JoinedResponse, 0, len(raw))}
	for _, r := range raw {
		if r.SubmittedAt.Before(from) || !r.SubmittedAt.Before(to) {
			continue
		}
		m, ok := byID[r.TeamMemberID]
		if !ok {
			out.Unmatched++
			continue
		}
		out.Joined = append(out.Joined, model.JoinedResponse{SurveyResponse: r, Member: m})
	}

	if out.Unmatched > 0 {
		zap.L().Warn("dropped submissions from members not on the active roster",
			zap.String("month", month.String()),
			zap.Int("unmatched", out.Unmatched),
		)
	}
	return out
}

// ForArea returns the joined responses whose member belongs to area.
func (c *Collection) ForArea(area string) []model.JoinedResponse {
	var out []model.JoinedResponse
	for _, r := range c.Joined {
		if r.Member.Area == area {
			out = append(out, r)
		}
	}
	return out
}
