package roster

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/pkg/salesforce"
)

// MemberStore is the subset of store.Store a StoreSource needs.
type MemberStore interface {
	ActiveMembers(ctx context.Context, area string, hiredBefore time.Time) ([]model.TeamMember, error)
}

// StoreSource reads the roster from the team_members table.
type StoreSource struct {
	st MemberStore
}

// NewStoreSource creates a StoreSource.
func NewStoreSource(st MemberStore) *StoreSource { return &StoreSource{st: st} }

func (s *StoreSource) Name() string { return "store" }

func (s *StoreSource) ActiveMembers(ctx context.Context, q Query) ([]model.TeamMember, error) {
	return s.st.ActiveMembers(ctx, q.Area, q.HiredBefore())
}

// SalesforceSource reads the roster from Salesforce Contacts.
type SalesforceSource struct {
	client salesforce.Client
}

// NewSalesforceSource creates a SalesforceSource.
func NewSalesforceSource(c salesforce.Client) *SalesforceSource {
	return &SalesforceSource{client: c}
}

func (s *SalesforceSource) Name() string { return "salesforce" }

func (s *SalesforceSource) ActiveMembers(ctx context.Context, q Query) ([]model.TeamMember, error) {
	records, err := salesforce.FindTeamMembers(ctx, s.client, q.Area, q.HiredBefore())
	if err != nil {
		return nil, err
	}
	out := make([]model.TeamMember, 0, len(records))
	for _, r := range records {
		m, err := fromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func fromRecord(r salesforce.TeamMemberRecord) (model.TeamMember, error) {
	m := model.TeamMember{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Area:      r.Area,
		Region:    r.Region,
		Role:      r.Role,
		RoleType:  model.RoleType(r.RoleType),
	}
	if r.HireDate != "" {
		t, err := time.Parse(time.DateOnly, r.HireDate)
		if err != nil {
			return model.TeamMember{}, eris.Wrapf(
				&resilience.ValidationError{Field: "hire_date", Value: r.HireDate, Msg: err.Error()},
				"roster: contact %s", r.ID)
		}
		m.HireDate = &t
	}
	return m, nil
}
