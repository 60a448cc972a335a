package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TerminalRole marks a roster entry whose employment has ended.
const TerminalRole = "TERM"

// RoleType classifies a team member. The empty RoleType is unclassified.
type RoleType string

const (
	RoleSetter  RoleType = "Setter"
	RoleCloser  RoleType = "Closer"
	RoleManager RoleType = "Manager"
)

// ParseRoleType normalizes a roster role label ("setter", " CLOSER ") to a
// RoleType. Unknown labels are unclassified. Casers hold state, so one is
// built per call.
func ParseRoleType(s string) RoleType {
	title := cases.Title(language.English)
	switch rt := RoleType(title.String(strings.TrimSpace(s))); rt {
	case RoleSetter, RoleCloser, RoleManager:
		return rt
	default:
		return ""
	}
}

// RoleFilter selects which members a summary covers.
type RoleFilter string

const (
	RoleAll           RoleFilter = "All"
	RoleFilterSetter  RoleFilter = RoleFilter(RoleSetter)
	RoleFilterCloser  RoleFilter = RoleFilter(RoleCloser)
	RoleFilterManager RoleFilter = RoleFilter(RoleManager)
)

// RoleFilters lists every role filter in packaging order.
var RoleFilters = []RoleFilter{RoleAll, RoleFilterSetter, RoleFilterCloser, RoleFilterManager}

// ParseRoleFilter accepts a role filter in any case. The empty string means All.
func ParseRoleFilter(s string) (RoleFilter, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(RoleAll)) {
		return RoleAll, true
	}
	if rt := ParseRoleType(s); rt != "" {
		return RoleFilter(rt), true
	}
	return "", false
}

// Matches reports whether a member with role type rt falls under the filter.
func (f RoleFilter) Matches(rt RoleType) bool {
	return f == RoleAll || RoleType(f) == rt
}

// TeamMember is one roster entry.
type TeamMember struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email,omitempty"`
	Area      string     `json:"area"`
	Region    string     `json:"region,omitempty"`
	Role      string     `json:"role"`
	RoleType  RoleType   `json:"role_type"`
	HireDate  *time.Time `json:"hire_date,omitempty"`
}

// Active reports whether the member carries no terminal role marker.
func (m TeamMember) Active() bool {
	return !strings.EqualFold(strings.TrimSpace(m.Role), TerminalRole)
}

// ActiveDuring reports whether the member is active and hired before the end of month.
func (m TeamMember) ActiveDuring(month Month) bool {
	if !m.Active() {
		return false
	}
	return m.HireDate == nil || m.HireDate.Before(month.End())
}

// FullName joins first and last name.
func (m TeamMember) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// AreaAssignment maps an area to its region.
type AreaAssignment struct {
	Area   string `json:"area" yaml:"area"`
	Region string `json:"region" yaml:"region"`
}
