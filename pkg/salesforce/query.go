package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// TeamMemberRecord is a roster Contact as stored in Salesforce.
type TeamMemberRecord struct {
	ID        string `json:"Id" salesforce:"Id"`
	FirstName string `json:"FirstName" salesforce:"FirstName"`
	LastName  string `json:"LastName" salesforce:"LastName"`
	Email     string `json:"Email" salesforce:"Email"`
	Area      string `json:"Area__c" salesforce:"Area__c"`
	Region    string `json:"Region__c" salesforce:"Region__c"`
	Role      string `json:"Team_Role__c" salesforce:"Team_Role__c"`
	RoleType  string `json:"Role_Type__c" salesforce:"Role_Type__c"`
	HireDate  string `json:"Hire_Date__c" salesforce:"Hire_Date__c"`
}

var teamMemberFields = []string{
	"Id", "FirstName", "LastName", "Email",
	"Area__c", "Region__c", "Team_Role__c", "Role_Type__c", "Hire_Date__c",
}

// TeamMemberQuery builds the SOQL for non-terminated members hired before
// the given instant, optionally restricted to one area.
func TeamMemberQuery(area string, hiredBefore time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM Contact WHERE Team_Role__c != 'TERM'", strings.Join(teamMemberFields, ", "))
	fmt.Fprintf(&b, " AND (Hire_Date__c = null OR Hire_Date__c < %s)", hiredBefore.UTC().Format("2006-01-02"))
	if area != "" {
		fmt.Fprintf(&b, " AND Area__c = '%s'", escapeSoql(area))
	}
	b.WriteString(" ORDER BY Area__c, LastName, FirstName")
	return b.String()
}

// FindTeamMembers returns the roster contacts matching TeamMemberQuery.
func FindTeamMembers(ctx context.Context, c Client, area string, hiredBefore time.Time) ([]TeamMemberRecord, error) {
	var records []TeamMemberRecord
	if err := c.Query(ctx, TeamMemberQuery(area, hiredBefore), &records); err != nil {
		return nil, eris.Wrapf(err, "sf: find team members area=%q", area)
	}
	return records, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
