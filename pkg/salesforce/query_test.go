package salesforce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamMemberQuery(t *testing.T) {
	cutoff := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("organization", func(t *testing.T) {
		soql := TeamMemberQuery("", cutoff)
		assert.Contains(t, soql, "FROM Contact WHERE Team_Role__c != 'TERM'")
		assert.Contains(t, soql, "Hire_Date__c < 2025-04-01")
		assert.NotContains(t, soql, "Area__c =")
	})

	t.Run("area is escaped", func(t *testing.T) {
		soql := TeamMemberQuery("O'Fallon", cutoff)
		assert.Contains(t, soql, `Area__c = 'O\'Fallon'`)
	})
}

func TestFindTeamMembers(t *testing.T) {
	t.Run("returns records", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.Contains(t, soql, "Area__c = 'Medford'")
				records := out.(*[]TeamMemberRecord)
				*records = []TeamMemberRecord{{ID: "003xx", Area: "Medford", Role: "Closer"}}
				return nil
			},
		}

		got, err := FindTeamMembers(context.Background(), mock, "Medford", time.Now())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "003xx", got[0].ID)
	})

	t.Run("returns error on query failure", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, _ string, _ any) error {
				return errors.New("connection refused")
			},
		}

		_, err := FindTeamMembers(context.Background(), mock, "", time.Now())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "find team members")
	})
}
