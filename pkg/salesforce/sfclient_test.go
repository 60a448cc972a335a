package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSFClient creates an sfClient backed by an httptest server.
func newTestSFClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	require.NotNil(t, sf)

	return NewClient(sf), ts
}

func TestSFClient_Query(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{
				{
					"attributes":   map[string]any{"type": "Contact"},
					"Id":           "003xx",
					"FirstName":    "Ana",
					"LastName":     "Diaz",
					"Area__c":      "Medford",
					"Team_Role__c": "Setter",
					"Hire_Date__c": "2024-01-15",
				},
			},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	var members []TeamMemberRecord
	err := client.Query(context.Background(), "SELECT Id, FirstName FROM Contact", &members)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "003xx", members[0].ID)
	assert.Equal(t, "Medford", members[0].Area)
	assert.Equal(t, "2024-01-15", members[0].HireDate)
}

func TestSFClient_Query_Error(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	var members []TeamMemberRecord
	err := client.Query(context.Background(), "INVALID SOQL", &members)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")
}
