package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gps-cli/internal/resilience"
)

const narrativeModel = "claude-haiku-4-5-20251001"

func localClient(baseURL string) *sdkClient {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
	}
}

// wireRequest is the part of a Messages API request body the tests inspect.
type wireRequest struct {
	Model     string `json:"model"`
	MaxTokens int64  `json:"max_tokens"`
	System    []struct {
		Type         string `json:"type"`
		Text         string `json:"text"`
		CacheControl *struct {
			Type string `json:"type"`
			TTL  string `json:"ttl"`
		} `json:"cache_control"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

func narrativeRequest() MessageRequest {
	return MessageRequest{
		Model:     narrativeModel,
		MaxTokens: 1024,
		System:    BuildCachedSystemBlocks("You summarize monthly team survey packages."),
		Messages: []Message{{
			Role:    "user",
			Content: "Scope: area Medford\nMonth: 2025-03\nTraining NPS 33.33 (B)",
		}},
	}
}

func TestSDKClient_NarrativeRequestOnTheWire(t *testing.T) {
	var got wireRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "msg_medford_2025_03",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": "Medford held steady in March."},
				{"type": "text", "text": "Training is the area to watch."},
			},
			"model":       narrativeModel,
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":                120,
				"output_tokens":               40,
				"cache_creation_input_tokens": 0,
				"cache_read_input_tokens":     900,
			},
		})
	}))
	defer ts.Close()

	resp, err := localClient(ts.URL).CreateMessage(context.Background(), narrativeRequest())
	require.NoError(t, err)

	assert.Equal(t, narrativeModel, got.Model)
	assert.Equal(t, int64(1024), got.MaxTokens)
	require.Len(t, got.System, 1)
	assert.Equal(t, "text", got.System[0].Type)
	require.NotNil(t, got.System[0].CacheControl, "field guide is sent with a cache breakpoint")
	assert.Equal(t, "ephemeral", got.System[0].CacheControl.Type)
	assert.Equal(t, "5m", got.System[0].CacheControl.TTL)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 1)
	assert.Contains(t, got.Messages[0].Content[0].Text, "area Medford")

	assert.Equal(t, "Medford held steady in March.\nTraining is the area to watch.", resp.Text())
	assert.Equal(t, int64(900), resp.Usage.CacheReadInputTokens)
	assert.Equal(t, "end_turn", resp.StopReason)
}

func TestSDKClient_ClassifiesAPIErrors(t *testing.T) {
	tests := []struct {
		status    int
		errType   string
		retryable bool
	}{
		{http.StatusTooManyRequests, "rate_limit_error", true},
		{statusOverloaded, "overloaded_error", true},
		{http.StatusInternalServerError, "api_error", true},
		{http.StatusServiceUnavailable, "api_error", true},
		{http.StatusBadRequest, "invalid_request_error", false},
		{http.StatusUnauthorized, "authentication_error", false},
	}
	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
					"type":  "error",
					"error": map[string]any{"type": tt.errType, "message": "narrative request failed"},
				})
			}))
			defer ts.Close()

			_, err := localClient(ts.URL).CreateMessage(context.Background(), narrativeRequest())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "create message")

			var dse *resilience.DataSourceError
			assert.Equal(t, tt.retryable, errors.As(err, &dse))
			assert.Equal(t, tt.retryable, resilience.IsTransient(err))
		})
	}
}

func TestSDKClient_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := localClient(ts.URL).CreateMessage(ctx, narrativeRequest())
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err), "cancellation is never retried")
}
