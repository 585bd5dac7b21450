package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeChatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestSuggestJobs(t *testing.T) {
	content := `[{"name":"Launch referral program","function":"growth","rationale":"Drives signups"}]`
	server := fakeChatServer(t, content)
	defer server.Close()

	adapter := NewSuggestAdapter("test-key", server.URL, "test-model")
	defer adapter.Close()

	suggestions, err := adapter.SuggestJobs(context.Background(), PlanningContext{
		Outcomes: []string{"Revenue"},
		Outputs:  []string{"Signups"},
		Jobs:     []string{"Rewrite docs"},
	})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Launch referral program", suggestions[0].Name)
	assert.Equal(t, "growth", suggestions[0].Function)
}

func TestSuggestJobsMarkdownFence(t *testing.T) {
	content := "```json\n[{\"name\":\"Ship onboarding\",\"function\":\"product\",\"rationale\":\"Activation\"}]\n```"
	server := fakeChatServer(t, content)
	defer server.Close()

	adapter := NewSuggestAdapter("test-key", server.URL, "")
	defer adapter.Close()

	suggestions, err := adapter.SuggestJobs(context.Background(), PlanningContext{})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Ship onboarding", suggestions[0].Name)
}

func TestSuggestJobsUnconfigured(t *testing.T) {
	adapter := NewSuggestAdapter("", "", "")
	defer adapter.Close()

	_, err := adapter.SuggestJobs(context.Background(), PlanningContext{})
	assert.Error(t, err)
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		expectError bool
		expectLen   int
	}{
		{
			name:      "plain array",
			content:   `[{"name":"A","function":"x","rationale":"r"}]`,
			expectLen: 1,
		},
		{
			name:      "surrounding prose",
			content:   `Here you go: [{"name":"A","function":"x","rationale":"r"}] enjoy`,
			expectLen: 1,
		},
		{
			name:      "blank names dropped",
			content:   `[{"name":""},{"name":"B","function":"y","rationale":"r"}]`,
			expectLen: 1,
		},
		{
			name:        "no array",
			content:     "sorry, I cannot help",
			expectError: true,
		},
		{
			name:        "all blank",
			content:     `[{"name":""}]`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSuggestions(tt.content)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.expectLen)
		})
	}
}
