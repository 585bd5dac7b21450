package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/compassplan/compass/internal/resilience"
)

// PlanningContext is the slice of a tenant's planning graph sent to the
// suggestion model.
type PlanningContext struct {
	Outcomes []string `json:"outcomes"`
	Outputs  []string `json:"outputs"`
	Jobs     []string `json:"jobs"`
}

// Suggestion is one proposed job returned by the model
type Suggestion struct {
	Name      string `json:"name"`
	Function  string `json:"function"`
	Rationale string `json:"rationale"`
}

// SuggestAdapter calls an OpenAI-compatible chat completions API to propose
// candidate jobs for a tenant's planning graph
type SuggestAdapter struct {
	apiKey  string
	baseURL string
	model   string
	pool    *resilience.ConnectionPool
}

// NewSuggestAdapter creates a new suggestion adapter with connection pooling
func NewSuggestAdapter(apiKey, baseURL, model string) *SuggestAdapter {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	})

	pool := resilience.NewConnectionPool(10, 20, 30*time.Second, cb)

	return &SuggestAdapter{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		pool:    pool,
	}
}

// IsConfigured reports whether an API key is present
func (s *SuggestAdapter) IsConfigured() bool {
	return s.apiKey != ""
}

// GetPoolStats returns connection pool statistics for the metrics endpoint
func (s *SuggestAdapter) GetPoolStats() map[string]interface{} {
	return s.pool.GetStats()
}

// Close releases the adapter's pooled connections
func (s *SuggestAdapter) Close() error {
	return s.pool.Close()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You are a planning assistant. Given a workspace's desired ` +
	`outcomes, measurable outputs, and existing jobs, propose up to five new jobs ` +
	`that would plausibly move the outputs. Respond with a JSON array only, each ` +
	`element {"name": string, "function": string, "rationale": string}. Functions ` +
	`are short team labels like "growth" or "platform".`

// SuggestJobs asks the model for candidate jobs given the tenant's graph
func (s *SuggestAdapter) SuggestJobs(ctx context.Context, pc PlanningContext) ([]Suggestion, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("suggestion API key not configured")
	}

	userPrompt, err := json.Marshal(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode planning context: %w", err)
	}

	payload, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userPrompt)},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := s.baseURL + "/chat/completions"
	headers := map[string]string{
		"Authorization": "Bearer " + s.apiKey,
		"Content-Type":  "application/json",
	}

	resp, err := resilience.HTTPRetryWithPolicy(ctx, resilience.SlowRetryPolicy, func() (*http.Response, error) {
		return s.pool.DoRequest(ctx, http.MethodPost, url, headers, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("suggestion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("suggestion API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode suggestion response: %w", err)
	}

	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("suggestion API returned no choices")
	}

	return parseSuggestions(cr.Choices[0].Message.Content)
}

// parseSuggestions extracts the JSON array from the model's reply. Models
// sometimes wrap the array in a markdown fence.
func parseSuggestions(content string) ([]Suggestion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in model reply")
	}

	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(content[start:end+1]), &suggestions); err != nil {
		return nil, fmt.Errorf("failed to parse suggestions: %w", err)
	}

	out := suggestions[:0]
	for _, sg := range suggestions {
		if strings.TrimSpace(sg.Name) == "" {
			continue
		}
		out = append(out, sg)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("model reply contained no usable suggestions")
	}

	return out, nil
}
