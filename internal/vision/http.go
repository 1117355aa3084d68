package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds a single analyze call. Recognition is the
// slow step the worker renews its lock around, so this is generous.
const DefaultHTTPTimeout = 2 * time.Minute

// HTTPClient implements Analyzer against a vision-tagging HTTP API: POST
// the image URL as JSON, get back a tag list with confidences.
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// Compile-time check that HTTPClient implements Analyzer.
var _ Analyzer = (*HTTPClient)(nil)

// NewHTTPClient creates a vision client for the given API endpoint.
func NewHTTPClient(endpoint, apiKey string) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("vision endpoint required")
	}
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: DefaultHTTPTimeout},
	}, nil
}

// analyzeRequest is the request format for the tagging API.
type analyzeRequest struct {
	URL      string   `json:"url"`
	Features []string `json:"features,omitempty"`
}

// analyzeResponse is the response format from the tagging API.
type analyzeResponse struct {
	Tags []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
}

// Analyze submits the image URL for tagging. An empty tag list from the
// API is a successful analysis and yields the no-tags sentinel.
func (c *HTTPClient) Analyze(ctx context.Context, imageURL string) ([]string, error) {
	jsonBody, err := json.Marshal(analyzeRequest{URL: imageURL, Features: []string{"tags"}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("analyze failed with status %d: %s", resp.StatusCode, body)
	}

	var result analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	tags := make([]string, 0, len(result.Tags))
	for _, t := range result.Tags {
		if t.Name != "" {
			tags = append(tags, t.Name)
		}
	}
	return normalizeTags(tags), nil
}
