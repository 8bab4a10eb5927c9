package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fanride/internal/model"
)

// FeedClient fetches the current aggregate state from an external sports
// feed. The HTTP implementation and the fixed-sequence test fake both
// satisfy this.
type FeedClient interface {
	Fetch(ctx context.Context) (model.AggregateState, error)
}

// HTTPFeedClient polls a JSON HTTP endpoint shaped like AggregateState,
// optionally presenting a static API key header.
type HTTPFeedClient struct {
	endpoint      string
	apiKeyHeader  string
	apiKey        string
	httpClient    *http.Client
}

func NewHTTPFeedClient(endpoint, apiKeyHeader, apiKey string) *HTTPFeedClient {
	return &HTTPFeedClient{
		endpoint:     endpoint,
		apiKeyHeader: apiKeyHeader,
		apiKey:       apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch performs one GET against the configured endpoint. A non-2xx
// response or a body that fails to parse as AggregateState yields an
// error; the caller treats this as "no update this iteration".
func (c *HTTPFeedClient) Fetch(ctx context.Context) (model.AggregateState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return model.AggregateState{}, err
	}
	if c.apiKeyHeader != "" && c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.AggregateState{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return model.AggregateState{}, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var state model.AggregateState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return model.AggregateState{}, fmt.Errorf("parse feed response: %w", err)
	}
	return state, nil
}
