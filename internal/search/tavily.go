package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey   string
	depth    string
	endpoint string
	client   *http.Client
}

// NewTavily constructs a Tavily backend. endpoint may be empty to use the
// public API.
func NewTavily(apiKey, endpoint string, client *http.Client) *Tavily {
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}
	return &Tavily{
		apiKey:   apiKey,
		depth:    "basic",
		endpoint: endpoint,
		client:   defaultClient(client),
	}
}

func (t *Tavily) Name() string { return "tavily" }

func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{
		"api_key":      t.apiKey,
		"query":        query,
		"search_depth": t.depth,
		"max_results":  maxResults,
	})
	if err != nil {
		return nil, err
	}

	resp, err := send(ctx, t.client, nil, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("tavily: read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("tavily: malformed response")
	}

	var hits []Hit
	gjson.GetBytes(body, "results").ForEach(func(_, item gjson.Result) bool {
		hits = append(hits, Hit{
			Title:   item.Get("title").String(),
			URL:     item.Get("url").String(),
			Snippet: item.Get("content").String(),
		})
		return maxResults <= 0 || len(hits) < maxResults
	})
	return hits, nil
}
