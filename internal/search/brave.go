package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave enforces 1 request per second per subscription token, so every
// instance sharing a key shares one limiter.
var (
	braveLimitersMu sync.Mutex
	braveLimiters   = map[string]*rate.Limiter{}
)

func braveLimiterFor(apiKey string) *rate.Limiter {
	braveLimitersMu.Lock()
	defer braveLimitersMu.Unlock()
	l, ok := braveLimiters[apiKey]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Second), 1)
		braveLimiters[apiKey] = l
	}
	return l
}

// Brave uses the Brave Search API, authenticated with X-Subscription-Token.
type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewBrave constructs a Brave backend. endpoint may be empty to use the
// public API.
func NewBrave(apiKey, endpoint string, client *http.Client) *Brave {
	if endpoint == "" {
		endpoint = braveEndpoint
	}
	return &Brave{apiKey: apiKey, endpoint: endpoint, client: defaultClient(client)}
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return nil, errors.New("brave: API key is missing")
	}

	params := url.Values{}
	params.Set("q", query)
	if maxResults > 0 {
		params.Set("count", strconv.Itoa(maxResults))
	}
	endpoint := b.endpoint + "?" + params.Encode()

	resp, err := send(ctx, b.client, braveLimiterFor(b.apiKey), func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", b.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("brave: read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("brave: malformed response")
	}

	var hits []Hit
	gjson.GetBytes(body, "web.results").ForEach(func(_, item gjson.Result) bool {
		hits = append(hits, Hit{
			Title:   item.Get("title").String(),
			URL:     item.Get("url").String(),
			Snippet: item.Get("description").String(),
		})
		return maxResults <= 0 || len(hits) < maxResults
	})
	return hits, nil
}
