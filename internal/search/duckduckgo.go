package search

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const duckDuckGoEndpoint = "https://lite.duckduckgo.com/lite/"

// ddgLimiter holds every DuckDuckGo instance in the process to one query
// per second.
var ddgLimiter = rate.NewLimiter(rate.Every(time.Second), 1)

var (
	ddgLinkPattern    = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
	ddgLinkPatternAlt = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>([^<]+)</a>`)
	ddgSnippetPattern = regexp.MustCompile(`<td[^>]*class=['"]result-snippet['"][^>]*>([\s\S]*?)</td>`)
	ddgTagPattern     = regexp.MustCompile(`<[^>]+>`)
)

// DuckDuckGo scrapes the DuckDuckGo lite HTML interface. No API key is needed.
type DuckDuckGo struct {
	client   *http.Client
	endpoint string
	limiter  *rate.Limiter
}

// NewDuckDuckGo creates a DuckDuckGo backend. A nil client gets a 15s timeout.
func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	return &DuckDuckGo{
		client:   defaultClient(client),
		endpoint: duckDuckGoEndpoint,
		limiter:  ddgLimiter,
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search posts the query to the lite endpoint and scrapes the result table.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}

	form := url.Values{}
	form.Set("q", query)
	encoded := form.Encode()

	resp, err := send(ctx, d.client, d.limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", browserAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: read response: %w", err)
	}
	return parseLiteResults(string(body), maxResults), nil
}

// parseLiteResults pairs result links with snippets in document order.
func parseLiteResults(page string, maxResults int) []Hit {
	links := ddgLinkPattern.FindAllStringSubmatch(page, -1)
	if len(links) == 0 {
		links = ddgLinkPatternAlt.FindAllStringSubmatch(page, -1)
	}
	snippets := ddgSnippetPattern.FindAllStringSubmatch(page, -1)

	var hits []Hit
	for i, match := range links {
		target := unwrapRedirect(strings.TrimSpace(html.UnescapeString(match[1])))
		title := cleanText(match[2])
		if target == "" || title == "" {
			continue
		}

		var snippet string
		if i < len(snippets) {
			snippet = cleanText(snippets[i][1])
		}

		hits = append(hits, Hit{Title: title, URL: target, Snippet: snippet})
		if maxResults > 0 && len(hits) >= maxResults {
			break
		}
	}
	return hits
}

// unwrapRedirect resolves DuckDuckGo's /l/?uddg= click-tracking links.
func unwrapRedirect(raw string) string {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return raw
}

func cleanText(s string) string {
	s = ddgTagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
