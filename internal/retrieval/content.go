// Package retrieval turns search queries into a ranked, token-bounded list
// of extracted web documents.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ellmo/internal/search"
)

const (
	// DefaultTokenBudget bounds the total tokens of accepted bodies.
	DefaultTokenBudget = 9000
	// DefaultWorkers caps simultaneous page extractions.
	DefaultWorkers = 8
)

// ContentItem is one retrieved, extracted and scored document.
type ContentItem struct {
	Title        string
	URL          string
	Snippet      string
	Body         string
	KeywordScore int
}

// String renders the item as newline separated fields for prompt context.
func (c ContentItem) String() string {
	return fmt.Sprintf("title: %s\nurl: %s\nsnippet: %s\ncontent: %s\nkeyword_score: %d",
		c.Title, c.URL, c.Snippet, c.Body, c.KeywordScore)
}

// Searcher returns ranked hits for one query and never fails.
type Searcher interface {
	Search(ctx context.Context, query string) []search.Hit
}

// Extractor returns the body text of a page.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// Aggregator implements the content retrieval pipeline.
type Aggregator struct {
	searcher  Searcher
	extractor Extractor
	tokens    TokenCounter
	budget    int
	workers   int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTokenBudget sets the total token limit for one GetContent call.
func WithTokenBudget(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.budget = n
		}
	}
}

// WithWorkers caps concurrent extractions.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// NewAggregator wires the search, extraction and token counting collaborators.
func NewAggregator(searcher Searcher, extractor Extractor, tokens TokenCounter, opts ...Option) *Aggregator {
	a := &Aggregator{
		searcher:  searcher,
		extractor: extractor,
		tokens:    tokens,
		budget:    DefaultTokenBudget,
		workers:   DefaultWorkers,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetContent searches every query, extracts each distinct URL once and
// returns the accepted items ordered by descending keyword score.
//
// Extractions are accepted in completion order. Each accepted body is
// charged against the token budget; the first body that would overdraw it
// is dropped whole and no later completion is accepted. Outstanding
// extractions are cancelled at that point and their results discarded.
func (a *Aggregator) GetContent(ctx context.Context, queries, keywords []string) []ContentItem {
	hits := a.collectHits(ctx, queries)
	if len(hits) == 0 {
		return nil
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	acc := newAccumulator(a.budget)
	g := new(errgroup.Group)
	g.SetLimit(a.workers)

	for _, hit := range hits {
		if acc.isClosed() {
			break
		}
		g.Go(func() error {
			if acc.isClosed() {
				return nil
			}
			body, err := a.extractor.Extract(fetchCtx, hit.URL)
			if err != nil {
				slog.Warn("extraction failed", "url", hit.URL, "err", err)
				body = ""
			}
			item := ContentItem{
				Title:        hit.Title,
				URL:          hit.URL,
				Snippet:      hit.Snippet,
				Body:         body,
				KeywordScore: KeywordScore(body, keywords),
			}
			if !acc.offer(item, a.tokens.Count(body)) {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	items := acc.items()
	slog.Debug("content aggregated",
		"queries", len(queries),
		"urls", len(hits),
		"accepted", len(items),
		"tokens_remaining", acc.remainingTokens(),
	)

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].KeywordScore > items[j].KeywordScore
	})
	return items
}

// collectHits runs every query concurrently and merges the results in query
// order, keeping the first hit seen for each URL.
func (a *Aggregator) collectHits(ctx context.Context, queries []string) []search.Hit {
	if len(queries) == 0 {
		return nil
	}

	perQuery := make([][]search.Hit, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			perQuery[i] = a.searcher.Search(ctx, q)
		}()
	}
	wg.Wait()

	visited := make(map[string]struct{})
	var hits []search.Hit
	for _, results := range perQuery {
		for _, hit := range results {
			if hit.URL == "" {
				continue
			}
			if _, seen := visited[hit.URL]; seen {
				continue
			}
			visited[hit.URL] = struct{}{}
			hits = append(hits, hit)
		}
	}
	return hits
}

// KeywordScore sums the case-insensitive occurrence counts of every keyword
// in text. Keywords are matched verbatim, surrounding spaces included;
// empty keywords are ignored.
func KeywordScore(text string, keywords []string) int {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	score := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		score += strings.Count(lower, strings.ToLower(kw))
	}
	return score
}
