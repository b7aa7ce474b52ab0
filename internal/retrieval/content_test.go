package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"ellmo/internal/search"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]search.Hit
	calls   []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) []search.Hit {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	return f.results[query]
}

type fakeExtractor struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  map[string]int
	fn     func(ctx context.Context, url string) (string, error)
}

func newFakeExtractor(bodies map[string]string) *fakeExtractor {
	return &fakeExtractor{bodies: bodies, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls[url]++
	fn := f.fn
	body, err := f.bodies[url], f.errs[url]
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, url)
	}
	return body, err
}

func (f *fakeExtractor) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// wordCounter counts whitespace separated words as tokens.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func hit(url string) search.Hit {
	return search.Hit{Title: "title " + url, URL: url, Snippet: "snippet " + url}
}

func words(n int, word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func urlsOf(items []ContentItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.URL
	}
	return out
}

func totalTokens(items []ContentItem) int {
	n := 0
	for _, it := range items {
		n += wordCounter{}.Count(it.Body)
	}
	return n
}

func TestGetContentEmptyQueries(t *testing.T) {
	searcher := &fakeSearcher{}
	extractor := newFakeExtractor(nil)
	agg := NewAggregator(searcher, extractor, wordCounter{})

	require.Empty(t, agg.GetContent(context.Background(), nil, nil))
	require.Empty(t, agg.GetContent(context.Background(), []string{}, []string{}))
	require.Empty(t, searcher.calls)
	require.Zero(t, extractor.totalCalls())
}

func TestGetContentDeduplicatesAcrossQueries(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Hit{
		"first":  {hit("https://a"), {Title: "first b", URL: "https://b", Snippet: "from first"}},
		"second": {{Title: "second b", URL: "https://b", Snippet: "from second"}, hit("https://c")},
	}}
	extractor := newFakeExtractor(map[string]string{
		"https://a": "alpha",
		"https://b": "beta",
		"https://c": "gamma",
	})
	agg := NewAggregator(searcher, extractor, wordCounter{}, WithWorkers(1))

	items := agg.GetContent(context.Background(), []string{"first", "second"}, nil)

	require.ElementsMatch(t, []string{"https://a", "https://b", "https://c"}, urlsOf(items))
	for url, n := range extractor.calls {
		require.Equal(t, 1, n, url)
	}
	for _, it := range items {
		if it.URL == "https://b" {
			require.Equal(t, "first b", it.Title)
			require.Equal(t, "from first", it.Snippet)
		}
	}
}

func TestGetContentStopsAtBudget(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Hit{
		"q": {hit("https://a"), hit("https://b"), hit("https://c"), hit("https://d")},
	}}
	extractor := newFakeExtractor(map[string]string{
		"https://a": words(4, "x"),
		"https://b": words(4, "x"),
		"https://c": words(4, "x"),
		"https://d": words(1, "x"),
	})
	agg := NewAggregator(searcher, extractor, wordCounter{}, WithWorkers(1), WithTokenBudget(10))

	items := agg.GetContent(context.Background(), []string{"q"}, nil)

	require.Equal(t, []string{"https://a", "https://b"}, urlsOf(items))
	require.LessOrEqual(t, totalTokens(items), 10)
}

func TestGetContentBudgetExactFit(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Hit{
		"q": {hit("https://a"), hit("https://b")},
	}}
	extractor := newFakeExtractor(map[string]string{
		"https://a": words(4, "x"),
		"https://b": words(4, "x"),
	})
	agg := NewAggregator(searcher, extractor, wordCounter{}, WithWorkers(1), WithTokenBudget(8))

	items := agg.GetContent(context.Background(), []string{"q"}, nil)
	require.Len(t, items, 2)
	require.Equal(t, 8, totalTokens(items))
}

func TestGetContentOversizedFirstItemStopsIngestion(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Hit{
		"q": {hit("https://huge"), hit("https://small")},
	}}
	extractor := newFakeExtractor(map[string]string{
		"https://huge":  words(50, "x"),
		"https://small": "tiny",
	})
	agg := NewAggregator(searcher, extractor, wordCounter{}, WithWorkers(1), WithTokenBudget(5))

	require.Empty(t, agg.GetContent(context.Background(), []string{"q"}, nil))
}

func TestGetContentAbandonsInFlightExtractions(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Hit{
		"q": {hit("https://slow"), hit("https://huge")},
	}}
	var slowCancelled atomic.Bool
	slowStarted := make(chan struct{})
	extractor := newFakeExtractor(nil)
	extractor.fn = func(ctx context.Context, url string) (string, error) {
		if url == "https://huge" {
			<-slowStarted
			return words(20, "x"), nil
		}
		close(slowStarted)
		<-ctx.Done()
		slowCancelled.Store(true)
		return "late", nil
	}
	agg := NewAggregator(searcher, extractor, wordCounter{}, WithWorkers(2), WithTokenBudget(5))

	items := agg.GetContent(context.Background(), []string{"q"}, nil)

	require.Empty(t, items)
	require.True(t, slowCancelled.Load())
}

func TestGetContentRanksByKeywordScore(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Hit{
		"q": {hit("https://none"), hit("https://one"), hit("https://three"), hit("https://one-again")},
	}}
	extractor := newFakeExtractor(map[string]string{
		"https://none":      "nothing relevant",
		"https://one":       "Go is fun",
		"https://three":     "go GO go",
		"https://one-again": "rust and go",
	})
	agg := NewAggregator(searcher, extractor, wordCounter{}, WithWorkers(1))

	items := agg.GetContent(context.Background(), []string{"q"}, []string{"go"})

	require.Equal(t, []string{"https://three", "https://one", "https://one-again", "https://none"}, urlsOf(items))
	for i := 1; i < len(items); i++ {
		require.GreaterOrEqual(t, items[i-1].KeywordScore, items[i].KeywordScore)
	}
	require.Equal(t, 3, items[0].KeywordScore)
}

func TestGetContentIsolatesExtractionFailures(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Hit{
		"q": {hit("https://ok1"), hit("https://broken"), hit("https://ok2")},
	}}
	extractor := newFakeExtractor(map[string]string{
		"https://ok1": "keyword keyword",
		"https://ok2": "one keyword",
	})
	extractor.errs["https://broken"] = errors.New("connection reset")
	agg := NewAggregator(searcher, extractor, wordCounter{}, WithWorkers(3))

	items := agg.GetContent(context.Background(), []string{"q"}, []string{"keyword"})

	require.Len(t, items, 3)
	byURL := map[string]ContentItem{}
	for _, it := range items {
		byURL[it.URL] = it
	}
	require.Equal(t, 2, byURL["https://ok1"].KeywordScore)
	require.Equal(t, 1, byURL["https://ok2"].KeywordScore)
	require.Empty(t, byURL["https://broken"].Body)
	require.Zero(t, byURL["https://broken"].KeywordScore)
	require.Equal(t, "https://broken", urlsOf(items)[2])
}

func TestGetContentManyConcurrentWorkers(t *testing.T) {
	var hits []search.Hit
	bodies := map[string]string{}
	for i := 0; i < 50; i++ {
		u := fmt.Sprintf("https://site/%d", i)
		hits = append(hits, hit(u))
		bodies[u] = "word"
	}
	searcher := &fakeSearcher{results: map[string][]search.Hit{"q": hits}}
	agg := NewAggregator(searcher, newFakeExtractor(bodies), wordCounter{}, WithWorkers(4), WithTokenBudget(30))

	items := agg.GetContent(context.Background(), []string{"q"}, nil)

	require.Len(t, items, 30)
	require.Equal(t, 30, totalTokens(items))
}

func TestKeywordScore(t *testing.T) {
	require.Equal(t, 0, KeywordScore("", []string{"a"}))
	require.Equal(t, 3, KeywordScore("Solar solar SOLAR", []string{"solar"}))
	require.Equal(t, 3, KeywordScore("wind and solar and wind", []string{"wind", "solar", ""}))
	require.Equal(t, 1, KeywordScore("let GO of the gopher", []string{" go "}))
	require.Equal(t, 0, KeywordScore("gopher", []string{" go "}))
	require.Equal(t, 2, KeywordScore("a  b  c", []string{"  "}))
	require.Equal(t, 0, KeywordScore("text", nil))
}

func TestContentItemString(t *testing.T) {
	item := ContentItem{Title: "T", URL: "https://u", Snippet: "S", Body: "B", KeywordScore: 2}
	require.Equal(t, "title: T\nurl: https://u\nsnippet: S\ncontent: B\nkeyword_score: 2", item.String())
}
