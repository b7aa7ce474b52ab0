// Package extract fetches a web page and reduces it to its main article text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"ellmo/internal/config"
)

var errRedirect = errors.New("redirects are disabled")

// maxTrackedHosts bounds the per-host limiters; the least recently fetched
// host is forgotten first.
const maxTrackedHosts = 1024

// Extractor downloads pages and extracts readable body text. Any failure
// yields an empty string; callers never see an error.
type Extractor struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	delay     time.Duration

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// New constructs an Extractor from cfg.
func New(cfg config.ExtractorConfig) *Extractor {
	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return errRedirect
		},
	}
	return NewWithClient(client, cfg)
}

// NewWithClient uses client as is; redirect and timeout policy are the
// caller's responsibility.
func NewWithClient(client *http.Client, cfg config.ExtractorConfig) *Extractor {
	return &Extractor{
		client:    client,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		delay:     cfg.Delay,
		limiters:  newLimiterCache(maxTrackedHosts),
	}
}

// Extract returns the main body text of the page at rawURL, or "" when the
// page cannot be fetched or yields no text.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (string, error) {
	text, err := e.extract(ctx, rawURL)
	if err != nil {
		slog.Warn("extraction failed", "url", rawURL, "err", err)
		return "", nil
	}
	return text, nil
}

func (e *Extractor) extract(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", pageURL.Scheme)
	}

	if err := e.limiterFor(pageURL.Host).Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", err
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/plain":
		return strings.TrimSpace(string(body)), nil
	case mediaType == "", strings.Contains(mediaType, "html"):
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", fmt.Errorf("extract article: %w", err)
	}
	return normalizeText(article.TextContent), nil
}

func newLimiterCache(size int) *lru.Cache[string, *rate.Limiter] {
	c, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		panic(fmt.Sprintf("extract: limiter cache size %d: %v", size, err))
	}
	return c
}

// limiterFor spaces consecutive requests to one host by the configured delay.
func (e *Extractor) limiterFor(host string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.limiters.Get(host); ok {
		return l
	}
	limit := rate.Inf
	if e.delay > 0 {
		limit = rate.Every(e.delay)
	}
	l := rate.NewLimiter(limit, 1)
	e.limiters.Add(host, l)
	return l
}

func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
