// Package search turns query strings into ranked web hits. Backends talk to
// a concrete engine; Service wraps one backend with result capping, an
// injectable query cache and failure isolation.
package search

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Hit is a single ranked search result.
type Hit struct {
	Title   string
	URL     string
	Snippet string
}

// Backend executes a query against a search engine.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Hit, error)
}

// Service is the search adapter used by retrieval. It never returns an
// error: a failing backend yields no hits for that query.
type Service struct {
	backend    Backend
	maxResults int
	cache      Cache
	group      singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithCache installs a query cache. Passing nil disables caching.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService wraps backend, capping every result list at maxResults.
func NewService(backend Backend, maxResults int, opts ...Option) *Service {
	s := &Service{
		backend:    backend,
		maxResults: maxResults,
		cache:      noopCache{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	return s
}

// Search returns at most maxResults hits for query. Identical queries are
// served from the cache once populated; concurrent identical misses share
// one backend call, which keeps running when one of the callers gives up.
// Backend failures are logged and reported as no hits, and are not cached.
func (s *Service) Search(ctx context.Context, query string) []Hit {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if hits, ok := s.cache.Get(query); ok {
		slog.Debug("search cache hit", "query", query)
		return cloneHits(hits)
	}

	// The shared call outlives any single caller; the backend client timeout
	// bounds it instead.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(query, func() (any, error) {
		hits, err := s.backend.Search(shared, query, s.maxResults)
		if err != nil {
			return nil, err
		}
		if len(hits) > s.maxResults {
			hits = hits[:s.maxResults]
		}
		s.cache.Add(query, cloneHits(hits))
		return hits, nil
	})

	select {
	case <-ctx.Done():
		slog.Debug("search abandoned", "query", query, "err", ctx.Err())
		return nil
	case res := <-ch:
		if res.Err != nil {
			slog.Warn("search failed", "backend", s.backend.Name(), "query", query, "err", res.Err)
			return nil
		}
		return cloneHits(res.Val.([]Hit))
	}
}

// Reset drops every cached query.
func (s *Service) Reset() {
	s.cache.Purge()
}

func cloneHits(hits []Hit) []Hit {
	if hits == nil {
		return nil
	}
	out := make([]Hit, len(hits))
	copy(out, hits)
	return out
}
