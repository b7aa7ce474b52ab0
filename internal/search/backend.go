package search

import (
	"fmt"
	"net/http"

	"ellmo/internal/config"
)

// NewBackend builds the backend selected by cfg.Backend.
func NewBackend(cfg config.SearchConfig) (Backend, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Backend {
	case config.SearchBackendDuckDuckGo, "":
		return NewDuckDuckGo(client), nil
	case config.SearchBackendTavily:
		return NewTavily(cfg.APIKey, cfg.BaseURL, client), nil
	case config.SearchBackendBrave:
		return NewBrave(cfg.APIKey, cfg.BaseURL, client), nil
	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Backend)
	}
}

// NewServiceFromConfig wires the configured backend behind an LRU cache.
func NewServiceFromConfig(cfg config.SearchConfig) (*Service, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := NewLRUCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return NewService(backend, cfg.MaxResults, WithCache(cache)), nil
}
