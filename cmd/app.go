package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"ellmo/internal/config"
	"ellmo/internal/extract"
	"ellmo/internal/orchestrator"
	"ellmo/internal/provider"
	providerfactory "ellmo/internal/provider/factory"
	"ellmo/internal/retrieval"
	"ellmo/internal/router"
	"ellmo/internal/search"
	"ellmo/internal/tokenizer"
)

type tokenCounter interface {
	Name() string
	Count(text string) int
	Truncate(text string, limit int) string
}

// newTokenCounter is replaced in tests to avoid loading BPE ranks.
var newTokenCounter = func(encoding string) (tokenCounter, error) {
	return tokenizer.New(encoding)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// loadRetrievalConfig skips provider validation for commands that never
// call a model.
func loadRetrievalConfig() (config.Config, error) {
	cfg, err := config.LoadRetrieval(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newAggregator(cfg config.Config) (*retrieval.Aggregator, tokenCounter, error) {
	tokens, err := newTokenCounter(cfg.Retrieval.Encoding)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("tokenizer ready", "encoding", tokens.Name(), "budget", cfg.Retrieval.TokenBudget)

	searcher, err := search.NewServiceFromConfig(cfg.Search)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise search: %w", err)
	}
	agg := retrieval.NewAggregator(searcher, extract.New(cfg.Extractor), tokens,
		retrieval.WithTokenBudget(cfg.Retrieval.TokenBudget),
		retrieval.WithWorkers(cfg.Retrieval.Workers),
	)
	return agg, tokens, nil
}

func newOrchestrator(ctx context.Context, cfg config.Config) (*orchestrator.Orchestrator, *provider.Registry, error) {
	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(ctx, cfg, registry); err != nil {
		return nil, nil, err
	}

	agg, _, err := newAggregator(cfg)
	if err != nil {
		return nil, nil, err
	}
	return orchestrator.New(router.New(registry), agg), registry, nil
}
