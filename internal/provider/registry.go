package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ellmo/internal/models"
)

var (
	// ErrUnknownModel indicates the requested model or alias is not registered.
	ErrUnknownModel = errors.New("unknown model")
	// ErrDuplicateModel indicates an attempt to register the same model twice.
	ErrDuplicateModel = errors.New("model already registered")
	// ErrInvalidAlias reports an alias that shadows a model or points nowhere.
	ErrInvalidAlias = errors.New("invalid model alias")
)

// Provider is a completion backend able to answer chat requests, optionally
// requesting tool invocations.
type Provider interface {
	Name() string
	ListModels(ctx context.Context) ([]models.Model, error)
	Chat(ctx context.Context, req models.UnifiedChatRequest) (*models.UnifiedChatResponse, error)
}

type modelEntry struct {
	model    models.Model
	provider Provider
}

// Registry maps canonical model ids, and aliases that point at them, to the
// provider serving each model. Registration order is kept so the first
// registered model can act as the default.
type Registry struct {
	mu        sync.RWMutex
	models    map[string]modelEntry
	aliases   map[string]string
	order     []string
	providers map[string]struct{}
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		models:    make(map[string]modelEntry),
		aliases:   make(map[string]string),
		providers: make(map[string]struct{}),
	}
}

// RegisterProvider adds the provider's models and then its aliases. Nothing
// is registered when any model or alias is rejected.
func (r *Registry) RegisterProvider(ctx context.Context, p Provider, aliases map[string]string) error {
	if p == nil {
		return errors.New("provider must not be nil")
	}

	list, err := p.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models for provider %q: %w", p.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}

	added := make(map[string]modelEntry, len(list))
	order := make([]string, 0, len(list))
	for _, model := range list {
		id := strings.TrimSpace(model.ID)
		if id == "" {
			return fmt.Errorf("provider %q listed a model without id", p.Name())
		}
		_, known := r.models[id]
		_, repeated := added[id]
		if known || repeated || r.aliases[id] != "" {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, id)
		}
		if model.Provider == "" {
			model.Provider = p.Name()
		}
		model.ID = id
		added[id] = modelEntry{model: model, provider: p}
		order = append(order, id)
	}

	for alias, target := range aliases {
		if _, shadows := r.models[alias]; shadows {
			return fmt.Errorf("%w: %q shadows a registered model", ErrInvalidAlias, alias)
		}
		if _, shadows := added[alias]; shadows {
			return fmt.Errorf("%w: %q shadows a registered model", ErrInvalidAlias, alias)
		}
		if r.aliases[alias] != "" {
			return fmt.Errorf("%w: %q already registered", ErrInvalidAlias, alias)
		}
		if _, ok := added[target]; !ok {
			return fmt.Errorf("%w: %q references unknown model %q", ErrInvalidAlias, alias, target)
		}
	}

	r.providers[p.Name()] = struct{}{}
	for _, id := range order {
		r.models[id] = added[id]
	}
	r.order = append(r.order, order...)
	for alias, target := range aliases {
		r.aliases[alias] = target
	}
	return nil
}

// LookupModel resolves an id or alias to the canonical model and its provider.
func (r *Registry) LookupModel(name string) (models.Model, Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := name
	if target, ok := r.aliases[name]; ok {
		id = target
	}
	entry, ok := r.models[id]
	if !ok {
		return models.Model{}, nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return entry.model, entry.provider, nil
}

// DefaultModel returns the first registered model id.
func (r *Registry) DefaultModel() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return "", fmt.Errorf("%w: no models registered", ErrUnknownModel)
	}
	return r.order[0], nil
}
