package router

import (
	"context"
	"fmt"

	"ellmo/internal/models"
	"ellmo/internal/provider"
)

// Router dispatches unified requests to the appropriate provider.
type Router struct {
	registry *provider.Registry
}

// New constructs a router backed by the provided registry.
func New(registry *provider.Registry) *Router {
	return &Router{
		registry: registry,
	}
}

// Chat routes a chat completion request to the provider serving req.Model.
// Aliases are resolved before dispatch and the response carries the
// canonical model id.
func (r *Router) Chat(ctx context.Context, req models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
	modelInfo, providerImpl, err := r.registry.LookupModel(req.Model)
	if err != nil {
		return nil, err
	}

	sanitisedReq := req
	sanitisedReq.Model = modelInfo.ID
	sanitisedReq.Messages = cloneMessages(req.Messages)

	resp, err := providerImpl.Chat(ctx, sanitisedReq)
	if err != nil {
		return nil, fmt.Errorf("provider %s chat request: %w", providerImpl.Name(), err)
	}
	if resp != nil && resp.Model == "" {
		resp.Model = modelInfo.ID
	}
	return resp, nil
}

func cloneMessages(messages []models.Message) []models.Message {
	if len(messages) == 0 {
		return nil
	}
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}
