// Package orchestrator runs the two-phase retrieval augmented completion:
// a planning call that may request web content, then an answering call fed
// with what was retrieved.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ellmo/internal/models"
	"ellmo/internal/retrieval"
)

const planningPrompt = "You are a helpful research assistant that returns topics to research. " +
	"For 'top_keywords', return a list of the top 5 keywords that describe the topic. " +
	"For 'search_queries', provide 1-3 search queries that would be relevant for finding more information on the topic. " +
	"For 'refined_prompt', return a prompt that includes the original prompt with additional points to highlight."

const contextPreamble = "You are a helpful AI assistant with access to fresh data past your training data. It is included here.\n" +
	"- Use the provided context information to add additional information.\n" +
	"- If the context does not cover the query, acknowledge that.\n" +
	"- Cite the sources (use the URL value of the associated document) of information when possible.\n"

// Completer performs one chat completion.
type Completer interface {
	Chat(ctx context.Context, req models.UnifiedChatRequest) (*models.UnifiedChatResponse, error)
}

// ContentSource retrieves ranked web content for a set of queries.
type ContentSource interface {
	GetContent(ctx context.Context, queries, keywords []string) []retrieval.ContentItem
}

// Orchestrator decides whether a request needs fresh web content and, if
// the model asks for it, answers with that content in context.
type Orchestrator struct {
	completer Completer
	content   ContentSource
}

// New constructs an orchestrator.
func New(completer Completer, content ContentSource) *Orchestrator {
	return &Orchestrator{completer: completer, content: content}
}

// Execute runs the planning call with the get_content tool offered. When
// the model does not call the tool, that response is returned as is.
// Otherwise the content is retrieved and a second call without tools
// produces the final answer.
func (o *Orchestrator) Execute(ctx context.Context, req models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
	messages := make([]models.Message, 0, len(req.Messages)+3)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: planningPrompt})
	messages = append(messages, req.Messages...)

	planning := req
	planning.Messages = messages
	planning.Tools = []models.ToolDefinition{ToolDefinition()}

	first, err := o.completer.Chat(ctx, planning)
	if err != nil {
		return nil, fmt.Errorf("planning completion: %w", err)
	}

	call, ok := retrievalCall(first)
	if !ok {
		slog.Debug("answered without retrieval", "model", req.Model)
		return first, nil
	}

	args, err := ParseToolArguments(call.Function.Arguments)
	if err != nil {
		return nil, fmt.Errorf("tool call %s: %w", call.ID, err)
	}

	slog.Info("retrieving content",
		"tool_call_id", call.ID,
		"queries", args.SearchQueries,
		"keywords", args.TopKeywords,
	)
	items := o.content.GetContent(ctx, args.SearchQueries, args.TopKeywords)

	messages = append(messages,
		models.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}},
		models.Message{Role: models.RoleTool, Content: BuildContext(items, args.RefinedPrompt), ToolCallID: call.ID},
	)

	answering := req
	answering.Messages = messages
	answering.Tools = nil

	final, err := o.completer.Chat(ctx, answering)
	if err != nil {
		return nil, fmt.Errorf("answering completion: %w", err)
	}
	return final, nil
}

// retrievalCall returns the first tool call of resp when it targets
// get_content.
func retrievalCall(resp *models.UnifiedChatResponse) (models.ToolCall, bool) {
	if resp == nil || len(resp.Message.ToolCalls) == 0 {
		return models.ToolCall{}, false
	}
	call := resp.Message.ToolCalls[0]
	if call.Function.Name != ToolName {
		return models.ToolCall{}, false
	}
	return call, true
}

// BuildContext renders retrieved items and the refined question into the
// tool message content.
func BuildContext(items []retrieval.ContentItem, refinedPrompt string) string {
	var b strings.Builder
	b.WriteString(contextPreamble)
	for _, item := range items {
		b.WriteString("\n")
		b.WriteString(item.String())
		b.WriteString("\n")
	}
	b.WriteString("\nBased on the information above, please answer: ")
	b.WriteString(refinedPrompt)
	return b.String()
}
