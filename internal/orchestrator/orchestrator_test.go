package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ellmo/internal/models"
	"ellmo/internal/retrieval"
)

type mockCompleter struct {
	chatFunc func(call int, req models.UnifiedChatRequest) (*models.UnifiedChatResponse, error)
	requests []models.UnifiedChatRequest
}

func (m *mockCompleter) Chat(_ context.Context, req models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
	m.requests = append(m.requests, req)
	return m.chatFunc(len(m.requests), req)
}

type stubContent struct {
	items    []retrieval.ContentItem
	calls    int
	queries  []string
	keywords []string
}

func (s *stubContent) GetContent(_ context.Context, queries, keywords []string) []retrieval.ContentItem {
	s.calls++
	s.queries = queries
	s.keywords = keywords
	return s.items
}

func toolResponse(name, args string) *models.UnifiedChatResponse {
	return &models.UnifiedChatResponse{
		ID: "chatcmpl-1",
		Message: models.Message{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{{
				ID:       "call_abc",
				Type:     "function",
				Function: models.FunctionCall{Name: name, Arguments: args},
			}},
		},
		FinishReason: "tool_calls",
	}
}

func userRequest(text string) models.UnifiedChatRequest {
	temp := 0.2
	return models.UnifiedChatRequest{
		Model:       "gpt-4o-mini",
		Messages:    []models.Message{{Role: models.RoleUser, Content: text}},
		Temperature: &temp,
	}
}

func TestExecuteWithoutToolCallSkipsRetrieval(t *testing.T) {
	direct := &models.UnifiedChatResponse{
		ID:      "chatcmpl-direct",
		Message: models.Message{Role: models.RoleAssistant, Content: "4"},
	}
	completer := &mockCompleter{chatFunc: func(int, models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
		return direct, nil
	}}
	content := &stubContent{}

	resp, err := New(completer, content).Execute(context.Background(), userRequest("what is 2+2"))
	require.NoError(t, err)
	require.Same(t, direct, resp)
	require.Zero(t, content.calls)
	require.Len(t, completer.requests, 1)

	first := completer.requests[0]
	require.Len(t, first.Tools, 1)
	require.Equal(t, ToolName, first.Tools[0].Function.Name)
	require.Len(t, first.Messages, 2)
	require.Equal(t, models.RoleSystem, first.Messages[0].Role)
	require.Equal(t, "what is 2+2", first.Messages[1].Content)
	require.NotNil(t, first.Temperature)
}

func TestExecuteToolRoundTrip(t *testing.T) {
	answer := &models.UnifiedChatResponse{
		ID:      "chatcmpl-2",
		Message: models.Message{Role: models.RoleAssistant, Content: "fixed answer"},
	}
	completer := &mockCompleter{chatFunc: func(call int, _ models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
		if call == 1 {
			return toolResponse(ToolName, `{"search_queries":["x"],"top_keywords":["k"],"refined_prompt":"p"}`), nil
		}
		return answer, nil
	}}
	content := &stubContent{items: []retrieval.ContentItem{
		{Title: "One", URL: "https://one.example", Body: "k k", KeywordScore: 2},
		{Title: "Two", URL: "https://two.example", Body: "k", KeywordScore: 1},
	}}

	resp, err := New(completer, content).Execute(context.Background(), userRequest("question"))
	require.NoError(t, err)
	require.Same(t, answer, resp)

	require.Equal(t, 1, content.calls)
	require.Equal(t, []string{"x"}, content.queries)
	require.Equal(t, []string{"k"}, content.keywords)

	require.Len(t, completer.requests, 2)
	second := completer.requests[1]
	require.Empty(t, second.Tools)
	require.Len(t, second.Messages, 4)

	echo := second.Messages[2]
	require.Equal(t, models.RoleAssistant, echo.Role)
	require.Len(t, echo.ToolCalls, 1)
	require.Equal(t, "call_abc", echo.ToolCalls[0].ID)

	toolMsg := second.Messages[3]
	require.Equal(t, models.RoleTool, toolMsg.Role)
	require.Equal(t, "call_abc", toolMsg.ToolCallID)
	require.Contains(t, toolMsg.Content, "p")
	require.Contains(t, toolMsg.Content, "https://one.example")
	require.Contains(t, toolMsg.Content, "https://two.example")
	require.Contains(t, toolMsg.Content, "Based on the information above, please answer: p")

	require.Len(t, completer.requests[0].Messages, 2, "planning request must not be mutated by the second phase")
}

func TestExecuteIgnoresUnknownTool(t *testing.T) {
	other := toolResponse("get_weather", `{"city":"Oslo"}`)
	completer := &mockCompleter{chatFunc: func(int, models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
		return other, nil
	}}
	content := &stubContent{}

	resp, err := New(completer, content).Execute(context.Background(), userRequest("weather"))
	require.NoError(t, err)
	require.Same(t, other, resp)
	require.Zero(t, content.calls)
	require.Len(t, completer.requests, 1)
}

func TestExecuteMalformedArguments(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"search_queries":`,
		"missing field":   `{"search_queries":["x"],"top_keywords":["k"]}`,
		"wrong type":      `{"search_queries":"x","top_keywords":["k"],"refined_prompt":"p"}`,
		"extra property":  `{"search_queries":["x"],"top_keywords":["k"],"refined_prompt":"p","extra":1}`,
		"non-string item": `{"search_queries":[1],"top_keywords":["k"],"refined_prompt":"p"}`,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			completer := &mockCompleter{chatFunc: func(int, models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
				return toolResponse(ToolName, args), nil
			}}
			content := &stubContent{}

			_, err := New(completer, content).Execute(context.Background(), userRequest("q"))
			require.ErrorIs(t, err, ErrMalformedToolPayload)
			require.Zero(t, content.calls)
			require.Len(t, completer.requests, 1)
		})
	}
}

func TestExecutePropagatesProviderErrors(t *testing.T) {
	upstream := errors.New("upstream unavailable")

	t.Run("planning", func(t *testing.T) {
		completer := &mockCompleter{chatFunc: func(int, models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
			return nil, upstream
		}}
		_, err := New(completer, &stubContent{}).Execute(context.Background(), userRequest("q"))
		require.ErrorIs(t, err, upstream)
		require.ErrorContains(t, err, "planning completion")
	})

	t.Run("answering", func(t *testing.T) {
		completer := &mockCompleter{chatFunc: func(call int, _ models.UnifiedChatRequest) (*models.UnifiedChatResponse, error) {
			if call == 1 {
				return toolResponse(ToolName, `{"search_queries":["x"],"top_keywords":[],"refined_prompt":"p"}`), nil
			}
			return nil, upstream
		}}
		content := &stubContent{}
		_, err := New(completer, content).Execute(context.Background(), userRequest("q"))
		require.ErrorIs(t, err, upstream)
		require.ErrorContains(t, err, "answering completion")
		require.Equal(t, 1, content.calls)
	})
}

func TestBuildContextWithoutItems(t *testing.T) {
	out := BuildContext(nil, "why is the sky blue")
	require.Contains(t, out, "acknowledge that")
	require.Contains(t, out, "please answer: why is the sky blue")
}

func TestParseToolArguments(t *testing.T) {
	args, err := ParseToolArguments(`{"search_queries":["a","b"],"top_keywords":["k1"],"refined_prompt":"p"}`)
	require.NoError(t, err)
	require.Equal(t, ToolArguments{SearchQueries: []string{"a", "b"}, TopKeywords: []string{"k1"}, RefinedPrompt: "p"}, args)

	def := ToolDefinition()
	require.Equal(t, "function", def.Type)
	require.JSONEq(t, toolParameters, string(def.Function.Parameters))
}
