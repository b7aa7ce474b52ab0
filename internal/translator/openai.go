package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ellmo/internal/models"
)

var (
	errEmptyModel       = errors.New("model must be provided")
	errEmptyMessages    = errors.New("at least one message is required")
	errInvalidRole      = errors.New("invalid role")
	errInvalidContent   = errors.New("invalid message content")
	errMissingToolCall  = errors.New("tool message requires tool_call_id")
	errConflictingLimit = errors.New("max_tokens and max_completion_tokens disagree")

	// ErrStreamingUnsupported is returned for requests asking for a streamed response.
	ErrStreamingUnsupported = errors.New("streaming responses are not supported")
)

var allowedRoles = map[string]struct{}{
	models.RoleSystem:    {},
	models.RoleUser:      {},
	models.RoleAssistant: {},
	models.RoleTool:      {},
}

// ChatCompletionRequest models the chat request payload accepted on /chat
// and /v1/chat/completions.
type ChatCompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Stream      bool
	MaxTokens   *int
	Temperature *float64
}

// UnmarshalJSON implements custom parsing to enforce validation.
func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model               string        `json:"model"`
		Messages            []ChatMessage `json:"messages"`
		Stream              bool          `json:"stream"`
		MaxTokens           *int          `json:"max_tokens"`
		MaxCompletionTokens *int          `json:"max_completion_tokens"`
		Temperature         *float64      `json:"temperature"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	maxTokens := raw.MaxCompletionTokens
	if maxTokens == nil {
		maxTokens = raw.MaxTokens
	} else if raw.MaxTokens != nil && *raw.MaxTokens != *raw.MaxCompletionTokens {
		return errConflictingLimit
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Messages = raw.Messages
	r.Stream = raw.Stream
	r.MaxTokens = maxTokens
	r.Temperature = raw.Temperature

	return r.validate()
}

func (r *ChatCompletionRequest) validate() error {
	if r.Stream {
		return ErrStreamingUnsupported
	}
	if r.Model == "" {
		return errEmptyModel
	}
	if len(r.Messages) == 0 {
		return errEmptyMessages
	}
	for i, msg := range r.Messages {
		if err := msg.validate(); err != nil {
			return fmt.Errorf("message[%d]: %w", i, err)
		}
	}
	return nil
}

// ToUnified converts the request into the canonical format.
func (r ChatCompletionRequest) ToUnified() models.UnifiedChatRequest {
	msgs := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		var calls []models.ToolCall
		if len(m.ToolCalls) > 0 {
			calls = append(calls, m.ToolCalls...)
		}
		msgs = append(msgs, models.Message{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			ToolCalls:  calls,
		})
	}

	return models.UnifiedChatRequest{
		Model:       r.Model,
		Messages:    msgs,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	}
}

// ChatMessage captures a single message within the chat request.
type ChatMessage struct {
	Role       string
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []models.ToolCall
}

// UnmarshalJSON supports string and array-of-text content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role       string            `json:"role"`
		Content    json.RawMessage   `json:"content"`
		Name       string            `json:"name"`
		ToolCallID string            `json:"tool_call_id"`
		ToolCalls  []models.ToolCall `json:"tool_calls"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := extractMessageContent(raw.Content, len(raw.ToolCalls) > 0)
	if err != nil {
		return err
	}

	m.Role = strings.TrimSpace(raw.Role)
	m.Content = content
	m.Name = strings.TrimSpace(raw.Name)
	m.ToolCallID = strings.TrimSpace(raw.ToolCallID)
	m.ToolCalls = raw.ToolCalls

	return m.validate()
}

func (m *ChatMessage) validate() error {
	if _, ok := allowedRoles[m.Role]; !ok {
		return fmt.Errorf("%w: %s", errInvalidRole, m.Role)
	}
	if m.Role == models.RoleTool && m.ToolCallID == "" {
		return errMissingToolCall
	}
	if len(m.ToolCalls) > 0 {
		if m.Role != models.RoleAssistant {
			return fmt.Errorf("%w: only assistant messages carry tool_calls", errInvalidContent)
		}
		return nil
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: message content must not be empty", errInvalidContent)
	}
	return nil
}

func extractMessageContent(raw json.RawMessage, allowEmpty bool) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		if allowEmpty {
			return "", nil
		}
		return "", fmt.Errorf("%w: missing content", errInvalidContent)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				return "", fmt.Errorf("%w: segment type %q not supported", errInvalidContent, segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}

// ChatCompletionResponse models the OpenAI-compatible chat response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *OpenAIUsage `json:"usage,omitempty"`
}

// ChatChoice represents a single choice in the response payload.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// ResponseMessage is the assistant message returned to the caller. Content
// is null when the model answered with tool calls only.
type ResponseMessage struct {
	Role      string            `json:"role"`
	Content   *string           `json:"content"`
	Name      string            `json:"name,omitempty"`
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`
}

// OpenAIUsage mirrors the token usage block in OpenAI responses.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FromUnifiedChat constructs the OpenAI response shape from the unified data.
func FromUnifiedChat(modelID string, createdUnix int64, resp *models.UnifiedChatResponse) ChatCompletionResponse {
	msg := ResponseMessage{
		Role:      resp.Message.Role,
		Name:      resp.Message.Name,
		ToolCalls: resp.Message.ToolCalls,
	}
	if msg.Role == "" {
		msg.Role = models.RoleAssistant
	}
	if resp.Message.Content != "" || len(resp.Message.ToolCalls) == 0 {
		content := resp.Message.Content
		msg.Content = &content
	}

	var usage *OpenAIUsage
	if resp.Usage.TotalTokens != 0 || resp.Usage.PromptTokens != 0 || resp.Usage.CompletionTokens != 0 {
		usage = &OpenAIUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: createdUnix,
		Model:   modelID,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: resp.FinishReason,
		}},
		Usage: usage,
	}
}
