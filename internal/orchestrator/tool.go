package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"ellmo/internal/models"
)

// ToolName is the only tool offered to the model.
const ToolName = "get_content"

const toolDescription = "Get additional fresh content from the internet. Call this whenever you need to know fresh data."

const toolParameters = `{
  "type": "object",
  "properties": {
    "search_queries": {"type": "array", "items": {"type": "string"}},
    "top_keywords": {"type": "array", "items": {"type": "string"}},
    "refined_prompt": {"type": "string"}
  },
  "required": ["search_queries", "top_keywords", "refined_prompt"],
  "additionalProperties": false
}`

// ErrMalformedToolPayload reports tool arguments that are not valid JSON or
// do not match the tool schema.
var ErrMalformedToolPayload = errors.New("malformed tool payload")

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(toolParameters))
	})
	return compiledSchema, compileErr
}

// ToolDefinition returns the get_content schema offered on the first call.
func ToolDefinition() models.ToolDefinition {
	return models.ToolDefinition{
		Type: "function",
		Function: models.FunctionSchema{
			Name:        ToolName,
			Description: toolDescription,
			Parameters:  json.RawMessage(toolParameters),
		},
	}
}

// ToolArguments are the decoded get_content parameters.
type ToolArguments struct {
	SearchQueries []string `json:"search_queries"`
	TopKeywords   []string `json:"top_keywords"`
	RefinedPrompt string   `json:"refined_prompt"`
}

// ParseToolArguments validates raw against the tool schema and decodes it.
func ParseToolArguments(raw string) (ToolArguments, error) {
	var args ToolArguments

	schema, err := getSchema()
	if err != nil {
		return args, fmt.Errorf("compiling tool schema: %w", err)
	}

	if !json.Valid([]byte(raw)) {
		return args, fmt.Errorf("%w: arguments are not valid JSON", ErrMalformedToolPayload)
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return args, fmt.Errorf("%w: %v", ErrMalformedToolPayload, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return args, fmt.Errorf("%w: %s", ErrMalformedToolPayload, strings.Join(problems, "; "))
	}

	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return args, fmt.Errorf("%w: %v", ErrMalformedToolPayload, err)
	}
	return args, nil
}
