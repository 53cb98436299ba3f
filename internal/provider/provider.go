package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/lodestar-ai/lodestar/pkg/types"
)

// Provider represents an LLM provider backed by an Eino ChatModel.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []types.Model

	// ChatModel returns the Eino ChatModel for this provider.
	ChatModel() model.ToolCallingChatModel

	// Stream starts a streaming completion and returns the normalized
	// delta stream.
	Stream(ctx context.Context, req *Request) (*Stream, error)
}

// Request represents a request to generate a completion.
type Request struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"maxTokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"topP,omitempty"`
	StopWords   []string           `json:"stopWords,omitempty"`
}

// ToolInfo represents a tool definition for the LLM.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ConvertToEinoTools converts internal tool definitions to Eino format.
func ConvertToEinoTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = parseJSONSchemaToParams(t.Parameters)
		}

		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

// parseJSONSchemaToParams converts JSON Schema to Eino ParameterInfo.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}

		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}

	return params
}

// BuildHistory converts stored messages into the Eino wire format. The
// system prompt becomes the leading system message. Assistant tool calls
// are followed by one tool-result message per call, in declaration order,
// so providers that require a result for every call always get one.
func BuildHistory(systemPrompt string, msgs []types.MessageWithParts) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, &schema.Message{
			Role:    schema.System,
			Content: systemPrompt,
		})
	}

	for _, m := range msgs {
		if len(m.Parts) == 0 {
			continue
		}

		switch m.Info.Role {
		case types.RoleUser:
			out = append(out, &schema.Message{
				Role:    schema.User,
				Content: userContent(m.Parts),
			})

		case types.RoleAssistant:
			var content strings.Builder
			var calls []schema.ToolCall
			var results []*schema.Message

			for _, part := range m.Parts {
				switch pt := part.(type) {
				case *types.TextPart:
					content.WriteString(pt.Text)
				case *types.ToolPart:
					calls = append(calls, schema.ToolCall{
						ID: pt.CallID,
						Function: schema.FunctionCall{
							Name:      pt.Tool,
							Arguments: callArguments(pt.State.Input),
						},
					})
					results = append(results, &schema.Message{
						Role:       schema.Tool,
						ToolCallID: pt.CallID,
						Content:    toolResultContent(pt.State),
					})
				}
			}

			if content.Len() == 0 && len(calls) == 0 {
				continue
			}
			out = append(out, &schema.Message{
				Role:      schema.Assistant,
				Content:   content.String(),
				ToolCalls: calls,
			})
			out = append(out, results...)
		}
	}

	return out
}

// userContent flattens user parts into a single text block. File parts are
// inlined with a path header so the model sees attachment provenance.
func userContent(parts []types.Part) string {
	var b strings.Builder
	for _, part := range parts {
		switch pt := part.(type) {
		case *types.TextPart:
			b.WriteString(pt.Text)
		case *types.FilePart:
			if pt.Content == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[file: %s]\n%s", pt.Path, pt.Content)
		}
	}
	return b.String()
}

// callArguments returns a valid JSON arguments payload for a tool call.
func callArguments(input json.RawMessage) string {
	if len(input) == 0 {
		return "{}"
	}
	return string(input)
}

// toolResultContent renders a tool state as result text. Every call gets a
// result, even aborted ones, since providers reject dangling tool calls.
func toolResultContent(st types.ToolState) string {
	switch st.Status {
	case types.ToolCompleted:
		if st.Output == "" {
			return "(no output)"
		}
		return st.Output
	case types.ToolError:
		return "Error: " + st.Error
	default:
		return "(no result recorded)"
	}
}
