package provider

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/lodestar-ai/lodestar/pkg/types"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		input        string
		wantProvider string
		wantModel    string
	}{
		{"anthropic/claude-3-opus", "anthropic", "claude-3-opus"},
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"bedrock/anthropic.claude-3", "bedrock", "anthropic.claude-3"},
		{"claude-3-opus", "", "claude-3-opus"}, // No provider prefix
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			provider, model := ParseModelString(tt.input)
			if provider != tt.wantProvider {
				t.Errorf("ParseModelString(%q) provider = %q, want %q", tt.input, provider, tt.wantProvider)
			}
			if model != tt.wantModel {
				t.Errorf("ParseModelString(%q) model = %q, want %q", tt.input, model, tt.wantModel)
			}
		})
	}
}

func TestModelPriority(t *testing.T) {
	tests := []struct {
		modelID        string
		wantHigherThan string
	}{
		{"gpt-5-turbo", "claude-sonnet-4-latest"},
		{"claude-sonnet-4-20250514", "gpt-4o-2024"},
		{"claude-opus-4", "gpt-4o"},
		{"gpt-4o-latest", "claude-3-5-sonnet"},
	}

	for _, tt := range tests {
		t.Run(tt.modelID+" > "+tt.wantHigherThan, func(t *testing.T) {
			high := modelPriority(tt.modelID)
			low := modelPriority(tt.wantHigherThan)
			if high <= low {
				t.Errorf("modelPriority(%q) = %d, should be > modelPriority(%q) = %d",
					tt.modelID, high, tt.wantHigherThan, low)
			}
		})
	}
}

func TestConvertToEinoTools(t *testing.T) {
	tools := []ToolInfo{
		{
			Name:        "read",
			Description: "Reads a file",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "File path"},
					"limit": {"type": "integer", "description": "Max lines"}
				},
				"required": ["path"]
			}`),
		},
		{
			Name:        "bash",
			Description: "Runs a command",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"command": {"type": "string", "description": "Command to run"},
					"timeout": {"type": "number", "description": "Timeout in ms"}
				},
				"required": ["command"]
			}`),
		},
	}

	result := ConvertToEinoTools(tools)

	if len(result) != 2 {
		t.Fatalf("Expected 2 tools, got %d", len(result))
	}

	if result[0].Name != "read" {
		t.Errorf("Expected tool name 'read', got %s", result[0].Name)
	}
	if result[0].Desc != "Reads a file" {
		t.Errorf("Expected description 'Reads a file', got %s", result[0].Desc)
	}

	if result[1].Name != "bash" {
		t.Errorf("Expected tool name 'bash', got %s", result[1].Name)
	}
}

func TestParseJSONSchemaToParams(t *testing.T) {
	schemaJSON := json.RawMessage(`{
		"type": "object",
		"properties": {
			"stringParam": {"type": "string", "description": "A string"},
			"intParam": {"type": "integer", "description": "An integer"},
			"numParam": {"type": "number", "description": "A number"},
			"boolParam": {"type": "boolean", "description": "A boolean"},
			"arrayParam": {"type": "array", "description": "An array"},
			"objectParam": {"type": "object", "description": "An object"}
		},
		"required": ["stringParam", "intParam"]
	}`)

	params := parseJSONSchemaToParams(schemaJSON)

	if params == nil {
		t.Fatal("Expected non-nil params")
	}

	wantTypes := map[string]schema.DataType{
		"stringParam": schema.String,
		"intParam":    schema.Integer,
		"numParam":    schema.Number,
		"boolParam":   schema.Boolean,
		"arrayParam":  schema.Array,
		"objectParam": schema.Object,
	}
	for name, wantType := range wantTypes {
		p, ok := params[name]
		if !ok {
			t.Errorf("Missing %s", name)
			continue
		}
		if p.Type != wantType {
			t.Errorf("%s type = %v, want %v", name, p.Type, wantType)
		}
	}

	if !params["stringParam"].Required {
		t.Error("stringParam should be required")
	}
	if !params["intParam"].Required {
		t.Error("intParam should be required")
	}
	if params["numParam"].Required {
		t.Error("numParam should not be required")
	}
}

func TestParseJSONSchemaToParams_InvalidJSON(t *testing.T) {
	result := parseJSONSchemaToParams(json.RawMessage(`invalid json`))
	if result != nil {
		t.Error("Expected nil for invalid JSON")
	}
}

func TestParseJSONSchemaToParams_EmptySchema(t *testing.T) {
	result := parseJSONSchemaToParams(json.RawMessage(`{}`))
	if result == nil {
		t.Error("Expected non-nil map for empty schema")
	}
	if len(result) != 0 {
		t.Errorf("Expected empty map, got %d entries", len(result))
	}
}

func TestBuildHistory(t *testing.T) {
	msgs := []types.MessageWithParts{
		{
			Info: &types.Message{ID: "m1", Role: types.RoleUser},
			Parts: []types.Part{
				&types.TextPart{ID: "p1", Type: "text", Text: "Hello"},
			},
		},
		{
			Info: &types.Message{ID: "m2", Role: types.RoleAssistant},
			Parts: []types.Part{
				&types.TextPart{ID: "p2", Type: "text", Text: "Hi there"},
			},
		},
	}

	result := BuildHistory("You are helpful", msgs)

	if len(result) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(result))
	}

	if result[0].Role != schema.System {
		t.Errorf("Message 0 role = %v, want System", result[0].Role)
	}
	if result[0].Content != "You are helpful" {
		t.Errorf("Message 0 content = %q", result[0].Content)
	}

	if result[1].Role != schema.User {
		t.Errorf("Message 1 role = %v, want User", result[1].Role)
	}
	if result[1].Content != "Hello" {
		t.Errorf("Message 1 content = %q, want 'Hello'", result[1].Content)
	}

	if result[2].Role != schema.Assistant {
		t.Errorf("Message 2 role = %v, want Assistant", result[2].Role)
	}
	if result[2].Content != "Hi there" {
		t.Errorf("Message 2 content = %q, want 'Hi there'", result[2].Content)
	}
}

func TestBuildHistory_NoSystemPrompt(t *testing.T) {
	msgs := []types.MessageWithParts{
		{
			Info:  &types.Message{ID: "m1", Role: types.RoleUser},
			Parts: []types.Part{&types.TextPart{ID: "p1", Type: "text", Text: "Hello"}},
		},
	}

	result := BuildHistory("", msgs)

	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	if result[0].Role != schema.User {
		t.Errorf("Message 0 role = %v, want User", result[0].Role)
	}
}

func TestBuildHistory_ToolCalls(t *testing.T) {
	msgs := []types.MessageWithParts{
		{
			Info:  &types.Message{ID: "m1", Role: types.RoleUser},
			Parts: []types.Part{&types.TextPart{ID: "p1", Type: "text", Text: "Read two files"}},
		},
		{
			Info: &types.Message{ID: "m2", Role: types.RoleAssistant},
			Parts: []types.Part{
				&types.TextPart{ID: "p2", Type: "text", Text: "Reading both."},
				&types.ToolPart{
					ID: "p3", Type: "tool", CallID: "call-1", Tool: "read",
					State: types.ToolState{
						Status: types.ToolCompleted,
						Input:  json.RawMessage(`{"path":"/a.txt"}`),
						Output: "contents of a",
					},
				},
				&types.ToolPart{
					ID: "p4", Type: "tool", CallID: "call-2", Tool: "read",
					State: types.ToolState{
						Status: types.ToolError,
						Input:  json.RawMessage(`{"path":"/b.txt"}`),
						Error:  "file not found",
					},
				},
			},
		},
	}

	result := BuildHistory("", msgs)

	// user, assistant, then one tool result per call
	if len(result) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(result))
	}

	asst := result[1]
	if asst.Role != schema.Assistant {
		t.Fatalf("Message 1 role = %v, want Assistant", asst.Role)
	}
	if len(asst.ToolCalls) != 2 {
		t.Fatalf("Expected 2 tool calls, got %d", len(asst.ToolCalls))
	}
	if asst.ToolCalls[0].ID != "call-1" || asst.ToolCalls[1].ID != "call-2" {
		t.Errorf("Tool call order = %q, %q", asst.ToolCalls[0].ID, asst.ToolCalls[1].ID)
	}
	if asst.ToolCalls[0].Function.Name != "read" {
		t.Errorf("Tool call name = %q, want 'read'", asst.ToolCalls[0].Function.Name)
	}
	if asst.ToolCalls[0].Function.Arguments != `{"path":"/a.txt"}` {
		t.Errorf("Tool call arguments = %q", asst.ToolCalls[0].Function.Arguments)
	}

	// Results follow the assistant message in declaration order.
	if result[2].Role != schema.Tool || result[2].ToolCallID != "call-1" {
		t.Errorf("Message 2 = %v/%q, want Tool/call-1", result[2].Role, result[2].ToolCallID)
	}
	if result[2].Content != "contents of a" {
		t.Errorf("Result 1 content = %q", result[2].Content)
	}
	if result[3].Role != schema.Tool || result[3].ToolCallID != "call-2" {
		t.Errorf("Message 3 = %v/%q, want Tool/call-2", result[3].Role, result[3].ToolCallID)
	}
	if result[3].Content != "Error: file not found" {
		t.Errorf("Result 2 content = %q", result[3].Content)
	}
}

func TestBuildHistory_SkipsEmptyMessages(t *testing.T) {
	msgs := []types.MessageWithParts{
		{
			Info:  &types.Message{ID: "m1", Role: types.RoleUser},
			Parts: nil, // interrupted before any content
		},
		{
			Info:  &types.Message{ID: "m2", Role: types.RoleUser},
			Parts: []types.Part{&types.TextPart{ID: "p1", Type: "text", Text: "Hello"}},
		},
	}

	result := BuildHistory("", msgs)

	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	if result[0].Content != "Hello" {
		t.Errorf("Content = %q, want 'Hello'", result[0].Content)
	}
}

func TestBuildHistory_FileParts(t *testing.T) {
	msgs := []types.MessageWithParts{
		{
			Info: &types.Message{ID: "m1", Role: types.RoleUser},
			Parts: []types.Part{
				&types.TextPart{ID: "p1", Type: "text", Text: "Review this"},
				&types.FilePart{ID: "p2", Type: "file", Path: "main.go", Content: "package main"},
			},
		},
	}

	result := BuildHistory("", msgs)

	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	want := "Review this\n[file: main.go]\npackage main"
	if result[0].Content != want {
		t.Errorf("Content = %q, want %q", result[0].Content, want)
	}
}

func TestToolResultContent(t *testing.T) {
	tests := []struct {
		name  string
		state types.ToolState
		want  string
	}{
		{
			name:  "completed with output",
			state: types.ToolState{Status: types.ToolCompleted, Output: "done"},
			want:  "done",
		},
		{
			name:  "completed without output",
			state: types.ToolState{Status: types.ToolCompleted},
			want:  "(no output)",
		},
		{
			name:  "error",
			state: types.ToolState{Status: types.ToolError, Error: "denied"},
			want:  "Error: denied",
		},
		{
			name:  "never ran",
			state: types.ToolState{Status: types.ToolPending},
			want:  "(no result recorded)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toolResultContent(tt.state); got != tt.want {
				t.Errorf("toolResultContent() = %q, want %q", got, tt.want)
			}
		})
	}
}
