package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lodestar-ai/lodestar/internal/tool"
)

// toolCaller is the slice of the SDK session the wrapper needs. Tests stub
// it; production passes the live ClientSession.
type toolCaller interface {
	CallTool(ctx context.Context, params *sdkmcp.CallToolParams) (*sdkmcp.CallToolResult, error)
}

// wrapTool adapts one discovered MCP tool into the registry's Tool interface
// under the mcp_<server>_<tool> name.
func wrapTool(srv *server, t *sdkmcp.Tool) tool.Tool {
	return newWrapper(srv.name, t.Name, t.Description, marshalSchema(t.InputSchema), srv.session)
}

// newWrapper builds the registry tool. The remote call keeps the server's
// original tool name; only the registered ID carries the prefix.
func newWrapper(serverName, toolName, description string, schema json.RawMessage, caller toolCaller) tool.Tool {
	id := WrapName(serverName, toolName)
	execute := func(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
		var args map[string]any
		if len(input) > 0 {
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, fmt.Errorf("parse arguments: %w", err)
			}
		}

		result, err := caller.CallTool(ctx, &sdkmcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		})
		if err != nil {
			return nil, err
		}

		text := contentText(result.Content)
		if result.IsError {
			if text == "" {
				text = "tool execution failed"
			}
			return nil, fmt.Errorf("%s: %s", id, text)
		}

		if toolCtx != nil {
			toolCtx.SetMetadata(id, map[string]any{
				"type":   "mcp",
				"server": serverName,
				"tool":   toolName,
			})
		}
		return &tool.Result{Title: id, Output: text}, nil
	}

	return tool.NewBaseTool(id, description, schema, execute)
}

// WrapName builds the registered ID for a server's tool.
func WrapName(serverName, toolName string) string {
	return "mcp_" + sanitizeName(serverName) + "_" + sanitizeName(toolName)
}

// IsWrapped reports whether a tool ID belongs to an MCP server.
func IsWrapped(id string) bool {
	return strings.HasPrefix(id, "mcp_")
}

// contentText concatenates the text blocks of a tool result. Non-text
// content is ignored.
func contentText(content []sdkmcp.Content) string {
	var b strings.Builder
	for _, c := range content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// marshalSchema renders the SDK's schema value back to raw JSON for the
// registry's validator. A missing schema becomes an open object.
func marshalSchema(schema any) json.RawMessage {
	if schema == nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	data, err := json.Marshal(schema)
	if err != nil || string(data) == "null" {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
