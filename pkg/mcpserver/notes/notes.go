// Package notes provides a small MCP server exposing a session scratchpad.
// It exists to exercise the MCP client end to end: an agent can jot down
// notes during a task and read them back later in the conversation.
package notes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// pad is the in-memory note store backing one server instance.
type pad struct {
	mu    sync.Mutex
	notes []string
}

func (p *pad) add(text string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, text)
	return len(p.notes)
}

func (p *pad) list() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.notes))
	copy(out, p.notes)
	return out
}

func (p *pad) clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.notes)
	p.notes = nil
	return n
}

// NewServer creates an MCP server with the scratchpad tools.
func NewServer() *server.MCPServer {
	s := server.NewMCPServer(
		"notes",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	p := &pad{}

	addTool := mcp.NewTool("note_add",
		mcp.WithDescription("Appends a note to the scratchpad and returns its number"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Note text to remember"),
		),
	)
	s.AddTool(addTool, p.addHandler)

	listTool := mcp.NewTool("note_list",
		mcp.WithDescription("Returns all scratchpad notes in the order they were added"),
	)
	s.AddTool(listTool, p.listHandler)

	clearTool := mcp.NewTool("note_clear",
		mcp.WithDescription("Removes every note from the scratchpad"),
	)
	s.AddTool(clearTool, p.clearHandler)

	return s
}

func (p *pad) addHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, ok := request.GetArguments()["text"].(string)
	if !ok {
		return mcp.NewToolResultError("text argument is required"), nil
	}
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text must not be empty"), nil
	}
	n := p.add(text)
	return mcp.NewToolResultText(fmt.Sprintf("noted (#%d)", n)), nil
}

func (p *pad) listHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes := p.list()
	if len(notes) == 0 {
		return mcp.NewToolResultText("scratchpad is empty"), nil
	}
	var b strings.Builder
	for i, note := range notes {
		fmt.Fprintf(&b, "%d. %s\n", i+1, note)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (p *pad) clearHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := p.clear()
	return mcp.NewToolResultText(fmt.Sprintf("cleared %d notes", n)), nil
}
