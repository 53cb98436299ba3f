package notes

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNotesOverStdio drives the server through the MCP SDK client over an
// in-process stdio transport, the same path the engine's MCP manager uses.
func TestNotesOverStdio(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stdioServer := server.NewStdioServer(NewServer())

	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()
	go stdioServer.Listen(ctx, serverReader, serverWriter)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "notes-test",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, &sdkmcp.IOTransport{
		Reader: clientReader,
		Writer: clientWriter,
	}, nil)
	require.NoError(t, err)
	defer session.Close()

	listResult, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(listResult.Tools))
	for _, tool := range listResult.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"note_add", "note_list", "note_clear"}, names)

	result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "note_add",
		Arguments: map[string]any{"text": "ship it"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name: "note_list",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "1. ship it", text.Text)

	cancel()
	clientWriter.Close()
	serverWriter.Close()
}
