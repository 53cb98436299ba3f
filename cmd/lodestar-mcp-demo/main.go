// Command lodestar-mcp-demo runs the notes MCP server over stdio. Point a
// local MCP entry in the Lodestar config at this binary to try the client
// integration end to end.
package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lodestar-ai/lodestar/pkg/mcpserver/notes"
)

func main() {
	if err := server.ServeStdio(notes.NewServer()); err != nil {
		log.Fatal(err)
	}
}
