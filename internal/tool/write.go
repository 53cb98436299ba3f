package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lodestar-ai/lodestar/internal/bus"
)

const writeDescription = `Writes content to a file on the local filesystem.

Usage:
- The filePath parameter must be an absolute path
- This tool will overwrite existing files
- Parent directories will be created if they don't exist
- ALWAYS prefer editing existing files over creating new ones`

// WriteTool writes files, creating parent directories as needed.
type WriteTool struct {
	workDir string
	bus     *bus.Bus
}

// WriteInput is the input for the write tool.
type WriteInput struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// NewWriteTool creates a write tool. The bus receives file.edited events and
// may be nil.
func NewWriteTool(workDir string, b *bus.Bus) *WriteTool {
	return &WriteTool{workDir: workDir, bus: b}
}

func (t *WriteTool) ID() string          { return "write" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to write"
			},
			"content": {
				"type": "string",
				"description": "The content to write to the file"
			}
		},
		"required": ["filePath", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WriteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if toolCtx != nil {
		toolCtx.LockPath(params.FilePath)
	}

	// Existing content feeds the diff metadata; a new file diffs against "".
	before := ""
	if data, err := os.ReadFile(params.FilePath); err == nil {
		before = string(data)
	}

	dir := filepath.Dir(params.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(params.FilePath, []byte(params.Content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	t.publishEdited(toolCtx, params.FilePath)

	workDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		workDir = toolCtx.WorkDir
	}
	stats := diffContent(params.FilePath, before, params.Content, workDir)

	return &Result{
		Title: fmt.Sprintf("Wrote %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Successfully wrote %d bytes to %s",
			len(params.Content), params.FilePath),
		Metadata: map[string]any{
			"file":      params.FilePath,
			"bytes":     len(params.Content),
			"diff":      stats.Patch,
			"additions": stats.Additions,
			"deletions": stats.Deletions,
		},
	}, nil
}

func (t *WriteTool) publishEdited(toolCtx *Context, file string) {
	if t.bus == nil || toolCtx == nil || toolCtx.SessionID == "" {
		return
	}
	t.bus.Publish(bus.Event{
		Type: bus.FileEdited,
		Data: bus.FileEditedData{File: file},
	})
}
