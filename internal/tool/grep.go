package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// maxGrepResults caps the number of matching lines returned.
const maxGrepResults = 100

// GrepTool searches file contents with ripgrep.
type GrepTool struct {
	workDir string
}

// GrepInput is the input schema for the grep tool.
type GrepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) ID() string {
	return "grep"
}

func (t *GrepTool) Description() string {
	return `Fast content search tool that finds files containing specific text or patterns.

Usage:
- Searches file contents using regular expressions
- Supports full regex syntax (eg. "log.*Error", "function\s+\w+")
- Filter files by pattern with the include parameter (eg. "*.js", "*.{ts,tsx}")
- Returns matching lines with file paths and line numbers
- Results are limited to 100 matches`
}

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regular expression pattern to search for in file contents"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in. Defaults to the working directory."
			},
			"include": {
				"type": "string",
				"description": "File pattern to include in the search (e.g. \"*.js\", \"*.{ts,tsx}\")"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GrepInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}

	rgPath, err := exec.LookPath("rg")
	if err != nil {
		return nil, fmt.Errorf("ripgrep (rg) is not installed or not in PATH")
	}

	searchDir := params.Path
	if searchDir == "" {
		searchDir = t.workDir
		if toolCtx != nil && toolCtx.WorkDir != "" {
			searchDir = toolCtx.WorkDir
		}
	} else if !filepath.IsAbs(searchDir) {
		base := t.workDir
		if toolCtx != nil && toolCtx.WorkDir != "" {
			base = toolCtx.WorkDir
		}
		searchDir = filepath.Join(base, searchDir)
	}

	args := []string{"--line-number", "--with-filename", "--color=never"}
	if params.Include != "" {
		args = append(args, "--glob", params.Include)
	}
	args = append(args, "--", params.Pattern, searchDir)

	cmd := exec.CommandContext(ctx, rgPath, args...)
	output, err := cmd.Output()
	if err != nil {
		// rg exits 1 when nothing matched.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 && len(output) == 0 {
			return &Result{
				Title:  fmt.Sprintf("Grep %s", params.Pattern),
				Output: "No matches found",
				Metadata: map[string]any{
					"pattern": params.Pattern,
					"count":   0,
				},
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		detail := strings.TrimSpace(string(output))
		if exitErr, ok := err.(*exec.ExitError); ok {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		if detail != "" {
			return nil, fmt.Errorf("search failed: %s", detail)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(output), "\n"), "\n")
	total := len(lines)
	truncated := false
	if total > maxGrepResults {
		lines = lines[:maxGrepResults]
		truncated = true
	}

	var sb strings.Builder
	for _, line := range lines {
		// file:line:content
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s:%s: %s\n", parts[0], parts[1], strings.TrimSpace(parts[2])))
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("(Showing %d of %d matches. Use a more specific pattern to narrow results)\n", maxGrepResults, total))
	}

	return &Result{
		Title:  fmt.Sprintf("Grep %s", params.Pattern),
		Output: strings.TrimRight(sb.String(), "\n"),
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(lines),
			"truncated": truncated,
		},
	}, nil
}
